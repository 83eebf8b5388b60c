package database

import "testing"

func TestMigrationVersion(t *testing.T) {
	tests := []struct {
		name     string
		expected int
	}{
		{"001_initial_schema.sql", 1},
		{"012_add_index.sql", 12},
		{"readme.sql", 0},
		{"01_short.sql", 0},
		{"abc_bad.sql", 0},
	}

	for _, tc := range tests {
		if got := migrationVersion(tc.name); got != tc.expected {
			t.Errorf("migrationVersion(%q) = %d, want %d", tc.name, got, tc.expected)
		}
	}
}
