package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseDatabaseVersion(t *testing.T) {
	tests := []struct {
		name         string
		dbType       string
		raw          string
		wantMain     string
		wantDetailed string
	}{
		{"mysql full", "mysql", "8.0.32-0ubuntu0.22.04.2", "8.0", "8.0.32"},
		{"mysql short", "mysql", "5.7-log", "5.7", "5.7"},
		{"postgres", "postgresql", "PostgreSQL 14.9 on x86_64-pc-linux-gnu, compiled by gcc", "14.9", "14.9"},
		{"postgres major only", "postgresql", "PostgreSQL 16beta1 on x86_64", "16.0", "16"},
		{"sqlserver", "sqlserver", "Microsoft SQL Server 2019 (RTM-CU18) (KB5017593) - 15.0.4261.1 (X64)", "15.0", "15.0.4261.1"},
		{"oracle", "oracle", "Oracle Database 19c Enterprise Edition Release 19.0.0.0.0 - Production", "19.0", "19.0.0.0.0"},
		{"unknown dialect", "db2", "DB2 v11.5", UnknownVersion, "DB2 v11.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			main, detailed := ParseDatabaseVersion(tt.dbType, tt.raw)
			assert.Equal(t, tt.wantMain, main)
			assert.Equal(t, tt.wantDetailed, detailed)
		})
	}
}

func TestParseDatabaseVersion_TruncatesUnknown(t *testing.T) {
	raw := strings.Repeat("x", 80)
	main, detailed := ParseDatabaseVersion("mysql", raw)
	assert.Equal(t, UnknownVersion, main)
	assert.Len(t, detailed, 50)
}
