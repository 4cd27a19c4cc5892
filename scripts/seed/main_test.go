package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func statementFor(t *testing.T, table string) string {
	t.Helper()
	needle := "CREATE TABLE IF NOT EXISTS " + table + " "
	for _, stmt := range schemaStatements() {
		if strings.Contains(stmt, needle) {
			return stmt
		}
	}
	t.Fatalf("no DDL statement for table %s", table)
	return ""
}

// The sequence allocator upserts against (company_id, series_code, period);
// the DDL must declare exactly those columns and the matching conflict key.
func TestSequencesTableMatchesAllocatorColumns(t *testing.T) {
	stmt := statementFor(t, "sequences")
	for _, col := range []string{"company_id", "series_code", "period", "last_value"} {
		require.Contains(t, stmt, col)
	}
	require.Contains(t, stmt, "PRIMARY KEY (company_id, series_code, period)")
	require.NotContains(t, stmt, "series TEXT")
}

// Documents keep the structured numbering fields next to the composed number.
func TestDocumentTablesCarryNumberingFields(t *testing.T) {
	for _, table := range []string{"invoices", "payments"} {
		stmt := statementFor(t, table)
		require.Contains(t, stmt, "number TEXT NOT NULL", table)
		require.Contains(t, stmt, "sequence_value BIGINT", table)
		require.Contains(t, stmt, "series_code TEXT", table)
		require.Contains(t, stmt, "period TEXT", table)
	}
}
