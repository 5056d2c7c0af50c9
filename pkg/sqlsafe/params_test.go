package sqlsafe

import (
	"reflect"
	"strings"
	"testing"

	"github.com/queryloom/queryloom/pkg/models"
)

func TestExtractParameters(t *testing.T) {
	tests := []struct {
		name     string
		sql      string
		expected []string
	}{
		{
			name:     "no parameters",
			sql:      "SELECT * FROM customers",
			expected: nil,
		},
		{
			name:     "single parameter",
			sql:      "SELECT * FROM customers WHERE customer_id = {{customer_id}}",
			expected: []string{"customer_id"},
		},
		{
			name:     "multiple parameters in order of appearance",
			sql:      "SELECT * FROM orders WHERE customer_id = {{customer_id}} AND total_amount > {{min_total}}",
			expected: []string{"customer_id", "min_total"},
		},
		{
			name:     "duplicate parameter appears once",
			sql:      "SELECT * FROM orders WHERE customer_id = {{cid}} OR shipped_to = {{cid}}",
			expected: []string{"cid"},
		},
		{
			name:     "parameter starting with underscore",
			sql:      "SELECT * FROM t WHERE v = {{_private}}",
			expected: []string{"_private"},
		},
		{
			name:     "malformed placeholder ignored",
			sql:      "SELECT * FROM t WHERE v = {{123bad}}",
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractParameters(tt.sql)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("ExtractParameters() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestValidateParameterValues(t *testing.T) {
	tests := []struct {
		name    string
		sql     string
		values  map[string]any
		wantErr bool
	}{
		{
			name:    "exact match",
			sql:     "SELECT * FROM orders WHERE status = {{status}}",
			values:  map[string]any{"status": "shipped"},
			wantErr: false,
		},
		{
			name:    "missing value",
			sql:     "SELECT * FROM orders WHERE status = {{status}}",
			values:  map[string]any{},
			wantErr: true,
		},
		{
			name:    "unused value",
			sql:     "SELECT * FROM orders",
			values:  map[string]any{"status": "shipped"},
			wantErr: true,
		},
		{
			name:    "no parameters no values",
			sql:     "SELECT * FROM orders",
			values:  nil,
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateParameterValues(tt.sql, tt.values)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateParameterValues() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSubstituteParameters_Postgres(t *testing.T) {
	sql := "SELECT * FROM orders WHERE customer_id = {{customer_id}} AND total_amount > {{min_total}}"
	values := map[string]any{"customer_id": 42, "min_total": 9.99}

	prepared, ordered, err := SubstituteParameters(sql, values, models.DialectPostgres)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "SELECT * FROM orders WHERE customer_id = $1 AND total_amount > $2"
	if prepared != want {
		t.Errorf("prepared = %q, want %q", prepared, want)
	}
	if !reflect.DeepEqual(ordered, []any{42, 9.99}) {
		t.Errorf("ordered = %v", ordered)
	}
}

func TestSubstituteParameters_ReusedParameterSharesPosition(t *testing.T) {
	sql := "SELECT * FROM t WHERE sender = {{user}} OR receiver = {{user}}"
	values := map[string]any{"user": "alice"}

	prepared, ordered, err := SubstituteParameters(sql, values, models.DialectPostgres)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "SELECT * FROM t WHERE sender = $1 OR receiver = $1"
	if prepared != want {
		t.Errorf("prepared = %q, want %q", prepared, want)
	}
	if len(ordered) != 1 {
		t.Errorf("expected 1 bound value, got %d", len(ordered))
	}
}

func TestSubstituteParameters_MSSQL(t *testing.T) {
	sql := "SELECT * FROM orders WHERE status = {{status}}"
	prepared, _, err := SubstituteParameters(sql, map[string]any{"status": "pending"}, models.DialectMSSQL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "SELECT * FROM orders WHERE status = @p1"
	if prepared != want {
		t.Errorf("prepared = %q, want %q", prepared, want)
	}
}

func TestSubstituteParameters_SQLiteRepeatsValues(t *testing.T) {
	sql := "SELECT * FROM t WHERE sender = {{user}} OR receiver = {{user}}"
	prepared, ordered, err := SubstituteParameters(sql, map[string]any{"user": "alice"}, models.DialectSQLite)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "SELECT * FROM t WHERE sender = ? OR receiver = ?"
	if prepared != want {
		t.Errorf("prepared = %q, want %q", prepared, want)
	}
	if !reflect.DeepEqual(ordered, []any{"alice", "alice"}) {
		t.Errorf("ordered = %v", ordered)
	}
}

func TestSubstituteParameters_MissingValueFails(t *testing.T) {
	_, _, err := SubstituteParameters("SELECT * FROM t WHERE v = {{v}}", nil, models.DialectPostgres)
	if err == nil {
		t.Fatal("expected error for missing value")
	}
}

func TestFindParametersInStringLiterals(t *testing.T) {
	tests := []struct {
		name     string
		sql      string
		expected []string
	}{
		{
			name:     "parameter correctly placed",
			sql:      "SELECT * FROM customers WHERE name = {{name}}",
			expected: nil,
		},
		{
			name:     "parameter inside literal",
			sql:      "SELECT 'Hello {{name}}' FROM customers",
			expected: []string{"name"},
		},
		{
			name:     "escaped quote does not end literal",
			sql:      "SELECT 'it''s {{v}}' FROM t",
			expected: []string{"v"},
		},
		{
			name:     "mixed placement reports only the literal one",
			sql:      "SELECT '{{inside}}' FROM t WHERE v = {{outside}}",
			expected: []string{"inside"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FindParametersInStringLiterals(tt.sql)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("FindParametersInStringLiterals() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestSubstituteParameters_MetacharacterValuesStayBound(t *testing.T) {
	template := "SELECT * FROM customers WHERE name = {{name}}"
	values := []string{
		"O'Brien",
		"x; DELETE FROM customers",
		"'; DROP TABLE customers; --",
		"a' OR '1'='1",
		`"; SELECT * FROM secrets`,
		"/* comment */ name",
	}
	dialects := []string{models.DialectPostgres, models.DialectMSSQL, models.DialectSQLite}

	for _, dialect := range dialects {
		for _, value := range values {
			prepared, ordered, err := SubstituteParameters(template, map[string]any{"name": value}, dialect)
			if err != nil {
				t.Fatalf("dialect %s value %q: %v", dialect, value, err)
			}
			if strings.Contains(prepared, value) {
				t.Errorf("dialect %s: value %q leaked into statement %q", dialect, value, prepared)
			}
			if len(ordered) != 1 || ordered[0] != value {
				t.Errorf("dialect %s: value %q not bound, got %v", dialect, value, ordered)
			}
		}
	}
}
