package sqlsafe

import (
	"reflect"
	"testing"

	"github.com/queryloom/queryloom/pkg/models"
)

func TestReferencedTables(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		want []string
	}{
		{
			name: "simple select",
			sql:  "SELECT * FROM customers",
			want: []string{"customers"},
		},
		{
			name: "join",
			sql:  "SELECT o.id FROM orders o JOIN customers c ON c.id = o.customer_id",
			want: []string{"orders", "customers"},
		},
		{
			name: "comma-separated from list",
			sql:  "SELECT * FROM orders o, customers c WHERE c.id = o.customer_id",
			want: []string{"orders", "customers"},
		},
		{
			name: "aliased with as",
			sql:  "SELECT * FROM orders AS o, line_items AS li",
			want: []string{"orders", "line_items"},
		},
		{
			name: "update",
			sql:  "UPDATE customers SET name = 'x' WHERE id = 1",
			want: []string{"customers"},
		},
		{
			name: "insert",
			sql:  "INSERT INTO audit_log (entry) VALUES ('hi')",
			want: []string{"audit_log"},
		},
		{
			name: "delete",
			sql:  "DELETE FROM sessions WHERE expired",
			want: []string{"sessions"},
		},
		{
			name: "subquery",
			sql:  "SELECT * FROM orders WHERE customer_id IN (SELECT id FROM customers)",
			want: []string{"orders", "customers"},
		},
		{
			name: "derived table is not a name",
			sql:  "SELECT * FROM (SELECT id FROM orders) t",
			want: []string{"orders"},
		},
		{
			name: "keyword inside string literal ignored",
			sql:  "SELECT * FROM notes WHERE body = 'from secrets'",
			want: []string{"notes"},
		},
		{
			name: "duplicates collapsed",
			sql:  "SELECT * FROM orders UNION SELECT * FROM orders",
			want: []string{"orders"},
		},
		{
			name: "schema-qualified",
			sql:  "SELECT * FROM public.customers",
			want: []string{"public.customers"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ReferencedTables(tt.sql)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ReferencedTables(%q) = %v, want %v", tt.sql, got, tt.want)
			}
		})
	}
}

func TestValidateRaw_DeniedTable(t *testing.T) {
	v := newTestValidator()
	verdict := v.ValidateRaw(RawInput{
		SQL:    "SELECT * FROM customers",
		Access: allowList{"orders": true},
	})

	if verdict.Outcome != models.VerdictFail {
		t.Fatalf("outcome = %v, want FAIL", verdict.Outcome)
	}
	found := false
	for _, f := range verdict.Findings {
		if f.Category == models.FindingPermission {
			found = true
		}
	}
	if !found {
		t.Errorf("expected permission finding, got %v", verdict.Findings)
	}
}

func TestValidateRaw_DeniedJoinedTable(t *testing.T) {
	v := newTestValidator()
	verdict := v.ValidateRaw(RawInput{
		SQL:    "SELECT o.id FROM orders o JOIN customers c ON c.id = o.customer_id",
		Access: allowList{"orders": true},
	})

	if verdict.Outcome != models.VerdictFail {
		t.Fatalf("outcome = %v, want FAIL", verdict.Outcome)
	}
}

func TestValidateRaw_AllowedTables(t *testing.T) {
	v := newTestValidator()
	verdict := v.ValidateRaw(RawInput{
		SQL:    "SELECT * FROM orders",
		Access: allowList{"orders": true},
	})

	if verdict.Outcome != models.VerdictPass {
		t.Fatalf("outcome = %v, findings = %v", verdict.Outcome, verdict.Findings)
	}
}

func TestValidateRaw_NilAccessUnrestricted(t *testing.T) {
	v := newTestValidator()
	verdict := v.ValidateRaw(RawInput{SQL: "SELECT * FROM customers"})

	if verdict.Outcome != models.VerdictPass {
		t.Fatalf("outcome = %v, findings = %v", verdict.Outcome, verdict.Findings)
	}
}
