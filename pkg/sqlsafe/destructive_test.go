package sqlsafe

import (
	"testing"

	"github.com/queryloom/queryloom/pkg/models"
)

func TestClassifyStatement(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		want models.Operation
	}{
		{"select", "SELECT * FROM customers", models.OpRead},
		{"select lowercase", "select name from products", models.OpRead},
		{"insert", "INSERT INTO orders (status) VALUES ({{status}})", models.OpInsert},
		{"update", "UPDATE orders SET status = {{status}} WHERE order_id = {{id}}", models.OpUpdate},
		{"delete", "DELETE FROM orders WHERE order_id = {{id}}", models.OpDelete},
		{"truncate", "TRUNCATE TABLE orders", models.OpDelete},
		{"create table", "CREATE TABLE t (id INT)", models.OpDDL},
		{"drop table", "DROP TABLE orders", models.OpDDL},
		{"alter table", "ALTER TABLE orders ADD COLUMN note TEXT", models.OpDDL},
		{
			"cte resolving to select",
			"WITH recent AS (SELECT * FROM orders WHERE order_date > {{since}}) SELECT * FROM recent",
			models.OpRead,
		},
		{
			"cte resolving to delete",
			"WITH stale AS (SELECT order_id FROM orders WHERE status = {{s}}) DELETE FROM orders WHERE order_id IN (SELECT order_id FROM stale)",
			models.OpDelete,
		},
		{
			"keyword inside string literal does not reclassify",
			"SELECT * FROM t WHERE note = 'delete me'",
			models.OpRead,
		},
		{"unknown", "EXPLAIN SELECT 1", models.OpUnknown},
		{"empty", "", models.OpUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyStatement(tt.sql); got != tt.want {
				t.Errorf("ClassifyStatement() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFingerprint_StableAcrossFormatting(t *testing.T) {
	a := Fingerprint("DELETE FROM orders WHERE status = {{status}}")
	b := Fingerprint("delete   from orders\n\twhere status = {{status}}")
	if a != b {
		t.Errorf("fingerprints differ for equivalent statements: %s vs %s", a, b)
	}
}

func TestFingerprint_DistinguishesStatements(t *testing.T) {
	a := Fingerprint("DELETE FROM orders WHERE status = {{status}}")
	b := Fingerprint("DELETE FROM customers WHERE status = {{status}}")
	if a == b {
		t.Error("different statements must not share a fingerprint")
	}
}
