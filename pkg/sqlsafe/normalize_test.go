package sqlsafe

import (
	"errors"
	"testing"
)

func TestValidateAndNormalize(t *testing.T) {
	tests := []struct {
		name    string
		sql     string
		want    string
		wantErr error
	}{
		{
			name: "plain statement unchanged",
			sql:  "SELECT * FROM customers",
			want: "SELECT * FROM customers",
		},
		{
			name: "trailing semicolon stripped",
			sql:  "SELECT * FROM customers;",
			want: "SELECT * FROM customers",
		},
		{
			name: "trailing semicolon with whitespace",
			sql:  "  SELECT * FROM customers ;  \n",
			want: "SELECT * FROM customers",
		},
		{
			name:    "two statements rejected",
			sql:     "SELECT 1; DROP TABLE customers",
			wantErr: ErrMultipleStatements,
		},
		{
			name: "semicolon inside string literal allowed",
			sql:  "SELECT * FROM t WHERE note = 'a;b'",
			want: "SELECT * FROM t WHERE note = 'a;b'",
		},
		{
			name: "semicolon inside doubled-quote literal allowed",
			sql:  "SELECT * FROM t WHERE note = 'it''s; fine'",
			want: "SELECT * FROM t WHERE note = 'it''s; fine'",
		},
		{
			name: "semicolon inside quoted identifier allowed",
			sql:  `SELECT "odd;name" FROM t`,
			want: `SELECT "odd;name" FROM t`,
		},
		{
			name: "empty input",
			sql:  "   ",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ValidateAndNormalize(tt.sql)
			if tt.wantErr != nil {
				if !errors.Is(result.Error, tt.wantErr) {
					t.Fatalf("error = %v, want %v", result.Error, tt.wantErr)
				}
				return
			}
			if result.Error != nil {
				t.Fatalf("unexpected error: %v", result.Error)
			}
			if result.NormalizedSQL != tt.want {
				t.Errorf("normalized = %q, want %q", result.NormalizedSQL, tt.want)
			}
		})
	}
}
