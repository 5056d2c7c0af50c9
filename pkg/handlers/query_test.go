package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/queryloom/queryloom/pkg/auth"
	"github.com/queryloom/queryloom/pkg/catalog"
	"github.com/queryloom/queryloom/pkg/events"
	"github.com/queryloom/queryloom/pkg/executor"
	"github.com/queryloom/queryloom/pkg/llm"
	"github.com/queryloom/queryloom/pkg/models"
	"github.com/queryloom/queryloom/pkg/pipeline"
	"github.com/queryloom/queryloom/pkg/resolver"
	"github.com/queryloom/queryloom/pkg/sqlsafe"
	"github.com/queryloom/queryloom/pkg/store"
)

type stubSources struct {
	source   *catalog.Source
	snapshot *models.SchemaSnapshot
}

func (s *stubSources) Active() (*catalog.Source, error) { return s.source, nil }
func (s *stubSources) Snapshot(string) (*models.SchemaSnapshot, error) {
	return s.snapshot, nil
}

func testSnapshot() *models.SchemaSnapshot {
	return &models.SchemaSnapshot{
		DatabaseID: "crm",
		Dialect:    models.DialectSQLite,
		Version:    1,
		Tables: []models.Table{
			{Name: "customers", Columns: []models.Column{
				{Name: "id", DataType: "INTEGER", PrimaryKey: true},
				{Name: "name", DataType: "TEXT"},
				{Name: "state", DataType: "TEXT"},
			}},
		},
	}
}

func scripted(responses map[string]string) *llm.MockClient {
	return &llm.MockClient{
		CompleteFunc: func(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResult, error) {
			for key, body := range responses {
				if strings.Contains(req.System, key) {
					return &llm.CompletionResult{Content: body}, nil
				}
			}
			return &llm.CompletionResult{Content: "{}"}, nil
		},
	}
}

func newTestAPI(t *testing.T, client llm.Client) (*http.ServeMux, sqlmock.Sqlmock, *store.MemoryStore) {
	return newTestAPIWithAuth(t, client, false)
}

func newTestAPIWithAuth(t *testing.T, client llm.Client, authEnabled bool) (*http.ServeMux, sqlmock.Sqlmock, *store.MemoryStore) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := zap.NewNop()
	turns := store.NewMemoryStore()
	sources := &stubSources{
		source:   &catalog.Source{ID: "crm", Dialect: models.DialectSQLite, DB: db},
		snapshot: testSnapshot(),
	}
	orchestrator := pipeline.NewOrchestrator(
		pipeline.DefaultConfig(),
		sources,
		turns,
		resolver.New(resolver.DefaultConfig(), logger),
		sqlsafe.NewValidator(sqlsafe.DefaultComplexityBudget(), logger),
		executor.New(executor.DefaultConfig(), logger),
		events.NewBroker(logger),
		pipeline.NewStrategies(models.StrategyEnhanced, client, logger),
		nil,
		logger,
	)

	mux := http.NewServeMux()
	authMW := auth.NewMiddleware(auth.NewService("secret", logger), authEnabled, logger)
	NewQueryHandler(orchestrator, turns, logger).RegisterRoutes(mux, authMW)
	return mux, mock, turns
}

func TestProcessQuestion_EndToEnd(t *testing.T) {
	client := scripted(map[string]string{
		"intent-classification": `{
			"operation": "READ",
			"mentions": [{"text": "customers", "kind": "table", "confidence": 0.95}],
			"confidence": 0.9
		}`,
		"SQL-construction": `{
			"sql": "SELECT * FROM customers WHERE state = {{p1}}",
			"parameters": {"p1": "New York"},
			"referenced_tables": ["customers"]
		}`,
		"explanation stage": `{"text": "Customers in New York.", "suggested_followups": ["Group them by city?"]}`,
	})
	mux, mock, _ := newTestAPI(t, client)

	mock.ExpectQuery("SELECT * FROM customers WHERE state = ?").
		WithArgs("New York").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "state"}).
			AddRow(1, "Alice Johnson", "New York"))

	body := `{"question": "Show me all customers from New York", "execute_query": true}`
	req := httptest.NewRequest("POST", "/api/v1/query", strings.NewReader(body))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp pipeline.ProcessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, models.StateComplete, resp.State)
	require.NotNil(t, resp.Result)
	assert.Equal(t, 1, resp.Result.RowCount)
	require.NotNil(t, resp.Explanation)
	assert.Equal(t, "Customers in New York.", resp.Explanation.Text)
	assert.NotEqual(t, uuid.Nil, resp.ConversationID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessQuestion_BadRequests(t *testing.T) {
	mux, _, _ := newTestAPI(t, scripted(nil))

	tests := []struct {
		name string
		body string
	}{
		{name: "invalid json", body: `{`},
		{name: "missing question", body: `{"execute_query": true}`},
		{name: "bad conversation id", body: `{"question": "hi", "conversation_id": "not-a-uuid"}`},
		{name: "bad style", body: `{"question": "hi", "explanation_style": "INTERPRETIVE_DANCE"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/v1/query", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestExecuteSQL_DestructiveBlocked(t *testing.T) {
	mux, _, _ := newTestAPI(t, scripted(nil))

	body := `{"sql": "DELETE FROM customers"}`
	req := httptest.NewRequest("POST", "/api/v1/execute-sql", strings.NewReader(body))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp pipeline.RawResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Verdict)
	assert.Equal(t, models.VerdictNeedsConfirmation, resp.Verdict.Outcome)
	assert.NotEmpty(t, resp.PendingFingerprint)
	assert.Nil(t, resp.Result)
}

func TestExecuteSQL_Select(t *testing.T) {
	mux, mock, _ := newTestAPI(t, scripted(nil))

	mock.ExpectQuery("SELECT count(*) FROM customers").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))

	body := `{"sql": "SELECT count(*) FROM customers"}`
	req := httptest.NewRequest("POST", "/api/v1/execute-sql", strings.NewReader(body))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp pipeline.RawResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Verdict)
	assert.Equal(t, models.VerdictPass, resp.Verdict.Outcome)
	require.NotNil(t, resp.Result)
	assert.Equal(t, 1, resp.Result.RowCount)
}

// tableClaimToken signs a bearer token restricted to the given tables.
func tableClaimToken(t *testing.T, tables []string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "analyst",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Tables: tables,
	})
	signed, err := token.SignedString([]byte("secret"))
	require.NoError(t, err)
	return signed
}

func TestExecuteSQL_TableClaimDenied(t *testing.T) {
	mux, _, _ := newTestAPIWithAuth(t, scripted(nil), true)

	body := `{"sql": "SELECT * FROM customers"}`
	req := httptest.NewRequest("POST", "/api/v1/execute-sql", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+tableClaimToken(t, []string{"orders"}))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp pipeline.RawResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Verdict)
	assert.Equal(t, models.VerdictFail, resp.Verdict.Outcome)
	assert.Nil(t, resp.Result)

	denied := false
	for _, f := range resp.Verdict.Findings {
		if f.Category == models.FindingPermission {
			denied = true
		}
	}
	assert.True(t, denied, "expected a permission finding, got %v", resp.Verdict.Findings)
}

func TestExecuteSQL_TableClaimAllowed(t *testing.T) {
	mux, mock, _ := newTestAPIWithAuth(t, scripted(nil), true)

	mock.ExpectQuery("SELECT name FROM customers").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("Ada"))

	body := `{"sql": "SELECT name FROM customers"}`
	req := httptest.NewRequest("POST", "/api/v1/execute-sql", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+tableClaimToken(t, []string{"customers"}))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp pipeline.RawResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Verdict)
	assert.Equal(t, models.VerdictPass, resp.Verdict.Outcome)
	require.NotNil(t, resp.Result)
}

func TestGetConversation(t *testing.T) {
	mux, _, turns := newTestAPI(t, scripted(nil))

	convID := uuid.New()
	require.NoError(t, turns.AppendTurn(context.Background(), &models.ConversationTurn{
		ConversationID: convID,
		Question:       "how many customers",
		State:          models.StateComplete,
	}))

	req := httptest.NewRequest("GET", "/api/v1/conversations/"+convID.String(), nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp ConversationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Turns, 1)
	assert.Equal(t, "how many customers", resp.Turns[0].Question)
}

func TestGetConversation_NotFound(t *testing.T) {
	mux, _, _ := newTestAPI(t, scripted(nil))

	req := httptest.NewRequest("GET", "/api/v1/conversations/"+uuid.NewString(), nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
