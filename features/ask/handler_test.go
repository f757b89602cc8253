package ask_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"knowledgescout/features/ask"
	"knowledgescout/features/document"
	"knowledgescout/internal/answer"
	"knowledgescout/internal/middleware"
)

type MockAsker struct {
	mock.Mock
}

func (m *MockAsker) Ask(ctx context.Context, query, documentID string, k int) (answer.Result, error) {
	args := m.Called(ctx, query, documentID, k)
	return args.Get(0).(answer.Result), args.Error(1)
}

type MockGate struct {
	mock.Mock
}

func (m *MockGate) Get(ctx context.Context, id string, viewer middleware.Identity, shareToken string) (*document.Document, error) {
	args := m.Called(ctx, id, viewer, shareToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*document.Document), args.Error(1)
}

func openGate(id string) *MockGate {
	gate := new(MockGate)
	gate.On("Get", mock.Anything, id, mock.Anything, mock.Anything).
		Return(&document.Document{ID: id}, nil)
	return gate
}

func doAsk(t *testing.T, svc ask.Asker, gate ask.DocumentGate, body string) *httptest.ResponseRecorder {
	t.Helper()
	if gate == nil {
		gate = new(MockGate)
	}
	req := httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(body))
	rec := httptest.NewRecorder()
	ask.NewHandler(svc, gate).Ask(rec, req)
	return rec
}

func TestHandler_Ask(t *testing.T) {
	t.Run("Answers", func(t *testing.T) {
		svc := new(MockAsker)
		svc.On("Ask", mock.Anything, "what is go?", "", 5).
			Return(answer.Result{Answer: "A language.", Sources: []answer.Source{}, QueryID: "query_1_abc"}, nil)

		rec := doAsk(t, svc, nil, `{"query": "what is go?"}`)

		require.Equal(t, http.StatusOK, rec.Code)
		var result answer.Result
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
		assert.Equal(t, "A language.", result.Answer)
		svc.AssertExpectations(t)
	})

	t.Run("Custom K And Document Scope", func(t *testing.T) {
		svc := new(MockAsker)
		id := "7f0ccf36-95f1-4e9e-8f2b-0a49bfba6f45"
		svc.On("Ask", mock.Anything, "q", id, 10).Return(answer.Result{}, nil)

		rec := doAsk(t, svc, openGate(id), `{"query": "q", "k": 10, "documentId": "`+id+`"}`)

		assert.Equal(t, http.StatusOK, rec.Code)
		svc.AssertExpectations(t)
	})

	t.Run("Validation", func(t *testing.T) {
		cases := []struct {
			name string
			body string
		}{
			{"Empty Query", `{"query": "   "}`},
			{"Query Too Long", `{"query": "` + strings.Repeat("q", 1001) + `"}`},
			{"K Too Small", `{"query": "q", "k": 0}`},
			{"K Too Large", `{"query": "q", "k": 21}`},
			{"Bad Document ID", `{"query": "q", "documentId": "nope"}`},
			{"Malformed JSON", `{"query": `},
		}

		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				svc := new(MockAsker)
				rec := doAsk(t, svc, nil, tc.body)

				assert.Equal(t, http.StatusBadRequest, rec.Code)
				assert.Contains(t, rec.Body.String(), "VALIDATION_ERROR")
				assert.Contains(t, rec.Body.String(), "correlationId")
				svc.AssertNotCalled(t, "Ask")
			})
		}
	})

	t.Run("Query At Limit Accepted", func(t *testing.T) {
		svc := new(MockAsker)
		svc.On("Ask", mock.Anything, mock.Anything, "", 5).Return(answer.Result{}, nil)

		rec := doAsk(t, svc, nil, `{"query": "`+strings.Repeat("q", 1000)+`"}`)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("Scoped Query Checks Document Access", func(t *testing.T) {
		id := "7f0ccf36-95f1-4e9e-8f2b-0a49bfba6f45"
		body := `{"query": "q", "documentId": "` + id + `"}`

		t.Run("Unknown Document Is 404", func(t *testing.T) {
			svc := new(MockAsker)
			gate := new(MockGate)
			gate.On("Get", mock.Anything, id, mock.Anything, mock.Anything).
				Return(nil, document.ErrNotFound)

			rec := doAsk(t, svc, gate, body)

			assert.Equal(t, http.StatusNotFound, rec.Code)
			svc.AssertNotCalled(t, "Ask")
		})

		t.Run("Private Document Is 403", func(t *testing.T) {
			svc := new(MockAsker)
			gate := new(MockGate)
			gate.On("Get", mock.Anything, id, mock.Anything, mock.Anything).
				Return(nil, document.ErrAccessDenied)

			rec := doAsk(t, svc, gate, body)

			assert.Equal(t, http.StatusForbidden, rec.Code)
			svc.AssertNotCalled(t, "Ask")
		})
	})

	t.Run("Embedding Outage Is 503", func(t *testing.T) {
		svc := new(MockAsker)
		svc.On("Ask", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(answer.Result{}, answer.ErrEmbedding)

		rec := doAsk(t, svc, nil, `{"query": "q"}`)

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), "EMBEDDING_UNAVAILABLE")
	})

	t.Run("Unexpected Failure Is Opaque 500", func(t *testing.T) {
		svc := new(MockAsker)
		svc.On("Ask", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(answer.Result{}, assert.AnError)

		rec := doAsk(t, svc, nil, `{"query": "q"}`)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), assert.AnError.Error())
	})
}
