package libraryclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"librarydesk/internal/util"
	"librarydesk/pkg/domain"
)

type recorder struct {
	mu    sync.Mutex
	paths []string
}

func (r *recorder) add(p string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, p)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNegotiatePrefersAPI(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.add(r.Method + " " + r.URL.Path)
		switch r.URL.Path {
		case "/api/books":
			writeJSON(w, http.StatusOK, map[string]any{"items": []domain.Book{{ID: "b1", Title: "Dune", Copies: 1}}, "count": 1})
		case "/api/transactions/issue":
			writeJSON(w, http.StatusCreated, map[string]any{"status": "issued", "transaction": domain.Transaction{ID: "t1", BookID: "b1"}})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	v, err := c.Negotiate(context.Background())
	if err != nil || v != VersionAPI {
		t.Fatalf("negotiate = %v, %v", v, err)
	}
	before := len(rec.list())

	res, err := c.IssueBook(context.Background(), IssueRequest{BookID: "b1", MemberID: "m1"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if res.Status != "issued" || res.Transaction.ID != "t1" {
		t.Fatalf("unexpected issue result: %+v", res)
	}
	after := rec.list()[before:]
	if len(after) != 1 || after[0] != "POST /api/transactions/issue" {
		t.Fatalf("issue after negotiation must make exactly one request, got %v", after)
	}

	books, err := c.ListBooks(context.Background())
	if err != nil || len(books) != 1 || books[0].ID != "b1" {
		t.Fatalf("list books from envelope: %+v %v", books, err)
	}
}

func TestNegotiateFallsBackToLegacyOnce(t *testing.T) {
	var apiProbes atomic.Int32
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.add(r.Method + " " + r.URL.Path)
		switch r.URL.Path {
		case "/api/books":
			apiProbes.Add(1)
			http.NotFound(w, r)
		case "/books":
			writeJSON(w, http.StatusOK, []domain.Book{{ID: "b1", Title: "Dune"}})
		case "/transactions/return":
			writeJSON(w, http.StatusOK, map[string]any{"fine": 50})
		case "/transactions/issue":
			writeJSON(w, http.StatusOK, map[string]any{"status": "issued"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	ctx := context.Background()
	if _, err := c.IssueBook(ctx, IssueRequest{BookID: "b1", MemberID: "m1"}); err != nil {
		t.Fatalf("issue on legacy backend: %v", err)
	}
	res, err := c.ReturnBook(ctx, ReturnRequest{BookID: "b1"})
	if err != nil {
		t.Fatalf("return on legacy backend: %v", err)
	}
	if res.Fine != 50 {
		t.Fatalf("expected fine 50, got %d", res.Fine)
	}
	books, err := c.ListBooks(ctx)
	if err != nil || len(books) != 1 {
		t.Fatalf("legacy list books: %+v %v", books, err)
	}
	if c.Version() != VersionLegacy {
		t.Fatalf("expected legacy version, got %v", c.Version())
	}
	if got := apiProbes.Load(); got != 1 {
		t.Fatalf("expected a single /api probe, got %d (requests %v)", got, rec.list())
	}
	if _, err := c.ListTransactions(ctx, TransactionQuery{}); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected unsupported transactions list, got %v", err)
	}
	if err := c.DeleteBook(ctx, "b1"); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected unsupported delete, got %v", err)
	}
}

func TestNegotiateFailsWhenNothingAnswers(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	if _, err := c.Negotiate(context.Background()); !errors.Is(err, ErrNoBackend) {
		t.Fatalf("expected ErrNoBackend, got %v", err)
	}
	if c.Version() != VersionUnknown {
		t.Fatalf("failed negotiation must not record a version")
	}
}

func TestAPIErrorCarriesBackendMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/books":
			writeJSON(w, http.StatusOK, []domain.Book{})
		case "/api/transactions/return":
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "book not found or not currently issued", "code": "LOAN_NOT_FOUND"})
		case "/api/transactions/issue":
			w.WriteHeader(http.StatusConflict)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	_, err := c.ReturnBook(context.Background(), ReturnRequest{BookID: "b1"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T %v", err, err)
	}
	if apiErr.Status != http.StatusNotFound || apiErr.Code != "LOAN_NOT_FOUND" || apiErr.Message != "book not found or not currently issued" {
		t.Fatalf("unexpected api error: %+v", apiErr)
	}

	_, err = c.IssueBook(context.Background(), IssueRequest{BookID: "b1", MemberID: "m1"})
	if !errors.As(err, &apiErr) || apiErr.Message != "409 Conflict" {
		t.Fatalf("expected status text fallback, got %v", err)
	}
}

func TestRequestIDForwarded(t *testing.T) {
	var seen atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen.Store(r.Header.Get(util.RequestIDHeader))
		writeJSON(w, http.StatusOK, []domain.Member{})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	ctx := util.ContextWithRequestID(context.Background(), "desk-123")
	if _, err := c.ListMembers(ctx); err != nil {
		t.Fatalf("list members: %v", err)
	}
	if got, _ := seen.Load().(string); got != "desk-123" {
		t.Fatalf("expected request id forwarded, got %q", got)
	}
}

func TestListTransactionsQuery(t *testing.T) {
	var query atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/books":
			writeJSON(w, http.StatusOK, map[string]any{"items": nil})
		case "/api/transactions":
			query.Store(r.URL.RawQuery)
			writeJSON(w, http.StatusOK, map[string]any{"items": []domain.Transaction{{ID: "t1", Status: domain.StatusIssued}}, "count": 1})
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	txs, err := c.ListTransactions(context.Background(), TransactionQuery{Status: domain.StatusIssued, BookID: "b1"})
	if err != nil || len(txs) != 1 {
		t.Fatalf("list transactions: %+v %v", txs, err)
	}
	if got, _ := query.Load().(string); got != "bookId=b1&status=issued" {
		t.Fatalf("unexpected query %q", got)
	}
}
