package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"librarydesk/internal/ratelimit"
	"librarydesk/internal/util"
	"librarydesk/pkg/domain"
	"librarydesk/pkg/filter"
	"librarydesk/pkg/store"
	"librarydesk/services/circulation/internal/app"
)

const (
	maxBodyBytes = 1 << 20
	rateWindow   = time.Minute
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App                *app.App
	RedisAddr          string
	RedisPassword      string
	RateLimitPerMinute int
	TrustedProxyCIDRs  []string
}

// Server exposes the circulation REST API.
type Server struct {
	app      *app.App
	mux      *http.ServeMux
	validate *validator.Validate
	limiter  *ratelimit.FixedWindowLimiter
	trusted  *util.TrustedProxies
}

// New constructs the server with routes configured. The rate limiter is only
// created when both a Redis address and a positive limit are configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("app is required")
	}
	trusted, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		return nil, fmt.Errorf("parse trusted proxies: %w", err)
	}
	s := &Server{
		app:      cfg.App,
		mux:      http.NewServeMux(),
		validate: newValidator(),
		trusted:  trusted,
	}
	if strings.TrimSpace(cfg.RedisAddr) != "" && cfg.RateLimitPerMinute > 0 {
		limiter, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, ratelimit.DefaultPrefix, cfg.RateLimitPerMinute, rateWindow)
		if err != nil {
			return nil, fmt.Errorf("init limiter: %w", err)
		}
		s.limiter = limiter
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("circulation", util.WithSecurityHeaders(util.WithCORS(s.mux))))
}

// Ping checks the limiter's Redis when one is configured.
func (s *Server) Ping(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	if err := s.limiter.Ping(ctx); err != nil {
		return fmt.Errorf("rate limiter redis: %w", err)
	}
	return nil
}

// Close releases the limiter connection.
func (s *Server) Close() error {
	return s.limiter.Close()
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// books
	s.mux.HandleFunc("/api/books", s.handleBooks(false))
	s.mux.HandleFunc("/books", s.handleBooks(true))
	s.mux.HandleFunc("/api/books/", s.handleBookByID("/api/books/"))
	s.mux.HandleFunc("/books/", s.handleBookByID("/books/"))

	// members
	s.mux.HandleFunc("/api/members", s.handleMembers(false))
	s.mux.HandleFunc("/members", s.handleMembers(true))
	s.mux.HandleFunc("/api/members/", s.handleMemberByID("/api/members/"))
	s.mux.HandleFunc("/members/", s.handleMemberByID("/members/"))

	// circulation
	s.mux.HandleFunc("/api/transactions", s.handleTransactions)
	for _, p := range []string{"/api/transactions/issue", "/transactions/issue", "/api/issue"} {
		s.mux.Handle(p, s.limited(s.handleIssue))
	}
	for _, p := range []string{"/api/transactions/return", "/transactions/return", "/api/return"} {
		s.mux.Handle(p, s.limited(s.handleReturn))
	}

	s.mux.HandleFunc("/api/search", s.handleSearch)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// limited applies the per-client budget to mutating requests. GETs pass through.
func (s *Server) limited(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && r.Method != http.MethodGet && r.Method != http.MethodHead {
			ip := util.ClientIP(r, s.trusted)
			if !s.limiter.Allow(r.Context(), "mutate|"+ip) {
				util.LoggerFromContext(r.Context()).Warn("rate limited", "ip", ip, "path", r.URL.Path)
				w.Header().Set("Retry-After", "60")
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
		}
		next(w, r)
	})
}

func (s *Server) handleBooks(legacy bool) http.HandlerFunc {
	create := s.limited(s.handleCreateBook)
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			books, err := s.app.ListBooks()
			if err != nil {
				s.writeAppError(w, r, err)
				return
			}
			writeList(w, books, legacy)
		case http.MethodPost:
			create.ServeHTTP(w, r)
		default:
			methodNotAllowed(w)
		}
	}
}

func (s *Server) handleCreateBook(w http.ResponseWriter, r *http.Request) {
	var req bookRequest
	if !s.decode(w, r, &req) {
		return
	}
	book, err := s.app.CreateBook(req.toDomain())
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, book)
}

// {prefix}{id} or {prefix}{id}/holder
func (s *Server) handleBookByID(prefix string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, action, ok := splitIDPath(r.URL.Path, prefix)
		if !ok {
			notFound(w, "not found")
			return
		}
		if action == "holder" {
			if r.Method != http.MethodGet {
				methodNotAllowed(w)
				return
			}
			loans, err := s.app.Holder(id)
			if err != nil {
				s.writeAppError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"items": loans, "count": len(loans)})
			return
		}
		if action != "" {
			notFound(w, "not found")
			return
		}
		switch r.Method {
		case http.MethodGet:
			book, ok, err := s.app.GetBook(id)
			if err != nil {
				s.writeAppError(w, r, err)
				return
			}
			if !ok {
				notFound(w, domain.ErrBookNotFound.Error())
				return
			}
			writeJSON(w, http.StatusOK, book)
		case http.MethodPut:
			s.limited(func(w http.ResponseWriter, r *http.Request) {
				var req bookRequest
				if !s.decode(w, r, &req) {
					return
				}
				book, err := s.app.UpdateBook(id, req.toDomain())
				if err != nil {
					s.writeAppError(w, r, err)
					return
				}
				writeJSON(w, http.StatusOK, book)
			}).ServeHTTP(w, r)
		case http.MethodDelete:
			s.limited(func(w http.ResponseWriter, r *http.Request) {
				if err := s.app.DeleteBook(id); err != nil {
					s.writeAppError(w, r, err)
					return
				}
				writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
			}).ServeHTTP(w, r)
		default:
			methodNotAllowed(w)
		}
	}
}

func (s *Server) handleMembers(legacy bool) http.HandlerFunc {
	create := s.limited(s.handleCreateMember)
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			members, err := s.app.ListMembers()
			if err != nil {
				s.writeAppError(w, r, err)
				return
			}
			writeList(w, members, legacy)
		case http.MethodPost:
			create.ServeHTTP(w, r)
		default:
			methodNotAllowed(w)
		}
	}
}

func (s *Server) handleCreateMember(w http.ResponseWriter, r *http.Request) {
	var req memberRequest
	if !s.decode(w, r, &req) {
		return
	}
	member, err := s.app.CreateMember(req.toDomain())
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, member)
}

func (s *Server) handleMemberByID(prefix string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, action, ok := splitIDPath(r.URL.Path, prefix)
		if !ok || action != "" {
			notFound(w, "not found")
			return
		}
		switch r.Method {
		case http.MethodGet:
			member, ok, err := s.app.GetMember(id)
			if err != nil {
				s.writeAppError(w, r, err)
				return
			}
			if !ok {
				notFound(w, domain.ErrMemberNotFound.Error())
				return
			}
			writeJSON(w, http.StatusOK, member)
		case http.MethodPut:
			s.limited(func(w http.ResponseWriter, r *http.Request) {
				var req memberRequest
				if !s.decode(w, r, &req) {
					return
				}
				member, err := s.app.UpdateMember(id, req.toDomain())
				if err != nil {
					s.writeAppError(w, r, err)
					return
				}
				writeJSON(w, http.StatusOK, member)
			}).ServeHTTP(w, r)
		case http.MethodDelete:
			s.limited(func(w http.ResponseWriter, r *http.Request) {
				if err := s.app.DeleteMember(id); err != nil {
					s.writeAppError(w, r, err)
					return
				}
				writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
			}).ServeHTTP(w, r)
		default:
			methodNotAllowed(w)
		}
	}
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	q := r.URL.Query()
	f := store.TransactionFilter{
		BookID:   strings.TrimSpace(q.Get("bookId")),
		MemberID: strings.TrimSpace(q.Get("memberId")),
	}
	if raw := q.Get("status"); raw != "" {
		status, ok := parseStatus(raw)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid status")
			return
		}
		f.Status = status
	}
	txs, err := s.app.ListTransactions(f)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": txs, "count": len(txs)})
}

func (s *Server) handleIssue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req issueRequest
	if !s.decode(w, r, &req) {
		return
	}
	tx, err := s.app.Issue(r.Context(), req.BookID, req.MemberID, req.Days)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, issueResponse{Status: "issued", Transaction: tx})
}

func (s *Server) handleReturn(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req returnRequest
	if !s.decode(w, r, &req) {
		return
	}
	tx, err := s.app.Return(r.Context(), req.BookID, req.MemberID)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, returnResponse{Fine: tx.Fine, Transaction: tx})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	q := filter.Query{
		Text:  r.URL.Query().Get("q"),
		Field: filter.ParseField(r.URL.Query().Get("field")),
	}
	books, err := s.app.SearchBooks(q)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": books, "count": len(books)})
}

// decode reads a size-limited JSON body into dst and validates it.
// On failure it writes the 400 response and returns false.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func (s *Server) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrBookNotFound),
		errors.Is(err, domain.ErrMemberNotFound),
		errors.Is(err, domain.ErrLoanNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrNoCopiesAvailable),
		errors.Is(err, domain.ErrBookOnLoan),
		errors.Is(err, domain.ErrMemberHasLoans):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, app.ErrInvalidLoanDays),
		errors.Is(err, app.ErrTitleRequired),
		errors.Is(err, app.ErrNameRequired),
		errors.Is(err, app.ErrNegativeCopies),
		errors.Is(err, app.ErrIDRequired),
		errors.Is(err, app.ErrBookIDRequired):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		util.LoggerFromContext(r.Context()).Error("request failed", "path", r.URL.Path, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// splitIDPath turns "/api/books/{id}/{action}" into id and action.
func splitIDPath(path, prefix string) (string, string, bool) {
	rest := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if rest == "" {
		return "", "", false
	}
	parts := strings.Split(rest, "/")
	switch len(parts) {
	case 1:
		return parts[0], "", true
	case 2:
		return parts[0], parts[1], true
	default:
		return "", "", false
	}
}

func parseStatus(raw string) (domain.TransactionStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "issued":
		return domain.StatusIssued, true
	case "returned":
		return domain.StatusReturned, true
	default:
		return "", false
	}
}

// writeList keeps legacy routes on a bare array; /api routes use {items, count}.
func writeList[T any](w http.ResponseWriter, items []T, legacy bool) {
	if items == nil {
		items = []T{}
	}
	if legacy {
		writeJSON(w, http.StatusOK, items)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func notFound(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusNotFound, msg)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      errorCodeForCirculation(status, msg),
		RequestID: strings.TrimSpace(w.Header().Get(util.RequestIDHeader)),
	})
}

func errorCodeForCirculation(status int, msg string) string {
	switch strings.ToLower(strings.TrimSpace(msg)) {
	case domain.ErrBookNotFound.Error():
		return "BOOK_NOT_FOUND"
	case domain.ErrMemberNotFound.Error():
		return "MEMBER_NOT_FOUND"
	case domain.ErrLoanNotFound.Error():
		return "LOAN_NOT_FOUND"
	case domain.ErrNoCopiesAvailable.Error():
		return "NO_COPIES_AVAILABLE"
	case domain.ErrBookOnLoan.Error():
		return "BOOK_ON_LOAN"
	case domain.ErrMemberHasLoans.Error():
		return "MEMBER_HAS_LOANS"
	case "rate limit exceeded":
		return "RATE_LIMITED"
	case "invalid status":
		return "INVALID_STATUS"
	case "method not allowed":
		return "SYSTEM_METHOD_NOT_ALLOWED"
	case "not found":
		return "SYSTEM_NOT_FOUND"
	}

	switch status {
	case http.StatusBadRequest:
		return "INVALID_REQUEST"
	case http.StatusNotFound:
		return "SYSTEM_NOT_FOUND"
	case http.StatusConflict:
		return "CONFLICT"
	case http.StatusTooManyRequests:
		return "RATE_LIMITED"
	default:
		if status >= http.StatusInternalServerError {
			return "SYSTEM_INTERNAL_ERROR"
		}
		return "REQUEST_ERROR"
	}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validationMessage renders the first failed rule as "<field> <problem>".
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request"
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "email":
		return fe.Field() + " must be a valid email"
	case "min":
		return fmt.Sprintf("%s must be >= %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be <= %s", fe.Field(), fe.Param())
	default:
		return fe.Field() + " is invalid"
	}
}
