// Package libraryclient calls the circulation REST API.
package libraryclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"librarydesk/internal/util"
	"librarydesk/pkg/domain"
)

// Version is the API surface the backend turned out to speak.
type Version int

const (
	VersionUnknown Version = iota
	// VersionAPI serves everything under /api.
	VersionAPI
	// VersionLegacy serves only the un-prefixed books, members and transactions paths.
	VersionLegacy
)

func (v Version) String() string {
	switch v {
	case VersionAPI:
		return "api"
	case VersionLegacy:
		return "legacy"
	default:
		return "unknown"
	}
}

var (
	// ErrUnsupported is returned for operations the negotiated backend does not offer.
	ErrUnsupported = errors.New("operation not supported by this backend version")
	// ErrNoBackend means neither the /api nor the legacy probe answered.
	ErrNoBackend = errors.New("library backend unreachable")
)

// APIError represents a circulation error response.
type APIError struct {
	Status  int
	Message string
	Code    string
}

func (e *APIError) Error() string {
	return e.Message
}

// Client calls the circulation service over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu      sync.Mutex
	version Version
}

// NewClient constructs a client. A non-positive timeout means 10s.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Negotiate picks the API version once: GET /api/books first, /books only if that fails.
// Later calls reuse the result and never fall back on their own.
func (c *Client) Negotiate(ctx context.Context) (Version, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.version != VersionUnknown {
		return c.version, nil
	}
	logger := util.LoggerFromContext(ctx)
	apiErr := c.probe(ctx, "/api/books")
	if apiErr == nil {
		c.version = VersionAPI
		logger.Debug("backend negotiated", "version", c.version.String())
		return c.version, nil
	}
	logger.Debug("api probe failed, trying legacy paths", "err", apiErr)
	if legacyErr := c.probe(ctx, "/books"); legacyErr != nil {
		return VersionUnknown, fmt.Errorf("%w: %w", ErrNoBackend, errors.Join(apiErr, legacyErr))
	}
	c.version = VersionLegacy
	logger.Info("backend negotiated", "version", c.version.String())
	return c.version, nil
}

// Version returns the negotiated version, or VersionUnknown before Negotiate succeeds.
func (c *Client) Version() Version {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}

func (c *Client) probe(ctx context.Context, path string) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	var raw json.RawMessage
	return c.do(req, &raw)
}

func (c *Client) ListBooks(ctx context.Context) ([]domain.Book, error) {
	p, err := c.prefix(ctx)
	if err != nil {
		return nil, err
	}
	var books []domain.Book
	if err := c.getList(ctx, p+"/books", &books); err != nil {
		return nil, err
	}
	return books, nil
}

func (c *Client) ListMembers(ctx context.Context) ([]domain.Member, error) {
	p, err := c.prefix(ctx)
	if err != nil {
		return nil, err
	}
	var members []domain.Member
	if err := c.getList(ctx, p+"/members", &members); err != nil {
		return nil, err
	}
	return members, nil
}

// TransactionQuery narrows ListTransactions. Zero fields match everything.
type TransactionQuery struct {
	Status   domain.TransactionStatus
	BookID   string
	MemberID string
}

// ListTransactions is only offered by VersionAPI backends.
func (c *Client) ListTransactions(ctx context.Context, q TransactionQuery) ([]domain.Transaction, error) {
	if err := c.requireAPI(ctx); err != nil {
		return nil, err
	}
	values := url.Values{}
	if q.Status != "" {
		values.Set("status", strings.ToLower(string(q.Status)))
	}
	if q.BookID != "" {
		values.Set("bookId", q.BookID)
	}
	if q.MemberID != "" {
		values.Set("memberId", q.MemberID)
	}
	path := "/api/transactions"
	if len(values) > 0 {
		path += "?" + values.Encode()
	}
	var txs []domain.Transaction
	if err := c.getList(ctx, path, &txs); err != nil {
		return nil, err
	}
	return txs, nil
}

// Holder returns the open loans of bookID.
func (c *Client) Holder(ctx context.Context, bookID string) ([]domain.Transaction, error) {
	if err := c.requireAPI(ctx); err != nil {
		return nil, err
	}
	var txs []domain.Transaction
	if err := c.getList(ctx, "/api/books/"+url.PathEscape(bookID)+"/holder", &txs); err != nil {
		return nil, err
	}
	return txs, nil
}

// Search runs the catalog filter on the backend. Only VersionAPI offers it.
func (c *Client) Search(ctx context.Context, query, field string) ([]domain.Book, error) {
	if err := c.requireAPI(ctx); err != nil {
		return nil, err
	}
	values := url.Values{}
	values.Set("q", query)
	if field != "" {
		values.Set("field", field)
	}
	var books []domain.Book
	if err := c.getList(ctx, "/api/search?"+values.Encode(), &books); err != nil {
		return nil, err
	}
	return books, nil
}

func (c *Client) CreateBook(ctx context.Context, b domain.Book) (domain.Book, error) {
	p, err := c.prefix(ctx)
	if err != nil {
		return domain.Book{}, err
	}
	var out domain.Book
	if err := c.send(ctx, http.MethodPost, p+"/books", b, &out); err != nil {
		return domain.Book{}, err
	}
	return out, nil
}

func (c *Client) UpdateBook(ctx context.Context, b domain.Book) (domain.Book, error) {
	if err := c.requireAPI(ctx); err != nil {
		return domain.Book{}, err
	}
	var out domain.Book
	if err := c.send(ctx, http.MethodPut, "/api/books/"+url.PathEscape(b.ID), b, &out); err != nil {
		return domain.Book{}, err
	}
	return out, nil
}

func (c *Client) DeleteBook(ctx context.Context, id string) error {
	if err := c.requireAPI(ctx); err != nil {
		return err
	}
	return c.send(ctx, http.MethodDelete, "/api/books/"+url.PathEscape(id), nil, nil)
}

func (c *Client) CreateMember(ctx context.Context, m domain.Member) (domain.Member, error) {
	p, err := c.prefix(ctx)
	if err != nil {
		return domain.Member{}, err
	}
	var out domain.Member
	if err := c.send(ctx, http.MethodPost, p+"/members", m, &out); err != nil {
		return domain.Member{}, err
	}
	return out, nil
}

func (c *Client) UpdateMember(ctx context.Context, m domain.Member) (domain.Member, error) {
	if err := c.requireAPI(ctx); err != nil {
		return domain.Member{}, err
	}
	var out domain.Member
	if err := c.send(ctx, http.MethodPut, "/api/members/"+url.PathEscape(m.ID), m, &out); err != nil {
		return domain.Member{}, err
	}
	return out, nil
}

func (c *Client) DeleteMember(ctx context.Context, id string) error {
	if err := c.requireAPI(ctx); err != nil {
		return err
	}
	return c.send(ctx, http.MethodDelete, "/api/members/"+url.PathEscape(id), nil, nil)
}

// IssueRequest is the issue body. Days is optional.
type IssueRequest struct {
	BookID   string `json:"bookId"`
	MemberID string `json:"memberId"`
	Days     int    `json:"days,omitempty"`
}

// IssueResult is the backend acknowledgement. Transaction may be zero for backends
// that only answer with a status.
type IssueResult struct {
	Status      string             `json:"status"`
	Transaction domain.Transaction `json:"transaction"`
}

func (c *Client) IssueBook(ctx context.Context, in IssueRequest) (IssueResult, error) {
	p, err := c.prefix(ctx)
	if err != nil {
		return IssueResult{}, err
	}
	var out IssueResult
	if err := c.send(ctx, http.MethodPost, p+"/transactions/issue", in, &out); err != nil {
		return IssueResult{}, err
	}
	return out, nil
}

// ReturnRequest is the return body. MemberID is optional.
type ReturnRequest struct {
	BookID   string `json:"bookId"`
	MemberID string `json:"memberId,omitempty"`
}

type ReturnResult struct {
	Fine        int64              `json:"fine"`
	Transaction domain.Transaction `json:"transaction"`
}

func (c *Client) ReturnBook(ctx context.Context, in ReturnRequest) (ReturnResult, error) {
	p, err := c.prefix(ctx)
	if err != nil {
		return ReturnResult{}, err
	}
	var out ReturnResult
	if err := c.send(ctx, http.MethodPost, p+"/transactions/return", in, &out); err != nil {
		return ReturnResult{}, err
	}
	return out, nil
}

func (c *Client) prefix(ctx context.Context) (string, error) {
	v, err := c.Negotiate(ctx)
	if err != nil {
		return "", err
	}
	if v == VersionLegacy {
		return "", nil
	}
	return "/api", nil
}

func (c *Client) requireAPI(ctx context.Context) error {
	v, err := c.Negotiate(ctx)
	if err != nil {
		return err
	}
	if v != VersionAPI {
		return ErrUnsupported
	}
	return nil
}

// getList decodes either a bare JSON array or an {items: [...]} envelope into out.
func (c *Client) getList(ctx context.Context, path string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	var raw json.RawMessage
	if err := c.do(req, &raw); err != nil {
		return err
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var envelope struct {
			Items json.RawMessage `json:"items"`
		}
		if err := json.Unmarshal(trimmed, &envelope); err != nil {
			return fmt.Errorf("decode list: %w", err)
		}
		trimmed = envelope.Items
	}
	if len(trimmed) == 0 || string(trimmed) == "null" {
		trimmed = []byte("[]")
	}
	if err := json.Unmarshal(trimmed, out); err != nil {
		return fmt.Errorf("decode list: %w", err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(data)
	}
	req, err := c.newRequest(ctx, method, path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if id := util.RequestIDFromContext(ctx); id != "" {
		req.Header.Set(util.RequestIDHeader, id)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&errResp)
		msg := strings.TrimSpace(errResp.Error)
		if msg == "" {
			msg = resp.Status
		}
		return &APIError{Status: resp.StatusCode, Message: msg, Code: strings.TrimSpace(errResp.Code)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
