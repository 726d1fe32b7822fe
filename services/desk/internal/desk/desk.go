// Package desk runs the circulation desk: issue, return, refresh and the admin gate.
package desk

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"librarydesk/internal/util"
	"librarydesk/pkg/domain"
	"librarydesk/pkg/filter"
	"librarydesk/services/desk/internal/catalog"
	"librarydesk/services/desk/internal/gate"
	"librarydesk/services/desk/internal/libraryclient"
)

// DefaultPageSize is how many rows a list view shows.
const DefaultPageSize = 20

// Library is the part of the circulation API the desk uses.
type Library interface {
	Version() libraryclient.Version
	ListBooks(ctx context.Context) ([]domain.Book, error)
	ListMembers(ctx context.Context) ([]domain.Member, error)
	ListTransactions(ctx context.Context, q libraryclient.TransactionQuery) ([]domain.Transaction, error)
	IssueBook(ctx context.Context, in libraryclient.IssueRequest) (libraryclient.IssueResult, error)
	ReturnBook(ctx context.Context, in libraryclient.ReturnRequest) (libraryclient.ReturnResult, error)
	Holder(ctx context.Context, bookID string) ([]domain.Transaction, error)
	Search(ctx context.Context, query, field string) ([]domain.Book, error)

	CreateBook(ctx context.Context, b domain.Book) (domain.Book, error)
	UpdateBook(ctx context.Context, b domain.Book) (domain.Book, error)
	DeleteBook(ctx context.Context, id string) error
	CreateMember(ctx context.Context, m domain.Member) (domain.Member, error)
	UpdateMember(ctx context.Context, m domain.Member) (domain.Member, error)
	DeleteMember(ctx context.Context, id string) error
}

type Config struct {
	Library  Library
	Gate     gate.Gate
	Currency string
	PageSize int
	Now      func() time.Time
}

// Desk serializes state transitions. Network calls run without the lock held,
// so overlapping actions are possible; the backend guards double issue.
type Desk struct {
	lib      Library
	gate     gate.Gate
	catalog  *catalog.Store
	pageSize int
	now      func() time.Time

	mu    sync.Mutex
	state State
}

func New(cfg Config) *Desk {
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Desk{
		lib:      cfg.Library,
		gate:     cfg.Gate,
		catalog:  catalog.NewStore(),
		pageSize: pageSize,
		now:      now,
		state:    InitialState(cfg.Currency),
	}
}

// State returns a copy of the current state.
func (d *Desk) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Dispatch applies a through Reduce and returns the new state.
func (d *Desk) Dispatch(a Action) State {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = Reduce(d.state, a)
	return d.state
}

// Login checks the pair against the gate. On success it refreshes the catalog;
// a refresh failure is reported in the notice but does not undo the login.
func (d *Desk) Login(ctx context.Context, username, password string) error {
	if !d.gate.Check(username, password) {
		d.Dispatch(LoginRejected{})
		util.LoggerFromContext(ctx).Warn("desk login rejected", "username", username)
		return ErrInvalidCredentials
	}
	d.Dispatch(LoginSucceeded{})
	if err := d.Refresh(ctx); err != nil {
		util.LoggerFromContext(ctx).Warn("refresh after login failed", "err", err)
	}
	return nil
}

func (d *Desk) Logout() {
	d.Dispatch(Logout{})
}

// Refresh fetches books, members and, when the backend offers them, transactions
// concurrently. The result is only installed if no later refresh beat it.
func (d *Desk) Refresh(ctx context.Context) error {
	if err := d.refresh(ctx); err != nil {
		d.Dispatch(RequestFailed{Op: "refresh", Err: err})
		return err
	}
	return nil
}

func (d *Desk) refresh(ctx context.Context) error {
	ticket := d.catalog.Begin()
	snap := catalog.Snapshot{LoansKnown: d.lib.Version() == libraryclient.VersionAPI}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		books, err := d.lib.ListBooks(gctx)
		snap.Books = books
		return err
	})
	g.Go(func() error {
		members, err := d.lib.ListMembers(gctx)
		snap.Members = members
		return err
	})
	if snap.LoansKnown {
		g.Go(func() error {
			txs, err := d.lib.ListTransactions(gctx, libraryclient.TransactionQuery{})
			snap.Transactions = txs
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	snap.FetchedAt = d.now().UTC()
	if !d.catalog.Commit(ticket, snap) {
		util.LoggerFromContext(ctx).Debug("stale catalog fetch dropped", "ticket", uint64(ticket))
		return nil
	}
	d.Dispatch(CatalogLoaded{Snapshot: snap})
	return nil
}

// SetIssueForm records the issue inputs.
func (d *Desk) SetIssueForm(f IssueForm) {
	d.Dispatch(IssueFormChanged{Form: f})
}

// SetReturnForm records the return inputs.
func (d *Desk) SetReturnForm(f ReturnForm) {
	d.Dispatch(ReturnFormChanged{Form: f})
}

// Issue submits the issue form. Empty ids fail with a ValidationError before any
// call. On success the form is cleared and the catalog re-fetched; on failure
// the form is kept.
func (d *Desk) Issue(ctx context.Context) (libraryclient.IssueResult, error) {
	form := d.State().IssueForm
	form.BookID = strings.TrimSpace(form.BookID)
	form.MemberID = strings.TrimSpace(form.MemberID)
	var verr error
	switch {
	case form.BookID == "":
		verr = &ValidationError{Field: "book id"}
	case form.MemberID == "":
		verr = &ValidationError{Field: "member id"}
	}
	if verr != nil {
		d.Dispatch(RequestFailed{Op: "issue", Err: verr})
		return libraryclient.IssueResult{}, verr
	}

	res, err := d.lib.IssueBook(ctx, libraryclient.IssueRequest{BookID: form.BookID, MemberID: form.MemberID, Days: form.Days})
	if err != nil {
		d.Dispatch(RequestFailed{Op: "issue", Err: err})
		util.LoggerFromContext(ctx).Warn("issue failed", "book_id", form.BookID, "member_id", form.MemberID, "kind", Classify(err).String(), "err", err)
		return libraryclient.IssueResult{}, err
	}
	d.Dispatch(IssueCompleted{Transaction: res.Transaction})
	d.refreshAfter(ctx, "issue")
	return res, nil
}

// Return submits the return form. Only the book id is required.
func (d *Desk) Return(ctx context.Context) (libraryclient.ReturnResult, error) {
	form := d.State().ReturnForm
	form.BookID = strings.TrimSpace(form.BookID)
	form.MemberID = strings.TrimSpace(form.MemberID)
	if form.BookID == "" {
		verr := &ValidationError{Field: "book id"}
		d.Dispatch(RequestFailed{Op: "return", Err: verr})
		return libraryclient.ReturnResult{}, verr
	}

	res, err := d.lib.ReturnBook(ctx, libraryclient.ReturnRequest{BookID: form.BookID, MemberID: form.MemberID})
	if err != nil {
		d.Dispatch(RequestFailed{Op: "return", Err: err})
		util.LoggerFromContext(ctx).Warn("return failed", "book_id", form.BookID, "kind", Classify(err).String(), "err", err)
		return libraryclient.ReturnResult{}, err
	}
	if res.Fine < 0 {
		res.Fine = 0
	}
	d.Dispatch(ReturnCompleted{Fine: res.Fine, Transaction: res.Transaction})
	d.refreshAfter(ctx, "return")
	return res, nil
}

// refreshAfter re-fetches after a successful mutation. The mutation notice stays
// and only gains a refresh-failed suffix, so the operator still sees what happened.
func (d *Desk) refreshAfter(ctx context.Context, op string) {
	if err := d.refresh(ctx); err != nil {
		util.LoggerFromContext(ctx).Warn("refresh after "+op+" failed", "err", err)
		d.Dispatch(RefreshFailed{After: op})
	}
}

// VisibleBooks is the current page of books matching the book query.
func (d *Desk) VisibleBooks() []domain.Book {
	s := d.State()
	return filter.Page(filter.Apply(s.Catalog.Books, s.BookQuery), s.Page*d.pageSize, d.pageSize)
}

// VisibleMembers is the current page of members matching the member query.
func (d *Desk) VisibleMembers() []domain.Member {
	s := d.State()
	return filter.Page(filter.Apply(s.Catalog.Members, s.MemberQuery), s.Page*d.pageSize, d.pageSize)
}

// OpenLoans lists Issued transactions from the snapshot, or ErrLoansUnknown when
// the backend cannot list them.
func (d *Desk) OpenLoans() ([]domain.Transaction, error) {
	s := d.State()
	if !s.Catalog.LoansKnown {
		return nil, ErrLoansUnknown
	}
	out := make([]domain.Transaction, 0)
	for _, tx := range s.Catalog.Transactions {
		if tx.Open() {
			out = append(out, tx)
		}
	}
	return out, nil
}
