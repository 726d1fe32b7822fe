package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"librarydesk/internal/util"
	"librarydesk/pkg/domain"
	"librarydesk/pkg/filter"
	"librarydesk/pkg/fine"
	"librarydesk/pkg/store"
)

// MaxLoanDays caps an explicit per-loan period.
const MaxLoanDays = 365

// Config holds runtime configuration for the circulation core.
type Config struct {
	DatabaseURL string
	Store       store.Store
	LoanDays    int
	FinePerDay  int64
	Now         func() time.Time
}

// App wires the store, the fine policy and the clock.
type App struct {
	store  store.Store
	policy fine.Policy
	now    func() time.Time
}

// New constructs the application. A nil Store is opened from DatabaseURL:
// memory:// keeps everything in-process, anything else goes to GORM.
func New(cfg Config) (*App, error) {
	dataStore := cfg.Store
	if dataStore == nil {
		url := strings.TrimSpace(cfg.DatabaseURL)
		switch {
		case url == "":
			return nil, fmt.Errorf("database URL required")
		case strings.HasPrefix(url, "memory://"):
			dataStore = store.NewMemoryStore()
		default:
			gs, err := store.NewGormStore(url)
			if err != nil {
				return nil, fmt.Errorf("init store: %w", err)
			}
			dataStore = gs
		}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &App{
		store:  dataStore,
		policy: fine.NewPolicy(cfg.LoanDays, cfg.FinePerDay),
		now:    func() time.Time { return now().UTC() },
	}, nil
}

// Policy returns the active fine policy.
func (a *App) Policy() fine.Policy {
	return a.policy
}

// Close releases the store when it holds resources.
func (a *App) Close() error {
	if c, ok := a.store.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// CreateBook adds a book with a fresh id.
func (a *App) CreateBook(b domain.Book) (domain.Book, error) {
	b.ID = util.NewID()
	if err := validateBook(b); err != nil {
		return domain.Book{}, err
	}
	if err := a.store.SaveBook(b); err != nil {
		return domain.Book{}, fmt.Errorf("save book: %w", err)
	}
	return b, nil
}

// UpdateBook replaces the editable fields of an existing book.
func (a *App) UpdateBook(id string, b domain.Book) (domain.Book, error) {
	if _, ok, err := a.store.GetBook(id); err != nil {
		return domain.Book{}, err
	} else if !ok {
		return domain.Book{}, domain.ErrBookNotFound
	}
	b.ID = id
	if err := validateBook(b); err != nil {
		return domain.Book{}, err
	}
	if err := a.store.SaveBook(b); err != nil {
		return domain.Book{}, fmt.Errorf("save book: %w", err)
	}
	return b, nil
}

func (a *App) DeleteBook(id string) error {
	return a.store.DeleteBook(id)
}

func (a *App) GetBook(id string) (domain.Book, bool, error) {
	return a.store.GetBook(id)
}

func (a *App) ListBooks() ([]domain.Book, error) {
	return a.store.ListBooks()
}

// SearchBooks runs the catalog filter server-side.
func (a *App) SearchBooks(q filter.Query) ([]domain.Book, error) {
	books, err := a.store.ListBooks()
	if err != nil {
		return nil, err
	}
	return filter.Apply(books, q), nil
}

// CreateMember registers a member with a fresh id.
func (a *App) CreateMember(m domain.Member) (domain.Member, error) {
	m.ID = util.NewID()
	if strings.TrimSpace(m.Name) == "" {
		return domain.Member{}, ErrNameRequired
	}
	if err := a.store.SaveMember(m); err != nil {
		return domain.Member{}, fmt.Errorf("save member: %w", err)
	}
	return m, nil
}

func (a *App) UpdateMember(id string, m domain.Member) (domain.Member, error) {
	if _, ok, err := a.store.GetMember(id); err != nil {
		return domain.Member{}, err
	} else if !ok {
		return domain.Member{}, domain.ErrMemberNotFound
	}
	m.ID = id
	if strings.TrimSpace(m.Name) == "" {
		return domain.Member{}, ErrNameRequired
	}
	if err := a.store.SaveMember(m); err != nil {
		return domain.Member{}, fmt.Errorf("save member: %w", err)
	}
	return m, nil
}

func (a *App) DeleteMember(id string) error {
	return a.store.DeleteMember(id)
}

func (a *App) GetMember(id string) (domain.Member, bool, error) {
	return a.store.GetMember(id)
}

func (a *App) ListMembers() ([]domain.Member, error) {
	return a.store.ListMembers()
}

// Issue lends one copy of bookID to memberID. days == 0 uses the policy loan period.
func (a *App) Issue(ctx context.Context, bookID, memberID string, days int) (domain.Transaction, error) {
	bookID = strings.TrimSpace(bookID)
	memberID = strings.TrimSpace(memberID)
	if bookID == "" || memberID == "" {
		return domain.Transaction{}, ErrIDRequired
	}
	if days < 0 || days > MaxLoanDays {
		return domain.Transaction{}, ErrInvalidLoanDays
	}
	issuedAt := a.now()
	tx, err := a.store.IssueBook(domain.Transaction{
		ID:        util.NewID(),
		BookID:    bookID,
		MemberID:  memberID,
		IssueDate: issuedAt,
		DueDate:   a.policy.DueDate(issuedAt, days),
	})
	if err != nil {
		return domain.Transaction{}, err
	}
	util.LoggerFromContext(ctx).Info("book issued",
		"transaction_id", tx.ID,
		"book_id", tx.BookID,
		"member_id", tx.MemberID,
		"due_date", tx.DueDate.Format(time.DateOnly),
	)
	return tx, nil
}

// Return closes the oldest open loan of bookID and prices it.
// memberID is optional; when set only that member's loan matches.
func (a *App) Return(ctx context.Context, bookID, memberID string) (domain.Transaction, error) {
	bookID = strings.TrimSpace(bookID)
	if bookID == "" {
		return domain.Transaction{}, ErrBookIDRequired
	}
	tx, err := a.store.ReturnBook(store.ReturnRequest{
		BookID:     bookID,
		MemberID:   strings.TrimSpace(memberID),
		ReturnedAt: a.now(),
		Assess:     a.policy.Assess,
	})
	if err != nil {
		return domain.Transaction{}, err
	}
	util.LoggerFromContext(ctx).Info("book returned",
		"transaction_id", tx.ID,
		"book_id", tx.BookID,
		"member_id", tx.MemberID,
		"fine", tx.Fine,
	)
	return tx, nil
}

// ListTransactions returns loans matching f, oldest first.
func (a *App) ListTransactions(f store.TransactionFilter) ([]domain.Transaction, error) {
	return a.store.ListTransactions(f)
}

// Holder returns the open loans of bookID. This is the authoritative answer to
// "who has this book", unlike the copies == 0 hint.
func (a *App) Holder(bookID string) ([]domain.Transaction, error) {
	if _, ok, err := a.store.GetBook(bookID); err != nil {
		return nil, err
	} else if !ok {
		return nil, domain.ErrBookNotFound
	}
	return a.store.ListTransactions(store.TransactionFilter{Status: domain.StatusIssued, BookID: bookID})
}

func validateBook(b domain.Book) error {
	if strings.TrimSpace(b.Title) == "" || strings.TrimSpace(b.Author) == "" {
		return ErrTitleRequired
	}
	if b.Copies < 0 {
		return ErrNegativeCopies
	}
	return nil
}
