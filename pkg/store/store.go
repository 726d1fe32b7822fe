package store

import (
	"time"

	"librarydesk/pkg/domain"
)

// Store defines persistence operations for the catalog, members, and loans.
type Store interface {
	// books
	SaveBook(domain.Book) error
	ListBooks() ([]domain.Book, error)
	GetBook(id string) (domain.Book, bool, error)
	DeleteBook(id string) error

	// members
	SaveMember(domain.Member) error
	ListMembers() ([]domain.Member, error)
	GetMember(id string) (domain.Member, bool, error)
	DeleteMember(id string) error

	// circulation
	IssueBook(tx domain.Transaction) (domain.Transaction, error)
	ReturnBook(req ReturnRequest) (domain.Transaction, error)
	ListTransactions(TransactionFilter) ([]domain.Transaction, error)
}

// AssessFunc prices a loan that is being closed at returnedAt.
type AssessFunc func(tx domain.Transaction, returnedAt time.Time) int64

// ReturnRequest closes the oldest open loan of BookID.
// MemberID is optional and narrows the match when set.
type ReturnRequest struct {
	BookID     string
	MemberID   string
	ReturnedAt time.Time
	Assess     AssessFunc
}

// TransactionFilter selects transactions; zero fields match everything.
type TransactionFilter struct {
	Status   domain.TransactionStatus
	BookID   string
	MemberID string
}

func (f TransactionFilter) match(tx domain.Transaction) bool {
	if f.Status != "" && tx.Status != f.Status {
		return false
	}
	if f.BookID != "" && tx.BookID != f.BookID {
		return false
	}
	if f.MemberID != "" && tx.MemberID != f.MemberID {
		return false
	}
	return true
}

func assess(fn AssessFunc, tx domain.Transaction, at time.Time) int64 {
	if fn == nil {
		return 0
	}
	if fine := fn(tx, at); fine > 0 {
		return fine
	}
	return 0
}
