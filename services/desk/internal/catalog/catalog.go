// Package catalog holds the desk's snapshot of books, members and loans.
package catalog

import (
	"sort"
	"sync"
	"time"

	"librarydesk/pkg/domain"
)

// Snapshot is one consistent fetch of the backend. Treat it as immutable.
type Snapshot struct {
	Books        []domain.Book
	Members      []domain.Member
	Transactions []domain.Transaction
	// LoansKnown is false when the backend cannot list transactions.
	LoansKnown bool
	FetchedAt  time.Time
}

// Book looks up a book by id.
func (s Snapshot) Book(id string) (domain.Book, bool) {
	for _, b := range s.Books {
		if b.ID == id {
			return b, true
		}
	}
	return domain.Book{}, false
}

// Member looks up a member by id.
func (s Snapshot) Member(id string) (domain.Member, bool) {
	for _, m := range s.Members {
		if m.ID == id {
			return m, true
		}
	}
	return domain.Member{}, false
}

// OpenLoans returns the Issued transactions of bookID, oldest first.
func (s Snapshot) OpenLoans(bookID string) []domain.Transaction {
	out := make([]domain.Transaction, 0)
	for _, tx := range s.Transactions {
		if tx.Status == domain.StatusIssued && tx.BookID == bookID {
			out = append(out, tx)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].IssueDate.Before(out[j].IssueDate) })
	return out
}

// Holder answers "who has this book" from transaction state, not from copies.
// With several copies out it reports the oldest open loan.
func (s Snapshot) Holder(bookID string) (domain.Transaction, bool) {
	loans := s.OpenLoans(bookID)
	if len(loans) == 0 {
		return domain.Transaction{}, false
	}
	return loans[0], true
}

// IssuedHint is the display-only "all copies out" flag. It says nothing about who
// holds the book; use Holder for that.
func IssuedHint(b domain.Book) bool {
	return b.Copies == 0
}

// Ticket orders fetches. Higher tickets were started later.
type Ticket uint64

// Store owns the current snapshot and rejects responses that arrive out of order.
type Store struct {
	mu        sync.RWMutex
	issued    Ticket
	committed Ticket
	current   Snapshot
}

func NewStore() *Store {
	return &Store{}
}

// Begin reserves a ticket for a fetch about to start.
func (s *Store) Begin() Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issued++
	return s.issued
}

// Commit installs snap if no fetch started after t has committed already.
// It reports whether snap was installed.
func (s *Store) Commit(t Ticket, snap Snapshot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t <= s.committed {
		return false
	}
	s.committed = t
	s.current = snap
	return true
}

// Current returns the latest committed snapshot.
func (s *Store) Current() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}
