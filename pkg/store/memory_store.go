package store

import (
	"sort"
	"sync"

	"librarydesk/pkg/domain"
)

// MemoryStore keeps the catalog in-process. Used for local runs and tests.
type MemoryStore struct {
	mu          sync.RWMutex
	books       map[string]domain.Book
	bookOrder   []string
	members     map[string]domain.Member
	memberOrder []string
	txs         map[string]domain.Transaction
	txOrder     []string
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		books:   make(map[string]domain.Book),
		members: make(map[string]domain.Member),
		txs:     make(map[string]domain.Transaction),
	}
}

// SaveBook stores or replaces a book record and tracks insertion order.
func (m *MemoryStore) SaveBook(b domain.Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.books[b.ID]; !exists {
		m.bookOrder = append(m.bookOrder, b.ID)
	}
	m.books[b.ID] = b
	return nil
}

// ListBooks returns books in insertion order.
func (m *MemoryStore) ListBooks() ([]domain.Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Book, 0, len(m.bookOrder))
	for _, id := range m.bookOrder {
		if b, ok := m.books[id]; ok {
			res = append(res, b)
		}
	}
	return res, nil
}

func (m *MemoryStore) GetBook(id string) (domain.Book, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.books[id]
	return b, ok, nil
}

// DeleteBook removes a book unless copies of it are out on loan.
func (m *MemoryStore) DeleteBook(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.books[id]; !ok {
		return domain.ErrBookNotFound
	}
	if m.hasOpenLocked(TransactionFilter{Status: domain.StatusIssued, BookID: id}) {
		return domain.ErrBookOnLoan
	}
	delete(m.books, id)
	m.bookOrder = without(m.bookOrder, id)
	return nil
}

func (m *MemoryStore) SaveMember(mem domain.Member) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.members[mem.ID]; !exists {
		m.memberOrder = append(m.memberOrder, mem.ID)
	}
	m.members[mem.ID] = mem
	return nil
}

func (m *MemoryStore) ListMembers() ([]domain.Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Member, 0, len(m.memberOrder))
	for _, id := range m.memberOrder {
		if mem, ok := m.members[id]; ok {
			res = append(res, mem)
		}
	}
	return res, nil
}

func (m *MemoryStore) GetMember(id string) (domain.Member, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mem, ok := m.members[id]
	return mem, ok, nil
}

func (m *MemoryStore) DeleteMember(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.members[id]; !ok {
		return domain.ErrMemberNotFound
	}
	if m.hasOpenLocked(TransactionFilter{Status: domain.StatusIssued, MemberID: id}) {
		return domain.ErrMemberHasLoans
	}
	delete(m.members, id)
	m.memberOrder = without(m.memberOrder, id)
	return nil
}

// IssueBook records the loan and takes one copy off the shelf.
func (m *MemoryStore) IssueBook(tx domain.Transaction) (domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	book, ok := m.books[tx.BookID]
	if !ok {
		return domain.Transaction{}, domain.ErrBookNotFound
	}
	if _, ok := m.members[tx.MemberID]; !ok {
		return domain.Transaction{}, domain.ErrMemberNotFound
	}
	if book.Copies <= 0 {
		return domain.Transaction{}, domain.ErrNoCopiesAvailable
	}
	book.Copies--
	m.books[book.ID] = book

	tx.BookTitle = book.Title
	tx.Status = domain.StatusIssued
	tx.ReturnDate = nil
	tx.Fine = 0
	m.txs[tx.ID] = tx
	m.txOrder = append(m.txOrder, tx.ID)
	return tx, nil
}

// ReturnBook closes the oldest matching open loan and puts the copy back.
func (m *MemoryStore) ReturnBook(req ReturnRequest) (domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	open := m.listLocked(TransactionFilter{Status: domain.StatusIssued, BookID: req.BookID, MemberID: req.MemberID})
	if len(open) == 0 {
		return domain.Transaction{}, domain.ErrLoanNotFound
	}
	tx := open[0]
	returnedAt := req.ReturnedAt
	tx.ReturnDate = &returnedAt
	tx.Status = domain.StatusReturned
	tx.Fine = assess(req.Assess, tx, returnedAt)
	m.txs[tx.ID] = tx

	if book, ok := m.books[tx.BookID]; ok {
		book.Copies++
		m.books[book.ID] = book
	}
	return tx, nil
}

// ListTransactions returns matching transactions ordered by issue date.
func (m *MemoryStore) ListTransactions(f TransactionFilter) ([]domain.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listLocked(f), nil
}

func (m *MemoryStore) listLocked(f TransactionFilter) []domain.Transaction {
	res := make([]domain.Transaction, 0)
	for _, id := range m.txOrder {
		if tx, ok := m.txs[id]; ok && f.match(tx) {
			res = append(res, tx)
		}
	}
	sort.SliceStable(res, func(i, j int) bool { return res[i].IssueDate.Before(res[j].IssueDate) })
	return res
}

func (m *MemoryStore) hasOpenLocked(f TransactionFilter) bool {
	for _, tx := range m.txs {
		if f.match(tx) {
			return true
		}
	}
	return false
}

func without(ids []string, id string) []string {
	filtered := ids[:0]
	for _, item := range ids {
		if item != id {
			filtered = append(filtered, item)
		}
	}
	return filtered
}
