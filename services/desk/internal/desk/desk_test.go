package desk

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"librarydesk/pkg/domain"
	"librarydesk/pkg/filter"
	"librarydesk/services/desk/internal/gate"
	"librarydesk/services/desk/internal/libraryclient"
)

type fakeLibrary struct {
	mu        sync.Mutex
	version   libraryclient.Version
	books     []domain.Book
	members   []domain.Member
	txs       []domain.Transaction
	calls     map[string]int
	issueErr  error
	returnRes libraryclient.ReturnResult
	returnErr error
	listErr   error
	saveErr   error
	searchErr error
	// booksHook runs inside ListBooks when set; used to order concurrent refreshes.
	booksHook func(call int)
}

func newFakeLibrary() *fakeLibrary {
	return &fakeLibrary{
		version: libraryclient.VersionAPI,
		books:   []domain.Book{{ID: "b1", Title: "Nahj al-Balagha", Author: "Sharif al-Radi", Copies: 2}},
		members: []domain.Member{{ID: "M1", Name: "Ada"}},
		calls:   map[string]int{},
	}
}

func (f *fakeLibrary) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeLibrary) hit(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	return f.calls[op]
}

func (f *fakeLibrary) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakeLibrary) Version() libraryclient.Version { return f.version }

func (f *fakeLibrary) ListBooks(ctx context.Context) ([]domain.Book, error) {
	call := f.hit("books")
	f.mu.Lock()
	books, err := append([]domain.Book(nil), f.books...), f.listErr
	f.mu.Unlock()
	if f.booksHook != nil {
		f.booksHook(call)
	}
	return books, err
}

func (f *fakeLibrary) ListMembers(ctx context.Context) ([]domain.Member, error) {
	f.hit("members")
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Member(nil), f.members...), nil
}

func (f *fakeLibrary) ListTransactions(ctx context.Context, q libraryclient.TransactionQuery) ([]domain.Transaction, error) {
	f.hit("transactions")
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Transaction(nil), f.txs...), nil
}

func (f *fakeLibrary) IssueBook(ctx context.Context, in libraryclient.IssueRequest) (libraryclient.IssueResult, error) {
	f.hit("issue")
	if f.issueErr != nil {
		return libraryclient.IssueResult{}, f.issueErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.books {
		if f.books[i].ID == in.BookID {
			f.books[i].Copies--
		}
	}
	tx := domain.Transaction{ID: "t1", BookID: in.BookID, MemberID: in.MemberID, Status: domain.StatusIssued}
	f.txs = append(f.txs, tx)
	return libraryclient.IssueResult{Status: "issued", Transaction: tx}, nil
}

func (f *fakeLibrary) ReturnBook(ctx context.Context, in libraryclient.ReturnRequest) (libraryclient.ReturnResult, error) {
	f.hit("return")
	return f.returnRes, f.returnErr
}

func (f *fakeLibrary) Holder(ctx context.Context, bookID string) ([]domain.Transaction, error) {
	f.hit("holder")
	if f.version != libraryclient.VersionAPI {
		return nil, libraryclient.ErrUnsupported
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.Transaction{}
	for _, tx := range f.txs {
		if tx.BookID == bookID && tx.Open() {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (f *fakeLibrary) Search(ctx context.Context, query, field string) ([]domain.Book, error) {
	f.hit("search")
	if f.version != libraryclient.VersionAPI {
		return nil, libraryclient.ErrUnsupported
	}
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return filter.Apply(f.books, filter.Query{Text: query, Field: filter.Field(field)}), nil
}

func (f *fakeLibrary) CreateBook(ctx context.Context, b domain.Book) (domain.Book, error) {
	f.hit("create book")
	if f.saveErr != nil {
		return domain.Book{}, f.saveErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	b.ID = fmt.Sprintf("b%d", len(f.books)+1)
	f.books = append(f.books, b)
	return b, nil
}

func (f *fakeLibrary) UpdateBook(ctx context.Context, b domain.Book) (domain.Book, error) {
	f.hit("update book")
	if f.saveErr != nil {
		return domain.Book{}, f.saveErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.books {
		if f.books[i].ID == b.ID {
			f.books[i] = b
			return b, nil
		}
	}
	return domain.Book{}, &libraryclient.APIError{Status: 404, Message: "book not found", Code: "BOOK_NOT_FOUND"}
}

func (f *fakeLibrary) DeleteBook(ctx context.Context, id string) error {
	f.hit("delete book")
	if f.saveErr != nil {
		return f.saveErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.books {
		if f.books[i].ID == id {
			f.books = append(f.books[:i], f.books[i+1:]...)
			return nil
		}
	}
	return &libraryclient.APIError{Status: 404, Message: "book not found", Code: "BOOK_NOT_FOUND"}
}

func (f *fakeLibrary) CreateMember(ctx context.Context, m domain.Member) (domain.Member, error) {
	f.hit("create member")
	if f.saveErr != nil {
		return domain.Member{}, f.saveErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	m.ID = fmt.Sprintf("M%d", len(f.members)+1)
	f.members = append(f.members, m)
	return m, nil
}

func (f *fakeLibrary) UpdateMember(ctx context.Context, m domain.Member) (domain.Member, error) {
	f.hit("update member")
	if f.saveErr != nil {
		return domain.Member{}, f.saveErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.members {
		if f.members[i].ID == m.ID {
			f.members[i] = m
			return m, nil
		}
	}
	return domain.Member{}, &libraryclient.APIError{Status: 404, Message: "member not found", Code: "MEMBER_NOT_FOUND"}
}

func (f *fakeLibrary) DeleteMember(ctx context.Context, id string) error {
	f.hit("delete member")
	if f.saveErr != nil {
		return f.saveErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.members {
		if f.members[i].ID == id {
			f.members = append(f.members[:i], f.members[i+1:]...)
			return nil
		}
	}
	return &libraryclient.APIError{Status: 404, Message: "member not found", Code: "MEMBER_NOT_FOUND"}
}

func newTestDesk(lib *fakeLibrary) *Desk {
	return New(Config{Library: lib, Gate: gate.New("admin", "1234"), Currency: "Rs.", PageSize: 2})
}

func TestIssueWithEmptyBookIDMakesNoCall(t *testing.T) {
	lib := newFakeLibrary()
	d := newTestDesk(lib)
	d.SetIssueForm(IssueForm{BookID: "  ", MemberID: "M1"})

	_, err := d.Issue(context.Background())
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if lib.total() != 0 {
		t.Fatalf("no network call may happen, got %v", lib.calls)
	}
	if d.State().IssueForm.MemberID != "M1" {
		t.Fatalf("form must be kept after validation failure")
	}
	if Classify(err) != KindValidation {
		t.Fatalf("expected validation kind")
	}
}

func TestIssueSuccessClearsFormAndRefetches(t *testing.T) {
	lib := newFakeLibrary()
	d := newTestDesk(lib)
	d.SetIssueForm(IssueForm{BookID: "b1", MemberID: "M1"})

	if _, err := d.Issue(context.Background()); err != nil {
		t.Fatalf("issue: %v", err)
	}
	s := d.State()
	if s.IssueForm != (IssueForm{}) {
		t.Fatalf("expected cleared form, got %+v", s.IssueForm)
	}
	if lib.count("books") != 1 || lib.count("members") != 1 || lib.count("transactions") != 1 {
		t.Fatalf("expected one catalog re-fetch, got %v", lib.calls)
	}
	b, _ := s.Catalog.Book("b1")
	if b.Copies != 1 {
		t.Fatalf("expected refreshed copies 1, got %d", b.Copies)
	}
	holder, ok, err := d.Holder("b1")
	if err != nil || !ok || holder.MemberID != "M1" {
		t.Fatalf("expected M1 as holder, got %+v %v %v", holder, ok, err)
	}
}

func TestIssueRejectedKeepsFormAndShowsBackendMessage(t *testing.T) {
	lib := newFakeLibrary()
	lib.issueErr = &libraryclient.APIError{Status: 409, Message: "no copies available", Code: "NO_COPIES_AVAILABLE"}
	d := newTestDesk(lib)
	d.SetIssueForm(IssueForm{BookID: "b1", MemberID: "M1"})

	if _, err := d.Issue(context.Background()); err == nil {
		t.Fatalf("expected issue failure")
	}
	s := d.State()
	if s.IssueForm.BookID != "b1" {
		t.Fatalf("failure must keep the form")
	}
	if s.Notice.Level != NoticeError || !strings.Contains(s.Notice.Text, "no copies available") {
		t.Fatalf("unexpected notice %+v", s.Notice)
	}
	if lib.count("books") != 0 {
		t.Fatalf("failed issue must not refetch")
	}
	if lib.count("issue") != 1 {
		t.Fatalf("failures are not retried, got %d calls", lib.count("issue"))
	}
}

func TestReturnReportsFine(t *testing.T) {
	lib := newFakeLibrary()
	lib.returnRes = libraryclient.ReturnResult{Fine: 50}
	d := newTestDesk(lib)
	d.SetReturnForm(ReturnForm{BookID: "b1"})

	res, err := d.Return(context.Background())
	if err != nil {
		t.Fatalf("return: %v", err)
	}
	if res.Fine != 50 || d.State().LastFine != 50 {
		t.Fatalf("unexpected fine %d / %d", res.Fine, d.State().LastFine)
	}
	if !strings.Contains(d.State().Notice.Text, "Late fee: Rs.50") {
		t.Fatalf("unexpected notice %q", d.State().Notice.Text)
	}

	d.SetReturnForm(ReturnForm{})
	if _, err := d.Return(context.Background()); Classify(err) != KindValidation {
		t.Fatalf("expected validation error for empty book id, got %v", err)
	}
	if lib.count("return") != 1 {
		t.Fatalf("empty return must not call the backend")
	}
}

func TestLoginGate(t *testing.T) {
	lib := newFakeLibrary()
	d := newTestDesk(lib)

	if err := d.Login(context.Background(), "admin", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	s := d.State()
	if s.Admin || s.View != ViewPublic || s.Notice.Level != NoticeError {
		t.Fatalf("rejected login must leave view unchanged with an alert: %+v", s)
	}
	if lib.total() != 0 {
		t.Fatalf("rejected login must not fetch")
	}

	if err := d.Login(context.Background(), "admin", "1234"); err != nil {
		t.Fatalf("login: %v", err)
	}
	s = d.State()
	if !s.Admin || s.View != ViewDashboard {
		t.Fatalf("expected admin dashboard, got %+v", s)
	}
	if lib.count("books") != 1 {
		t.Fatalf("login should trigger a catalog fetch")
	}
}

func TestRefreshDropsStaleResponse(t *testing.T) {
	lib := newFakeLibrary()
	firstStarted := make(chan struct{})
	releaseFirst := make(chan struct{})
	lib.booksHook = func(call int) {
		if call == 1 {
			close(firstStarted)
			<-releaseFirst
		}
	}
	d := newTestDesk(lib)

	done := make(chan error, 1)
	go func() { done <- d.Refresh(context.Background()) }()
	<-firstStarted

	lib.mu.Lock()
	lib.books = []domain.Book{{ID: "b-new", Title: "Fresh"}}
	lib.mu.Unlock()
	if err := d.Refresh(context.Background()); err != nil {
		t.Fatalf("second refresh: %v", err)
	}
	close(releaseFirst)
	if err := <-done; err != nil {
		t.Fatalf("first refresh: %v", err)
	}

	books := d.State().Catalog.Books
	if len(books) != 1 || books[0].ID != "b-new" {
		t.Fatalf("stale fetch overwrote newer data: %+v", books)
	}
}

func TestRefreshFailureKeepsCatalog(t *testing.T) {
	lib := newFakeLibrary()
	d := newTestDesk(lib)
	if err := d.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	lib.listErr = errors.New("connection reset")
	if err := d.Refresh(context.Background()); err == nil {
		t.Fatalf("expected refresh error")
	}
	s := d.State()
	if len(s.Catalog.Books) != 1 {
		t.Fatalf("failed refresh must keep the previous snapshot")
	}
	if !strings.Contains(s.Notice.Text, "could not reach") {
		t.Fatalf("unexpected notice %q", s.Notice.Text)
	}
}

func TestLegacyBackendSkipsTransactions(t *testing.T) {
	lib := newFakeLibrary()
	lib.version = libraryclient.VersionLegacy
	d := newTestDesk(lib)
	if err := d.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if lib.count("transactions") != 0 {
		t.Fatalf("legacy backend has no transactions list")
	}
	if _, err := d.OpenLoans(); !errors.Is(err, ErrLoansUnknown) {
		t.Fatalf("expected loans unknown, got %v", err)
	}
}

func TestVisibleBooksFiltersAndPages(t *testing.T) {
	lib := newFakeLibrary()
	lib.books = []domain.Book{
		{ID: "1", Title: "Dune", Author: "Herbert"},
		{ID: "2", Title: "Dune Messiah", Author: "Herbert"},
		{ID: "3", Title: "Children of Dune", Author: "Herbert"},
		{ID: "4", Title: "Emma", Author: "Austen"},
	}
	d := newTestDesk(lib)
	if err := d.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	d.Dispatch(BookQueryChanged{Query: filter.Query{Text: "dune", Field: filter.FieldTitle}})
	if got := d.VisibleBooks(); len(got) != 2 || got[0].ID != "1" {
		t.Fatalf("unexpected first page %+v", got)
	}
	d.Dispatch(PageChanged{Page: 1})
	if got := d.VisibleBooks(); len(got) != 1 || got[0].ID != "3" {
		t.Fatalf("unexpected second page %+v", got)
	}
	d.Dispatch(BookQueryChanged{Query: filter.Query{Text: "tolstoy"}})
	if got := d.VisibleBooks(); len(got) != 0 {
		t.Fatalf("expected no results, got %+v", got)
	}
	if got := d.VisibleMembers(); len(got) != 1 {
		t.Fatalf("expected members unaffected by book query, got %+v", got)
	}
}

func TestRefreshStampsFetchTime(t *testing.T) {
	lib := newFakeLibrary()
	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	d := New(Config{Library: lib, Gate: gate.New("", ""), Now: func() time.Time { return at }})
	if err := d.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if !d.State().Catalog.FetchedAt.Equal(at) {
		t.Fatalf("unexpected fetch time %v", d.State().Catalog.FetchedAt)
	}
}

func TestIssueRefreshFailureKeepsSuccessNotice(t *testing.T) {
	lib := newFakeLibrary()
	lib.listErr = errors.New("connection reset")
	d := newTestDesk(lib)
	d.SetIssueForm(IssueForm{BookID: "b1", MemberID: "M1"})

	if _, err := d.Issue(context.Background()); err != nil {
		t.Fatalf("issue should succeed even when the re-fetch fails: %v", err)
	}
	s := d.State()
	if s.Notice.Level != NoticeSuccess {
		t.Fatalf("expected success notice, got %+v", s.Notice)
	}
	if !strings.HasPrefix(s.Notice.Text, "Book issued") || !strings.HasSuffix(s.Notice.Text, "(catalog refresh failed)") {
		t.Fatalf("unexpected notice %q", s.Notice.Text)
	}
	if s.IssueForm != (IssueForm{}) {
		t.Fatalf("form should still be cleared")
	}
}
