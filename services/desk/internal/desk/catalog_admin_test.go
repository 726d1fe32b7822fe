package desk

import (
	"context"
	"errors"
	"strings"
	"testing"

	"librarydesk/pkg/domain"
	"librarydesk/pkg/filter"
	"librarydesk/services/desk/internal/libraryclient"
)

func TestAddBookValidatesBeforeCalling(t *testing.T) {
	cases := []struct {
		name string
		book domain.Book
		msg  string
	}{
		{name: "title", book: domain.Book{Author: "Herbert"}, msg: "Add book failed: title is required"},
		{name: "author", book: domain.Book{Title: "Dune", Author: "  "}, msg: "Add book failed: author is required"},
		{name: "copies", book: domain.Book{Title: "Dune", Author: "Herbert", Copies: -1}, msg: "Add book failed: copies must not be negative"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			lib := newFakeLibrary()
			d := newTestDesk(lib)
			_, err := d.AddBook(context.Background(), tc.book)
			if Classify(err) != KindValidation {
				t.Fatalf("expected validation error, got %v", err)
			}
			if lib.total() != 0 {
				t.Fatalf("no call expected, got %v", lib.calls)
			}
			if got := d.State().Notice.Text; got != tc.msg {
				t.Fatalf("notice = %q, want %q", got, tc.msg)
			}
		})
	}
}

func TestAddBookCreatesAndRefetches(t *testing.T) {
	lib := newFakeLibrary()
	d := newTestDesk(lib)

	saved, err := d.AddBook(context.Background(), domain.Book{Title: "  Dune ", Author: "Herbert", Copies: 3})
	if err != nil {
		t.Fatalf("add book: %v", err)
	}
	if saved.ID == "" || saved.Title != "Dune" {
		t.Fatalf("unexpected saved book %+v", saved)
	}
	if lib.count("create book") != 1 || lib.count("books") != 1 {
		t.Fatalf("expected one create and one re-fetch, got %v", lib.calls)
	}
	s := d.State()
	if _, ok := s.Catalog.Book(saved.ID); !ok {
		t.Fatalf("new book missing from refreshed catalog")
	}
	if !strings.HasPrefix(s.Notice.Text, "Book added: Dune") {
		t.Fatalf("unexpected notice %q", s.Notice.Text)
	}
}

func TestUpdateAndDeleteBook(t *testing.T) {
	lib := newFakeLibrary()
	d := newTestDesk(lib)
	ctx := context.Background()

	if _, err := d.UpdateBook(ctx, domain.Book{Title: "x", Author: "y"}); Classify(err) != KindValidation {
		t.Fatalf("update without id should fail validation, got %v", err)
	}
	if _, err := d.UpdateBook(ctx, domain.Book{ID: "b1", Title: "Peak of Eloquence", Author: "Sharif al-Radi", Copies: 2}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if b, _ := d.State().Catalog.Book("b1"); b.Title != "Peak of Eloquence" {
		t.Fatalf("catalog not refreshed after update: %+v", b)
	}

	if err := d.DeleteBook(ctx, "missing"); Classify(err) != KindRejected {
		t.Fatalf("expected backend rejection, got %v", err)
	}
	if !strings.Contains(d.State().Notice.Text, "Delete book failed: book not found") {
		t.Fatalf("unexpected notice %q", d.State().Notice.Text)
	}
	if err := d.DeleteBook(ctx, "b1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := d.State().Catalog.Book("b1"); ok {
		t.Fatalf("deleted book still in catalog")
	}
	if d.State().Notice.Text != "Book deleted: b1" {
		t.Fatalf("unexpected notice %q", d.State().Notice.Text)
	}
}

func TestMemberLifecycle(t *testing.T) {
	lib := newFakeLibrary()
	d := newTestDesk(lib)
	ctx := context.Background()

	if _, err := d.AddMember(ctx, domain.Member{Email: "x@example.org"}); Classify(err) != KindValidation {
		t.Fatalf("expected name validation, got %v", err)
	}
	if lib.count("create member") != 0 {
		t.Fatalf("validation failure must not call the backend")
	}
	m, err := d.AddMember(ctx, domain.Member{Name: "Zainab", Phone: "0300"})
	if err != nil {
		t.Fatalf("add member: %v", err)
	}
	if _, ok := d.State().Catalog.Member(m.ID); !ok {
		t.Fatalf("new member missing from catalog")
	}
	m.Phone = "0311"
	if _, err := d.UpdateMember(ctx, m); err != nil {
		t.Fatalf("update member: %v", err)
	}
	if got, _ := d.State().Catalog.Member(m.ID); got.Phone != "0311" {
		t.Fatalf("member not updated: %+v", got)
	}
	if err := d.DeleteMember(ctx, " "); Classify(err) != KindValidation {
		t.Fatalf("expected validation for empty id, got %v", err)
	}
	if err := d.DeleteMember(ctx, m.ID); err != nil {
		t.Fatalf("delete member: %v", err)
	}
	if _, ok := d.State().Catalog.Member(m.ID); ok {
		t.Fatalf("deleted member still in catalog")
	}
}

func TestSaveFailureKeepsCatalogAndReportsBackend(t *testing.T) {
	lib := newFakeLibrary()
	lib.saveErr = &libraryclient.APIError{Status: 409, Message: "member has books on loan", Code: "MEMBER_HAS_LOANS"}
	d := newTestDesk(lib)

	if err := d.DeleteMember(context.Background(), "M1"); err == nil {
		t.Fatalf("expected delete failure")
	}
	if got := d.State().Notice.Text; got != "Delete member failed: member has books on loan" {
		t.Fatalf("unexpected notice %q", got)
	}
	if lib.count("members") != 0 {
		t.Fatalf("failed mutation must not re-fetch")
	}
}

func TestHolderQueriesTransactions(t *testing.T) {
	lib := newFakeLibrary()
	lib.txs = []domain.Transaction{
		{ID: "t1", BookID: "b1", MemberID: "M1", Status: domain.StatusIssued},
		{ID: "t0", BookID: "b1", MemberID: "M9", Status: domain.StatusReturned},
	}
	d := newTestDesk(lib)

	loans, err := d.Holder(context.Background(), "b1")
	if err != nil {
		t.Fatalf("holder: %v", err)
	}
	if len(loans) != 1 || loans[0].MemberID != "M1" {
		t.Fatalf("unexpected holder %+v", loans)
	}

	lib.version = libraryclient.VersionLegacy
	if _, err := d.Holder(context.Background(), "b1"); !errors.Is(err, ErrLoansUnknown) {
		t.Fatalf("expected loans unknown on legacy backend, got %v", err)
	}
}

func TestSearchUsesBackendThenFallsBack(t *testing.T) {
	lib := newFakeLibrary()
	lib.books = append(lib.books, domain.Book{ID: "b2", Title: "Emma", Author: "Austen"})
	d := newTestDesk(lib)
	q := filter.Query{Text: "austen", Field: filter.FieldAuthor}

	got, err := d.Search(context.Background(), q)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 1 || got[0].ID != "b2" || lib.count("books") != 0 {
		t.Fatalf("expected backend search only, got %+v calls %v", got, lib.calls)
	}
	if d.State().BookQuery != q {
		t.Fatalf("search should become the current book query")
	}

	lib.version = libraryclient.VersionLegacy
	got, err = d.Search(context.Background(), q)
	if err != nil {
		t.Fatalf("legacy search: %v", err)
	}
	if len(got) != 1 || got[0].ID != "b2" || lib.count("books") != 1 {
		t.Fatalf("expected local filter over a fresh catalog, got %+v calls %v", got, lib.calls)
	}
}
