package desk

import (
	"context"
	"errors"
	"strings"

	"librarydesk/internal/util"
	"librarydesk/pkg/domain"
	"librarydesk/pkg/filter"
	"librarydesk/services/desk/internal/libraryclient"
)

// AddBook creates b on the backend. Title and author are required and copies
// may not be negative; failures here make no call.
func (d *Desk) AddBook(ctx context.Context, b domain.Book) (domain.Book, error) {
	b = trimBook(b)
	b.ID = ""
	return d.saveBook(ctx, "add book", b, true)
}

// UpdateBook replaces the editable fields of an existing book.
func (d *Desk) UpdateBook(ctx context.Context, b domain.Book) (domain.Book, error) {
	b = trimBook(b)
	if b.ID == "" {
		return d.rejectBook("update book", &ValidationError{Field: "book id"})
	}
	return d.saveBook(ctx, "update book", b, false)
}

func (d *Desk) saveBook(ctx context.Context, op string, b domain.Book, created bool) (domain.Book, error) {
	if verr := validateBook(b); verr != nil {
		return d.rejectBook(op, verr)
	}
	var (
		saved domain.Book
		err   error
	)
	if created {
		saved, err = d.lib.CreateBook(ctx, b)
	} else {
		saved, err = d.lib.UpdateBook(ctx, b)
	}
	if err != nil {
		return d.rejectBook(op, d.logFailure(ctx, op, err))
	}
	d.Dispatch(BookSaved{Book: saved, Created: created})
	d.refreshAfter(ctx, op)
	return saved, nil
}

func (d *Desk) rejectBook(op string, err error) (domain.Book, error) {
	d.Dispatch(RequestFailed{Op: op, Err: err})
	return domain.Book{}, err
}

// DeleteBook removes a book. The backend refuses while copies are on loan.
func (d *Desk) DeleteBook(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		err := &ValidationError{Field: "book id"}
		d.Dispatch(RequestFailed{Op: "delete book", Err: err})
		return err
	}
	if err := d.lib.DeleteBook(ctx, id); err != nil {
		d.Dispatch(RequestFailed{Op: "delete book", Err: d.logFailure(ctx, "delete book", err)})
		return err
	}
	d.Dispatch(BookDeleted{ID: id})
	d.refreshAfter(ctx, "delete book")
	return nil
}

// AddMember registers m on the backend. Name is required.
func (d *Desk) AddMember(ctx context.Context, m domain.Member) (domain.Member, error) {
	m = trimMember(m)
	m.ID = ""
	return d.saveMember(ctx, "add member", m, true)
}

// UpdateMember replaces the editable fields of an existing member.
func (d *Desk) UpdateMember(ctx context.Context, m domain.Member) (domain.Member, error) {
	m = trimMember(m)
	if m.ID == "" {
		return d.rejectMember("update member", &ValidationError{Field: "member id"})
	}
	return d.saveMember(ctx, "update member", m, false)
}

func (d *Desk) saveMember(ctx context.Context, op string, m domain.Member, created bool) (domain.Member, error) {
	if m.Name == "" {
		return d.rejectMember(op, &ValidationError{Field: "name"})
	}
	var (
		saved domain.Member
		err   error
	)
	if created {
		saved, err = d.lib.CreateMember(ctx, m)
	} else {
		saved, err = d.lib.UpdateMember(ctx, m)
	}
	if err != nil {
		return d.rejectMember(op, d.logFailure(ctx, op, err))
	}
	d.Dispatch(MemberSaved{Member: saved, Created: created})
	d.refreshAfter(ctx, op)
	return saved, nil
}

func (d *Desk) rejectMember(op string, err error) (domain.Member, error) {
	d.Dispatch(RequestFailed{Op: op, Err: err})
	return domain.Member{}, err
}

// DeleteMember removes a member. The backend refuses while they hold books.
func (d *Desk) DeleteMember(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		err := &ValidationError{Field: "member id"}
		d.Dispatch(RequestFailed{Op: "delete member", Err: err})
		return err
	}
	if err := d.lib.DeleteMember(ctx, id); err != nil {
		d.Dispatch(RequestFailed{Op: "delete member", Err: d.logFailure(ctx, "delete member", err)})
		return err
	}
	d.Dispatch(MemberDeleted{ID: id})
	d.refreshAfter(ctx, "delete member")
	return nil
}

// Holder asks the backend for the open loans of bookID. This reads transaction
// state, never the copies count. Legacy backends give ErrLoansUnknown.
func (d *Desk) Holder(ctx context.Context, bookID string) ([]domain.Transaction, error) {
	bookID = strings.TrimSpace(bookID)
	if bookID == "" {
		return nil, &ValidationError{Field: "book id"}
	}
	loans, err := d.lib.Holder(ctx, bookID)
	if errors.Is(err, libraryclient.ErrUnsupported) {
		return nil, ErrLoansUnknown
	}
	if err != nil {
		d.Dispatch(RequestFailed{Op: "holder lookup", Err: err})
		return nil, err
	}
	return loans, nil
}

// Search runs q on the backend when it offers search, and otherwise filters a
// freshly fetched catalog locally. The query becomes the current book query.
func (d *Desk) Search(ctx context.Context, q filter.Query) ([]domain.Book, error) {
	d.Dispatch(BookQueryChanged{Query: q})
	books, err := d.lib.Search(ctx, q.Text, string(q.Field))
	if errors.Is(err, libraryclient.ErrUnsupported) {
		if err := d.Refresh(ctx); err != nil {
			return nil, err
		}
		return filter.Apply(d.State().Catalog.Books, q), nil
	}
	if err != nil {
		d.Dispatch(RequestFailed{Op: "search", Err: err})
		return nil, err
	}
	return books, nil
}

func (d *Desk) logFailure(ctx context.Context, op string, err error) error {
	util.LoggerFromContext(ctx).Warn(op+" failed", "kind", Classify(err).String(), "err", err)
	return err
}

func validateBook(b domain.Book) error {
	switch {
	case b.Title == "":
		return &ValidationError{Field: "title"}
	case b.Author == "":
		return &ValidationError{Field: "author"}
	case b.Copies < 0:
		return &ValidationError{Field: "copies", Problem: "must not be negative"}
	}
	return nil
}

func trimBook(b domain.Book) domain.Book {
	b.ID = strings.TrimSpace(b.ID)
	b.Title = strings.TrimSpace(b.Title)
	b.Author = strings.TrimSpace(b.Author)
	b.Edition = strings.TrimSpace(b.Edition)
	b.Language = strings.TrimSpace(b.Language)
	b.Volume = strings.TrimSpace(b.Volume)
	b.Section = strings.TrimSpace(b.Section)
	b.Category = strings.TrimSpace(b.Category)
	b.ShelfNumber = strings.TrimSpace(b.ShelfNumber)
	return b
}

func trimMember(m domain.Member) domain.Member {
	m.ID = strings.TrimSpace(m.ID)
	m.Name = strings.TrimSpace(m.Name)
	m.FatherName = strings.TrimSpace(m.FatherName)
	m.Address = strings.TrimSpace(m.Address)
	m.Email = strings.TrimSpace(m.Email)
	m.Phone = strings.TrimSpace(m.Phone)
	return m
}
