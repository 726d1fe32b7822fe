package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"librarydesk/pkg/domain"
	"librarydesk/services/desk/internal/desk"
)

// ask prints label and reads one line. ok is false on end of input.
func (s *shell) ask(label, current string) (string, bool) {
	if current != "" {
		fmt.Fprintf(s.out, "%s [%s]: ", label, current)
	} else {
		fmt.Fprintf(s.out, "%s: ", label)
	}
	if !s.in.Scan() {
		return "", false
	}
	v := strings.TrimSpace(s.in.Text())
	if v == "" {
		return current, true
	}
	return v, true
}

// askBook fills the book fields, keeping base values for empty answers.
func (s *shell) askBook(base domain.Book) (domain.Book, bool) {
	fields := []struct {
		label string
		dst   *string
	}{
		{"Title", &base.Title},
		{"Author", &base.Author},
		{"Edition", &base.Edition},
		{"Language", &base.Language},
		{"Volume", &base.Volume},
		{"Section", &base.Section},
		{"Category", &base.Category},
		{"Shelf number", &base.ShelfNumber},
	}
	for _, f := range fields {
		v, ok := s.ask(f.label, *f.dst)
		if !ok {
			return base, false
		}
		*f.dst = v
	}
	raw, ok := s.ask("Copies", strconv.Itoa(base.Copies))
	if !ok {
		return base, false
	}
	copies, err := strconv.Atoi(raw)
	if err != nil {
		fmt.Fprintf(s.out, "Invalid copies: %s\n", raw)
		return base, false
	}
	base.Copies = copies
	return base, true
}

func (s *shell) askMember(base domain.Member) (domain.Member, bool) {
	fields := []struct {
		label string
		dst   *string
	}{
		{"Name", &base.Name},
		{"Father's name", &base.FatherName},
		{"Address", &base.Address},
		{"Email", &base.Email},
		{"Phone", &base.Phone},
	}
	for _, f := range fields {
		v, ok := s.ask(f.label, *f.dst)
		if !ok {
			return base, false
		}
		*f.dst = v
	}
	return base, true
}

func (s *shell) addBook(ctx context.Context) {
	if !s.open(desk.ViewBooks) {
		return
	}
	b, ok := s.askBook(domain.Book{Copies: 1})
	if !ok {
		return
	}
	_, _ = s.desk.AddBook(ctx, b)
	renderNotice(s.out, s.desk.State().Notice)
}

func (s *shell) editBook(ctx context.Context, args []string) {
	if !s.open(desk.ViewBooks) {
		return
	}
	if len(args) != 1 {
		fmt.Fprintln(s.out, "Usage: editbook <bookId>")
		return
	}
	base, found := s.desk.State().Catalog.Book(args[0])
	if !found {
		fmt.Fprintf(s.out, "Book %s is not in the catalog. Try 'refresh'.\n", args[0])
		return
	}
	b, ok := s.askBook(base)
	if !ok {
		return
	}
	_, _ = s.desk.UpdateBook(ctx, b)
	renderNotice(s.out, s.desk.State().Notice)
}

func (s *shell) deleteBook(ctx context.Context, args []string) {
	if !s.open(desk.ViewBooks) {
		return
	}
	if len(args) != 1 {
		fmt.Fprintln(s.out, "Usage: delbook <bookId>")
		return
	}
	_ = s.desk.DeleteBook(ctx, args[0])
	renderNotice(s.out, s.desk.State().Notice)
}

func (s *shell) addMember(ctx context.Context) {
	if !s.open(desk.ViewMembers) {
		return
	}
	m, ok := s.askMember(domain.Member{})
	if !ok {
		return
	}
	_, _ = s.desk.AddMember(ctx, m)
	renderNotice(s.out, s.desk.State().Notice)
}

func (s *shell) editMember(ctx context.Context, args []string) {
	if !s.open(desk.ViewMembers) {
		return
	}
	if len(args) != 1 {
		fmt.Fprintln(s.out, "Usage: editmember <memberId>")
		return
	}
	base, found := s.desk.State().Catalog.Member(args[0])
	if !found {
		fmt.Fprintf(s.out, "Member %s is not in the catalog. Try 'refresh'.\n", args[0])
		return
	}
	m, ok := s.askMember(base)
	if !ok {
		return
	}
	_, _ = s.desk.UpdateMember(ctx, m)
	renderNotice(s.out, s.desk.State().Notice)
}

func (s *shell) deleteMember(ctx context.Context, args []string) {
	if !s.open(desk.ViewMembers) {
		return
	}
	if len(args) != 1 {
		fmt.Fprintln(s.out, "Usage: delmember <memberId>")
		return
	}
	_ = s.desk.DeleteMember(ctx, args[0])
	renderNotice(s.out, s.desk.State().Notice)
}

func (s *shell) holder(ctx context.Context, args []string) {
	if !s.open(desk.ViewLoans) {
		return
	}
	if len(args) != 1 {
		fmt.Fprintln(s.out, "Usage: holder <bookId>")
		return
	}
	loans, err := s.desk.Holder(ctx, args[0])
	switch {
	case errors.Is(err, desk.ErrLoansUnknown):
		fmt.Fprintln(s.out, "This library service does not list loans.")
	case err != nil:
		renderNotice(s.out, s.desk.State().Notice)
	case len(loans) == 0:
		fmt.Fprintf(s.out, "Book %s is not on loan.\n", args[0])
	default:
		renderLoans(s.out, loans)
	}
}
