package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"librarydesk/pkg/filter"
	"librarydesk/services/desk/internal/desk"
)

type shell struct {
	desk         *desk.Desk
	in           *bufio.Scanner
	out          io.Writer
	adminUser    string
	readPassword func(prompt string) (string, error)
}

const shellHelp = `Commands:
  Catalog:     books, search [title|author] <text>, page <n>, refresh
  Admin:       login [username], logout, members [text], loans, holder <bookId>
  Books:       addbook, editbook <bookId>, delbook <bookId>
  Members:     addmember, editmember <memberId>, delmember <memberId>
  Circulation: issue <bookId> <memberId> [days], return <bookId> [memberId]
  System:      help, exit`

func (s *shell) run(ctx context.Context) error {
	fmt.Fprintln(s.out, "Library circulation desk. Type 'help' for commands.")
	for {
		fmt.Fprint(s.out, "\n> ")
		if !s.in.Scan() {
			return s.in.Err()
		}
		fields := strings.Fields(s.in.Text())
		if len(fields) == 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		cmd, args := strings.ToLower(fields[0]), fields[1:]
		switch cmd {
		case "exit", "quit":
			fmt.Fprintln(s.out, "Goodbye!")
			return nil
		case "help":
			fmt.Fprintln(s.out, shellHelp)
		case "login":
			s.login(ctx, args)
		case "logout":
			s.desk.Logout()
			renderNotice(s.out, s.desk.State().Notice)
		case "books":
			s.books()
		case "search":
			s.search(args)
		case "page":
			s.page(args)
		case "refresh":
			if err := s.desk.Refresh(ctx); err == nil {
				fmt.Fprintf(s.out, "Catalog refreshed: %d books, %d members\n",
					len(s.desk.State().Catalog.Books), len(s.desk.State().Catalog.Members))
			} else {
				renderNotice(s.out, s.desk.State().Notice)
			}
		case "members":
			s.members(args)
		case "loans":
			s.loans()
		case "holder":
			s.holder(ctx, args)
		case "addbook":
			s.addBook(ctx)
		case "editbook":
			s.editBook(ctx, args)
		case "delbook":
			s.deleteBook(ctx, args)
		case "addmember":
			s.addMember(ctx)
		case "editmember":
			s.editMember(ctx, args)
		case "delmember":
			s.deleteMember(ctx, args)
		case "issue":
			s.issue(ctx, args)
		case "return":
			s.returnBook(ctx, args)
		default:
			fmt.Fprintln(s.out, "Unknown command. Type 'help' for the list.")
		}
	}
}

// open navigates to v and reports whether the gate let it through.
func (s *shell) open(v desk.View) bool {
	state := s.desk.Dispatch(desk.Navigate{View: v})
	if state.View != v {
		renderNotice(s.out, state.Notice)
		return false
	}
	return true
}

func (s *shell) login(ctx context.Context, args []string) {
	username := s.adminUser
	if len(args) > 0 {
		username = args[0]
	}
	password, err := s.readPassword(fmt.Sprintf("Password for %s: ", username))
	if err != nil {
		fmt.Fprintf(s.out, "Error reading password: %v\n", err)
		return
	}
	_ = s.desk.Login(ctx, username, password)
	renderNotice(s.out, s.desk.State().Notice)
}

func (s *shell) books() {
	if s.desk.State().Admin && !s.open(desk.ViewBooks) {
		return
	}
	renderBooks(s.out, s.desk.VisibleBooks(), s.desk.State().Catalog)
}

func (s *shell) search(args []string) {
	q := filter.Query{Field: filter.FieldAny}
	if len(args) > 1 {
		if f := filter.ParseField(args[0]); f != filter.FieldAny {
			q.Field = f
			args = args[1:]
		}
	}
	q.Text = strings.Join(args, " ")
	s.desk.Dispatch(desk.BookQueryChanged{Query: q})
	renderBooks(s.out, s.desk.VisibleBooks(), s.desk.State().Catalog)
}

func (s *shell) page(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(s.out, "Usage: page <n>")
		return
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 {
		fmt.Fprintf(s.out, "Invalid page: %s\n", args[0])
		return
	}
	s.desk.Dispatch(desk.PageChanged{Page: n - 1})
	renderBooks(s.out, s.desk.VisibleBooks(), s.desk.State().Catalog)
}

func (s *shell) members(args []string) {
	if !s.open(desk.ViewMembers) {
		return
	}
	s.desk.Dispatch(desk.MemberQueryChanged{Query: filter.Query{Text: strings.Join(args, " ")}})
	renderMembers(s.out, s.desk.VisibleMembers())
}

func (s *shell) loans() {
	if !s.open(desk.ViewLoans) {
		return
	}
	loans, err := s.desk.OpenLoans()
	if errors.Is(err, desk.ErrLoansUnknown) {
		fmt.Fprintln(s.out, "This library service does not list loans.")
		return
	}
	renderLoans(s.out, loans)
}

func (s *shell) issue(ctx context.Context, args []string) {
	if !s.open(desk.ViewIssue) {
		return
	}
	form := desk.IssueForm{}
	if len(args) > 0 {
		form.BookID = args[0]
	}
	if len(args) > 1 {
		form.MemberID = args[1]
	}
	if len(args) > 2 {
		days, err := strconv.Atoi(args[2])
		if err != nil || days < 1 {
			fmt.Fprintf(s.out, "Invalid days: %s\n", args[2])
			return
		}
		form.Days = days
	}
	s.desk.SetIssueForm(form)
	_, _ = s.desk.Issue(ctx)
	renderNotice(s.out, s.desk.State().Notice)
}

func (s *shell) returnBook(ctx context.Context, args []string) {
	if !s.open(desk.ViewReturn) {
		return
	}
	form := desk.ReturnForm{}
	if len(args) > 0 {
		form.BookID = args[0]
	}
	if len(args) > 1 {
		form.MemberID = args[1]
	}
	s.desk.SetReturnForm(form)
	_, _ = s.desk.Return(ctx)
	renderNotice(s.out, s.desk.State().Notice)
}
