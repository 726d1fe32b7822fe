package desk

import (
	"librarydesk/pkg/domain"
	"librarydesk/pkg/filter"
	"librarydesk/pkg/fine"
	"librarydesk/services/desk/internal/catalog"
)

// View is the screen the desk is showing.
type View string

const (
	ViewPublic    View = "public"
	ViewDashboard View = "dashboard"
	ViewBooks     View = "books"
	ViewMembers   View = "members"
	ViewIssue     View = "issue"
	ViewReturn    View = "return"
	ViewLoans     View = "loans"
)

// adminOnly reports whether v needs the credential gate.
func (v View) adminOnly() bool {
	return v != ViewPublic
}

type NoticeLevel int

const (
	NoticeNone NoticeLevel = iota
	NoticeInfo
	NoticeSuccess
	NoticeError
)

// Notice is the one message the desk shows after an action.
type Notice struct {
	Level NoticeLevel
	Text  string
}

type IssueForm struct {
	BookID   string
	MemberID string
	Days     int
}

// MemberID on a return is optional.
type ReturnForm struct {
	BookID   string
	MemberID string
}

// State is the whole desk view state. Reduce returns a new value for every
// transition; nothing mutates a State in place.
type State struct {
	View        View
	Admin       bool
	Currency    string
	Catalog     catalog.Snapshot
	BookQuery   filter.Query
	MemberQuery filter.Query
	Page        int
	IssueForm   IssueForm
	ReturnForm  ReturnForm
	Notice      Notice
	// LastFine is the fine from the most recent return, or -1 before any return.
	LastFine int64
}

// InitialState is the logged-out public view.
func InitialState(currency string) State {
	return State{View: ViewPublic, Currency: currency, LastFine: -1}
}

// Action is a discrete desk event.
type Action interface {
	isAction()
}

type (
	Navigate           struct{ View View }
	LoginSucceeded     struct{}
	LoginRejected      struct{}
	Logout             struct{}
	CatalogLoaded      struct{ Snapshot catalog.Snapshot }
	BookQueryChanged   struct{ Query filter.Query }
	MemberQueryChanged struct{ Query filter.Query }
	PageChanged        struct{ Page int }
	IssueFormChanged   struct{ Form IssueForm }
	ReturnFormChanged  struct{ Form ReturnForm }
	IssueCompleted     struct{ Transaction domain.Transaction }
	ReturnCompleted    struct {
		Fine        int64
		Transaction domain.Transaction
	}
	RequestFailed struct {
		Op  string
		Err error
	}
)

// RefreshFailed follows a successful mutation whose catalog re-fetch failed.
type RefreshFailed struct{ After string }

type BookSaved struct {
	Book    domain.Book
	Created bool
}

type BookDeleted struct{ ID string }

type MemberSaved struct {
	Member  domain.Member
	Created bool
}

type MemberDeleted struct{ ID string }

func (Navigate) isAction()           {}
func (LoginSucceeded) isAction()     {}
func (LoginRejected) isAction()      {}
func (Logout) isAction()             {}
func (CatalogLoaded) isAction()      {}
func (BookQueryChanged) isAction()   {}
func (MemberQueryChanged) isAction() {}
func (PageChanged) isAction()        {}
func (IssueFormChanged) isAction()   {}
func (ReturnFormChanged) isAction()  {}
func (IssueCompleted) isAction()     {}
func (ReturnCompleted) isAction()    {}
func (RequestFailed) isAction()      {}
func (RefreshFailed) isAction()      {}
func (BookSaved) isAction()          {}
func (BookDeleted) isAction()        {}
func (MemberSaved) isAction()        {}
func (MemberDeleted) isAction()      {}

// Reduce applies a to s. It has no side effects; network calls happen in Desk.
func Reduce(s State, a Action) State {
	switch a := a.(type) {
	case Navigate:
		if a.View.adminOnly() && !s.Admin {
			s.Notice = Notice{Level: NoticeError, Text: "Please log in as admin first"}
			return s
		}
		s.View = a.View
		s.Page = 0
		s.Notice = Notice{}
	case LoginSucceeded:
		s.Admin = true
		s.View = ViewDashboard
		s.Notice = Notice{Level: NoticeSuccess, Text: "Logged in"}
	case LoginRejected:
		s.Notice = Notice{Level: NoticeError, Text: "Invalid username or password"}
	case Logout:
		next := InitialState(s.Currency)
		next.Catalog = s.Catalog
		next.Notice = Notice{Level: NoticeInfo, Text: "Logged out"}
		return next
	case CatalogLoaded:
		s.Catalog = a.Snapshot
	case BookQueryChanged:
		s.BookQuery = a.Query
		s.Page = 0
	case MemberQueryChanged:
		s.MemberQuery = a.Query
		s.Page = 0
	case PageChanged:
		s.Page = max(a.Page, 0)
	case IssueFormChanged:
		s.IssueForm = a.Form
	case ReturnFormChanged:
		s.ReturnForm = a.Form
	case IssueCompleted:
		s.IssueForm = IssueForm{}
		text := "Book issued"
		if !a.Transaction.DueDate.IsZero() {
			text += ", due " + a.Transaction.DueDate.Format("2006-01-02")
		}
		s.Notice = Notice{Level: NoticeSuccess, Text: text}
	case ReturnCompleted:
		s.ReturnForm = ReturnForm{}
		s.LastFine = a.Fine
		s.Notice = Notice{Level: NoticeSuccess, Text: "Book returned. " + FineNotice(a.Fine, s.Currency)}
	case RequestFailed:
		s.Notice = Notice{Level: NoticeError, Text: FailureMessage(a.Op, a.Err)}
	case BookSaved:
		verb := "updated"
		if a.Created {
			verb = "added"
		}
		s.Notice = Notice{Level: NoticeSuccess, Text: "Book " + verb + ": " + a.Book.Title + " (" + a.Book.ID + ")"}
	case BookDeleted:
		s.Notice = Notice{Level: NoticeSuccess, Text: "Book deleted: " + a.ID}
	case MemberSaved:
		verb := "updated"
		if a.Created {
			verb = "added"
		}
		s.Notice = Notice{Level: NoticeSuccess, Text: "Member " + verb + ": " + a.Member.Name + " (" + a.Member.ID + ")"}
	case MemberDeleted:
		s.Notice = Notice{Level: NoticeSuccess, Text: "Member deleted: " + a.ID}
	case RefreshFailed:
		if s.Notice.Text == "" {
			s.Notice = Notice{Level: NoticeError, Text: "Catalog refresh failed"}
		} else {
			s.Notice.Text += " (catalog refresh failed)"
		}
	}
	return s
}

// FineNotice renders a returned fine: "No fine" for zero, a late-fee banner otherwise.
func FineNotice(amount int64, currency string) string {
	return fine.Format(amount, currency)
}
