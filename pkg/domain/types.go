package domain

import (
	"strconv"
	"time"
)

type TransactionStatus string

const (
	StatusIssued   TransactionStatus = "Issued"
	StatusReturned TransactionStatus = "Returned"
)

// Book is a catalog entry. Copies counts the copies currently on the shelf.
type Book struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Author      string `json:"author"`
	Edition     string `json:"edition,omitempty"`
	Language    string `json:"language,omitempty"`
	Volume      string `json:"volume,omitempty"`
	Section     string `json:"section,omitempty"`
	Category    string `json:"category,omitempty"`
	ShelfNumber string `json:"shelfNumber,omitempty"`
	Copies      int    `json:"copies"`
}

// Available reports whether at least one copy is on the shelf.
// It is a display hint; open transactions are the authority on who holds a book.
func (b Book) Available() bool { return b.Copies > 0 }

// SearchFields returns every attribute rendered as a string.
func (b Book) SearchFields() []string {
	return []string{
		b.ID, b.Title, b.Author, b.Edition, b.Language, b.Volume,
		b.Section, b.Category, b.ShelfNumber, strconv.Itoa(b.Copies),
	}
}

func (b Book) SearchTitle() string  { return b.Title }
func (b Book) SearchAuthor() string { return b.Author }

type Member struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	FatherName string `json:"fatherName,omitempty"`
	Address    string `json:"address,omitempty"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
}

func (m Member) SearchFields() []string {
	return []string{m.ID, m.Name, m.FatherName, m.Address, m.Email, m.Phone}
}

func (m Member) SearchTitle() string { return m.Name }

// Transaction records one loan of one copy. Fine is in whole currency units.
type Transaction struct {
	ID         string            `json:"id"`
	BookID     string            `json:"bookId"`
	MemberID   string            `json:"memberId"`
	BookTitle  string            `json:"bookTitle"`
	IssueDate  time.Time         `json:"issueDate"`
	DueDate    time.Time         `json:"dueDate"`
	ReturnDate *time.Time        `json:"returnDate"`
	Status     TransactionStatus `json:"status"`
	Fine       int64             `json:"fine"`
}

// Open reports whether the loan has not been returned yet.
func (t Transaction) Open() bool { return t.Status == StatusIssued }
