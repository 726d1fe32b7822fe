package store

import (
	"time"

	"gorm.io/datatypes"

	"librarydesk/pkg/domain"
)

// GORM models used for persistence.
type BookModel struct {
	ID          string `gorm:"primaryKey"`
	Title       string `gorm:"not null;index"`
	Author      string `gorm:"not null;index"`
	Edition     string
	Language    string
	Volume      string
	Section     string
	Category    string
	ShelfNumber string
	Copies      int       `gorm:"not null;default:0"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

type MemberModel struct {
	ID         string `gorm:"primaryKey"`
	Name       string `gorm:"not null;index"`
	FatherName string
	Address    string
	Email      string `gorm:"index"`
	Phone      string
	CreatedAt  time.Time `gorm:"not null"`
	UpdatedAt  time.Time `gorm:"not null"`
}

type TransactionModel struct {
	ID         string `gorm:"primaryKey"`
	BookID     string `gorm:"not null;index:idx_tx_book_status"`
	MemberID   string `gorm:"not null;index"`
	BookTitle  string
	IssueDate  time.Time      `gorm:"not null;index"`
	DueDate    datatypes.Date `gorm:"not null"`
	ReturnDate *time.Time
	Status     string `gorm:"not null;index:idx_tx_book_status"`
	Fine       int64  `gorm:"not null;default:0"`
}

func bookToModel(b domain.Book) BookModel {
	return BookModel{
		ID:          b.ID,
		Title:       b.Title,
		Author:      b.Author,
		Edition:     b.Edition,
		Language:    b.Language,
		Volume:      b.Volume,
		Section:     b.Section,
		Category:    b.Category,
		ShelfNumber: b.ShelfNumber,
		Copies:      b.Copies,
	}
}

func bookFromModel(m BookModel) domain.Book {
	return domain.Book{
		ID:          m.ID,
		Title:       m.Title,
		Author:      m.Author,
		Edition:     m.Edition,
		Language:    m.Language,
		Volume:      m.Volume,
		Section:     m.Section,
		Category:    m.Category,
		ShelfNumber: m.ShelfNumber,
		Copies:      m.Copies,
	}
}

func memberToModel(m domain.Member) MemberModel {
	return MemberModel{
		ID:         m.ID,
		Name:       m.Name,
		FatherName: m.FatherName,
		Address:    m.Address,
		Email:      m.Email,
		Phone:      m.Phone,
	}
}

func memberFromModel(m MemberModel) domain.Member {
	return domain.Member{
		ID:         m.ID,
		Name:       m.Name,
		FatherName: m.FatherName,
		Address:    m.Address,
		Email:      m.Email,
		Phone:      m.Phone,
	}
}

func transactionToModel(t domain.Transaction) TransactionModel {
	return TransactionModel{
		ID:         t.ID,
		BookID:     t.BookID,
		MemberID:   t.MemberID,
		BookTitle:  t.BookTitle,
		IssueDate:  t.IssueDate.UTC(),
		DueDate:    datatypes.Date(t.DueDate.UTC()),
		ReturnDate: t.ReturnDate,
		Status:     string(t.Status),
		Fine:       t.Fine,
	}
}

func transactionFromModel(m TransactionModel) domain.Transaction {
	tx := domain.Transaction{
		ID:        m.ID,
		BookID:    m.BookID,
		MemberID:  m.MemberID,
		BookTitle: m.BookTitle,
		IssueDate: m.IssueDate.UTC(),
		DueDate:   time.Time(m.DueDate).UTC(),
		Status:    domain.TransactionStatus(m.Status),
		Fine:      m.Fine,
	}
	if m.ReturnDate != nil {
		returned := m.ReturnDate.UTC()
		tx.ReturnDate = &returned
	}
	return tx
}
