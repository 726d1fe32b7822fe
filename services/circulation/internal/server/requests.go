package server

import (
	"strings"

	"librarydesk/pkg/domain"
)

type bookRequest struct {
	Title       string `json:"title" validate:"required,max=500"`
	Author      string `json:"author" validate:"required,max=300"`
	Edition     string `json:"edition" validate:"max=100"`
	Language    string `json:"language" validate:"max=100"`
	Volume      string `json:"volume" validate:"max=100"`
	Section     string `json:"section" validate:"max=100"`
	Category    string `json:"category" validate:"max=100"`
	ShelfNumber string `json:"shelfNumber" validate:"max=100"`
	Copies      int    `json:"copies" validate:"min=0"`
}

func (r bookRequest) toDomain() domain.Book {
	return domain.Book{
		Title:       strings.TrimSpace(r.Title),
		Author:      strings.TrimSpace(r.Author),
		Edition:     strings.TrimSpace(r.Edition),
		Language:    strings.TrimSpace(r.Language),
		Volume:      strings.TrimSpace(r.Volume),
		Section:     strings.TrimSpace(r.Section),
		Category:    strings.TrimSpace(r.Category),
		ShelfNumber: strings.TrimSpace(r.ShelfNumber),
		Copies:      r.Copies,
	}
}

type memberRequest struct {
	Name       string `json:"name" validate:"required,max=300"`
	FatherName string `json:"fatherName" validate:"max=300"`
	Address    string `json:"address" validate:"max=500"`
	Email      string `json:"email" validate:"omitempty,email"`
	Phone      string `json:"phone" validate:"max=50"`
}

func (r memberRequest) toDomain() domain.Member {
	return domain.Member{
		Name:       strings.TrimSpace(r.Name),
		FatherName: strings.TrimSpace(r.FatherName),
		Address:    strings.TrimSpace(r.Address),
		Email:      strings.TrimSpace(r.Email),
		Phone:      strings.TrimSpace(r.Phone),
	}
}

// Days is optional. Zero means the configured loan period.
type issueRequest struct {
	BookID   string `json:"bookId" validate:"required"`
	MemberID string `json:"memberId" validate:"required"`
	Days     int    `json:"days" validate:"omitempty,min=1,max=365"`
}

// MemberID is optional and narrows which open loan is closed.
type returnRequest struct {
	BookID   string `json:"bookId" validate:"required"`
	MemberID string `json:"memberId"`
}

type issueResponse struct {
	Status      string             `json:"status"`
	Transaction domain.Transaction `json:"transaction"`
}

type returnResponse struct {
	Fine        int64              `json:"fine"`
	Transaction domain.Transaction `json:"transaction"`
}
