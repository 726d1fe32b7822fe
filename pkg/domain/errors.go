package domain

import "errors"

var (
	ErrBookNotFound      = errors.New("book not found")
	ErrMemberNotFound    = errors.New("member not found")
	ErrNoCopiesAvailable = errors.New("no copies available")
	// ErrLoanNotFound means the book is unknown or not currently issued (to that member).
	ErrLoanNotFound   = errors.New("book not found or not currently issued")
	ErrBookOnLoan     = errors.New("book has copies on loan")
	ErrMemberHasLoans = errors.New("member has books on loan")
)
