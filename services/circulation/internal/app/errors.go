package app

import "errors"

var (
	// ErrInvalidLoanDays is returned when an explicit loan period is outside 1..MaxLoanDays.
	ErrInvalidLoanDays = errors.New("loan days must be between 1 and 365")
	// ErrTitleRequired and ErrNameRequired guard catalog writes.
	ErrTitleRequired = errors.New("title and author are required")
	ErrNameRequired  = errors.New("member name is required")
	// ErrNegativeCopies rejects a stock count below zero.
	ErrNegativeCopies = errors.New("copies must be >= 0")
	ErrIDRequired     = errors.New("bookId and memberId are required")
	ErrBookIDRequired = errors.New("bookId is required")
)
