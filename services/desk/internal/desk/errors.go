package desk

import (
	"errors"
	"strings"

	"librarydesk/services/desk/internal/libraryclient"
)

// Kind is the coarse failure class shown to the operator. No kind is retried.
type Kind int

const (
	// KindNetwork covers connectivity failures and timeouts.
	KindNetwork Kind = iota
	// KindValidation is a missing input caught before any call.
	KindValidation
	// KindRejected is a backend refusal such as no copies or no open loan.
	KindRejected
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindRejected:
		return "rejected"
	default:
		return "network"
	}
}

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrLoansUnknown means the backend version does not expose transactions.
	ErrLoansUnknown = errors.New("loan list not available from this backend")
)

// ValidationError names the input that failed a client-side check.
// An empty Problem means the field was required and empty.
type ValidationError struct {
	Field   string
	Problem string
}

func (e *ValidationError) Error() string {
	if e.Problem == "" {
		return e.Field + " is required"
	}
	return e.Field + " " + e.Problem
}

// Classify sorts err into one of the three failure kinds.
func Classify(err error) Kind {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return KindValidation
	}
	var apiErr *libraryclient.APIError
	if errors.As(err, &apiErr) || errors.Is(err, libraryclient.ErrUnsupported) {
		return KindRejected
	}
	return KindNetwork
}

// FailureMessage is the generic notice for a failed op, with the backend's own
// message appended when there is one.
func FailureMessage(op string, err error) string {
	msg := strings.TrimSpace(op)
	if msg == "" {
		msg = "request"
	}
	msg = strings.ToUpper(msg[:1]) + msg[1:] + " failed"
	if err == nil {
		return msg
	}
	switch Classify(err) {
	case KindValidation:
		return msg + ": " + err.Error()
	case KindRejected:
		var apiErr *libraryclient.APIError
		if errors.As(err, &apiErr) && apiErr.Message != "" {
			return msg + ": " + apiErr.Message
		}
		return msg + ": " + err.Error()
	default:
		return msg + ": could not reach the library service"
	}
}
