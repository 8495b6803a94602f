package uploader

import (
	"errors"
	"fmt"

	"github.com/fruitstock/sav-uploader/internal/graph"
)

// Kind classifies an upload failure by the step that produced it.
type Kind int

const (
	KindUnexpected Kind = iota
	KindAuthentication
	KindFolderAccess
	KindUpload
	KindShareLink
)

func (k Kind) String() string {
	switch k {
	case KindAuthentication:
		return "authentication"
	case KindFolderAccess:
		return "folder_access"
	case KindUpload:
		return "upload"
	case KindShareLink:
		return "share_link"
	default:
		return "unexpected"
	}
}

// Sentinels matched by (*Error).Is, one per Kind.
// Use errors.Is(err, uploader.ErrUpload) to check.
var (
	ErrAuthentication = errors.New("uploader: authentication failed")
	ErrFolderAccess   = errors.New("uploader: folder access failed")
	ErrUpload         = errors.New("uploader: upload failed")
	ErrShareLink      = errors.New("uploader: share link creation failed")
	ErrUnexpected     = errors.New("uploader: unexpected failure")
)

func (k Kind) sentinel() error {
	switch k {
	case KindAuthentication:
		return ErrAuthentication
	case KindFolderAccess:
		return ErrFolderAccess
	case KindUpload:
		return ErrUpload
	case KindShareLink:
		return ErrShareLink
	default:
		return ErrUnexpected
	}
}

// Error is a classified upload failure. Provider fields are copied from the
// underlying Graph or identity provider error when one is in the chain.
type Error struct {
	Kind           Kind
	Op             string // step that failed, e.g. "ensure folder"
	Message        string
	ProviderStatus int    // HTTP status from the provider, 0 when none
	ProviderCode   string // e.g. "itemNotFound", "invalid_client"
	ProviderBody   string
	RequestID      string
	Err            error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("uploader: %s: %s", e.Op, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for e's Kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// KindOf returns the Kind of the first *Error in err's chain, or
// KindUnexpected when there is none.
func KindOf(err error) Kind {
	var ue *Error
	if errors.As(err, &ue) {
		return ue.Kind
	}

	return KindUnexpected
}

// newError builds a classified error and lifts provider details out of err.
func newError(kind Kind, op, message string, err error) *Error {
	e := &Error{Kind: kind, Op: op, Message: message, Err: err}

	var ge *graph.GraphError
	if errors.As(err, &ge) {
		e.ProviderStatus = ge.StatusCode
		e.ProviderCode = ge.Code
		e.ProviderBody = ge.Message
		e.RequestID = ge.RequestID

		return e
	}

	if status, code, desc := graph.AuthErrorDetails(err); status != 0 || code != "" {
		e.ProviderStatus = status
		e.ProviderCode = code
		e.ProviderBody = desc
	}

	return e
}
