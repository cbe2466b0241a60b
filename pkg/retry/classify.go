package retry

import (
	"context"
	"errors"
	"net"

	apperrors "github.com/Andre27031510/vynlo-taste-sub001/pkg/errors"
)

// ErrorKind is the retry-relevant classification of a failure.
type ErrorKind string

const (
	KindTimeout     ErrorKind = "TIMEOUT"
	KindNetwork     ErrorKind = "NETWORK"
	KindUnavailable ErrorKind = "UNAVAILABLE"
	KindTransient   ErrorKind = "TRANSIENT"
	KindDeclined    ErrorKind = "DECLINED"
	KindValidation  ErrorKind = "VALIDATION"
	KindNotFound    ErrorKind = "NOT_FOUND"
	KindConflict    ErrorKind = "CONFLICT"
	KindResource    ErrorKind = "RESOURCE"
	KindState       ErrorKind = "STATE"
	KindCanceled    ErrorKind = "CANCELED"
	KindPermanent   ErrorKind = "PERMANENT"
	KindUnknown     ErrorKind = "UNKNOWN"
)

// fatal kinds are never retried regardless of policy filters.
func (k ErrorKind) fatal() bool {
	switch k {
	case KindValidation, KindResource, KindState, KindCanceled, KindPermanent:
		return true
	default:
		return false
	}
}

// optIn kinds are retried only when a policy lists them in RetryOn.
func (k ErrorKind) optIn() bool {
	switch k {
	case KindDeclined, KindNotFound, KindConflict:
		return true
	default:
		return false
	}
}

// Kinded is implemented by errors that know their own retry kind, such as
// gateway responses.
type Kinded interface {
	RetryKind() ErrorKind
}

// Classify maps an error to its ErrorKind.
func Classify(err error) ErrorKind {
	if err == nil {
		return ""
	}

	var k Kinded
	if errors.As(err, &k) {
		return k.RetryKind()
	}

	switch {
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	}

	if appErr, ok := apperrors.As(err); ok {
		if appErr.Code == apperrors.CodePaymentDeclined {
			return KindDeclined
		}
		switch appErr.Class() {
		case apperrors.ClassValidation:
			return KindValidation
		case apperrors.ClassNotFound:
			return KindNotFound
		case apperrors.ClassConflict:
			return KindConflict
		case apperrors.ClassResource:
			return KindResource
		case apperrors.ClassState:
			return KindState
		case apperrors.ClassTransient:
			return KindTransient
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindNetwork
	}

	return KindUnknown
}

// kindError tags an error with an explicit kind.
type kindError struct {
	kind ErrorKind
	err  error
}

func (e *kindError) Error() string        { return e.err.Error() }
func (e *kindError) Unwrap() error        { return e.err }
func (e *kindError) RetryKind() ErrorKind { return e.kind }

// WithKind tags err so that Classify reports kind.
func WithKind(err error, kind ErrorKind) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: kind, err: err}
}

// Permanent marks err as not retryable under any policy.
func Permanent(err error) error {
	return WithKind(err, KindPermanent)
}
