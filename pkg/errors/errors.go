package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Code is a stable, machine-readable error identifier. The set of codes is
// closed: every domain error in the service is built from one of the
// constants below so that the API layer can map codes uniformly.
type Code string

const (
	CodeInvalidInput           Code = "INVALID_INPUT"
	CodeOrderValidation        Code = "ORDER_VALIDATION_ERROR"
	CodeOrderNotFound          Code = "ORDER_NOT_FOUND"
	CodeProductNotFound        Code = "PRODUCT_NOT_FOUND"
	CodeProductAlreadyExists   Code = "PRODUCT_ALREADY_EXISTS"
	CodeProductOutOfStock      Code = "PRODUCT_OUT_OF_STOCK"
	CodeInsufficientStock      Code = "INSUFFICIENT_STOCK"
	CodeReservationNotFound    Code = "RESERVATION_NOT_FOUND"
	CodeInvalidStateTransition Code = "INVALID_STATE_TRANSITION"
	CodePaymentDeclined        Code = "PAYMENT_DECLINED"
	CodePaymentFailed          Code = "PAYMENT_FAILED"
	CodeUserNotFound           Code = "USER_NOT_FOUND"
	CodeUserAlreadyExists      Code = "USER_ALREADY_EXISTS"
	CodeUserInactive           Code = "USER_INACTIVE"
	CodeServiceUnavailable     Code = "SERVICE_UNAVAILABLE"
	CodeOperationFailed        Code = "OPERATION_FAILED"
	CodeInternal               Code = "INTERNAL_ERROR"
)

// Class groups codes by how callers should react to them.
type Class string

const (
	// ClassValidation errors are client-correctable.
	ClassValidation Class = "validation"
	// ClassNotFound errors reference an entity that does not exist.
	ClassNotFound Class = "not_found"
	// ClassConflict errors collide with an existing entity.
	ClassConflict Class = "conflict"
	// ClassResource errors report exhausted or unavailable resources. Never retried.
	ClassResource Class = "resource"
	// ClassTransient errors may succeed on a later attempt.
	ClassTransient Class = "transient"
	// ClassState errors report an invalid state transition. Never retried.
	ClassState Class = "state"
	// ClassInternal errors are unexpected faults.
	ClassInternal Class = "internal"
)

// Standard sentinel errors, one per class. errors.Is(err, ErrResource) holds
// for every AppError whose code belongs to ClassResource.
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("resource not found")
	ErrConflict   = errors.New("conflict")
	ErrResource   = errors.New("resource unavailable")
	ErrTransient  = errors.New("transient failure")
	ErrState      = errors.New("invalid state")
	ErrInternal   = errors.New("internal error")
)

type codeInfo struct {
	class  Class
	status int
}

var codes = map[Code]codeInfo{
	CodeInvalidInput:           {ClassValidation, http.StatusBadRequest},
	CodeOrderValidation:        {ClassValidation, http.StatusBadRequest},
	CodeOrderNotFound:          {ClassNotFound, http.StatusNotFound},
	CodeProductNotFound:        {ClassNotFound, http.StatusNotFound},
	CodeProductAlreadyExists:   {ClassConflict, http.StatusConflict},
	CodeProductOutOfStock:      {ClassResource, http.StatusConflict},
	CodeInsufficientStock:      {ClassResource, http.StatusConflict},
	CodeReservationNotFound:    {ClassNotFound, http.StatusNotFound},
	CodeInvalidStateTransition: {ClassState, http.StatusConflict},
	CodePaymentDeclined:        {ClassResource, http.StatusPaymentRequired},
	CodePaymentFailed:          {ClassTransient, http.StatusUnprocessableEntity},
	CodeUserNotFound:           {ClassNotFound, http.StatusNotFound},
	CodeUserAlreadyExists:      {ClassConflict, http.StatusConflict},
	CodeUserInactive:           {ClassValidation, http.StatusForbidden},
	CodeServiceUnavailable:     {ClassTransient, http.StatusServiceUnavailable},
	CodeOperationFailed:        {ClassTransient, http.StatusServiceUnavailable},
	CodeInternal:               {ClassInternal, http.StatusInternalServerError},
}

// Codes returns every known code.
func Codes() []Code {
	out := make([]Code, 0, len(codes))
	for c := range codes {
		out = append(out, c)
	}
	return out
}

// IsKnownCode reports whether c belongs to the closed code set.
func IsKnownCode(c Code) bool {
	_, ok := codes[c]
	return ok
}

// Class returns the class of the code. Unknown codes are internal.
func (c Code) Class() Class {
	if info, ok := codes[c]; ok {
		return info.class
	}
	return ClassInternal
}

// Status returns the HTTP status mapped to the code.
func (c Code) Status() int {
	if info, ok := codes[c]; ok {
		return info.status
	}
	return http.StatusInternalServerError
}

func (c Class) sentinel() error {
	switch c {
	case ClassValidation:
		return ErrValidation
	case ClassNotFound:
		return ErrNotFound
	case ClassConflict:
		return ErrConflict
	case ClassResource:
		return ErrResource
	case ClassTransient:
		return ErrTransient
	case ClassState:
		return ErrState
	default:
		return ErrInternal
	}
}

// Field is one entry of an error's ordered context.
type Field struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// F is shorthand for building a Field.
func F(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// AppError represents a structured application error with a stable code,
// ordered context values and HTTP status mapping.
type AppError struct {
	Code    Code    `json:"code"`
	Message string  `json:"message"`
	Context []Field `json:"context,omitempty"`
	Status  int     `json:"-"`
	Err     error   `json:"-"`
}

func (e *AppError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches another AppError by code, or the sentinel of this error's class.
func (e *AppError) Is(target error) bool {
	var t *AppError
	if errors.As(target, &t) {
		return t.Code == e.Code
	}
	return target == e.Code.Class().sentinel()
}

// Class returns the class of the error's code.
func (e *AppError) Class() Class {
	return e.Code.Class()
}

// Value returns the first context value stored under key.
func (e *AppError) Value(key string) (any, bool) {
	for _, f := range e.Context {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// New builds an AppError for code with the given message and context.
func New(code Code, message string, fields ...Field) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Context: fields,
		Status:  code.Status(),
	}
}

// InvalidInput creates a generic 400 error for malformed requests.
func InvalidInput(message string) *AppError {
	return New(CodeInvalidInput, message)
}

// OrderValidation reports the offending field and value of an order request.
func OrderValidation(field string, value any, message string) *AppError {
	return New(CodeOrderValidation,
		fmt.Sprintf("invalid %s: %s", field, message),
		F("field", field), F("value", value),
	)
}

// OrderNotFound creates a 404 error for an unknown order.
func OrderNotFound(orderID string) *AppError {
	return New(CodeOrderNotFound, fmt.Sprintf("order with id %s not found", orderID), F("order_id", orderID))
}

// ProductNotFound creates a 404 error for an unknown product.
func ProductNotFound(productID string) *AppError {
	return New(CodeProductNotFound, fmt.Sprintf("product with id %s not found", productID), F("product_id", productID))
}

// ProductAlreadyExists creates a 409 error for a duplicate product id.
func ProductAlreadyExists(productID string) *AppError {
	return New(CodeProductAlreadyExists, fmt.Sprintf("product with id %q already exists", productID), F("product_id", productID))
}

// ProductOutOfStock is returned when the product does not accept reservations.
func ProductOutOfStock(productID string) *AppError {
	return New(CodeProductOutOfStock, fmt.Sprintf("product %s is not available", productID), F("product_id", productID))
}

// InsufficientStock is returned when a reservation asks for more than is on hand.
func InsufficientStock(productID string, requested, available int) *AppError {
	return New(CodeInsufficientStock,
		fmt.Sprintf("insufficient stock for product %s: requested %d, available %d", productID, requested, available),
		F("product_id", productID), F("requested", requested), F("available", available),
	)
}

// ReservationNotFound creates a 404 error for an unknown reservation.
func ReservationNotFound(reservationID string) *AppError {
	return New(CodeReservationNotFound, fmt.Sprintf("reservation with id %s not found", reservationID), F("reservation_id", reservationID))
}

// InvalidStateTransition reports a forbidden transition of an entity.
func InvalidStateTransition(entity, id, from, to string) *AppError {
	return New(CodeInvalidStateTransition,
		fmt.Sprintf("%s %s cannot move from %s to %s", entity, id, from, to),
		F("entity", entity), F("id", id), F("from", from), F("to", to),
	)
}

// PaymentDeclined is returned when the gateway refuses a charge outright.
func PaymentDeclined(paymentID, reason string) *AppError {
	return New(CodePaymentDeclined, "payment declined: "+reason, F("payment_id", paymentID), F("reason", reason))
}

// PaymentFailed reports a charge that could not be completed. paymentID may be empty.
func PaymentFailed(paymentID, amount, method, reason string, cause error) *AppError {
	e := New(CodePaymentFailed, "payment failed: "+reason,
		F("payment_id", paymentID), F("amount", amount), F("method", method), F("reason", reason),
	)
	e.Err = cause
	return e
}

// UserNotFound creates a 404 error for an unknown customer.
func UserNotFound(userID string) *AppError {
	return New(CodeUserNotFound, fmt.Sprintf("user with id %s not found", userID), F("user_id", userID))
}

// UserAlreadyExists creates a 409 error for a duplicate customer.
func UserAlreadyExists(userID string) *AppError {
	return New(CodeUserAlreadyExists, fmt.Sprintf("user with id %q already exists", userID), F("user_id", userID))
}

// UserInactive is returned when an inactive customer places an order.
func UserInactive(userID string) *AppError {
	return New(CodeUserInactive, fmt.Sprintf("user %s is inactive", userID), F("user_id", userID))
}

// ServiceUnavailable creates a 503 error for a downstream outage.
func ServiceUnavailable(message string) *AppError {
	return New(CodeServiceUnavailable, message)
}

// Internal creates a 500 error wrapping err.
func Internal(err error) *AppError {
	e := New(CodeInternal, "an internal error occurred")
	e.Err = err
	return e
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	return fmt.Errorf("%s: %w", message, err)
}

// As returns the first AppError in err's chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// CodeOf returns the code of the first AppError in err's chain, or
// CodeInternal when there is none.
func CodeOf(err error) Code {
	if appErr, ok := As(err); ok {
		return appErr.Code
	}
	return CodeInternal
}

// ClassOf returns the class of err's code; plain errors are internal.
func ClassOf(err error) Class {
	return CodeOf(err).Class()
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code Code) bool {
	appErr, ok := As(err)
	return ok && appErr.Code == code
}

// HTTPStatus returns the HTTP status code for the given error.
func HTTPStatus(err error) int {
	if appErr, ok := As(err); ok {
		if appErr.Status != 0 {
			return appErr.Status
		}
		return appErr.Code.Status()
	}

	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict), errors.Is(err, ErrResource), errors.Is(err, ErrState):
		return http.StatusConflict
	case errors.Is(err, ErrTransient):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
