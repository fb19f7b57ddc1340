// Package apperror is the error taxonomy every API response is built from.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	CodeInternal           = "INTERNAL_ERROR"
	CodeTimeout            = "STORAGE_TIMEOUT"
	CodeCounterUnavailable = "COUNTER_UNAVAILABLE"

	CodeValidation        = "VALIDATION_ERROR"
	CodeInsufficientStock = "INSUFFICIENT_STOCK"
	CodeOverReturn        = "OVER_RETURN"
	CodeDuplicate         = "DUPLICATE_ENTRY"

	CodeNotFound          = "NOT_FOUND"
	CodeProductNotFound   = "PRODUCT_NOT_FOUND"
	CodeVariationNotFound = "VARIATION_NOT_FOUND"
	CodeSaleNotFound      = "SALE_NOT_FOUND"
	CodeLineNotFound      = "LINE_NOT_FOUND"

	CodeConcurrentModification = "CONCURRENT_MODIFICATION"
	CodeUnauthorized           = "UNAUTHORIZED"
	CodeForbidden              = "FORBIDDEN"
	CodeRateLimited            = "RATE_LIMITED"
)

type AppError struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
	HTTPStatus int            `json:"-"`
	Err        error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

// Retryable reports whether the whole request may be retried unchanged.
func (e *AppError) Retryable() bool {
	return e.Code == CodeTimeout || e.Code == CodeCounterUnavailable || e.Code == CodeConcurrentModification
}

func NewValidation(message string) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

func NewNotFound(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", entity),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

func NewProductNotFound(productID string) *AppError {
	return &AppError{
		Code:       CodeProductNotFound,
		Message:    fmt.Sprintf("product %s not found", productID),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"product_id": productID},
	}
}

func NewVariationNotFound(productName string, productID string, combinationID string) *AppError {
	return &AppError{
		Code:       CodeVariationNotFound,
		Message:    fmt.Sprintf("variation %s not found for product %s", combinationID, productName),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"product_id": productID, "variation_combination_id": combinationID},
	}
}

func NewSaleNotFound(saleID string) *AppError {
	return &AppError{
		Code:       CodeSaleNotFound,
		Message:    "sale not found",
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"sale_id": saleID},
	}
}

// NewLineNotFound reports a return line with no exact match in the sale.
// variation selects the "variation not found" wording.
func NewLineNotFound(productID string, combinationID string, variation bool) *AppError {
	msg := fmt.Sprintf("product %s not found in original sale", productID)
	if variation {
		msg = fmt.Sprintf("variation %s of product %s not found in original sale", combinationID, productID)
	}
	err := &AppError{
		Code:       CodeLineNotFound,
		Message:    msg,
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"product_id": productID},
	}
	if combinationID != "" {
		err.Details["variation_combination_id"] = combinationID
	}
	return err
}

func NewInsufficientStock(label string, productID string, combinationID string, requested int, available int) *AppError {
	err := &AppError{
		Code:       CodeInsufficientStock,
		Message:    fmt.Sprintf("insufficient stock for %s: requested %d, available %d", label, requested, available),
		HTTPStatus: http.StatusBadRequest,
		Details: map[string]any{
			"product_id": productID,
			"requested":  requested,
			"available":  available,
		},
	}
	if combinationID != "" {
		err.Details["variation_combination_id"] = combinationID
	}
	return err
}

func NewOverReturn(label string, productID string, combinationID string, requested int, remaining int) *AppError {
	err := &AppError{
		Code:       CodeOverReturn,
		Message:    fmt.Sprintf("cannot return %d of %s: only %d remaining returnable", requested, label, remaining),
		HTTPStatus: http.StatusBadRequest,
		Details: map[string]any{
			"product_id": productID,
			"requested":  requested,
			"remaining":  remaining,
		},
	}
	if combinationID != "" {
		err.Details["variation_combination_id"] = combinationID
	}
	return err
}

func NewDuplicate(entity, field, value string) *AppError {
	return &AppError{
		Code:       CodeDuplicate,
		Message:    fmt.Sprintf("%s with this %s already exists", entity, field),
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"entity": entity, "field": field, "value": value},
	}
}

func NewCounterUnavailable(err error) *AppError {
	return &AppError{
		Code:       CodeCounterUnavailable,
		Message:    "invoice counter unavailable, please retry",
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        err,
	}
}

func NewStorageTimeout(err error) *AppError {
	return &AppError{
		Code:       CodeTimeout,
		Message:    "storage did not respond in time, please retry",
		HTTPStatus: http.StatusGatewayTimeout,
		Err:        err,
	}
}

func NewConcurrentModification(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeConcurrentModification,
		Message:    "record was modified by another request, please retry",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

func NewUnauthorized(message string) *AppError {
	return &AppError{
		Code:       CodeUnauthorized,
		Message:    message,
		HTTPStatus: http.StatusUnauthorized,
	}
}

func NewForbidden(message string) *AppError {
	return &AppError{
		Code:       CodeForbidden,
		Message:    message,
		HTTPStatus: http.StatusForbidden,
	}
}

func NewRateLimited(message string) *AppError {
	return &AppError{
		Code:       CodeRateLimited,
		Message:    message,
		HTTPStatus: http.StatusTooManyRequests,
	}
}

// NewInternal hides err from clients; it is kept for logging.
func NewInternal(err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

func GetHTTPStatus(err error) int {
	if appErr, ok := AsAppError(err); ok {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

func HasCode(err error, code string) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}

// IsNotFound matches every *_NOT_FOUND code.
func IsNotFound(err error) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.HTTPStatus == http.StatusNotFound
	}
	return false
}

func IsValidation(err error) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.HTTPStatus == http.StatusBadRequest
	}
	return false
}
