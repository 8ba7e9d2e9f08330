// Package http provides HTTP server and handler implementations.
//
// This file builds the JSON envelope every API route answers with:
// {"success": bool, "message": string, "transactions"?: [...], "transaction"?: {...}}.
// Clients branch on success only; the status code follows the error kind.
package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

// TransactionView is the wire form of a transaction.
type TransactionView struct {
	ID              string          `json:"id"`
	Title           string          `json:"title"`
	Description     string          `json:"description"`
	Category        string          `json:"category"`
	Amount          decimal.Decimal `json:"amount"`
	Date            time.Time       `json:"date"`
	TransactionType string          `json:"transactionType"`
	Recurring       bool            `json:"recurring"`
	UserID          string          `json:"userId"`
	TemplateID      string          `json:"templateId,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

func viewOf(t core.Transaction) TransactionView {
	return TransactionView{
		ID:              t.ID,
		Title:           t.Title,
		Description:     t.Description,
		Category:        t.Category,
		Amount:          t.Amount,
		Date:            t.Date,
		TransactionType: string(t.Type),
		Recurring:       t.Recurring,
		UserID:          t.OwnerID,
		TemplateID:      t.TemplateID,
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
	}
}

type envelope struct {
	Success      bool              `json:"success"`
	Message      string            `json:"message,omitempty"`
	Transactions []TransactionView `json:"transactions,omitempty"`
	Transaction  *TransactionView  `json:"transaction,omitempty"`
}

// listEnvelope always carries the transactions key, even when empty.
type listEnvelope struct {
	Success      bool              `json:"success"`
	Transactions []TransactionView `json:"transactions"`
}

// JSONResponseBuilder provides a fluent API for building envelope responses.
type JSONResponseBuilder struct {
	statusCode int
	body       envelope
	list       bool
	headers    map[string]string
}

// NewJSONResponse creates a successful 200 response.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		body:       envelope{Success: true},
		headers:    make(map[string]string),
	}
}

func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

func (b *JSONResponseBuilder) Message(msg string) *JSONResponseBuilder {
	b.body.Message = msg
	return b
}

func (b *JSONResponseBuilder) Transaction(t core.Transaction) *JSONResponseBuilder {
	v := viewOf(t)
	b.body.Transaction = &v
	return b
}

// Transactions switches the body to the list shape.
func (b *JSONResponseBuilder) Transactions(ts []core.Transaction) *JSONResponseBuilder {
	b.list = true
	b.body.Transactions = make([]TransactionView, 0, len(ts))
	for _, t := range ts {
		b.body.Transactions = append(b.body.Transactions, viewOf(t))
	}
	return b
}

func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)

	var payload any = b.body
	if b.list {
		payload = listEnvelope{Success: b.body.Success, Transactions: b.body.Transactions}
	}
	_ = json.NewEncoder(w).Encode(payload)
}

// ErrorResponse creates a failed envelope with the given status.
func ErrorResponse(statusCode int, message string) *JSONResponseBuilder {
	b := NewJSONResponse().Status(statusCode).Message(message)
	b.body.Success = false
	return b
}

// StatusFor maps an error to its HTTP status by kind.
func StatusFor(err error) int {
	switch core.ErrorKind(err) {
	case core.KindValidation:
		return http.StatusBadRequest
	case core.KindNotFound:
		return http.StatusNotFound
	case core.KindStoreUnavailable:
		return http.StatusServiceUnavailable
	case core.KindTimeout:
		return http.StatusGatewayTimeout
	case core.KindSchedulerOverlap:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// ErrorFrom builds the failure envelope for err. notFound replaces the message
// of not-found errors; internal and store errors never leak their text.
func ErrorFrom(err error, notFound string) *JSONResponseBuilder {
	status := StatusFor(err)
	msg := err.Error()
	switch status {
	case http.StatusNotFound:
		if notFound != "" {
			msg = notFound
		}
	case http.StatusServiceUnavailable:
		msg = "Storage is unavailable, please retry"
	case http.StatusGatewayTimeout:
		msg = "Request timed out"
	case http.StatusInternalServerError:
		msg = "Internal server error"
	case http.StatusBadRequest:
		return BadRequestError(validationMessage(err))
	}
	return ErrorResponse(status, msg)
}

// validationMessage strips the kind prefix so clients see only the field detail.
func validationMessage(err error) string {
	msg := err.Error()
	prefix := core.ErrValidation.Error() + ": "
	for e := err; e != nil; e = errors.Unwrap(e) {
		if detail, ok := strings.CutPrefix(e.Error(), prefix); ok {
			return detail
		}
	}
	return msg
}

// BadRequestError creates a 400 response.
func BadRequestError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

// MethodNotAllowedError creates a 405 response carrying the Allow header.
func MethodNotAllowedError(allowedMethods string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusMethodNotAllowed, "Method not allowed").Header("Allow", allowedMethods)
}
