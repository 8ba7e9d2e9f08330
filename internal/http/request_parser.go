// Package http provides HTTP server and handler implementations.
//
// This file turns request bodies into service inputs. Bodies may be JSON
// objects or form-encoded; field values are read as strings either way.
package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/query"
	"fintrack/internal/services"
)

// maxBodyBytes bounds every request body.
const maxBodyBytes = 1 << 20

// RequestBodyParser handles different content types for request body parsing.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]any
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser reads the body once, up to maxBodyBytes.
func NewRequestBodyParser(w http.ResponseWriter, r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{contentType: r.Header.Get("Content-Type")}
	if r.Body != nil {
		p.body, p.err = io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	}
	return p
}

// Parse decodes the body as a JSON object or, failing that, as form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		p.err = fmt.Errorf("%w: read body: %v", core.ErrValidation, p.err)
		return p.err
	}

	body := bytes.TrimSpace(p.body)
	if len(body) == 0 {
		p.formData = url.Values{}
		return nil
	}

	if body[0] == '{' || strings.HasPrefix(p.contentType, "application/json") {
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.UseNumber()
		p.jsonData = make(map[string]any)
		if err := dec.Decode(&p.jsonData); err != nil {
			p.err = fmt.Errorf("%w: malformed JSON body: %v", core.ErrValidation, err)
			return p.err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(string(body))
	if p.err != nil {
		p.err = fmt.Errorf("%w: malformed form body: %v", core.ErrValidation, p.err)
	}
	return p.err
}

// Get returns a trimmed string value from the parsed data (JSON or form).
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
		return ""
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

// Has reports whether key was sent at all, even with an empty value.
func (p *RequestBodyParser) Has(key string) bool {
	if p.jsonData != nil {
		v, ok := p.jsonData[key]
		return ok && v != nil
	}
	if p.formData != nil {
		return p.formData.Has(key)
	}
	return false
}

func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// parseBool accepts JSON booleans and the strings true/false/1/0/on.
func parseBool(field, s string) (bool, error) {
	switch strings.ToLower(s) {
	case "", "false", "0", "off":
		return false, nil
	case "true", "1", "on":
		return true, nil
	}
	return false, fmt.Errorf("%w: %s must be a boolean", core.ErrValidation, field)
}

// parseCreateInput maps an addTransaction body. Field validation is left to the service.
func parseCreateInput(p *RequestBodyParser, loc *time.Location) (services.CreateInput, error) {
	in := services.CreateInput{
		Title:       p.Get("title"),
		Description: p.Get("description"),
		Category:    p.Get("category"),
		OwnerID:     p.Get("userId"),
		Type:        core.TransactionType(strings.ToLower(p.Get("transactionType"))),
		Source:      services.SourceAPI,
	}

	if s := p.Get("amount"); s != "" {
		amount, err := core.ParseAmount(s)
		if err != nil {
			return services.CreateInput{}, err
		}
		in.Amount = amount
	}
	if s := p.Get("date"); s != "" {
		date, err := core.ParseDate(s, loc)
		if err != nil {
			return services.CreateInput{}, err
		}
		in.Date = date
	}
	recurring, err := parseBool("recurring", p.Get("recurring"))
	if err != nil {
		return services.CreateInput{}, err
	}
	in.Recurring = recurring
	return in, nil
}

// parseUpdateInput maps an updateTransaction body. Only keys present in the body are set.
func parseUpdateInput(p *RequestBodyParser, loc *time.Location) (services.UpdateInput, error) {
	in := services.UpdateInput{Source: services.SourceAPI}

	for key, dst := range map[string]**string{
		"title":           &in.Title,
		"description":     &in.Description,
		"category":        &in.Category,
		"transactionType": &in.Type,
	} {
		if p.Has(key) {
			v := p.Get(key)
			*dst = &v
		}
	}

	if s := p.Get("amount"); s != "" {
		amount, err := core.ParseAmount(s)
		if err != nil {
			return services.UpdateInput{}, err
		}
		in.Amount = &amount
	}
	if s := p.Get("date"); s != "" {
		date, err := core.ParseDate(s, loc)
		if err != nil {
			return services.UpdateInput{}, err
		}
		in.Date = &date
	}
	if p.Has("recurring") {
		recurring, err := parseBool("recurring", p.Get("recurring"))
		if err != nil {
			return services.UpdateInput{}, err
		}
		in.Recurring = &recurring
	}
	return in, nil
}

func parseListRequest(p *RequestBodyParser) query.Request {
	return query.Request{
		OwnerID:   p.Get("userId"),
		Type:      p.Get("type"),
		Frequency: p.Get("frequency"),
		StartDate: p.Get("startDate"),
		EndDate:   p.Get("endDate"),
	}
}
