package api

import (
	"encoding/json"
	"time"
)

// Meta is the response envelope metadata attached by the server.
type Meta struct {
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// Pagination describes the window of a paginated list response.
type Pagination struct {
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
}

// wireError is the error object inside a failure envelope.
type wireError struct {
	Message string          `json:"message"`
	Code    string          `json:"code,omitempty"`
	Details json.RawMessage `json:"details,omitempty"`
}

// envelope is the standard response wrapper:
// {success, data, meta} on success, {success:false, error:{...}} on failure.
// List endpoints additionally carry a pagination object.
type envelope struct {
	Success    bool            `json:"success"`
	Data       json.RawMessage `json:"data,omitempty"`
	Error      *wireError      `json:"error,omitempty"`
	Pagination *Pagination     `json:"pagination,omitempty"`
	Meta       *Meta           `json:"meta,omitempty"`
}
