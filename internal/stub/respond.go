package stub

import (
	"encoding/json"
	"net/http"
	"time"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// meta mirrors the envelope metadata the real service attaches.
type meta struct {
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

type pagination struct {
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
}

type wireError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type envelope struct {
	Success    bool        `json:"success"`
	Data       any         `json:"data,omitempty"`
	Error      *wireError  `json:"error,omitempty"`
	Pagination *pagination `json:"pagination,omitempty"`
	Meta       *meta       `json:"meta,omitempty"`
}

func writeEnvelope(w http.ResponseWriter, r *http.Request, status int, env envelope) {
	env.Meta = &meta{Timestamp: time.Now().UTC(), RequestID: chiMiddleware.GetReqID(r.Context())}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		http.Error(w, `{"success":false,"error":{"message":"failed to encode response"}}`, http.StatusInternalServerError)
	}
}

// JSON writes a success envelope.
func JSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	writeEnvelope(w, r, status, envelope{Success: true, Data: data})
}

// Page writes a success envelope with a pagination object.
func Page(w http.ResponseWriter, r *http.Request, data any, total, limit, offset int) {
	writeEnvelope(w, r, http.StatusOK, envelope{
		Success: true,
		Data:    data,
		Pagination: &pagination{
			Total:   total,
			Limit:   limit,
			Offset:  offset,
			HasMore: offset+limit < total,
		},
	})
}

// Error writes a failure envelope.
func Error(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeEnvelope(w, r, status, envelope{Success: false, Error: &wireError{Message: message, Code: code}})
}

// decodeBody reads a JSON request body into v.
func decodeBody(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}
