// Package httpapi exposes the order and user services over HTTP.
//
// Successful bodies are JSON objects; failures are errs.Payload documents
// carrying the status of the error kind.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/goliatone/go-record-services/errs"
)

const (
	defaultPage     = 1
	defaultPageSize = 10
	maxBodyBytes    = 1 << 20
)

type result struct {
	Result any `json:"result"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, logger *slog.Logger, r *http.Request, err error) {
	p := errs.ToPayload(err)
	if p.Status >= http.StatusInternalServerError {
		logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "status", p.Status, "error", err)
	} else {
		logger.Debug("request rejected", "method", r.Method, "path", r.URL.Path, "status", p.Status, "error", err)
	}
	writeJSON(w, p.Status, p)
}

// decodeBody reads a single JSON object into v. Unknown fields are rejected.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errs.InvalidField("invalid body", "request body is empty")
		}
		return errs.Wrap(errs.KindInvalidField, err, "invalid body", err.Error())
	}
	return nil
}

// intParam reads an optional positive integer query parameter.
func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errs.MalformedQuery("malformed query", fmt.Sprintf("%s must be an integer, got %q", name, raw))
	}
	return n, nil
}

func pathID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errs.MalformedQuery("malformed query", fmt.Sprintf("invalid id %q", raw))
	}
	return id, nil
}

// requestURL rebuilds the absolute URL the client used, for pagination links.
func requestURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if fwd := r.Header.Get("X-Forwarded-Proto"); fwd != "" {
		scheme = fwd
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}
