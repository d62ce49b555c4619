package docstore

import (
	"fmt"
	"net/http"

	"github.com/goliatone/go-record-services/errs"
	"github.com/goliatone/go-record-services/store"
)

type writeResponse struct {
	ID      string `json:"_id"`
	Version int64  `json:"_version"`
	Result  string `json:"result"`
}

type getResponse struct {
	ID      string       `json:"_id"`
	Version int64        `json:"_version"`
	Found   bool         `json:"found"`
	Source  store.Fields `json:"_source"`
}

type hit struct {
	ID      string       `json:"_id"`
	Version int64        `json:"_version"`
	Source  store.Fields `json:"_source"`
}

type searchResponse struct {
	Hits struct {
		Hits []hit `json:"hits"`
	} `json:"hits"`
}

type countResponse struct {
	Count int64 `json:"count"`
}

type errorCause struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// apiError is a non 2xx answer from the cluster.
type apiError struct {
	Status int        `json:"status"`
	Cause  errorCause `json:"error"`
	Found  *bool      `json:"found,omitempty"`
	Result string     `json:"result,omitempty"`
}

func (e *apiError) Error() string {
	if e.Cause.Type == "" {
		return fmt.Sprintf("elasticsearch: status %d", e.Status)
	}
	return fmt.Sprintf("elasticsearch: status %d: %s: %s", e.Status, e.Cause.Type, e.Cause.Reason)
}

func (e *apiError) indexMissing() bool {
	return e.Status == http.StatusNotFound && e.Cause.Type == "index_not_found_exception"
}

// translate maps the answer into the errs taxonomy. badRequest is the kind a
// 400 maps to for the operation at hand.
func (e *apiError) translate(op string, c store.Collection, id string, badRequest errs.Kind) error {
	switch {
	case e.Status == http.StatusNotFound:
		return errs.Wrap(errs.KindNotFound, e, "record not found", fmt.Sprintf("no document %s in %s", id, c))
	case e.Status == http.StatusConflict:
		return errs.Wrap(errs.KindAlreadyExists, e, "conflict", fmt.Sprintf("%s on %s conflicted: %s", op, c, e.Cause.Reason))
	case e.Status == http.StatusBadRequest:
		msg := "malformed query"
		if badRequest == errs.KindInvalidField {
			msg = "invalid field"
		}
		return errs.Wrap(badRequest, e, msg, fmt.Sprintf("%s on %s rejected: %s", op, c, e.Cause.Reason))
	case e.Status == http.StatusTooManyRequests, e.Status >= http.StatusInternalServerError:
		return errs.Wrap(errs.KindServiceUnavailable, e, "document store unavailable",
			fmt.Sprintf("%s on %s answered %d", op, c, e.Status))
	}
	return errs.Wrap(errs.KindInternal, e, "document store failure", fmt.Sprintf("%s on %s answered %d", op, c, e.Status))
}
