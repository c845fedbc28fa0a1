package handler

import (
	"errors"
	"net/http"

	"nodetree/internal/domain"
	"nodetree/internal/httputil"
)

// handleError converts domain errors to HTTP responses. Each domain error
// carries its own status; anything else is an internal error whose message
// stays out of the response.
func handleError(w http.ResponseWriter, err error) {
	var httpErr domain.HTTPError
	if errors.As(err, &httpErr) {
		httputil.RespondError(w, httpErr.StatusCode(), httpErr.Error())
		return
	}
	httputil.RespondError(w, http.StatusInternalServerError, "internal server error")
}

// handleCreateError is handleError for node creation, where an unknown
// parent is reported as 406 rather than 404
func handleCreateError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrNotFound) {
		httputil.RespondError(w, http.StatusNotAcceptable, err.Error())
		return
	}
	handleError(w, err)
}
