package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/zemekeneng/rankchoice/internal/apperr"
	"github.com/zemekeneng/rankchoice/internal/log"
)

// Handler is like http.Handler but returns an error, so every handler
// can report failure without writing the response body itself.
type Handler interface {
	ServeHTTP(w http.ResponseWriter, r *http.Request) error
}

// HandlerFunc is like http.HandlerFunc but returns an error.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

// ServeHTTP implements Handler.
func (f HandlerFunc) ServeHTTP(w http.ResponseWriter, r *http.Request) error {
	return f(w, r)
}

// resolveError turns a Handler into an http.HandlerFunc, writing the
// {success, error, metadata} envelope when the handler returns an
// error. Client disconnects are not logged as failures.
func resolveError(handler Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := handler.ServeHTTP(w, r)
		if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCodeFor(err))
		writeFormattedError(w, err)
	}
}

func statusCodeFor(err error) int {
	var typed interface{ Type() string }
	if !errors.As(err, &typed) {
		return http.StatusInternalServerError
	}

	switch typed.Type() {
	case apperr.ErrValidation.Type(), apperr.ErrInvalidCandidate.Type(), apperr.ErrInvalidID.Type():
		return http.StatusBadRequest
	case apperr.ErrNotFound.Type(), apperr.ErrNotVoted.Type():
		return http.StatusNotFound
	case apperr.ErrAlreadyVoted.Type():
		return http.StatusConflict
	case apperr.ErrPollClosed.Type(), apperr.ErrPollNotPublic.Type():
		return http.StatusForbidden
	case apperr.ErrUnauthorized.Type():
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func writeFormattedError(w interface{ Write([]byte) (int, error) }, err error) {
	errType := apperr.ErrInternal.Type()
	msg := err.Error()

	var typed interface{ Type() string }
	if errors.As(err, &typed) {
		errType = typed.Type()
	}

	if errType == apperr.ErrInternal.Type() {
		log.Logger.Error().Err(err).Msg("internal error")
		msg = apperr.ErrInternal.Error()
	}

	out := envelope{
		Success:  false,
		Error:    &envelopeErr{Code: errType, Message: msg},
		Metadata: newMetadata(timeNow()),
	}
	if err := json.NewEncoder(w).Encode(out); err != nil {
		log.Logger.Error().Err(err).Msg("encoding error envelope")
	}
}

// timeNow exists so tests can be written against a fixed clock later
// without touching every call site.
var timeNow = time.Now
