package api

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"taurean/internal/booking"
	"taurean/internal/database"
	"taurean/internal/pricing"
	"taurean/internal/settlement"
)

// respondError maps domain errors onto HTTP statuses. Internal failures
// get a correlation id so the log line and the client response can be
// matched up.
func (s *HTTPServer) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, booking.ErrValidation),
		errors.Is(err, settlement.ErrValidation),
		errors.Is(err, pricing.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())

	case errors.Is(err, database.ErrNotAvailable):
		writeError(w, http.StatusConflict, "resource is not available for the requested window or quantity")

	case errors.Is(err, database.ErrDuplicate):
		writeError(w, http.StatusConflict, err.Error())

	case errors.Is(err, database.ErrResourceNotFound),
		errors.Is(err, database.ErrBookingNotFound),
		errors.Is(err, database.ErrTransactionNotFound):
		writeError(w, http.StatusNotFound, err.Error())

	case errors.Is(err, database.ErrAlreadyProcessed),
		errors.Is(err, database.ErrInvalidTransition):
		writeError(w, http.StatusBadRequest, err.Error())

	default:
		correlationID := uuid.NewString()
		s.log.Error().Err(err).
			Str("correlation_id", correlationID).
			Str("path", r.URL.Path).
			Msg("internal error")
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error":          "internal error",
			"correlation_id": correlationID,
		})
	}
}
