package api

import (
	"fmt"
	"net/http"
	"time"

	"taurean/internal/booking"
	"taurean/internal/models"
	"taurean/internal/settlement"
)

type bookingRequest struct {
	ResourceID    int64  `json:"resource_id"`
	UserID        int64  `json:"user_id"`
	StartTime     string `json:"start_time,omitempty"`
	EndTime       string `json:"end_time,omitempty"`
	Quantity      int64  `json:"quantity,omitempty"`
	DurationUnits int64  `json:"duration_units,omitempty"`
	Notes         string `json:"notes,omitempty"`
}

func (req bookingRequest) toInput() (booking.CreateInput, error) {
	in := booking.CreateInput{
		ResourceID:    req.ResourceID,
		UserID:        req.UserID,
		Quantity:      req.Quantity,
		DurationUnits: req.DurationUnits,
		Notes:         req.Notes,
	}
	if req.StartTime != "" {
		t, err := parseTime(req.StartTime)
		if err != nil {
			return in, fmt.Errorf("%w: invalid start_time: %s", booking.ErrValidation, req.StartTime)
		}
		in.StartTime = t
	}
	if req.EndTime != "" {
		t, err := parseTime(req.EndTime)
		if err != nil {
			return in, fmt.Errorf("%w: invalid end_time: %s", booking.ErrValidation, req.EndTime)
		}
		in.EndTime = t
	}
	return in, nil
}

func parseTime(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", raw)
}

func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	var req bookingRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	in, err := req.toInput()
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	b, err := s.deps.Bookings.Create(r.Context(), in)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (s *HTTPServer) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	b, err := s.deps.Bookings.Get(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *HTTPServer) handleBookingStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := decodeBody(r, &req); err != nil || req.Status == "" {
		writeError(w, http.StatusBadRequest, "status is required")
		return
	}

	b, err := s.deps.Bookings.Transition(r.Context(), id, req.Status, actorFrom(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *HTTPServer) handleDeleteBooking(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.deps.Bookings.SoftDelete(r.Context(), id, actorFrom(r)); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleBookingTransactions(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := s.deps.Bookings.Get(r.Context(), id); err != nil {
		s.respondError(w, r, err)
		return
	}
	transactions, err := s.deps.Settlements.ListForBooking(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": transactions})
}

func (s *HTTPServer) handleBookingHistory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	trail, err := s.deps.Bookings.History(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": trail})
}

func (s *HTTPServer) handleCalendar(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	from := time.Now()
	to := from.AddDate(0, 1, 0)
	if raw := r.URL.Query().Get("from"); raw != "" {
		if from, err = parseTime(raw); err != nil {
			writeError(w, http.StatusBadRequest, "invalid from parameter")
			return
		}
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		if to, err = parseTime(raw); err != nil {
			writeError(w, http.StatusBadRequest, "invalid to parameter")
			return
		}
	}

	windows, err := s.deps.Bookings.Calendar(r.Context(), id, from, to)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"windows": windows})
}

func (s *HTTPServer) handleListResources(w http.ResponseWriter, r *http.Request) {
	companyID, err := queryInt64(r, "company_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	resources, err := s.deps.DB.ListActiveResources(r.Context(), companyID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"resources": resources})
}

func (s *HTTPServer) handleCreateResource(w http.ResponseWriter, r *http.Request) {
	var resource models.Resource
	if err := decodeBody(r, &resource); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if resource.Name == "" || resource.CompanyID == 0 {
		writeError(w, http.StatusBadRequest, "name and company_id are required")
		return
	}
	switch resource.Kind {
	case models.KindFacility, models.KindInventory:
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown resource kind %q", resource.Kind))
		return
	}
	resource.IsActive = true

	if err := s.deps.DB.CreateResource(r.Context(), &resource); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resource)
}

func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	avail, err := s.deps.Bookings.Availability(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, avail)
}

func (s *HTTPServer) handleQuote(w http.ResponseWriter, r *http.Request) {
	var req bookingRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	in, err := req.toInput()
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	quote, err := s.deps.Bookings.Quote(r.Context(), in)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

func (s *HTTPServer) handleListTaxes(w http.ResponseWriter, r *http.Request) {
	companyID, err := queryInt64(r, "company_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	taxes, err := s.deps.DB.ListActiveTaxes(r.Context(), companyID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"taxes": taxes})
}

func (s *HTTPServer) handleCreateTax(w http.ResponseWriter, r *http.Request) {
	var tax models.Tax
	if err := decodeBody(r, &tax); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if tax.Name == "" || tax.CompanyID == 0 {
		writeError(w, http.StatusBadRequest, "name and company_id are required")
		return
	}
	if tax.RateBps < 0 {
		writeError(w, http.StatusBadRequest, "rate_bps must not be negative")
		return
	}
	if tax.AppliesTo == "" {
		tax.AppliesTo = models.TaxAppliesBoth
	}
	tax.IsActive = true

	if err := s.deps.DB.CreateTax(r.Context(), &tax); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tax)
}

func (s *HTTPServer) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BookingID   int64  `json:"booking_id"`
		UserID      int64  `json:"user_id"`
		AmountCents int64  `json:"amount_cents"`
		Method      string `json:"method"`
		TimingPlan  string `json:"timing_plan"`
		ProviderRef string `json:"provider_ref,omitempty"`
		Notes       string `json:"notes,omitempty"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	tx, err := s.deps.Settlements.Create(r.Context(), settlement.CreateInput{
		BookingID:   req.BookingID,
		UserID:      req.UserID,
		AmountCents: req.AmountCents,
		Method:      req.Method,
		TimingPlan:  req.TimingPlan,
		ProviderRef: req.ProviderRef,
		Notes:       req.Notes,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

func (s *HTTPServer) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	tx, err := s.deps.Settlements.Get(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (s *HTTPServer) handleProcessTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req struct {
		Decision string `json:"decision"`
		Reason   string `json:"reason,omitempty"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	tx, err := s.deps.Settlements.Process(r.Context(), id, req.Decision, actorFrom(r), req.Reason)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (s *HTTPServer) handleCancelTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	tx, err := s.deps.Settlements.Cancel(r.Context(), id, actorFrom(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (s *HTTPServer) handleExportBookings(w http.ResponseWriter, r *http.Request) {
	from, err := parseTime(r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "from parameter is required (YYYY-MM-DD)")
		return
	}
	to, err := parseTime(r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "to parameter is required (YYYY-MM-DD)")
		return
	}

	path, err := s.deps.Exporter.BookingsReport(r.Context(), from, to)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	http.ServeFile(w, r, path)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.DB.PingContext(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "database unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func queryInt64(r *http.Request, name string) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, fmt.Errorf("%s parameter is required", name)
	}
	var id int64
	if _, err := fmt.Sscan(raw, &id); err != nil || id < 1 {
		return 0, fmt.Errorf("invalid %s parameter %q", name, raw)
	}
	return id, nil
}
