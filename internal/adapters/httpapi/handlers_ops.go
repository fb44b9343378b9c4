package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"shelterhub/internal/core"
	"shelterhub/pkg/domain"
)

func (s *Server) listTreatments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := core.TreatmentFilter{
		CatID:  q.Get("cat_id"),
		Status: domain.TreatmentStatus(q.Get("status")),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		s.writeError(w, r, badInput("unknown status "+strconv.Quote(q.Get("status"))))
		return
	}
	if raw := q.Get("due_before"); raw != "" {
		due, err := parseTime(raw)
		if err != nil {
			s.writeError(w, r, badInput("due_before: "+err.Error()))
			return
		}
		filter.DueBefore = &due
	}
	treatments, err := s.svc.ListTreatments(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"treatments": treatments})
}

type treatmentRequest struct {
	CatID       string               `json:"cat_id"`
	Kind        domain.TreatmentKind `json:"kind"`
	Description string               `json:"description"`
	ScheduledAt time.Time            `json:"scheduled_at"`
	CostCents   int64                `json:"cost_cents"`
}

func (s *Server) scheduleTreatment(w http.ResponseWriter, r *http.Request) {
	var req treatmentRequest
	if err := decodeJSON(r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	treatment, res, err := s.svc.ScheduleTreatment(r.Context(), domain.Treatment{
		CatID:       req.CatID,
		Kind:        req.Kind,
		Description: req.Description,
		ScheduledAt: req.ScheduledAt,
		CostCents:   req.CostCents,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeMutation(w, http.StatusCreated, treatment, res)
}

type completeRequest struct {
	AdministeredBy string    `json:"administered_by"`
	AdministeredAt time.Time `json:"administered_at"`
	CostCents      int64     `json:"cost_cents"`
}

func (s *Server) transitionTreatment(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]
	var (
		treatment domain.Treatment
		res       core.Result
		err       error
	)
	switch vars["action"] {
	case "start":
		treatment, res, err = s.svc.StartTreatment(r.Context(), id)
	case "cancel":
		treatment, res, err = s.svc.CancelTreatment(r.Context(), id)
	case "complete":
		var req completeRequest
		if err := decodeJSON(r, &req, true); err != nil {
			s.writeError(w, r, err)
			return
		}
		by := strings.TrimSpace(req.AdministeredBy)
		if by == "" {
			p, _ := PrincipalFromContext(r.Context())
			by = p.Email
		}
		treatment, res, err = s.svc.CompleteTreatment(r.Context(), id, by, req.AdministeredAt, req.CostCents)
	default:
		s.writeError(w, r, badInput("unknown treatment action"))
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeMutation(w, http.StatusOK, treatment, res)
}

type donationRequest struct {
	Donor       string    `json:"donor"`
	Email       string    `json:"email"`
	AmountCents int64     `json:"amount_cents"`
	Currency    string    `json:"currency"`
	Method      string    `json:"method"`
	ReceivedAt  time.Time `json:"received_at"`
	Note        string    `json:"note"`
	CatID       *string   `json:"cat_id"`
}

func (s *Server) recordDonation(w http.ResponseWriter, r *http.Request) {
	var req donationRequest
	if err := decodeJSON(r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	donation, res, err := s.svc.RecordDonation(r.Context(), domain.Donation{
		Donor:       req.Donor,
		Email:       req.Email,
		AmountCents: req.AmountCents,
		Currency:    req.Currency,
		Method:      req.Method,
		ReceivedAt:  req.ReceivedAt,
		Note:        req.Note,
		CatID:       req.CatID,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeMutation(w, http.StatusCreated, donation, res)
}

func (s *Server) listDonations(w http.ResponseWriter, r *http.Request) {
	donations, err := s.svc.ListDonations(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"donations": donations})
}

type transactionRequest struct {
	Kind         domain.LedgerKind `json:"kind"`
	Category     string            `json:"category"`
	AmountCents  int64             `json:"amount_cents"`
	Currency     string            `json:"currency"`
	Counterparty string            `json:"counterparty"`
	OccurredAt   time.Time         `json:"occurred_at"`
	Note         string            `json:"note"`
}

func (s *Server) recordTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := decodeJSON(r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	entry, res, err := s.svc.RecordTransaction(r.Context(), domain.LedgerEntry{
		Kind:         req.Kind,
		Category:     req.Category,
		AmountCents:  req.AmountCents,
		Currency:     req.Currency,
		Counterparty: req.Counterparty,
		OccurredAt:   req.OccurredAt,
		Note:         req.Note,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeMutation(w, http.StatusCreated, entry, res)
}

func (s *Server) listTransactions(w http.ResponseWriter, r *http.Request) {
	entries, err := s.svc.ListTransactions(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": entries})
}

func (s *Server) occupancyReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.svc.Occupancy(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// revenueReport accepts from/to as YYYY-MM, YYYY-MM-DD or RFC 3339. A month
// or date value for to includes the whole month or day.
func (s *Server) revenueReport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var from, to time.Time
	if raw := q.Get("from"); raw != "" {
		t, err := parseTime(raw)
		if err != nil {
			s.writeError(w, r, badInput("from: "+err.Error()))
			return
		}
		from = t
	}
	if raw := q.Get("to"); raw != "" {
		t, err := parseTime(raw)
		if err != nil {
			s.writeError(w, r, badInput("to: "+err.Error()))
			return
		}
		switch len(raw) {
		case len("2006-01"):
			t = t.AddDate(0, 1, 0)
		case len("2006-01-02"):
			t = t.AddDate(0, 0, 1)
		}
		to = t
	}
	report, err := s.svc.RevenueSummary(r.Context(), from, to)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) dashboardReport(w http.ResponseWriter, r *http.Request) {
	dash, err := s.svc.DashboardStats(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dash)
}

var timeLayouts = []string{time.RFC3339, "2006-01-02", "2006-01"}

func parseTime(raw string) (time.Time, error) {
	var lastErr error
	for _, layout := range timeLayouts {
		t, err := time.Parse(layout, raw)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
