package core

import (
	"context"
	"sort"
	"time"

	"shelterhub/pkg/domain"
)

// CageOccupancy reports derived occupancy for a single cage.
type CageOccupancy struct {
	CageID   string `json:"cage_id"`
	Label    string `json:"label"`
	Capacity int    `json:"capacity"`
	Occupied int    `json:"occupied"`
	Free     int    `json:"free"`
}

// WardOccupancy aggregates the cages of a ward.
type WardOccupancy struct {
	WardID   string          `json:"ward_id"`
	Name     string          `json:"name"`
	Capacity int             `json:"capacity"`
	Occupied int             `json:"occupied"`
	Free     int             `json:"free"`
	Cages    []CageOccupancy `json:"cages"`
}

// OccupancyReport is computed from cat placements; no counters are stored.
type OccupancyReport struct {
	Wards      []WardOccupancy `json:"wards"`
	Capacity   int             `json:"capacity"`
	Occupied   int             `json:"occupied"`
	Free       int             `json:"free"`
	Unassigned int             `json:"unassigned"`
}

// Occupancy derives per-ward and per-cage occupancy.
func (s *Service) Occupancy(ctx context.Context) (OccupancyReport, error) {
	ctx, done := s.begin(ctx, "report_occupancy")
	var report OccupancyReport
	err := s.view(ctx, func(v TransactionView) error {
		report = buildOccupancy(v)
		return nil
	})
	done("", Result{}, err)
	return report, err
}

func buildOccupancy(v TransactionView) OccupancyReport {
	cats := v.ListCats()
	occupancy := occupancyByCage(cats)
	byWard := make(map[string][]CageOccupancy)
	for _, cage := range v.ListCages() {
		occupied := occupancy[cage.ID]
		byWard[cage.WardID] = append(byWard[cage.WardID], CageOccupancy{
			CageID:   cage.ID,
			Label:    cage.Label,
			Capacity: cage.Capacity,
			Occupied: occupied,
			Free:     max(cage.Capacity-occupied, 0),
		})
	}

	report := OccupancyReport{Wards: make([]WardOccupancy, 0)}
	for _, ward := range v.ListWards() {
		row := WardOccupancy{WardID: ward.ID, Name: ward.Name, Cages: byWard[ward.ID]}
		if row.Cages == nil {
			row.Cages = []CageOccupancy{}
		}
		for _, c := range row.Cages {
			row.Capacity += c.Capacity
			row.Occupied += c.Occupied
			row.Free += c.Free
		}
		report.Capacity += row.Capacity
		report.Occupied += row.Occupied
		report.Free += row.Free
		report.Wards = append(report.Wards, row)
	}
	for _, cat := range cats {
		if !cat.Housed() && !cat.Status.Departed() {
			report.Unassigned++
		}
	}
	return report
}

// RevenueMonth summarizes ledger activity for one calendar month.
type RevenueMonth struct {
	Month       string `json:"month"`
	Donations   int64  `json:"donations_cents"`
	OtherIncome int64  `json:"other_income_cents"`
	Expenses    int64  `json:"expenses_cents"`
	Net         int64  `json:"net_cents"`
}

// RevenueReport covers [From, To) in the reporting currency. Skipped counts
// entries in other currencies left out of the sums.
type RevenueReport struct {
	From     time.Time      `json:"from"`
	To       time.Time      `json:"to"`
	Currency string         `json:"currency"`
	Months   []RevenueMonth `json:"months"`
	Totals   RevenueMonth   `json:"totals"`
	Skipped  int            `json:"skipped_entries"`
}

const monthLayout = "2006-01"

func monthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// RevenueSummary sums ledger entries per month over [from, to). A zero from
// starts at the earliest entry; a zero to ends now.
func (s *Service) RevenueSummary(ctx context.Context, from, to time.Time) (RevenueReport, error) {
	ctx, done := s.begin(ctx, "report_revenue")
	if to.IsZero() {
		to = s.clock.Now()
	}
	if !from.IsZero() && !from.Before(to) {
		err := domain.ValidationError{Entity: domain.EntityLedgerEntry, Field: "from", Message: "must be before to"}
		done("", Result{}, err)
		return RevenueReport{}, err
	}
	var report RevenueReport
	err := s.view(ctx, func(v TransactionView) error {
		report = buildRevenue(v.ListLedgerEntries(), from, to, s.currency)
		return nil
	})
	done("", Result{}, err)
	return report, err
}

func buildRevenue(entries []LedgerEntry, from, to time.Time, currency string) RevenueReport {
	if from.IsZero() {
		from = to
		for _, e := range entries {
			if e.OccurredAt.Before(from) {
				from = e.OccurredAt
			}
		}
		from = monthStart(from)
	}
	report := RevenueReport{From: from.UTC(), To: to.UTC(), Currency: currency, Months: make([]RevenueMonth, 0)}

	months := make(map[string]*RevenueMonth)
	for m := monthStart(from); m.Before(to); m = m.AddDate(0, 1, 0) {
		report.Months = append(report.Months, RevenueMonth{Month: m.Format(monthLayout)})
	}
	for i := range report.Months {
		months[report.Months[i].Month] = &report.Months[i]
	}

	for _, e := range entries {
		if e.OccurredAt.Before(from) || !e.OccurredAt.Before(to) {
			continue
		}
		if e.Currency != currency {
			report.Skipped++
			continue
		}
		row := months[e.OccurredAt.UTC().Format(monthLayout)]
		if row == nil {
			continue
		}
		switch {
		case e.Kind == domain.LedgerExpense:
			row.Expenses += e.AmountCents
		case e.Category == domain.CategoryDonation:
			row.Donations += e.AmountCents
		default:
			row.OtherIncome += e.AmountCents
		}
	}

	report.Totals.Month = "total"
	for i := range report.Months {
		row := &report.Months[i]
		row.Net = row.Donations + row.OtherIncome - row.Expenses
		report.Totals.Donations += row.Donations
		report.Totals.OtherIncome += row.OtherIncome
		report.Totals.Expenses += row.Expenses
		report.Totals.Net += row.Net
	}
	return report
}

// Dashboard summarizes current shelter state.
type Dashboard struct {
	GeneratedAt        time.Time         `json:"generated_at"`
	CatsByStatus       map[CatStatus]int `json:"cats_by_status"`
	Residents          int               `json:"residents"`
	FreePlaces         int               `json:"free_places"`
	TreatmentsDueSoon  int               `json:"treatments_due_soon"`
	OverdueTreatments  int               `json:"overdue_treatments"`
	DonationsThisMonth int64             `json:"donations_this_month_cents"`
	ExpensesThisMonth  int64             `json:"expenses_this_month_cents"`
	UpcomingTreatments []Treatment       `json:"upcoming_treatments"`
	TreatmentsByKind   map[string]int    `json:"open_treatments_by_kind"`
	Currency           string            `json:"currency"`
}

// DashboardWindow is the look-ahead used for treatments due soon.
const DashboardWindow = 7 * 24 * time.Hour

// DashboardStats derives headline numbers for the staff dashboard.
func (s *Service) DashboardStats(ctx context.Context) (Dashboard, error) {
	ctx, done := s.begin(ctx, "report_dashboard")
	now := s.clock.Now()
	var dash Dashboard
	err := s.view(ctx, func(v TransactionView) error {
		dash = Dashboard{
			GeneratedAt:        now,
			CatsByStatus:       make(map[CatStatus]int),
			TreatmentsByKind:   make(map[string]int),
			UpcomingTreatments: make([]Treatment, 0),
			Currency:           s.currency,
		}
		for _, cat := range v.ListCats() {
			dash.CatsByStatus[cat.Status]++
			if !cat.Status.Departed() {
				dash.Residents++
			}
		}
		dash.FreePlaces = buildOccupancy(v).Free

		horizon := now.Add(DashboardWindow)
		for _, t := range v.ListTreatments() {
			if !t.Status.Open() {
				continue
			}
			dash.TreatmentsByKind[string(t.Kind)]++
			switch {
			case t.Status == domain.TreatmentStatusFlagged || t.ScheduledAt.Before(now):
				dash.OverdueTreatments++
			case t.ScheduledAt.Before(horizon):
				dash.TreatmentsDueSoon++
				dash.UpcomingTreatments = append(dash.UpcomingTreatments, t)
			}
		}
		sort.Slice(dash.UpcomingTreatments, func(i, j int) bool {
			return dash.UpcomingTreatments[i].ScheduledAt.Before(dash.UpcomingTreatments[j].ScheduledAt)
		})

		month := monthStart(now)
		for _, e := range v.ListLedgerEntries() {
			if e.Currency != s.currency || e.OccurredAt.Before(month) || e.OccurredAt.After(now) {
				continue
			}
			switch {
			case e.Kind == domain.LedgerExpense:
				dash.ExpensesThisMonth += e.AmountCents
			case e.Category == domain.CategoryDonation:
				dash.DonationsThisMonth += e.AmountCents
			}
		}
		return nil
	})
	done("", Result{}, err)
	return dash, err
}
