package core

import (
	"context"
	"testing"
	"time"

	"shelterhub/pkg/domain"
)

func TestOccupancyIsDerivedFromPlacements(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	ward, cage := seedCage(t, svc, 3)
	if _, _, err := svc.CreateWard(ctx, Ward{Name: "Empty"}); err != nil {
		t.Fatalf("create empty ward: %v", err)
	}
	for _, name := range []string{"A", "B"} {
		if _, _, err := svc.IntakeCat(ctx, Cat{Name: name, CageID: strPtr(cage.ID)}); err != nil {
			t.Fatalf("intake %s: %v", name, err)
		}
	}
	intake(t, svc, "Waiting")

	report, err := svc.Occupancy(ctx)
	if err != nil {
		t.Fatalf("occupancy: %v", err)
	}
	if report.Capacity != 3 || report.Occupied != 2 || report.Free != 1 || report.Unassigned != 1 {
		t.Fatalf("unexpected totals: %+v", report)
	}
	if len(report.Wards) != 2 {
		t.Fatalf("expected two wards, got %d", len(report.Wards))
	}
	var main WardOccupancy
	for _, w := range report.Wards {
		if w.WardID == ward.ID {
			main = w
		}
	}
	if len(main.Cages) != 1 || main.Cages[0].Occupied != 2 || main.Cages[0].Free != 1 {
		t.Fatalf("unexpected cage occupancy: %+v", main)
	}
}

func TestRevenueSummaryPerMonth(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	at := func(month time.Month, day int) time.Time { return time.Date(2024, month, day, 10, 0, 0, 0, time.UTC) }

	for _, d := range []Donation{
		{Donor: "A", AmountCents: 1000, ReceivedAt: at(time.January, 15)},
		{Donor: "B", AmountCents: 500, ReceivedAt: at(time.February, 3)},
		{Donor: "C", AmountCents: 999, Currency: "USD", ReceivedAt: at(time.February, 4)},
		{Donor: "D", AmountCents: 100, ReceivedAt: at(time.June, 1)},
	} {
		if _, _, err := svc.RecordDonation(ctx, d); err != nil {
			t.Fatalf("record donation: %v", err)
		}
	}
	if _, _, err := svc.RecordTransaction(ctx, LedgerEntry{Kind: domain.LedgerIncome, Category: "grant", AmountCents: 2000, OccurredAt: at(time.February, 10)}); err != nil {
		t.Fatalf("record grant: %v", err)
	}
	cat := intake(t, svc, "Vet visit")
	treatment, _, err := svc.ScheduleTreatment(ctx, Treatment{CatID: cat.ID, Kind: domain.TreatmentMedication})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if _, _, err := svc.CompleteTreatment(ctx, treatment.ID, "vet", at(time.March, 1), 700); err != nil {
		t.Fatalf("complete: %v", err)
	}

	report, err := svc.RevenueSummary(ctx, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("revenue: %v", err)
	}
	if len(report.Months) != 3 {
		t.Fatalf("expected three months, got %+v", report.Months)
	}
	want := []RevenueMonth{
		{Month: "2024-01", Donations: 1000, Net: 1000},
		{Month: "2024-02", Donations: 500, OtherIncome: 2000, Net: 2500},
		{Month: "2024-03", Expenses: 700, Net: -700},
	}
	for i, w := range want {
		if report.Months[i] != w {
			t.Fatalf("month %d: want %+v got %+v", i, w, report.Months[i])
		}
	}
	if report.Totals.Net != 2800 || report.Skipped != 1 || report.Currency != "EUR" {
		t.Fatalf("unexpected totals: %+v", report)
	}

	if _, err := svc.RevenueSummary(ctx, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)); err == nil {
		t.Fatalf("expected inverted range to fail")
	}
	open, err := svc.RevenueSummary(ctx, time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("open range: %v", err)
	}
	if open.Months[0].Month != "2024-01" || open.Months[len(open.Months)-1].Month != "2024-05" {
		t.Fatalf("expected range from first entry to clock month, got %s..%s", open.Months[0].Month, open.Months[len(open.Months)-1].Month)
	}
}

func TestDashboardStats(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	_, cage := seedCage(t, svc, 2)
	cat, _, err := svc.IntakeCat(ctx, Cat{Name: "Resident", CageID: strPtr(cage.ID)})
	if err != nil {
		t.Fatalf("intake: %v", err)
	}
	gone := intake(t, svc, "Adopted")
	if _, _, err := svc.DischargeCat(ctx, gone.ID, domain.CatStatusAdopted, time.Time{}); err != nil {
		t.Fatalf("discharge: %v", err)
	}
	if _, _, err := svc.ScheduleTreatment(ctx, Treatment{CatID: cat.ID, Kind: domain.TreatmentVaccination, ScheduledAt: fixedNow.Add(48 * time.Hour)}); err != nil {
		t.Fatalf("schedule soon: %v", err)
	}
	if _, _, err := svc.ScheduleTreatment(ctx, Treatment{CatID: cat.ID, Kind: domain.TreatmentCheckup, ScheduledAt: fixedNow.Add(-time.Hour)}); err != nil {
		t.Fatalf("schedule late: %v", err)
	}
	if _, _, err := svc.RecordDonation(ctx, Donation{Donor: "X", AmountCents: 2500, ReceivedAt: fixedNow.Add(-time.Hour)}); err != nil {
		t.Fatalf("donation: %v", err)
	}

	dash, err := svc.DashboardStats(ctx)
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if dash.Residents != 1 || dash.CatsByStatus[domain.CatStatusAdopted] != 1 {
		t.Fatalf("unexpected cat counts: %+v", dash)
	}
	if dash.FreePlaces != 1 || dash.TreatmentsDueSoon != 1 || dash.OverdueTreatments != 1 {
		t.Fatalf("unexpected treatment or capacity stats: %+v", dash)
	}
	if dash.DonationsThisMonth != 2500 || len(dash.UpcomingTreatments) != 1 {
		t.Fatalf("unexpected finance stats: %+v", dash)
	}
}
