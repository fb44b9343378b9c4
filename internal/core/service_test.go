package core

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"shelterhub/pkg/domain"
)

func TestCatLifecycle(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	ward, cage := seedCage(t, svc, 2)

	cat, _, err := svc.IntakeCat(ctx, Cat{Name: "Whiskers", CageID: strPtr(cage.ID)})
	if err != nil {
		t.Fatalf("intake: %v", err)
	}
	if cat.Status != domain.CatStatusSheltered || cat.IntakeNumber != 1 {
		t.Fatalf("unexpected intake result: %+v", cat)
	}
	if !cat.IntakeAt.Equal(fixedNow) {
		t.Fatalf("expected intake time from service clock, got %v", cat.IntakeAt)
	}

	inWard, err := svc.ListCats(ctx, CatFilter{WardID: ward.ID})
	if err != nil || len(inWard) != 1 {
		t.Fatalf("expected cat listed in ward, got %d (%v)", len(inWard), err)
	}

	released, _, err := svc.ReleaseCat(ctx, cat.ID)
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if released.Housed() {
		t.Fatalf("expected cage cleared")
	}
	if _, _, err := svc.ReleaseCat(ctx, cat.ID); err == nil {
		t.Fatalf("expected releasing an unhoused cat to conflict")
	}

	if _, _, err := svc.PlaceCat(ctx, cat.ID, cage.ID); err != nil {
		t.Fatalf("place: %v", err)
	}
	adoptedAt := fixedNow.Add(time.Hour)
	discharged, _, err := svc.DischargeCat(ctx, cat.ID, domain.CatStatusAdopted, adoptedAt)
	if err != nil {
		t.Fatalf("discharge: %v", err)
	}
	if discharged.Housed() || discharged.Status != domain.CatStatusAdopted || !discharged.OutcomeAt.Equal(adoptedAt) {
		t.Fatalf("unexpected discharge result: %+v", discharged)
	}
	if _, _, err := svc.PlaceCat(ctx, cat.ID, cage.ID); err == nil {
		t.Fatalf("expected placing a departed cat to conflict")
	}
	if _, _, err := svc.DischargeCat(ctx, cat.ID, domain.CatStatusSheltered, time.Time{}); err == nil {
		t.Fatalf("expected non-outcome discharge to fail validation")
	}

	residents, _ := svc.ListCats(ctx, CatFilter{})
	if len(residents) != 0 {
		t.Fatalf("expected departed cats hidden by default, got %d", len(residents))
	}
	all, _ := svc.ListCats(ctx, CatFilter{IncludeDeparted: true})
	if len(all) != 1 {
		t.Fatalf("expected departed cat when requested, got %d", len(all))
	}
}

func TestUpdateCatKeepsHousingFields(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	_, cage := seedCage(t, svc, 1)
	cat, _, err := svc.IntakeCat(ctx, Cat{Name: "Old", CageID: strPtr(cage.ID)})
	if err != nil {
		t.Fatalf("intake: %v", err)
	}
	updated, _, err := svc.UpdateCat(ctx, cat.ID, func(c *Cat) error {
		c.Name = "New"
		c.CageID = nil
		c.Status = domain.CatStatusDeceased
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Name != "New" || !updated.Housed() || updated.Status != domain.CatStatusSheltered {
		t.Fatalf("expected only descriptive fields to change, got %+v", updated)
	}
	if _, _, err := svc.SetMedicalHold(ctx, cat.ID, true); err != nil {
		t.Fatalf("medical hold: %v", err)
	}
	got, _ := svc.GetCat(ctx, cat.ID)
	if got.Status != domain.CatStatusMedicalHold {
		t.Fatalf("expected medical hold, got %s", got.Status)
	}
}

func TestConcurrentIntakeAllocatesUniqueNumbers(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	const n = 25
	numbers := make([]int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cat, _, err := svc.IntakeCat(ctx, Cat{Name: "Kitten"})
			if err != nil {
				t.Errorf("intake %d: %v", i, err)
				return
			}
			numbers[i] = cat.IntakeNumber
		}(i)
	}
	wg.Wait()
	sort.Slice(numbers, func(i, j int) bool { return numbers[i] < numbers[j] })
	for i, num := range numbers {
		if num != int64(i+1) {
			t.Fatalf("expected dense unique intake numbers, got %v", numbers)
		}
	}
}

func TestTreatmentWorkflowBooksExpense(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	cat := intake(t, svc, "Patient")

	treatment, _, err := svc.ScheduleTreatment(ctx, Treatment{CatID: cat.ID, Kind: domain.TreatmentSurgery, Status: domain.TreatmentStatusCompleted})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if treatment.Status != domain.TreatmentStatusPlanned {
		t.Fatalf("expected scheduling to force planned status, got %s", treatment.Status)
	}
	if _, _, err := svc.StartTreatment(ctx, treatment.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	completedAt := fixedNow.Add(2 * time.Hour)
	completed, _, err := svc.CompleteTreatment(ctx, treatment.ID, "Dr. Vet", completedAt, 12000)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if completed.Status != domain.TreatmentStatusCompleted || completed.AdministeredBy != "Dr. Vet" {
		t.Fatalf("unexpected completion: %+v", completed)
	}
	if _, _, err := svc.CancelTreatment(ctx, treatment.ID); err == nil {
		t.Fatalf("expected cancel after completion to conflict")
	}

	entries, err := svc.ListTransactions(ctx)
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one ledger entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.Kind != domain.LedgerExpense || entry.Category != domain.CategoryVeterinary || entry.AmountCents != 12000 {
		t.Fatalf("unexpected ledger entry: %+v", entry)
	}
	if entry.TreatmentID == nil || *entry.TreatmentID != treatment.ID || !entry.OccurredAt.Equal(completedAt) {
		t.Fatalf("expected ledger entry linked to treatment at completion time: %+v", entry)
	}

	free, _, err := svc.ScheduleTreatment(ctx, Treatment{CatID: cat.ID, Kind: domain.TreatmentCheckup})
	if err != nil {
		t.Fatalf("schedule free: %v", err)
	}
	if _, _, err := svc.CompleteTreatment(ctx, free.ID, "Volunteer", time.Time{}, 0); err != nil {
		t.Fatalf("complete free: %v", err)
	}
	entries, _ = svc.ListTransactions(ctx)
	if len(entries) != 1 {
		t.Fatalf("expected no ledger entry for zero cost, got %d", len(entries))
	}
}

func TestDischargeWarnsAboutOpenTreatments(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	cat := intake(t, svc, "Traveller")
	if _, _, err := svc.ScheduleTreatment(ctx, Treatment{CatID: cat.ID, Kind: domain.TreatmentVaccination, ScheduledAt: fixedNow.Add(24 * time.Hour)}); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	_, res, err := svc.DischargeCat(ctx, cat.ID, domain.CatStatusTransferred, time.Time{})
	if err != nil {
		t.Fatalf("discharge: %v", err)
	}
	if !hasViolation(res, "treatment_subject_status", domain.SeverityWarn) {
		t.Fatalf("expected treatment warning, got %+v", res)
	}
	if _, err := svc.DeleteCat(ctx, cat.ID); err == nil {
		t.Fatalf("expected delete of cat with history to conflict")
	}
}

func TestSweepOverdueTreatments(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	cat := intake(t, svc, "Late")
	overdue, _, err := svc.ScheduleTreatment(ctx, Treatment{CatID: cat.ID, Kind: domain.TreatmentDeworming, ScheduledAt: fixedNow.Add(-48 * time.Hour)})
	if err != nil {
		t.Fatalf("schedule overdue: %v", err)
	}
	if _, _, err := svc.ScheduleTreatment(ctx, Treatment{CatID: cat.ID, Kind: domain.TreatmentCheckup, ScheduledAt: fixedNow.Add(-time.Hour)}); err != nil {
		t.Fatalf("schedule recent: %v", err)
	}

	flagged, _, err := svc.SweepOverdueTreatments(ctx, fixedNow)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(flagged) != 1 || flagged[0].ID != overdue.ID || flagged[0].Status != domain.TreatmentStatusFlagged {
		t.Fatalf("expected only the overdue treatment flagged, got %+v", flagged)
	}
	again, _, err := svc.SweepOverdueTreatments(ctx, fixedNow)
	if err != nil || len(again) != 0 {
		t.Fatalf("expected idempotent sweep, got %d (%v)", len(again), err)
	}
	due := fixedNow
	pending, _ := svc.ListTreatments(ctx, TreatmentFilter{DueBefore: &due})
	if len(pending) != 2 {
		t.Fatalf("expected two open treatments due, got %d", len(pending))
	}
}

func TestDonationBooksIncomeAndDeletesTogether(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	donation, _, err := svc.RecordDonation(ctx, Donation{Donor: "Jane", Email: " Jane@Example.org", AmountCents: 5000})
	if err != nil {
		t.Fatalf("record donation: %v", err)
	}
	if donation.Email != "jane@example.org" || donation.Currency != domain.DefaultCurrency {
		t.Fatalf("unexpected donation normalization: %+v", donation)
	}
	entries, _ := svc.ListTransactions(ctx)
	if len(entries) != 1 || entries[0].Kind != domain.LedgerIncome || entries[0].Category != domain.CategoryDonation {
		t.Fatalf("expected donation income entry, got %+v", entries)
	}

	if _, _, err := svc.RecordTransaction(ctx, LedgerEntry{Kind: domain.LedgerIncome, Category: "donation", AmountCents: 10}); err == nil {
		t.Fatalf("expected manual donation entries to be rejected")
	}

	if _, err := svc.DeleteTransaction(ctx, entries[0].ID); err != nil {
		t.Fatalf("delete transaction: %v", err)
	}
	donations, _ := svc.ListDonations(ctx)
	if len(donations) != 0 {
		t.Fatalf("expected donation removed with its ledger entry")
	}
	var notFound domain.NotFoundError
	if _, err := svc.DeleteTransaction(ctx, "missing"); !errors.As(err, &notFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAuthenticate(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	if _, _, err := svc.CreateUser(ctx, NewUser{Email: "short@example.org", Password: "short", Role: domain.RoleAdmin}); err == nil {
		t.Fatalf("expected short password to be rejected")
	}
	team, _, err := svc.CreateTeam(ctx, Team{Name: "Cattery"})
	if err != nil {
		t.Fatalf("create team: %v", err)
	}
	admin, _, err := svc.CreateUser(ctx, NewUser{Email: "Boss@Example.org", Password: "correct horse", Role: domain.RoleAdmin, TeamID: &team.ID})
	if err != nil {
		t.Fatalf("create admin: %v", err)
	}
	user, err := svc.Authenticate(ctx, "boss@example.org", "correct horse")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if user.ID != admin.ID || user.PasswordHash != "" {
		t.Fatalf("unexpected authenticated user: %+v", user)
	}
	if _, err := svc.Authenticate(ctx, "boss@example.org", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if _, err := svc.Authenticate(ctx, "nobody@example.org", "correct horse"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for unknown user, got %v", err)
	}
	if cost, err := bcrypt.Cost(svc.decoyHash()); err != nil || cost != bcrypt.MinCost {
		t.Fatalf("expected unknown logins to hash at the service cost, got cost=%d err=%v", cost, err)
	}
	if _, err := svc.Authenticate(ctx, "nobody@example.org", "shelterhub-no-such-user"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected decoy password rejected, got %v", err)
	}

	caretaker, _, err := svc.CreateUser(ctx, NewUser{Email: "care@example.org", Password: "password1", Role: domain.RoleCaretaker})
	if err != nil {
		t.Fatalf("create caretaker: %v", err)
	}
	if _, _, err := svc.AssignUserTeam(ctx, caretaker.ID, &team.ID); err != nil {
		t.Fatalf("assign team: %v", err)
	}
	if _, err := svc.DeleteTeam(ctx, team.ID); err == nil {
		t.Fatalf("expected team with members to conflict")
	}
	if _, _, err := svc.DeactivateUser(ctx, caretaker.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := svc.Authenticate(ctx, "care@example.org", "password1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected inactive user rejected, got %v", err)
	}
	users, _ := svc.ListUsers(ctx)
	for _, u := range users {
		if u.PasswordHash != "" {
			t.Fatalf("expected hashes stripped from listing")
		}
	}
}

func TestWardAdministration(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	ward, cage := seedCage(t, svc, 1)

	renamed, _, err := svc.UpdateWard(ctx, ward.ID, func(w *Ward) error {
		w.Name = "Quarantine"
		return nil
	})
	if err != nil || renamed.Name != "Quarantine" {
		t.Fatalf("rename ward: %+v err=%v", renamed, err)
	}
	var conflict domain.ConflictError
	if _, err := svc.DeleteWard(ctx, ward.ID); !errors.As(err, &conflict) {
		t.Fatalf("expected conflict deleting ward with cages, got %v", err)
	}
	if _, err := svc.DeleteCage(ctx, cage.ID); err != nil {
		t.Fatalf("delete empty cage: %v", err)
	}
	if _, err := svc.DeleteWard(ctx, ward.ID); err != nil {
		t.Fatalf("delete empty ward: %v", err)
	}
	var notFound domain.NotFoundError
	if _, err := svc.DeleteWard(ctx, ward.ID); !errors.As(err, &notFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestResidentStatusAndFlagging(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	cat, _, err := svc.IntakeCat(ctx, Cat{Name: "Pepper"})
	if err != nil {
		t.Fatalf("intake: %v", err)
	}
	var invalid domain.ValidationError
	if _, _, err := svc.UpdateCatStatus(ctx, cat.ID, domain.CatStatusAdopted); !errors.As(err, &invalid) {
		t.Fatalf("expected outcome status to be rejected, got %v", err)
	}
	updated, _, err := svc.UpdateCatStatus(ctx, cat.ID, domain.CatStatusSheltered)
	if err != nil || updated.Status != domain.CatStatusSheltered {
		t.Fatalf("update status: %+v err=%v", updated, err)
	}

	treatment, _, err := svc.ScheduleTreatment(ctx, Treatment{CatID: cat.ID, Kind: domain.TreatmentCheckup, ScheduledAt: fixedNow})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	flagged, _, err := svc.FlagTreatment(ctx, treatment.ID)
	if err != nil || flagged.Status != domain.TreatmentStatusFlagged {
		t.Fatalf("flag: %+v err=%v", flagged, err)
	}
	var conflict domain.ConflictError
	if _, _, err := svc.FlagTreatment(ctx, treatment.ID); !errors.As(err, &conflict) {
		t.Fatalf("expected flagging twice to conflict, got %v", err)
	}
	started, _, err := svc.StartTreatment(ctx, treatment.ID)
	if err != nil || started.Status != domain.TreatmentStatusInProgress {
		t.Fatalf("start flagged treatment: %+v err=%v", started, err)
	}
}
