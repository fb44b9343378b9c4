package core

import (
	"context"
	"fmt"
	"time"

	"shelterhub/pkg/domain"
)

// OverdueGrace is how long a planned treatment may slip before the sweep flags it.
const OverdueGrace = 24 * time.Hour

// TreatmentFilter narrows ListTreatments. Zero values match everything.
type TreatmentFilter struct {
	CatID     string
	Status    TreatmentStatus
	DueBefore *time.Time
}

// ScheduleTreatment plans a treatment for a cat.
func (s *Service) ScheduleTreatment(ctx context.Context, treatment Treatment) (Treatment, Result, error) {
	ctx, done := s.begin(ctx, "schedule_treatment")
	treatment.Status = domain.TreatmentStatusPlanned
	treatment.AdministeredAt = nil
	if treatment.ScheduledAt.IsZero() {
		treatment.ScheduledAt = s.clock.Now()
	}
	var created Treatment
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		created, err = tx.CreateTreatment(treatment)
		return err
	})
	done(created.ID, res, err)
	return created, res, err
}

func (s *Service) transitionTreatment(ctx context.Context, op, id string, to TreatmentStatus, allowed ...TreatmentStatus) (Treatment, Result, error) {
	ctx, done := s.begin(ctx, op)
	var updated Treatment
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateTreatment(id, func(t *Treatment) error {
			for _, from := range allowed {
				if t.Status == from {
					t.Status = to
					return nil
				}
			}
			return domain.ConflictError{Entity: domain.EntityTreatment, ID: id, Reason: fmt.Sprintf("cannot move from %s to %s", t.Status, to)}
		})
		return err
	})
	done(id, res, err)
	return updated, res, err
}

// StartTreatment marks a planned or flagged treatment as in progress.
func (s *Service) StartTreatment(ctx context.Context, id string) (Treatment, Result, error) {
	return s.transitionTreatment(ctx, "start_treatment", id, domain.TreatmentStatusInProgress,
		domain.TreatmentStatusPlanned, domain.TreatmentStatusFlagged)
}

// CancelTreatment abandons an open treatment.
func (s *Service) CancelTreatment(ctx context.Context, id string) (Treatment, Result, error) {
	return s.transitionTreatment(ctx, "cancel_treatment", id, domain.TreatmentStatusCancelled,
		domain.TreatmentStatusPlanned, domain.TreatmentStatusInProgress, domain.TreatmentStatusFlagged)
}

// FlagTreatment marks a treatment as needing attention.
func (s *Service) FlagTreatment(ctx context.Context, id string) (Treatment, Result, error) {
	return s.transitionTreatment(ctx, "flag_treatment", id, domain.TreatmentStatusFlagged,
		domain.TreatmentStatusPlanned, domain.TreatmentStatusInProgress)
}

// CompleteTreatment records administration of an open treatment. A positive
// cost books a veterinary expense in the ledger within the same transaction.
// costCents of zero keeps the cost already on the treatment.
func (s *Service) CompleteTreatment(ctx context.Context, id, by string, at time.Time, costCents int64) (Treatment, Result, error) {
	ctx, done := s.begin(ctx, "complete_treatment")
	if costCents < 0 {
		err := domain.ValidationError{Entity: domain.EntityTreatment, Field: "cost_cents", Message: "must not be negative"}
		done(id, Result{}, err)
		return Treatment{}, Result{}, err
	}
	if at.IsZero() {
		at = s.clock.Now()
	}
	var updated Treatment
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateTreatment(id, func(t *Treatment) error {
			if !t.Status.Open() {
				return domain.ConflictError{Entity: domain.EntityTreatment, ID: id, Reason: fmt.Sprintf("treatment is %s", t.Status)}
			}
			t.Status = domain.TreatmentStatusCompleted
			t.AdministeredAt = &at
			t.AdministeredBy = by
			if costCents > 0 {
				t.CostCents = costCents
			}
			return nil
		})
		if err != nil || updated.CostCents == 0 {
			return err
		}
		note := string(updated.Kind)
		if cat, ok := tx.Snapshot().FindCat(updated.CatID); ok {
			note = fmt.Sprintf("%s for %s (#%d)", updated.Kind, cat.Name, cat.IntakeNumber)
		}
		treatmentID := updated.ID
		_, err = tx.CreateLedgerEntry(LedgerEntry{
			Kind:         domain.LedgerExpense,
			Category:     domain.CategoryVeterinary,
			AmountCents:  updated.CostCents,
			Currency:     s.currency,
			Counterparty: by,
			OccurredAt:   at,
			Note:         note,
			TreatmentID:  &treatmentID,
		})
		return err
	})
	done(id, res, err)
	return updated, res, err
}

// SweepOverdueTreatments flags planned treatments scheduled more than
// OverdueGrace before now and returns them.
func (s *Service) SweepOverdueTreatments(ctx context.Context, now time.Time) ([]Treatment, Result, error) {
	ctx, done := s.begin(ctx, "sweep_overdue_treatments")
	if now.IsZero() {
		now = s.clock.Now()
	}
	cutoff := now.Add(-OverdueGrace)
	var flagged []Treatment
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		flagged = flagged[:0]
		for _, t := range tx.Snapshot().ListTreatments() {
			if t.Status != domain.TreatmentStatusPlanned || !t.ScheduledAt.Before(cutoff) {
				continue
			}
			updated, err := tx.UpdateTreatment(t.ID, func(t *Treatment) error {
				t.Status = domain.TreatmentStatusFlagged
				return nil
			})
			if err != nil {
				return err
			}
			flagged = append(flagged, updated)
		}
		return nil
	})
	if err == nil && len(flagged) > 0 {
		s.logger.Info("flagged overdue treatments", "count", len(flagged), "cutoff", cutoff)
	}
	done("", res, err)
	return flagged, res, err
}

// ListTreatments returns treatments matching filter ordered by schedule.
func (s *Service) ListTreatments(ctx context.Context, filter TreatmentFilter) ([]Treatment, error) {
	ctx, done := s.begin(ctx, "list_treatments")
	var out []Treatment
	err := s.view(ctx, func(v TransactionView) error {
		out = make([]Treatment, 0)
		for _, t := range v.ListTreatments() {
			if filter.CatID != "" && t.CatID != filter.CatID {
				continue
			}
			if filter.Status != "" && t.Status != filter.Status {
				continue
			}
			if filter.DueBefore != nil && (!t.Status.Open() || !t.ScheduledAt.Before(*filter.DueBefore)) {
				continue
			}
			out = append(out, t)
		}
		return nil
	})
	done("", Result{}, err)
	return out, err
}
