package core

import (
	"context"
	"strings"

	"shelterhub/pkg/domain"
)

// RecordDonation stores a donation and books the matching income entry in the
// ledger within one transaction.
func (s *Service) RecordDonation(ctx context.Context, donation Donation) (Donation, Result, error) {
	ctx, done := s.begin(ctx, "record_donation")
	if donation.ReceivedAt.IsZero() {
		donation.ReceivedAt = s.clock.Now()
	}
	donation.Email = domain.NormalizeEmail(donation.Email)
	var created Donation
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		created, err = tx.CreateDonation(donation)
		if err != nil {
			return err
		}
		donationID := created.ID
		_, err = tx.CreateLedgerEntry(LedgerEntry{
			Kind:         domain.LedgerIncome,
			Category:     domain.CategoryDonation,
			AmountCents:  created.AmountCents,
			Currency:     created.Currency,
			Counterparty: created.Donor,
			OccurredAt:   created.ReceivedAt,
			Note:         created.Note,
			DonationID:   &donationID,
		})
		return err
	})
	done(created.ID, res, err)
	return created, res, err
}

// RecordTransaction books a manual income or expense entry. Donation income
// goes through RecordDonation.
func (s *Service) RecordTransaction(ctx context.Context, entry LedgerEntry) (LedgerEntry, Result, error) {
	ctx, done := s.begin(ctx, "record_transaction")
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = s.clock.Now()
	}
	if entry.Kind == domain.LedgerIncome && entry.DonationID == nil &&
		strings.EqualFold(strings.TrimSpace(entry.Category), domain.CategoryDonation) {
		err := domain.ValidationError{Entity: domain.EntityLedgerEntry, Field: "category", Message: "donations are recorded with their donor"}
		done("", Result{}, err)
		return LedgerEntry{}, Result{}, err
	}
	var created LedgerEntry
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		created, err = tx.CreateLedgerEntry(entry)
		return err
	})
	done(created.ID, res, err)
	return created, res, err
}

// DeleteTransaction removes a ledger entry. Entries booked by a donation are
// removed together with the donation.
func (s *Service) DeleteTransaction(ctx context.Context, id string) (Result, error) {
	ctx, done := s.begin(ctx, "delete_transaction")
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		entry, ok := tx.Snapshot().FindLedgerEntry(id)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityLedgerEntry, ID: id}
		}
		if err := tx.DeleteLedgerEntry(id); err != nil {
			return err
		}
		if entry.DonationID != nil {
			return tx.DeleteDonation(*entry.DonationID)
		}
		return nil
	})
	done(id, res, err)
	return res, err
}

// ListDonations returns donations ordered by receipt time.
func (s *Service) ListDonations(ctx context.Context) ([]Donation, error) {
	ctx, done := s.begin(ctx, "list_donations")
	var out []Donation
	err := s.view(ctx, func(v TransactionView) error {
		out = v.ListDonations()
		return nil
	})
	done("", Result{}, err)
	return out, err
}

// ListTransactions returns ledger entries ordered by occurrence.
func (s *Service) ListTransactions(ctx context.Context) ([]LedgerEntry, error) {
	ctx, done := s.begin(ctx, "list_transactions")
	var out []LedgerEntry
	err := s.view(ctx, func(v TransactionView) error {
		out = v.ListLedgerEntries()
		return nil
	})
	done("", Result{}, err)
	return out, err
}
