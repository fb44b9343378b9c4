package postgres

import (
	"context"
	"fmt"
	"sort"

	"shelterhub/pkg/domain"
)

type mirrorRow struct {
	table string
	query string
	args  []any
}

// writeMirror replaces the normalized tables with the snapshot contents.
func writeMirror(ctx context.Context, tx execer, snapshot domain.Snapshot) error {
	for i := len(mirrorTables) - 1; i >= 0; i-- {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+mirrorTables[i]); err != nil {
			return fmt.Errorf("clear %s: %w", mirrorTables[i], err)
		}
	}
	for _, row := range mirrorRows(snapshot) {
		if _, err := tx.ExecContext(ctx, row.query, row.args...); err != nil {
			return fmt.Errorf("insert %s: %w", row.table, err)
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// mirrorRows renders insert statements in foreign-key dependency order.
func mirrorRows(s domain.Snapshot) []mirrorRow {
	var rows []mirrorRow
	for _, id := range sortedKeys(s.Wards) {
		w := s.Wards[id]
		rows = append(rows, mirrorRow{"wards",
			`INSERT INTO wards (id, name, description, created_at, updated_at) VALUES ($1,$2,$3,$4,$5)`,
			[]any{w.ID, w.Name, w.Description, w.CreatedAt, w.UpdatedAt}})
	}
	for _, id := range sortedKeys(s.Cages) {
		c := s.Cages[id]
		rows = append(rows, mirrorRow{"cages",
			`INSERT INTO cages (id, ward_id, label, capacity, created_at, updated_at) VALUES ($1,$2,$3,$4,$5,$6)`,
			[]any{c.ID, c.WardID, c.Label, c.Capacity, c.CreatedAt, c.UpdatedAt}})
	}
	for _, id := range sortedKeys(s.Teams) {
		t := s.Teams[id]
		rows = append(rows, mirrorRow{"teams",
			`INSERT INTO teams (id, name, description, created_at, updated_at) VALUES ($1,$2,$3,$4,$5)`,
			[]any{t.ID, t.Name, t.Description, t.CreatedAt, t.UpdatedAt}})
	}
	for _, id := range sortedKeys(s.Users) {
		u := s.Users[id]
		rows = append(rows, mirrorRow{"users",
			`INSERT INTO users (id, email, name, password_hash, role, team_id, active, created_at, updated_at) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			[]any{u.ID, u.Email, u.Name, u.PasswordHash, string(u.Role), u.TeamID, u.Active, u.CreatedAt, u.UpdatedAt}})
	}
	for _, id := range sortedKeys(s.Cats) {
		c := s.Cats[id]
		rows = append(rows, mirrorRow{"cats",
			`INSERT INTO cats (id, intake_number, name, status, cage_id, intake_at, outcome_at, created_at, updated_at) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			[]any{c.ID, c.IntakeNumber, c.Name, string(c.Status), c.CageID, c.IntakeAt, c.OutcomeAt, c.CreatedAt, c.UpdatedAt}})
	}
	for _, id := range sortedKeys(s.Treatments) {
		t := s.Treatments[id]
		rows = append(rows, mirrorRow{"treatments",
			`INSERT INTO treatments (id, cat_id, kind, status, scheduled_at, cost_cents, created_at, updated_at) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			[]any{t.ID, t.CatID, string(t.Kind), string(t.Status), t.ScheduledAt, t.CostCents, t.CreatedAt, t.UpdatedAt}})
	}
	for _, id := range sortedKeys(s.Donations) {
		d := s.Donations[id]
		rows = append(rows, mirrorRow{"donations",
			`INSERT INTO donations (id, donor, amount_cents, currency, received_at, cat_id, created_at, updated_at) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			[]any{d.ID, d.Donor, d.AmountCents, d.Currency, d.ReceivedAt, d.CatID, d.CreatedAt, d.UpdatedAt}})
	}
	for _, id := range sortedKeys(s.Ledger) {
		e := s.Ledger[id]
		rows = append(rows, mirrorRow{"ledger_entries",
			`INSERT INTO ledger_entries (id, kind, category, amount_cents, currency, occurred_at, treatment_id, donation_id, created_at, updated_at) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
			[]any{e.ID, string(e.Kind), e.Category, e.AmountCents, e.Currency, e.OccurredAt, e.TreatmentID, e.DonationID, e.CreatedAt, e.UpdatedAt}})
	}
	return rows
}
