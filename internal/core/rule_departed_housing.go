package core

import (
	"context"
	"fmt"

	"shelterhub/pkg/domain"
)

// NewDepartedCatHousingRule blocks outcome-status cats from holding a cage place.
func NewDepartedCatHousingRule() domain.Rule {
	return departedCatHousingRule{}
}

type departedCatHousingRule struct{}

func (departedCatHousingRule) Name() string { return "departed_cat_housing" }

func (departedCatHousingRule) Evaluate(_ context.Context, view domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, id := range touchedCatIDs(changes) {
		cat, ok := view.FindCat(id)
		if !ok || !cat.Status.Departed() || !cat.Housed() {
			continue
		}
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     "departed_cat_housing",
			Severity: domain.SeverityBlock,
			Message:  fmt.Sprintf("cat %s is %s but still occupies cage %s", cat.Name, cat.Status, *cat.CageID),
			Entity:   domain.EntityCat,
			EntityID: cat.ID,
		})
	}
	return res, nil
}

// touchedCatIDs collects cats created or updated in the transaction, including
// the subjects of changed treatments.
func touchedCatIDs(changes []domain.Change) []string {
	seen := make(map[string]struct{})
	var ids []string
	add := func(id string) {
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	for _, change := range changes {
		switch after := change.After.(type) {
		case domain.Cat:
			add(after.ID)
		case domain.Treatment:
			add(after.CatID)
		}
	}
	return ids
}
