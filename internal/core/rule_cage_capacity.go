package core

import (
	"context"
	"fmt"

	"shelterhub/pkg/domain"
)

// NewCageCapacityRule returns the rule that keeps cage occupancy within capacity.
func NewCageCapacityRule() domain.Rule {
	return cageCapacityRule{}
}

type cageCapacityRule struct{}

func (cageCapacityRule) Name() string { return "cage_capacity" }

func (cageCapacityRule) Evaluate(_ context.Context, view domain.TransactionView, _ []domain.Change) (domain.Result, error) {
	occupancy := occupancyByCage(view.ListCats())

	res := domain.Result{}
	for _, cage := range view.ListCages() {
		count := occupancy[cage.ID]
		if count > cage.Capacity {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "cage_capacity",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("cage %s (%s) over capacity: %d/%d cats", cage.Label, cage.ID, count, cage.Capacity),
				Entity:   domain.EntityCage,
				EntityID: cage.ID,
			})
		}
	}
	return res, nil
}

func occupancyByCage(cats []domain.Cat) map[string]int {
	occupancy := make(map[string]int)
	for _, cat := range cats {
		if !cat.Housed() {
			continue
		}
		occupancy[*cat.CageID]++
	}
	return occupancy
}
