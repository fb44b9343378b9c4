package core

import (
	"context"
	"fmt"

	"shelterhub/pkg/domain"
)

// NewTreatmentSubjectStatusRule warns when pending care targets a cat that has left.
func NewTreatmentSubjectStatusRule() domain.Rule {
	return treatmentSubjectStatusRule{}
}

type treatmentSubjectStatusRule struct{}

func (treatmentSubjectStatusRule) Name() string { return "treatment_subject_status" }

func (treatmentSubjectStatusRule) Evaluate(_ context.Context, view domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	touched := touchedCatIDs(changes)
	if len(touched) == 0 {
		return domain.Result{}, nil
	}
	departed := make(map[string]domain.Cat, len(touched))
	for _, id := range touched {
		if cat, ok := view.FindCat(id); ok && cat.Status.Departed() {
			departed[id] = cat
		}
	}
	if len(departed) == 0 {
		return domain.Result{}, nil
	}

	res := domain.Result{}
	for _, treatment := range view.ListTreatments() {
		cat, ok := departed[treatment.CatID]
		if !ok {
			continue
		}
		if treatment.Status != domain.TreatmentStatusPlanned && treatment.Status != domain.TreatmentStatusInProgress {
			continue
		}
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     "treatment_subject_status",
			Severity: domain.SeverityWarn,
			Message:  fmt.Sprintf("%s treatment %s is %s for cat %s with status %s", treatment.Kind, treatment.ID, treatment.Status, cat.Name, cat.Status),
			Entity:   domain.EntityTreatment,
			EntityID: treatment.ID,
		})
	}
	return res, nil
}
