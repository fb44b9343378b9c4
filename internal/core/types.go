package core

import "shelterhub/pkg/domain"

type (
	EntityType         = domain.EntityType
	Base               = domain.Base
	Ward               = domain.Ward
	Cage               = domain.Cage
	Cat                = domain.Cat
	CatStatus          = domain.CatStatus
	Treatment          = domain.Treatment
	TreatmentStatus    = domain.TreatmentStatus
	Donation           = domain.Donation
	LedgerEntry        = domain.LedgerEntry
	Team               = domain.Team
	User               = domain.User
	Role               = domain.Role
	Change             = domain.Change
	Action             = domain.Action
	Violation          = domain.Violation
	Result             = domain.Result
	RuleViolationError = domain.RuleViolationError
	RulesEngine        = domain.RulesEngine
	Rule               = domain.Rule
	Transaction        = domain.Transaction
	TransactionView    = domain.TransactionView
	PersistentStore    = domain.PersistentStore
	Snapshot           = domain.Snapshot
)

// NewRulesEngine constructs an empty engine.
func NewRulesEngine() *RulesEngine {
	return domain.NewRulesEngine()
}

// NewDefaultRulesEngine builds a rules engine with the built-in policy set.
func NewDefaultRulesEngine() *RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(NewCageCapacityRule())
	engine.Register(NewDepartedCatHousingRule())
	engine.Register(NewTreatmentSubjectStatusRule())
	engine.Register(NewAdminPresenceRule())
	return engine
}
