package core

import (
	"assemblycore/internal/infra/persistence/memory"
	"assemblycore/pkg/domain"
)

type (
	EntityType         = domain.EntityType
	Part               = domain.Part
	PartState          = domain.PartState
	PartType           = domain.PartType
	PartPatch          = domain.PartPatch
	RequiredPart       = domain.RequiredPart
	RobotDesign        = domain.RobotDesign
	DesignPatch        = domain.DesignPatch
	RobotInstance      = domain.RobotInstance
	InstancePatch      = domain.InstancePatch
	AssignedPart       = domain.AssignedPart
	HistoryEntry       = domain.AuditEntry
	Fulfillment        = domain.Fulfillment
	FulfillmentStatus  = domain.FulfillmentStatus
	Change             = domain.Change
	Action             = domain.Action
	Severity           = domain.Severity
	Violation          = domain.Violation
	Result             = domain.Result
	Rule               = domain.Rule
	RulesEngine        = domain.RulesEngine
	RuleViolationError = domain.RuleViolationError
	Transaction        = domain.Transaction
	TransactionView    = domain.TransactionView
	PersistentStore    = domain.PersistentStore
)

const (
	EntityPart          = domain.EntityPart
	EntityPartType      = domain.EntityPartType
	EntityRobotDesign   = domain.EntityRobotDesign
	EntityRobotInstance = domain.EntityRobotInstance
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	StatusComplete   = domain.StatusComplete
	StatusIncomplete = domain.StatusIncomplete
)

const (
	PartStateWorking      = domain.PartStateWorking
	PartStateBroken       = domain.PartStateBroken
	PartStateNeedsService = domain.PartStateNeedsService
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
)

// NewMemoryStore constructs the default in-memory store.
func NewMemoryStore(engine *RulesEngine, opts ...memory.Option) *memory.Store {
	return memory.NewStore(engine, opts...)
}

// NewRulesEngine constructs an empty rules engine.
func NewRulesEngine() *RulesEngine {
	return domain.NewRulesEngine()
}
