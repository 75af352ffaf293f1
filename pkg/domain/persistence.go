package domain

import (
	"context"
	"time"
)

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope. Every read made through a transaction sees
// the transaction's own pending writes.
type Transaction interface {
	Snapshot() TransactionView
	CreatePart(Part) (Part, error)
	UpdatePart(id string, mutator func(*Part) error) (Part, error)
	DeletePart(id string) error
	CreatePartType(PartType) (PartType, error)
	DeletePartType(name string) error
	CreateRobotDesign(RobotDesign) (RobotDesign, error)
	UpdateRobotDesign(id string, mutator func(*RobotDesign) error) (RobotDesign, error)
	DeleteRobotDesign(id string) error
	CreateRobotInstance(RobotInstance) (RobotInstance, error)
	UpdateRobotInstance(id string, mutator func(*RobotInstance) error) (RobotInstance, error)
	DeleteRobotInstance(id string) error
	FindPart(id string) (Part, bool)
	FindPartByBarcode(barcode string) (Part, bool)
	FindPartType(name string) (PartType, bool)
	FindRobotDesign(id string) (RobotDesign, bool)
	FindRobotInstance(id string) (RobotInstance, bool)
	Now() time.Time
}

// TransactionView provides read-only access to snapshot data for rules.
type TransactionView interface {
	RuleView
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetPart(id string) (Part, bool)
	ListParts() []Part
	ListPartTypes() []PartType
	GetRobotDesign(id string) (RobotDesign, bool)
	ListRobotDesigns() []RobotDesign
	GetRobotInstance(id string) (RobotInstance, bool)
	ListRobotInstances() []RobotInstance
}
