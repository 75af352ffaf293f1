// Package domain defines the core persistent entities, value types, and
// rule evaluation primitives used by assemblycore.
package domain

import "time"

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityPart identifies a physical part record.
	EntityPart EntityType = "part"
	// EntityPartType identifies a part type catalogue record.
	EntityPartType EntityType = "part_type"
	// EntityRobotDesign identifies a robot design template.
	EntityRobotDesign EntityType = "robot_design"
	// EntityRobotInstance identifies a concrete robot assembly.
	EntityRobotInstance EntityType = "robot_instance"
)

// PartState enumerates the serviceability of a physical part.
type PartState string

// Canonical part states.
const (
	PartStateWorking      PartState = "Working"
	PartStateBroken       PartState = "Broken"
	PartStateNeedsService PartState = "NeedsService"
)

// Valid reports whether the state is one of the canonical values.
func (s PartState) Valid() bool {
	switch s {
	case PartStateWorking, PartStateBroken, PartStateNeedsService:
		return true
	default:
		return false
	}
}

// AuditAction labels a history entry.
type AuditAction string

// History actions appended to Part and RobotInstance histories.
const (
	AuditCreated      AuditAction = "Created"
	AuditUpdated      AuditAction = "Updated"
	AuditPartAssigned AuditAction = "PartAssigned"
	AuditPartRemoved  AuditAction = "PartRemoved"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// DefaultPartTypes seed an empty part type catalogue.
var DefaultPartTypes = []string{"Camera", "Lidar", "Computer", "Sensor", "Other"}

// FieldChange records one differing field inside an audit entry.
type FieldChange struct {
	Field    string `json:"field"`
	OldValue any    `json:"old_value"`
	NewValue any    `json:"new_value"`
}

// AuditEntry is an immutable history record. Entries are only ever appended.
type AuditEntry struct {
	Timestamp time.Time     `json:"timestamp"`
	Action    AuditAction   `json:"action"`
	Details   string        `json:"details"`
	Changes   []FieldChange `json:"changes,omitempty"`
}

// Part is a physical component tracked by barcode.
type Part struct {
	ID          string       `json:"id"`
	Barcode     string       `json:"barcode"`
	Type        string       `json:"type"`
	PartVersion string       `json:"part_version"`
	Notes       string       `json:"notes"`
	State       PartState    `json:"state"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	History     []AuditEntry `json:"history"`
}

// PartType names a category of part. Names are unique.
type PartType struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// RequiredPart is one line of a design's bill of materials.
type RequiredPart struct {
	Type     string `json:"type"`
	Quantity int    `json:"quantity"`
}

// RobotDesign is a template specifying required part types and quantities.
type RobotDesign struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	RequiredParts []RequiredPart `json:"required_parts"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// RequiredQuantity returns the quantity required for a part type and whether the
// type appears in the design at all. Duplicate lines for a type are summed.
func (d RobotDesign) RequiredQuantity(partType string) (int, bool) {
	total, found := 0, false
	for _, req := range d.RequiredParts {
		if req.Type == partType {
			total += req.Quantity
			found = true
		}
	}
	return total, found
}

// AssignedPart is the denormalised reference an instance keeps for each allocated part.
type AssignedPart struct {
	PartID      string `json:"part_id"`
	Barcode     string `json:"barcode"`
	Type        string `json:"type"`
	PartVersion string `json:"part_version"`
}

// RobotInstance is a concrete assembly built against a RobotDesign. DesignID is a
// weak reference: the design may have been deleted.
type RobotInstance struct {
	ID            string         `json:"id"`
	Barcode       string         `json:"barcode"`
	DesignID      string         `json:"design_id"`
	Notes         string         `json:"notes"`
	AssignedParts []AssignedPart `json:"assigned_parts"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	History       []AuditEntry   `json:"history"`
}

// HasPart reports whether the part id is among the instance's assigned parts.
func (i RobotInstance) HasPart(partID string) bool {
	for _, ap := range i.AssignedParts {
		if ap.PartID == partID {
			return true
		}
	}
	return false
}

// CountType returns how many assigned parts have the given type.
func (i RobotInstance) CountType(partType string) int {
	n := 0
	for _, ap := range i.AssignedParts {
		if ap.Type == partType {
			n++
		}
	}
	return n
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations captured in the change log.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}
