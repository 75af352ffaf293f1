package domain

import (
	"fmt"
	"reflect"
	"time"
)

// FieldAssignedParts is the synthetic field name used by allocation history entries.
const FieldAssignedParts = "assigned_parts"

// FieldUpdate is one proposed field value keyed by its JSON field name.
type FieldUpdate struct {
	Field string
	Value any
}

// FieldReader exposes the current value of a mutable field by JSON name.
type FieldReader interface {
	FieldValue(field string) (any, bool)
}

// RecordChange diffs the proposed updates against the current entity. It returns a
// single Updated entry carrying every differing field, or false when nothing differs.
// Fields unknown to the entity are compared against nil.
func RecordChange(current FieldReader, updates []FieldUpdate, at time.Time, details string) (AuditEntry, bool) {
	var changes []FieldChange
	for _, u := range updates {
		old, _ := current.FieldValue(u.Field)
		if reflect.DeepEqual(old, u.Value) {
			continue
		}
		changes = append(changes, FieldChange{Field: u.Field, OldValue: old, NewValue: u.Value})
	}
	if len(changes) == 0 {
		return AuditEntry{}, false
	}
	return AuditEntry{
		Timestamp: at,
		Action:    AuditUpdated,
		Details:   details,
		Changes:   changes,
	}, true
}

// CreatedEntry builds the initial history entry for a new record.
func CreatedEntry(at time.Time, details string) AuditEntry {
	return AuditEntry{Timestamp: at, Action: AuditCreated, Details: details}
}

// AssignmentEntry records a part added to an instance. The prior array is not diffed.
func AssignmentEntry(at time.Time, ref AssignedPart) AuditEntry {
	return AuditEntry{
		Timestamp: at,
		Action:    AuditPartAssigned,
		Details:   fmt.Sprintf("Part with barcode %s added", ref.Barcode),
		Changes:   []FieldChange{{Field: FieldAssignedParts, OldValue: nil, NewValue: ref}},
	}
}

// RemovalEntry records a part removed from an instance.
func RemovalEntry(at time.Time, ref AssignedPart) AuditEntry {
	return AuditEntry{
		Timestamp: at,
		Action:    AuditPartRemoved,
		Details:   fmt.Sprintf("Part with barcode %s removed", ref.Barcode),
		Changes:   []FieldChange{{Field: FieldAssignedParts, OldValue: ref, NewValue: nil}},
	}
}

// FieldValue implements FieldReader.
func (p Part) FieldValue(field string) (any, bool) {
	switch field {
	case "barcode":
		return p.Barcode, true
	case "type":
		return p.Type, true
	case "part_version":
		return p.PartVersion, true
	case "notes":
		return p.Notes, true
	case "state":
		return p.State, true
	}
	return nil, false
}

// FieldValue implements FieldReader. assigned_parts is deliberately absent: it only
// changes through allocation.
func (i RobotInstance) FieldValue(field string) (any, bool) {
	switch field {
	case "barcode":
		return i.Barcode, true
	case "design_id":
		return i.DesignID, true
	case "notes":
		return i.Notes, true
	}
	return nil, false
}

// PartPatch carries the fields a caller wants to change on a part. Nil fields are
// left untouched.
type PartPatch struct {
	Barcode     *string    `json:"barcode,omitempty"`
	Type        *string    `json:"type,omitempty"`
	PartVersion *string    `json:"part_version,omitempty"`
	Notes       *string    `json:"notes,omitempty"`
	State       *PartState `json:"state,omitempty"`
}

// Updates lists the set fields in a stable order.
func (p PartPatch) Updates() []FieldUpdate {
	var out []FieldUpdate
	if p.Barcode != nil {
		out = append(out, FieldUpdate{Field: "barcode", Value: *p.Barcode})
	}
	if p.Type != nil {
		out = append(out, FieldUpdate{Field: "type", Value: *p.Type})
	}
	if p.PartVersion != nil {
		out = append(out, FieldUpdate{Field: "part_version", Value: *p.PartVersion})
	}
	if p.Notes != nil {
		out = append(out, FieldUpdate{Field: "notes", Value: *p.Notes})
	}
	if p.State != nil {
		out = append(out, FieldUpdate{Field: "state", Value: *p.State})
	}
	return out
}

// Apply writes the set fields onto the part.
func (p PartPatch) Apply(part *Part) {
	if p.Barcode != nil {
		part.Barcode = *p.Barcode
	}
	if p.Type != nil {
		part.Type = *p.Type
	}
	if p.PartVersion != nil {
		part.PartVersion = *p.PartVersion
	}
	if p.Notes != nil {
		part.Notes = *p.Notes
	}
	if p.State != nil {
		part.State = *p.State
	}
}

// InstancePatch carries general-field updates for a robot instance. Assigned parts
// are not patchable; use the allocation operations.
type InstancePatch struct {
	Barcode  *string `json:"barcode,omitempty"`
	DesignID *string `json:"design_id,omitempty"`
	Notes    *string `json:"notes,omitempty"`
}

// Updates lists the set fields in a stable order.
func (p InstancePatch) Updates() []FieldUpdate {
	var out []FieldUpdate
	if p.Barcode != nil {
		out = append(out, FieldUpdate{Field: "barcode", Value: *p.Barcode})
	}
	if p.DesignID != nil {
		out = append(out, FieldUpdate{Field: "design_id", Value: *p.DesignID})
	}
	if p.Notes != nil {
		out = append(out, FieldUpdate{Field: "notes", Value: *p.Notes})
	}
	return out
}

// Apply writes the set fields onto the instance.
func (p InstancePatch) Apply(instance *RobotInstance) {
	if p.Barcode != nil {
		instance.Barcode = *p.Barcode
	}
	if p.DesignID != nil {
		instance.DesignID = *p.DesignID
	}
	if p.Notes != nil {
		instance.Notes = *p.Notes
	}
}

// DesignPatch replaces design fields wholesale. A nil RequiredParts leaves the bill
// of materials untouched; a non-nil one replaces it entirely.
type DesignPatch struct {
	Name          *string        `json:"name,omitempty"`
	RequiredParts []RequiredPart `json:"required_parts,omitempty"`
}

// Apply writes the set fields onto the design.
func (p DesignPatch) Apply(design *RobotDesign) {
	if p.Name != nil {
		design.Name = *p.Name
	}
	if p.RequiredParts != nil {
		design.RequiredParts = append([]RequiredPart(nil), p.RequiredParts...)
	}
}
