package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Category sentinels. Every error produced by the core matches exactly one of them
// through errors.Is.
var (
	ErrNotFound            = errors.New("not found")
	ErrConstraintViolation = errors.New("constraint violation")
	ErrInvalidInput        = errors.New("invalid input")
	ErrTransientStore      = errors.New("transient store failure")
)

// Entity-specific not-found sentinels.
var (
	ErrPartNotFound     = errors.New("part not found")
	ErrPartTypeNotFound = errors.New("part type not found")
	ErrDesignNotFound   = errors.New("robot design not found")
	ErrInstanceNotFound = errors.New("robot instance not found")
)

// Constraint sentinels, one per invariant an allocation or insert can break.
var (
	ErrTypeNotRequired  = errors.New("part type not required by design")
	ErrQuotaExceeded    = errors.New("required quantity already assigned")
	ErrAlreadyAssigned  = errors.New("part already assigned")
	ErrDuplicateBarcode = errors.New("duplicate barcode")
)

// NotFoundError is returned when an id or natural key lookup fails.
type NotFoundError struct {
	Entity EntityType
	Key    string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", strings.ReplaceAll(string(e.Entity), "_", " "), e.Key)
}

// Is matches ErrNotFound and the entity-specific sentinel.
func (e NotFoundError) Is(target error) bool {
	if target == ErrNotFound {
		return true
	}
	switch e.Entity {
	case EntityPart:
		return target == ErrPartNotFound
	case EntityPartType:
		return target == ErrPartTypeNotFound
	case EntityRobotDesign:
		return target == ErrDesignNotFound
	case EntityRobotInstance:
		return target == ErrInstanceNotFound
	}
	return false
}

// ConstraintCode names the invariant that blocked a mutation.
type ConstraintCode string

// Constraint codes reported to callers.
const (
	CodeTypeNotRequired  ConstraintCode = "type_not_required"
	CodeQuotaExceeded    ConstraintCode = "quota_exceeded"
	CodeAlreadyAssigned  ConstraintCode = "already_assigned"
	CodeDuplicateBarcode ConstraintCode = "duplicate_barcode"
)

var constraintSentinels = map[ConstraintCode]error{
	CodeTypeNotRequired:  ErrTypeNotRequired,
	CodeQuotaExceeded:    ErrQuotaExceeded,
	CodeAlreadyAssigned:  ErrAlreadyAssigned,
	CodeDuplicateBarcode: ErrDuplicateBarcode,
}

// ConstraintError reports a mutation rejected because it would break an invariant.
type ConstraintError struct {
	Code    ConstraintCode
	Message string
}

func (e ConstraintError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches ErrConstraintViolation and the code sentinel.
func (e ConstraintError) Is(target error) bool {
	if target == ErrConstraintViolation {
		return true
	}
	sentinel, ok := constraintSentinels[e.Code]
	return ok && target == sentinel
}

// ValidationError reports malformed input.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Is matches ErrInvalidInput.
func (e ValidationError) Is(target error) bool { return target == ErrInvalidInput }

// TransientError wraps an I/O failure from the backing store. Callers may retry the
// whole operation once.
type TransientError struct {
	Op  string
	Err error
}

func (e TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap exposes the driver error.
func (e TransientError) Unwrap() error { return e.Err }

// Is matches ErrTransientStore.
func (e TransientError) Is(target error) bool { return target == ErrTransientStore }

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	var msgs []string
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock {
			msgs = append(msgs, v.Message)
		}
	}
	if len(msgs) == 0 {
		return "transaction blocked by rules"
	}
	return "transaction blocked by rules: " + strings.Join(msgs, "; ")
}

// Is lets blocked transactions surface as constraint violations.
func (e RuleViolationError) Is(target error) bool { return target == ErrConstraintViolation }
