// Package memory provides an in-memory implementation of the core persistence
// store used for tests, ephemeral environments, and as the transactional engine
// beneath the SQL snapshot stores.
package memory

import (
	"assemblycore/pkg/domain"
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Compile-time contract assertions ensuring memory.Store adheres to the domain persistence interfaces.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Part aliases domain.Part for in-memory persistence operations.
	Part = domain.Part
	// PartType aliases domain.PartType.
	PartType = domain.PartType
	// RobotDesign aliases domain.RobotDesign.
	RobotDesign = domain.RobotDesign
	// RobotInstance aliases domain.RobotInstance.
	RobotInstance = domain.RobotInstance
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

type memoryState struct {
	parts     map[string]Part
	partTypes map[string]PartType
	designs   map[string]RobotDesign
	instances map[string]RobotInstance
}

func newMemoryState() memoryState {
	return memoryState{
		parts:     make(map[string]Part),
		partTypes: make(map[string]PartType),
		designs:   make(map[string]RobotDesign),
		instances: make(map[string]RobotInstance),
	}
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.parts {
		cloned.parts[k] = clonePart(v)
	}
	for k, v := range s.partTypes {
		cloned.partTypes[k] = v
	}
	for k, v := range s.designs {
		cloned.designs[k] = cloneDesign(v)
	}
	for k, v := range s.instances {
		cloned.instances[k] = cloneInstance(v)
	}
	return cloned
}

func cloneHistory(h []domain.AuditEntry) []domain.AuditEntry {
	if h == nil {
		return nil
	}
	out := make([]domain.AuditEntry, len(h))
	for i, e := range h {
		out[i] = e
		out[i].Changes = append([]domain.FieldChange(nil), e.Changes...)
	}
	return out
}

func clonePart(p Part) Part {
	cp := p
	cp.History = cloneHistory(p.History)
	return cp
}

func cloneDesign(d RobotDesign) RobotDesign {
	cp := d
	cp.RequiredParts = append([]domain.RequiredPart(nil), d.RequiredParts...)
	return cp
}

func cloneInstance(i RobotInstance) RobotInstance {
	cp := i
	cp.AssignedParts = append([]domain.AssignedPart{}, i.AssignedParts...)
	cp.History = cloneHistory(i.History)
	return cp
}

// historyAppendOnly reports whether after extends before without touching existing entries.
func historyAppendOnly(before, after []domain.AuditEntry) bool {
	if len(after) < len(before) {
		return false
	}
	for i := range before {
		if !reflect.DeepEqual(before[i], after[i]) {
			return false
		}
	}
	return true
}

// Option configures a Store.
type Option func(*Store)

// WithNowFunc overrides the store clock.
func WithNowFunc(fn func() time.Time) Option {
	return func(s *Store) {
		if fn != nil {
			s.nowFn = fn
		}
	}
}

// Store provides an in-memory transactional store for the core domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine, opts ...Option) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	s := &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) newID() string {
	return uuid.NewString()
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(snapshot)
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// transaction represents a mutation set applied to the store state.
type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

// transactionView exposes a read-only snapshot of the transactional state to rules.
type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

func sortedParts(m map[string]Part) []Part {
	out := make([]Part, 0, len(m))
	for _, p := range m {
		out = append(out, clonePart(p))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func sortedPartTypes(m map[string]PartType) []PartType {
	out := make([]PartType, 0, len(m))
	for _, t := range m {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func sortedDesigns(m map[string]RobotDesign) []RobotDesign {
	out := make([]RobotDesign, 0, len(m))
	for _, d := range m {
		out = append(out, cloneDesign(d))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func sortedInstances(m map[string]RobotInstance) []RobotInstance {
	out := make([]RobotInstance, 0, len(m))
	for _, inst := range m {
		out = append(out, cloneInstance(inst))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func findPartByBarcode(state *memoryState, barcode string) (Part, bool) {
	if strings.TrimSpace(barcode) == "" {
		return Part{}, false
	}
	for _, p := range state.parts {
		if p.Barcode == barcode {
			return clonePart(p), true
		}
	}
	return Part{}, false
}

func findPartType(state *memoryState, name string) (PartType, bool) {
	for _, t := range state.partTypes {
		if t.Name == name {
			return t, true
		}
	}
	return PartType{}, false
}

// ListParts returns all parts within the transaction snapshot.
func (v transactionView) ListParts() []Part { return sortedParts(v.state.parts) }

// ListPartTypes returns all part types ordered by name.
func (v transactionView) ListPartTypes() []PartType { return sortedPartTypes(v.state.partTypes) }

// ListRobotDesigns returns all designs.
func (v transactionView) ListRobotDesigns() []RobotDesign { return sortedDesigns(v.state.designs) }

// ListRobotInstances returns all instances.
func (v transactionView) ListRobotInstances() []RobotInstance {
	return sortedInstances(v.state.instances)
}

// FindPart retrieves a part by ID from the snapshot.
func (v transactionView) FindPart(id string) (Part, bool) {
	p, ok := v.state.parts[id]
	if !ok {
		return Part{}, false
	}
	return clonePart(p), true
}

// FindPartByBarcode retrieves a part by its barcode.
func (v transactionView) FindPartByBarcode(barcode string) (Part, bool) {
	return findPartByBarcode(v.state, barcode)
}

// FindPartType retrieves a part type by name.
func (v transactionView) FindPartType(name string) (PartType, bool) {
	return findPartType(v.state, name)
}

// FindRobotDesign retrieves a design by ID.
func (v transactionView) FindRobotDesign(id string) (RobotDesign, bool) {
	d, ok := v.state.designs[id]
	if !ok {
		return RobotDesign{}, false
	}
	return cloneDesign(d), true
}

// FindRobotInstance retrieves an instance by ID.
func (v transactionView) FindRobotInstance(id string) (RobotInstance, bool) {
	inst, ok := v.state.instances[id]
	if !ok {
		return RobotInstance{}, false
	}
	return cloneInstance(inst), true
}

// RunInTransaction executes fn within a transactional copy of the store state.
// The copy replaces committed state only when fn succeeds and no blocking rule fires.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	view := newTransactionView(&snapshot)
	return fn(view)
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// Now returns the timestamp shared by every write in this transaction.
func (tx *transaction) Now() time.Time { return tx.now }

// FindPart looks up a part inside the transaction scope.
func (tx *transaction) FindPart(id string) (Part, bool) {
	return transactionView{state: &tx.state}.FindPart(id)
}

// FindPartByBarcode looks up a part by barcode inside the transaction scope.
func (tx *transaction) FindPartByBarcode(barcode string) (Part, bool) {
	return findPartByBarcode(&tx.state, barcode)
}

// FindPartType looks up a part type by name inside the transaction scope.
func (tx *transaction) FindPartType(name string) (PartType, bool) {
	return findPartType(&tx.state, name)
}

// FindRobotDesign looks up a design inside the transaction scope.
func (tx *transaction) FindRobotDesign(id string) (RobotDesign, bool) {
	return transactionView{state: &tx.state}.FindRobotDesign(id)
}

// FindRobotInstance looks up an instance inside the transaction scope.
func (tx *transaction) FindRobotInstance(id string) (RobotInstance, bool) {
	return transactionView{state: &tx.state}.FindRobotInstance(id)
}

func (tx *transaction) checkBarcodeFree(barcode, selfID string) error {
	if barcode == "" {
		return nil
	}
	for _, p := range tx.state.parts {
		if p.Barcode == barcode && p.ID != selfID {
			return domain.ConstraintError{
				Code:    domain.CodeDuplicateBarcode,
				Message: fmt.Sprintf("barcode %s already used by part %s", barcode, p.ID),
			}
		}
	}
	return nil
}

func validatePart(p Part) error {
	if strings.TrimSpace(p.Barcode) == "" {
		return domain.ValidationError{Field: "barcode", Message: "barcode is required"}
	}
	if !p.State.Valid() {
		return domain.ValidationError{Field: "state", Message: fmt.Sprintf("unknown part state %q", p.State)}
	}
	return nil
}

// CreatePart stores a new part within the transaction.
func (tx *transaction) CreatePart(p Part) (Part, error) {
	if p.ID == "" {
		p.ID = tx.store.newID()
	}
	if _, exists := tx.state.parts[p.ID]; exists {
		return Part{}, fmt.Errorf("part %q already exists", p.ID)
	}
	if p.State == "" {
		p.State = domain.PartStateWorking
	}
	if err := validatePart(p); err != nil {
		return Part{}, err
	}
	if err := tx.checkBarcodeFree(p.Barcode, p.ID); err != nil {
		return Part{}, err
	}
	p.CreatedAt = tx.now
	p.UpdatedAt = tx.now
	tx.state.parts[p.ID] = clonePart(p)
	tx.recordChange(Change{Entity: domain.EntityPart, Action: domain.ActionCreate, After: clonePart(p)})
	return clonePart(p), nil
}

// UpdatePart mutates a part using the provided mutator function.
func (tx *transaction) UpdatePart(id string, mutator func(*Part) error) (Part, error) {
	current, ok := tx.state.parts[id]
	if !ok {
		return Part{}, domain.NotFoundError{Entity: domain.EntityPart, Key: id}
	}
	before := clonePart(current)
	if err := mutator(&current); err != nil {
		return Part{}, err
	}
	if !historyAppendOnly(before.History, current.History) {
		return Part{}, fmt.Errorf("part %q: history is append-only", id)
	}
	if err := validatePart(current); err != nil {
		return Part{}, err
	}
	if current.Barcode != before.Barcode {
		if err := tx.checkBarcodeFree(current.Barcode, id); err != nil {
			return Part{}, err
		}
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.parts[id] = clonePart(current)
	tx.recordChange(Change{Entity: domain.EntityPart, Action: domain.ActionUpdate, Before: before, After: clonePart(current)})
	return clonePart(current), nil
}

// DeletePart removes a part. Instances referencing it are left untouched.
func (tx *transaction) DeletePart(id string) error {
	current, ok := tx.state.parts[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityPart, Key: id}
	}
	delete(tx.state.parts, id)
	tx.recordChange(Change{Entity: domain.EntityPart, Action: domain.ActionDelete, Before: clonePart(current)})
	return nil
}

// CreatePartType stores a new part type. Names are unique.
func (tx *transaction) CreatePartType(t PartType) (PartType, error) {
	if t.Name == "" {
		return PartType{}, domain.ValidationError{Field: "name", Message: "part type name is required"}
	}
	if existing, ok := findPartType(&tx.state, t.Name); ok {
		return PartType{}, fmt.Errorf("part type %q already exists as %s", t.Name, existing.ID)
	}
	if t.ID == "" {
		t.ID = tx.store.newID()
	}
	tx.state.partTypes[t.ID] = t
	tx.recordChange(Change{Entity: domain.EntityPartType, Action: domain.ActionCreate, After: t})
	return t, nil
}

// DeletePartType removes a part type by name.
func (tx *transaction) DeletePartType(name string) error {
	current, ok := findPartType(&tx.state, name)
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityPartType, Key: name}
	}
	delete(tx.state.partTypes, current.ID)
	tx.recordChange(Change{Entity: domain.EntityPartType, Action: domain.ActionDelete, Before: current})
	return nil
}

func validateDesign(d RobotDesign) error {
	for i, req := range d.RequiredParts {
		if req.Type == "" {
			return domain.ValidationError{Field: fmt.Sprintf("required_parts[%d].type", i), Message: "type is required"}
		}
		if req.Quantity < 1 {
			return domain.ValidationError{Field: fmt.Sprintf("required_parts[%d].quantity", i), Message: "quantity must be at least 1"}
		}
	}
	return nil
}

// CreateRobotDesign stores a new design.
func (tx *transaction) CreateRobotDesign(d RobotDesign) (RobotDesign, error) {
	if d.ID == "" {
		d.ID = tx.store.newID()
	}
	if _, exists := tx.state.designs[d.ID]; exists {
		return RobotDesign{}, fmt.Errorf("robot design %q already exists", d.ID)
	}
	if err := validateDesign(d); err != nil {
		return RobotDesign{}, err
	}
	d.CreatedAt = tx.now
	d.UpdatedAt = tx.now
	tx.state.designs[d.ID] = cloneDesign(d)
	tx.recordChange(Change{Entity: domain.EntityRobotDesign, Action: domain.ActionCreate, After: cloneDesign(d)})
	return cloneDesign(d), nil
}

// UpdateRobotDesign mutates an existing design.
func (tx *transaction) UpdateRobotDesign(id string, mutator func(*RobotDesign) error) (RobotDesign, error) {
	current, ok := tx.state.designs[id]
	if !ok {
		return RobotDesign{}, domain.NotFoundError{Entity: domain.EntityRobotDesign, Key: id}
	}
	before := cloneDesign(current)
	if err := mutator(&current); err != nil {
		return RobotDesign{}, err
	}
	if err := validateDesign(current); err != nil {
		return RobotDesign{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.designs[id] = cloneDesign(current)
	tx.recordChange(Change{Entity: domain.EntityRobotDesign, Action: domain.ActionUpdate, Before: before, After: cloneDesign(current)})
	return cloneDesign(current), nil
}

// DeleteRobotDesign removes a design. Its instances keep a dangling design id.
func (tx *transaction) DeleteRobotDesign(id string) error {
	current, ok := tx.state.designs[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityRobotDesign, Key: id}
	}
	delete(tx.state.designs, id)
	tx.recordChange(Change{Entity: domain.EntityRobotDesign, Action: domain.ActionDelete, Before: cloneDesign(current)})
	return nil
}

// CreateRobotInstance stores a new robot instance.
func (tx *transaction) CreateRobotInstance(inst RobotInstance) (RobotInstance, error) {
	if inst.ID == "" {
		inst.ID = tx.store.newID()
	}
	if _, exists := tx.state.instances[inst.ID]; exists {
		return RobotInstance{}, fmt.Errorf("robot instance %q already exists", inst.ID)
	}
	inst.CreatedAt = tx.now
	inst.UpdatedAt = tx.now
	tx.state.instances[inst.ID] = cloneInstance(inst)
	tx.recordChange(Change{Entity: domain.EntityRobotInstance, Action: domain.ActionCreate, After: cloneInstance(inst)})
	return cloneInstance(inst), nil
}

// UpdateRobotInstance mutates an existing robot instance.
func (tx *transaction) UpdateRobotInstance(id string, mutator func(*RobotInstance) error) (RobotInstance, error) {
	current, ok := tx.state.instances[id]
	if !ok {
		return RobotInstance{}, domain.NotFoundError{Entity: domain.EntityRobotInstance, Key: id}
	}
	before := cloneInstance(current)
	if err := mutator(&current); err != nil {
		return RobotInstance{}, err
	}
	if !historyAppendOnly(before.History, current.History) {
		return RobotInstance{}, fmt.Errorf("robot instance %q: history is append-only", id)
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.instances[id] = cloneInstance(current)
	tx.recordChange(Change{Entity: domain.EntityRobotInstance, Action: domain.ActionUpdate, Before: before, After: cloneInstance(current)})
	return cloneInstance(current), nil
}

// DeleteRobotInstance removes an instance, implicitly freeing its assigned parts.
func (tx *transaction) DeleteRobotInstance(id string) error {
	current, ok := tx.state.instances[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityRobotInstance, Key: id}
	}
	delete(tx.state.instances, id)
	tx.recordChange(Change{Entity: domain.EntityRobotInstance, Action: domain.ActionDelete, Before: cloneInstance(current)})
	return nil
}

// Read helpers ---------------------------------------------------------------

// GetPart retrieves a part by ID from committed state.
func (s *Store) GetPart(id string) (Part, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.state.parts[id]
	if !ok {
		return Part{}, false
	}
	return clonePart(p), true
}

// ListParts returns all parts from committed state.
func (s *Store) ListParts() []Part {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedParts(s.state.parts)
}

// ListPartTypes returns all part types ordered by name.
func (s *Store) ListPartTypes() []PartType {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedPartTypes(s.state.partTypes)
}

// GetRobotDesign retrieves a design by ID.
func (s *Store) GetRobotDesign(id string) (RobotDesign, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.state.designs[id]
	if !ok {
		return RobotDesign{}, false
	}
	return cloneDesign(d), true
}

// ListRobotDesigns returns all designs.
func (s *Store) ListRobotDesigns() []RobotDesign {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedDesigns(s.state.designs)
}

// GetRobotInstance retrieves an instance by ID.
func (s *Store) GetRobotInstance(id string) (RobotInstance, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inst, ok := s.state.instances[id]
	if !ok {
		return RobotInstance{}, false
	}
	return cloneInstance(inst), true
}

// ListRobotInstances returns all instances.
func (s *Store) ListRobotInstances() []RobotInstance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedInstances(s.state.instances)
}
