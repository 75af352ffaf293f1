package core

import (
	"assemblycore/internal/blob"
	"assemblycore/internal/infra/persistence/memory"
	"assemblycore/internal/lease"
	"assemblycore/pkg/domain"
	"context"
	"errors"
	"fmt"
	"time"
)

// Service exposes transactional CRUD, allocation and fulfillment operations over
// the entity store. Every mutating call runs inside one store transaction.
type Service struct {
	store   PersistentStore
	engine  *RulesEngine
	now     func() time.Time
	clock   Clock
	logger  Logger
	audit   AuditRecorder
	metrics MetricsRecorder
	tracer  Tracer
	locker  lease.Locker
	blobs   blob.Store
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...ServiceOption) *Service {
	cfg := defaultServiceOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	svc := &Service{
		store:   store,
		engine:  extractRulesEngine(store),
		now:     selectNowFunc(store, cfg.clock),
		clock:   cfg.clock,
		logger:  cfg.logger,
		audit:   cfg.audit,
		metrics: cfg.metrics,
		tracer:  cfg.tracer,
		locker:  cfg.locker,
		blobs:   cfg.blobs,
	}
	if svc.clock == nil {
		svc.clock = ClockFunc(svc.now)
	}
	for _, rule := range cfg.rules {
		if svc.engine == nil {
			svc.logger.Warn("store has no rules engine; rule ignored", "rule", rule.Name())
			continue
		}
		svc.engine.Register(rule)
	}
	if cfg.seed {
		if _, err := svc.SeedPartTypes(context.Background()); err != nil {
			svc.logger.Error("seed part types failed", "error", err)
		}
	}
	return svc
}

// NewInMemoryService creates a service and in-memory store with the given rules engine.
// A clock supplied through WithClock also drives the store's transaction timestamps.
func NewInMemoryService(engine *RulesEngine, opts ...ServiceOption) *Service {
	cfg := defaultServiceOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	var storeOpts []memory.Option
	if cfg.clock != nil {
		storeOpts = append(storeOpts, memory.WithNowFunc(cfg.clock.Now))
	}
	return NewService(NewMemoryStore(engine, storeOpts...), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore {
	return s.store
}

// operationMeta maps mutating operations to the entity and action they audit.
var operationMeta = map[string]struct {
	entity EntityType
	action Action
}{
	"create_part":           {EntityPart, ActionCreate},
	"update_part":           {EntityPart, ActionUpdate},
	"delete_part":           {EntityPart, ActionDelete},
	"add_part_type":         {EntityPartType, ActionCreate},
	"delete_part_type":      {EntityPartType, ActionDelete},
	"seed_part_types":       {EntityPartType, ActionCreate},
	"create_robot_design":   {EntityRobotDesign, ActionCreate},
	"update_robot_design":   {EntityRobotDesign, ActionUpdate},
	"delete_robot_design":   {EntityRobotDesign, ActionDelete},
	"create_robot_instance": {EntityRobotInstance, ActionCreate},
	"update_robot_instance": {EntityRobotInstance, ActionUpdate},
	"delete_robot_instance": {EntityRobotInstance, ActionDelete},
	"assign_part":           {EntityRobotInstance, ActionUpdate},
	"remove_part":           {EntityRobotInstance, ActionUpdate},
}

// run executes fn in a store transaction with tracing, metrics, logging and audit.
// fn returns the id of the entity it touched. A transient store failure re-runs
// the whole transaction once.
func (s *Service) run(ctx context.Context, op string, fn func(tx Transaction) (string, error)) (Result, error) {
	ctx, span := s.tracer.Start(ctx, op)
	start := time.Now()
	var entityID string
	attempt := func() (Result, error) {
		return s.store.RunInTransaction(ctx, func(tx Transaction) error {
			id, err := fn(tx)
			entityID = id
			return err
		})
	}
	res, err := attempt()
	if err != nil && errors.Is(err, domain.ErrTransientStore) && ctx.Err() == nil {
		s.logger.Warn("transient store failure, retrying", "operation", op, "error", err)
		res, err = attempt()
	}
	duration := time.Since(start)
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, duration)
	if err != nil {
		s.logFailure(op, entityID, err)
		s.recordAuditError(ctx, op, entityID, duration, err)
		return res, err
	}
	for _, v := range res.Violations {
		s.logger.Warn("rule violation", "operation", op, "rule", v.Rule, "severity", string(v.Severity), "message", v.Message)
	}
	s.logger.Debug("operation completed", "operation", op, "entity_id", entityID, "duration", duration)
	s.recordAuditSuccess(ctx, op, entityID, duration)
	return res, nil
}

// read runs fn against a consistent view with tracing and metrics.
func (s *Service) read(ctx context.Context, op string, fn func(view TransactionView) error) error {
	ctx, span := s.tracer.Start(ctx, op)
	start := time.Now()
	err := s.store.View(ctx, fn)
	if err != nil && errors.Is(err, domain.ErrTransientStore) && ctx.Err() == nil {
		s.logger.Warn("transient store failure, retrying", "operation", op, "error", err)
		err = s.store.View(ctx, fn)
	}
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, time.Since(start))
	if err != nil {
		s.logFailure(op, "", err)
	}
	return err
}

// logFailure logs rejections at info and everything else at error.
func (s *Service) logFailure(op, entityID string, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrConstraintViolation), errors.Is(err, domain.ErrInvalidInput):
		s.logger.Info("operation rejected", "operation", op, "entity_id", entityID, "error", err)
	default:
		s.logger.Error("operation failed", "operation", op, "entity_id", entityID, "error", err)
	}
}

func (s *Service) recordAuditSuccess(ctx context.Context, op, entityID string, duration time.Duration) {
	s.recordAudit(ctx, op, entityID, duration, nil)
}

func (s *Service) recordAuditError(ctx context.Context, op, entityID string, duration time.Duration, err error) {
	s.recordAudit(ctx, op, entityID, duration, err)
}

func (s *Service) recordAudit(ctx context.Context, op, entityID string, duration time.Duration, err error) {
	meta, ok := operationMeta[op]
	if !ok {
		return
	}
	entry := AuditEntry{
		Operation: op,
		Entity:    meta.entity,
		Action:    meta.action,
		EntityID:  entityID,
		Status:    AuditStatusSuccess,
		Duration:  duration,
		Timestamp: s.clock.Now(),
	}
	if err != nil {
		entry.Status = AuditStatusError
		entry.Error = err.Error()
	}
	s.audit.Record(ctx, entry)
}

// Parts ----------------------------------------------------------------------

// CreatePart persists a new part with a Created history entry. Any supplied
// history is discarded.
func (s *Service) CreatePart(ctx context.Context, part Part) (Part, Result, error) {
	var created Part
	res, err := s.run(ctx, "create_part", func(tx Transaction) (string, error) {
		part.History = []HistoryEntry{domain.CreatedEntry(tx.Now(), "Part created")}
		var err error
		created, err = tx.CreatePart(part)
		return created.ID, err
	})
	return created, res, err
}

// UpdatePart applies patch to a part. When no field differs the part is returned
// unchanged and nothing is written.
func (s *Service) UpdatePart(ctx context.Context, id string, patch PartPatch) (Part, Result, error) {
	var updated Part
	res, err := s.run(ctx, "update_part", func(tx Transaction) (string, error) {
		current, ok := tx.FindPart(id)
		if !ok {
			return id, domain.NotFoundError{Entity: EntityPart, Key: id}
		}
		entry, changed := domain.RecordChange(current, patch.Updates(), tx.Now(), "Part updated")
		if !changed {
			updated = current
			return id, nil
		}
		var err error
		updated, err = tx.UpdatePart(id, func(p *Part) error {
			patch.Apply(p)
			p.History = append(p.History, entry)
			return nil
		})
		return id, err
	})
	return updated, res, err
}

// DeletePart removes a part. Instances that reference it keep a dangling reference.
func (s *Service) DeletePart(ctx context.Context, id string) (Result, error) {
	return s.run(ctx, "delete_part", func(tx Transaction) (string, error) {
		return id, tx.DeletePart(id)
	})
}

// GetPart returns a part by id.
func (s *Service) GetPart(ctx context.Context, id string) (Part, error) {
	var out Part
	err := s.read(ctx, "get_part", func(view TransactionView) error {
		p, ok := view.FindPart(id)
		if !ok {
			return domain.NotFoundError{Entity: EntityPart, Key: id}
		}
		out = p
		return nil
	})
	return out, err
}

// ListParts returns every part ordered by creation time.
func (s *Service) ListParts(ctx context.Context) ([]Part, error) {
	var out []Part
	err := s.read(ctx, "list_parts", func(view TransactionView) error {
		out = view.ListParts()
		return nil
	})
	return out, err
}

// AvailableParts returns Working parts that no instance has assigned.
func (s *Service) AvailableParts(ctx context.Context) ([]Part, error) {
	var out []Part
	err := s.read(ctx, "available_parts", func(view TransactionView) error {
		assigned := make(map[string]struct{})
		for _, inst := range view.ListRobotInstances() {
			for _, ap := range inst.AssignedParts {
				assigned[ap.PartID] = struct{}{}
			}
		}
		out = make([]Part, 0)
		for _, p := range view.ListParts() {
			if _, taken := assigned[p.ID]; taken || p.State != domain.PartStateWorking {
				continue
			}
			out = append(out, p)
		}
		return nil
	})
	return out, err
}

// Part types -----------------------------------------------------------------

// AddPartType creates a part type or returns the existing one with the same name.
func (s *Service) AddPartType(ctx context.Context, name string) (PartType, Result, error) {
	var out PartType
	res, err := s.run(ctx, "add_part_type", func(tx Transaction) (string, error) {
		if existing, ok := tx.FindPartType(name); ok {
			out = existing
			return existing.ID, nil
		}
		var err error
		out, err = tx.CreatePartType(PartType{Name: name})
		return out.ID, err
	})
	return out, res, err
}

// DeletePartType removes a part type by name. Parts of that type are untouched.
func (s *Service) DeletePartType(ctx context.Context, name string) (Result, error) {
	return s.run(ctx, "delete_part_type", func(tx Transaction) (string, error) {
		return name, tx.DeletePartType(name)
	})
}

// ListPartTypes returns the catalogue ordered by name.
func (s *Service) ListPartTypes(ctx context.Context) ([]PartType, error) {
	var out []PartType
	err := s.read(ctx, "list_part_types", func(view TransactionView) error {
		out = view.ListPartTypes()
		return nil
	})
	return out, err
}

// SeedPartTypes inserts the default catalogue when no part types exist and
// reports how many were created.
func (s *Service) SeedPartTypes(ctx context.Context) (int, error) {
	created := 0
	_, err := s.run(ctx, "seed_part_types", func(tx Transaction) (string, error) {
		created = 0
		if len(tx.Snapshot().ListPartTypes()) > 0 {
			return "", nil
		}
		for _, name := range domain.DefaultPartTypes {
			if _, err := tx.CreatePartType(PartType{Name: name}); err != nil {
				return "", err
			}
			created++
		}
		return "", nil
	})
	return created, err
}

// Robot designs --------------------------------------------------------------

// CreateRobotDesign persists a new design.
func (s *Service) CreateRobotDesign(ctx context.Context, design RobotDesign) (RobotDesign, Result, error) {
	var created RobotDesign
	res, err := s.run(ctx, "create_robot_design", func(tx Transaction) (string, error) {
		var err error
		created, err = tx.CreateRobotDesign(design)
		return created.ID, err
	})
	return created, res, err
}

// UpdateRobotDesign replaces design fields. Existing instances are not reconciled
// against a new bill of materials.
func (s *Service) UpdateRobotDesign(ctx context.Context, id string, patch DesignPatch) (RobotDesign, Result, error) {
	var updated RobotDesign
	res, err := s.run(ctx, "update_robot_design", func(tx Transaction) (string, error) {
		var err error
		updated, err = tx.UpdateRobotDesign(id, func(d *RobotDesign) error {
			patch.Apply(d)
			return nil
		})
		return id, err
	})
	return updated, res, err
}

// DeleteRobotDesign removes a design without touching its instances.
func (s *Service) DeleteRobotDesign(ctx context.Context, id string) (Result, error) {
	return s.run(ctx, "delete_robot_design", func(tx Transaction) (string, error) {
		return id, tx.DeleteRobotDesign(id)
	})
}

// GetRobotDesign returns a design by id.
func (s *Service) GetRobotDesign(ctx context.Context, id string) (RobotDesign, error) {
	var out RobotDesign
	err := s.read(ctx, "get_robot_design", func(view TransactionView) error {
		d, ok := view.FindRobotDesign(id)
		if !ok {
			return domain.NotFoundError{Entity: EntityRobotDesign, Key: id}
		}
		out = d
		return nil
	})
	return out, err
}

// ListRobotDesigns returns every design ordered by creation time.
func (s *Service) ListRobotDesigns(ctx context.Context) ([]RobotDesign, error) {
	var out []RobotDesign
	err := s.read(ctx, "list_robot_designs", func(view TransactionView) error {
		out = view.ListRobotDesigns()
		return nil
	})
	return out, err
}

// Robot instances ------------------------------------------------------------

// CreateRobotInstance persists a new instance with a Created history entry. Assigned
// parts supplied by the caller are discarded; parts are added through AssignPart.
func (s *Service) CreateRobotInstance(ctx context.Context, inst RobotInstance) (RobotInstance, Result, error) {
	var created RobotInstance
	res, err := s.run(ctx, "create_robot_instance", func(tx Transaction) (string, error) {
		inst.AssignedParts = nil
		inst.History = []HistoryEntry{domain.CreatedEntry(tx.Now(), "Robot instance created")}
		var err error
		created, err = tx.CreateRobotInstance(inst)
		return created.ID, err
	})
	return created, res, err
}

// UpdateRobotInstance applies a general-field patch. Assigned parts cannot be
// changed here.
func (s *Service) UpdateRobotInstance(ctx context.Context, id string, patch InstancePatch) (RobotInstance, Result, error) {
	var updated RobotInstance
	res, err := s.run(ctx, "update_robot_instance", func(tx Transaction) (string, error) {
		current, ok := tx.FindRobotInstance(id)
		if !ok {
			return id, domain.NotFoundError{Entity: EntityRobotInstance, Key: id}
		}
		entry, changed := domain.RecordChange(current, patch.Updates(), tx.Now(), "Robot instance updated")
		if !changed {
			updated = current
			return id, nil
		}
		var err error
		updated, err = tx.UpdateRobotInstance(id, func(i *RobotInstance) error {
			patch.Apply(i)
			i.History = append(i.History, entry)
			return nil
		})
		return id, err
	})
	return updated, res, err
}

// DeleteRobotInstance removes an instance, which frees its assigned parts.
func (s *Service) DeleteRobotInstance(ctx context.Context, id string) (Result, error) {
	return s.run(ctx, "delete_robot_instance", func(tx Transaction) (string, error) {
		return id, tx.DeleteRobotInstance(id)
	})
}

// GetRobotInstance returns an instance by id.
func (s *Service) GetRobotInstance(ctx context.Context, id string) (RobotInstance, error) {
	var out RobotInstance
	err := s.read(ctx, "get_robot_instance", func(view TransactionView) error {
		inst, ok := view.FindRobotInstance(id)
		if !ok {
			return domain.NotFoundError{Entity: EntityRobotInstance, Key: id}
		}
		out = inst
		return nil
	})
	return out, err
}

// ListRobotInstances returns every instance ordered by creation time.
func (s *Service) ListRobotInstances(ctx context.Context) ([]RobotInstance, error) {
	var out []RobotInstance
	err := s.read(ctx, "list_robot_instances", func(view TransactionView) error {
		out = view.ListRobotInstances()
		return nil
	})
	return out, err
}

// InstanceStatus computes the live fulfillment breakdown for an instance. A
// dangling design id yields an Incomplete report rather than an error.
func (s *Service) InstanceStatus(ctx context.Context, id string) (Fulfillment, error) {
	var out Fulfillment
	err := s.read(ctx, "instance_status", func(view TransactionView) error {
		inst, ok := view.FindRobotInstance(id)
		if !ok {
			return domain.NotFoundError{Entity: EntityRobotInstance, Key: id}
		}
		design, found := view.FindRobotDesign(inst.DesignID)
		out = domain.Evaluate(design, found, inst)
		return nil
	})
	return out, err
}

// History returns the change history of a part or robot instance.
func (s *Service) History(ctx context.Context, entity EntityType, id string) ([]HistoryEntry, error) {
	var out []HistoryEntry
	err := s.read(ctx, "history", func(view TransactionView) error {
		switch entity {
		case EntityPart:
			p, ok := view.FindPart(id)
			if !ok {
				return domain.NotFoundError{Entity: entity, Key: id}
			}
			out = p.History
		case EntityRobotInstance:
			inst, ok := view.FindRobotInstance(id)
			if !ok {
				return domain.NotFoundError{Entity: entity, Key: id}
			}
			out = inst.History
		default:
			return domain.ValidationError{Field: "entity", Message: fmt.Sprintf("%s has no history", entity)}
		}
		return nil
	})
	return out, err
}
