package core

import (
	"assemblycore/internal/lease"
	"assemblycore/pkg/domain"
	"context"
	"fmt"
	"strings"
)

// AssignPart commits the part identified by barcode to an instance. Every check
// and the write run in one store transaction, so two concurrent assignments of the
// same part cannot both succeed. Checks run in this order: part, instance, design,
// type required, quota, already assigned.
func (s *Service) AssignPart(ctx context.Context, instanceID, barcode string) (RobotInstance, Result, error) {
	release, err := s.acquire(ctx, lease.InstanceKey(instanceID), lease.PartKey(barcode))
	if err != nil {
		return RobotInstance{}, Result{}, err
	}
	defer release()

	var updated RobotInstance
	res, err := s.run(ctx, "assign_part", func(tx Transaction) (string, error) {
		if strings.TrimSpace(barcode) == "" {
			return instanceID, domain.NotFoundError{Entity: EntityPart, Key: barcode}
		}
		part, ok := tx.FindPartByBarcode(barcode)
		if !ok {
			return instanceID, domain.NotFoundError{Entity: EntityPart, Key: barcode}
		}
		inst, ok := tx.FindRobotInstance(instanceID)
		if !ok {
			return instanceID, domain.NotFoundError{Entity: EntityRobotInstance, Key: instanceID}
		}
		design, ok := tx.FindRobotDesign(inst.DesignID)
		if !ok {
			return instanceID, domain.NotFoundError{Entity: EntityRobotDesign, Key: inst.DesignID}
		}
		required, ok := design.RequiredQuantity(part.Type)
		if !ok {
			return instanceID, domain.ConstraintError{
				Code:    domain.CodeTypeNotRequired,
				Message: fmt.Sprintf("design %s does not require part type %s", design.Name, part.Type),
			}
		}
		if assigned := inst.CountType(part.Type); assigned >= required {
			return instanceID, domain.ConstraintError{
				Code:    domain.CodeQuotaExceeded,
				Message: fmt.Sprintf("instance %s already has %d/%d %s", inst.ID, assigned, required, part.Type),
			}
		}
		if holder, held := findHolder(tx.Snapshot(), part.ID); held {
			return instanceID, domain.ConstraintError{
				Code:    domain.CodeAlreadyAssigned,
				Message: fmt.Sprintf("part %s is already assigned to instance %s", part.Barcode, holder),
			}
		}
		ref := AssignedPart{PartID: part.ID, Barcode: part.Barcode, Type: part.Type, PartVersion: part.PartVersion}
		var err error
		updated, err = tx.UpdateRobotInstance(instanceID, func(i *RobotInstance) error {
			i.AssignedParts = append(i.AssignedParts, ref)
			i.History = append(i.History, domain.AssignmentEntry(tx.Now(), ref))
			return nil
		})
		return instanceID, err
	})
	return updated, res, err
}

// RemovePart detaches a part from an instance. Removing a part the instance does
// not hold succeeds without writing anything.
func (s *Service) RemovePart(ctx context.Context, instanceID, partID string) (RobotInstance, Result, error) {
	release, err := s.acquire(ctx, lease.InstanceKey(instanceID))
	if err != nil {
		return RobotInstance{}, Result{}, err
	}
	defer release()

	var updated RobotInstance
	res, err := s.run(ctx, "remove_part", func(tx Transaction) (string, error) {
		inst, ok := tx.FindRobotInstance(instanceID)
		if !ok {
			return instanceID, domain.NotFoundError{Entity: EntityRobotInstance, Key: instanceID}
		}
		var (
			ref   AssignedPart
			found bool
			kept  = make([]AssignedPart, 0, len(inst.AssignedParts))
		)
		for _, ap := range inst.AssignedParts {
			if ap.PartID == partID && !found {
				ref, found = ap, true
				continue
			}
			kept = append(kept, ap)
		}
		if !found {
			updated = inst
			return instanceID, nil
		}
		var err error
		updated, err = tx.UpdateRobotInstance(instanceID, func(i *RobotInstance) error {
			i.AssignedParts = kept
			i.History = append(i.History, domain.RemovalEntry(tx.Now(), ref))
			return nil
		})
		return instanceID, err
	})
	return updated, res, err
}

func findHolder(view TransactionView, partID string) (string, bool) {
	for _, inst := range view.ListRobotInstances() {
		if inst.HasPart(partID) {
			return inst.ID, true
		}
	}
	return "", false
}

func (s *Service) acquire(ctx context.Context, keys ...string) (lease.Release, error) {
	if s.locker == nil {
		return func() {}, nil
	}
	release, err := lease.AcquireAll(ctx, s.locker, keys...)
	if err != nil {
		s.logger.Warn("allocation lease unavailable", "keys", keys, "error", err)
		return nil, err
	}
	return release, nil
}
