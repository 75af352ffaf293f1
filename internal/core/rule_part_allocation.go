package core

import (
	"assemblycore/pkg/domain"
	"context"
	"fmt"
)

// NewPartAllocationUniqueRule blocks any state in which a part id is assigned to
// more than one robot instance, or twice to the same one.
func NewPartAllocationUniqueRule() domain.Rule {
	return partAllocationUniqueRule{}
}

type partAllocationUniqueRule struct{}

func (partAllocationUniqueRule) Name() string { return "part_allocation_unique" }

func (r partAllocationUniqueRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	if !touches(changes, domain.EntityRobotInstance) {
		return domain.Result{}, nil
	}
	holders := make(map[string]string)
	res := domain.Result{}
	for _, inst := range view.ListRobotInstances() {
		for _, ap := range inst.AssignedParts {
			if first, dup := holders[ap.PartID]; dup {
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     r.Name(),
					Severity: domain.SeverityBlock,
					Message:  fmt.Sprintf("part %s assigned to instances %s and %s", ap.PartID, first, inst.ID),
					Entity:   domain.EntityRobotInstance,
					EntityID: inst.ID,
				})
				continue
			}
			holders[ap.PartID] = inst.ID
		}
	}
	return res, nil
}
