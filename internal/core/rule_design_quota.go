package core

import (
	"assemblycore/pkg/domain"
	"context"
	"fmt"
)

// NewDesignQuotaRule blocks instance writes that grow the assigned count of a part
// type beyond what the instance's design requires. Only growth is checked: a design
// edited to need fewer parts leaves existing instances valid until they change.
func NewDesignQuotaRule() domain.Rule {
	return designQuotaRule{}
}

type designQuotaRule struct{}

func (designQuotaRule) Name() string { return "design_quota" }

func (r designQuotaRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityRobotInstance || change.Action == domain.ActionDelete {
			continue
		}
		after, ok := change.After.(domain.RobotInstance)
		if !ok {
			continue
		}
		var before domain.RobotInstance
		if b, ok := change.Before.(domain.RobotInstance); ok {
			before = b
		}
		design, found := view.FindRobotDesign(after.DesignID)
		for partType, count := range countByType(after) {
			if count <= before.CountType(partType) {
				continue
			}
			required, _ := design.RequiredQuantity(partType)
			if found && count <= required {
				continue
			}
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     r.Name(),
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("instance %s has %d %s, design %s allows %d", after.ID, count, partType, after.DesignID, required),
				Entity:   domain.EntityRobotInstance,
				EntityID: after.ID,
			})
		}
	}
	return res, nil
}

func countByType(inst domain.RobotInstance) map[string]int {
	out := make(map[string]int)
	for _, ap := range inst.AssignedParts {
		out[ap.Type]++
	}
	return out
}
