package core

import (
	"assemblycore/pkg/domain"
	"context"
	"fmt"
	"strings"
)

// NewPartBarcodeUniqueRule blocks any state in which a part has no barcode or two
// parts share one.
func NewPartBarcodeUniqueRule() domain.Rule {
	return partBarcodeUniqueRule{}
}

type partBarcodeUniqueRule struct{}

func (partBarcodeUniqueRule) Name() string { return "part_barcode_unique" }

func (r partBarcodeUniqueRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	if !touches(changes, domain.EntityPart) {
		return domain.Result{}, nil
	}
	owners := make(map[string]string)
	res := domain.Result{}
	for _, part := range view.ListParts() {
		if strings.TrimSpace(part.Barcode) == "" {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     r.Name(),
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("part %s has no barcode", part.ID),
				Entity:   domain.EntityPart,
				EntityID: part.ID,
			})
			continue
		}
		if first, dup := owners[part.Barcode]; dup {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     r.Name(),
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("barcode %s shared by parts %s and %s", part.Barcode, first, part.ID),
				Entity:   domain.EntityPart,
				EntityID: part.ID,
			})
			continue
		}
		owners[part.Barcode] = part.ID
	}
	return res, nil
}

func touches(changes []domain.Change, entity domain.EntityType) bool {
	for _, c := range changes {
		if c.Entity == entity {
			return true
		}
	}
	return false
}
