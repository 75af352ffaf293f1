package domain

import (
	"errors"
	"fmt"
	"testing"
)

func armBot() RobotDesign {
	return RobotDesign{
		ID:   "d1",
		Name: "ArmBot",
		RequiredParts: []RequiredPart{
			{Type: "Camera", Quantity: 2},
			{Type: "Lidar", Quantity: 1},
		},
	}
}

func TestEvaluateCompleteAndIncomplete(t *testing.T) {
	inst := RobotInstance{ID: "i1", DesignID: "d1", AssignedParts: []AssignedPart{
		{PartID: "c1", Type: "Camera"},
		{PartID: "c2", Type: "Camera"},
	}}
	got := Evaluate(armBot(), true, inst)
	if got.Status != StatusIncomplete {
		t.Fatalf("expected incomplete without lidar, got %s", got.Status)
	}
	if len(got.Requirements) != 2 || !got.Requirements[0].Fulfilled || got.Requirements[1].Fulfilled {
		t.Fatalf("unexpected breakdown: %+v", got.Requirements)
	}

	inst.AssignedParts = append(inst.AssignedParts, AssignedPart{PartID: "l1", Type: "Lidar"})
	if Status(armBot(), true, inst) != StatusComplete {
		t.Fatalf("expected complete once every line is met")
	}
}

func TestEvaluateMissingDesign(t *testing.T) {
	got := Evaluate(RobotDesign{}, false, RobotInstance{ID: "i1", DesignID: "gone"})
	if got.Status != StatusIncomplete || got.DesignFound {
		t.Fatalf("expected incomplete for dangling design, got %+v", got)
	}
}

func TestEvaluateEmptyDesignIsComplete(t *testing.T) {
	if Status(RobotDesign{ID: "d0"}, true, RobotInstance{}) != StatusComplete {
		t.Fatalf("design without requirements is trivially complete")
	}
}

func TestRequiredQuantitySumsDuplicateLines(t *testing.T) {
	d := RobotDesign{RequiredParts: []RequiredPart{{Type: "Camera", Quantity: 1}, {Type: "Camera", Quantity: 2}}}
	if q, ok := d.RequiredQuantity("Camera"); !ok || q != 3 {
		t.Fatalf("expected 3 cameras, got %d ok=%v", q, ok)
	}
	if _, ok := d.RequiredQuantity("Lidar"); ok {
		t.Fatalf("expected lidar not required")
	}
}

func TestErrorTaxonomy(t *testing.T) {
	cases := []struct {
		err      error
		category error
		specific error
	}{
		{NotFoundError{Entity: EntityPart, Key: "p"}, ErrNotFound, ErrPartNotFound},
		{NotFoundError{Entity: EntityRobotDesign, Key: "d"}, ErrNotFound, ErrDesignNotFound},
		{NotFoundError{Entity: EntityRobotInstance, Key: "i"}, ErrNotFound, ErrInstanceNotFound},
		{ConstraintError{Code: CodeQuotaExceeded}, ErrConstraintViolation, ErrQuotaExceeded},
		{ConstraintError{Code: CodeAlreadyAssigned}, ErrConstraintViolation, ErrAlreadyAssigned},
		{ConstraintError{Code: CodeTypeNotRequired}, ErrConstraintViolation, ErrTypeNotRequired},
		{ValidationError{Field: "state"}, ErrInvalidInput, ErrInvalidInput},
		{TransientError{Op: "commit", Err: errors.New("io")}, ErrTransientStore, ErrTransientStore},
	}
	for _, tc := range cases {
		wrapped := fmt.Errorf("wrapped: %w", tc.err)
		if !errors.Is(wrapped, tc.category) || !errors.Is(wrapped, tc.specific) {
			t.Fatalf("%T did not match its sentinels", tc.err)
		}
		if errors.Is(tc.err, ErrTransientStore) && tc.category != ErrTransientStore {
			t.Fatalf("%T unexpectedly transient", tc.err)
		}
	}
	if errors.Is(NotFoundError{Entity: EntityPart}, ErrDesignNotFound) {
		t.Fatalf("part not found must not match design sentinel")
	}
	if (NotFoundError{Entity: EntityRobotInstance, Key: "x"}).Error() != `robot instance "x" not found` {
		t.Fatalf("unexpected message")
	}
}
