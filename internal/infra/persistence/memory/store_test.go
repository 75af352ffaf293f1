package memory

import (
	"assemblycore/pkg/domain"
	"context"
	"errors"
	"testing"
	"time"
)

func fixedClock() func() time.Time {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return now }
}

func TestStoreCreateAndFindPart(t *testing.T) {
	store := NewStore(nil, WithNowFunc(fixedClock()))
	ctx := context.Background()

	var created Part
	_, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		created, err = tx.CreatePart(Part{Barcode: "CAM-1", Type: "Camera"})
		return err
	})
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	if created.ID == "" {
		t.Fatalf("expected generated id")
	}
	if created.State != domain.PartStateWorking {
		t.Fatalf("expected default state Working, got %q", created.State)
	}
	if !created.CreatedAt.Equal(fixedClock()()) {
		t.Fatalf("expected clock timestamp, got %v", created.CreatedAt)
	}

	got, ok := store.GetPart(created.ID)
	if !ok || got.Barcode != "CAM-1" {
		t.Fatalf("expected committed part, got %+v ok=%v", got, ok)
	}

	err = store.View(ctx, func(view TransactionView) error {
		p, ok := view.FindPartByBarcode("CAM-1")
		if !ok || p.ID != created.ID {
			t.Fatalf("expected barcode lookup to hit %s", created.ID)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestStoreRejectsDuplicateBarcode(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()
	if _, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.CreatePart(Part{Barcode: "X1", Type: "Lidar"})
		return err
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	_, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.CreatePart(Part{Barcode: "X1", Type: "Lidar"})
		return err
	})
	if !errors.Is(err, domain.ErrDuplicateBarcode) {
		t.Fatalf("expected duplicate barcode error, got %v", err)
	}
	if len(store.ListParts()) != 1 {
		t.Fatalf("expected single part after rejected insert")
	}
}

func TestStoreRejectsInvalidPartState(t *testing.T) {
	store := NewStore(nil)
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.CreatePart(Part{Barcode: "B", State: "Melted"})
		return err
	})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestStoreRejectsBlankBarcode(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()
	for _, barcode := range []string{"", "   "} {
		_, err := store.RunInTransaction(ctx, func(tx Transaction) error {
			_, err := tx.CreatePart(Part{Barcode: barcode, Type: "Camera"})
			return err
		})
		var verr domain.ValidationError
		if !errors.As(err, &verr) || verr.Field != "barcode" {
			t.Fatalf("expected barcode validation error for %q, got %v", barcode, err)
		}
	}
	var id string
	if _, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		p, err := tx.CreatePart(Part{Barcode: "B1", Type: "Camera"})
		id = p.ID
		return err
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	_, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.UpdatePart(id, func(p *Part) error {
			p.Barcode = ""
			return nil
		})
		return err
	})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected clearing the barcode to be rejected, got %v", err)
	}
	_ = store.View(ctx, func(view TransactionView) error {
		if _, ok := view.FindPartByBarcode(""); ok {
			t.Fatalf("blank barcode must never resolve to a part")
		}
		return nil
	})
}

func TestStoreFailedTransactionLeavesStateUntouched(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()
	boom := errors.New("boom")
	_, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		if _, err := tx.CreatePart(Part{Barcode: "P1"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if len(store.ListParts()) != 0 {
		t.Fatalf("expected rollback of partial writes")
	}
}

func TestStoreUpdateMissingReturnsNotFound(t *testing.T) {
	store := NewStore(nil)
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.UpdateRobotInstance("missing", func(*RobotInstance) error { return nil })
		return err
	})
	if !errors.Is(err, domain.ErrInstanceNotFound) || !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected instance not found, got %v", err)
	}
}

func TestStoreHistoryIsAppendOnly(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()
	var id string
	if _, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		p, err := tx.CreatePart(Part{Barcode: "H1", History: []domain.AuditEntry{{Action: domain.AuditCreated, Details: "created"}}})
		id = p.ID
		return err
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	_, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.UpdatePart(id, func(p *Part) error {
			p.History[0].Details = "rewritten"
			return nil
		})
		return err
	})
	if err == nil {
		t.Fatalf("expected rewrite of history to fail")
	}
	_, err = store.RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.UpdatePart(id, func(p *Part) error {
			p.History = nil
			return nil
		})
		return err
	})
	if err == nil {
		t.Fatalf("expected truncation of history to fail")
	}
	got, _ := store.GetPart(id)
	if len(got.History) != 1 || got.History[0].Details != "created" {
		t.Fatalf("expected history untouched, got %+v", got.History)
	}
}

func TestStorePartTypesByName(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()
	if _, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		for _, name := range []string{"Lidar", "Camera"} {
			if _, err := tx.CreatePartType(PartType{Name: name}); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	types := store.ListPartTypes()
	if len(types) != 2 || types[0].Name != "Camera" {
		t.Fatalf("expected name-ordered types, got %+v", types)
	}
	_, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.CreatePartType(PartType{Name: "Camera"})
		return err
	})
	if err == nil {
		t.Fatalf("expected duplicate part type name to fail")
	}
	if _, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		return tx.DeletePartType("Camera")
	}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	_, err = store.RunInTransaction(ctx, func(tx Transaction) error {
		return tx.DeletePartType("Camera")
	})
	if !errors.Is(err, domain.ErrPartTypeNotFound) {
		t.Fatalf("expected part type not found, got %v", err)
	}
}

func TestStoreDesignValidation(t *testing.T) {
	store := NewStore(nil)
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.CreateRobotDesign(RobotDesign{Name: "Bad", RequiredParts: []domain.RequiredPart{{Type: "Camera", Quantity: 0}}})
		return err
	})
	var vErr domain.ValidationError
	if !errors.As(err, &vErr) || vErr.Field != "required_parts[0].quantity" {
		t.Fatalf("expected quantity validation error, got %v", err)
	}
}

func TestStoreDeleteDesignLeavesInstances(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()
	var designID, instanceID string
	if _, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		d, err := tx.CreateRobotDesign(RobotDesign{Name: "ArmBot"})
		if err != nil {
			return err
		}
		designID = d.ID
		inst, err := tx.CreateRobotInstance(RobotInstance{Barcode: "R1", DesignID: d.ID})
		instanceID = inst.ID
		return err
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		return tx.DeleteRobotDesign(designID)
	}); err != nil {
		t.Fatalf("delete design: %v", err)
	}
	inst, ok := store.GetRobotInstance(instanceID)
	if !ok || inst.DesignID != designID {
		t.Fatalf("expected instance to keep dangling design id, got %+v", inst)
	}
}

type blockingRule struct{}

func (blockingRule) Name() string { return "block_all" }

func (blockingRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	if len(changes) == 0 {
		return domain.Result{}, nil
	}
	return domain.Result{Violations: []domain.Violation{{Rule: "block_all", Severity: domain.SeverityBlock, Message: "blocked"}}}, nil
}

func TestStoreRulesBlockCommit(t *testing.T) {
	engine := domain.NewRulesEngine()
	engine.Register(blockingRule{})
	store := NewStore(engine)
	res, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.CreatePartType(PartType{Name: "Camera"})
		return err
	})
	if !errors.Is(err, domain.ErrConstraintViolation) {
		t.Fatalf("expected rule violation, got %v", err)
	}
	if !res.HasBlocking() {
		t.Fatalf("expected blocking result")
	}
	if len(store.ListPartTypes()) != 0 {
		t.Fatalf("expected blocked transaction to leave state untouched")
	}
}

func TestStoreExportImportRoundTrip(t *testing.T) {
	store := NewStore(nil)
	if _, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.CreateRobotInstance(RobotInstance{
			Barcode:       "R1",
			AssignedParts: []domain.AssignedPart{{PartID: "p1", Barcode: "B1", Type: "Camera"}},
		})
		return err
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	snap := store.ExportState()
	for _, bucket := range Buckets {
		payload, err := snap.EncodeBucket(bucket)
		if err != nil {
			t.Fatalf("encode %s: %v", bucket, err)
		}
		var decoded Snapshot
		if err := decoded.DecodeBucket(bucket, payload); err != nil {
			t.Fatalf("decode %s: %v", bucket, err)
		}
	}
	other := NewStore(nil)
	other.ImportState(snap)
	insts := other.ListRobotInstances()
	if len(insts) != 1 || len(insts[0].AssignedParts) != 1 {
		t.Fatalf("expected imported instance with assignment, got %+v", insts)
	}
	if snap.Empty() {
		t.Fatalf("expected non-empty snapshot")
	}
	if _, err := snap.EncodeBucket("unknown"); err == nil {
		t.Fatalf("expected unknown bucket error")
	}
}

func TestStoreReturnsClones(t *testing.T) {
	store := NewStore(nil)
	var id string
	if _, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		inst, err := tx.CreateRobotInstance(RobotInstance{Barcode: "R1"})
		id = inst.ID
		return err
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	inst, _ := store.GetRobotInstance(id)
	inst.AssignedParts = append(inst.AssignedParts, domain.AssignedPart{PartID: "leak"})
	again, _ := store.GetRobotInstance(id)
	if len(again.AssignedParts) != 0 {
		t.Fatalf("expected getters to return copies")
	}
}

func TestStoreCancelledContext(t *testing.T) {
	store := NewStore(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.RunInTransaction(ctx, func(Transaction) error { return nil }); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
}
