package core_test

import (
	"assemblycore/internal/core"
	"assemblycore/internal/lease"
	"assemblycore/pkg/domain"
	"context"
	"errors"
	"sync"
	"testing"
)

func raceAssign(t *testing.T, svc *core.Service, instanceIDs []string, barcode string) (wins, already int) {
	t.Helper()
	errs := make([]error, len(instanceIDs))
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i, id := range instanceIDs {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			<-start
			_, _, errs[i] = svc.AssignPart(context.Background(), id, barcode)
		}(i, id)
	}
	close(start)
	wg.Wait()
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, domain.ErrAlreadyAssigned):
			already++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	return wins, already
}

func setupRace(t *testing.T, opts ...core.ServiceOption) (*core.Service, []string) {
	t.Helper()
	ctx := context.Background()
	svc := core.NewInMemoryService(core.NewDefaultRulesEngine(), opts...)
	design, _, err := svc.CreateRobotDesign(ctx, domain.RobotDesign{
		Name:          "Rover",
		RequiredParts: []domain.RequiredPart{{Type: "Lidar", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("create design: %v", err)
	}
	if _, _, err := svc.CreatePart(ctx, domain.Part{Barcode: "LID-1", Type: "Lidar"}); err != nil {
		t.Fatalf("create part: %v", err)
	}
	var ids []string
	for _, b := range []string{"R-1", "R-2", "R-3", "R-4"} {
		inst, _, err := svc.CreateRobotInstance(ctx, domain.RobotInstance{Barcode: b, DesignID: design.ID})
		if err != nil {
			t.Fatalf("create instance: %v", err)
		}
		ids = append(ids, inst.ID)
	}
	return svc, ids
}

func TestConcurrentDoubleAssignHasOneWinner(t *testing.T) {
	svc, ids := setupRace(t)
	wins, already := raceAssign(t, svc, ids, "LID-1")
	if wins != 1 || already != len(ids)-1 {
		t.Fatalf("expected exactly one winner, got wins=%d already=%d", wins, already)
	}
	holders := 0
	instances, _ := svc.ListRobotInstances(context.Background())
	for _, inst := range instances {
		holders += len(inst.AssignedParts)
	}
	if holders != 1 {
		t.Fatalf("expected part held once, got %d", holders)
	}
}

func TestConcurrentDoubleAssignWithLease(t *testing.T) {
	svc, ids := setupRace(t, core.WithAllocationLocker(lease.NewLocal()))
	wins, already := raceAssign(t, svc, ids, "LID-1")
	if wins != 1 || already != len(ids)-1 {
		t.Fatalf("expected exactly one winner, got wins=%d already=%d", wins, already)
	}
}

func TestConcurrentQuotaIsNotOvershot(t *testing.T) {
	ctx := context.Background()
	svc := core.NewInMemoryService(core.NewDefaultRulesEngine())
	design, _, _ := svc.CreateRobotDesign(ctx, domain.RobotDesign{
		Name:          "Eye",
		RequiredParts: []domain.RequiredPart{{Type: "Camera", Quantity: 2}},
	})
	inst, _, _ := svc.CreateRobotInstance(ctx, domain.RobotInstance{Barcode: "E-1", DesignID: design.ID})
	barcodes := []string{"C-1", "C-2", "C-3", "C-4", "C-5"}
	for _, b := range barcodes {
		if _, _, err := svc.CreatePart(ctx, domain.Part{Barcode: b, Type: "Camera"}); err != nil {
			t.Fatalf("create %s: %v", b, err)
		}
	}
	var wg sync.WaitGroup
	errs := make([]error, len(barcodes))
	for i, b := range barcodes {
		wg.Add(1)
		go func(i int, b string) {
			defer wg.Done()
			_, _, errs[i] = svc.AssignPart(ctx, inst.ID, b)
		}(i, b)
	}
	wg.Wait()
	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
		} else if !errors.Is(err, domain.ErrQuotaExceeded) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	got, _ := svc.GetRobotInstance(ctx, inst.ID)
	if ok != 2 || len(got.AssignedParts) != 2 {
		t.Fatalf("expected quota of two respected, got ok=%d assigned=%d", ok, len(got.AssignedParts))
	}
}

func TestAssignLeaseTimeout(t *testing.T) {
	locker := lease.NewLocal()
	svc, ids := setupRace(t, core.WithAllocationLocker(locker))
	release, err := locker.Acquire(context.Background(), lease.InstanceKey(ids[0]))
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer release()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := svc.AssignPart(ctx, ids[0], "LID-1"); !errors.Is(err, lease.ErrBusy) {
		t.Fatalf("expected busy lease, got %v", err)
	}
}
