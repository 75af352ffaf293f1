package core_test

import (
	"assemblycore/internal/blob"
	"assemblycore/internal/core"
	blobmemory "assemblycore/internal/infra/blob/memory"
	blobs3 "assemblycore/internal/infra/blob/s3"
	"assemblycore/pkg/domain"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"
)

func TestArchiveHistoryToMemory(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store := blobmemory.New()
	svc := core.NewInMemoryService(core.NewDefaultRulesEngine(),
		core.WithBlobStore(store),
		core.WithClock(core.ClockFunc(func() time.Time { return fixed })),
	)
	part, _, err := svc.CreatePart(ctx, domain.Part{Barcode: "CAM-1", Type: "Camera"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	info, err := svc.ArchiveHistory(ctx, domain.EntityPart, part.ID)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if info.Key != core.ArchiveKey(domain.EntityPart, part.ID, fixed) || info.URL != "" {
		t.Fatalf("unexpected info %+v", info)
	}
	_, rc, err := store.Get(ctx, info.Key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer func() { _ = rc.Close() }()
	var entries []domain.AuditEntry
	if err := json.NewDecoder(rc).Decode(&entries); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(entries) != 1 || entries[0].Action != domain.AuditCreated {
		t.Fatalf("unexpected archived history %+v", entries)
	}

	// The same instant maps to the same key; the store is create-only.
	if _, err := svc.ArchiveHistory(ctx, domain.EntityPart, part.ID); !errors.Is(err, blob.ErrExists) {
		t.Fatalf("expected exists error on duplicate key, got %v", err)
	}
}

func TestArchiveHistoryToS3Presigns(t *testing.T) {
	ctx := context.Background()
	store := blobs3.NewMockForTests(0)
	svc := core.NewInMemoryService(nil, core.WithBlobStore(store))
	inst, _, err := svc.CreateRobotInstance(ctx, domain.RobotInstance{Barcode: "R-1", DesignID: "d"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	info, err := svc.ArchiveHistory(ctx, domain.EntityRobotInstance, inst.ID)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if !strings.HasPrefix(info.Key, "history/robot_instance/"+inst.ID+"/") || info.URL == "" {
		t.Fatalf("expected presigned archive, got %+v", info)
	}
	_, rc, err := store.Get(ctx, info.Key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if !strings.Contains(string(body), "Robot instance created") {
		t.Fatalf("unexpected archive body %s", body)
	}
}

func TestArchiveHistoryErrors(t *testing.T) {
	ctx := context.Background()
	svc := core.NewInMemoryService(nil)
	if _, err := svc.ArchiveHistory(ctx, domain.EntityPart, "p"); !errors.Is(err, blob.ErrUnsupported) {
		t.Fatalf("expected unsupported without blob store, got %v", err)
	}
	svc = core.NewInMemoryService(nil, core.WithBlobStore(blobmemory.New()))
	if _, err := svc.ArchiveHistory(ctx, domain.EntityPart, "missing"); !errors.Is(err, domain.ErrPartNotFound) {
		t.Fatalf("expected part not found, got %v", err)
	}
}
