package core

import (
	"assemblycore/pkg/domain"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type captureAuditRecorder struct {
	mu      sync.Mutex
	entries []AuditEntry
}

func (c *captureAuditRecorder) Record(_ context.Context, entry AuditEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, entry)
}

func (c *captureAuditRecorder) has(op string, status AuditStatus, predicate func(AuditEntry) bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, entry := range c.entries {
		if entry.Operation == op && entry.Status == status {
			if predicate == nil || predicate(entry) {
				return true
			}
		}
	}
	return false
}

type metricsCall struct {
	op       string
	success  bool
	duration time.Duration
}

type captureMetricsRecorder struct {
	calls []metricsCall
}

func (c *captureMetricsRecorder) Observe(_ context.Context, op string, success bool, duration time.Duration) {
	c.calls = append(c.calls, metricsCall{op: op, success: success, duration: duration})
}

func (c *captureMetricsRecorder) has(op string, success bool) bool {
	for _, call := range c.calls {
		if call.op == op && call.success == success {
			return true
		}
	}
	return false
}

type captureTracer struct {
	started []string
	ended   []spanRecord
}

type spanRecord struct {
	op  string
	err error
}

func (c *captureTracer) Start(ctx context.Context, op string) (context.Context, TraceSpan) {
	c.started = append(c.started, op)
	return ctx, &captureSpan{tracer: c, op: op}
}

func (c *captureTracer) has(op string, success bool) bool {
	for _, record := range c.ended {
		if record.op == op && (record.err == nil) == success {
			return true
		}
	}
	return false
}

type captureSpan struct {
	tracer *captureTracer
	op     string
}

func (s *captureSpan) End(err error) {
	s.tracer.ended = append(s.tracer.ended, spanRecord{op: s.op, err: err})
}

type captureLogger struct {
	mu    sync.Mutex
	calls []string
}

func (c *captureLogger) add(prefix, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, prefix+msg)
}

func (c *captureLogger) Debug(msg string, _ ...any) { c.add("d:", msg) }
func (c *captureLogger) Info(msg string, _ ...any)  { c.add("i:", msg) }
func (c *captureLogger) Warn(msg string, _ ...any)  { c.add("w:", msg) }
func (c *captureLogger) Error(msg string, _ ...any) { c.add("e:", msg) }

func (c *captureLogger) count(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, call := range c.calls {
		if strings.HasPrefix(call, prefix) {
			n++
		}
	}
	return n
}

func TestServiceObservabilityOnSuccessAndRejection(t *testing.T) {
	ctx := context.Background()
	audit := &captureAuditRecorder{}
	metrics := &captureMetricsRecorder{}
	tracer := &captureTracer{}
	logger := &captureLogger{}
	svc := NewInMemoryService(NewDefaultRulesEngine(),
		WithAuditRecorder(audit),
		WithMetricsRecorder(metrics),
		WithTracer(tracer),
		WithLogger(logger),
	)

	part, _, err := svc.CreatePart(ctx, Part{Barcode: "CAM-1", Type: "Camera"})
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	if !audit.has("create_part", AuditStatusSuccess, func(e AuditEntry) bool {
		return e.EntityID == part.ID && e.Entity == EntityPart && e.Action == ActionCreate
	}) {
		t.Fatalf("expected audit entry for create_part success: %+v", audit.entries)
	}
	if !metrics.has("create_part", true) || !tracer.has("create_part", true) {
		t.Fatalf("expected metrics and span for create_part")
	}

	if _, _, err := svc.AssignPart(ctx, "missing", "CAM-1"); !errors.Is(err, domain.ErrInstanceNotFound) {
		t.Fatalf("expected instance not found, got %v", err)
	}
	if !audit.has("assign_part", AuditStatusError, func(e AuditEntry) bool {
		return e.EntityID == "missing" && e.Error != ""
	}) {
		t.Fatalf("expected audit entry for assign_part failure")
	}
	if !metrics.has("assign_part", false) || !tracer.has("assign_part", false) {
		t.Fatalf("expected failed metrics and span for assign_part")
	}
	if logger.count("i:operation rejected") != 1 || logger.count("e:") != 0 {
		t.Fatalf("expected rejection logged at info, got %+v", logger.calls)
	}
	if logger.count("d:operation completed") == 0 {
		t.Fatalf("expected debug log for completed operation")
	}

	if _, err := svc.ListParts(ctx); err != nil {
		t.Fatalf("list: %v", err)
	}
	if !metrics.has("list_parts", true) {
		t.Fatalf("expected read operations to be measured")
	}
	if audit.has("list_parts", AuditStatusSuccess, nil) {
		t.Fatalf("reads must not be audited")
	}
}

func TestRecordAuditSuccessUsesMetadata(t *testing.T) {
	fixed := time.Date(2024, 10, 1, 8, 30, 0, 0, time.UTC)
	recorder := &captureAuditRecorder{}
	svc := NewInMemoryService(nil,
		WithAuditRecorder(recorder),
		WithClock(ClockFunc(func() time.Time { return fixed })),
	)

	svc.recordAuditSuccess(context.Background(), "assign_part", "inst-1", 42*time.Millisecond)
	if len(recorder.entries) != 1 {
		t.Fatalf("expected 1 audit entry, got %d", len(recorder.entries))
	}
	entry := recorder.entries[0]
	if entry.Entity != EntityRobotInstance || entry.Action != ActionUpdate || entry.EntityID != "inst-1" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if entry.Duration != 42*time.Millisecond || !entry.Timestamp.Equal(fixed) {
		t.Fatalf("unexpected timing: %+v", entry)
	}

	svc.recordAuditSuccess(context.Background(), "unknown_operation", "x", time.Second)
	if len(recorder.entries) != 1 {
		t.Fatalf("expected unknown operations to be ignored")
	}
}

// flakyStore fails the first n transactions with a transient error.
type flakyStore struct {
	PersistentStore
	mu       sync.Mutex
	failures int
	calls    int
}

func (f *flakyStore) RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error) {
	f.mu.Lock()
	f.calls++
	fail := f.failures > 0
	if fail {
		f.failures--
	}
	f.mu.Unlock()
	if fail {
		return Result{}, domain.TransientError{Op: "commit", Err: errors.New("connection reset")}
	}
	return f.PersistentStore.RunInTransaction(ctx, fn)
}

func TestTransientFailureRetriedOnce(t *testing.T) {
	ctx := context.Background()
	logger := &captureLogger{}
	store := &flakyStore{PersistentStore: NewMemoryStore(nil), failures: 1}
	svc := NewService(store, WithLogger(logger))
	if _, _, err := svc.CreatePart(ctx, Part{Barcode: "A", Type: "Camera"}); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if store.calls != 2 || logger.count("w:transient store failure") != 1 {
		t.Fatalf("expected one retry, calls=%d logs=%+v", store.calls, logger.calls)
	}

	store.failures = 2
	store.calls = 0
	_, _, err := svc.CreatePart(ctx, Part{Barcode: "B", Type: "Camera"})
	if !errors.Is(err, domain.ErrTransientStore) || store.calls != 2 {
		t.Fatalf("expected transient error after a single retry, got %v calls=%d", err, store.calls)
	}
	if logger.count("e:operation failed") != 1 {
		t.Fatalf("expected store failure logged at error, got %+v", logger.calls)
	}
}

func TestRejectionsAreNotRetried(t *testing.T) {
	store := &flakyStore{PersistentStore: NewMemoryStore(nil)}
	svc := NewService(store)
	if _, _, err := svc.AssignPart(context.Background(), "i", "missing"); !errors.Is(err, domain.ErrPartNotFound) {
		t.Fatalf("expected part not found, got %v", err)
	}
	if store.calls != 1 {
		t.Fatalf("expected a single attempt, got %d", store.calls)
	}
}

func TestWithRuleRegistersOnStoreEngine(t *testing.T) {
	engine := NewRulesEngine()
	svc := NewInMemoryService(engine, WithRule(NewPartBarcodeUniqueRule()))
	if len(engine.Rules()) != 1 || engine.Rules()[0].Name() != "part_barcode_unique" {
		t.Fatalf("expected rule registered, got %+v", engine.Rules())
	}
	if svc.engine != engine {
		t.Fatalf("expected service to expose the store engine")
	}
}
