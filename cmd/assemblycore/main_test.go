package main

import (
	"assemblycore/internal/platform/config"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func memoryConfig(t *testing.T) {
	t.Helper()
	t.Setenv("ASSEMBLYCORE_STORAGE_DRIVER", "memory")
	t.Setenv("ASSEMBLYCORE_BLOB_DRIVER", "memory")
	t.Setenv("ASSEMBLYCORE_LOG_LEVEL", "error")
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestSeedCommandReportsCount(t *testing.T) {
	memoryConfig(t)
	out, err := runCommand(t, "seed-part-types")
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if strings.TrimSpace(out) != "seeded 5 part types" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestStatusCommandUnknownInstance(t *testing.T) {
	memoryConfig(t)
	_, err := runCommand(t, "status", "missing")
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestArchiveCommandRejectsUnknownEntity(t *testing.T) {
	memoryConfig(t)
	_, err := runCommand(t, "archive", "robot_design", "d1")
	if err == nil || !strings.Contains(err.Error(), "unknown entity") {
		t.Fatalf("expected unknown entity error, got %v", err)
	}
}

func TestArchiveCommandRequiresDurableBlobStore(t *testing.T) {
	for _, driver := range []string{"memory", "none"} {
		memoryConfig(t)
		t.Setenv("ASSEMBLYCORE_BLOB_DRIVER", driver)
		_, err := runCommand(t, "archive", "part", "p1")
		if err == nil || !strings.Contains(err.Error(), "blob.driver s3") {
			t.Fatalf("driver %s: expected durable blob store error, got %v", driver, err)
		}
	}
}

func TestInvalidConfigFailsBeforeRun(t *testing.T) {
	t.Setenv("ASSEMBLYCORE_STORAGE_DRIVER", "mongo")
	_, err := runCommand(t, "seed-part-types")
	if err == nil || !strings.Contains(err.Error(), "load config") {
		t.Fatalf("expected config error, got %v", err)
	}
}

func TestRouterServesAPIHealthAndMetrics(t *testing.T) {
	memoryConfig(t)
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	a, err := buildApp(context.Background(), cfg)
	if err != nil {
		t.Fatalf("buildApp: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	h := newRouter(a)

	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("healthz: %d", resp.Code)
	}

	body := strings.NewReader(`{"barcode":"CAM-1","type":"Camera"}`)
	resp = httptest.NewRecorder()
	h.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/parts", body))
	if resp.Code != http.StatusCreated {
		t.Fatalf("create part: %d %s", resp.Code, resp.Body.String())
	}
	var created struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil || created.Data.ID == "" {
		t.Fatalf("decode created part: %v", err)
	}

	resp = httptest.NewRecorder()
	h.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/parts/"+created.Data.ID+"/history/archive", nil))
	if resp.Code != http.StatusCreated {
		t.Fatalf("archive: %d %s", resp.Code, resp.Body.String())
	}

	resp = httptest.NewRecorder()
	h.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), "assemblycore_operation_results_total") {
		t.Fatalf("expected operation metrics, got %d", resp.Code)
	}
}

func TestServeShutsDownOnCancel(t *testing.T) {
	memoryConfig(t)
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	a, err := buildApp(context.Background(), cfg)
	if err != nil {
		t.Fatalf("buildApp: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	srv := &http.Server{Addr: "127.0.0.1:0", Handler: newRouter(a)}
	done := make(chan error, 1)
	go func() { done <- serve(ctx, srv, a.logger) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("serve did not stop")
	}
}
