package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

// touchLog creates an empty audit log file for checks that expect one
func touchLog(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "audit.log")
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatalf("Failed to create log file: %v", err)
	}
	return path
}

func TestNewHealthChecker(t *testing.T) {
	t.Run("with nil dependencies", func(t *testing.T) {
		checker := NewHealthChecker("", nil, nil)
		if checker == nil {
			t.Fatal("Expected non-nil checker")
		}
		if checker.db != nil {
			t.Error("Expected nil db")
		}
		if checker.redis != nil {
			t.Error("Expected nil redis")
		}
	})

	t.Run("with database", func(t *testing.T) {
		db, _, err := sqlmock.New()
		if err != nil {
			t.Fatalf("Failed to create mock db: %v", err)
		}
		defer db.Close()

		checker := NewHealthChecker("", db, nil)
		if checker.db == nil {
			t.Error("Expected non-nil db")
		}
	})

	t.Run("with redis", func(t *testing.T) {
		mr, err := miniredis.Run()
		if err != nil {
			t.Fatalf("Failed to start miniredis: %v", err)
		}
		defer mr.Close()

		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		defer client.Close()

		checker := NewHealthChecker("", nil, client)
		if checker.redis == nil {
			t.Error("Expected non-nil redis")
		}
	})
}

func TestHealthChecker_Liveness(t *testing.T) {
	checker := NewHealthChecker("", nil, nil)

	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	checker.Liveness(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var body map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode body: %v", err)
	}
	if body["status"] != StatusHealthy {
		t.Errorf("Expected healthy status, got %v", body["status"])
	}
}

func TestHealthChecker_Readiness(t *testing.T) {
	t.Run("healthy log file", func(t *testing.T) {
		checker := NewHealthChecker(touchLog(t), nil, nil)

		req := httptest.NewRequest("GET", "/readyz", nil)
		rec := httptest.NewRecorder()
		checker.Readiness(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}

		var status HealthStatus
		if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
			t.Fatalf("Failed to decode body: %v", err)
		}
		if status.Status != StatusHealthy {
			t.Errorf("Expected healthy, got %s", status.Status)
		}
		if _, ok := status.Dependencies["audit_log"]; !ok {
			t.Error("Expected audit_log dependency in response")
		}
	})

	t.Run("missing log file is unhealthy", func(t *testing.T) {
		checker := NewHealthChecker(filepath.Join(t.TempDir(), "gone.log"), nil, nil)

		req := httptest.NewRequest("GET", "/readyz", nil)
		rec := httptest.NewRecorder()
		checker.Readiness(rec, req)

		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("Expected 503, got %d", rec.Code)
		}
	})
}

func TestHealthChecker_Check(t *testing.T) {
	ctx := context.Background()

	t.Run("audit log present", func(t *testing.T) {
		checker := NewHealthChecker(touchLog(t), nil, nil)

		status := checker.Check(ctx)
		if status.Status != StatusHealthy {
			t.Errorf("Expected healthy, got %s", status.Status)
		}
		if status.Dependencies["audit_log"].Status != StatusHealthy {
			t.Errorf("Expected healthy audit_log, got %s", status.Dependencies["audit_log"].Status)
		}
	})

	t.Run("audit log path is a directory", func(t *testing.T) {
		checker := NewHealthChecker(t.TempDir(), nil, nil)

		status := checker.Check(ctx)
		if status.Status != StatusUnhealthy {
			t.Errorf("Expected unhealthy, got %s", status.Status)
		}
		if status.Dependencies["audit_log"].Message != "audit log path is a directory" {
			t.Errorf("Unexpected message: %s", status.Dependencies["audit_log"].Message)
		}
	})

	t.Run("database healthy", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		if err != nil {
			t.Fatalf("Failed to create mock db: %v", err)
		}
		defer db.Close()

		mock.ExpectPing()
		mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"one"}).AddRow(1))

		checker := NewHealthChecker(touchLog(t), db, nil)

		status := checker.Check(ctx)
		if status.Status != StatusHealthy {
			t.Errorf("Expected healthy, got %s", status.Status)
		}
		if status.Dependencies["database"].Status != StatusHealthy {
			t.Errorf("Expected healthy database, got %s", status.Dependencies["database"].Status)
		}
	})

	t.Run("database ping failure is unhealthy", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		if err != nil {
			t.Fatalf("Failed to create mock db: %v", err)
		}
		defer db.Close()

		mock.ExpectPing().WillReturnError(context.DeadlineExceeded)

		checker := NewHealthChecker(touchLog(t), db, nil)

		status := checker.Check(ctx)
		if status.Status != StatusUnhealthy {
			t.Errorf("Expected unhealthy, got %s", status.Status)
		}
	})

	t.Run("redis healthy", func(t *testing.T) {
		mr, err := miniredis.Run()
		if err != nil {
			t.Fatalf("Failed to start miniredis: %v", err)
		}
		defer mr.Close()

		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		defer client.Close()

		checker := NewHealthChecker(touchLog(t), nil, client)

		status := checker.Check(ctx)
		if status.Status != StatusHealthy {
			t.Errorf("Expected healthy, got %s", status.Status)
		}
		if status.Dependencies["redis"].Status != StatusHealthy {
			t.Errorf("Expected healthy redis, got %s", status.Dependencies["redis"].Status)
		}
	})

	t.Run("redis down degrades but does not fail", func(t *testing.T) {
		mr, err := miniredis.Run()
		if err != nil {
			t.Fatalf("Failed to start miniredis: %v", err)
		}

		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		defer client.Close()
		mr.Close()

		checker := NewHealthChecker(touchLog(t), nil, client)

		status := checker.Check(ctx)
		if status.Status != StatusDegraded {
			t.Errorf("Expected degraded, got %s", status.Status)
		}
		if status.Dependencies["redis"].Status != StatusUnhealthy {
			t.Errorf("Expected unhealthy redis dependency, got %s", status.Dependencies["redis"].Status)
		}
	})
}

func TestRegisterHealthRoutes(t *testing.T) {
	mux := http.NewServeMux()
	RegisterHealthRoutes(mux, NewHealthChecker(touchLog(t), nil, nil))

	for _, path := range []string{"/healthz", "/readyz"} {
		req := httptest.NewRequest("GET", path, nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("Expected 200 from %s, got %d", path, rec.Code)
		}
	}
}
