package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func healthyMockDB(t *testing.T) (sqlmock.Sqlmock, *HealthChecker) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	db.SetMaxOpenConns(10)
	mock.ExpectPing().WillReturnError(nil)
	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"one"}).AddRow(1))
	return mock, NewHealthChecker(db, nil)
}

func TestHealthChecker_Liveness(t *testing.T) {
	checker := NewHealthChecker(nil, nil)

	rr := httptest.NewRecorder()
	checker.Liveness(rr, httptest.NewRequest("GET", "/health/live", nil))

	if rr.Code != http.StatusOK {
		t.Errorf("liveness returned %v, want %v", rr.Code, http.StatusOK)
	}

	var response map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response["status"] != StatusHealthy {
		t.Errorf("expected status %s, got %v", StatusHealthy, response["status"])
	}
}

func TestHealthChecker_Readiness(t *testing.T) {
	t.Run("healthy database", func(t *testing.T) {
		mock, checker := healthyMockDB(t)

		rr := httptest.NewRecorder()
		checker.Readiness(rr, httptest.NewRequest("GET", "/health/ready", nil))

		if rr.Code != http.StatusOK {
			t.Errorf("readiness returned %v, want %v", rr.Code, http.StatusOK)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})

	t.Run("failed database yields 503", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		if err != nil {
			t.Fatalf("failed to create mock db: %v", err)
		}
		defer db.Close()
		mock.ExpectPing().WillReturnError(errors.New("connection failed"))

		checker := NewHealthChecker(db, nil)

		rr := httptest.NewRecorder()
		checker.Readiness(rr, httptest.NewRequest("GET", "/health/ready", nil))

		if rr.Code != http.StatusServiceUnavailable {
			t.Errorf("expected %v, got %v", http.StatusServiceUnavailable, rr.Code)
		}

		var response HealthStatus
		if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if response.Status != StatusUnhealthy {
			t.Errorf("expected status %s, got %s", StatusUnhealthy, response.Status)
		}
	})

	t.Run("redis outage only degrades", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		if err != nil {
			t.Fatalf("failed to create mock db: %v", err)
		}
		defer db.Close()
		db.SetMaxOpenConns(10)
		mock.ExpectPing().WillReturnError(nil)
		mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"one"}).AddRow(1))

		redisClient := redis.NewClient(&redis.Options{Addr: "localhost:1"})
		defer redisClient.Close()

		checker := NewHealthChecker(db, redisClient)

		rr := httptest.NewRecorder()
		checker.Readiness(rr, httptest.NewRequest("GET", "/health/ready", nil))

		if rr.Code != http.StatusOK {
			t.Errorf("degraded should still answer 200, got %v", rr.Code)
		}

		var response HealthStatus
		if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if response.Status != StatusDegraded {
			t.Errorf("expected status %s, got %s", StatusDegraded, response.Status)
		}
	})
}

func TestHealthChecker_Check(t *testing.T) {
	t.Run("no dependencies", func(t *testing.T) {
		status := NewHealthChecker(nil, nil).Check(context.Background())

		if status.Status != StatusHealthy {
			t.Errorf("expected %s, got %s", StatusHealthy, status.Status)
		}
		if len(status.Dependencies) != 0 {
			t.Errorf("expected no dependencies, got %d", len(status.Dependencies))
		}
	})

	t.Run("unhealthy database dominates", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		if err != nil {
			t.Fatalf("failed to create mock db: %v", err)
		}
		defer db.Close()
		mock.ExpectPing().WillReturnError(errors.New("connection refused"))

		status := NewHealthChecker(db, nil).Check(context.Background())

		if status.Status != StatusUnhealthy {
			t.Errorf("expected %s, got %s", StatusUnhealthy, status.Status)
		}
		dbStatus := status.Dependencies["database"]
		if dbStatus.Message != "connection refused" {
			t.Errorf("expected error message, got %q", dbStatus.Message)
		}
	})

	t.Run("healthy redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		defer redisClient.Close()

		status := NewHealthChecker(nil, redisClient).Check(context.Background())

		if status.Status != StatusHealthy {
			t.Errorf("expected %s, got %s", StatusHealthy, status.Status)
		}
		if status.Dependencies["redis"].Latency == 0 {
			t.Error("expected latency to be measured")
		}
	})
}

func TestHealthChecker_checkDatabase_QueryFailure(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	defer db.Close()
	mock.ExpectPing().WillReturnError(nil)
	mock.ExpectQuery("SELECT 1").WillReturnError(errors.New("query timeout"))

	status := NewHealthChecker(db, nil).checkDatabase(context.Background())

	if status.Status != StatusUnhealthy {
		t.Errorf("expected %s, got %s", StatusUnhealthy, status.Status)
	}
	if !strings.Contains(status.Message, "query failed") {
		t.Errorf("expected message to name the query failure, got %q", status.Message)
	}
}

func TestRegisterHealthRoutes(t *testing.T) {
	mux := http.NewServeMux()
	RegisterHealthRoutes(mux, NewHealthChecker(nil, nil))

	for _, path := range []string{"/health", "/health/live", "/health/ready"} {
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, httptest.NewRequest("GET", path, nil))
		if rr.Code != http.StatusOK {
			t.Errorf("%s returned %v, want %v", path, rr.Code, http.StatusOK)
		}
	}
}
