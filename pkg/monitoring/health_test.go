package monitoring

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
)

func TestHealthChecker_Basic(t *testing.T) {
	hc := NewHealthChecker("svc", "v1")
	hc.AddCheck("ok", func() CheckResult { return CheckResult{Status: StatusHealthy} })
	status := hc.CheckHealth()
	if status.Status != StatusHealthy {
		t.Fatalf("expected healthy")
	}
}

func TestHealthChecker_WorstStatusWins(t *testing.T) {
	hc := NewHealthChecker("svc", "v1")
	hc.AddCheck("ok", func() CheckResult { return CheckResult{Status: StatusHealthy} })
	hc.AddCheck("meh", func() CheckResult { return CheckResult{Status: StatusDegraded} })
	if got := hc.CheckHealth().Status; got != StatusDegraded {
		t.Fatalf("expected degraded, got %s", got)
	}
	hc.AddCheck("bad", func() CheckResult { return CheckResult{Status: "weird"} })
	if got := hc.CheckHealth().Status; got != StatusUnhealthy {
		t.Fatalf("expected unknown status to count as unhealthy, got %s", got)
	}
}

func TestHealthHandlerReturns503WhenUnhealthy(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hc := NewHealthChecker("ncbot", "v1")
	hc.AddCheck("db", func() CheckResult { return CheckResult{Status: StatusUnhealthy} })

	r := gin.New()
	r.GET("/health", hc.Handler())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	var body HealthStatus
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Service != "ncbot" || body.Checks["db"].Status != StatusUnhealthy {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestDatabaseHealthCheck(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectPing()
	if res := DatabaseHealthCheck(db)(); res.Status != StatusHealthy {
		t.Fatalf("expected healthy, got %+v", res)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestKafkaProducerHealthCheck_NilClient(t *testing.T) {
	if res := KafkaProducerHealthCheck(nil)(); res.Status != StatusDegraded {
		t.Fatalf("expected degraded for nil client, got %q", res.Status)
	}
}

func TestLastSuccessHealthCheck(t *testing.T) {
	var last time.Time
	var lastErr error
	check := LastSuccessHealthCheck(func() time.Time { return last }, func() error { return lastErr }, time.Hour)

	if res := check(); res.Status != StatusDegraded {
		t.Fatalf("expected degraded before first run, got %s", res.Status)
	}
	lastErr = errors.New("account source failed")
	if res := check(); res.Status != StatusUnhealthy {
		t.Fatalf("expected unhealthy when every run failed, got %s", res.Status)
	}
	last = time.Now().Add(-10 * time.Minute)
	if res := check(); res.Status != StatusDegraded {
		t.Fatalf("expected degraded after a failed run, got %s", res.Status)
	}
	lastErr = nil
	if res := check(); res.Status != StatusHealthy {
		t.Fatalf("expected healthy, got %s", res.Status)
	}
	last = time.Now().Add(-2 * time.Hour)
	if res := check(); res.Status != StatusUnhealthy {
		t.Fatalf("expected unhealthy for stale run, got %s", res.Status)
	}
}
