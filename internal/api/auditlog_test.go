package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"

	"github.com/cirruslycurious/ai-learning-hub-sub001/internal/audit"
)

func newAuditEnv(t *testing.T) (*gin.Engine, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	h := NewAuditHandlers(audit.NewRecorder(db))
	router := gin.New()
	router.GET("/v1/audit", h.List)
	return router, mock
}

func auditRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "kind", "subject_id", "action", "outcome", "reason", "ip_address", "metadata", "created_at",
	}).AddRow(
		"11111111-1111-1111-1111-111111111111", "admin", "auth0|alice",
		"invite.generate", "success", nil, "10.0.0.1", []byte(`{"status_code":201}`), time.Now().UTC(),
	)
}

func TestAuditHandlers_List(t *testing.T) {
	router, mock := newAuditEnv(t)
	mock.ExpectQuery("SELECT COUNT").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("SELECT id, kind").WillReturnRows(auditRows())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/v1/audit", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestAuditHandlers_ListWithFilters(t *testing.T) {
	router, mock := newAuditEnv(t)
	mock.ExpectQuery("SELECT COUNT.+subject_id = .+kind = ").
		WithArgs("auth0|alice", "admin").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("SELECT id, kind.+subject_id = .+kind = ").
		WithArgs("auth0|alice", "admin", 25, 0).
		WillReturnRows(auditRows())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/v1/audit?subject_id=auth0%7Calice&kind=admin&limit=25", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestAuditHandlers_BadDateFilter(t *testing.T) {
	router, _ := newAuditEnv(t)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/v1/audit?start_date=yesterday", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestAuditHandlers_DisabledRecorder(t *testing.T) {
	h := NewAuditHandlers(nil)
	router := gin.New()
	router.GET("/v1/audit", h.List)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/v1/audit", nil))
	if w.Code != http.StatusNotImplemented {
		t.Errorf("status = %d, want 501", w.Code)
	}
}
