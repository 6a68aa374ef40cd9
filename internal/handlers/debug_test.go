package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"trade-market/internal/mocks"
	"trade-market/internal/telemetry"
)

func TestHealthzReportsFailingCheck(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterHealthRoutes(r, map[string]HealthCheck{
		"store":  func(context.Context) error { return nil },
		"broker": func(context.Context) error { return errors.New("down") },
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"degraded","checks":{"store":"ok","broker":"down"}}`, rec.Body.String())
}

func TestDebugAuditRouteEmits(t *testing.T) {
	gin.SetMode(gin.TestMode)
	publisher := new(mocks.PublisherMock)
	emitter := telemetry.NewAuditEmitter(publisher, "audit.market", "trade-market", "test", testLogger())
	publisher.On("Publish", mock.Anything, "audit.market", mock.MatchedBy(func(env telemetry.AuditEnvelope) bool {
		return env.ActorID != nil && *env.ActorID == 3 &&
			env.Payload.Action == "debug.audit_test" &&
			env.Payload.Resource == telemetry.ResourceService &&
			env.Payload.Outcome == telemetry.OutcomeAllowed
	})).Return(nil).Once()

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", int64(3))
		c.Next()
	})
	RegisterDebugRoutes(r, emitter, true)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/audit-test", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	publisher.AssertExpectations(t)
}

func TestDebugRoutesDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterDebugRoutes(r, nil, false)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/audit-test", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
}
