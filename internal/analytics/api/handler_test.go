package analytics_api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"ms-fest/internal/analytics"
	analytics_api "ms-fest/internal/analytics/api"
	"ms-fest/internal/auth"
	"ms-fest/internal/database/dbtest"
	"ms-fest/internal/logger"
	"ms-fest/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var organizer = auth.Identity{UserID: "org-user", Role: auth.RoleOrganizer}

func setupRouter(t *testing.T) (chi.Router, *models.Event) {
	t.Helper()
	db := dbtest.NewDB(t)
	log := logger.NewNopLogger()
	org := dbtest.SeedOrganizer(t, db, organizer.UserID, true)
	ev := dbtest.SeedEvent(t, db, org.ID, nil)
	for _, p := range []string{"p1", "p2"} {
		dbtest.SeedUser(t, db, p, "participant")
		dbtest.SeedRegistration(t, db, &models.Registration{EventID: ev.ID, ParticipantID: p, Status: models.RegistrationRegistered, AmountPaid: 25})
	}

	r := chi.NewRouter()
	analytics_api.NewHandler(analytics.NewService(db, log), log).RegisterRoutes(r)
	return r, ev
}

func serve(r chi.Router, id *auth.Identity, method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if id != nil {
		req = req.WithContext(auth.WithIdentity(req.Context(), *id))
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestGetEventAnalytics(t *testing.T) {
	r, ev := setupRouter(t)

	rec := serve(r, &organizer, http.MethodGet, "/api/analytics/events/"+ev.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var env struct {
		Success bool                     `json:"success"`
		Data    analytics.EventAnalytics `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.True(t, env.Success)
	assert.Equal(t, 2, env.Data.TotalRegistrations)
	assert.InDelta(t, 50.0, env.Data.TotalRevenue, 0.001)

	// Test case 1: unknown status filter
	rec = serve(r, &organizer, http.MethodGet, "/api/analytics/events/"+ev.ID+"?status=PAID", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Test case 2: participants have no analytics
	rec = serve(r, &auth.Identity{UserID: "p1", Role: auth.RoleParticipant}, http.MethodGet, "/api/analytics/events/"+ev.ID, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Test case 3: no identity
	rec = serve(r, nil, http.MethodGet, "/api/analytics/organizer", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetEventOrdersAndBatch(t *testing.T) {
	r, ev := setupRouter(t)

	rec := serve(r, &organizer, http.MethodGet, "/api/analytics/events/"+ev.ID+"/orders?limit=1&sort=created_at", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var orders struct {
		Data []models.Registration `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &orders))
	assert.Len(t, orders.Data, 1)

	rec = serve(r, &organizer, http.MethodGet, "/api/analytics/events/"+ev.ID+"/orders?offset=-", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body, err := json.Marshal(map[string]interface{}{"event_ids": []string{ev.ID, "missing"}})
	require.NoError(t, err)
	rec = serve(r, &organizer, http.MethodPost, "/api/analytics/events/batch", body)
	require.Equal(t, http.StatusOK, rec.Code)
	var batch struct {
		Data analytics.BatchEventAnalytics `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &batch))
	assert.Equal(t, []string{ev.ID}, batch.Data.EventIDs)
	assert.Equal(t, 2, batch.Data.TotalRegistrations)

	rec = serve(r, &organizer, http.MethodGet, "/api/analytics/organizer", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var org struct {
		Data analytics.OrganizerAnalytics `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &org))
	assert.Equal(t, 1, org.Data.EventCount)
	assert.InDelta(t, 50.0, org.Data.TotalRevenue, 0.001)
}
