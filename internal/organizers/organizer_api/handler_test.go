package organizer_api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"ms-fest/internal/auth"
	"ms-fest/internal/database/dbtest"
	"ms-fest/internal/logger"
	"ms-fest/internal/models"
	orgdb "ms-fest/internal/organizers/db"
	"ms-fest/internal/organizers/organizer_api"
	organizers "ms-fest/internal/organizers/service"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var admin = auth.Identity{UserID: "root", Role: auth.RoleAdmin}

func do(t *testing.T, r chi.Router, id *auth.Identity, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if id != nil {
		req = req.WithContext(auth.WithIdentity(req.Context(), *id))
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestAdminOrganizerEndpoints(t *testing.T) {
	db := dbtest.NewDB(t)
	log := logger.NewNopLogger()
	r := chi.NewRouter()
	organizer_api.NewHandler(organizers.NewAdminService(db, log), log).RegisterRoutes(r)

	org := dbtest.SeedOrganizer(t, db, "org-user", true)
	ev := dbtest.SeedEvent(t, db, org.ID, nil)
	dbtest.SeedRegistration(t, db, &models.Registration{EventID: ev.ID, ParticipantID: "p1", Status: models.RegistrationRegistered})

	var env struct {
		Message string           `json:"message"`
		Data    models.Organizer `json:"data"`
	}
	rec := do(t, r, &admin, http.MethodPatch, "/api/admin/organizers/"+org.ID, map[string]bool{"is_active": false})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, "Organizer disabled", env.Message)
	assert.False(t, env.Data.IsActive)

	// Test case 1: is_active is required
	rec = do(t, r, &admin, http.MethodPatch, "/api/admin/organizers/"+org.ID, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Test case 2: organizers are not admins
	organizer := auth.Identity{UserID: "org-user", Role: auth.RoleOrganizer}
	rec = do(t, r, &organizer, http.MethodPatch, "/api/admin/organizers/"+org.ID, map[string]bool{"is_active": true})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = do(t, r, &organizer, http.MethodDelete, "/api/admin/organizers/"+org.ID, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Test case 3: unknown organizer
	rec = do(t, r, &admin, http.MethodPatch, "/api/admin/organizers/missing", map[string]bool{"is_active": true})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var purged struct {
		Data orgdb.PurgeResult `json:"data"`
	}
	rec = do(t, r, &admin, http.MethodDelete, "/api/admin/organizers/"+org.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &purged))
	assert.Equal(t, 1, purged.Data.Events)
	assert.Equal(t, 1, purged.Data.Registrations)

	rec = do(t, r, &admin, http.MethodDelete, "/api/admin/organizers/"+org.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Test case 4: no identity
	rec = do(t, r, nil, http.MethodDelete, "/api/admin/organizers/"+org.ID, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
