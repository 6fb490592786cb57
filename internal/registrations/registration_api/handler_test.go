package registration_api_test

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"ms-fest/internal/auth"
	"ms-fest/internal/database/dbtest"
	"ms-fest/internal/logger"
	"ms-fest/internal/models"
	"ms-fest/internal/notify/notifytest"
	"ms-fest/internal/registrations/registration_api"
	registrations "ms-fest/internal/registrations/service"
	qr "ms-fest/internal/tickets/qr_genrator"
	tickets "ms-fest/internal/tickets/service"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

var (
	organizer   = auth.Identity{UserID: "org-user", Role: auth.RoleOrganizer}
	participant = auth.Identity{UserID: "p1", Role: auth.RoleParticipant}
)

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

type testServer struct {
	db     *bun.DB
	router chi.Router
	event  *models.Event
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db := dbtest.NewDB(t)
	log := logger.NewNopLogger()
	issuer := tickets.NewIssuer(qr.NewQRGenerator("test-secret", 128), log)
	svc := registrations.NewRegistrationService(db, issuer, &notifytest.Recorder{}, log)

	org := dbtest.SeedOrganizer(t, db, organizer.UserID, true)
	dbtest.SeedUser(t, db, participant.UserID, "participant")
	ev := dbtest.SeedEvent(t, db, org.ID, nil)

	r := chi.NewRouter()
	registration_api.NewHandler(svc, log).RegisterRoutes(r)
	return &testServer{db: db, router: r, event: ev}
}

func (s *testServer) do(t *testing.T, id *auth.Identity, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if id != nil {
		req = req.WithContext(auth.WithIdentity(req.Context(), *id))
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestRegisterEndpoint(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, &participant, http.MethodPost, "/api/registrations", map[string]interface{}{"event_id": s.event.ID})
	require.Equal(t, http.StatusCreated, rec.Code)
	env := decode(t, rec)
	assert.True(t, env.Success)

	var reg models.Registration
	require.NoError(t, json.Unmarshal(env.Data, &reg))
	assert.Equal(t, models.RegistrationRegistered, reg.Status)
	assert.NotEmpty(t, reg.TicketID)

	// Test case 1: a second registration conflicts
	rec = s.do(t, &participant, http.MethodPost, "/api/registrations", map[string]interface{}{"event_id": s.event.ID})
	assert.Equal(t, http.StatusConflict, rec.Code)
	env = decode(t, rec)
	assert.False(t, env.Success)
	assert.Equal(t, "duplicate_registration", env.Error)

	// Test case 2: organizers cannot register
	rec = s.do(t, &organizer, http.MethodPost, "/api/registrations", map[string]interface{}{"event_id": s.event.ID})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Test case 3: no identity
	rec = s.do(t, nil, http.MethodPost, "/api/registrations", map[string]interface{}{"event_id": s.event.ID})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Test case 4: malformed body
	req := httptest.NewRequest(http.MethodPost, "/api/registrations", bytes.NewBufferString("{"))
	req = req.WithContext(auth.WithIdentity(req.Context(), participant))
	bad := httptest.NewRecorder()
	s.router.ServeHTTP(bad, req)
	assert.Equal(t, http.StatusBadRequest, bad.Code)

	// Test case 5: unknown event
	rec = s.do(t, &participant, http.MethodPost, "/api/registrations", map[string]interface{}{"event_id": "missing"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTicketAndReadEndpoints(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, &participant, http.MethodPost, "/api/registrations", map[string]interface{}{"event_id": s.event.ID})
	require.Equal(t, http.StatusCreated, rec.Code)
	var reg models.Registration
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &reg))

	rec = s.do(t, &participant, http.MethodGet, "/api/registrations/"+reg.ID+"/ticket.png", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, []byte("\x89PNG"), rec.Body.Bytes()[:4])

	rec = s.do(t, &participant, http.MethodGet, "/api/registrations/me?type=NORMAL", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var mine []models.Registration
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &mine))
	require.Len(t, mine, 1)
	assert.Equal(t, reg.ID, mine[0].ID)

	// Test case: another participant cannot read it
	stranger := auth.Identity{UserID: "p2", Role: auth.RoleParticipant}
	rec = s.do(t, &stranger, http.MethodGet, "/api/registrations/"+reg.ID, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, &organizer, http.MethodGet, "/api/registrations/"+reg.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCancelAndExportEndpoints(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, &participant, http.MethodPost, "/api/registrations", map[string]interface{}{"event_id": s.event.ID})
	require.Equal(t, http.StatusCreated, rec.Code)
	var reg models.Registration
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &reg))

	rec = s.do(t, &participant, http.MethodPost, "/api/registrations/"+reg.ID+"/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, dbtest.ReloadEvent(t, s.db, s.event.ID).RegistrationCount)

	rec = s.do(t, &organizer, http.MethodGet, "/api/events/"+s.event.ID+"/registrations.csv", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "registrations-"+s.event.ID+".csv")

	records, err := csv.NewReader(rec.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "User p1", records[1][0])
	assert.Equal(t, "CANCELLED", records[1][3])
	assert.Equal(t, "No", records[1][4])

	rec = s.do(t, &participant, http.MethodGet, "/api/events/"+s.event.ID+"/registrations", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestMerchandiseReviewEndpoints(t *testing.T) {
	s := newTestServer(t)
	org := dbtest.SeedOrganizer(t, s.db, "merch-org", true)
	ev, item := dbtest.SeedMerchEvent(t, s.db, org.ID, 3, 5)
	merchOrganizer := auth.Identity{UserID: "merch-org", Role: auth.RoleOrganizer}

	rec := s.do(t, &participant, http.MethodPost, "/api/registrations/merchandise", map[string]interface{}{
		"event_id": ev.ID,
		"items":    []map[string]interface{}{{"item_id": item.ID, "quantity": 2, "size": "M"}},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var order registrations.Order
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &order))
	require.Len(t, order.Registrations, 1)
	id := order.Registrations[0].ID

	rec = s.do(t, &participant, http.MethodPost, "/api/registrations/"+id+"/payment-proof", map[string]string{"payment_proof_ref": "proofs/1.jpg"})
	require.Equal(t, http.StatusOK, rec.Code)

	// Test case 1: the participant cannot approve their own order
	rec = s.do(t, &participant, http.MethodPost, "/api/registrations/"+id+"/approve", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Test case 2: approve without a body
	rec = s.do(t, &merchOrganizer, http.MethodPost, "/api/registrations/"+id+"/approve", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, dbtest.ReloadItem(t, s.db, item.ID).Stock)

	// Test case 3: approved orders cannot be rejected
	rec = s.do(t, &merchOrganizer, http.MethodPost, "/api/registrations/"+id+"/reject", map[string]string{"note": "blurry"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}
