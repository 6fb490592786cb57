package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ms-fest/internal/logger"
	"ms-fest/internal/models"
	"ms-fest/internal/notify"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockMailer is a mock implementation of notify.Mailer
type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) Send(ctx context.Context, to, subject, body string) error {
	args := m.Called(ctx, to, subject, body)
	return args.Error(0)
}

func envelope(t *testing.T, kind models.NotificationKind, payload interface{}) []byte {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	raw, err := json.Marshal(models.Envelope{ID: "msg-1", Kind: kind, AggregateID: "agg-1", Payload: body, CreatedAt: time.Now()})
	require.NoError(t, err)
	return raw
}

func TestDispatcherSendsRegistrationEmail(t *testing.T) {
	mailer := new(MockMailer)
	mailer.On("Send", mock.Anything, "p1@fest.test", "Your ticket for Hack Night", mock.MatchedBy(func(body string) bool {
		return strings.Contains(body, "TKT-42") && strings.HasPrefix(body, "Hello Asha Rao,")
	})).Return(nil).Once()

	d := notify.NewDispatcher(mailer, logger.NewNopLogger())
	err := d.Handle(context.Background(), envelope(t, models.NotifyTicketIssued, models.RegistrationNotice{
		RegistrationID:   "reg-1",
		EventName:        "Hack Night",
		ParticipantName:  "Asha Rao",
		ParticipantEmail: "p1@fest.test",
		TicketID:         "TKT-42",
	}))
	require.NoError(t, err)
	mailer.AssertExpectations(t)
}

func TestDispatcherEdgeCases(t *testing.T) {
	mailer := new(MockMailer)
	d := notify.NewDispatcher(mailer, logger.NewNopLogger())
	ctx := context.Background()

	// Test case 1: no email on file is skipped
	require.NoError(t, d.Handle(ctx, envelope(t, models.NotifyRegistrationCancelled, models.RegistrationNotice{RegistrationID: "reg-1"})))
	mailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	// Test case 2: mailer failures surface
	mailer.On("Send", mock.Anything, "p2@fest.test", mock.Anything, mock.Anything).Return(errors.New("smtp: 421"))
	err := d.Handle(ctx, envelope(t, models.NotifyPaymentRejected, models.RegistrationNotice{ParticipantEmail: "p2@fest.test", Note: "blurry"}))
	assert.Error(t, err)

	// Test case 3: garbage on the topic
	assert.Error(t, d.Handle(ctx, []byte("not json")))

	// Test case 4: event without a webhook
	require.NoError(t, d.Handle(ctx, envelope(t, models.NotifyEventPublished, models.EventPublishedNotice{EventID: "ev-1"})))
}

func TestDispatcherPostsWebhook(t *testing.T) {
	received := make(chan map[string]interface{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]interface{}
		_ = json.Unmarshal(raw, &body)
		received <- body
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := notify.NewDispatcher(new(MockMailer), logger.NewNopLogger())
	err := d.Handle(context.Background(), envelope(t, models.NotifyEventPublished, models.EventPublishedNotice{
		EventID:    "ev-1",
		Name:       "Battle of Bands",
		Type:       models.EventTypeNormal,
		IsOnline:   true,
		WebhookURL: srv.URL,
	}))
	require.NoError(t, err)

	body := <-received
	embeds, ok := body["embeds"].([]interface{})
	require.True(t, ok)
	require.Len(t, embeds, 1)
	embed := embeds[0].(map[string]interface{})
	assert.Equal(t, "New event: Battle of Bands", embed["title"])

	// Test case: a failing webhook is an error
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer failing.Close()
	err = d.Handle(context.Background(), envelope(t, models.NotifyEventPublished, models.EventPublishedNotice{EventID: "ev-1", WebhookURL: failing.URL}))
	assert.Error(t, err)
}

func TestRenderEmail(t *testing.T) {
	n := models.RegistrationNotice{EventName: "Merch Drop", ItemName: "Hoodie", Quantity: 2, Amount: 998, TicketID: "TKT-9"}

	subject, body := notify.RenderEmail(models.NotifyPaymentApproved, n)
	assert.Equal(t, "Order approved: Merch Drop", subject)
	assert.Contains(t, body, "2 x Hoodie (998.00)")
	assert.Contains(t, body, "Hello,")

	n.ParticipantName = "Asha Rao"
	_, body = notify.RenderEmail(models.NotifyRegistrationCancelled, n)
	assert.Contains(t, body, "Hello Asha Rao,")
}
