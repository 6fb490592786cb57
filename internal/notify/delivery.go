package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/smtp"
	"time"

	"ms-fest/internal/config"
	"ms-fest/internal/logger"
	"ms-fest/internal/models"
)

type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

type SMTPMailer struct {
	cfg config.EmailConfig
}

func NewSMTPMailer(cfg config.EmailConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

func (m *SMTPMailer) Send(_ context.Context, to, subject, body string) error {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s",
		m.cfg.From, to, subject, body)

	var auth smtp.Auth
	if m.cfg.SMTPUsername != "" {
		auth = smtp.PlainAuth("", m.cfg.SMTPUsername, m.cfg.SMTPPassword, m.cfg.SMTPHost)
	}
	addr := m.cfg.SMTPHost + ":" + m.cfg.SMTPPort
	if err := smtp.SendMail(addr, auth, m.cfg.From, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}

// Dispatcher delivers envelopes consumed from the bus: registration kinds by
// email to the participant, EVENT_PUBLISHED as a Discord embed to the
// organizer's webhook.
type Dispatcher struct {
	Mailer Mailer
	Client *http.Client
	Logger *logger.Logger
}

func NewDispatcher(mailer Mailer, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		Mailer: mailer,
		Client: &http.Client{Timeout: 10 * time.Second},
		Logger: log,
	}
}

func (d *Dispatcher) Handle(ctx context.Context, raw []byte) error {
	var env models.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}

	if env.Kind == models.NotifyEventPublished {
		var notice models.EventPublishedNotice
		if err := json.Unmarshal(env.Payload, &notice); err != nil {
			return fmt.Errorf("decode %s payload: %w", env.Kind, err)
		}
		return d.postWebhook(ctx, notice)
	}

	var notice models.RegistrationNotice
	if err := json.Unmarshal(env.Payload, &notice); err != nil {
		return fmt.Errorf("decode %s payload: %w", env.Kind, err)
	}
	if notice.ParticipantEmail == "" {
		d.Logger.Warn("NOTIFY", fmt.Sprintf("No email on file for %s, skipping %s", notice.ParticipantID, env.Kind))
		return nil
	}
	subject, body := RenderEmail(env.Kind, notice)
	if err := d.Mailer.Send(ctx, notice.ParticipantEmail, subject, body); err != nil {
		return err
	}
	d.Logger.Info("NOTIFY", fmt.Sprintf("Sent %s email for registration %s", env.Kind, notice.RegistrationID))
	return nil
}

func RenderEmail(kind models.NotificationKind, n models.RegistrationNotice) (subject, body string) {
	greeting := "Hello"
	if n.ParticipantName != "" {
		greeting = "Hello " + n.ParticipantName
	}
	when := n.StartDate.Format("Mon, 02 Jan 2006 15:04 MST")

	switch kind {
	case models.NotifyTicketIssued:
		subject = fmt.Sprintf("Your ticket for %s", n.EventName)
		body = fmt.Sprintf("%s,\n\nYou are registered for %s on %s.\nTicket ID: %s\n\nShow the QR code from your dashboard at the venue.",
			greeting, n.EventName, when, n.TicketID)
	case models.NotifyPaymentApproved:
		subject = fmt.Sprintf("Order approved: %s", n.EventName)
		body = fmt.Sprintf("%s,\n\nYour payment for %d x %s (%.2f) was approved.\nTicket ID: %s",
			greeting, n.Quantity, n.ItemName, n.Amount, n.TicketID)
	case models.NotifyPaymentRejected:
		subject = fmt.Sprintf("Payment proof rejected: %s", n.EventName)
		body = fmt.Sprintf("%s,\n\nYour payment proof for %s was rejected.\nReason: %s\n\nYou can upload a new proof from your dashboard.",
			greeting, n.ItemName, n.Note)
	case models.NotifyRegistrationCancelled:
		subject = fmt.Sprintf("Registration cancelled: %s", n.EventName)
		body = fmt.Sprintf("%s,\n\nYour registration for %s has been cancelled.", greeting, n.EventName)
	default:
		subject = fmt.Sprintf("Update for %s", n.EventName)
		body = fmt.Sprintf("%s,\n\nThere is an update on your registration for %s.", greeting, n.EventName)
	}
	return subject, body
}

type discordEmbed struct {
	Title       string              `json:"title"`
	Description string              `json:"description,omitempty"`
	Color       int                 `json:"color"`
	Fields      []discordEmbedField `json:"fields"`
	Timestamp   string              `json:"timestamp"`
}

type discordEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

func (d *Dispatcher) postWebhook(ctx context.Context, n models.EventPublishedNotice) error {
	if n.WebhookURL == "" {
		d.Logger.Debug("NOTIFY", fmt.Sprintf("Organizer of %s has no webhook, skipping", n.EventID))
		return nil
	}

	venue := n.Venue
	if n.IsOnline {
		venue = "Online"
	}
	fee := "Free"
	if n.RegistrationFee > 0 {
		fee = fmt.Sprintf("%.2f", n.RegistrationFee)
	}
	payload := map[string]interface{}{
		"embeds": []discordEmbed{{
			Title:       "New event: " + n.Name,
			Description: n.Description,
			Color:       0x5865F2,
			Fields: []discordEmbedField{
				{Name: "Type", Value: string(n.Type), Inline: true},
				{Name: "Eligibility", Value: orDash(n.Eligibility), Inline: true},
				{Name: "Fee", Value: fee, Inline: true},
				{Name: "Starts", Value: n.StartDate.Format(time.RFC1123), Inline: false},
				{Name: "Register by", Value: n.RegistrationDeadline.Format(time.RFC1123), Inline: false},
				{Name: "Venue", Value: orDash(venue), Inline: true},
				{Name: "Organizer", Value: orDash(n.OrganizerName), Inline: true},
			},
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.Client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %s", resp.Status)
	}
	d.Logger.Info("NOTIFY", fmt.Sprintf("Posted event %s to organizer webhook", n.EventID))
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
