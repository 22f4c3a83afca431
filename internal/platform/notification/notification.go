// Package notification e-mails patients when an appointment is booked or
// attended. Messages are rendered from templates with {{key}} placeholders.
package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	TemplateAppointmentBooked   = "appointment-booked"
	TemplateAppointmentAttended = "appointment-attended"
)

const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

var ErrNoRecipient = errors.New("notification recipient is required")

// Notification is one outbound e-mail and how its delivery went.
type Notification struct {
	ID         string     `json:"id"`
	Recipient  string     `json:"recipient"`
	Subject    string     `json:"subject,omitempty"`
	Body       string     `json:"body"`
	TemplateID string     `json:"template_id,omitempty"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	SentAt     *time.Time `json:"sent_at,omitempty"`
	Error      string     `json:"error,omitempty"`
}

type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// Notifier is what the booking flow depends on.
type Notifier interface {
	SendFromTemplate(ctx context.Context, templateID string, data map[string]string, recipient string) (*Notification, error)
}

// ---------------------------------------------------------------------------
// Templates
// ---------------------------------------------------------------------------

type Template struct {
	ID      string
	Subject string
	Body    string
}

var builtInTemplates = []Template{
	{
		ID:      TemplateAppointmentBooked,
		Subject: "{{brand}}: cita registrada ({{date}} {{time}})",
		Body: "Hola {{patient_name}},\n\n" +
			"Tu cita de {{specialty}} con {{doctor}} quedó registrada para el {{date}} a las {{time}}.\n" +
			"Estado: {{status}}. Método de pago: {{method}}. Referencia: {{reference}}.\n" +
			"Código de cita: {{id}}.\n\nGracias por confiar en Clínica {{brand}}.",
	},
	{
		ID:      TemplateAppointmentAttended,
		Subject: "{{brand}}: cita atendida",
		Body:    "Hola {{patient_name}}, tu cita {{id}} del {{date}} fue marcada como atendida.",
	},
}

// Templates holds the message templates by ID. The zero value is empty;
// NewTemplates preloads the booking messages.
type Templates struct {
	mu   sync.RWMutex
	byID map[string]Template
}

func NewTemplates() *Templates {
	t := &Templates{}
	for _, tpl := range builtInTemplates {
		t.Add(tpl)
	}
	return t
}

// Add registers tpl, replacing any template with the same ID.
func (t *Templates) Add(tpl Template) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.byID == nil {
		t.byID = make(map[string]Template)
	}
	t.byID[tpl.ID] = tpl
}

// Render fills the placeholders of template id from data. Placeholders
// without a value are left in place.
func (t *Templates) Render(id string, data map[string]string) (subject, body string, err error) {
	t.mu.RLock()
	tpl, ok := t.byID[id]
	t.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", id)
	}
	pairs := make([]string, 0, 2*len(data))
	for k, v := range data {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	r := strings.NewReplacer(pairs...)
	return r.Replace(tpl.Subject), r.Replace(tpl.Body), nil
}

// ---------------------------------------------------------------------------
// Mailer
// ---------------------------------------------------------------------------

// Mailer renders templates and hands the result to an EmailSender.
type Mailer struct {
	sender    EmailSender
	templates *Templates
	now       func() time.Time
}

func NewMailer(sender EmailSender, templates *Templates) *Mailer {
	if templates == nil {
		templates = NewTemplates()
	}
	return &Mailer{sender: sender, templates: templates, now: time.Now}
}

// Send delivers n and records the outcome on it. The delivery error is
// returned as well.
func (m *Mailer) Send(ctx context.Context, n *Notification) error {
	if n.Recipient == "" {
		return ErrNoRecipient
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	n.CreatedAt = m.now().UTC()
	if err := m.sender.SendEmail(ctx, n.Recipient, n.Subject, n.Body); err != nil {
		n.Status = StatusFailed
		n.Error = err.Error()
		return err
	}
	sent := m.now().UTC()
	n.Status = StatusSent
	n.SentAt = &sent
	return nil
}

func (m *Mailer) SendFromTemplate(ctx context.Context, templateID string, data map[string]string, recipient string) (*Notification, error) {
	subject, body, err := m.templates.Render(templateID, data)
	if err != nil {
		return nil, err
	}
	n := &Notification{Recipient: recipient, Subject: subject, Body: body, TemplateID: templateID}
	return n, m.Send(ctx, n)
}
