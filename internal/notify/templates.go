package notify

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"
	"time"

	"clubcheckin/internal/model"
)

// Template names, also used as metric labels.
const (
	TemplateNewEvent         = "new_event"
	TemplateEventUpdate      = "event_update"
	TemplateCertificateReady = "certificate_ready"
)

var bodies = template.Must(template.New("notify").Funcs(template.FuncMap{
	"when": func(t time.Time) string { return t.Format("Mon, 02 Jan 2006 15:04 MST") },
}).Parse(`
{{define "new_event"}}Hi {{.Name}},

{{.Event.ClubName}} has announced a new event: {{.Event.Title}}.
{{if .Event.Description}}
{{.Event.Description}}
{{end}}
When:  {{when .Event.StartsAt}}
{{- if .Event.Venue}}
Where: {{.Event.Venue}}{{end}}

Register from your dashboard to receive your check-in code.
{{end}}

{{define "event_update"}}Hi {{.Name}},

There is an update to {{.Event.Title}}, which you registered for:

{{.Note}}

When:  {{when .Event.StartsAt}}
{{- if .Event.Venue}}
Where: {{.Event.Venue}}{{end}}
{{end}}

{{define "certificate_ready"}}Hi {{.Name}},

Thank you for attending {{.Event.Title}}. Your certificate "{{.Title}}" is attached.
{{end}}
`))

type bodyData struct {
	Name  string
	Event model.Event
	Note  string
	Title string
}

func render(name string, data bodyData) (string, error) {
	var buf bytes.Buffer
	if err := bodies.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("notify: render %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()) + "\n", nil
}

func greeting(r model.Recipient) string {
	if r.Name != "" {
		return r.Name
	}
	return "there"
}

// NewEventTemplate announces an event to club members and mentors.
type NewEventTemplate struct {
	Event model.Event
}

func (NewEventTemplate) Name() string { return TemplateNewEvent }

func (t NewEventTemplate) Build(_ context.Context, to model.Recipient) (Message, error) {
	body, err := render(TemplateNewEvent, bodyData{Name: greeting(to), Event: t.Event})
	if err != nil {
		return Message{}, err
	}
	return Message{Subject: "New event: " + t.Event.Title, Body: body}, nil
}

// EventUpdateTemplate tells registrants about a change to an event.
type EventUpdateTemplate struct {
	Event model.Event
	Note  string
}

func (EventUpdateTemplate) Name() string { return TemplateEventUpdate }

func (t EventUpdateTemplate) Build(_ context.Context, to model.Recipient) (Message, error) {
	body, err := render(TemplateEventUpdate, bodyData{Name: greeting(to), Event: t.Event, Note: t.Note})
	if err != nil {
		return Message{}, err
	}
	return Message{Subject: "Update: " + t.Event.Title, Body: body}, nil
}

// CertificateData is what the renderer needs to draw one certificate.
type CertificateData struct {
	StudentName string    `json:"student_name"`
	RollNumber  string    `json:"roll_number"`
	EventTitle  string    `json:"event_title"`
	ClubName    string    `json:"club_name,omitempty"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	IssuedAt    time.Time `json:"issued_at"`
}

// Renderer turns certificate data into a document. The format is opaque here.
type Renderer interface {
	RenderCertificate(ctx context.Context, data CertificateData) ([]byte, error)
}

// CertificateReadyTemplate sends each newly certified attendee their certificate.
type CertificateReadyTemplate struct {
	Event       model.Event
	Title       string
	Description string
	IssuedAt    time.Time
	Renderer    Renderer
}

func (CertificateReadyTemplate) Name() string { return TemplateCertificateReady }

func (t CertificateReadyTemplate) Build(ctx context.Context, to model.Recipient) (Message, error) {
	doc, err := t.Renderer.RenderCertificate(ctx, CertificateData{
		StudentName: to.Name,
		RollNumber:  to.RollNumber,
		EventTitle:  t.Event.Title,
		ClubName:    t.Event.ClubName,
		Title:       t.Title,
		Description: t.Description,
		IssuedAt:    t.IssuedAt,
	})
	if err != nil {
		return Message{}, fmt.Errorf("notify: render certificate for %s: %w", to.RollNumber, err)
	}
	body, err := render(TemplateCertificateReady, bodyData{Name: greeting(to), Event: t.Event, Title: t.Title})
	if err != nil {
		return Message{}, err
	}
	return Message{
		Subject: "Your certificate for " + t.Event.Title,
		Body:    body,
		Attachment: &Attachment{
			Filename:    "certificate-" + to.RollNumber + ".pdf",
			ContentType: "application/pdf",
			Data:        doc,
		},
	}, nil
}
