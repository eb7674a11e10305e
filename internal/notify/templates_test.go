package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clubcheckin/internal/model"
)

var testEvent = model.Event{
	ID:       "E1",
	ClubName: "Robotics Club",
	Title:    "Line Follower Workshop",
	Venue:    "Lab 204",
	StartsAt: time.Date(2026, 11, 2, 10, 0, 0, 0, time.UTC),
}

type fakeRenderer struct {
	err  error
	seen []CertificateData
}

func (f *fakeRenderer) RenderCertificate(_ context.Context, d CertificateData) ([]byte, error) {
	f.seen = append(f.seen, d)
	if f.err != nil {
		return nil, f.err
	}
	return []byte("%PDF-" + d.RollNumber), nil
}

func TestNewEventTemplate(t *testing.T) {
	msg, err := NewEventTemplate{Event: testEvent}.Build(context.Background(), model.Recipient{Name: "Ravi"})
	require.NoError(t, err)
	assert.Equal(t, "New event: Line Follower Workshop", msg.Subject)
	assert.Contains(t, msg.Body, "Hi Ravi,")
	assert.Contains(t, msg.Body, "Robotics Club has announced")
	assert.Contains(t, msg.Body, "Where: Lab 204")
	assert.Nil(t, msg.Attachment)
}

func TestEventUpdateTemplate(t *testing.T) {
	ev := testEvent
	ev.Venue = ""
	msg, err := EventUpdateTemplate{Event: ev, Note: "Moved to 11:00."}.Build(context.Background(), model.Recipient{})
	require.NoError(t, err)
	assert.Equal(t, "Update: Line Follower Workshop", msg.Subject)
	assert.Contains(t, msg.Body, "Hi there,")
	assert.Contains(t, msg.Body, "Moved to 11:00.")
	assert.NotContains(t, msg.Body, "Where:")
}

func TestCertificateReadyTemplate(t *testing.T) {
	r := &fakeRenderer{}
	tmpl := CertificateReadyTemplate{Event: testEvent, Title: "Certificate of Participation", Renderer: r}

	msg, err := tmpl.Build(context.Background(), model.Recipient{Name: "Asha", Address: "a@x.edu", RollNumber: "21BD1A001"})
	require.NoError(t, err)
	require.NotNil(t, msg.Attachment)
	assert.Equal(t, "certificate-21BD1A001.pdf", msg.Attachment.Filename)
	assert.Equal(t, []byte("%PDF-21BD1A001"), msg.Attachment.Data)
	require.Len(t, r.seen, 1)
	assert.Equal(t, "Asha", r.seen[0].StudentName)
	assert.Equal(t, "Line Follower Workshop", r.seen[0].EventTitle)
}

func TestCertificateReadyTemplateRenderFailure(t *testing.T) {
	tmpl := CertificateReadyTemplate{Event: testEvent, Title: "t", Renderer: &fakeRenderer{err: errors.New("renderer 500")}}
	_, err := tmpl.Build(context.Background(), model.Recipient{RollNumber: "X"})
	assert.ErrorContains(t, err, "renderer 500")
}

func TestInMemoryReportStore(t *testing.T) {
	s := NewInMemoryReportStore()
	ctx := context.Background()

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrReportNotFound)
	assert.Error(t, s.Save(ctx, Report{}))

	require.NoError(t, s.Save(ctx, Report{JobID: "j1", Summary: Summary{Total: 2, Sent: 2}}))
	got, err := s.Get(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Summary.Sent)
}
