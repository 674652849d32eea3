package delivery

import (
	"context"
	"errors"
	"testing"

	"fils-quiz-bot/internal/domain"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSink struct {
	calls int
	err   error
}

func (c *countingSink) DeliverLead(context.Context, domain.Lead) error {
	c.calls++
	return c.err
}

func TestLeadFanOutContinuesPastFailures(t *testing.T) {
	broken := &countingSink{err: errors.New("chat not found")}
	ok := &countingSink{}
	fan := NewLeadFanOut(NamedSink{Name: "telegram", Sink: broken}, NamedSink{Name: "feed", Sink: ok})

	err := fan.DeliverLead(context.Background(), domain.Lead{ID: "l1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telegram: chat not found")
	assert.Equal(t, 1, broken.calls)
	assert.Equal(t, 1, ok.calls)
	assert.Equal(t, 2, fan.Len())

	require.NoError(t, NewLeadFanOut(NamedSink{Name: "feed", Sink: ok}).DeliverLead(context.Background(), domain.Lead{}))
}

type fakeSES struct {
	input *ses.SendEmailInput
	err   error
}

func (f *fakeSES) SendEmail(_ context.Context, in *ses.SendEmailInput, _ ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	f.input = in
	return &ses.SendEmailOutput{}, f.err
}

func TestSESLeadSink(t *testing.T) {
	api := &fakeSES{}
	sink := &SESLeadSink{client: api, from: "bot@fils.example", to: []string{"sales@fils.example"}}
	lead := domain.Lead{UserID: 1, Phone: "+7999", Result: domain.CatalogItem{ID: "JUNGLE", Title: "JUNGLE"}}

	require.NoError(t, sink.DeliverLead(context.Background(), lead))
	require.NotNil(t, api.input)
	assert.Equal(t, "bot@fils.example", *api.input.Source)
	assert.Equal(t, []string{"sales@fils.example"}, api.input.Destination.ToAddresses)
	assert.Contains(t, *api.input.Message.Subject.Data, "JUNGLE")
	assert.Contains(t, *api.input.Message.Body.Text.Data, "+7999")

	api.err = errors.New("throttled")
	require.Error(t, sink.DeliverLead(context.Background(), lead))

	_, err := NewSESLeadSink(context.Background(), "eu-west-1", "", nil)
	require.Error(t, err)
}
