package delivery

import (
	"context"
	"errors"
	"fmt"

	"fils-quiz-bot/internal/domain"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// sesAPI is the part of the SES client used here.
type sesAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESLeadSink mails the lead summary to the sales inbox through Amazon SES.
type SESLeadSink struct {
	client sesAPI
	from   string
	to     []string
}

// NewSESLeadSink builds an SES client from the default AWS credential chain.
func NewSESLeadSink(ctx context.Context, region, from string, to []string) (*SESLeadSink, error) {
	if from == "" || len(to) == 0 {
		return nil, errors.New("lead email needs a sender and at least one recipient")
	}
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &SESLeadSink{client: ses.NewFromConfig(cfg), from: from, to: to}, nil
}

func (s *SESLeadSink) DeliverLead(ctx context.Context, lead domain.Lead) error {
	subject := fmt.Sprintf("Новая заявка: %s, %s", lead.Result.Title, lead.Phone)
	_, err := s.client.SendEmail(ctx, &ses.SendEmailInput{
		Source:      aws.String(s.from),
		Destination: &types.Destination{ToAddresses: s.to},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject), Charset: aws.String("UTF-8")},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(lead.Summary()), Charset: aws.String("UTF-8")},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("send lead email: %w", err)
	}
	return nil
}
