package notifxses

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/clavehr/identity/pkg/notifx"
)

// SESProvider implements notifx.EmailSender using AWS SES.
type SESProvider struct {
	client      *ses.Client
	fromAddress string
}

// NewSESProvider creates a new SES email provider.
func NewSESProvider(client *ses.Client, fromAddress string) *SESProvider {
	return &SESProvider{
		client:      client,
		fromAddress: fromAddress,
	}
}

// SendEmail sends a single email via SES.
func (p *SESProvider) SendEmail(ctx context.Context, msg notifx.EmailMessage, opts ...notifx.Option) error {
	from := msg.From
	if from == "" {
		from = p.fromAddress
	}

	body := &types.Body{}
	if msg.TextBody != "" {
		body.Text = &types.Content{
			Data:    aws.String(msg.TextBody),
			Charset: aws.String("UTF-8"),
		}
	}
	if msg.HTMLBody != "" {
		body.Html = &types.Content{
			Data:    aws.String(msg.HTMLBody),
			Charset: aws.String("UTF-8"),
		}
	}

	input := &ses.SendEmailInput{
		Source: aws.String(from),
		Destination: &types.Destination{
			ToAddresses:  msg.To,
			CcAddresses:  msg.CC,
			BccAddresses: msg.BCC,
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String(msg.Subject),
				Charset: aws.String("UTF-8"),
			},
			Body: body,
		},
	}

	if msg.ReplyTo != "" {
		input.ReplyToAddresses = []string{msg.ReplyTo}
	}

	sendOpts := notifx.ApplySendOptions(opts)
	if sendOpts.ConfigID != "" {
		input.ConfigurationSetName = aws.String(sendOpts.ConfigID)
	}
	for name, value := range sendOpts.Tags {
		input.Tags = append(input.Tags, types.MessageTag{
			Name:  aws.String(name),
			Value: aws.String(value),
		})
	}

	_, err := p.client.SendEmail(ctx, input)
	if err != nil {
		return sesErrors.NewWithCause(ErrSendFailed, err).
			WithDetail("to", msg.To).
			WithDetail("subject", msg.Subject)
	}

	return nil
}
