package mail

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/sirupsen/logrus"
)

// SESAPI is the part of the SES v2 client the sender needs.
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESSender delivers verification emails through Amazon SES.
type SESSender struct {
	client  SESAPI
	from    string
	baseURL string
	logger  logrus.FieldLogger
}

func NewSESSender(client SESAPI, from, baseURL string, logger logrus.FieldLogger) *SESSender {
	return &SESSender{
		client:  client,
		from:    from,
		baseURL: baseURL,
		logger:  logger,
	}
}

func (s *SESSender) SendVerification(ctx context.Context, msg VerificationEmail) error {
	rendered, err := RenderVerification(s.from, s.baseURL, msg)
	if err != nil {
		return err
	}

	out, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(rendered.From),
		Destination:      &types.Destination{ToAddresses: []string{rendered.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: utf8Content(rendered.Subject),
				Body: &types.Body{
					Html: utf8Content(rendered.HTML),
					Text: utf8Content(rendered.Text),
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("ses send email: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"to":         msg.Email,
		"message_id": aws.ToString(out.MessageId),
		"token":      truncate(msg.Token, 8),
	}).Debug("verification email accepted by ses")
	return nil
}

func utf8Content(data string) *types.Content {
	return &types.Content{Data: aws.String(data), Charset: aws.String("UTF-8")}
}
