package mail

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSES struct {
	input *sesv2.SendEmailInput
	err   error
}

func (f *fakeSES) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func TestSESSender(t *testing.T) {
	logger, _ := test.NewNullLogger()
	client := &fakeSES{}
	s := NewSESSender(client, "noreply@example.com", "https://auth.example.com", logger)

	err := s.SendVerification(context.Background(), VerificationEmail{Email: "jane@example.com", Name: "Jane", Token: "abc"})
	require.NoError(t, err)

	in := client.input
	require.NotNil(t, in)
	assert.Equal(t, "noreply@example.com", aws.ToString(in.FromEmailAddress))
	assert.Equal(t, []string{"jane@example.com"}, in.Destination.ToAddresses)

	simple := in.Content.Simple
	require.NotNil(t, simple)
	assert.Equal(t, "Verify your email address", aws.ToString(simple.Subject.Data))
	assert.Contains(t, aws.ToString(simple.Body.Html.Data), "https://auth.example.com/verify-email?token=abc")
	assert.Contains(t, aws.ToString(simple.Body.Text.Data), "https://auth.example.com/verify-email?token=abc")
	assert.Equal(t, "UTF-8", aws.ToString(simple.Body.Text.Charset))
}

func TestSESSenderFailure(t *testing.T) {
	logger, _ := test.NewNullLogger()
	s := NewSESSender(&fakeSES{err: errors.New("MessageRejected")}, "noreply@example.com", "http://localhost:3000", logger)

	err := s.SendVerification(context.Background(), VerificationEmail{Email: "jane@example.com", Token: "abc"})
	assert.ErrorContains(t, err, "MessageRejected")
}
