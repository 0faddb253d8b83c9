package mail

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogSender writes the verification link to the log instead of sending
// mail. Intended for local development.
type LogSender struct {
	baseURL string
	logger  logrus.FieldLogger
}

func NewLogSender(baseURL string, logger logrus.FieldLogger) *LogSender {
	return &LogSender{baseURL: baseURL, logger: logger}
}

func (s *LogSender) SendVerification(_ context.Context, msg VerificationEmail) error {
	s.logger.WithFields(logrus.Fields{
		"to":  msg.Email,
		"url": VerificationURL(s.baseURL, msg.Token),
	}).Info("verification email (log provider)")
	return nil
}
