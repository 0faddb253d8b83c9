// Package mail delivers verification emails.
package mail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"net/url"
	"strings"
	texttemplate "text/template"
)

const (
	verificationSubject = "Verify your email address"
	defaultBaseURL      = "http://localhost:3000"
)

// ErrNotConfigured is returned by the sender used when no provider is set up.
var ErrNotConfigured = errors.New("email delivery is not configured")

// VerificationEmail is the input for a verification message.
type VerificationEmail struct {
	Email string
	Name  string
	Token string
}

// Sender delivers verification emails.
type Sender interface {
	SendVerification(ctx context.Context, msg VerificationEmail) error
}

// Message is a rendered email ready for a transport.
type Message struct {
	From    string
	To      string
	Subject string
	HTML    string
	Text    string
}

// BaseURLConfig lists the sources used to build verification links, in priority order.
type BaseURLConfig struct {
	BaseURL     string
	PublicHost  string
	PreviewHost string
}

// ResolveBaseURL picks the first configured source, falling back to localhost.
func ResolveBaseURL(cfg BaseURLConfig) string {
	if v := strings.TrimSpace(cfg.BaseURL); v != "" {
		return strings.TrimRight(v, "/")
	}
	if v := strings.TrimSpace(cfg.PublicHost); v != "" {
		return "https://" + strings.TrimRight(v, "/")
	}
	if v := strings.TrimSpace(cfg.PreviewHost); v != "" {
		return "https://" + strings.TrimRight(v, "/")
	}
	return defaultBaseURL
}

// VerificationURL builds the link a user follows to confirm their address.
func VerificationURL(baseURL, token string) string {
	return strings.TrimRight(baseURL, "/") + "/verify-email?token=" + url.QueryEscape(token)
}

var (
	htmlTemplate = htmltemplate.Must(htmltemplate.New("verification.html").Parse(`<!DOCTYPE html>
<html>
  <head>
    <meta charset="utf-8">
    <title>Verify Your Email</title>
  </head>
  <body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
    <h1>Verify Your Email</h1>
    <p>Hello {{.Name}},</p>
    <p>Thank you for signing up! Please verify your email address by clicking the button below:</p>
    <p><a href="{{.URL}}">Verify Email Address</a></p>
    <p>Or copy and paste this link into your browser:</p>
    <p>{{.URL}}</p>
    <p>This link will expire in 24 hours.</p>
    <p>If you didn't create an account, you can safely ignore this email.</p>
    <p style="color: #999; font-size: 12px;">This is an automated email. Please do not reply.</p>
  </body>
</html>
`))

	textTemplate = texttemplate.Must(texttemplate.New("verification.txt").Parse(`Hello {{.Name}},

Thank you for signing up! Please verify your email address by clicking the link below:

{{.URL}}

This link will expire in 24 hours.

If you didn't create an account, you can safely ignore this email.
`))
)

// RenderVerification renders the verification message for msg.
func RenderVerification(from, baseURL string, msg VerificationEmail) (Message, error) {
	data := struct {
		Name string
		URL  string
	}{
		Name: msg.Name,
		URL:  VerificationURL(baseURL, msg.Token),
	}

	var html, text bytes.Buffer
	if err := htmlTemplate.Execute(&html, data); err != nil {
		return Message{}, fmt.Errorf("render html body: %w", err)
	}
	if err := textTemplate.Execute(&text, data); err != nil {
		return Message{}, fmt.Errorf("render text body: %w", err)
	}

	return Message{
		From:    from,
		To:      msg.Email,
		Subject: verificationSubject,
		HTML:    html.String(),
		Text:    text.String(),
	}, nil
}

// Disabled rejects every message with ErrNotConfigured.
type Disabled struct{}

func (Disabled) SendVerification(context.Context, VerificationEmail) error {
	return ErrNotConfigured
}

// truncate shortens secrets before they reach the logs.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
