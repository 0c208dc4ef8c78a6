package email

import (
	"context"
	"errors"
	"time"
)

// Sender define la interfaz para correos de verificacion y reset.
type Sender interface {
	SendVerification(ctx context.Context, toEmail, link string, expiresAt time.Time) error
	SendPasswordReset(ctx context.Context, toEmail, link string, expiresAt time.Time) error
}

type disabledSender struct {
	reason string
}

func NewDisabledSender(reason string) Sender {
	return &disabledSender{reason: reason}
}

func (s *disabledSender) SendVerification(_ context.Context, _, _ string, _ time.Time) error {
	return s.err()
}

func (s *disabledSender) SendPasswordReset(_ context.Context, _, _ string, _ time.Time) error {
	return s.err()
}

func (s *disabledSender) err() error {
	if s.reason == "" {
		return errors.New("email sender disabled")
	}
	return errors.New(s.reason)
}
