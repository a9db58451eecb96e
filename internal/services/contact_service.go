package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"

	"github.com/maplecart/api/internal/domain"
	"github.com/maplecart/api/internal/repositories"
)

const (
	contactIDPrefix  = "msg_"
	maxContactLength = 4000
)

var (
	// ErrContactInvalidInput indicates the caller supplied invalid input parameters.
	ErrContactInvalidInput = errors.New("contact: invalid input")
	// ErrContactUnavailable indicates contact dependencies are currently unavailable.
	ErrContactUnavailable = errors.New("contact: unavailable")
)

// ContactServiceDeps wires the dependencies required by the contact service.
// Emails and NotifyAddress are optional; without both, submissions skip the
// owner notification email.
type ContactServiceDeps struct {
	Messages      repositories.ContactRepository
	Emails        emailQueuer
	NotifyAddress string
	Clock         func() time.Time
	IDGenerator   func() string
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

type contactService struct {
	messages repositories.ContactRepository
	emails   emailQueuer
	notifyTo string
	policy   *bluemonday.Policy
	now      func() time.Time
	newID    func() string
	logger   func(ctx context.Context, event string, fields map[string]any)
}

// NewContactService constructs a ContactService validating required dependencies.
func NewContactService(deps ContactServiceDeps) (ContactService, error) {
	if deps.Messages == nil {
		return nil, errors.New("contact service: contact repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &contactService{
		messages: deps.Messages,
		emails:   deps.Emails,
		notifyTo: strings.TrimSpace(deps.NotifyAddress),
		policy:   bluemonday.StrictPolicy(),
		now:      func() time.Time { return clock().UTC() },
		newID:    idGen,
		logger:   logger,
	}, nil
}

// Submit records a contact-form message. All fields are stripped of markup
// before persisting; submissions are stored as plain text only.
func (s *contactService) Submit(ctx context.Context, cmd ContactCommand) (ContactMessage, error) {
	name := s.sanitize(cmd.Name)
	email := strings.ToLower(s.sanitize(cmd.Email))
	body := s.sanitize(cmd.Message)

	if name == "" {
		return ContactMessage{}, fmt.Errorf("%w: name is required", ErrContactInvalidInput)
	}
	if email == "" || !strings.Contains(email, "@") {
		return ContactMessage{}, fmt.Errorf("%w: a valid email is required", ErrContactInvalidInput)
	}
	if body == "" {
		return ContactMessage{}, fmt.Errorf("%w: message is required", ErrContactInvalidInput)
	}
	if len(body) > maxContactLength {
		return ContactMessage{}, fmt.Errorf("%w: message exceeds %d characters", ErrContactInvalidInput, maxContactLength)
	}

	message := domain.ContactMessage{
		ID:        contactIDPrefix + s.newID(),
		Name:      name,
		Email:     email,
		Message:   body,
		CreatedAt: s.now(),
	}
	if err := s.messages.Insert(ctx, message); err != nil {
		return ContactMessage{}, fmt.Errorf("%w: %v", ErrContactUnavailable, err)
	}
	s.logger(ctx, "contact.submitted", map[string]any{"messageID": message.ID})
	s.queueNotification(ctx, message)
	return message, nil
}

func (s *contactService) queueNotification(ctx context.Context, message domain.ContactMessage) {
	if s.emails == nil || s.notifyTo == "" {
		return
	}
	body := fmt.Sprintf("From: %s <%s>\n\n%s", message.Name, message.Email, message.Message)
	_, err := s.emails.QueueEmail(ctx, QueueEmailCommand{
		To:      s.notifyTo,
		Subject: fmt.Sprintf("New contact message from %s", message.Name),
		Body:    body,
	})
	if err != nil {
		s.logger(ctx, "contact.notification_failed", map[string]any{
			"messageID": message.ID,
			"error":     err.Error(),
		})
	}
}

func (s *contactService) sanitize(value string) string {
	return strings.TrimSpace(s.policy.Sanitize(value))
}
