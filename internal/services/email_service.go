package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/maplecart/api/internal/domain"
	"github.com/maplecart/api/internal/repositories"
)

const (
	emailIDPrefix = "eml_"
	jobIDPrefix   = "job_"
)

var (
	// ErrEmailInvalidInput indicates the caller supplied invalid input parameters.
	ErrEmailInvalidInput = errors.New("email: invalid input")
	// ErrEmailNotFound indicates the requested email does not exist.
	ErrEmailNotFound = errors.New("email: not found")
	// ErrEmailUnavailable indicates email dependencies are currently unavailable.
	ErrEmailUnavailable = errors.New("email: unavailable")
)

// EmailServiceDeps wires the dependencies required by the email service.
type EmailServiceDeps struct {
	Emails      repositories.EmailRepository
	Jobs        EmailJobPublisher
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type emailService struct {
	emails repositories.EmailRepository
	jobs   EmailJobPublisher
	now    func() time.Time
	newID  func() string
	logger func(ctx context.Context, event string, fields map[string]any)
}

// NewEmailService constructs an EmailService validating required dependencies.
func NewEmailService(deps EmailServiceDeps) (EmailService, error) {
	if deps.Emails == nil {
		return nil, errors.New("email service: email repository is required")
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
	return &emailService{
		emails: deps.Emails,
		jobs:   deps.Jobs,
		now:    func() time.Time { return clock().UTC() },
		newID:  idGen,
		logger: logger,
	}, nil
}

// QueueEmail persists the email as pending and hands it to the delivery queue.
// A publish failure leaves the email pending for a later dispatch run.
func (s *emailService) QueueEmail(ctx context.Context, cmd QueueEmailCommand) (Email, error) {
	to := strings.TrimSpace(cmd.To)
	subject := strings.TrimSpace(cmd.Subject)
	if to == "" || !strings.Contains(to, "@") {
		return Email{}, fmt.Errorf("%w: a valid recipient is required", ErrEmailInvalidInput)
	}
	if subject == "" {
		return Email{}, fmt.Errorf("%w: subject is required", ErrEmailInvalidInput)
	}

	now := s.now()
	email := domain.Email{
		ID:        emailIDPrefix + s.newID(),
		To:        to,
		Subject:   subject,
		Body:      cmd.Body,
		Status:    domain.EmailStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.emails.Insert(ctx, email); err != nil {
		return Email{}, s.translateEmailError(err)
	}

	if queued, err := s.publishJob(ctx, email); err != nil {
		s.logger(ctx, "email.publish_failed", map[string]any{
			"emailID": email.ID,
			"error":   err.Error(),
		})
	} else {
		email = queued
	}
	return email, nil
}

func (s *emailService) GetEmail(ctx context.Context, emailID string) (Email, error) {
	emailID = strings.TrimSpace(emailID)
	if emailID == "" {
		return Email{}, fmt.Errorf("%w: email id is required", ErrEmailInvalidInput)
	}
	email, err := s.emails.FindByID(ctx, emailID)
	if err != nil {
		return Email{}, s.translateEmailError(err)
	}
	return email, nil
}

func (s *emailService) ListEmails(ctx context.Context, query EmailQuery) ([]Email, error) {
	if query.Status != "" && !query.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrEmailInvalidInput, query.Status)
	}
	emails, err := s.emails.List(ctx, repositories.EmailListFilter{Status: query.Status})
	if err != nil {
		return nil, s.translateEmailError(err)
	}
	return emails, nil
}

// UpdateStatus moves an email to the given delivery state. Delivery workers
// report back through this operation.
func (s *emailService) UpdateStatus(ctx context.Context, emailID string, status EmailStatus) (Email, error) {
	emailID = strings.TrimSpace(emailID)
	if emailID == "" {
		return Email{}, fmt.Errorf("%w: email id is required", ErrEmailInvalidInput)
	}
	if !status.Valid() {
		return Email{}, fmt.Errorf("%w: unknown status %q", ErrEmailInvalidInput, status)
	}
	email, err := s.emails.UpdateStatus(ctx, emailID, status, s.now())
	if err != nil {
		return Email{}, s.translateEmailError(err)
	}
	return email, nil
}

// DispatchPending republishes every pending email. Each failure is counted and
// logged; the run continues through the rest of the backlog.
func (s *emailService) DispatchPending(ctx context.Context) (DispatchReport, error) {
	pending, err := s.emails.List(ctx, repositories.EmailListFilter{Status: domain.EmailStatusPending})
	if err != nil {
		return DispatchReport{}, s.translateEmailError(err)
	}

	var report DispatchReport
	for _, email := range pending {
		if _, err := s.publishJob(ctx, email); err != nil {
			report.Failed++
			s.logger(ctx, "email.dispatch_failed", map[string]any{
				"emailID": email.ID,
				"error":   err.Error(),
			})
			continue
		}
		report.Dispatched++
	}
	return report, nil
}

func (s *emailService) publishJob(ctx context.Context, email domain.Email) (Email, error) {
	if s.jobs == nil {
		return Email{}, errors.New("email job publisher is not configured")
	}
	message := EmailJobMessage{
		JobID:      jobIDPrefix + s.newID(),
		EmailID:    email.ID,
		To:         email.To,
		Subject:    email.Subject,
		EnqueuedAt: s.now(),
	}
	if _, err := s.jobs.PublishEmailJob(ctx, message); err != nil {
		return Email{}, err
	}
	updated, err := s.emails.UpdateStatus(ctx, email.ID, domain.EmailStatusQueued, s.now())
	if err != nil {
		return Email{}, err
	}
	return updated, nil
}

func (s *emailService) translateEmailError(err error) error {
	var storeErr *repositories.StoreError
	if errors.As(err, &storeErr) {
		switch {
		case storeErr.IsNotFound():
			return fmt.Errorf("%w: %s", ErrEmailNotFound, storeErr.Message)
		case storeErr.IsUnavailable():
			return fmt.Errorf("%w: %s", ErrEmailUnavailable, storeErr.Message)
		}
	}
	return fmt.Errorf("%w: %v", ErrEmailUnavailable, err)
}
