package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/maplecart/api/internal/domain"
	pfirestore "github.com/maplecart/api/internal/platform/firestore"
	"github.com/maplecart/api/internal/repositories"
)

const emailCollection = "emails"

// EmailRepository persists queued outbound emails in Firestore.
type EmailRepository struct {
	base     *pfirestore.BaseRepository[emailDocument]
	provider *pfirestore.Provider
}

// NewEmailRepository constructs a Firestore-backed email repository.
func NewEmailRepository(provider *pfirestore.Provider) (*EmailRepository, error) {
	if provider == nil {
		return nil, errors.New("email repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[emailDocument](provider, emailCollection, nil, nil)
	return &EmailRepository{base: base, provider: provider}, nil
}

// Insert creates the email document.
func (r *EmailRepository) Insert(ctx context.Context, email domain.Email) error {
	if r == nil || r.base == nil {
		return errors.New("email repository not initialised")
	}
	if strings.TrimSpace(email.ID) == "" {
		return errors.New("email repository: email id is required")
	}
	if _, err := r.base.Create(ctx, email.ID, newEmailDocument(email)); err != nil {
		return wrapStoreError("emails.insert", err)
	}
	return nil
}

// UpdateStatus transitions the email to the given delivery status.
func (r *EmailRepository) UpdateStatus(ctx context.Context, emailID string, emailStatus domain.EmailStatus, updatedAt time.Time) (domain.Email, error) {
	if r == nil || r.provider == nil {
		return domain.Email{}, errors.New("email repository not initialised")
	}
	emailID = strings.TrimSpace(emailID)
	if emailID == "" {
		return domain.Email{}, errors.New("email repository: email id is required")
	}
	if !emailStatus.Valid() {
		return domain.Email{}, fmt.Errorf("email repository: unknown status %q", emailStatus)
	}

	stamp := updatedAt.UTC()
	var updated domain.Email
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, emailID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return notFoundError("emails.updateStatus", fmt.Sprintf("email %s not found", emailID), err)
			}
			return err
		}
		var doc emailDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode email %s: %w", emailID, err)
		}
		doc.Status = string(emailStatus)
		doc.UpdatedAt = stamp
		if err := tx.Set(ref, doc); err != nil {
			return err
		}
		updated = doc.toDomain(emailID)
		return nil
	})
	if err != nil {
		return domain.Email{}, wrapStoreError("emails.updateStatus", err)
	}
	return updated, nil
}

// FindByID loads an email.
func (r *EmailRepository) FindByID(ctx context.Context, emailID string) (domain.Email, error) {
	if r == nil || r.base == nil {
		return domain.Email{}, errors.New("email repository not initialised")
	}
	emailID = strings.TrimSpace(emailID)
	if emailID == "" {
		return domain.Email{}, errors.New("email repository: email id is required")
	}
	doc, err := r.base.Get(ctx, emailID)
	if err != nil {
		return domain.Email{}, wrapStoreError("emails.findByID", err)
	}
	return doc.Data.toDomain(doc.ID), nil
}

// List returns emails matching the filter.
func (r *EmailRepository) List(ctx context.Context, filter repositories.EmailListFilter) ([]domain.Email, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("email repository not initialised")
	}
	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		if filter.Status != "" {
			query = query.Where("status", "==", string(filter.Status))
		}
		return query
	})
	if err != nil {
		return nil, wrapStoreError("emails.list", err)
	}
	emails := make([]domain.Email, 0, len(docs))
	for _, doc := range docs {
		emails = append(emails, doc.Data.toDomain(doc.ID))
	}
	return emails, nil
}

type emailDocument struct {
	To        string    `firestore:"to"`
	Subject   string    `firestore:"subject"`
	Body      string    `firestore:"body"`
	Status    string    `firestore:"status"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

func newEmailDocument(email domain.Email) emailDocument {
	return emailDocument{
		To:        strings.TrimSpace(email.To),
		Subject:   strings.TrimSpace(email.Subject),
		Body:      email.Body,
		Status:    string(email.Status),
		CreatedAt: email.CreatedAt.UTC(),
		UpdatedAt: email.UpdatedAt.UTC(),
	}
}

func (d emailDocument) toDomain(id string) domain.Email {
	return domain.Email{
		ID:        id,
		To:        d.To,
		Subject:   d.Subject,
		Body:      d.Body,
		Status:    domain.EmailStatus(d.Status),
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

var _ repositories.EmailRepository = (*EmailRepository)(nil)
