package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/maplecart/api/internal/domain"
	pfirestore "github.com/maplecart/api/internal/platform/firestore"
	"github.com/maplecart/api/internal/repositories"
)

const contactCollection = "contactMessages"

// ContactRepository persists contact-form submissions in Firestore.
type ContactRepository struct {
	base *pfirestore.BaseRepository[contactDocument]
}

// NewContactRepository constructs a Firestore-backed contact repository.
func NewContactRepository(provider *pfirestore.Provider) (*ContactRepository, error) {
	if provider == nil {
		return nil, errors.New("contact repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[contactDocument](provider, contactCollection, nil, nil)
	return &ContactRepository{base: base}, nil
}

// Insert stores the submission.
func (r *ContactRepository) Insert(ctx context.Context, message domain.ContactMessage) error {
	if r == nil || r.base == nil {
		return errors.New("contact repository not initialised")
	}
	if strings.TrimSpace(message.ID) == "" {
		return errors.New("contact repository: message id is required")
	}
	if _, err := r.base.Create(ctx, message.ID, newContactDocument(message)); err != nil {
		return wrapStoreError("contact.insert", err)
	}
	return nil
}

type contactDocument struct {
	Name      string    `firestore:"name"`
	Email     string    `firestore:"email"`
	Message   string    `firestore:"message"`
	CreatedAt time.Time `firestore:"createdAt"`
}

func newContactDocument(message domain.ContactMessage) contactDocument {
	return contactDocument{
		Name:      strings.TrimSpace(message.Name),
		Email:     normaliseEmail(message.Email),
		Message:   strings.TrimSpace(message.Message),
		CreatedAt: message.CreatedAt.UTC(),
	}
}

var _ repositories.ContactRepository = (*ContactRepository)(nil)
