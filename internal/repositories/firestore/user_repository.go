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

const userCollection = "users"

// UserRepository persists user accounts in Firestore, enforcing email
// uniqueness transactionally.
type UserRepository struct {
	base     *pfirestore.BaseRepository[userDocument]
	provider *pfirestore.Provider
}

// NewUserRepository constructs a Firestore-backed user repository.
func NewUserRepository(provider *pfirestore.Provider) (*UserRepository, error) {
	if provider == nil {
		return nil, errors.New("user repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[userDocument](provider, userCollection, nil, nil)
	return &UserRepository{base: base, provider: provider}, nil
}

// Insert creates the user after checking no live account already uses the
// email. The uniqueness check and the write share one transaction.
func (r *UserRepository) Insert(ctx context.Context, user domain.User) error {
	if r == nil || r.provider == nil {
		return errors.New("user repository not initialised")
	}
	userID := strings.TrimSpace(user.ID)
	if userID == "" {
		return errors.New("user repository: user id is required")
	}
	email := normaliseEmail(user.Email)
	if email == "" {
		return errors.New("user repository: email is required")
	}

	doc := newUserDocument(user)
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		client, err := r.provider.Client(ctx)
		if err != nil {
			return err
		}
		query := client.Collection(userCollection).Where("email", "==", email)
		snaps, err := tx.Documents(query).GetAll()
		if err != nil {
			return err
		}
		for _, snap := range snaps {
			var existing userDocument
			if err := snap.DataTo(&existing); err != nil {
				return fmt.Errorf("decode user %s: %w", snap.Ref.ID, err)
			}
			if existing.DeletedAt == nil {
				return conflictError("users.insert", fmt.Sprintf("email %s is already registered", email), nil)
			}
		}
		ref, err := r.base.DocumentRef(ctx, userID)
		if err != nil {
			return err
		}
		if err := tx.Create(ref, doc); err != nil {
			if status.Code(err) == codes.AlreadyExists {
				return conflictError("users.insert", fmt.Sprintf("user %s already exists", userID), err)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return wrapStoreError("users.insert", err)
	}
	return nil
}

// Update replaces the user document. Changing the email re-checks uniqueness
// against other live accounts within the transaction.
func (r *UserRepository) Update(ctx context.Context, user domain.User) error {
	if r == nil || r.provider == nil {
		return errors.New("user repository not initialised")
	}
	userID := strings.TrimSpace(user.ID)
	if userID == "" {
		return errors.New("user repository: user id is required")
	}
	email := normaliseEmail(user.Email)
	if email == "" {
		return errors.New("user repository: email is required")
	}

	doc := newUserDocument(user)
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, userID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return notFoundError("users.update", fmt.Sprintf("user %s not found", userID), err)
			}
			return err
		}
		var existing userDocument
		if err := snap.DataTo(&existing); err != nil {
			return fmt.Errorf("decode user %s: %w", userID, err)
		}
		if existing.DeletedAt != nil {
			return notFoundError("users.update", fmt.Sprintf("user %s not found", userID), nil)
		}

		if existing.Email != email {
			client, err := r.provider.Client(ctx)
			if err != nil {
				return err
			}
			query := client.Collection(userCollection).Where("email", "==", email)
			snaps, err := tx.Documents(query).GetAll()
			if err != nil {
				return err
			}
			for _, other := range snaps {
				if other.Ref.ID == userID {
					continue
				}
				var otherDoc userDocument
				if err := other.DataTo(&otherDoc); err != nil {
					return fmt.Errorf("decode user %s: %w", other.Ref.ID, err)
				}
				if otherDoc.DeletedAt == nil {
					return conflictError("users.update", fmt.Sprintf("email %s is already registered", email), nil)
				}
			}
		}

		doc.CreatedAt = existing.CreatedAt
		if doc.PasswordHash == "" {
			doc.PasswordHash = existing.PasswordHash
		}
		return tx.Set(ref, doc)
	})
	if err != nil {
		return wrapStoreError("users.update", err)
	}
	return nil
}

// SoftDelete marks the user deleted, freeing the email for reuse.
func (r *UserRepository) SoftDelete(ctx context.Context, userID string, deletedAt time.Time) error {
	if r == nil || r.provider == nil {
		return errors.New("user repository not initialised")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return errors.New("user repository: user id is required")
	}
	stamp := deletedAt.UTC()
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, userID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return notFoundError("users.softDelete", fmt.Sprintf("user %s not found", userID), err)
			}
			return err
		}
		var existing userDocument
		if err := snap.DataTo(&existing); err != nil {
			return fmt.Errorf("decode user %s: %w", userID, err)
		}
		if existing.DeletedAt != nil {
			return notFoundError("users.softDelete", fmt.Sprintf("user %s not found", userID), nil)
		}
		return tx.Update(ref, []firestore.Update{
			{Path: "deletedAt", Value: stamp},
			{Path: "updatedAt", Value: stamp},
		})
	})
	if err != nil {
		return wrapStoreError("users.softDelete", err)
	}
	return nil
}

// FindByID loads a user. Soft-deleted users are reported as not found.
func (r *UserRepository) FindByID(ctx context.Context, userID string) (domain.User, error) {
	if r == nil || r.base == nil {
		return domain.User{}, errors.New("user repository not initialised")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.User{}, errors.New("user repository: user id is required")
	}
	doc, err := r.base.Get(ctx, userID)
	if err != nil {
		return domain.User{}, wrapStoreError("users.findByID", err)
	}
	user := doc.Data.toDomain(doc.ID)
	if user.Deleted() {
		return domain.User{}, notFoundError("users.findByID", fmt.Sprintf("user %s not found", userID), nil)
	}
	return user, nil
}

// FindByEmail loads the live user registered under the email.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (domain.User, error) {
	if r == nil || r.base == nil {
		return domain.User{}, errors.New("user repository not initialised")
	}
	email = normaliseEmail(email)
	if email == "" {
		return domain.User{}, errors.New("user repository: email is required")
	}
	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		return query.Where("email", "==", email)
	})
	if err != nil {
		return domain.User{}, wrapStoreError("users.findByEmail", err)
	}
	for _, doc := range docs {
		user := doc.Data.toDomain(doc.ID)
		if !user.Deleted() {
			return user, nil
		}
	}
	return domain.User{}, notFoundError("users.findByEmail", fmt.Sprintf("user with email %s not found", email), nil)
}

// List returns users matching the filter.
func (r *UserRepository) List(ctx context.Context, filter repositories.UserListFilter) ([]domain.User, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("user repository not initialised")
	}
	if id := strings.TrimSpace(filter.ID); id != "" {
		doc, err := r.base.Get(ctx, id)
		if err != nil {
			err = wrapStoreError("users.list", err)
			var storeErr *repositories.StoreError
			if errors.As(err, &storeErr) && storeErr.IsNotFound() {
				return []domain.User{}, nil
			}
			return nil, err
		}
		user := doc.Data.toDomain(doc.ID)
		if !userMatchesFilter(user, filter) {
			return []domain.User{}, nil
		}
		return []domain.User{user}, nil
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		if email := normaliseEmail(filter.Email); email != "" {
			query = query.Where("email", "==", email)
		}
		if phone := strings.TrimSpace(filter.Phone); phone != "" {
			query = query.Where("phone", "==", phone)
		}
		return query
	})
	if err != nil {
		return nil, wrapStoreError("users.list", err)
	}
	users := make([]domain.User, 0, len(docs))
	for _, doc := range docs {
		user := doc.Data.toDomain(doc.ID)
		if !userMatchesFilter(user, filter) {
			continue
		}
		users = append(users, user)
	}
	return users, nil
}

func userMatchesFilter(user domain.User, filter repositories.UserListFilter) bool {
	if !includeDeleted(filter.Deleted, user.Deleted()) {
		return false
	}
	if email := normaliseEmail(filter.Email); email != "" && normaliseEmail(user.Email) != email {
		return false
	}
	if phone := strings.TrimSpace(filter.Phone); phone != "" && user.Phone != phone {
		return false
	}
	if filter.Name != "" {
		fullName := strings.TrimSpace(user.FirstName + " " + user.LastName)
		if !matchesName(fullName, filter.Name) {
			return false
		}
	}
	return true
}

func normaliseEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type userDocument struct {
	Email        string            `firestore:"email"`
	PasswordHash string            `firestore:"passwordHash,omitempty"`
	FirstName    string            `firestore:"firstName,omitempty"`
	LastName     string            `firestore:"lastName,omitempty"`
	Phone        string            `firestore:"phone,omitempty"`
	Type         string            `firestore:"type"`
	Addresses    []addressDocument `firestore:"addresses,omitempty"`
	CreatedAt    time.Time         `firestore:"createdAt"`
	UpdatedAt    time.Time         `firestore:"updatedAt"`
	DeletedAt    *time.Time        `firestore:"deletedAt,omitempty"`
}

func newUserDocument(user domain.User) userDocument {
	addresses := make([]addressDocument, len(user.Addresses))
	for i, address := range user.Addresses {
		addresses[i] = addressDocument{
			Street:     strings.TrimSpace(address.Street),
			CityID:     strings.TrimSpace(address.CityID),
			StateID:    strings.TrimSpace(address.StateID),
			PostalCode: strings.TrimSpace(address.PostalCode),
		}
	}
	userType := user.Type
	if userType == "" {
		userType = domain.UserTypeCustomer
	}
	return userDocument{
		Email:        normaliseEmail(user.Email),
		PasswordHash: user.PasswordHash,
		FirstName:    strings.TrimSpace(user.FirstName),
		LastName:     strings.TrimSpace(user.LastName),
		Phone:        strings.TrimSpace(user.Phone),
		Type:         string(userType),
		Addresses:    addresses,
		CreatedAt:    user.CreatedAt.UTC(),
		UpdatedAt:    user.UpdatedAt.UTC(),
		DeletedAt:    user.DeletedAt,
	}
}

func (d userDocument) toDomain(id string) domain.User {
	addresses := make([]domain.Address, len(d.Addresses))
	for i, address := range d.Addresses {
		addresses[i] = domain.Address{
			Street:     address.Street,
			CityID:     address.CityID,
			StateID:    address.StateID,
			PostalCode: address.PostalCode,
		}
	}
	return domain.User{
		ID:           id,
		Email:        d.Email,
		PasswordHash: d.PasswordHash,
		FirstName:    d.FirstName,
		LastName:     d.LastName,
		Phone:        d.Phone,
		Type:         domain.UserType(d.Type),
		Addresses:    addresses,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
		DeletedAt:    d.DeletedAt,
	}
}

var _ repositories.UserRepository = (*UserRepository)(nil)
