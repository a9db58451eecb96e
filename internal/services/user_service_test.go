package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/maplecart/api/internal/domain"
	"github.com/maplecart/api/internal/repositories"
)

type stubUserRepository struct {
	insertFunc      func(ctx context.Context, user domain.User) error
	updateFunc      func(ctx context.Context, user domain.User) error
	softDeleteFunc  func(ctx context.Context, userID string, deletedAt time.Time) error
	findByIDFunc    func(ctx context.Context, userID string) (domain.User, error)
	findByEmailFunc func(ctx context.Context, email string) (domain.User, error)
	listFunc        func(ctx context.Context, filter repositories.UserListFilter) ([]domain.User, error)
}

func (s *stubUserRepository) Insert(ctx context.Context, user domain.User) error {
	if s.insertFunc != nil {
		return s.insertFunc(ctx, user)
	}
	return nil
}

func (s *stubUserRepository) Update(ctx context.Context, user domain.User) error {
	if s.updateFunc != nil {
		return s.updateFunc(ctx, user)
	}
	return nil
}

func (s *stubUserRepository) SoftDelete(ctx context.Context, userID string, deletedAt time.Time) error {
	if s.softDeleteFunc != nil {
		return s.softDeleteFunc(ctx, userID, deletedAt)
	}
	return nil
}

func (s *stubUserRepository) FindByID(ctx context.Context, userID string) (domain.User, error) {
	if s.findByIDFunc != nil {
		return s.findByIDFunc(ctx, userID)
	}
	return domain.User{}, errors.New("not implemented")
}

func (s *stubUserRepository) FindByEmail(ctx context.Context, email string) (domain.User, error) {
	if s.findByEmailFunc != nil {
		return s.findByEmailFunc(ctx, email)
	}
	return domain.User{}, errors.New("not implemented")
}

func (s *stubUserRepository) List(ctx context.Context, filter repositories.UserListFilter) ([]domain.User, error) {
	if s.listFunc != nil {
		return s.listFunc(ctx, filter)
	}
	return nil, errors.New("not implemented")
}

func TestUserServiceRegisterNormalisesEmail(t *testing.T) {
	now := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	var inserted domain.User

	users := &stubUserRepository{
		insertFunc: func(ctx context.Context, user domain.User) error {
			inserted = user
			return nil
		},
	}
	service, err := NewUserService(UserServiceDeps{
		Users:       users,
		Clock:       func() time.Time { return now },
		IDGenerator: fixedID("ABC123456789"),
	})
	if err != nil {
		t.Fatalf("unexpected error constructing user service: %v", err)
	}

	user, err := service.Register(context.Background(), RegisterUserCommand{
		Email:        "  Jess@Example.COM ",
		PasswordHash: "$2a$10$hash",
		FirstName:    " Jess ",
		LastName:     "Doe",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if user.ID != "usr_ABC123456789" {
		t.Fatalf("unexpected user id %q", user.ID)
	}
	if inserted.Email != "jess@example.com" {
		t.Fatalf("expected lowered email, got %q", inserted.Email)
	}
	if inserted.Type != domain.UserTypeCustomer {
		t.Fatalf("expected customer default, got %q", inserted.Type)
	}
	if !inserted.CreatedAt.Equal(now) {
		t.Fatalf("expected createdAt %v, got %v", now, inserted.CreatedAt)
	}
}

func TestUserServiceRegisterDuplicateEmail(t *testing.T) {
	users := &stubUserRepository{
		insertFunc: func(ctx context.Context, user domain.User) error {
			return repositories.NewStoreError(repositories.ErrorConflict, "email jess@example.com already registered", nil)
		},
	}
	service, err := NewUserService(UserServiceDeps{Users: users})
	if err != nil {
		t.Fatalf("unexpected error constructing user service: %v", err)
	}

	_, err = service.Register(context.Background(), RegisterUserCommand{
		Email:        "jess@example.com",
		PasswordHash: "$2a$10$hash",
		FirstName:    "Jess",
	})
	if !errors.Is(err, ErrUserEmailTaken) {
		t.Fatalf("expected ErrUserEmailTaken, got %v", err)
	}
}

func TestUserServiceRegisterRejectsBadInput(t *testing.T) {
	service, err := NewUserService(UserServiceDeps{Users: &stubUserRepository{}})
	if err != nil {
		t.Fatalf("unexpected error constructing user service: %v", err)
	}

	cases := []RegisterUserCommand{
		{Email: "not-an-email", PasswordHash: "h", FirstName: "A"},
		{Email: "a@b.com", FirstName: "A"},
		{Email: "a@b.com", PasswordHash: "h"},
		{Email: "a@b.com", PasswordHash: "h", FirstName: "A", Type: domain.UserType("alien")},
	}
	for i, cmd := range cases {
		if _, err := service.Register(context.Background(), cmd); !errors.Is(err, ErrUserInvalidInput) {
			t.Fatalf("case %d: expected ErrUserInvalidInput, got %v", i, err)
		}
	}
}

func TestUserServiceUpdateUserKeepsPasswordWhenUnset(t *testing.T) {
	now := time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)
	var updated domain.User

	users := &stubUserRepository{
		findByIDFunc: func(ctx context.Context, userID string) (domain.User, error) {
			return domain.User{
				ID:           userID,
				Email:        "jess@example.com",
				PasswordHash: "$2a$10$original",
				FirstName:    "Jess",
				CreatedAt:    now.Add(-48 * time.Hour),
			}, nil
		},
		updateFunc: func(ctx context.Context, user domain.User) error {
			updated = user
			return nil
		},
	}
	service, err := NewUserService(UserServiceDeps{
		Users: users,
		Clock: func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("unexpected error constructing user service: %v", err)
	}

	user, err := service.UpdateUser(context.Background(), UpdateUserCommand{
		UserID: "usr_1",
		Phone:  strPtr("+15550100"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if user.Phone != "+15550100" {
		t.Fatalf("expected phone updated, got %q", user.Phone)
	}
	if updated.PasswordHash != "$2a$10$original" {
		t.Fatalf("expected password hash preserved, got %q", updated.PasswordHash)
	}
	if !updated.UpdatedAt.Equal(now) {
		t.Fatalf("expected updatedAt %v, got %v", now, updated.UpdatedAt)
	}
}

func TestUserServiceUpdateUserRequiresFields(t *testing.T) {
	service, err := NewUserService(UserServiceDeps{Users: &stubUserRepository{}})
	if err != nil {
		t.Fatalf("unexpected error constructing user service: %v", err)
	}

	_, err = service.UpdateUser(context.Background(), UpdateUserCommand{UserID: "usr_1"})
	if !errors.Is(err, ErrUserInvalidInput) {
		t.Fatalf("expected ErrUserInvalidInput, got %v", err)
	}
}

func TestUserServiceDeleteUserNotFound(t *testing.T) {
	users := &stubUserRepository{
		softDeleteFunc: func(ctx context.Context, userID string, deletedAt time.Time) error {
			return repositories.NewStoreError(repositories.ErrorNotFound, "user missing", nil)
		},
	}
	service, err := NewUserService(UserServiceDeps{Users: users})
	if err != nil {
		t.Fatalf("unexpected error constructing user service: %v", err)
	}

	err = service.DeleteUser(context.Background(), "usr_missing")
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestUserServiceListUsersLowersEmailFilter(t *testing.T) {
	var filter repositories.UserListFilter
	users := &stubUserRepository{
		listFunc: func(ctx context.Context, f repositories.UserListFilter) ([]domain.User, error) {
			filter = f
			return []domain.User{}, nil
		},
	}
	service, err := NewUserService(UserServiceDeps{Users: users})
	if err != nil {
		t.Fatalf("unexpected error constructing user service: %v", err)
	}

	if _, err := service.ListUsers(context.Background(), UserQuery{Email: " Jess@Example.com "}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if filter.Email != "jess@example.com" {
		t.Fatalf("expected lowered email filter, got %q", filter.Email)
	}
}

func TestUserServiceRegisterQueuesWelcomeEmail(t *testing.T) {
	users := &stubUserRepository{
		insertFunc: func(ctx context.Context, user domain.User) error { return nil },
	}
	emails := &stubEmailQueuer{}
	service, err := NewUserService(UserServiceDeps{
		Users:  users,
		Emails: emails,
	})
	if err != nil {
		t.Fatalf("unexpected error constructing user service: %v", err)
	}

	_, err = service.Register(context.Background(), RegisterUserCommand{
		Email:        "jess@example.com",
		PasswordHash: "$2a$10$hash",
		FirstName:    "Jess",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(emails.queued) != 1 {
		t.Fatalf("expected one queued email, got %d", len(emails.queued))
	}
	if emails.queued[0].To != "jess@example.com" {
		t.Fatalf("unexpected recipient %q", emails.queued[0].To)
	}
}

func TestUserServiceRegisterSurvivesEmailFailure(t *testing.T) {
	users := &stubUserRepository{
		insertFunc: func(ctx context.Context, user domain.User) error { return nil },
	}
	emails := &stubEmailQueuer{
		queueFunc: func(ctx context.Context, cmd QueueEmailCommand) (Email, error) {
			return Email{}, errors.New("queue down")
		},
	}
	service, err := NewUserService(UserServiceDeps{
		Users:  users,
		Emails: emails,
	})
	if err != nil {
		t.Fatalf("unexpected error constructing user service: %v", err)
	}

	user, err := service.Register(context.Background(), RegisterUserCommand{
		Email:        "jess@example.com",
		PasswordHash: "$2a$10$hash",
		FirstName:    "Jess",
	})
	if err != nil {
		t.Fatalf("registration must not fail on email errors: %v", err)
	}
	if user.Email != "jess@example.com" {
		t.Fatalf("unexpected email %q", user.Email)
	}
}
