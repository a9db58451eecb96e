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

const userIDPrefix = "usr_"

var (
	// ErrUserInvalidInput indicates the caller supplied invalid input parameters.
	ErrUserInvalidInput = errors.New("user: invalid input")
	// ErrUserNotFound indicates the requested user does not exist or is deleted.
	ErrUserNotFound = errors.New("user: not found")
	// ErrUserEmailTaken indicates another live account already uses the email.
	ErrUserEmailTaken = errors.New("user: email already taken")
	// ErrUserUnavailable indicates user dependencies are currently unavailable.
	ErrUserUnavailable = errors.New("user: unavailable")
)

// UserServiceDeps wires the dependencies required by the user service.
// Emails is optional; without it registration skips the welcome email.
type UserServiceDeps struct {
	Users       repositories.UserRepository
	Emails      emailQueuer
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type userService struct {
	users  repositories.UserRepository
	emails emailQueuer
	now    func() time.Time
	newID  func() string
	logger func(ctx context.Context, event string, fields map[string]any)
}

// NewUserService constructs a UserService validating required dependencies.
func NewUserService(deps UserServiceDeps) (UserService, error) {
	if deps.Users == nil {
		return nil, errors.New("user service: user repository is required")
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
	return &userService{
		users:  deps.Users,
		emails: deps.Emails,
		now:    func() time.Time { return clock().UTC() },
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *userService) Register(ctx context.Context, cmd RegisterUserCommand) (User, error) {
	email := strings.ToLower(strings.TrimSpace(cmd.Email))
	if email == "" || !strings.Contains(email, "@") {
		return User{}, fmt.Errorf("%w: a valid email is required", ErrUserInvalidInput)
	}
	if strings.TrimSpace(cmd.PasswordHash) == "" {
		return User{}, fmt.Errorf("%w: password hash is required", ErrUserInvalidInput)
	}
	firstName := strings.TrimSpace(cmd.FirstName)
	lastName := strings.TrimSpace(cmd.LastName)
	if firstName == "" {
		return User{}, fmt.Errorf("%w: first name is required", ErrUserInvalidInput)
	}

	userType := cmd.Type
	if userType == "" {
		userType = domain.UserTypeCustomer
	}
	switch userType {
	case domain.UserTypeCustomer, domain.UserTypeStaff, domain.UserTypeAdmin:
	default:
		return User{}, fmt.Errorf("%w: unknown user type %q", ErrUserInvalidInput, userType)
	}

	now := s.now()
	user := domain.User{
		ID:           userIDPrefix + s.newID(),
		Email:        email,
		PasswordHash: cmd.PasswordHash,
		FirstName:    firstName,
		LastName:     lastName,
		Phone:        strings.TrimSpace(cmd.Phone),
		Type:         userType,
		Addresses:    cmd.Addresses,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Insert(ctx, user); err != nil {
		return User{}, s.translateUserError(err)
	}
	s.logger(ctx, "user.registered", map[string]any{"userID": user.ID})
	s.queueWelcomeEmail(ctx, user)
	return user, nil
}

func (s *userService) queueWelcomeEmail(ctx context.Context, user User) {
	if s.emails == nil {
		return
	}
	body := fmt.Sprintf("Hi %s, your account is ready. Happy shopping!", user.FirstName)
	if _, err := s.emails.QueueEmail(ctx, QueueEmailCommand{
		To:      user.Email,
		Subject: "Welcome to MapleCart",
		Body:    body,
	}); err != nil {
		s.logger(ctx, "user.welcome_email_failed", map[string]any{
			"userID": user.ID,
			"error":  err.Error(),
		})
	}
}

func (s *userService) GetUser(ctx context.Context, userID string) (User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return User{}, fmt.Errorf("%w: user id is required", ErrUserInvalidInput)
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return User{}, s.translateUserError(err)
	}
	return user, nil
}

func (s *userService) UpdateUser(ctx context.Context, cmd UpdateUserCommand) (User, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return User{}, fmt.Errorf("%w: user id is required", ErrUserInvalidInput)
	}
	if cmd.Email == nil && cmd.PasswordHash == nil && cmd.FirstName == nil &&
		cmd.LastName == nil && cmd.Phone == nil && cmd.Addresses == nil {
		return User{}, fmt.Errorf("%w: at least one field must change", ErrUserInvalidInput)
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return User{}, s.translateUserError(err)
	}

	if cmd.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*cmd.Email))
		if email == "" || !strings.Contains(email, "@") {
			return User{}, fmt.Errorf("%w: a valid email is required", ErrUserInvalidInput)
		}
		user.Email = email
	}
	if cmd.PasswordHash != nil {
		if strings.TrimSpace(*cmd.PasswordHash) == "" {
			return User{}, fmt.Errorf("%w: password hash cannot be empty", ErrUserInvalidInput)
		}
		user.PasswordHash = *cmd.PasswordHash
	}
	if cmd.FirstName != nil {
		if strings.TrimSpace(*cmd.FirstName) == "" {
			return User{}, fmt.Errorf("%w: first name cannot be empty", ErrUserInvalidInput)
		}
		user.FirstName = strings.TrimSpace(*cmd.FirstName)
	}
	if cmd.LastName != nil {
		user.LastName = strings.TrimSpace(*cmd.LastName)
	}
	if cmd.Phone != nil {
		user.Phone = strings.TrimSpace(*cmd.Phone)
	}
	if cmd.Addresses != nil {
		user.Addresses = cmd.Addresses
	}
	user.UpdatedAt = s.now()

	if err := s.users.Update(ctx, user); err != nil {
		return User{}, s.translateUserError(err)
	}
	return user, nil
}

func (s *userService) DeleteUser(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("%w: user id is required", ErrUserInvalidInput)
	}
	if err := s.users.SoftDelete(ctx, userID, s.now()); err != nil {
		return s.translateUserError(err)
	}
	return nil
}

func (s *userService) ListUsers(ctx context.Context, query UserQuery) ([]User, error) {
	users, err := s.users.List(ctx, repositories.UserListFilter{
		ID:      strings.TrimSpace(query.ID),
		Email:   strings.ToLower(strings.TrimSpace(query.Email)),
		Name:    strings.TrimSpace(query.Name),
		Phone:   strings.TrimSpace(query.Phone),
		Deleted: query.Deleted,
	})
	if err != nil {
		return nil, s.translateUserError(err)
	}
	return users, nil
}

func (s *userService) translateUserError(err error) error {
	var storeErr *repositories.StoreError
	if errors.As(err, &storeErr) {
		switch {
		case storeErr.IsNotFound():
			return fmt.Errorf("%w: %s", ErrUserNotFound, storeErr.Message)
		case storeErr.IsConflict():
			return fmt.Errorf("%w: %s", ErrUserEmailTaken, storeErr.Message)
		case storeErr.IsUnavailable():
			return fmt.Errorf("%w: %s", ErrUserUnavailable, storeErr.Message)
		}
	}
	return fmt.Errorf("%w: %v", ErrUserUnavailable, err)
}
