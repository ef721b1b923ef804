package core

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"pnj.com/jewelry-designer/internal/auth"
	"pnj.com/jewelry-designer/internal/store"
)

const MinPasswordLength = 8

var profileVocabulary = map[string][]string{
	"gender":         {"male", "female", "other"},
	"marital_status": {"single", "married", "engaged"},
	"segment":        {"economic", "middle", "premium", "luxury"},
	"region":         {"north", "central", "south", "foreign"},
}

// Profile carries optional demographic fields. Nil means "leave unchanged" on update.
type Profile struct {
	Name          *string `json:"name"`
	Gender        *string `json:"gender"`
	Age           *int    `json:"age"`
	MaritalStatus *string `json:"marital_status"`
	Segment       *string `json:"segment"`
	Region        *string `json:"region"`
	Nationality   *string `json:"nationality"`
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Profile
}

type UserService struct {
	dbStore *store.Store
}

func NewUserService(db *store.Store) *UserService {
	return &UserService{dbStore: db}
}

func (s *UserService) Register(ctx context.Context, req RegisterRequest) (*store.User, error) {
	verr := &ValidationError{}
	email := store.NormalizeEmail(req.Email)
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		verr.add("email", "must be a valid email address")
	}
	if len(req.Password) < MinPasswordLength {
		verr.add("password", fmt.Sprintf("must be at least %d characters", MinPasswordLength))
	}
	req.Profile.validate(verr)
	if err := verr.orNil(); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	user := &store.User{Email: email, PasswordHash: hash}
	req.Profile.apply(user)
	if err := s.dbStore.CreateUser(ctx, user); err != nil {
		return nil, mapStoreError(err, "user with email "+email)
	}
	return user, nil
}

// Login checks credentials and issues an access token.
func (s *UserService) Login(ctx context.Context, email, password string) (string, error) {
	user, err := s.dbStore.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", fmt.Errorf("incorrect email or password: %w", ErrUnauthorized)
		}
		return "", err
	}
	if !auth.CheckPasswordHash(password, user.PasswordHash) {
		return "", fmt.Errorf("incorrect email or password: %w", ErrUnauthorized)
	}
	if !user.IsActive {
		return "", fmt.Errorf("account is inactive: %w", ErrUnauthorized)
	}
	token, err := auth.GenerateJWT(user.ID)
	if err != nil {
		return "", fmt.Errorf("failed to issue token: %w", err)
	}
	return token, nil
}

// Authenticate resolves a bearer token to an active user.
func (s *UserService) Authenticate(ctx context.Context, token string) (*store.User, error) {
	userID, err := auth.ValidateJWT(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	user, err := s.dbStore.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("unknown user: %w", ErrUnauthorized)
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, fmt.Errorf("account is inactive: %w", ErrUnauthorized)
	}
	return user, nil
}

func (s *UserService) Get(ctx context.Context, userID string) (*store.User, error) {
	user, err := s.dbStore.GetUserByID(ctx, userID)
	if err != nil {
		return nil, mapStoreError(err, "user")
	}
	return user, nil
}

func (s *UserService) UpdateProfile(ctx context.Context, userID string, p Profile) (*store.User, error) {
	verr := &ValidationError{}
	p.validate(verr)
	if err := verr.orNil(); err != nil {
		return nil, err
	}
	user, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	p.apply(user)
	if err := s.dbStore.UpdateUser(ctx, user); err != nil {
		return nil, mapStoreError(err, "user")
	}
	return user, nil
}

func (s *UserService) Deactivate(ctx context.Context, userID string) error {
	return mapStoreError(s.dbStore.DeactivateUser(ctx, userID), "user")
}

func (p Profile) validate(verr *ValidationError) {
	check := func(field string, v *string) {
		if v == nil || *v == "" {
			return
		}
		for _, allowed := range profileVocabulary[field] {
			if *v == allowed {
				return
			}
		}
		verr.add(field, "must be one of: "+strings.Join(profileVocabulary[field], ", "))
	}
	check("gender", p.Gender)
	check("marital_status", p.MaritalStatus)
	check("segment", p.Segment)
	check("region", p.Region)
	if p.Age != nil && (*p.Age < 0 || *p.Age > 150) {
		verr.add("age", "must be between 0 and 150")
	}
}

func (p Profile) apply(u *store.User) {
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = strings.TrimSpace(*v)
		}
	}
	set(&u.Name, p.Name)
	set(&u.Gender, p.Gender)
	set(&u.MaritalStatus, p.MaritalStatus)
	set(&u.Segment, p.Segment)
	set(&u.Region, p.Region)
	set(&u.Nationality, p.Nationality)
	if p.Age != nil {
		age := *p.Age
		u.Age = &age
	}
}
