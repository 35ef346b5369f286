package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"symptom-tracker/internal/illness"
)

// birthdateLayout is the registration form's date format.
const birthdateLayout = "01/02/2006"

// settingsDateLayout is the format the settings form sends.
const settingsDateLayout = "2006-01-02T15:04:05.000Z"

type RegisterInput struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	Password  string `json:"password"`
	Birthdate string `json:"birthdate"`
	Sex       string `json:"sex"`
}

type SettingsInput struct {
	Email           string `json:"email"`
	FirstName       string `json:"first_name"`
	Birthdate       string `json:"birthdate"`
	Sex             string `json:"sex"`
	CurrentPassword string `json:"current_password"`
	Password        string `json:"password"`
}

type Service interface {
	Register(ctx context.Context, in RegisterInput) (*User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	UpdateSettings(ctx context.Context, userID uuid.UUID, in SettingsInput) error

	// Profile implements illness.ProfileProvider for the evidence builder.
	Profile(ctx context.Context, userID uuid.UUID) (illness.Profile, error)
}

type service struct {
	repo   Repository
	logger *zap.Logger
}

func NewService(repo Repository, logger *zap.Logger) Service {
	return &service{repo: repo, logger: logger}
}

func (s *service) Register(ctx context.Context, in RegisterInput) (*User, error) {
	if in.Email == "" || in.Password == "" {
		return nil, fmt.Errorf("%w: email and password are required", ErrValidation)
	}
	birthdate, err := time.Parse(birthdateLayout, in.Birthdate)
	if err != nil {
		return nil, fmt.Errorf("%w: birthdate must be MM/DD/YYYY", ErrValidation)
	}
	sex := in.Sex
	if sex == "" {
		sex = SexNone
	}
	if !validSex(sex) {
		return nil, fmt.Errorf("%w: sex must be Male, Female or None", ErrValidation)
	}

	if _, err := s.repo.GetByEmail(ctx, in.Email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	u := &User{
		ID:           uuid.New(),
		Email:        in.Email,
		FirstName:    in.FirstName,
		PasswordHash: string(hash),
		Birthdate:    birthdate,
		Sex:          sex,
		RegisteredOn: time.Now().UTC(),
	}
	if err := s.repo.Insert(ctx, u); err != nil {
		return nil, err
	}

	s.logger.Info("registered user", zap.String("user_id", u.ID.String()))
	return u, nil
}

func (s *service) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *service) UpdateSettings(ctx context.Context, userID uuid.UUID, in SettingsInput) error {
	u, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	if in.Email != "" && in.Email != u.Email {
		if _, err := s.repo.GetByEmail(ctx, in.Email); err == nil {
			return ErrEmailTaken
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		u.Email = in.Email
	}
	if in.FirstName != "" {
		u.FirstName = in.FirstName
	}
	if in.Birthdate != "" {
		birthdate, err := time.Parse(settingsDateLayout, in.Birthdate)
		if err != nil {
			return fmt.Errorf("%w: invalid birthdate", ErrValidation)
		}
		u.Birthdate = birthdate
	}
	if in.Sex != "" {
		if !validSex(in.Sex) {
			return fmt.Errorf("%w: sex must be Male, Female or None", ErrValidation)
		}
		u.Sex = in.Sex
	}
	if in.CurrentPassword != "" {
		if in.Password == "" {
			return fmt.Errorf("%w: new password is required", ErrValidation)
		}
		if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(in.CurrentPassword)) != nil {
			return ErrWrongPassword
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		u.PasswordHash = string(hash)
	}

	return s.repo.Update(ctx, u)
}

func (s *service) Profile(ctx context.Context, userID uuid.UUID) (illness.Profile, error) {
	u, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return illness.Profile{}, err
	}
	return illness.Profile{
		Birthdate: u.Birthdate,
		Sex:       u.Sex,
	}, nil
}
