package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"ride-pool-backend/internal/models"
	"ride-pool-backend/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const jwtExpDays = 30

// Claims identifies the caller of an authenticated request
type Claims struct {
	UserID string
	Email  string
}

// RegisterInput is the body of a registration request. The email comes
// from the verified sign-in token.
type RegisterInput struct {
	Token string `json:"token"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// UserService handles user-related business logic
type UserService struct {
	users     UserStore
	tokens    DeviceTokenStore
	identity  IdentityVerifier
	avatars   *AvatarService
	jwtSecret string
}

// NewUserService creates a new user service. avatars may be nil.
func NewUserService(users UserStore, tokens DeviceTokenStore, identity IdentityVerifier, avatars *AvatarService, jwtSecret string) *UserService {
	return &UserService{
		users:     users,
		tokens:    tokens,
		identity:  identity,
		avatars:   avatars,
		jwtSecret: jwtSecret,
	}
}

// GenerateJWT generates a JWT token for a user
func (s *UserService) GenerateJWT(user *models.User) (string, error) {
	claims := jwt.MapClaims{
		"user_id": user.ID,
		"email":   user.Email,
		"exp":     time.Now().AddDate(0, 0, jwtExpDays).Unix(),
		"iat":     time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// ValidateJWT validates a JWT token and returns the caller it was issued to
func (s *UserService) ValidateJWT(tokenString string) (*Claims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}

	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return nil, fmt.Errorf("user_id not found in token")
	}
	email, _ := claims["email"].(string)

	return &Claims{UserID: userID, Email: email}, nil
}

// Register creates a user. When picture uploads are configured it also
// returns a pre-signed URL for the profile picture.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*models.User, *AvatarUpload, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Phone = strings.TrimSpace(in.Phone)
	if in.Phone == "" {
		return nil, nil, invalid("phone cannot be empty")
	}

	id, err := s.identity.Verify(ctx, strings.TrimSpace(in.Token))
	if err != nil {
		return nil, nil, err
	}
	if in.Name == "" {
		in.Name = strings.TrimSpace(id.Name)
	}
	if in.Name == "" {
		return nil, nil, invalid("name cannot be empty")
	}

	user := &models.User{
		ID:        uuid.New().String(),
		Name:      in.Name,
		Email:     id.Email,
		Phone:     in.Phone,
		Batch:     batchFromEmail(id.Email),
		CreatedAt: time.Now(),
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, nil, newError(ErrConflict, "Email or Phone Number already exists.")
		}
		return nil, nil, fmt.Errorf("failed to create user: %w", err)
	}
	log.Info().Str("user_id", user.ID).Msg("User registered")

	if s.avatars == nil {
		return user, nil, nil
	}
	upload, err := s.avatars.PresignUpload(ctx, user.ID)
	if err != nil {
		// the account exists; the picture can be uploaded later
		log.Error().Err(err).Str("user_id", user.ID).Msg("Failed to presign profile picture upload")
		return user, nil, nil
	}
	user.ProfilePicture = upload.Key
	return user, upload, nil
}

// Login verifies idToken, issues an access token for the account with the
// verified email and binds deviceToken to it
func (s *UserService) Login(ctx context.Context, idToken, deviceToken string) (string, error) {
	id, err := s.identity.Verify(ctx, strings.TrimSpace(idToken))
	if err != nil {
		return "", err
	}

	user, err := s.users.GetByEmail(ctx, id.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", userNotFound()
		}
		return "", fmt.Errorf("failed to get user: %w", err)
	}

	if deviceToken != "" {
		if err := s.tokens.Register(ctx, user.ID, deviceToken); err != nil {
			return "", fmt.Errorf("failed to register device token: %w", err)
		}
	}

	return s.GenerateJWT(user)
}

// RequestAvatarUpload returns a fresh upload URL for the user's profile picture
func (s *UserService) RequestAvatarUpload(ctx context.Context, userID string) (*AvatarUpload, error) {
	if s.avatars == nil {
		return nil, newError(ErrNotFound, "Profile picture uploads are not enabled.")
	}
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, userNotFound()
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return s.avatars.PresignUpload(ctx, userID)
}

// batchFromEmail reads the enrolment year encoded in characters 1..4 of
// institute addresses such as f20210042@hyderabad.bits-pilani.ac.in
func batchFromEmail(email string) int {
	if len(email) < 5 {
		return 0
	}
	batch, err := strconv.Atoi(email[1:5])
	if err != nil {
		return 0
	}
	return batch
}
