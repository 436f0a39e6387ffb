package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"flashcard-backend/internal/middleware"
	"flashcard-backend/internal/models"
)

const (
	refreshTokenTTL      = 7 * 24 * time.Hour
	googleTokenInfoURL   = "https://oauth2.googleapis.com/tokeninfo"
	defaultPasswordCost  = 12
	authStateMessageType = "auth_state"
)

var ErrTokenNotFound = errors.New("refresh token not found")

// UserStore is the persistence the identity provider needs. Lookups return
// pgx.ErrNoRows when no user matches.
type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByGoogleID(ctx context.Context, googleID string) (*models.User, error)
	LinkGoogle(ctx context.Context, userID uuid.UUID, googleID string) error
	UpdateLastLogin(ctx context.Context, userID uuid.UUID) error
}

// TokenStore keeps refresh tokens.
type TokenStore interface {
	Save(ctx context.Context, token string, userID uuid.UUID, ttl time.Duration) error
	Lookup(ctx context.Context, token string) (uuid.UUID, error)
	Delete(ctx context.Context, token string) error
}

type RedisTokenStore struct {
	redis *redis.Client
}

func NewRedisTokenStore(client *redis.Client) *RedisTokenStore {
	return &RedisTokenStore{redis: client}
}

func (s *RedisTokenStore) Save(ctx context.Context, token string, userID uuid.UUID, ttl time.Duration) error {
	return s.redis.Set(ctx, "refresh:"+token, userID.String(), ttl).Err()
}

func (s *RedisTokenStore) Lookup(ctx context.Context, token string) (uuid.UUID, error) {
	userIDStr, err := s.redis.Get(ctx, "refresh:"+token).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return uuid.Nil, ErrTokenNotFound
		}
		return uuid.Nil, err
	}
	return uuid.Parse(userIDStr)
}

func (s *RedisTokenStore) Delete(ctx context.Context, token string) error {
	return s.redis.Del(ctx, "refresh:"+token).Err()
}

type AuthService struct {
	users          UserStore
	tokens         TokenStore
	jwt            *middleware.JWTAuth
	events         *AuthEvents
	publisher      Publisher
	googleClientID string
	tokenInfoURL   string
	httpClient     *http.Client
	passwordCost   int
}

func NewAuthService(users UserStore, tokens TokenStore, jwt *middleware.JWTAuth, events *AuthEvents, publisher Publisher, googleClientID string) *AuthService {
	return &AuthService{
		users:          users,
		tokens:         tokens,
		jwt:            jwt,
		events:         events,
		publisher:      publisher,
		googleClientID: googleClientID,
		tokenInfoURL:   googleTokenInfoURL,
		httpClient:     &http.Client{Timeout: 10 * time.Second},
		passwordCost:   defaultPasswordCost,
	}
}

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// SignUp creates a password account and signs it in.
func (s *AuthService) SignUp(ctx context.Context, req models.SignUpRequest) (*models.AuthTokens, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	fieldErrors := make(map[string]string)
	if !emailRegex.MatchString(req.Email) {
		fieldErrors["email"] = "Invalid email format"
	}
	if err := validatePassword(req.Password); err != nil {
		fieldErrors["password"] = err.Error()
	}
	if len(fieldErrors) > 0 {
		return nil, &ValidationError{Fields: fieldErrors}
	}

	_, err := s.users.GetByEmail(ctx, req.Email)
	if err == nil {
		return nil, &ConflictError{Message: "Email already in use"}
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.passwordCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Email:        req.Email,
		PasswordHash: string(hash),
		FullName:     strings.TrimSpace(req.FullName),
		AuthProvider: models.ProviderPassword,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if isUniqueViolation(err) {
			return nil, &ConflictError{Message: "Email already in use"}
		}
		return nil, err
	}

	return s.signIn(ctx, user)
}

func (s *AuthService) SignInWithPassword(ctx context.Context, req models.LoginRequest) (*models.AuthTokens, error) {
	user, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &AuthError{Message: "Invalid email or password"}
		}
		return nil, err
	}

	if !user.IsActive {
		return nil, &AuthError{Message: "Account is deactivated"}
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, &AuthError{Message: "Invalid email or password"}
	}

	return s.signIn(ctx, user)
}

// SignInWithGoogle verifies a Google ID token and signs in the matching
// user, linking or creating the account as needed.
func (s *AuthService) SignInWithGoogle(ctx context.Context, idToken string) (*models.AuthTokens, error) {
	if s.googleClientID == "" {
		return nil, &ValidationError{Fields: map[string]string{"google": "Google sign-in is not configured"}}
	}
	if idToken == "" {
		return nil, &ValidationError{Fields: map[string]string{"id_token": "ID token is required"}}
	}

	info, err := s.verifyGoogleToken(ctx, idToken)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetByGoogleID(ctx, info.Sub)
	if err == nil {
		if !user.IsActive {
			return nil, &AuthError{Message: "Account is deactivated"}
		}
		return s.signIn(ctx, user)
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	user, err = s.users.GetByEmail(ctx, strings.ToLower(info.Email))
	if err == nil {
		if !user.IsActive {
			return nil, &AuthError{Message: "Account is deactivated"}
		}
		if err := s.users.LinkGoogle(ctx, user.ID, info.Sub); err != nil {
			return nil, fmt.Errorf("failed to link Google account: %w", err)
		}
		return s.signIn(ctx, user)
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	googleID := info.Sub
	var avatarURL *string
	if info.Picture != "" {
		avatarURL = &info.Picture
	}

	newUser := &models.User{
		Email:        strings.ToLower(info.Email),
		FullName:     info.Name,
		AvatarURL:    avatarURL,
		AuthProvider: models.ProviderGoogle,
		GoogleID:     &googleID,
	}
	if err := s.users.Create(ctx, newUser); err != nil {
		if isUniqueViolation(err) {
			return nil, &ConflictError{Message: "Account already exists, please sign in again"}
		}
		return nil, err
	}

	return s.signIn(ctx, newUser)
}

type googleTokenInfo struct {
	Sub     string `json:"sub"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
	Aud     string `json:"aud"`
}

func (s *AuthService) verifyGoogleToken(ctx context.Context, idToken string) (*googleTokenInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.tokenInfoURL+"?id_token="+url.QueryEscape(idToken), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build Google token request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to verify Google token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &AuthError{Message: "Invalid Google token"}
	}

	var info googleTokenInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode Google token info: %w", err)
	}

	if info.Aud != s.googleClientID {
		return nil, &AuthError{Message: "Google token audience mismatch"}
	}
	if info.Email == "" || info.Sub == "" {
		return nil, &ValidationError{Fields: map[string]string{"google": "Google account missing email"}}
	}
	return &info, nil
}

// Refresh exchanges a refresh token for a new token pair. The old refresh
// token is revoked.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*models.AuthTokens, error) {
	userID, err := s.tokens.Lookup(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			return nil, &AuthError{Message: "Invalid or expired refresh token. Please log in again."}
		}
		return nil, fmt.Errorf("failed to look up refresh token: %w", err)
	}

	if err := s.tokens.Delete(ctx, refreshToken); err != nil {
		return nil, fmt.Errorf("failed to revoke refresh token: %w", err)
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &AuthError{Message: "Account no longer exists"}
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, &AuthError{Message: "Account is deactivated"}
	}

	return s.issueTokens(ctx, user)
}

// SignOut revokes refreshToken when it belongs to userID and announces the
// signed-out state.
func (s *AuthService) SignOut(ctx context.Context, userID uuid.UUID, refreshToken string) error {
	if refreshToken != "" {
		owner, err := s.tokens.Lookup(ctx, refreshToken)
		switch {
		case err == nil && owner == userID:
			if err := s.tokens.Delete(ctx, refreshToken); err != nil {
				return fmt.Errorf("failed to revoke refresh token: %w", err)
			}
		case err != nil && !errors.Is(err, ErrTokenNotFound):
			return fmt.Errorf("failed to look up refresh token: %w", err)
		}
	}

	s.announce(ctx, userID, nil)
	return nil
}

func (s *AuthService) signIn(ctx context.Context, user *models.User) (*models.AuthTokens, error) {
	if err := s.users.UpdateLastLogin(ctx, user.ID); err != nil {
		logrus.WithError(err).WithField("user_id", user.ID).Warn("Failed to update last login")
	}

	tokens, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}

	s.announce(ctx, user.ID, user)
	return tokens, nil
}

func (s *AuthService) issueTokens(ctx context.Context, user *models.User) (*models.AuthTokens, error) {
	accessToken, err := s.jwt.GenerateAccessToken(user.ID, user.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	refreshToken, err := generateToken(64)
	if err != nil {
		return nil, err
	}

	if err := s.tokens.Save(ctx, refreshToken, user.ID, refreshTokenTTL); err != nil {
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}

	return &models.AuthTokens{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int(middleware.AccessTokenTTL.Seconds()),
		User:         user,
	}, nil
}

func (s *AuthService) announce(ctx context.Context, userID uuid.UUID, user *models.User) {
	change := AuthStateChange{UserID: userID, User: user, At: time.Now().UTC()}
	if s.events != nil {
		s.events.Publish(change)
	}
	if s.publisher != nil {
		s.publisher.PublishUpdate(ctx, userID.String(), models.WSMessage{
			Type:    authStateMessageType,
			Payload: map[string]interface{}{"signed_in": user != nil, "user": user},
		})
	}
}

// isUniqueViolation reports a Postgres unique_violation (23505), which Create
// returns when a concurrent request inserted the same email or Google id.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func generateToken(bytes int) (string, error) {
	b := make([]byte, bytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func validatePassword(pw string) error {
	if len(pw) < 8 {
		return fmt.Errorf("Password must be at least 8 characters")
	}
	hasNumber := false
	for _, ch := range pw {
		if unicode.IsDigit(ch) {
			hasNumber = true
			break
		}
	}
	if !hasNumber {
		return fmt.Errorf("Password must contain at least one number")
	}
	return nil
}
