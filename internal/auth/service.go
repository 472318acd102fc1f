package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"backend-snapshare/internal/apperr"
	"backend-snapshare/internal/db"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"
)

const (
	accessTokenTTL  = 15 * time.Minute
	refreshTokenTTL = 7 * 24 * time.Hour
	minPasswordLen  = 6

	uniqueViolation = "23505"
)

// tokenUse separates short-lived bearer credentials from refresh tokens, which
// are only accepted by the refresh endpoint.
type tokenUse string

const (
	useAccess  tokenUse = "access"
	useRefresh tokenUse = "refresh"
)

var (
	ErrMissingFields     = errors.New("username, email and password required")
	ErrWeakPassword      = fmt.Errorf("password must be at least %d characters", minPasswordLen)
	ErrEmailTaken        = errors.New("email already registered")
	ErrInvalidLogin      = errors.New("invalid credentials")
	ErrInvalidCredential = errors.New("credential invalid")
	ErrInvalidRefresh    = errors.New("refresh token invalid")
)

var (
	hashPasswordFn    = bcrypt.GenerateFromPassword
	signTokenFn       = (*Service).signToken
	parseWithClaimsFn = jwt.ParseWithClaims
)

// Service is the identity provider: it owns accounts and issues bearer credentials.
type Service struct {
	secret []byte
	db     db.Querier
}

type Claims struct {
	UserID string   `json:"user_id"`
	Email  string   `json:"email,omitempty"`
	Use    tokenUse `json:"typ"`
	jwt.RegisteredClaims
}

func NewService(secret string, db db.Querier) *Service {
	return &Service{
		secret: []byte(secret),
		db:     db,
	}
}

// CreateAccount registers a new account and returns it with its provider-assigned id.
func (s *Service) CreateAccount(ctx context.Context, username, email, password string) (Account, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if username == "" || email == "" || password == "" {
		return Account{}, apperr.E(apperr.KindInvalid, "auth.create_account", ErrMissingFields)
	}
	if len(password) < minPasswordLen {
		return Account{}, apperr.E(apperr.KindInvalid, "auth.create_account", ErrWeakPassword)
	}
	hash, err := hashPasswordFn([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return Account{}, err
	}

	account := Account{
		ID:           uuid.NewString(),
		Email:        email,
		Username:     username,
		PasswordHash: string(hash),
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO accounts (id, email, username, password_hash)
		VALUES ($1,$2,$3,$4)
		RETURNING created_at
	`, account.ID, account.Email, account.Username, account.PasswordHash)
	if err := row.Scan(&account.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return Account{}, apperr.E(apperr.KindInvalid, "auth.create_account", ErrEmailTaken)
		}
		return Account{}, apperr.Upstream("auth.create_account", err)
	}
	return account, nil
}

func (s *Service) Login(ctx context.Context, req LoginRequest) (Account, TokenResponse, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, email, username, password_hash, created_at
		FROM accounts WHERE email = $1
	`, strings.TrimSpace(strings.ToLower(req.Email)))

	var account Account
	if err := row.Scan(&account.ID, &account.Email, &account.Username, &account.PasswordHash, &account.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, TokenResponse{}, ErrInvalidLogin
		}
		return Account{}, TokenResponse{}, apperr.Upstream("auth.login", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(req.Password)); err != nil {
		return Account{}, TokenResponse{}, ErrInvalidLogin
	}

	tokens, err := s.GenerateTokens(ctx, account.ID, account.Email)
	if err != nil {
		return Account{}, TokenResponse{}, err
	}
	return account, tokens, nil
}

func (s *Service) GenerateTokens(ctx context.Context, userID, email string) (TokenResponse, error) {
	access, err := signTokenFn(s, useAccess, userID, email, accessTokenTTL)
	if err != nil {
		return TokenResponse{}, err
	}

	refresh, err := signTokenFn(s, useRefresh, userID, email, refreshTokenTTL)
	if err != nil {
		return TokenResponse{}, err
	}

	if err := s.saveRefreshToken(ctx, refresh, userID, refreshTokenTTL); err != nil {
		return TokenResponse{}, err
	}

	return TokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(accessTokenTTL.Seconds()),
	}, nil
}

// ValidateRefreshToken checks the signature and that the token is still on record.
func (s *Service) ValidateRefreshToken(ctx context.Context, token string) (Identity, error) {
	claims, err := s.parseToken(token, useRefresh)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrInvalidRefresh, err)
	}

	userID, expiresAt, err := s.lookupRefreshToken(ctx, token)
	if err != nil || userID != claims.UserID || time.Now().After(expiresAt) {
		return Identity{}, ErrInvalidRefresh
	}
	return Identity{UserID: claims.UserID, Email: claims.Email, Claims: claims}, nil
}

// RotateRefreshToken exchanges a refresh token for a new pair. The presented
// token is revoked before the new pair is issued, so it works exactly once.
func (s *Service) RotateRefreshToken(ctx context.Context, token string) (TokenResponse, error) {
	id, err := s.ValidateRefreshToken(ctx, token)
	if err != nil {
		return TokenResponse{}, err
	}
	if _, err := s.db.Exec(ctx, `
		UPDATE refresh_tokens SET revoked_at = now()
		WHERE token = $1 AND revoked_at IS NULL
	`, token); err != nil {
		return TokenResponse{}, apperr.Upstream("auth.rotate_refresh", err)
	}
	tokens, err := s.GenerateTokens(ctx, id.UserID, id.Email)
	if err != nil {
		return TokenResponse{}, apperr.Upstream("auth.rotate_refresh", err)
	}
	return tokens, nil
}

// VerifyCredential validates an access token and returns its subject.
// Refresh tokens are rejected.
func (s *Service) VerifyCredential(token string) (Identity, error) {
	claims, err := s.parseToken(token, useAccess)
	if err != nil {
		return Identity{}, err
	}
	return Identity{UserID: claims.UserID, Email: claims.Email, Claims: claims}, nil
}

func (s *Service) signToken(use tokenUse, userID, email string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		Email:  email,
		Use:    use,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *Service) parseToken(token string, want tokenUse) (*Claims, error) {
	parsed, err := parseWithClaimsFn(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.UserID == "" {
		return nil, ErrInvalidCredential
	}
	if claims.Use != want {
		return nil, fmt.Errorf("%w: %q token where %q expected", ErrInvalidCredential, claims.Use, want)
	}
	return claims, nil
}

func (s *Service) saveRefreshToken(ctx context.Context, token, userID string, ttl time.Duration) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO refresh_tokens (id, account_id, token, expires_at)
		VALUES ($1,$2,$3,$4)
	`, uuid.NewString(), userID, token, time.Now().Add(ttl))
	return err
}

func (s *Service) lookupRefreshToken(ctx context.Context, token string) (string, time.Time, error) {
	row := s.db.QueryRow(ctx, `
		SELECT account_id, expires_at
		FROM refresh_tokens
		WHERE token = $1 AND revoked_at IS NULL
	`, token)
	var userID string
	var expiresAt time.Time
	if err := row.Scan(&userID, &expiresAt); err != nil {
		return "", time.Time{}, err
	}
	return userID, expiresAt, nil
}
