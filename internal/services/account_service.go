package services

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"neuro/internal/database"
	"neuro/pkg/auth"
)

var (
	ErrAccountExists      = errors.New("an account with this email already exists")
	ErrAccountNotFound    = errors.New("account not found")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrRefreshInvalid     = errors.New("refresh token is invalid or revoked")
)

// Account is a local login identity. Everything people-facing (slug, bio,
// experience, follower counts) lives in the Mongo profile under the same uid.
type Account struct {
	UID          string     `json:"uid"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	FullName     string     `json:"fullName"`
	Role         string     `json:"role"`
	CreatedAt    time.Time  `json:"createdAt"`
	LastLoginAt  *time.Time `json:"lastLoginAt,omitempty"`
}

// TokenPair bundles the two JWTs issued at register and login.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// AccountService manages accounts and refresh tokens in the SQL database.
// Refresh tokens are stored as SHA-256 digests so a leaked table cannot be
// replayed, and each row carries a revoked flag that logout flips.
type AccountService struct {
	db       *database.DB
	jwtAuth  *auth.LocalJWTAuth
	profiles *ProfileService
}

// NewAccountService creates the account service. profiles may not be nil;
// registration and login seed the Mongo profile through it.
func NewAccountService(db *database.DB, jwtAuth *auth.LocalJWTAuth, profiles *ProfileService) *AccountService {
	return &AccountService{
		db:       db,
		jwtAuth:  jwtAuth,
		profiles: profiles,
	}
}

// Register creates an account, seeds its profile and returns a token pair.
func (s *AccountService) Register(email, password, fullName string) (*Account, *TokenPair, error) {
	email = normalizeEmail(email)
	if !validEmail(email) {
		return nil, nil, ErrInvalidEmail
	}
	if err := auth.ValidatePassword(password); err != nil {
		return nil, nil, err
	}
	fullName = strings.TrimSpace(fullName)
	if fullName == "" {
		fullName = email[:strings.Index(email, "@")]
	}

	if _, err := s.GetByEmail(email); err == nil {
		return nil, nil, ErrAccountExists
	} else if !errors.Is(err, ErrAccountNotFound) {
		return nil, nil, err
	}

	hash, err := s.jwtAuth.HashPassword(password)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to hash password: %w", err)
	}

	account := &Account{
		UID:          uuid.New().String(),
		Email:        email,
		PasswordHash: hash,
		FullName:     fullName,
		Role:         s.nextRole(),
		CreatedAt:    time.Now().UTC(),
	}

	_, err = s.db.Exec(
		`INSERT INTO accounts (uid, email, password_hash, full_name, role, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		account.UID, account.Email, account.PasswordHash, account.FullName, account.Role, account.CreatedAt,
	)
	if err != nil {
		// Two concurrent registrations can both pass the existence check;
		// the UNIQUE index on email decides.
		if strings.Contains(strings.ToLower(err.Error()), "unique") ||
			strings.Contains(err.Error(), "Duplicate entry") {
			return nil, nil, ErrAccountExists
		}
		return nil, nil, fmt.Errorf("failed to create account: %w", err)
	}

	s.seedProfile(account)

	pair, err := s.issueTokens(account)
	if err != nil {
		return nil, nil, err
	}

	log.Printf("✅ [AUTH] Registered account %s (%s)", account.UID, account.Email)
	return account, pair, nil
}

// Login verifies credentials and returns the account with a fresh token pair.
func (s *AccountService) Login(email, password string) (*Account, *TokenPair, error) {
	email = normalizeEmail(email)

	account, err := s.GetByEmail(email)
	if errors.Is(err, ErrAccountNotFound) {
		// Burn roughly the cost of an Argon2 verify so a missing account
		// is not distinguishable from a wrong password by timing.
		time.Sleep(200 * time.Millisecond)
		return nil, nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, nil, err
	}

	ok, err := s.jwtAuth.VerifyPassword(account.PasswordHash, password)
	if err != nil || !ok {
		return nil, nil, ErrInvalidCredentials
	}

	now := time.Now().UTC()
	if _, err := s.db.Exec(`UPDATE accounts SET last_login_at = ? WHERE uid = ?`, now, account.UID); err != nil {
		log.Printf("⚠️ [AUTH] Failed to record last login for %s: %v", account.UID, err)
	} else {
		account.LastLoginAt = &now
	}

	s.seedProfile(account)

	pair, err := s.issueTokens(account)
	if err != nil {
		return nil, nil, err
	}

	log.Printf("✅ [AUTH] %s logged in", account.Email)
	return account, pair, nil
}

// Refresh exchanges a valid refresh token for a new access token. The
// refresh token itself stays live until it expires or logout revokes it.
func (s *AccountService) Refresh(refreshToken string) (*Account, string, error) {
	claims, err := s.jwtAuth.VerifyRefreshToken(refreshToken)
	if err != nil {
		return nil, "", ErrRefreshInvalid
	}

	var uid string
	var expiresAt time.Time
	var revoked bool
	err = s.db.QueryRow(
		`SELECT uid, expires_at, revoked FROM refresh_tokens WHERE token = ?`,
		tokenDigest(refreshToken),
	).Scan(&uid, &expiresAt, &revoked)
	if err == sql.ErrNoRows {
		return nil, "", ErrRefreshInvalid
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to look up refresh token: %w", err)
	}
	if revoked || time.Now().After(expiresAt) || uid != claims.UserID {
		return nil, "", ErrRefreshInvalid
	}

	account, err := s.GetByUID(uid)
	if err != nil {
		return nil, "", ErrRefreshInvalid
	}

	accessToken, _, err := s.jwtAuth.GenerateTokens(account.UID, account.Email, account.Role)
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate access token: %w", err)
	}
	return account, accessToken, nil
}

// Logout revokes every live refresh token the account holds.
func (s *AccountService) Logout(uid string) error {
	res, err := s.db.Exec(`UPDATE refresh_tokens SET revoked = 1 WHERE uid = ? AND revoked = 0`, uid)
	if err != nil {
		return fmt.Errorf("failed to revoke refresh tokens: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		log.Printf("🛑 [AUTH] Revoked %d refresh token(s) for %s", n, uid)
	}
	return nil
}

// GetByUID loads an account by uid.
func (s *AccountService) GetByUID(uid string) (*Account, error) {
	return s.scanAccount(s.db.QueryRow(
		`SELECT uid, email, password_hash, full_name, role, created_at, last_login_at FROM accounts WHERE uid = ?`, uid))
}

// GetByEmail loads an account by its normalized email.
func (s *AccountService) GetByEmail(email string) (*Account, error) {
	return s.scanAccount(s.db.QueryRow(
		`SELECT uid, email, password_hash, full_name, role, created_at, last_login_at FROM accounts WHERE email = ?`,
		normalizeEmail(email)))
}

// PruneRefreshTokens deletes expired and revoked rows. The retention job
// calls this on its sweep interval.
func (s *AccountService) PruneRefreshTokens() (int64, error) {
	res, err := s.db.Exec(`DELETE FROM refresh_tokens WHERE expires_at < ? OR revoked = 1`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune refresh tokens: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (s *AccountService) scanAccount(row *sql.Row) (*Account, error) {
	var account Account
	var lastLogin sql.NullTime

	err := row.Scan(&account.UID, &account.Email, &account.PasswordHash,
		&account.FullName, &account.Role, &account.CreatedAt, &lastLogin)
	if err == sql.ErrNoRows {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query account: %w", err)
	}
	if lastLogin.Valid {
		account.LastLoginAt = &lastLogin.Time
	}
	return &account, nil
}

// nextRole makes the first account on a fresh install the operator; every
// account after that is a regular user.
func (s *AccountService) nextRole() string {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM accounts`).Scan(&count); err != nil {
		log.Printf("⚠️ [AUTH] Failed to count accounts for role assignment: %v", err)
		return "user"
	}
	if count == 0 {
		return "admin"
	}
	return "user"
}

// issueTokens generates a JWT pair and persists the refresh token digest.
func (s *AccountService) issueTokens(account *Account) (*TokenPair, error) {
	accessToken, refreshToken, err := s.jwtAuth.GenerateTokens(account.UID, account.Email, account.Role)
	if err != nil {
		return nil, fmt.Errorf("failed to generate tokens: %w", err)
	}

	now := time.Now().UTC()
	_, err = s.db.Exec(
		`INSERT INTO refresh_tokens (token, uid, expires_at, created_at, revoked) VALUES (?, ?, ?, ?, 0)`,
		tokenDigest(refreshToken), account.UID, now.Add(s.jwtAuth.RefreshTokenExpiry), now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}

	return &TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

// seedProfile mirrors the account into the Mongo profile collection. A
// failure is logged and tolerated; the next login retries.
func (s *AccountService) seedProfile(account *Account) {
	if s.profiles == nil {
		return
	}
	if _, err := s.profiles.EnsureProfile(account.UID, account.Email, account.FullName); err != nil {
		log.Printf("⚠️ [AUTH] Failed to seed profile for %s: %v", account.UID, err)
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 {
		return false
	}
	return !strings.ContainsAny(email, " \t\n")
}

// tokenDigest is what actually lands in the refresh_tokens table.
func tokenDigest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
