package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/crypto/argon2"

	"github.com/Parzival4o4/drawing-app/models"
	"github.com/Parzival4o4/drawing-app/store"
)

// argon2id parameters, encoded into every hash so they can change later
// without invalidating stored credentials.
const (
	argonMemory      = 64 * 1024
	argonIterations  = 3
	argonParallelism = 4
	argonSaltLen     = 16
	argonKeyLen      = 32
)

// HashPassword returns a PHC-style argon2id string.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password is required")
	}
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	key := argon2.IDKey([]byte(password), salt, argonIterations, argonMemory, argonParallelism, argonKeyLen)
	enc := base64.RawStdEncoding
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemory, argonIterations, argonParallelism,
		enc.EncodeToString(salt), enc.EncodeToString(key)), nil
}

// VerifyPassword checks a password against a stored PHC argon2id string.
func VerifyPassword(password, encoded string) (bool, error) {
	if password == "" || encoded == "" {
		return false, nil
	}
	var version int
	var memory, iterations uint32
	var parallelism uint8
	var saltB64, keyB64 string
	n, err := fmt.Sscanf(encoded, "$argon2id$v=%d$m=%d,t=%d,p=%d$%s",
		&version, &memory, &iterations, &parallelism, &saltB64)
	if err != nil || n != 5 || version != argon2.Version {
		return false, errors.New("invalid password hash format")
	}
	// Sscanf's %s is greedy; split the trailing salt$key pair by hand.
	for i := range saltB64 {
		if saltB64[i] == '$' {
			keyB64 = saltB64[i+1:]
			saltB64 = saltB64[:i]
			break
		}
	}
	if keyB64 == "" {
		return false, errors.New("invalid password hash format")
	}
	enc := base64.RawStdEncoding
	salt, err := enc.DecodeString(saltB64)
	if err != nil {
		return false, errors.New("invalid password hash salt")
	}
	want, err := enc.DecodeString(keyB64)
	if err != nil {
		return false, errors.New("invalid password hash key")
	}
	got := argon2.IDKey([]byte(password), salt, iterations, memory, parallelism, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

// Register creates a user, hashes the password, and logs the user in.
// A duplicate email surfaces as store.ErrConflict.
func (s *Service) Register(ctx context.Context, email, password, displayName string) (models.User, string, error) {
	if email == "" || password == "" || displayName == "" {
		return models.User{}, "", errors.New("email, password, and display name are required")
	}
	hash, err := HashPassword(password)
	if err != nil {
		return models.User{}, "", fmt.Errorf("hash password: %w", err)
	}
	user, err := s.Store.CreateUser(ctx, email, hash, displayName)
	if err != nil {
		return models.User{}, "", err
	}
	_, token, err := s.IssueToken(ctx, user.UserID)
	if err != nil {
		return models.User{}, "", err
	}
	log.Printf("User %s registered (id %d)", email, user.UserID)
	return user, token, nil
}

// Login verifies credentials and issues a token. Unknown email and wrong
// password are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (models.User, string, error) {
	user, err := s.Store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrItemNotFound) {
			return models.User{}, "", ErrWrongCredentials
		}
		return models.User{}, "", err
	}
	ok, err := VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return models.User{}, "", err
	}
	if !ok {
		return models.User{}, "", ErrWrongCredentials
	}
	_, token, err := s.IssueToken(ctx, user.UserID)
	if err != nil {
		return models.User{}, "", err
	}
	return user, token, nil
}

// UpdateProfile changes email and/or display name and re-issues claims so the
// cookie and any live connections carry the new identity. Empty arguments keep
// the current value.
func (s *Service) UpdateProfile(ctx context.Context, claims Claims, email, displayName string) (Claims, string, error) {
	if email == "" {
		email = claims.Email
	}
	if displayName == "" {
		displayName = claims.DisplayName
	}
	if err := s.Store.UpdateUserProfile(ctx, claims.UserID, email, displayName); err != nil {
		return Claims{}, "", err
	}
	claims.Email = email
	claims.DisplayName = displayName
	return s.ReissueToken(ctx, claims)
}

// Authenticate runs the gate steps for one request: verify the token, and when
// the soft timer elapsed or a refresh mark exists, refresh the claims inline.
// The returned token is non-empty only when a refresh happened; the caller
// re-sets the cookie then.
func (s *Service) Authenticate(ctx context.Context, tokenString string) (Claims, string, error) {
	claims, err := s.VerifyToken(tokenString)
	if err != nil {
		return Claims{}, "", err
	}
	return s.refreshIfNeeded(ctx, claims, false)
}

// RefreshConnectionClaims is the gate for permission-sensitive actions on a
// long-lived connection: the claims live on the connection, not in a token.
// Past the hard expiry it fails with ErrHardExpired and the connection should
// be closed.
func (s *Service) RefreshConnectionClaims(ctx context.Context, claims Claims) (Claims, bool, error) {
	if claims.HardExpired(time.Now()) {
		return Claims{}, false, ErrHardExpired
	}
	fresh, token, err := s.refreshIfNeeded(ctx, claims, true)
	return fresh, err == nil && token != "", err
}

func (s *Service) refreshIfNeeded(ctx context.Context, claims Claims, connection bool) (Claims, string, error) {
	now := time.Now()
	softElapsed := now.Unix() >= claims.SoftReissueAt
	marked := s.RefreshList.NeedsRefresh(claims.UserID, claims.issuedAt())
	if !softElapsed && !marked {
		return claims, "", nil
	}

	fresh, token, err := s.ReissueToken(ctx, claims)
	if err != nil {
		log.Printf("Failed to refresh claims for user %d: %v", claims.UserID, err)
		return Claims{}, "", err
	}
	// Clear up to the moment before the permissions were refetched: the token's
	// issued-at is truncated to whole seconds and would leave a later mark of
	// the same second in place.
	s.RefreshList.Clear(claims.UserID, now)
	if connection {
		log.Printf("Claims refreshed for user %d (connection, soft: %v, marked: %v)", claims.UserID, softElapsed, marked)
	}
	return fresh, token, nil
}
