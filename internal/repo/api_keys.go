package repo

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"sitelog/internal/domain"
)

// API keys have the form <user id>.<secret>. Only a bcrypt hash of the whole
// key is stored; the user id prefix lets lookups avoid scanning every hash.

var ErrInvalidAPIKey = errors.New("invalid api key")

// GenerateAPIKey returns a fresh random key bound to userID.
func GenerateAPIKey(userID string) (string, error) {
	if strings.TrimSpace(userID) == "" || strings.Contains(userID, ".") {
		return "", errors.New("api key user id must be non-empty and contain no dots")
	}
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return userID + "." + hex.EncodeToString(buf), nil
}

// HashAPIKey returns a bcrypt hash for the provided key.
func HashAPIKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(strings.TrimSpace(key)), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func splitAPIKey(key string) (string, bool) {
	key = strings.TrimSpace(key)
	idx := strings.LastIndex(key, ".")
	if idx <= 0 || idx == len(key)-1 {
		return "", false
	}
	return key[:idx], true
}

// SetUserAPIKey stores the hash of key for the user, replacing any previous key.
func (r Repo) SetUserAPIKey(ctx context.Context, userID, key string) error {
	owner, ok := splitAPIKey(key)
	if !ok || owner != userID {
		return ErrInvalidAPIKey
	}
	hash, err := HashAPIKey(key)
	if err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx, `UPDATE users SET api_key_hash=? WHERE id=?`, hash, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetUserByAPIKey resolves the owner of a plaintext API key.
func (r Repo) GetUserByAPIKey(ctx context.Context, key string) (domain.User, error) {
	userID, ok := splitAPIKey(key)
	if !ok {
		return domain.User{}, ErrInvalidAPIKey
	}
	var u domain.User
	var hash sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,role,created_at,api_key_hash FROM users WHERE id=?`, userID).
		Scan(&u.ID, &u.Name, &u.Role, &u.CreatedAt, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, ErrInvalidAPIKey
	}
	if err != nil {
		return domain.User{}, err
	}
	if !hash.Valid || bcrypt.CompareHashAndPassword([]byte(hash.String), []byte(strings.TrimSpace(key))) != nil {
		return domain.User{}, ErrInvalidAPIKey
	}
	return u, nil
}
