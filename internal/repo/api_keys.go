package repo

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"propcheck/internal/domain"
)

const keyPrefix = "pfc_"

// HashAPIKey returns the SHA-256 hex digest stored in place of the raw key.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(key)))
	return hex.EncodeToString(sum[:])
}

// GenerateSecret returns a URL-safe random token suitable for API keys and
// webhook secrets.
func GenerateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return keyPrefix + base64.RawURLEncoding.EncodeToString(buf), nil
}

// CreateAPIKey issues a new tenant credential. The plaintext key and webhook
// secret are returned exactly once; only the key hash is persisted.
func (r Repo) CreateAPIKey(ctx context.Context, name, company, ownerEmail string) (plainKey string, key domain.APIKey, err error) {
	if strings.TrimSpace(name) == "" {
		return "", key, errors.New("name required")
	}
	if strings.TrimSpace(ownerEmail) == "" {
		return "", key, errors.New("owner email required")
	}
	plainKey, err = GenerateSecret()
	if err != nil {
		return "", key, err
	}
	secret, err := GenerateSecret()
	if err != nil {
		return "", key, err
	}
	key = domain.APIKey{
		KeyHash:       HashAPIKey(plainKey),
		Name:          name,
		Company:       company,
		OwnerEmail:    ownerEmail,
		WebhookSecret: secret,
		Active:        true,
		CreatedAt:     time.Now().UTC(),
	}
	res, err := r.DB.ExecContext(ctx,
		`INSERT INTO api_keys(key_hash,name,company,owner_email,webhook_secret,active,created_at) VALUES (?,?,?,?,?,1,?)`,
		key.KeyHash, key.Name, nullable(key.Company), key.OwnerEmail, key.WebhookSecret,
		key.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return "", domain.APIKey{}, fmt.Errorf("insert api key: %w", err)
	}
	key.ID, _ = res.LastInsertId()
	return plainKey, key, nil
}

const apiKeyColumns = `id,key_hash,name,COALESCE(company,''),owner_email,webhook_secret,active,created_at`

func scanAPIKey(scan func(...any) error) (domain.APIKey, error) {
	var k domain.APIKey
	var active int
	var createdAt string
	err := scan(&k.ID, &k.KeyHash, &k.Name, &k.Company, &k.OwnerEmail, &k.WebhookSecret, &active, &createdAt)
	if err == sql.ErrNoRows {
		return k, ErrNotFound
	}
	if err != nil {
		return k, err
	}
	k.Active = active != 0
	k.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return k, nil
}

// GetAPIKeyByHash returns the active key matching the hashed credential.
func (r Repo) GetAPIKeyByHash(ctx context.Context, hash string) (domain.APIKey, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE key_hash=? AND active=1 LIMIT 1`, hash)
	return scanAPIKey(row.Scan)
}

// ListAPIKeys returns active keys, optionally filtered by owner email.
func (r Repo) ListAPIKeys(ctx context.Context, ownerEmail string) ([]domain.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE active=1`
	var args []any
	if ownerEmail != "" {
		query += ` AND owner_email=?`
		args = append(args, ownerEmail)
	}
	query += ` ORDER BY created_at DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []domain.APIKey
	for rows.Next() {
		k, err := scanAPIKey(rows.Scan)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// RevokeAPIKey deactivates a key; revoked keys no longer authenticate but
// their jobs remain queryable by other keys of the same owner.
func (r Repo) RevokeAPIKey(ctx context.Context, id int64) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE api_keys SET active=0 WHERE id=? AND active=1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// WebhookSecret implements domain.SecretSource: it resolves the signing
// secret of the owner's most recently issued active key.
func (r Repo) WebhookSecret(ctx context.Context, owner string) (string, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT webhook_secret FROM api_keys WHERE owner_email=? AND active=1 ORDER BY created_at DESC LIMIT 1`, owner)
	var secret string
	err := row.Scan(&secret)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	if secret == "" {
		return "", ErrNotFound
	}
	return secret, nil
}
