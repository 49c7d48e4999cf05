// Package params stores process-wide system parameters (shared secrets,
// integration URLs) provisioned by administrators.
package params

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

// Well-known parameter names. Use Key to qualify them with a namespace.
const (
	CallbackAuthToken = "callback_auth_token"
	N8NWebhookURL     = "n8n_ai_webhook_url"
	N8NAuthToken      = "n8n_ai_auth_token"
)

var ErrInvalidParam = errors.New("invalid parameter")

// Param is a stored key/value pair.
type Param struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Reader is the read-only view handed to components that only consume
// parameters. ok is false when the key has never been set.
type Reader interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
}

// Store is the full read/write parameter store.
type Store interface {
	Reader
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) ([]Param, error)
}

// Key qualifies name with namespace, e.g. "influence_gen.callback_auth_token".
func Key(namespace, name string) string {
	return namespace + "." + name
}

func validate(key, value string) error {
	if strings.TrimSpace(key) == "" {
		return errors.Join(ErrInvalidParam, errors.New("empty key"))
	}
	if !utf8.ValidString(key) || !utf8.ValidString(value) {
		return errors.Join(ErrInvalidParam, errors.New("key and value must be valid UTF-8"))
	}
	return nil
}

var secretHints = []string{"token", "secret", "password", "key"}

// IsSecret reports whether key names a credential whose value must not be displayed.
func IsSecret(key string) bool {
	k := strings.ToLower(key)
	for _, h := range secretHints {
		if strings.Contains(k, h) {
			return true
		}
	}
	return false
}

// Mask hides secret values. Non-secret values are returned unchanged.
func Mask(p Param) Param {
	if IsSecret(p.Key) && p.Value != "" {
		p.Value = "***"
	}
	return p
}
