// Package auth verifies bearer tokens on the user and admin API.
package auth

import (
	"context"
	"crypto"
	"crypto/hmac"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"influencegen/internal/config"
)

// Roles understood by the API.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpired      = errors.New("token expired")
)

type Principal struct {
	Subject string
	Role    string
}

func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

// Verifier validates bearer tokens. Modes: dev ("subject:role", no
// signature), hmac (HS256), jwks (RS256 keys fetched from a JWKS URL).
type Verifier struct {
	mode         string
	hmacSecret   []byte
	jwksURL      string
	subjectClaim string
	roleClaim    string
	now          func() time.Time

	http      *http.Client
	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	lastFetch time.Time
	cacheTTL  time.Duration
}

func NewVerifier(cfg config.AuthConfig) *Verifier {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "dev"
	}
	return &Verifier{
		mode:         mode,
		hmacSecret:   []byte(cfg.HMACSecret),
		jwksURL:      cfg.JWKSURL,
		subjectClaim: orDefault(cfg.SubjectClaim, "sub"),
		roleClaim:    orDefault(cfg.RoleClaim, "role"),
		now:          time.Now,
		http:         &http.Client{Timeout: 5 * time.Second},
		cacheTTL:     10 * time.Minute,
	}
}

func (v *Verifier) Mode() string { return v.mode }

func (v *Verifier) Verify(ctx context.Context, token string) (Principal, error) {
	if v.mode == "dev" {
		sub, role, ok := strings.Cut(token, ":")
		if !ok || sub == "" || role == "" {
			return Principal{}, fmt.Errorf("%w: expected subject:role", ErrInvalidToken)
		}
		return Principal{Subject: sub, Role: strings.ToLower(role)}, nil
	}

	segs := strings.Split(token, ".")
	if len(segs) != 3 {
		return Principal{}, fmt.Errorf("%w: malformed JWT", ErrInvalidToken)
	}
	var hdr struct {
		Alg string `json:"alg"`
		Kid string `json:"kid"`
	}
	if err := decodeSegment(segs[0], &hdr); err != nil {
		return Principal{}, err
	}
	var claims map[string]any
	if err := decodeSegment(segs[1], &claims); err != nil {
		return Principal{}, err
	}
	sig, err := base64.RawURLEncoding.DecodeString(segs[2])
	if err != nil {
		return Principal{}, fmt.Errorf("%w: signature encoding", ErrInvalidToken)
	}
	if err := v.verifySignature(ctx, hdr.Alg, hdr.Kid, []byte(segs[0]+"."+segs[1]), sig); err != nil {
		return Principal{}, err
	}

	if exp, ok := claims["exp"].(float64); ok && v.now().Unix() >= int64(exp) {
		return Principal{}, ErrExpired
	}
	sub, _ := claims[v.subjectClaim].(string)
	if sub == "" {
		return Principal{}, fmt.Errorf("%w: missing %s claim", ErrInvalidToken, v.subjectClaim)
	}
	role, _ := claims[v.roleClaim].(string)
	if role == "" {
		role = RoleUser
	}
	return Principal{Subject: sub, Role: strings.ToLower(role)}, nil
}

func (v *Verifier) verifySignature(ctx context.Context, alg, kid string, input, sig []byte) error {
	switch v.mode {
	case "hmac":
		if alg != "HS256" {
			return fmt.Errorf("%w: unsupported alg %q", ErrInvalidToken, alg)
		}
		mac := hmac.New(sha256.New, v.hmacSecret)
		mac.Write(input)
		if !hmac.Equal(mac.Sum(nil), sig) {
			return fmt.Errorf("%w: bad signature", ErrInvalidToken)
		}
		return nil
	case "jwks":
		if alg != "RS256" {
			return fmt.Errorf("%w: unsupported alg %q", ErrInvalidToken, alg)
		}
		pub, err := v.publicKey(ctx, kid)
		if err != nil {
			return err
		}
		h := sha256.Sum256(input)
		if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, h[:], sig); err != nil {
			return fmt.Errorf("%w: bad signature", ErrInvalidToken)
		}
		return nil
	default:
		return fmt.Errorf("unsupported auth mode %q", v.mode)
	}
}

func decodeSegment(seg string, dst any) error {
	b, err := base64.RawURLEncoding.DecodeString(seg)
	if err != nil {
		return fmt.Errorf("%w: segment encoding", ErrInvalidToken)
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return fmt.Errorf("%w: segment json", ErrInvalidToken)
	}
	return nil
}

// publicKey returns the RSA key for kid, refreshing the JWKS when the cache
// is stale or the kid is unknown.
func (v *Verifier) publicKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	v.mu.RLock()
	k, ok := v.keys[kid]
	stale := time.Since(v.lastFetch) > v.cacheTTL
	v.mu.RUnlock()
	if ok && !stale {
		return k, nil
	}
	if err := v.fetchJWKS(ctx); err != nil {
		return nil, err
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	if k, ok := v.keys[kid]; ok {
		return k, nil
	}
	return nil, fmt.Errorf("%w: kid %q not found in JWKS", ErrInvalidToken, kid)
}

func (v *Verifier) fetchJWKS(ctx context.Context) error {
	if v.jwksURL == "" {
		return errors.New("jwks url not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.jwksURL, nil)
	if err != nil {
		return err
	}
	resp, err := v.http.Do(req)
	if err != nil {
		return fmt.Errorf("fetch jwks: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch jwks: status %d", resp.StatusCode)
	}
	var set struct {
		Keys []struct {
			Kty string `json:"kty"`
			Kid string `json:"kid"`
			N   string `json:"n"`
			E   string `json:"e"`
		} `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return fmt.Errorf("decode jwks: %w", err)
	}
	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, k := range set.Keys {
		if !strings.EqualFold(k.Kty, "RSA") {
			continue
		}
		n, err := base64.RawURLEncoding.DecodeString(k.N)
		if err != nil {
			continue
		}
		e, err := base64.RawURLEncoding.DecodeString(k.E)
		if err != nil {
			continue
		}
		keys[k.Kid] = &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: int(new(big.Int).SetBytes(e).Int64())}
	}
	v.mu.Lock()
	v.keys = keys
	v.lastFetch = time.Now()
	v.mu.Unlock()
	return nil
}

func orDefault(s, d string) string {
	if s == "" {
		return d
	}
	return s
}
