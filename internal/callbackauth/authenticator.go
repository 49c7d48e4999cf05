// Package callbackauth decides whether an inbound callback from the external
// orchestration service can be trusted.
//
// The caller supplies the request headers; the authenticator looks up the
// pre-shared secret through a read-only parameter accessor and compares it to
// the X-<System>-Signature header in constant time. Every failure resolves to
// false plus a log entry. HTTP callers reject every non-OK outcome the same way.
package callbackauth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"influencegen/internal/log"
	"influencegen/internal/params"
)

const (
	DefaultNamespace = "influence_gen"
	DefaultSystem    = "N8N"

	// MaxDiagnosticPrefix bounds how many characters of a rejected token may be logged.
	MaxDiagnosticPrefix = 5
)

// Outcome classifies a verification. Only OutcomeOK authenticates.
type Outcome string

const (
	OutcomeOK                Outcome = "ok"
	OutcomeMisconfigured     Outcome = "misconfigured"
	OutcomeConfigUnavailable Outcome = "config_unavailable"
	OutcomeMissingCredential Outcome = "missing_credential"
	OutcomeEncodingError     Outcome = "encoding_error"
	OutcomeMismatch          Outcome = "mismatch"
	OutcomeInternalError     Outcome = "internal_error"
)

// Authenticator is safe for concurrent use. It holds no mutable state.
type Authenticator struct {
	params    params.Reader
	namespace string
	system    string
	prefixLen int
	logger    zerolog.Logger
	observe   func(Outcome)

	paramKey string
	header   string
}

type Option func(*Authenticator)

// WithNamespace sets the parameter namespace (default "influence_gen").
func WithNamespace(ns string) Option { return func(a *Authenticator) { a.namespace = ns } }

// WithSystem sets the external system name used in the header, X-<System>-Signature.
func WithSystem(name string) Option { return func(a *Authenticator) { a.system = name } }

// WithDiagnosticPrefix sets how many leading characters of a rejected token are
// logged. Values are clamped to [0, MaxDiagnosticPrefix].
func WithDiagnosticPrefix(n int) Option {
	return func(a *Authenticator) {
		switch {
		case n < 0:
			n = 0
		case n > MaxDiagnosticPrefix:
			n = MaxDiagnosticPrefix
		}
		a.prefixLen = n
	}
}

func WithLogger(l zerolog.Logger) Option { return func(a *Authenticator) { a.logger = l } }

// WithObserver registers fn to be called with every outcome, e.g. for metrics.
func WithObserver(fn func(Outcome)) Option { return func(a *Authenticator) { a.observe = fn } }

// New returns an Authenticator reading the shared secret from reader.
func New(reader params.Reader, opts ...Option) *Authenticator {
	a := &Authenticator{
		params:    reader,
		namespace: DefaultNamespace,
		system:    DefaultSystem,
		prefixLen: MaxDiagnosticPrefix,
		logger:    log.WithComponent("callbackauth"),
	}
	for _, o := range opts {
		o(a)
	}
	a.paramKey = params.Key(a.namespace, params.CallbackAuthToken)
	a.header = http.CanonicalHeaderKey("X-" + a.system + "-Signature")
	return a
}

// ParamKey is the configuration key holding the expected secret.
func (a *Authenticator) ParamKey() string { return a.paramKey }

// Header is the request header carrying the provided token.
func (a *Authenticator) Header() string { return a.header }

// Verify reports whether r carries the configured shared secret.
func (a *Authenticator) Verify(r *http.Request) bool {
	return a.Check(r) == OutcomeOK
}

// Check classifies r. A nil request is treated as one without headers.
func (a *Authenticator) Check(r *http.Request) Outcome {
	if r == nil {
		return a.CheckHeader(context.Background(), nil)
	}
	return a.CheckHeader(r.Context(), r.Header)
}

// CheckHeader classifies a header set. Lookups on h are case-insensitive.
func (a *Authenticator) CheckHeader(ctx context.Context, h http.Header) (out Outcome) {
	defer func() {
		if rec := recover(); rec != nil {
			a.logger.Error().
				Interface("panic", rec).
				Msg("callback authentication failed: unexpected error during verification")
			out = OutcomeInternalError
		}
		if a.observe != nil {
			a.observe(out)
		}
	}()
	return a.check(ctx, h)
}

func (a *Authenticator) check(ctx context.Context, h http.Header) Outcome {
	if a.params == nil {
		a.critical().Str(log.FieldParam, a.paramKey).
			Msg("callback authentication failed: no parameter source configured; cannot authenticate callbacks")
		return OutcomeMisconfigured
	}
	expected, ok, err := a.params.Get(ctx, a.paramKey)
	if err != nil {
		a.logger.Error().Err(err).Str(log.FieldParam, a.paramKey).
			Msg("callback authentication failed: could not read the shared secret")
		return OutcomeConfigUnavailable
	}
	if !ok || expected == "" {
		a.critical().Str(log.FieldParam, a.paramKey).
			Msg("callback authentication failed: system parameter is not configured; cannot authenticate callbacks")
		return OutcomeMisconfigured
	}

	provided := h.Get(a.header)
	if provided == "" {
		a.logger.Warn().Str(log.FieldHeader, a.header).
			Msg("callback authentication failed: missing signature header")
		return OutcomeMissingCredential
	}

	expectedBytes, ok1 := tokenBytes(expected)
	providedBytes, ok2 := tokenBytes(provided)
	if !ok1 || !ok2 {
		a.logger.Error().Str(log.FieldHeader, a.header).
			Msg("callback authentication failed: tokens are not valid UTF-8 strings")
		return OutcomeEncodingError
	}

	if !tokensEqual(expectedBytes, providedBytes) {
		a.logger.Warn().
			Str(log.FieldHeader, a.header).
			Str("token_prefix", diagnosticPrefix(provided, a.prefixLen)+"...").
			Msg("callback authentication failed: invalid token")
		return OutcomeMismatch
	}
	a.logger.Info().Msg("callback authentication successful")
	return OutcomeOK
}

// critical logs at the highest severity without terminating the process.
func (a *Authenticator) critical() *zerolog.Event {
	return a.logger.WithLevel(zerolog.FatalLevel)
}

func tokenBytes(s string) ([]byte, bool) {
	if !utf8.ValidString(s) {
		return nil, false
	}
	return []byte(s), true
}

// tokensEqual compares SHA-256 digests so the constant-time comparison always
// runs over 32 bytes, whatever the input lengths.
func tokensEqual(expected, provided []byte) bool {
	e := sha256.Sum256(expected)
	p := sha256.Sum256(provided)
	return subtle.ConstantTimeCompare(e[:], p[:]) == 1
}

// diagnosticPrefix returns at most n leading runes of token, and always
// fewer runes than the token has.
func diagnosticPrefix(token string, n int) string {
	if runes := utf8.RuneCountInString(token); n >= runes {
		n = runes - 1
	}
	if n <= 0 {
		return ""
	}
	i := 0
	for pos := range token {
		if i == n {
			return token[:pos]
		}
		i++
	}
	return token
}
