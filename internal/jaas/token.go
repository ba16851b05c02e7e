package jaas

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/dukerupert/meetings/internal/clock"
)

const (
	// TokenTTL is how long an issued token stays valid.
	TokenTTL = 2 * time.Hour
	// notBeforeSkew backdates nbf to tolerate clock drift on the JaaS side.
	notBeforeSkew = 10 * time.Second
)

var (
	// ErrMissingCredential means the app id, key id or private key is empty.
	ErrMissingCredential = errors.New("jaas credential incomplete")
	// ErrSigning means the private key could not be parsed or used.
	ErrSigning = errors.New("jaas token signing failed")
)

// Credential is the per-meeting JaaS account configuration.
type Credential struct {
	AppID      string `json:"app_id"`
	KeyID      string `json:"key_id"`
	PrivateKey string `json:"-"`
}

// Complete reports whether every field needed for signing is set.
func (c Credential) Complete() bool {
	return c.AppID != "" && c.KeyID != "" && c.PrivateKey != ""
}

// User describes the participant the token is issued to.
type User struct {
	Name   string
	Email  string
	Avatar string
	ID     string
}

// Token is a signed JaaS access token.
type Token struct {
	Token     string    `json:"token"`
	AppID     string    `json:"app_id"`
	Room      string    `json:"room"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Issuer signs JaaS tokens. It holds no per-request state.
type Issuer struct {
	clock     clock.Clock
	sessionID func() string
	parseKey  func([]byte) (*rsa.PrivateKey, error)
}

type Option func(*Issuer)

func WithClock(c clock.Clock) Option {
	return func(i *Issuer) {
		i.clock = c
	}
}

// WithSessionID replaces the generator used for users without an id.
func WithSessionID(fn func() string) Option {
	return func(i *Issuer) {
		i.sessionID = fn
	}
}

func NewIssuer(opts ...Option) *Issuer {
	i := &Issuer{
		clock:     clock.Real{},
		sessionID: uuid.NewString,
		parseKey:  jwt.ParseRSAPrivateKeyFromPEM,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Issue signs an RS256 token granting user access to the JaaS tenant in cred.
func (i *Issuer) Issue(cred Credential, room string, user User) (Token, error) {
	if !cred.Complete() {
		return Token{}, ErrMissingCredential
	}

	key, err := i.parseKey([]byte(FormatPEMKey(cred.PrivateKey)))
	if err != nil {
		return Token{}, fmt.Errorf("%w: parse private key: %w", ErrSigning, err)
	}

	now := i.clock.Now()
	exp := now.Add(TokenTTL)

	if user.Name == "" {
		user.Name = "Guest"
	}
	if user.ID == "" {
		user.ID = i.sessionID()
	}

	// MapClaims keeps aud as a plain string, which JaaS expects.
	claims := jwt.MapClaims{
		"aud":  "jitsi",
		"iss":  "chat",
		"sub":  cred.AppID,
		"room": "*",
		"exp":  exp.Unix(),
		"nbf":  now.Add(-notBeforeSkew).Unix(),
		"context": map[string]any{
			"user": map[string]any{
				"moderator": "true",
				"name":      user.Name,
				"email":     user.Email,
				"avatar":    user.Avatar,
				"id":        user.ID,
			},
			"features": map[string]any{
				"livestreaming": false,
				"recording":     false,
				"transcription": false,
				"outbound-call": false,
			},
		},
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = cred.AppID + "/" + keySegment(cred.KeyID)

	signed, err := tok.SignedString(key)
	if err != nil {
		return Token{}, fmt.Errorf("%w: %w", ErrSigning, err)
	}

	return Token{
		Token:     signed,
		AppID:     cred.AppID,
		Room:      room,
		ExpiresAt: time.Unix(exp.Unix(), 0).UTC(),
	}, nil
}

// keySegment keeps only the part after the last "/" of a console key id.
func keySegment(keyID string) string {
	if i := strings.LastIndexByte(keyID, '/'); i >= 0 {
		return keyID[i+1:]
	}
	return keyID
}
