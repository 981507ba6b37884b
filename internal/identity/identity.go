// Package identity verifies the LINE ID token a LIFF client presents when it
// opens a wizard session.
package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

const (
	LineIssuer = "https://access.line.me"

	MockUserID  = "MOCK_USER_ID_FOR_LOCAL_DEV"
	MockIDToken = "MOCK_ID_TOKEN_FOR_LOCAL_DEV"
)

var (
	ErrMissingToken = errors.New("missing id token")
	ErrInvalidToken = errors.New("invalid or expired id token")
)

type Identity struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name,omitempty"`
	IDToken     string    `json:"-"`
	ExpiresAt   time.Time `json:"expires_at,omitzero"`
}

// Expired reports whether the ID token has lapsed at now. A zero ExpiresAt
// never expires.
func (i Identity) Expired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && !now.Before(i.ExpiresAt)
}

type Verifier interface {
	Verify(ctx context.Context, idToken string) (Identity, error)
}

type lineClaims struct {
	jwtlib.RegisteredClaims
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
}

// LineVerifier checks HS256 ID tokens signed with the channel secret.
type LineVerifier struct {
	channelID string
	secret    []byte
	leeway    time.Duration
}

func NewLineVerifier(channelID string, channelSecret string) *LineVerifier {
	return &LineVerifier{
		channelID: strings.TrimSpace(channelID),
		secret:    []byte(channelSecret),
		leeway:    30 * time.Second,
	}
}

func (v *LineVerifier) Verify(_ context.Context, idToken string) (Identity, error) {
	idToken = strings.TrimSpace(idToken)
	if idToken == "" {
		return Identity{}, ErrMissingToken
	}
	if len(v.secret) == 0 {
		return Identity{}, ErrInvalidToken
	}

	claims := &lineClaims{}
	opts := []jwtlib.ParserOption{
		jwtlib.WithValidMethods([]string{"HS256"}),
		jwtlib.WithIssuer(LineIssuer),
		jwtlib.WithExpirationRequired(),
		jwtlib.WithLeeway(v.leeway),
	}
	if v.channelID != "" {
		opts = append(opts, jwtlib.WithAudience(v.channelID))
	}
	token, err := jwtlib.ParseWithClaims(idToken, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return v.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return Identity{}, ErrInvalidToken
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return Identity{}, ErrInvalidToken
	}
	who := Identity{UserID: sub, DisplayName: claims.Name, IDToken: idToken}
	if claims.ExpiresAt != nil {
		who.ExpiresAt = claims.ExpiresAt.Time
	}
	return who, nil
}

// LocalVerifier skips the handshake and hands out fixed placeholder values.
type LocalVerifier struct{}

func (LocalVerifier) Verify(_ context.Context, _ string) (Identity, error) {
	return Identity{UserID: MockUserID, DisplayName: "Local Developer", IDToken: MockIDToken}, nil
}

// IsMock reports whether id came from LocalVerifier.
func IsMock(id Identity) bool {
	return id.UserID == MockUserID
}
