package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/matheus3301/relay/internal/domain"
)

var errNoToken = errors.New("missing bearer token")

// Verifier checks HMAC-signed identity tokens minted by the identity provider.
type Verifier struct {
	secret []byte
	issuer string
}

// NewVerifier returns a verifier for HS256/384/512 tokens. An empty issuer
// accepts any iss claim.
func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer}
}

// Claims are the identity provider's token claims.
type Claims struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Picture string `json:"picture"`
	jwt.RegisteredClaims
}

// Verify parses raw and returns the identity it asserts.
func (v *Verifier) Verify(raw string) (domain.Identity, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("invalid token: %w", err)
	}
	if claims.Subject == "" {
		return domain.Identity{}, errors.New("invalid token: no subject")
	}
	return domain.Identity{
		ExternalID:  claims.Subject,
		DisplayName: claims.Name,
		Email:       claims.Email,
		AvatarRef:   claims.Picture,
	}, nil
}

// bearerToken reads the Authorization header, falling back to the
// access_token query parameter browsers use for WebSocket upgrades.
func bearerToken(r *http.Request) (string, error) {
	if raw := r.Header.Get("Authorization"); raw != "" {
		if len(raw) < 7 || !strings.EqualFold(raw[:7], "bearer ") {
			return "", errNoToken
		}
		return strings.TrimSpace(raw[7:]), nil
	}
	if tok := r.URL.Query().Get("access_token"); tok != "" {
		return tok, nil
	}
	return "", errNoToken
}
