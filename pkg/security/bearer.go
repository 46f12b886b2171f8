package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"strings"

	oerrors "github.com/ArcaneAIAutomation/opspilot/pkg/errors"
	"github.com/ArcaneAIAutomation/opspilot/pkg/scheduler"
)

// Role is what a verified caller is allowed to do.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operator"
	RoleViewer   Role = "viewer"
)

// ValidRole reports whether r is one of the known roles.
func ValidRole(r Role) bool {
	return r == RoleAdmin || r == RoleOperator || r == RoleViewer
}

// Claims is the payload of a bearer token. Subject, Role and Issuer
// are required; ExpiresAt of zero means the token does not expire.
type Claims struct {
	Subject   string `json:"sub"`
	Role      Role   `json:"role"`
	IssuedAt  int64  `json:"iat"`
	Issuer    string `json:"iss"`
	ExpiresAt int64  `json:"exp,omitempty"`
}

// TokenVerifier signs and verifies HMAC-SHA256 bearer tokens of the
// form base64url(header).base64url(claims).base64url(signature).
type TokenVerifier struct {
	key    []byte
	issuer string
	clock  scheduler.Clock
}

// NewTokenVerifier creates a verifier bound to the configured issuer.
func NewTokenVerifier(secret, issuer string, clock scheduler.Clock) *TokenVerifier {
	if clock == nil {
		clock = scheduler.System
	}
	return &TokenVerifier{key: DeriveKey(secret), issuer: issuer, clock: clock}
}

var tokenHeader = base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))

// Sign issues a token for the given claims. IssuedAt and Issuer are
// filled in when unset.
func (v *TokenVerifier) Sign(claims Claims) (string, error) {
	if claims.Subject == "" {
		return "", oerrors.Securityf("token subject is required")
	}
	if !ValidRole(claims.Role) {
		return "", oerrors.Securityf("unknown role %q", claims.Role)
	}
	if claims.Issuer == "" {
		claims.Issuer = v.issuer
	}
	if claims.IssuedAt == 0 {
		claims.IssuedAt = v.clock.Now().Unix()
	}

	payload, err := json.Marshal(claims)
	if err != nil {
		return "", oerrors.Securityf("failed to encode claims: %v", err)
	}

	signing := tokenHeader + "." + base64.RawURLEncoding.EncodeToString(payload)
	return signing + "." + base64.RawURLEncoding.EncodeToString(v.sign(signing)), nil
}

// Verify checks the signature, required claims, role, issuer, and
// expiry of a token and returns its claims.
func (v *TokenVerifier) Verify(token string) (*Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, oerrors.Securityf("malformed bearer token")
	}

	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, oerrors.Securityf("malformed token signature")
	}
	if !hmac.Equal(sig, v.sign(parts[0]+"."+parts[1])) {
		return nil, oerrors.Securityf("invalid token signature")
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, oerrors.Securityf("malformed token payload")
	}
	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, oerrors.Securityf("malformed token claims")
	}

	if claims.Subject == "" {
		return nil, oerrors.Securityf("token missing subject claim")
	}
	if !ValidRole(claims.Role) {
		return nil, oerrors.Securityf("token role %q is not recognized", claims.Role)
	}
	if claims.Issuer != v.issuer {
		return nil, oerrors.Securityf("token issuer %q does not match", claims.Issuer)
	}
	if claims.ExpiresAt != 0 && claims.ExpiresAt <= v.clock.Now().Unix() {
		return nil, oerrors.Securityf("token expired")
	}
	return &claims, nil
}

func (v *TokenVerifier) sign(data string) []byte {
	mac := hmac.New(sha256.New, v.key)
	mac.Write([]byte(data))
	return mac.Sum(nil)
}
