package security

// Identity is the result of a successful authentication.
type Identity struct {
	Subject string
	Role    Role
}

// Authenticator combines the bearer and API key gates with the public
// path set. A request is authenticated if its path is public, or if
// either credential verifies.
type Authenticator struct {
	tokens *TokenVerifier
	keys   *APIKeyVerifier
	public *PublicPaths
}

// NewAuthenticator wires the three gates together. tokens or keys may
// be nil when that credential type is not configured.
func NewAuthenticator(tokens *TokenVerifier, keys *APIKeyVerifier, public *PublicPaths) *Authenticator {
	if public == nil {
		public = NewPublicPaths(nil)
	}
	return &Authenticator{tokens: tokens, keys: keys, public: public}
}

// Public reports whether path skips verification entirely.
func (a *Authenticator) Public(path string) bool {
	return a.public.Match(path)
}

// Authenticate checks the supplied credentials. The bearer token is
// tried first; a valid API key authenticates as an operator.
func (a *Authenticator) Authenticate(bearerToken, apiKey string) (Identity, bool) {
	if a.tokens != nil && bearerToken != "" {
		if claims, err := a.tokens.Verify(bearerToken); err == nil {
			return Identity{Subject: claims.Subject, Role: claims.Role}, true
		}
	}
	if a.keys != nil && a.keys.Verify(apiKey) {
		return Identity{Subject: "api-key", Role: RoleOperator}, true
	}
	return Identity{}, false
}
