package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
)

// TokenVerifier validates a raw bearer token and returns the caller
type TokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (*Principal, error)
}

// OIDCConfig configures bearer token validation
type OIDCConfig struct {
	// IssuerURL is the issuer whose /.well-known/openid-configuration is discovered
	IssuerURL string
	// Audience is the expected aud claim (the API's application id)
	Audience string
	// SkipIssuerCheck disables issuer comparison (multi-tenant issuers)
	SkipIssuerCheck bool
}

// OIDCVerifier validates access tokens against a discovered OIDC provider
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewOIDCVerifier discovers the provider and builds a verifier for it
func NewOIDCVerifier(ctx context.Context, cfg OIDCConfig) (*OIDCVerifier, error) {
	if cfg.IssuerURL == "" {
		return nil, fmt.Errorf("OIDC issuer URL is required")
	}

	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}

	verifier := provider.Verifier(&oidc.Config{
		ClientID:          cfg.Audience,
		SkipClientIDCheck: cfg.Audience == "",
		SkipIssuerCheck:   cfg.SkipIssuerCheck,
	})

	return &OIDCVerifier{verifier: verifier}, nil
}

// NewOIDCVerifierFromKeySet builds a verifier from a fixed key set, skipping discovery
func NewOIDCVerifierFromKeySet(issuer string, keySet oidc.KeySet, cfg *oidc.Config) *OIDCVerifier {
	return &OIDCVerifier{verifier: oidc.NewVerifier(issuer, keySet, cfg)}
}

// Verify validates the token signature, expiry, issuer and audience
func (v *OIDCVerifier) Verify(ctx context.Context, rawToken string) (*Principal, error) {
	token, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify token: %w", err)
	}

	var claims map[string]interface{}
	if err := token.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse claims: %w", err)
	}

	return PrincipalFromTokenClaims(claims, token.Subject), nil
}

// PrincipalFromTokenClaims maps raw JWT claims onto a Principal.
// Short provider names are translated to the claim types used internally.
func PrincipalFromTokenClaims(raw map[string]interface{}, subject string) *Principal {
	p := &Principal{}

	if oid := stringClaim(raw, "oid"); oid != "" {
		p.Claims = append(p.Claims, Claim{Type: ObjectIDClaim, Value: oid})
	} else if oid := stringClaim(raw, ObjectIDClaim); oid != "" {
		p.Claims = append(p.Claims, Claim{Type: ObjectIDClaim, Value: oid})
	}

	p.Name = stringClaim(raw, "name")
	if p.Name == "" {
		p.Name = stringClaim(raw, "preferred_username")
	}
	if p.Name != "" {
		p.Claims = append(p.Claims, Claim{Type: NameClaim, Value: p.Name})
	}

	for _, key := range []string{"email", "preferred_username", "upn"} {
		if email := stringClaim(raw, key); strings.Contains(email, "@") {
			p.Claims = append(p.Claims, Claim{Type: EmailClaim, Value: email})
			break
		}
	}

	if subject != "" {
		p.Claims = append(p.Claims, Claim{Type: "sub", Value: subject})
	}

	return p
}

func stringClaim(claims map[string]interface{}, key string) string {
	if v, ok := claims[key].(string); ok {
		return v
	}
	return ""
}
