package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrincipalFromTokenClaims(t *testing.T) {
	tests := []struct {
		name      string
		raw       map[string]interface{}
		subject   string
		wantOID   string
		wantName  string
		wantEmail string
	}{
		{
			name: "azure access token",
			raw: map[string]interface{}{
				"oid":   "11111111-2222-3333-4444-555555555555",
				"name":  "Jane Operator",
				"email": "jane@plant.example",
			},
			subject:   "sub-1",
			wantOID:   "11111111-2222-3333-4444-555555555555",
			wantName:  "Jane Operator",
			wantEmail: "jane@plant.example",
		},
		{
			name: "long form object id claim",
			raw: map[string]interface{}{
				ObjectIDClaim: "oid-long",
				"name":        "Bob",
			},
			wantOID:  "oid-long",
			wantName: "Bob",
		},
		{
			name: "email from upn",
			raw: map[string]interface{}{
				"oid":                "oid-2",
				"preferred_username": "not-an-email",
				"upn":                "bob@plant.example",
			},
			wantOID:   "oid-2",
			wantName:  "not-an-email",
			wantEmail: "bob@plant.example",
		},
		{
			name: "no oid",
			raw: map[string]interface{}{
				"name": "Service",
			},
			wantName: "Service",
		},
		{
			name: "non string values ignored",
			raw: map[string]interface{}{
				"oid":  42,
				"name": []string{"x"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := PrincipalFromTokenClaims(tt.raw, tt.subject)
			require.NotNil(t, p)
			assert.Equal(t, tt.wantOID, p.ObjectID())
			assert.Equal(t, tt.wantName, p.Name)
			assert.Equal(t, tt.wantEmail, p.FindFirst(EmailClaim))
			assert.Equal(t, tt.subject, p.FindFirst("sub"))
		})
	}
}

func TestNewOIDCVerifier_RequiresIssuer(t *testing.T) {
	_, err := NewOIDCVerifier(context.Background(), OIDCConfig{})
	assert.Error(t, err)
}
