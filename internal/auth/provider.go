package auth

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	fbauth "firebase.google.com/go/v4/auth"
)

// FirebaseProvider verifies Firebase ID tokens obtained by the client's sign-in flow.
type FirebaseProvider struct {
	client *fbauth.Client
}

// NewFirebaseProvider wraps a Firebase auth client.
func NewFirebaseProvider(client *fbauth.Client) *FirebaseProvider {
	return &FirebaseProvider{client: client}
}

// Verify checks the ID token and returns its verified email.
func (p *FirebaseProvider) Verify(ctx context.Context, credential string) (ProviderUser, error) {
	tok, err := p.client.VerifyIDToken(ctx, credential)
	if err != nil {
		return ProviderUser{}, err
	}
	email, _ := tok.Claims["email"].(string)
	if email == "" {
		return ProviderUser{}, errors.New("token carries no email")
	}
	if verified, ok := tok.Claims["email_verified"].(bool); ok && !verified {
		return ProviderUser{}, errors.New("email not verified")
	}
	return ProviderUser{UID: tok.UID, Email: email}, nil
}

// Revoke invalidates the user's Firebase refresh tokens.
func (p *FirebaseProvider) Revoke(ctx context.Context, uid string) error {
	return p.client.RevokeRefreshTokens(ctx, uid)
}

// DevProvider trusts the credential as the email address. Development only.
type DevProvider struct{}

// Verify accepts any well-formed email.
func (DevProvider) Verify(_ context.Context, credential string) (ProviderUser, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(credential))
	if err != nil {
		return ProviderUser{}, err
	}
	return ProviderUser{UID: addr.Address, Email: addr.Address}, nil
}

// Revoke is a no-op.
func (DevProvider) Revoke(context.Context, string) error { return nil }
