package session

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	fbauth "firebase.google.com/go/v4/auth"
)

// firebaseVerifier checks Firebase ID tokens minted by a client SDK,
// recovering the caller's UID and email without this service ever seeing
// the user's Google/Apple/phone credential directly.
type firebaseVerifier struct {
	authClient *fbauth.Client
}

// newFirebaseVerifier builds a verifier from an already-initialized
// Firebase app — the same app pkg/firestore uses for the login-audit
// trail, so the service never opens a second Firebase app for one process.
func newFirebaseVerifier(ctx context.Context, app *firebase.App) (*firebaseVerifier, error) {
	if app == nil {
		return nil, fmt.Errorf("session: firebase app is required")
	}
	authClient, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("session: initializing firebase auth client: %w", err)
	}
	return &firebaseVerifier{authClient: authClient}, nil
}

// firebaseIdentity is the subset of a verified Firebase token this package
// consumes for account linking.
type firebaseIdentity struct {
	UID           string
	Email         string
	EmailVerified bool
}

// verifyIDToken validates idToken's signature, expiry, and issuer against
// Firebase's public certificates and extracts the caller's identity.
func (v *firebaseVerifier) verifyIDToken(ctx context.Context, idToken string) (firebaseIdentity, error) {
	token, err := v.authClient.VerifyIDToken(ctx, idToken)
	if err != nil {
		return firebaseIdentity{}, fmt.Errorf("session: verifying firebase id token: %w", err)
	}

	identity := firebaseIdentity{UID: token.UID}
	if email, ok := token.Claims["email"].(string); ok {
		identity.Email = email
	}
	if verified, ok := token.Claims["email_verified"].(bool); ok {
		identity.EmailVerified = verified
	}
	if identity.Email == "" {
		return firebaseIdentity{}, fmt.Errorf("session: firebase token missing email claim")
	}
	return identity, nil
}
