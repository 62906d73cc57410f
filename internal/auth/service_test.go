package auth

import (
	"context"
	"errors"
	"testing"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	store, err := NewMemoryStore([]Seed{
		{
			Username:    "analyst",
			Password:    "s3cret",
			Roles:       []string{"analyst"},
			Permissions: []string{"guardianeye.execute", "guardianeye.jobs.read"},
		},
		{
			Username: "locked",
			Password: "s3cret",
			Disabled: true,
		},
	})
	if err != nil {
		t.Fatalf("init memory store: %v", err)
	}
	svc, err := NewService(context.Background(), Config{
		Mode: ModeJWT,
		JWT: JWTOptions{
			Secret:   "unit-test-secret",
			Issuer:   "guardianeye",
			Audience: []string{"guardianeye-api"},
		},
	}, store)
	if err != nil {
		t.Fatalf("init auth service: %v", err)
	}
	return svc
}

func TestAuthenticateIssuesVerifiableToken(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	pair, err := svc.Authenticate(ctx, TokenRequest{Username: "analyst", Password: "s3cret"})
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatalf("expected token pair, got %+v", pair)
	}
	if pair.TokenType != "Bearer" {
		t.Fatalf("unexpected token type: %s", pair.TokenType)
	}

	subject, err := svc.AuthenticateRequest(ctx, "Bearer "+pair.AccessToken)
	if err != nil {
		t.Fatalf("verify token: %v", err)
	}
	if subject.Username != "analyst" {
		t.Fatalf("unexpected subject: %+v", subject)
	}
	if !subject.HasPermission("guardianeye.execute") {
		t.Fatal("expected execute permission")
	}
}

func TestAuthenticateRejectsBadCredentials(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Authenticate(ctx, TokenRequest{Username: "analyst", Password: "wrong"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if _, err := svc.Authenticate(ctx, TokenRequest{Username: "locked", Password: "s3cret"}); !errors.Is(err, ErrSubjectRevoked) {
		t.Fatalf("expected revoked subject, got %v", err)
	}
	if _, err := svc.Authenticate(ctx, TokenRequest{Username: "analyst", Password: "s3cret", GrantType: "client_credentials"}); !errors.Is(err, ErrUnsupportedGrant) {
		t.Fatalf("expected unsupported grant, got %v", err)
	}
}

func TestAuthenticateRequestRejectsRefreshToken(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	pair, err := svc.Authenticate(ctx, TokenRequest{Username: "analyst", Password: "s3cret"})
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}

	if _, err := svc.AuthenticateRequest(ctx, "Bearer "+pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token for refresh token, got %v", err)
	}
	if _, err := svc.AuthenticateRequest(ctx, "Bearer tampered.token.value"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token, got %v", err)
	}
	if _, err := svc.AuthenticateRequest(ctx, ""); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected missing token, got %v", err)
	}
}
