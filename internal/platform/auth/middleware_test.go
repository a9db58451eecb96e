package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	firebaseauth "firebase.google.com/go/v4/auth"
)

type stubVerifier struct {
	token *firebaseauth.Token
	err   error
}

func (s *stubVerifier) VerifyIDToken(context.Context, string) (*firebaseauth.Token, error) {
	return s.token, s.err
}

func TestRequireFirebaseAuthMissingHeader(t *testing.T) {
	authenticator := NewAuthenticator(&stubVerifier{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	recorder := httptest.NewRecorder()

	handler := authenticator.RequireFirebaseAuth()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler should not run")
	}))
	handler.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", recorder.Code)
	}
}

func TestRequireFirebaseAuthVerificationFailure(t *testing.T) {
	authenticator := NewAuthenticator(&stubVerifier{err: errors.New("bad token")})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	req.Header.Set("Authorization", "Bearer token")
	recorder := httptest.NewRecorder()

	handler := authenticator.RequireFirebaseAuth()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler should not run")
	}))
	handler.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", recorder.Code)
	}
}

func TestRequireFirebaseAuthPopulatesIdentity(t *testing.T) {
	token := &firebaseauth.Token{
		UID: "user-1",
		Claims: map[string]interface{}{
			"email": "buyer@example.com",
			"role":  "Admin",
		},
	}
	authenticator := NewAuthenticator(&stubVerifier{token: token})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	req.Header.Set("Authorization", "Bearer token")
	recorder := httptest.NewRecorder()

	var captured *Identity
	handler := authenticator.RequireFirebaseAuth(RoleAdmin)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		captured, _ = IdentityFromContext(r.Context())
	}))
	handler.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	if captured == nil {
		t.Fatal("identity missing from context")
	}
	if captured.UID != "user-1" {
		t.Errorf("unexpected uid %q", captured.UID)
	}
	if captured.Email != "buyer@example.com" {
		t.Errorf("unexpected email %q", captured.Email)
	}
	if !captured.HasRole("admin") {
		t.Errorf("expected normalised admin role, got %v", captured.Roles)
	}
	if !captured.IsStaff() {
		t.Error("admin should count as staff")
	}
}

func TestRequireFirebaseAuthRoleDenied(t *testing.T) {
	token := &firebaseauth.Token{
		UID:    "user-2",
		Claims: map[string]interface{}{"role": "user"},
	}
	authenticator := NewAuthenticator(&stubVerifier{token: token})

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/products/prd_1", nil)
	req.Header.Set("Authorization", "Bearer token")
	recorder := httptest.NewRecorder()

	handler := authenticator.RequireFirebaseAuth(RoleStaff, RoleAdmin)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler should not run")
	}))
	handler.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", recorder.Code)
	}
}

func TestRequireFirebaseAuthFallbackRole(t *testing.T) {
	token := &firebaseauth.Token{UID: "user-3", Claims: map[string]interface{}{}}
	authenticator := NewAuthenticator(&stubVerifier{token: token})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/carts/me", nil)
	req.Header.Set("Authorization", "Bearer token")
	recorder := httptest.NewRecorder()

	var captured *Identity
	handler := authenticator.RequireFirebaseAuth(RoleUser)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		captured, _ = IdentityFromContext(r.Context())
	}))
	handler.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	if captured == nil || !captured.HasRole(RoleUser) {
		t.Fatalf("expected fallback user role, got %+v", captured)
	}
}

func TestRolesFromClaimsShapes(t *testing.T) {
	cases := []struct {
		name   string
		claims map[string]interface{}
		want   int
	}{
		{"string", map[string]interface{}{"role": "staff"}, 1},
		{"list", map[string]interface{}{"role": []interface{}{"staff", "admin", "staff"}}, 2},
		{"boolean map", map[string]interface{}{"role": map[string]interface{}{"staff": true, "admin": false}}, 1},
		{"unsupported", map[string]interface{}{"role": 42}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			roles := rolesFromClaims(tc.claims, "role")
			if len(roles) != tc.want {
				t.Errorf("expected %d roles, got %v", tc.want, roles)
			}
		})
	}
}
