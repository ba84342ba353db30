package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	pkgauth "github.com/localkart/localkart-backend/pkg/auth"
	"github.com/localkart/localkart-backend/pkg/config"
	"github.com/localkart/localkart-backend/pkg/enums"
)

func jwtConfig() config.JWTConfig {
	return config.JWTConfig{Secret: "secret", Issuer: "issuer", ExpirationMinutes: 60}
}

func mintToken(t *testing.T, cfg config.JWTConfig, userID uuid.UUID, role enums.ActorRole) string {
	t.Helper()
	token, err := pkgauth.MintAccessToken(cfg, time.Now(), pkgauth.AccessTokenPayload{
		UserID: userID,
		Role:   role,
		JTI:    uuid.NewString(),
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func TestAuthRejectsMissingHeader(t *testing.T) {
	mw := Auth(jwtConfig(), nil)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler must not run without credentials")
	})

	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAuthRejectsForgedToken(t *testing.T) {
	forged := mintToken(t, config.JWTConfig{Secret: "other-secret", Issuer: "issuer", ExpirationMinutes: 60}, uuid.New(), enums.ActorRoleCustomer)

	mw := Auth(jwtConfig(), nil)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler must not run with forged token")
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+forged)
	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAuthSeedsActorContext(t *testing.T) {
	cfg := jwtConfig()
	userID := uuid.New()

	mw := Auth(cfg, nil)
	var seenUser string
	var seenRole enums.ActorRole
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenUser = UserIDFromContext(r.Context())
		seenRole = RoleFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+mintToken(t, cfg, userID, enums.ActorRoleShopkeeper))
	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if seenUser != userID.String() {
		t.Fatalf("expected user id %s in context got %s", userID, seenUser)
	}
	if seenRole != enums.ActorRoleShopkeeper {
		t.Fatalf("expected shopkeeper role in context got %s", seenRole)
	}
}

func TestRequireRoleBlocksOtherRoles(t *testing.T) {
	mw := RequireRole(nil, enums.ActorRoleAdmin, enums.ActorRoleShopkeeper)
	var called bool
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})

	customer := httptest.NewRequest(http.MethodGet, "/", nil)
	customer = customer.WithContext(WithActor(customer.Context(), uuid.NewString(), enums.ActorRoleCustomer))
	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, customer)
	if resp.Code != http.StatusForbidden || called {
		t.Fatalf("expected 403 without handler call got %d", resp.Code)
	}

	admin := httptest.NewRequest(http.MethodGet, "/", nil)
	admin = admin.WithContext(WithActor(admin.Context(), uuid.NewString(), enums.ActorRoleAdmin))
	resp = httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, admin)
	if resp.Code != http.StatusOK || !called {
		t.Fatalf("expected 200 with handler call got %d", resp.Code)
	}
}

func TestRequireRoleBlocksAnonymous(t *testing.T) {
	mw := RequireRole(nil, enums.ActorRoleDelivery)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler must not run without a role")
	})

	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", resp.Code)
	}
}
