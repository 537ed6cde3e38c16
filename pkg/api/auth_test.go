package api

import (
	"net/http"
	"testing"

	"vortexl2/pkg/auth"
)

func request(t *testing.T, bearer string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, "/api/v1/status", nil)
	if err != nil {
		t.Fatal(err)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	return req
}

func TestAuthFuncStaticToken(t *testing.T) {
	check := authFunc("strong-token", false)
	if !check(request(t, "strong-token")) {
		t.Fatal("static token rejected")
	}
	if check(request(t, "wrong")) {
		t.Fatal("wrong token accepted")
	}
	if check(request(t, "")) {
		t.Fatal("missing credential accepted")
	}
}

func TestAuthFuncRejectsForgedJWTWithoutOperatorStore(t *testing.T) {
	// With JWT_SECRET unset, tokens are signed with the built-in development
	// secret, which anyone can reproduce. A self-minted session token must not
	// get past static-token auth.
	t.Setenv("JWT_SECRET", "")
	forged, err := auth.Generate(99, "attacker")
	if err != nil {
		t.Fatal(err)
	}
	check := authFunc("strong-token", false)
	if check(request(t, forged)) {
		t.Fatal("self-minted JWT accepted without operator accounts enabled")
	}
}

func TestAuthFuncRejectsJWTOnDevSecret(t *testing.T) {
	// Operator accounts enabled but no explicit secret configured: the JWT
	// path must stay closed.
	t.Setenv("JWT_SECRET", "")
	forged, err := auth.Generate(99, "attacker")
	if err != nil {
		t.Fatal(err)
	}
	check := authFunc("strong-token", true)
	if check(request(t, forged)) {
		t.Fatal("JWT signed with the development secret accepted")
	}
}

func TestAuthFuncAcceptsOperatorJWT(t *testing.T) {
	t.Setenv("JWT_SECRET", "operator-configured-secret")
	token, err := auth.Generate(1, "alice")
	if err != nil {
		t.Fatal(err)
	}
	check := authFunc("strong-token", true)
	if !check(request(t, token)) {
		t.Fatal("valid operator session rejected")
	}
}

func TestAuthFuncEmptyTokenLeavesAPIOpen(t *testing.T) {
	check := authFunc("", false)
	if !check(request(t, "")) {
		t.Fatal("open mode rejected a request")
	}
}
