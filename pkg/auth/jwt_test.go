package auth

import (
	"errors"
	"testing"
)

func TestGenerateParseRoundTrip(t *testing.T) {
	t.Setenv("JWT_SECRET", "round-trip-secret")
	token, err := Generate(7, "alice")
	if err != nil {
		t.Fatal(err)
	}
	claims, err := Parse(token)
	if err != nil {
		t.Fatal(err)
	}
	if claims.OperatorID != 7 || claims.Name != "alice" {
		t.Fatalf("claims = %+v", claims)
	}
	if claims.Issuer != "vortexl2" {
		t.Fatalf("issuer = %q", claims.Issuer)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := Parse("not.a.token"); !errors.Is(err, ErrInvalid) {
		t.Fatalf("error = %v, want ErrInvalid", err)
	}
}

func TestParseRejectsForeignSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret-a")
	token, err := Generate(1, "bob")
	if err != nil {
		t.Fatal(err)
	}
	t.Setenv("JWT_SECRET", "secret-b")
	if _, err := Parse(token); !errors.Is(err, ErrInvalid) {
		t.Fatalf("error = %v, want ErrInvalid", err)
	}
}
