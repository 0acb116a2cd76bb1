package auth

import (
	"testing"
	"time"

	"github.com/aria7-op/school-mis-backend/pkg/config"
	"github.com/aria7-op/school-mis-backend/pkg/enums"
	"github.com/google/uuid"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:            "test-secret",
		Issuer:            "schoolmis",
		ExpirationMinutes: 60,
	}
}

func TestMintAndParseRoundTrip(t *testing.T) {
	cfg := testJWTConfig()
	payload := AccessTokenPayload{
		UserID:    uuid.New(),
		SchoolID:  uuid.New(),
		Role:      enums.RoleTeacher,
		FirstName: "Amina",
		LastName:  "Khan",
	}

	signed, err := MintAccessToken(cfg, time.Now(), payload)
	if err != nil {
		t.Fatalf("mint failed: %v", err)
	}

	claims, err := ParseAccessToken(cfg, signed)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if claims.UserID != payload.UserID {
		t.Fatalf("user id mismatch: %s vs %s", claims.UserID, payload.UserID)
	}
	if claims.SchoolID != payload.SchoolID {
		t.Fatalf("school id mismatch")
	}
	if claims.Role != enums.RoleTeacher {
		t.Fatalf("unexpected role %s", claims.Role)
	}
	if claims.FirstName != "Amina" || claims.LastName != "Khan" {
		t.Fatalf("name fields not preserved")
	}
	if claims.ID == "" {
		t.Fatal("expected generated jti")
	}
}

func TestMintValidatesPayload(t *testing.T) {
	cfg := testJWTConfig()
	base := AccessTokenPayload{
		UserID:   uuid.New(),
		SchoolID: uuid.New(),
		Role:     enums.RoleAdmin,
	}

	missingUser := base
	missingUser.UserID = uuid.Nil
	if _, err := MintAccessToken(cfg, time.Now(), missingUser); err == nil {
		t.Fatal("expected error for missing user id")
	}

	missingSchool := base
	missingSchool.SchoolID = uuid.Nil
	if _, err := MintAccessToken(cfg, time.Now(), missingSchool); err == nil {
		t.Fatal("expected error for missing school id")
	}

	badRole := base
	badRole.Role = "janitor"
	if _, err := MintAccessToken(cfg, time.Now(), badRole); err == nil {
		t.Fatal("expected error for invalid role")
	}
}

func TestParseRejectsExpired(t *testing.T) {
	cfg := testJWTConfig()
	payload := AccessTokenPayload{
		UserID:   uuid.New(),
		SchoolID: uuid.New(),
		Role:     enums.RoleStudent,
	}
	signed, err := MintAccessToken(cfg, time.Now().Add(-2*time.Hour), payload)
	if err != nil {
		t.Fatalf("mint failed: %v", err)
	}
	if _, err := ParseAccessToken(cfg, signed); err == nil {
		t.Fatal("expected expired token to fail")
	}
}

func TestParseRejectsWrongIssuer(t *testing.T) {
	cfg := testJWTConfig()
	signed, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{
		UserID:   uuid.New(),
		SchoolID: uuid.New(),
		Role:     enums.RoleParent,
	})
	if err != nil {
		t.Fatalf("mint failed: %v", err)
	}
	other := cfg
	other.Issuer = "someone-else"
	if _, err := ParseAccessToken(other, signed); err == nil {
		t.Fatal("expected issuer mismatch to fail")
	}
}
