package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/flaxvault/internal/common"
	"github.com/dmitrijs2005/flaxvault/internal/server/models"
	"github.com/golang-jwt/jwt/v5"
)

func TestGenerateAndParse_Success(t *testing.T) {
	t.Parallel()

	secret := []byte("super-secret")
	want := models.Actor{ID: "user-123", Kind: models.ActorUser}

	tok, err := GenerateToken(want, secret, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}

	got, err := ActorFromToken(tok, secret)
	if err != nil {
		t.Fatalf("ActorFromToken error: %v", err)
	}
	if got != want {
		t.Fatalf("actor mismatch: got %+v want %+v", got, want)
	}
}

func TestGenerateAndParse_Robot(t *testing.T) {
	t.Parallel()

	secret := []byte("super-secret")
	want := models.Actor{ID: "robot-1", OwnerID: "user-1", Kind: models.ActorRobot}

	tok, err := GenerateToken(want, secret, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}

	got, err := ActorFromToken(tok, secret)
	if err != nil {
		t.Fatalf("ActorFromToken error: %v", err)
	}
	if got != want {
		t.Fatalf("actor mismatch: got %+v want %+v", got, want)
	}
	if got.Owner() != "user-1" {
		t.Fatalf("owner mismatch: %q", got.Owner())
	}
}

func TestActorFromToken_LegacyUserToken(t *testing.T) {
	t.Parallel()

	secret := []byte("k")
	tok, err := GenerateToken(models.Actor{ID: "u1", OwnerID: "ignored"}, secret, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}

	got, err := ActorFromToken(tok, secret)
	if err != nil {
		t.Fatalf("ActorFromToken error: %v", err)
	}
	if got.Kind != models.ActorUser || got.OwnerID != "" {
		t.Fatalf("unexpected actor %+v", got)
	}
}

func TestActorFromToken_Expired(t *testing.T) {
	t.Parallel()

	secret := []byte("secret")
	tok, err := GenerateToken(models.Actor{ID: "u1", Kind: models.ActorUser}, secret, -1*time.Second)
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}

	_, err = ActorFromToken(tok, secret)
	if !errors.Is(err, common.ErrInvalidToken) {
		t.Fatalf("expected common.ErrInvalidToken, got %v", err)
	}
	if !errors.Is(err, jwt.ErrTokenExpired) {
		t.Fatalf("expected jwt.ErrTokenExpired, got %v", err)
	}
}

func TestActorFromToken_WrongSecret(t *testing.T) {
	t.Parallel()

	tok, err := GenerateToken(models.Actor{ID: "u2", Kind: models.ActorUser}, []byte("right-secret"), time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}

	_, err = ActorFromToken(tok, []byte("wrong-secret"))
	if !errors.Is(err, common.ErrInvalidToken) {
		t.Fatalf("expected common.ErrInvalidToken, got %v", err)
	}
}

func TestActorFromToken_RobotWithoutOwner(t *testing.T) {
	t.Parallel()

	secret := []byte("k")
	tok, err := GenerateToken(models.Actor{ID: "r1", Kind: models.ActorRobot}, secret, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}

	if _, err := ActorFromToken(tok, secret); !errors.Is(err, common.ErrInvalidToken) {
		t.Fatalf("expected common.ErrInvalidToken, got %v", err)
	}
}

func TestActorFromToken_OtherAlgorithm(t *testing.T) {
	t.Parallel()

	secret := []byte("k")
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{UserID: "u1"}).SignedString(secret)
	if err != nil {
		t.Fatalf("SignedString error: %v", err)
	}

	if _, err := ActorFromToken(tok, secret); !errors.Is(err, common.ErrInvalidToken) {
		t.Fatalf("expected common.ErrInvalidToken, got %v", err)
	}
}

func TestActorFromToken_MalformedString(t *testing.T) {
	t.Parallel()

	if _, err := ActorFromToken("not.a.jwt", []byte("k")); !errors.Is(err, common.ErrInvalidToken) {
		t.Fatalf("expected common.ErrInvalidToken, got %v", err)
	}
}
