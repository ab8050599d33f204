// Package auth issues and verifies the bearer tokens that carry the caller's
// identity into the HTTP layer.
package auth

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/flaxvault/internal/common"
	"github.com/dmitrijs2005/flaxvault/internal/server/models"
	"github.com/golang-jwt/jwt/v5"
)

// Claims carries the actor on top of the registered claims. OwnerID is set
// only for robots acting inside a user's namespace.
type Claims struct {
	jwt.RegisteredClaims
	UserID  string           `json:"uid"`
	OwnerID string           `json:"oid,omitempty"`
	Kind    models.ActorKind `json:"kind,omitempty"`
}

func GenerateToken(actor models.Actor, secretKey []byte, validityDuration time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validityDuration)),
		},
		UserID:  actor.ID,
		OwnerID: actor.OwnerID,
		Kind:    actor.Kind,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// ActorFromToken verifies tokenString and returns the actor it names. Every
// failure wraps common.ErrInvalidToken.
func ActorFromToken(tokenString string, secretKey []byte) (models.Actor, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return models.Actor{}, fmt.Errorf("%w: %w", common.ErrInvalidToken, err)
	}

	if !token.Valid || claims.UserID == "" {
		return models.Actor{}, common.ErrInvalidToken
	}

	actor := models.Actor{ID: claims.UserID, OwnerID: claims.OwnerID, Kind: claims.Kind}
	switch actor.Kind {
	case "", models.ActorUser:
		actor.Kind = models.ActorUser
		actor.OwnerID = ""
	case models.ActorRobot:
		if actor.OwnerID == "" {
			return models.Actor{}, fmt.Errorf("%w: robot token without owner", common.ErrInvalidToken)
		}
	default:
		return models.Actor{}, fmt.Errorf("%w: unknown actor kind %q", common.ErrInvalidToken, actor.Kind)
	}

	return actor, nil
}
