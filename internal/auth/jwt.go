package auth

import (
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"storefront-backend/internal/apperr"
	"storefront-backend/internal/models"
)

const (
	tokenTTL    = 24 * time.Hour
	tokenIssuer = "storefront-backend"
)

// StaffClaims identify the staff member behind a request. The subject is the
// user id in the same decimal form that ledger and history rows store in
// changed_by, so a verified token maps straight onto a models.Actor.
type StaffClaims struct {
	Name string          `json:"name"`
	Role models.UserRole `json:"role"`
	jwt.RegisteredClaims
}

// Actor turns verified claims into the acting staff member.
func (c *StaffClaims) Actor() (models.Actor, error) {
	id, err := strconv.ParseUint(c.Subject, 10, strconv.IntSize)
	if err != nil || id == 0 {
		return models.Actor{}, apperr.Unauthorized("token subject is not a staff id")
	}
	if !c.Role.Valid() {
		return models.Actor{}, apperr.Unauthorized("token carries an unknown role")
	}
	return models.Actor{UserID: uint(id), Name: c.Name, Role: c.Role}, nil
}

func GenerateToken(secret string, user *models.User) (string, error) {
	return issueToken(secret, user, time.Now())
}

func issueToken(secret string, user *models.User, now time.Time) (string, error) {
	if user.ID == 0 || !user.IsActive {
		return "", apperr.Unauthorized("only active staff get tokens")
	}
	claims := &StaffClaims{
		Name: user.Name,
		Role: user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    tokenIssuer,
			Subject:   models.StaffActor(*user).ID(),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseToken verifies the signature, issuer and expiry of a staff token.
func ParseToken(secret, raw string) (*StaffClaims, error) {
	claims := &StaffClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	},
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return nil, apperr.Unauthorized("invalid or expired token")
	}
	return claims, nil
}
