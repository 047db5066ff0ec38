package exts

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

type UserClaims struct {
	jwt.RegisteredClaims
}

// Authenticator checks the bearer tokens issued by the identity service. The
// subject claim carries the user id.
type Authenticator struct {
	secret []byte
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

func (v *Authenticator) IssueToken(user uint, ttl time.Duration) (string, error) {
	claims := UserClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(user), 10),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS512, claims)
	tks, err := token.SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %v", err)
	}
	return tks, nil
}

func (v *Authenticator) ParseToken(tk string) (uint, error) {
	var claims UserClaims
	token, err := jwt.ParseWithClaims(tk, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Method)
		}
		return v.secret, nil
	})
	if err != nil {
		return 0, err
	}
	if !token.Valid {
		return 0, fmt.Errorf("invalid token")
	}
	user, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil || user == 0 {
		return 0, fmt.Errorf("invalid subject in token")
	}
	return uint(user), nil
}

// Middleware resolves the caller when a token is present. Requests without
// one pass through anonymous; handlers call EnsureAuthenticated.
func (v *Authenticator) Middleware(c *fiber.Ctx) error {
	tk := strings.TrimSpace(strings.TrimPrefix(c.Get(fiber.HeaderAuthorization), "Bearer "))
	if len(tk) == 0 {
		tk = c.Query("tk")
	}
	if len(tk) == 0 {
		return c.Next()
	}

	user, err := v.ParseToken(tk)
	if err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, err.Error())
	}
	c.Locals("user_id", user)
	return c.Next()
}

func EnsureAuthenticated(c *fiber.Ctx) (uint, error) {
	user, ok := c.Locals("user_id").(uint)
	if !ok || user == 0 {
		return 0, fiber.NewError(fiber.StatusUnauthorized, "you need to sign in first")
	}
	return user, nil
}
