package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"wablast/pkg/env"
	"wablast/pkg/log"
	"wablast/pkg/router"
)

// sessionSecret signs the session tokens that stand in for the browser session
// cookie. When AUTH_SESSION_SECRET is not set a random secret is generated, so
// tokens from a previous process stop validating after a restart. Sessions do
// not outlive the process anyway.
var sessionSecret []byte

func init() {
	secret := env.GetEnvStringOrDefault("AUTH_SESSION_SECRET", "")
	if secret == "" {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			log.Print(nil).WithError(err).Fatal("Failed to generate session secret")
		}
		secret = hex.EncodeToString(buf)
		log.Print(nil).Warn("AUTH_SESSION_SECRET not set, using a per-process random secret")
	}
	sessionSecret = []byte(secret)
}

type SessionTokenClaims struct {
	SessionID string `json:"session_id"`
	jwt.RegisteredClaims
}

// GenerateSessionToken creates a signed token bound to one session id. The
// token lives for 24 hours, matching the original browser session lifetime.
func GenerateSessionToken(sessionID string) (string, error) {
	claims := SessionTokenClaims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sessionID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(sessionSecret)
}

// ValidateSessionToken parses a session token and returns the session id.
func ValidateSessionToken(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionTokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return sessionSecret, nil
	})
	if err != nil {
		return "", err
	}

	if claims, ok := token.Claims.(*SessionTokenClaims); ok && token.Valid && claims.SessionID != "" {
		return claims.SessionID, nil
	}

	return "", errors.New("invalid token claims")
}

// TokenFromRequest extracts the session token from the Authorization header or
// the token query parameter (the WebSocket handshake cannot set headers).
func TokenFromRequest(c *fiber.Ctx) string {
	header := strings.TrimSpace(c.Get("Authorization"))
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return strings.TrimSpace(c.Query("token"))
}

// SessionAuth requires a valid session token and stores the session id in the
// request locals.
func SessionAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString := TokenFromRequest(c)
		if tokenString == "" {
			return router.ResponseUnauthorized(c, "Session token is required")
		}

		sessionID, err := ValidateSessionToken(tokenString)
		if err != nil {
			return router.ResponseUnauthorized(c, "Invalid session token")
		}

		c.Locals("session_id", sessionID)
		return c.Next()
	}
}

// OptionalSessionAuth resolves the session id when a token is present but does
// not reject anonymous requests; /init issues the first token.
func OptionalSessionAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString := TokenFromRequest(c)
		if tokenString != "" {
			if sessionID, err := ValidateSessionToken(tokenString); err == nil {
				c.Locals("session_id", sessionID)
			}
		}
		return c.Next()
	}
}
