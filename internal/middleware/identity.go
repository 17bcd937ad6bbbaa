package middleware

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"firebase.google.com/go/v4/auth"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned by verifiers for any token they reject.
var ErrInvalidToken = errors.New("invalid or expired token")

// Verifier resolves a bearer token to a viewer id.
type Verifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// JWTVerifier accepts HS256 tokens whose subject is the viewer id.
type JWTVerifier struct {
	secret []byte
}

func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

// Verify implements Verifier.
func (v *JWTVerifier) Verify(_ context.Context, tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}

	sub, err := token.Claims.GetSubject()
	if err != nil || strings.TrimSpace(sub) == "" {
		return "", ErrInvalidToken
	}
	return sub, nil
}

// Issue signs a token for viewerID valid for ttl.
func (v *JWTVerifier) Issue(viewerID string, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   viewerID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	})
	return token.SignedString(v.secret)
}

// idTokenVerifier is the part of the Firebase auth client used here.
type idTokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

// FirebaseVerifier accepts Firebase ID tokens; the viewer id is the user's UID.
type FirebaseVerifier struct {
	client idTokenVerifier
}

func NewFirebaseVerifier(client *auth.Client) *FirebaseVerifier {
	return &FirebaseVerifier{client: client}
}

// Verify implements Verifier.
func (v *FirebaseVerifier) Verify(ctx context.Context, token string) (string, error) {
	t, err := v.client.VerifyIDToken(ctx, token)
	if err != nil || t == nil || t.UID == "" {
		return "", ErrInvalidToken
	}
	return t.UID, nil
}

// Identity resolves the viewer from a bearer token, or from the token query
// parameter for WebSocket upgrades. Requests without a token continue as
// anonymous; requests with a bad token are rejected.
func Identity(v Verifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, err := bearerToken(c)
		if err != nil {
			return unauthorized(c, err.Error())
		}
		if token == "" {
			return c.Next()
		}

		viewerID, err := v.Verify(c.UserContext(), token)
		if err != nil {
			return unauthorized(c, ErrInvalidToken.Error())
		}
		c.Locals(LocalViewerID, viewerID)
		return c.Next()
	}
}

// RequireViewer rejects anonymous requests.
func RequireViewer(c *fiber.Ctx) error {
	if ViewerID(c) == "" {
		return unauthorized(c, "authentication required")
	}
	return c.Next()
}

// ViewerID returns the authenticated viewer id, or "" for anonymous requests.
func ViewerID(c *fiber.Ctx) string {
	id, _ := c.Locals(LocalViewerID).(string)
	return id
}

func unauthorized(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": msg})
}

func bearerToken(c *fiber.Ctx) (string, error) {
	header := c.Get(fiber.HeaderAuthorization)
	if header == "" {
		return c.Query("token"), nil
	}
	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", errors.New("invalid authorization header format")
	}
	return parts[1], nil
}
