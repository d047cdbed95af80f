package auth

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	"docshub/core"
)

var jwtSecret []byte

// AppClaims represents the custom claims for the JWT.
type AppClaims struct {
	jwt.RegisteredClaims
	Login string `json:"login"`
	Name  string `json:"name,omitempty"`
}

// InitAuth loads the signing secret from the environment. Token
// issuance (the login flows) belongs to an external identity service
// sharing the same secret; this package only verifies inbound
// credentials and mints tokens for tooling and tests.
func InitAuth() {
	jwtSecret = []byte(os.Getenv("JWT_SECRET"))
	if len(jwtSecret) == 0 {
		logrus.Warn("JWT_SECRET is not set. Authentication will not work.")
	}
}

// CreateJWT mints a signed session token for an identity.
func CreateJWT(identity core.UserIdentity) (string, error) {
	claims := AppClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.Subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour * 24 * 7)), // 1 week
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		Login: identity.Username,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(jwtSecret)
}

// ParseJWT verifies a token and returns its claims.
func ParseJWT(tokenString string) (*AppClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AppClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return jwtSecret, nil
	})

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*AppClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, fmt.Errorf("invalid token")
}

// CredentialFrom extracts the bearer credential from a request: the
// Authorization header or, for browser clients that cannot set headers
// on WebSocket upgrades, the token query parameter. Returns the empty
// string when neither carries a credential.
func CredentialFrom(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.Split(header, " ")
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

// Resolver implements core.SessionResolver on top of ParseJWT.
type Resolver struct{}

func (Resolver) Resolve(credential string) (core.UserIdentity, error) {
	if credential == "" {
		return core.UserIdentity{}, core.ErrUnauthenticated
	}
	claims, err := ParseJWT(credential)
	if err != nil {
		return core.UserIdentity{}, fmt.Errorf("%w: %v", core.ErrUnauthenticated, err)
	}
	return core.UserIdentity{Subject: claims.Subject, Username: claims.Login}, nil
}
