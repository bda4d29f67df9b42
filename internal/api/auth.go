// SPDX-License-Identifier: MIT

package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrBadToken covers every way a bearer token can fail verification.
var ErrBadToken = errors.New("api: invalid token")

// Auth signs and verifies the HS256 tokens of devices and users. Device
// tokens carry the device id in the "id" claim; user tokens carry the user id
// in the standard "sub" claim.
type Auth struct {
	secret []byte
}

// NewAuth builds the token authority from the shared signing secret.
func NewAuth(secret string) *Auth {
	return &Auth{secret: []byte(secret)}
}

// DeviceToken issues the long-lived token a device presents on every call.
func (a *Auth) DeviceToken(deviceID string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id":  deviceID,
		"iat": time.Now().Unix(),
	})
	return token.SignedString(a.secret)
}

// DeviceID verifies a device token and returns the "id" claim.
func (a *Auth) DeviceID(tokenString string) (string, error) {
	claims, err := a.parse(tokenString)
	if err != nil {
		return "", err
	}
	id, ok := claims["id"].(string)
	if !ok || id == "" {
		return "", fmt.Errorf("%w: missing id claim", ErrBadToken)
	}
	return id, nil
}

// UserID verifies a user token and returns the "sub" claim.
func (a *Auth) UserID(tokenString string) (string, error) {
	claims, err := a.parse(tokenString)
	if err != nil {
		return "", err
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", fmt.Errorf("%w: missing sub claim", ErrBadToken)
	}
	return sub, nil
}

// UserToken issues a user token. The daemon itself only verifies these; the
// issuer lives in the web backend, but tests and tooling need both halves.
func (a *Auth) UserToken(userID string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID,
		"iat": time.Now().Unix(),
	})
	return token.SignedString(a.secret)
}

func (a *Auth) parse(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("%w: unexpected signing method %v", ErrBadToken, t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadToken, err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrBadToken
	}
	return claims, nil
}

// bearerToken extracts the token from the Authorization header, falling back
// to the "token" query parameter for endpoints browsers hit directly.
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return r.URL.Query().Get("token")
}
