package jwt

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v4"
	"github.com/sensorgrid/iot-core/pkg/file"
)

// Claims is the identity carried by an operator bearer token.
type Claims struct {
	UserID   string
	ClientID string
	Role     string
}

// VerifierInterface defines bearer-token verification for realtime sessions.
type VerifierInterface interface {
	Verify(tokenString string) (*Claims, error)
}

// Verifier validates HMAC-signed bearer tokens against a shared secret.
type Verifier struct {
	secret []byte
}

// NewVerifier loads the HMAC secret from the given file.
func NewVerifier(secretPath string, fileOps file.FileOperations) (*Verifier, error) {
	secret, err := fileOps.ReadFileRaw(secretPath)
	if err != nil || len(secret) == 0 {
		return nil, errors.New("failed to read or validate JWT secret")
	}
	return &Verifier{secret: secret}, nil
}

// NewVerifierFromSecret creates a Verifier with an in-memory secret.
func NewVerifierFromSecret(secret []byte) *Verifier {
	return &Verifier{secret: secret}
}

// Verify parses and validates a token, returning the session identity.
// Expiry is enforced by the parser; a token with no user id is rejected.
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid JWT token")
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid JWT claims format")
	}

	claims := &Claims{
		UserID:   stringClaim(mapClaims, "user_id"),
		ClientID: stringClaim(mapClaims, "client_id"),
		Role:     stringClaim(mapClaims, "role"),
	}
	if claims.UserID == "" {
		return nil, errors.New("JWT has no user_id claim")
	}
	return claims, nil
}

func stringClaim(claims jwt.MapClaims, key string) string {
	if v, ok := claims[key].(string); ok {
		return v
	}
	return ""
}
