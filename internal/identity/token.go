package identity

import (
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrNoSigningKey = errors.New("identity: no signing key configured")
	ErrInvalidToken = errors.New("identity: invalid token")
	ErrNoSubject    = errors.New("identity: token has no subject")
)

// Claims accepts either the registered subject or a user_id claim.
type Claims struct {
	UserID string `json:"user_id,omitempty"`
	jwt.RegisteredClaims
}

type Verifier struct {
	signingKey []byte
	issuer     string
}

func NewVerifier(signingKey, issuer string) *Verifier {
	return &Verifier{
		signingKey: []byte(strings.TrimSpace(signingKey)),
		issuer:     strings.TrimSpace(issuer),
	}
}

// UserID validates tokenString and returns the user it was issued for.
func (v *Verifier) UserID(tokenString string) (string, error) {
	if len(v.signingKey) == 0 {
		return "", ErrNoSigningKey
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return v.signingKey, nil
	}, opts...)
	if err != nil {
		return "", errors.Join(ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return "", ErrInvalidToken
	}
	if sub := strings.TrimSpace(claims.Subject); sub != "" {
		return sub, nil
	}
	if uid := strings.TrimSpace(claims.UserID); uid != "" {
		return uid, nil
	}
	return "", ErrNoSubject
}
