package identity

import (
	"errors"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// Claims はセッショントークンのクレーム。subjectがドキュメントIDになる。
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// TokenVerifier はHS256で署名されたセッショントークンを検証する。
type TokenVerifier struct {
	secret []byte
	issuer string
}

// NewTokenVerifier はTokenVerifierを生成する。
// issuerが空の場合はissの検証を行わない。
func NewTokenVerifier(secret, issuer string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret), issuer: issuer}
}

// Verify はトークンを検証してIdentityを返す。
func (v *TokenVerifier) Verify(tokenStr string) (Identity, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	t, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return Unauthenticated, fmt.Errorf("failed to parse token: %w", err)
	}

	c, ok := t.Claims.(*Claims)
	if !ok || !t.Valid {
		return Unauthenticated, errors.New("invalid token")
	}
	if c.Subject == "" {
		return Unauthenticated, errors.New("token has no subject")
	}

	return Identity{ID: c.Subject, Email: c.Email}, nil
}

// TokenIssuer はセッショントークンを発行する。
// 内部サービス間の呼び出しとテストで使用する。
type TokenIssuer struct {
	secret []byte
	issuer string
}

// NewTokenIssuer はTokenIssuerを生成する。
func NewTokenIssuer(secret, issuer string) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), issuer: issuer}
}

// Issue はidentityに対してttl有効なトークンを発行する。
func (i *TokenIssuer) Issue(id Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Email: id.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.ID,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}
