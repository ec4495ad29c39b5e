package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "inflect-auth"

// ErrInvalidToken はトークンの署名・期限・形式が不正であることを表す。
var ErrInvalidToken = errors.New("invalid token")

// AccessClaims はセッションCookieに格納するアクセストークンのクレーム。
type AccessClaims struct {
	SessionID string `json:"sid"`
	Email     string `json:"email"`
	jwt.RegisteredClaims
}

// stateClaims はOAuth開始時に発行するstateトークンのクレーム。
// ログイン後の戻り先URLを改ざんされない形で認証サービスのコールバックまで運ぶ。
type stateClaims struct {
	Provider   string `json:"provider"`
	RedirectTo string `json:"redirect_to"`
	jwt.RegisteredClaims
}

// TokenSigner はHS256でトークンを署名・検証する。
type TokenSigner struct {
	secret []byte
	now    func() time.Time
}

// NewTokenSigner はTokenSignerを生成する。
func NewTokenSigner(secret string) (*TokenSigner, error) {
	if len(secret) < 16 {
		return nil, errors.New("session secret must be at least 16 bytes")
	}
	return &TokenSigner{secret: []byte(secret), now: time.Now}, nil
}

// IssueAccess はセッションに対応するアクセストークンを発行する。
func (s *TokenSigner) IssueAccess(sessionID, userID, email string, expiresAt time.Time) (string, error) {
	claims := AccessClaims{
		SessionID: sessionID,
		Email:     email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(s.now()),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// ParseAccess はアクセストークンを検証してクレームを返す。
func (s *TokenSigner) ParseAccess(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := s.parse(token, claims); err != nil {
		return nil, err
	}
	if claims.SessionID == "" || claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing sid or sub", ErrInvalidToken)
	}
	return claims, nil
}

// IssueState はOAuthのstateトークンを発行する。有効期間は10分。
func (s *TokenSigner) IssueState(provider, redirectTo, nonce string) (string, error) {
	claims := stateClaims{
		Provider:   provider,
		RedirectTo: redirectTo,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        nonce,
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(s.now()),
			ExpiresAt: jwt.NewNumericDate(s.now().Add(10 * time.Minute)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// parseState はstateトークンを検証してクレームを返す。
func (s *TokenSigner) parseState(token string) (*stateClaims, error) {
	claims := &stateClaims{}
	if err := s.parse(token, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

func (s *TokenSigner) parse(token string, claims jwt.Claims) error {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	_, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return nil
}
