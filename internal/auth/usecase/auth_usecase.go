package usecase

import (
	"errors"
	"time"

	authdomain "mailflow-backend/internal/auth/domain"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrNoSecret     = errors.New("JWT secret is not configured")
)

// AuthUsecase validates the access tokens issued by the account service.
type AuthUsecase interface {
	ValidateToken(tokenString string) (*authdomain.Principal, error)
	GenerateAccessToken(principal authdomain.Principal, ttl time.Duration) (string, error)
}

// authUsecase implements AuthUsecase interface
type authUsecase struct {
	secret []byte
	now    func() time.Time
}

// NewAuthUsecase creates a new instance of authUsecase
func NewAuthUsecase(secret string) AuthUsecase {
	return &authUsecase{
		secret: []byte(secret),
		now:    time.Now,
	}
}

// GenerateAccessToken signs a short-lived HS256 token carrying user_id.
func (u *authUsecase) GenerateAccessToken(principal authdomain.Principal, ttl time.Duration) (string, error) {
	if len(u.secret) == 0 {
		return "", ErrNoSecret
	}
	now := u.now()
	claims := jwt.MapClaims{
		"user_id": principal.UserID,
		"email":   principal.Email,
		"exp":     now.Add(ttl).Unix(),
		"iat":     now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(u.secret)
}

func (u *authUsecase) ValidateToken(tokenString string) (*authdomain.Principal, error) {
	if len(u.secret) == 0 {
		return nil, ErrNoSecret
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return u.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(u.now))
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return nil, ErrInvalidToken
	}
	email, _ := claims["email"].(string)

	return &authdomain.Principal{UserID: userID, Email: email}, nil
}
