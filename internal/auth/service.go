package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/congo-pay/wallet-ledger/internal/identity"
)

// ErrTokenRevoked is returned for tokens issued before the last logout.
var ErrTokenRevoked = errors.New("token version invalidated")

// Service issues and verifies access tokens.
type Service struct {
	secret []byte
	ttl    time.Duration
	idRepo identity.Repository
	now    func() time.Time
}

// NewService constructs a token service.
func NewService(secret string, ttl time.Duration, idRepo identity.Repository) *Service {
	return &Service{secret: []byte(secret), ttl: ttl, idRepo: idRepo, now: time.Now}
}

// Token is an issued access token.
type Token struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Login issues an access token for an authenticated user.
func (s *Service) Login(user identity.User) (Token, error) {
	now := s.now()
	signed, err := SignHS256(Claims{
		UserID:  user.ID,
		Version: user.TokenVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}, s.secret)
	if err != nil {
		return Token{}, err
	}
	return Token{AccessToken: signed, ExpiresIn: int64(s.ttl.Seconds())}, nil
}

// Verify checks the token and that it was issued under the user's current
// token version, returning the user id.
func (s *Service) Verify(ctx context.Context, token string) (string, error) {
	claims, err := ParseAndVerifyHS256(token, s.secret, s.now)
	if err != nil {
		return "", err
	}
	user, err := s.idRepo.FindByID(ctx, claims.UserID)
	if err != nil {
		return "", ErrInvalidToken
	}
	if user.TokenVersion != claims.Version {
		return "", ErrTokenRevoked
	}
	return user.ID, nil
}

// Logout increments the token version so older tokens become invalid.
func (s *Service) Logout(ctx context.Context, userID string) error {
	user, err := s.idRepo.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	return s.idRepo.UpdateTokenVersion(ctx, user.ID, user.TokenVersion+1)
}
