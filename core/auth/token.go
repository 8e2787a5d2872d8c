package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

const audience = "clubhub"

// Claims represents the authorization claims transmitted via a JWT.
// Subject is the identity ID and ID (jti) the session ID.
type Claims struct {
	jwt.RegisteredClaims
	OrigIssuedAt int64  `json:"oriat,omitempty"`
	Email        string `json:"email,omitempty"`
}

func (svc *Service) signClaims(claims *Claims) (Token, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	ss, err := token.SignedString(svc.signingKey)
	if err != nil {
		return Token{}, errors.Wrap(err, "signing token")
	}
	return Token{Token: ss, ExpiresAt: claims.ExpiresAt.Time}, nil
}

func (svc *Service) newClaims(identityID, email, sessionID string, origIssuedAt time.Time) *Claims {
	now := svc.now().UTC()
	return &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    svc.appName,
			Subject:   identityID,
			Audience:  jwt.ClaimStrings{audience},
			ID:        sessionID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(svc.tokenTTL)),
		},
		OrigIssuedAt: origIssuedAt.Unix(),
		Email:        email,
	}
}

func (svc *Service) parseToken(raw string) (*Claims, error) {
	claims := new(Claims)
	_, err := jwt.ParseWithClaims(
		raw, claims,
		func(*jwt.Token) (interface{}, error) { return svc.signingKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(audience),
		jwt.WithIssuer(svc.appName),
		jwt.WithTimeFunc(svc.now),
	)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
