package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/clavehr/identity/pkg/kernel"
	"github.com/golang-jwt/jwt/v5"
)

// JWTService implements TokenService with HS256-signed JWTs.
type JWTService struct {
	secretKey       []byte
	accessTokenTTL  time.Duration
	refreshTokenTTL time.Duration
	issuer          string
}

// NewJWTService creates the JWT token service. An empty secret is a fatal
// misconfiguration: the constructor refuses it so the container never boots
// with unsigned-in-practice tokens.
func NewJWTService(secretKey, issuer string, accessTokenTTL, refreshTokenTTL time.Duration) (*JWTService, error) {
	if secretKey == "" {
		return nil, ErrMissingSigningKey()
	}
	if accessTokenTTL == 0 {
		accessTokenTTL = time.Hour
	}
	if refreshTokenTTL == 0 {
		refreshTokenTTL = 7 * 24 * time.Hour
	}
	if issuer == "" {
		issuer = "clavehr-identity"
	}

	return &JWTService{
		secretKey:       []byte(secretKey),
		accessTokenTTL:  accessTokenTTL,
		refreshTokenTTL: refreshTokenTTL,
		issuer:          issuer,
	}, nil
}

// JWTClaims is the wire shape of our JWTs.
type JWTClaims struct {
	TokenType      string   `json:"type"`
	Email          string   `json:"email,omitempty"`
	Role           string   `json:"role,omitempty"`
	Roles          []string `json:"roles,omitempty"`
	OrganizationID *string  `json:"organization_id,omitempty"`
	Status         string   `json:"status,omitempty"`
	jwt.RegisteredClaims
}

// GenerateAccessToken mints an access token carrying the identity snapshot in
// claims. Expiry and type come from the service, not the caller.
func (j *JWTService) GenerateAccessToken(claims TokenClaims) (string, error) {
	now := time.Now()

	roles := claims.Roles
	if roles == nil {
		roles = []string{}
	}
	var orgID *string
	if claims.OrganizationID != nil {
		s := claims.OrganizationID.String()
		orgID = &s
	}

	jwtClaims := JWTClaims{
		TokenType:      TokenTypeAccess,
		Email:          claims.Email,
		Role:           claims.Role,
		Roles:          roles,
		OrganizationID: orgID,
		Status:         claims.Status,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    j.issuer,
			Subject:   claims.UserID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.accessTokenTTL)),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwtClaims)

	tokenString, err := token.SignedString(j.secretKey)
	if err != nil {
		return "", ErrTokenGenerationFailed().WithDetail("error", err.Error())
	}
	return tokenString, nil
}

// GenerateRefreshToken mints a refresh token: subject and type discriminator
// only, no identity snapshot.
func (j *JWTService) GenerateRefreshToken(userID kernel.UserID) (string, error) {
	now := time.Now()

	claims := JWTClaims{
		TokenType: TokenTypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    j.issuer,
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.refreshTokenTTL)),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString(j.secretKey)
	if err != nil {
		return "", ErrTokenGenerationFailed().WithDetail("error", err.Error())
	}
	return tokenString, nil
}

// ValidateAccessToken verifies signature and expiry, then the type
// discriminator, and returns the decoded claims.
func (j *JWTService) ValidateAccessToken(tokenString string) (*TokenClaims, error) {
	claims, err := j.parse(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != TokenTypeAccess {
		return nil, ErrWrongTokenType().WithDetail("type", claims.TokenType)
	}

	var orgID *kernel.OrgID
	if claims.OrganizationID != nil {
		id := kernel.NewOrgID(*claims.OrganizationID)
		orgID = &id
	}
	return &TokenClaims{
		UserID:         kernel.NewUserID(claims.Subject),
		Email:          claims.Email,
		Role:           claims.Role,
		Roles:          claims.Roles,
		OrganizationID: orgID,
		Status:         claims.Status,
		TokenType:      claims.TokenType,
		IssuedAt:       claims.IssuedAt.Time,
		ExpiresAt:      claims.ExpiresAt.Time,
	}, nil
}

// ValidateRefreshToken verifies a refresh token and returns its subject.
func (j *JWTService) ValidateRefreshToken(tokenString string) (kernel.UserID, error) {
	claims, err := j.parse(tokenString)
	if err != nil {
		return "", err
	}
	if claims.TokenType != TokenTypeRefresh {
		return "", ErrWrongTokenType().WithDetail("type", claims.TokenType)
	}
	return kernel.NewUserID(claims.Subject), nil
}

// AccessTokenTTL returns the configured access token lifetime.
func (j *JWTService) AccessTokenTTL() time.Duration { return j.accessTokenTTL }

// RefreshTokenTTL returns the configured refresh token lifetime.
func (j *JWTService) RefreshTokenTTL() time.Duration { return j.refreshTokenTTL }

func (j *JWTService) parse(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.secretKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken().WithDetail("error", err.Error())
		}
		return nil, ErrInvalidToken().WithDetail("error", err.Error())
	}
	if !token.Valid {
		return nil, ErrInvalidToken().WithDetail("error", "token is invalid")
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok {
		return nil, ErrInvalidToken().WithDetail("error", "invalid claims type")
	}
	return claims, nil
}
