// Package auth implements the AuthenticationService collaborator: either a
// real JWT-backed verifier or the disabled mode's fixed mock principal.
// Verifying the JWT signature algorithm itself is explicitly out of scope
// for the registry core (spec.md Non-goals); we lean on a real JWT library
// rather than hand-roll token parsing.
package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/jizhuozhi/hermes/broker/internal/model"
)

// Service is the AuthenticationService collaborator the admission pipeline
// consumes: AuthenticationService.auth(method, credentials) -> Principal.
type Service interface {
	Auth(ctx context.Context, method, credentials string) (*model.Principal, error)
}

// MockAppName, MockOrg and MockRole are the fixed values synthesized by the
// disabled-auth path (spec.md §4.2 step 2).
const (
	MockAppName = "MockApp"
	MockOrg     = "default"
	MockRole    = "admin"
)

// Disabled implements Service for the "authentication is off" mode: every
// call returns the same fixed mock principal, regardless of method or
// credentials.
type Disabled struct{}

func (Disabled) Auth(_ context.Context, _, _ string) (*model.Principal, error) {
	return &model.Principal{
		Subject:         MockAppName,
		Organizations:   []string{MockOrg},
		Roles:           []string{MockRole},
		ServiceAccounts: []string{},
		Authorities:     []string{"1"},
	}, nil
}

// JWTConfig configures the JWT-backed AuthenticationService.
type JWTConfig struct {
	// Secret is the HMAC signing key used to validate bearer tokens.
	// Must be at least 32 characters.
	Secret string
	// Issuer, if non-empty, is enforced against the token's iss claim.
	Issuer string
	// Leeway bounds clock skew tolerance for exp/nbf checks.
	Leeway time.Duration
}

// claims is the expected shape of a hermes broker bearer token: standard
// registered claims plus the organization/role/service-account sets the
// admission pipeline needs for principal enrichment.
type claims struct {
	jwt.RegisteredClaims
	Organizations   []string `json:"orgs"`
	Roles           []string `json:"roles"`
	ServiceAccounts []string `json:"service_accounts"`
	Authorities     []string `json:"authorities"`
}

// JWTService verifies bearer tokens under method "JWT" and resolves a
// Principal from their claims. Concurrent verifications for the identical
// token are deduplicated via singleflight, mirroring the teacher's own use
// of golang.org/x/sync/singleflight for OIDC JWKS lookups.
type JWTService struct {
	cfg    JWTConfig
	logger *zap.SugaredLogger
	group  singleflight.Group
}

// NewJWTService validates cfg and returns a ready Service.
func NewJWTService(cfg JWTConfig, logger *zap.SugaredLogger) (*JWTService, error) {
	if len(cfg.Secret) < 32 {
		return nil, fmt.Errorf("auth: JWT secret must be at least 32 characters")
	}
	if cfg.Leeway <= 0 {
		cfg.Leeway = 30 * time.Second
	}
	return &JWTService{cfg: cfg, logger: logger}, nil
}

// Auth verifies credentials as a JWT under the given method. Only method
// "JWT" is supported; anything else is a DependencyError-shaped rejection
// surfaced to the admission pipeline as an authentication failure.
func (s *JWTService) Auth(_ context.Context, method, credentials string) (*model.Principal, error) {
	if method != "JWT" {
		return nil, fmt.Errorf("auth: unsupported method %q", method)
	}
	if credentials == "" {
		return nil, fmt.Errorf("auth: missing bearer token")
	}

	v, err, _ := s.group.Do(credentials, func() (any, error) {
		return s.verify(credentials)
	})
	if err != nil {
		if s.logger != nil {
			s.logger.Debugf("jwt auth failed: %v", err)
		}
		return nil, err
	}
	return v.(*model.Principal), nil
}

func (s *JWTService) verify(tokenStr string) (*model.Principal, error) {
	var c claims
	token, err := jwt.ParseWithClaims(tokenStr, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(s.cfg.Secret), nil
	}, jwt.WithLeeway(s.cfg.Leeway))
	if err != nil {
		return nil, fmt.Errorf("auth: invalid token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("auth: token rejected")
	}
	if s.cfg.Issuer != "" {
		iss, _ := c.GetIssuer()
		if iss != s.cfg.Issuer {
			return nil, fmt.Errorf("auth: unexpected issuer %q", iss)
		}
	}

	subject, _ := c.GetSubject()
	return &model.Principal{
		Subject:         subject,
		Organizations:   c.Organizations,
		Roles:           c.Roles,
		ServiceAccounts: c.ServiceAccounts,
		Authorities:     c.Authorities,
	}, nil
}
