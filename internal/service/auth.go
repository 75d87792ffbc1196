package service

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"

	"github.com/totegamma/concrnt-parallel"
	"github.com/totegamma/concrnt-parallel/internal/domain"
	"github.com/totegamma/concrnt-parallel/jwt"
)

var tracer = otel.Tracer("auth")

// ErrUnauthorized is returned for every rejected token.
var ErrUnauthorized = errors.New("unauthorized")

type AuthService struct {
	config domain.Config
}

func NewAuthService(config domain.Config) *AuthService {
	return &AuthService{
		config: config,
	}
}

type AuthResult struct {
	CCID string
}

// AuthJwt validates a token issued for this node and returns the requester
// it identifies.
func (s *AuthService) AuthJwt(ctx context.Context, token string) (*AuthResult, error) {
	ctx, span := tracer.Start(ctx, "Auth.Service.AuthJwt")
	defer span.End()

	header, claims, err := jwt.Validate(token)
	if err != nil {
		span.RecordError(errors.Wrap(err, "jwt validation failed"))
		return nil, errors.Wrap(ErrUnauthorized, err.Error())
	}

	if claims.Audience != s.config.FQDN {
		err := fmt.Errorf("%w: jwt audience mismatch: expected %s, got %s", ErrUnauthorized, s.config.FQDN, claims.Audience)
		span.RecordError(err)
		return nil, err
	}

	if claims.Subject != "concrnt" {
		err := fmt.Errorf("%w: invalid subject", ErrUnauthorized)
		span.RecordError(err)
		return nil, err
	}

	keyID := header.KeyID
	if keyID == "" {
		keyID = claims.Issuer
	}

	if !parallel.IsCCID(keyID) {
		err := fmt.Errorf("%w: invalid issuer", ErrUnauthorized)
		span.RecordError(err)
		return nil, err
	}
	return &AuthResult{CCID: keyID}, nil
}
