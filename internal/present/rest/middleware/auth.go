package middleware

import (
	"context"
	"fmt"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/totegamma/concrnt-parallel/internal/domain"
	"github.com/totegamma/concrnt-parallel/internal/present/rest/presenter"
	"github.com/totegamma/concrnt-parallel/internal/service"
)

var tracer = otel.Tracer("auth")

// Authenticator resolves a bearer token to the requester's ccid.
type Authenticator interface {
	AuthJwt(ctx context.Context, token string) (*service.AuthResult, error)
}

type AuthMiddleware struct {
	auth Authenticator
}

func NewAuthMiddleware(auth Authenticator) *AuthMiddleware {
	return &AuthMiddleware{
		auth: auth,
	}
}

// IdentifyIdentity stores the requester of a valid bearer token in the
// request context. Requests without a valid token pass through anonymously.
func (s *AuthMiddleware) IdentifyIdentity(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, span := tracer.Start(c.Request().Context(), "Auth.Middleware.IdentifyIdentity")
		defer span.End()

		authHeader := c.Request().Header.Get("authorization")

		if authHeader != "" {
			split := strings.Split(authHeader, " ")
			if len(split) != 2 {
				span.RecordError(fmt.Errorf("invalid authentication header"))
				goto skipCheckAuthorization
			}

			authType, token := split[0], split[1]
			if authType != "Bearer" {
				span.RecordError(fmt.Errorf("only Bearer is acceptable"))
				goto skipCheckAuthorization
			}

			result, err := s.auth.AuthJwt(ctx, token)
			if err != nil {
				span.RecordError(errors.Wrap(err, "AuthMiddleware.IdentifyIdentity: s.auth.AuthJwt failed"))
				goto skipCheckAuthorization
			}

			ctx = context.WithValue(ctx, domain.RequesterIdCtxKey, result.CCID)
			span.SetAttributes(attribute.String("RequesterId", result.CCID))
		}

	skipCheckAuthorization:
		c.SetRequest(c.Request().WithContext(ctx))
		return next(c)
	}
}

// RequireIdentity rejects requests IdentifyIdentity could not attribute.
func RequireIdentity(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if Requester(c.Request().Context()) == "" {
			return presenter.Unauthorized(c, "authentication required")
		}
		return next(c)
	}
}

// Requester returns the authenticated ccid of the request, or empty.
func Requester(ctx context.Context) string {
	ccid, _ := ctx.Value(domain.RequesterIdCtxKey).(string)
	return ccid
}
