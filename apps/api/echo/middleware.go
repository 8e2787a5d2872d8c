package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/clubhub/core/guard"
	"github.com/trezcool/clubhub/core/member"
)

// guardMiddleware runs g against the request actor. It must be mounted after bearerAuth.
// A redirect to the login page becomes a 401 and a redirect home a 403, both carrying the location.
func guardMiddleware(g guard.Guard) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			var st guard.State = signedOut{}
			if actor, err := getContextActor(ctx); err == nil {
				st = actor
			}

			dec := g(st, ctx.Request().URL.RequestURI())
			switch dec.Outcome {
			case guard.Allow:
				return next(ctx)
			case guard.RedirectHome:
				ctx.Response().Header().Set(echo.HeaderLocation, dec.Location)
				return errHttpForbidden
			case guard.RedirectLogin:
				ctx.Response().Header().Set(echo.HeaderLocation, dec.Location)
			}
			return echo.NewHTTPError(http.StatusUnauthorized, errUnauthenticated.Message)
		}
	}
}

// signedOut is the resolved state of a request without a session.
type signedOut struct{}

func (signedOut) Resolved() bool { return true }
func (signedOut) User() *member.User {
	return nil
}
