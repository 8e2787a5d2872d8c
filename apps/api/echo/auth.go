package echoapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	pkgerrors "github.com/pkg/errors"

	"github.com/trezcool/clubhub/core"
	"github.com/trezcool/clubhub/core/auth"
	"github.com/trezcool/clubhub/core/member"
	"github.com/trezcool/clubhub/core/portal"
)

const (
	contextActorKey = "actor"
	contextTokenKey = "token"
)

// requestActor is the session behind an authenticated request.
type requestActor struct {
	resolver *member.Resolver
	claims   *auth.Claims
	identity member.Identity
	user     member.User
}

var _ portal.Actor = (*requestActor)(nil) // interface compliance check

func (a *requestActor) Resolved() bool      { return true }
func (a *requestActor) User() *member.User { usr := a.user; return &usr }

func (a *requestActor) Refresh(ctx context.Context) error {
	a.user = a.resolver.Resolve(ctx, a.identity)
	return nil
}

// bearerAuth verifies the bearer token (or the `token` query param, for websockets) and resolves the acting user.
func bearerAuth(svc *auth.Service, resolver *member.Resolver) echo.MiddlewareFunc {
	return middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
		KeyLookup:  "header:" + echo.HeaderAuthorization + ",query:token",
		AuthScheme: "Bearer",
		Validator: func(token string, ctx echo.Context) (bool, error) {
			reqCtx := ctx.Request().Context()
			claims, identity, err := svc.Verify(reqCtx, token)
			if err != nil {
				return false, err
			}
			ctx.Set(contextTokenKey, token)
			ctx.Set(contextActorKey, &requestActor{
				resolver: resolver,
				claims:   claims,
				identity: identity,
				user:     resolver.Resolve(reqCtx, identity),
			})
			return true, nil
		},
		ErrorHandler: func(err error, ctx echo.Context) error {
			var missing *middleware.ErrKeyAuthMissing
			if errors.As(err, &missing) {
				return errUnauthenticated
			}
			return err
		},
	})
}

func getContextActor(ctx echo.Context) (*requestActor, error) {
	if actor, ok := ctx.Get(contextActorKey).(*requestActor); ok {
		return actor, nil
	}
	return nil, errUnauthenticated
}

// requestUser returns the acting user, if any, for error reports.
func requestUser(ctx echo.Context) member.User {
	if actor, err := getContextActor(ctx); err == nil {
		return actor.user
	}
	return member.User{}
}

type authApi struct {
	svc      *auth.Service
	validate *validator.Validate
}

func registerAuthAPI(g *echo.Group, bearer echo.MiddlewareFunc, svc *auth.Service, validate *validator.Validate) {
	api := authApi{svc: svc, validate: validate}

	ag := g.Group("/auth")

	// un-authed endpoints
	ag.POST("/register", api.register)
	ag.POST("/login", api.login)

	// authed endpoints
	ag.POST("/token-refresh", api.refreshToken, bearer)
	ag.POST("/logout", api.logout, bearer)
	ag.POST("/logout-all", api.logoutEverywhere, bearer)
}

// Handlers

func (api *authApi) register(ctx echo.Context) error {
	var data member.NewAccount
	if err := ctx.Bind(&data); err != nil {
		return pkgerrors.Wrap(err, "binding to NewAccount")
	}
	// role and admin flag cannot be chosen by the caller
	data.Role, data.IsAdmin = member.RoleMember, false

	identity, err := api.svc.SignUp(ctx.Request().Context(), data)
	if err != nil {
		return pkgerrors.Wrap(err, "signing up")
	}
	return ctx.JSON(http.StatusCreated, identity)
}

func (api *authApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return pkgerrors.Wrap(err, "binding to LoginRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	token, identity, err := api.svc.SignInWithPassword(ctx.Request().Context(), data.Email, data.Password)
	if err != nil {
		return pkgerrors.Wrap(err, "signing in")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token, Identity: identity})
}

func (api *authApi) refreshToken(ctx echo.Context) error {
	raw, _ := ctx.Get(contextTokenKey).(string)
	token, err := api.svc.RefreshToken(ctx.Request().Context(), raw)
	if err != nil {
		return pkgerrors.Wrap(err, "refreshing token")
	}
	return ctx.JSON(http.StatusOK, token)
}

func (api *authApi) logout(ctx echo.Context) error {
	raw, _ := ctx.Get(contextTokenKey).(string)
	if err := api.svc.SignOut(ctx.Request().Context(), raw); err != nil {
		return pkgerrors.Wrap(err, "signing out")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *authApi) logoutEverywhere(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.SignOutEverywhere(ctx.Request().Context(), actor.identity.ID); err != nil {
		return pkgerrors.Wrap(err, "signing out everywhere")
	}
	return ctx.NoContent(http.StatusNoContent)
}

type (
	LoginRequest struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	LoginResponse struct {
		auth.Token
		Identity member.Identity `json:"identity"`
	}
)

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	lr.Email = core.CleanString(lr.Email, true /* lower */)
	return validate.Struct(lr)
}
