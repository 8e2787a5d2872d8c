package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/clubhub/core/guard"
	"github.com/trezcool/clubhub/core/member"
	"github.com/trezcool/clubhub/core/portal"
)

type memberApi struct {
	svc       *member.Service
	portalSvc *portal.Service
}

func registerMemberAPI(
	g *echo.Group,
	bearer echo.MiddlewareFunc,
	guards guard.Paths,
	svc *member.Service,
	portalSvc *portal.Service,
) {
	api := memberApi{svc: svc, portalSvc: portalSvc}
	authed := guardMiddleware(guards.Authenticated())
	admin := guardMiddleware(guards.Admin())

	g.GET("/roles", api.queryRoles)
	g.GET("/levels", api.queryLevels)

	me := g.Group("/me", bearer, authed)
	me.GET("", api.retrieveMe)
	me.PUT("", api.updateMe)
	me.GET("/progress", api.progress)
	me.GET("/credits", api.creditHistory)
	me.PUT("/membership", api.updateMembership)

	mg := g.Group("/members", bearer, admin)
	mg.GET("", api.query)
	mg.GET("/:id", api.retrieve)
}

// Handlers

func (api *memberApi) retrieveMe(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, actor.User())
}

func (api *memberApi) updateMe(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}

	var data member.ProfileDetails
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ProfileDetails")
	}
	usr, err := api.svc.UpdateDetails(ctx.Request().Context(), actor.User(), data)
	if err != nil {
		return errors.Wrap(err, "updating profile details")
	}
	actor.user = usr
	return ctx.JSON(http.StatusOK, usr)
}

func (api *memberApi) progress(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, member.ProgressFor(actor.User().TotalCredits))
}

func (api *memberApi) creditHistory(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	txs, err := api.portalSvc.CreditHistory(ctx.Request().Context(), actor)
	if err != nil {
		return errors.Wrap(err, "listing credit history")
	}
	if txs == nil {
		txs = []portal.CreditTransaction{}
	}
	return ctx.JSON(http.StatusOK, txs)
}

func (api *memberApi) updateMembership(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}

	var data portal.UpdateMembership
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateMembership")
	}
	if err := api.portalSvc.UpdateMembership(ctx.Request().Context(), actor, data); err != nil {
		return errors.Wrap(err, "updating membership")
	}
	return ctx.JSON(http.StatusOK, actor.User())
}

func (api *memberApi) query(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}

	filter := new(member.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []member.User{})
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	users, err := api.svc.Query(ctx.Request().Context(), actor.User(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying members")
	}
	return ctx.JSON(http.StatusOK, users)
}

func (api *memberApi) retrieve(ctx echo.Context) error {
	usr, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting member")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *memberApi) queryRoles(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, member.Roles)
}

func (api *memberApi) queryLevels(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, member.Levels)
}
