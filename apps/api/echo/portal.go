package echoapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/clubhub/core/guard"
	"github.com/trezcool/clubhub/core/portal"
)

type portalApi struct {
	svc *portal.Service
}

func registerPortalAPI(g *echo.Group, bearer echo.MiddlewareFunc, guards guard.Paths, svc *portal.Service) {
	api := portalApi{svc: svc}
	authed := guardMiddleware(guards.Authenticated())
	clubHead := guardMiddleware(guards.ClubHead())
	admin := guardMiddleware(guards.Admin())

	cg := g.Group("/chapters", bearer, authed)
	cg.GET("", api.listChapters)
	cg.POST("", api.createChapter, admin)
	cg.GET("/:id/clubs", api.listChapterClubs)

	kg := g.Group("/clubs", bearer, authed)
	kg.GET("", api.listClubs)
	kg.POST("", api.createClub, admin)
	kg.GET("/:id/members", api.listClubMembers)
	kg.PUT("/:id/head", api.assignClubHead, admin)

	eg := g.Group("/events", bearer, authed)
	eg.GET("", api.listEvents)
	eg.POST("", api.createEvent)
	eg.GET("/:id/participants", api.listParticipants)
	eg.POST("/:id/participants", api.addParticipant)
	eg.PUT("/:id/participants/:member/attendance", api.markAttendance)

	g.POST("/credits", api.giveCredits, bearer, authed)

	// the club head's own club
	g.GET("/my-club", api.myClub, bearer, clubHead)
}

// Handlers

func (api *portalApi) listChapters(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	chapters, err := api.svc.ListChapters(ctx.Request().Context(), actor)
	if err != nil {
		return errors.Wrap(err, "listing chapters")
	}
	if chapters == nil {
		chapters = []portal.Chapter{}
	}
	return ctx.JSON(http.StatusOK, chapters)
}

func (api *portalApi) createChapter(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	var data portal.NewChapter
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewChapter")
	}
	chapter, err := api.svc.CreateChapter(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "creating chapter")
	}
	return ctx.JSON(http.StatusCreated, chapter)
}

func (api *portalApi) listChapterClubs(ctx echo.Context) error {
	return api.clubs(ctx, ctx.Param("id"))
}

func (api *portalApi) listClubs(ctx echo.Context) error {
	return api.clubs(ctx, ctx.QueryParam("chapter"))
}

func (api *portalApi) clubs(ctx echo.Context, chapterID string) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	clubs, err := api.svc.ListClubs(ctx.Request().Context(), actor, chapterID)
	if err != nil {
		return errors.Wrap(err, "listing clubs")
	}
	if clubs == nil {
		clubs = []portal.Club{}
	}
	return ctx.JSON(http.StatusOK, clubs)
}

func (api *portalApi) createClub(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	var data portal.NewClub
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewClub")
	}
	club, err := api.svc.CreateClub(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "creating club")
	}
	return ctx.JSON(http.StatusCreated, club)
}

func (api *portalApi) listClubMembers(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	members, err := api.svc.ListClubMembers(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "listing club members")
	}
	if members == nil {
		members = []portal.ClubMember{}
	}
	return ctx.JSON(http.StatusOK, members)
}

func (api *portalApi) assignClubHead(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	var data portal.AssignClubHead
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AssignClubHead")
	}
	data.ClubID = ctx.Param("id")
	if err := api.svc.AssignClubHead(ctx.Request().Context(), actor, data); err != nil {
		return errors.Wrap(err, "assigning club head")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *portalApi) myClub(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	reqCtx := ctx.Request().Context()
	club, err := api.svc.GetClub(reqCtx, actor, actor.User().Club)
	if err != nil {
		return errors.Wrap(err, "getting own club")
	}
	members, err := api.svc.ListClubMembers(reqCtx, actor, club.ID)
	if err != nil {
		return errors.Wrap(err, "listing own club members")
	}
	if members == nil {
		members = []portal.ClubMember{}
	}
	return ctx.JSON(http.StatusOK, MyClubResponse{Club: club, Members: members})
}

func (api *portalApi) listEvents(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	upcoming, _ := strconv.ParseBool(ctx.QueryParam("upcoming"))
	events, err := api.svc.ListEvents(ctx.Request().Context(), actor, upcoming)
	if err != nil {
		return errors.Wrap(err, "listing events")
	}
	if events == nil {
		events = []portal.Event{}
	}
	return ctx.JSON(http.StatusOK, events)
}

func (api *portalApi) createEvent(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	var data portal.NewEvent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewEvent")
	}
	evt, err := api.svc.CreateEvent(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "creating event")
	}
	return ctx.JSON(http.StatusCreated, evt)
}

func (api *portalApi) listParticipants(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	participants, err := api.svc.ListParticipants(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "listing participants")
	}
	if participants == nil {
		participants = []portal.Participant{}
	}
	return ctx.JSON(http.StatusOK, participants)
}

func (api *portalApi) addParticipant(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	var data portal.EventMember
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to EventMember")
	}
	data.EventID = ctx.Param("id")
	if err := api.svc.AddMemberToEvent(ctx.Request().Context(), actor, data); err != nil {
		return errors.Wrap(err, "adding participant")
	}
	return ctx.NoContent(http.StatusCreated)
}

func (api *portalApi) markAttendance(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	data := portal.EventMember{EventID: ctx.Param("id"), MemberID: ctx.Param("member")}
	tx, err := api.svc.MarkAttendance(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "marking attendance")
	}
	if tx == nil { // already attended
		return ctx.NoContent(http.StatusNoContent)
	}
	return ctx.JSON(http.StatusOK, tx)
}

func (api *portalApi) giveCredits(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	var data portal.GiveCredits
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to GiveCredits")
	}
	tx, err := api.svc.GiveCredits(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "giving credits")
	}
	return ctx.JSON(http.StatusCreated, tx)
}

type MyClubResponse struct {
	portal.Club
	Members []portal.ClubMember `json:"members"`
}
