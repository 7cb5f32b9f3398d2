package echoapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/Mavuisra/naklass-sub005/core/school"
)

type schoolApi struct {
	svc *school.Service
}

func registerSignupAPI(g *echo.Group, deps ServerDeps) {
	api := schoolApi{svc: deps.SchoolSvc}
	g.POST("/signup", api.signup)
}

func registerSchoolAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := schoolApi{svc: deps.SchoolSvc}

	sg := g.Group("/school", jwt, schoolMiddleware())
	sg.GET("", api.retrieve)
	sg.GET("/notifications", api.notifications)

	admin := adminMiddleware()
	sg.PUT("", api.update, admin)
	sg.POST("/logo", api.updateLogo, admin)
	sg.GET("/stats", api.stats, admin)
	sg.POST("/notifications/:id/read", api.markNotificationRead, admin)
}

func (api *schoolApi) signup(ctx echo.Context) error {
	var data school.NewSignup
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSignup")
	}
	sch, err := api.svc.Signup(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "signing up school")
	}
	return ctx.JSON(http.StatusCreated, sch)
}

func (api *schoolApi) retrieve(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	sch, err := api.svc.Get(ctx.Request().Context(), actor.SchoolID)
	if err != nil {
		return errors.Wrap(err, "getting school")
	}
	return ctx.JSON(http.StatusOK, sch)
}

func (api *schoolApi) update(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	var data school.Profile
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Profile")
	}
	sch, err := api.svc.UpdateProfile(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "updating school profile")
	}
	return ctx.JSON(http.StatusOK, sch)
}

func (api *schoolApi) updateLogo(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	filename, f, err := formFile(ctx, "logo")
	if err != nil {
		return err
	}
	defer f.Close()

	sch, err := api.svc.UpdateLogo(ctx.Request().Context(), actor, filename, f)
	if err != nil {
		return errors.Wrap(err, "updating school logo")
	}
	return ctx.JSON(http.StatusOK, sch)
}

func (api *schoolApi) stats(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	stats, err := api.svc.Stats(ctx.Request().Context(), actor)
	if err != nil {
		return errors.Wrap(err, "getting school stats")
	}
	return ctx.JSON(http.StatusOK, stats)
}

func (api *schoolApi) notifications(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	unreadOnly, _ := strconv.ParseBool(ctx.QueryParam("unread"))
	notifs, err := api.svc.Notifications(ctx.Request().Context(), actor, unreadOnly)
	if err != nil {
		return errors.Wrap(err, "querying notifications")
	}
	if notifs == nil {
		notifs = []school.Notification{}
	}
	return ctx.JSON(http.StatusOK, notifs)
}

func (api *schoolApi) markNotificationRead(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.MarkNotificationRead(ctx.Request().Context(), actor, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "marking notification read")
	}
	return ctx.NoContent(http.StatusNoContent)
}
