package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/Mavuisra/naklass-sub005/core"
	"github.com/Mavuisra/naklass-sub005/core/academicyear"
)

type yearApi struct {
	svc       *academicyear.Service
	validator *core.Validator
}

func registerYearAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := yearApi{svc: deps.YearSvc, validator: deps.Validator}

	yg := g.Group("/years", jwt, schoolMiddleware())
	yg.GET("", api.query)
	yg.GET("/active", api.retrieveActive)

	admin := adminMiddleware()
	yg.POST("", api.create, admin)
	yg.POST("/end", api.end, admin)
	yg.GET("/:id", api.retrieve, admin)
	yg.PUT("/:id", api.update, admin)
	yg.DELETE("/:id", api.destroy, admin)
	yg.POST("/:id/activate", api.activate, admin)
}

func (api *yearApi) query(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	filter := new(academicyear.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []academicyear.AcademicYear{})
	}
	years, err := api.svc.Query(ctx.Request().Context(), actor, filter)
	if err != nil {
		return errors.Wrap(err, "querying academic years")
	}
	return ctx.JSON(http.StatusOK, years)
}

func (api *yearApi) retrieveActive(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	year, err := api.svc.GetActive(ctx.Request().Context(), actor)
	if err != nil {
		return errors.Wrap(err, "getting active academic year")
	}
	return ctx.JSON(http.StatusOK, year)
}

func (api *yearApi) retrieve(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	year, err := api.svc.Get(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting academic year")
	}
	return ctx.JSON(http.StatusOK, year)
}

func (api *yearApi) create(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	var data academicyear.NewYear
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewYear")
	}
	year, err := api.svc.Create(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "creating academic year")
	}
	return ctx.JSON(http.StatusCreated, year)
}

func (api *yearApi) update(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	var data academicyear.UpdateYear
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateYear")
	}
	year, err := api.svc.Edit(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "editing academic year")
	}
	return ctx.JSON(http.StatusOK, year)
}

func (api *yearApi) activate(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	year, err := api.svc.Activate(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "activating academic year")
	}
	return ctx.JSON(http.StatusOK, year)
}

func (api *yearApi) end(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	if err := bindConfirm(ctx, api.validator); err != nil {
		return err
	}
	res, err := api.svc.End(ctx.Request().Context(), actor)
	if err != nil {
		return errors.Wrap(err, "ending academic year")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *yearApi) destroy(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.Delete(ctx.Request().Context(), actor, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting academic year")
	}
	return ctx.NoContent(http.StatusNoContent)
}
