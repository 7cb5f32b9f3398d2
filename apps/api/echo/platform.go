package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/Mavuisra/naklass-sub005/core"
	"github.com/Mavuisra/naklass-sub005/core/school"
)

// platformApi serves the super-admin console.
type platformApi struct {
	svc       *school.Service
	validator *core.Validator
}

func registerPlatformAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := platformApi{svc: deps.SchoolSvc, validator: deps.Validator}

	pg := g.Group("/admin", jwt, superAdminMiddleware())
	pg.GET("/stats", api.stats)
	pg.GET("/signup-requests", api.signupRequests)

	sg := pg.Group("/schools")
	sg.GET("", api.query)
	sg.POST("", api.create)
	sg.GET("/:id", api.retrieve)
	sg.PUT("/:id/activation", api.setActivation)
	sg.POST("/:id/validation", api.transition)
	sg.GET("/:id/history", api.history)
	sg.DELETE("/:id", api.destroy)
}

func (api *platformApi) query(ctx echo.Context) error {
	filter := new(school.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []school.School{})
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	schools, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying schools")
	}
	if schools == nil {
		schools = []school.School{}
	}
	return ctx.JSON(http.StatusOK, schools)
}

func (api *platformApi) create(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	var data school.NewSchool
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSchool")
	}
	sch, err := api.svc.Create(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "creating school")
	}
	return ctx.JSON(http.StatusCreated, sch)
}

func (api *platformApi) retrieve(ctx echo.Context) error {
	sch, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting school")
	}
	return ctx.JSON(http.StatusOK, sch)
}

func (api *platformApi) setActivation(ctx echo.Context) error {
	var data ActivationRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ActivationRequest")
	}
	if err := api.validator.Struct(data); err != nil {
		return err
	}
	sch, err := api.svc.SetActive(ctx.Request().Context(), ctx.Param("id"), *data.Active)
	if err != nil {
		return errors.Wrap(err, "setting school activation")
	}
	return ctx.JSON(http.StatusOK, sch)
}

func (api *platformApi) transition(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	var data school.TransitionRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to TransitionRequest")
	}
	sch, err := api.svc.Transition(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "transitioning school validation")
	}
	return ctx.JSON(http.StatusOK, sch)
}

func (api *platformApi) history(ctx echo.Context) error {
	entries, err := api.svc.History(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying school history")
	}
	if entries == nil {
		entries = []school.HistoryEntry{}
	}
	return ctx.JSON(http.StatusOK, entries)
}

func (api *platformApi) destroy(ctx echo.Context) error {
	if err := bindConfirm(ctx, api.validator); err != nil {
		return err
	}
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting school")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *platformApi) signupRequests(ctx echo.Context) error {
	reqs, err := api.svc.SignupRequests(ctx.Request().Context(), ctx.QueryParam("statut"))
	if err != nil {
		return errors.Wrap(err, "querying signup requests")
	}
	if reqs == nil {
		reqs = []school.SignupRequest{}
	}
	return ctx.JSON(http.StatusOK, reqs)
}

func (api *platformApi) stats(ctx echo.Context) error {
	stats, err := api.svc.PlatformStats(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "getting platform stats")
	}
	return ctx.JSON(http.StatusOK, stats)
}

type ActivationRequest struct {
	Active *bool `json:"activee" validate:"required"`
}
