package echoapi

import (
	stderrors "errors"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/Mavuisra/naklass-sub005/core"
	"github.com/Mavuisra/naklass-sub005/core/school"
	"github.com/Mavuisra/naklass-sub005/core/user"
)

func contextHasAnyRole(actor core.Actor, roles []string) bool {
	if len(roles) == 0 {
		return true
	}
	for _, role := range roles {
		if core.StringsContain(actor.Roles, role) {
			return true
		}
	}
	return false
}

// authMiddleware validates the JWT, then reloads the account and its school so that
// revoked access takes effect before the token expires.
func authMiddleware(conf *core.Config, usrSvc *user.Service, schoolSvc *school.Service) echo.MiddlewareFunc {
	jwt := newJWTMiddleware(conf)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return jwt(accountMiddleware(usrSvc, schoolSvc)(next))
	}
}

func accountMiddleware(usrSvc *user.Service, schoolSvc *school.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			actor, err := getContextActor(ctx)
			if err != nil {
				return err
			}
			reqCtx := ctx.Request().Context()

			usr, err := usrSvc.GetByID(reqCtx, actor.UserID)
			if err != nil {
				if stderrors.Is(err, user.ErrNotFound) {
					return errUnauthorized
				}
				return errors.Wrap(err, "finding user by ID")
			}
			if !usr.IsActive {
				return errAccountDeactivated
			}
			if usr.SchoolID != actor.SchoolID {
				return errInvalidToken
			}
			if usr.SchoolID == "" {
				return next(ctx)
			}

			sch, err := schoolSvc.Get(reqCtx, usr.SchoolID)
			if err != nil {
				if stderrors.Is(err, school.ErrNotFound) {
					return errUnauthorized
				}
				return errors.Wrap(err, "finding user school")
			}
			if !sch.CanLogin() {
				return errSchoolDisabled
			}
			return next(ctx)
		}
	}
}

// schoolMiddleware only lets through users attached to a school.
func schoolMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			actor, err := getContextActor(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context actor")
			}
			if actor.SchoolID == "" {
				return errHttpForbidden
			}
			return next(ctx)
		}
	}
}

// adminMiddleware only lets through school admins holding one of roles (any admin role when empty).
func adminMiddleware(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			actor, err := getContextActor(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context actor")
			}
			if actor.SchoolID != "" && actor.IsAdmin() && contextHasAnyRole(actor, roles) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

func superAdminMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			actor, err := getContextActor(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context actor")
			}
			if actor.IsSuperAdmin() {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}
