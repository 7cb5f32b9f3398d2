package echoapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	pkgerrors "github.com/pkg/errors"

	"github.com/Mavuisra/naklass-sub005/core"
	"github.com/Mavuisra/naklass-sub005/core/school"
	"github.com/Mavuisra/naklass-sub005/core/user"
)

const (
	tokenContextKey = "userToken"
	tokenAudience   = "naklass"
)

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.RegisteredClaims
	OrigIssuedAt int64    `json:"oriat,omitempty"`
	SchoolID     string   `json:"school_id,omitempty"`
	Username     string   `json:"username,omitempty"`
	Email        string   `json:"email,omitempty"`
	Roles        []string `json:"roles,omitempty"`
}

// Actor returns the caller identity carried by the token.
func (c Claims) Actor() core.Actor {
	return core.Actor{
		UserID:   c.Subject,
		Username: c.Username,
		Email:    c.Email,
		SchoolID: c.SchoolID,
		Roles:    c.Roles,
	}
}

func GetUserClaims(conf *core.Config, usr user.User, origIat ...int64) *Claims {
	now := time.Now()
	oriat := now.Unix()
	if len(origIat) > 0 {
		oriat = origIat[0]
	}

	return &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    conf.AppName,
			Subject:   usr.ID,
			Audience:  jwt.ClaimStrings{tokenAudience},
			ExpiresAt: jwt.NewNumericDate(now.Add(conf.Server.JWTExpirationDelta)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		OrigIssuedAt: oriat,
		SchoolID:     usr.SchoolID,
		Username:     usr.Username,
		Email:        usr.Email,
		Roles:        usr.Roles,
	}
}

// GenerateToken generates a signed JWT token string representing the user Claims.
func GenerateToken(conf *core.Config, claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	ss, err := token.SignedString([]byte(conf.SecretKey))
	if err != nil {
		return "", pkgerrors.Wrap(err, "signing token")
	}
	return ss, nil
}

func newJWTMiddleware(conf *core.Config) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		SigningKey:    []byte(conf.SecretKey),
		SigningMethod: echojwt.AlgorithmHS256,
		ContextKey:    tokenContextKey,
		NewClaimsFunc: func(echo.Context) jwt.Claims { return new(Claims) },
		ErrorHandler: func(ctx echo.Context, err error) error {
			if ctx.Request().Header.Get(echo.HeaderAuthorization) == "" {
				return errMissingToken
			}
			return errInvalidToken
		},
	})
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(tokenContextKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

func getContextActor(ctx echo.Context) (core.Actor, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return core.Actor{}, err
	}
	return claims.Actor(), nil
}

type authenticator struct {
	conf      *core.Config
	usrSvc    *user.Service
	schoolSvc *school.Service
}

// authenticate resolves the account behind a login request and checks that it may sign in.
func (a authenticator) authenticate(ctx context.Context, req LoginRequest) (user.User, error) {
	var (
		sch    school.School
		err    error
		loaded bool
	)
	if req.School != "" {
		if sch, err = a.schoolSvc.GetByCode(ctx, req.School); err != nil {
			if errors.Is(err, school.ErrNotFound) {
				return user.User{}, errAuthenticationFailed
			}
			return user.User{}, pkgerrors.Wrap(err, "finding school by code")
		}
		loaded = true
	}

	usr, err := a.usrSvc.GetForLogin(ctx, sch.ID, req.Username)
	switch {
	case errors.Is(err, user.ErrNotFound):
		return user.User{}, errAuthenticationFailed
	case errors.Is(err, user.ErrAmbiguousLogin):
		return user.User{}, core.NewValidationError(err, core.FieldError{Field: "school", Error: err.Error()})
	case err != nil:
		return user.User{}, pkgerrors.Wrap(err, "finding user for login")
	}
	if err = usr.CheckPassword(req.Password); err != nil {
		return user.User{}, errAuthenticationFailed
	}
	if !usr.IsActive {
		return user.User{}, errAccountDeactivated
	}

	if usr.SchoolID != "" {
		if !loaded {
			if sch, err = a.schoolSvc.Get(ctx, usr.SchoolID); err != nil {
				return user.User{}, pkgerrors.Wrap(err, "finding user school")
			}
		}
		if !sch.CanLogin() {
			return user.User{}, errSchoolDisabled
		}
	}

	usr, err = a.usrSvc.SetLastLogin(ctx, usr)
	if err != nil {
		return user.User{}, pkgerrors.Wrap(err, "setting lastLogin")
	}
	return usr, nil
}

func (a authenticator) refreshToken(ctx echo.Context) (string, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return "", pkgerrors.Wrap(err, "getting context claims")
	}

	usr, err := a.usrSvc.GetByID(ctx.Request().Context(), claims.Subject)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return "", errUnauthorized
		}
		return "", pkgerrors.Wrap(err, "finding user by ID")
	}

	// check if user is still active
	if !usr.IsActive {
		return "", errAccountDeactivated
	}

	// check if refresh has not expired
	expTime := time.Unix(claims.OrigIssuedAt, 0).Add(a.conf.Server.JWTRefreshExpirationDelta)
	if time.Now().After(expTime) {
		return "", errRefreshExpired
	}

	token, err := GenerateToken(a.conf, GetUserClaims(a.conf, usr, claims.OrigIssuedAt))
	return token, pkgerrors.Wrap(err, "generating token")
}

type authApi struct {
	auth      authenticator
	resetSvc  *user.PasswordResetService
	validator *core.Validator
	logger    core.Logger
}

func registerAuthAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := authApi{
		auth:      authenticator{conf: deps.Conf, usrSvc: deps.UserSvc, schoolSvc: deps.SchoolSvc},
		resetSvc:  deps.ResetSvc,
		validator: deps.Validator,
		logger:    deps.Logger,
	}

	ag := g.Group("/auth")
	ag.POST("/login", api.login)
	ag.POST("/token-refresh", api.refreshToken, jwt)
	ag.POST("/password-reset", api.resetPassword)
	ag.POST("/password-reset-confirm", api.confirmPasswordReset)
}

func (api *authApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return pkgerrors.Wrap(err, "binding to LoginRequest")
	}
	data.Clean()
	if err := api.validator.Struct(data); err != nil {
		return err
	}

	usr, err := api.auth.authenticate(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	token, err := GenerateToken(api.auth.conf, GetUserClaims(api.auth.conf, usr))
	if err != nil {
		return pkgerrors.Wrap(err, "generating token")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token, User: &usr})
}

func (api *authApi) refreshToken(ctx echo.Context) error {
	token, err := api.auth.refreshToken(ctx)
	if err != nil {
		return pkgerrors.Wrap(err, "refreshing token")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

func (api *authApi) resetPassword(ctx echo.Context) error {
	var data PasswordResetRequest
	if err := ctx.Bind(&data); err != nil {
		return pkgerrors.Wrap(err, "binding to PasswordResetRequest")
	}
	data.Email = core.CleanString(data.Email, true /* lower */)
	if err := api.validator.Struct(data); err != nil {
		return err
	}

	if err := api.resetSvc.RequestPasswordReset(ctx.Request().Context(), data.Email); err != nil && !errors.Is(err, user.ErrNotFound) {
		// do not leak account existence
		api.logger.Error(err.Error(), pkgerrors.Wrap(err, "requesting password reset"))
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{
		Success: "If the email address supplied is associated with an active account, " +
			"an email will arrive shortly with instructions to reset your password.",
	})
}

func (api *authApi) confirmPasswordReset(ctx echo.Context) error {
	var data user.ResetUserPassword
	if err := ctx.Bind(&data); err != nil {
		return pkgerrors.Wrap(err, "binding to ResetUserPassword")
	}
	if err := api.resetSvc.ResetPassword(ctx.Request().Context(), data); err != nil {
		return pkgerrors.Wrap(err, "resetting password")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Password has been reset with the new password."})
}

type (
	PasswordResetRequest struct {
		Email string `json:"email" validate:"required,email"`
	}

	LoginRequest struct {
		School   string `json:"school"`
		Username string `json:"username" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	LoginResponse struct {
		Token string     `json:"token"`
		User  *user.User `json:"user,omitempty"`
	}
)

func (lr *LoginRequest) Clean() {
	lr.School = core.CleanString(lr.School, true /* lower */)
	lr.Username = core.CleanString(lr.Username, true /* lower */)
}
