package auth

import (
	"errors"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-router/flash"
)

// SessionProvider builds the SessionStore bound to one request.
type SessionProvider func(ctx router.Context) SessionStore

// RouteGuard is the request pre-processor: it builds the request scope,
// resolves the session identity, runs a masquerade attempt when the trigger
// parameter is present, and enforces page access before the handler runs.
type RouteGuard struct {
	Logger       Logger
	Repo         RepositoryManager
	Config       Config
	Dispatcher   Dispatcher
	Resolver     *IdentityResolver
	Masq         *MasqueradeHandler
	Sessions     SessionProvider
	ErrorHandler router.ErrorHandler
}

type RouteGuardOption func(*RouteGuard) *RouteGuard

func NewRouteGuard(cfg Config, opts ...RouteGuardOption) *RouteGuard {
	g := &RouteGuard{
		Logger: defLogger{},
		Config: cfg,
	}

	g.ErrorHandler = g.defaultErrHandler

	for _, opt := range opts {
		g = opt(g)
	}

	if g.Repo == nil {
		panic("Missing RepositoryManager in route guard...")
	}

	if g.Sessions == nil {
		panic("Missing SessionProvider in route guard...")
	}

	if g.Dispatcher == nil {
		panic("Missing Dispatcher in route guard...")
	}

	if g.Resolver == nil {
		g.Resolver = NewIdentityResolver(cfg, WithResolverLogger(g.Logger))
	}

	return g
}

func WithGuardLogger(logger Logger) RouteGuardOption {
	return func(g *RouteGuard) *RouteGuard {
		if logger != nil {
			g.Logger = logger
		}
		return g
	}
}

func WithGuardRepo(repo RepositoryManager) RouteGuardOption {
	return func(g *RouteGuard) *RouteGuard {
		g.Repo = repo
		return g
	}
}

func WithGuardDispatcher(d Dispatcher) RouteGuardOption {
	return func(g *RouteGuard) *RouteGuard {
		g.Dispatcher = d
		return g
	}
}

func WithGuardMasquerade(masq *MasqueradeHandler) RouteGuardOption {
	return func(g *RouteGuard) *RouteGuard {
		g.Masq = masq
		return g
	}
}

func WithGuardSessions(provider SessionProvider) RouteGuardOption {
	return func(g *RouteGuard) *RouteGuard {
		g.Sessions = provider
		return g
	}
}

// Scope builds the request scope and stores it on the request context for
// downstream handlers.
func (g *RouteGuard) Scope(ctx router.Context) *Scope {
	if scope, ok := ScopeFromContext(ctx.Context()); ok {
		return scope
	}

	scope := NewScope(g.Sessions(ctx), g.Dispatcher, g.Repo)
	scope.SetRequestURL(ctx.OriginalURL())
	ctx.SetContext(WithScope(ctx.Context(), scope))

	return scope
}

// Middleware returns the pre-processing middleware. Order inside matters:
// identity first, then the masquerade trigger, then page access. Any step
// that sets a redirect short-circuits the request.
func (g *RouteGuard) Middleware() router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			scope := g.Scope(ctx)

			if err := g.Resolver.OnRequest(ctx.Context(), scope); err != nil {
				return g.ErrorHandler(ctx, err)
			}

			if g.Masq != nil {
				if hash := ctx.Query(g.Config.GetMasqueradeParam(), ""); hash != "" {
					if err := g.Masq.AssumeByToken(ctx.Context(), scope, hash); err != nil {
						return g.ErrorHandler(ctx, err)
					}
				}
			}

			if !scope.HasRedirect() {
				g.Resolver.ValidatePageAccess(scope, ctx.Path())
			}

			if warnings := scope.Warnings(); len(warnings) > 0 {
				flash.WithError(ctx, router.ViewContext{
					"system_message": warnings[0],
				})
			}

			if scope.HasRedirect() {
				return ctx.Redirect(scope.Redirect(), fiber.StatusSeeOther)
			}

			if user := scope.User(); user != nil {
				ctx.SetContext(WithUser(ctx.Context(), user))
			}

			return next(ctx)
		}
	}
}

func (g *RouteGuard) defaultErrHandler(ctx router.Context, err error) error {
	if IsSessionStateError(err) {
		g.Logger.Warn("corrupt session state, resetting: %v", err)
		scope := g.Scope(ctx)
		if derr := scope.Session.Destroy(); derr != nil {
			g.Logger.Error("failed to destroy corrupt session: %v", derr)
		}
		return flash.WithError(ctx, router.ViewContext{
			"system_message": "Your session was reset, please sign in again.",
		}).Redirect(g.Config.GetLoginURL(), fiber.StatusSeeOther)
	}

	if IsAuthenticationError(err) {
		return ctx.Redirect(g.Config.GetLoginURL(), fiber.StatusSeeOther)
	}

	g.Logger.Error("request guard error: %v", err)

	return ctx.Status(fiber.StatusInternalServerError).Render("errors/500", router.ViewContext{
		"message": err.Error(),
	})
}

// RegisterAuthRoutes mounts the auth pages on the router.
func RegisterAuthRoutes[T any](app router.Router[T], opts ...AuthControllerOption) {
	controller := NewAuthController(opts...)

	app.
		Get(controller.Routes.Login, controller.LoginShow).
		SetName("sign-in.get")

	app.
		Post(controller.Routes.Login, controller.LoginPost).
		SetName("sign-in.post")

	app.Get(controller.Routes.Logout, controller.Logout).SetName("sign-out.get")

	app.Get(controller.Routes.Register, controller.RegistrationShow).
		SetName("register.get")
	app.Post(controller.Routes.Register, controller.RegistrationCreate).
		SetName("register.post")

	app.Get(controller.Routes.Recover, controller.RecoverShow).
		SetName("recover.get")
	app.Post(controller.Routes.Recover, controller.RecoverPost).
		SetName("recover.post")
}

type AuthControllerRoutes struct {
	Login    string
	Logout   string
	Register string
	Recover  string
}

type AuthControllerViews struct {
	Login    string
	Register string
	Recover  string
}

// AuthController serves the login, logout, register, and recover pages.
type AuthController struct {
	Debug  bool
	Logger Logger
	Guard  *RouteGuard
	Auth   *AuthHandler
	Repo   RepositoryManager
	Routes *AuthControllerRoutes
	Views  *AuthControllerViews
}

type AuthControllerOption func(*AuthController) *AuthController

func NewAuthController(opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger: defLogger{},
		Routes: &AuthControllerRoutes{
			Login:    "/login",
			Logout:   "/logout",
			Register: "/register",
			Recover:  "/recover",
		},
		Views: &AuthControllerViews{
			Login:    "login",
			Register: "register",
			Recover:  "recover",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Guard == nil {
		panic("Missing RouteGuard in auth controller...")
	}

	if c.Auth == nil {
		panic("Missing AuthHandler in auth controller...")
	}

	if c.Repo == nil {
		c.Repo = c.Guard.Repo
	}

	return c
}

func WithControllerGuard(guard *RouteGuard) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Guard = guard
		return c
	}
}

func WithControllerAuth(auth *AuthHandler) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Auth = auth
		return c
	}
}

func WithControllerLogger(logger Logger) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

func WithControllerDebug(debug bool) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Debug = debug
		return c
	}
}

func (a *AuthController) LoginShow(ctx router.Context) error {
	return ctx.Render(a.Views.Login, router.ViewContext{
		"errors": nil,
		"record": nil,
	})
}

// LoginRequest payload
type LoginRequest struct {
	Identifier string `form:"identifier" json:"identifier"`
	Password   string `form:"password" json:"password"`
	Token      string `form:"token" json:"token"`
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	if r.Token != "" {
		return nil
	}
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Identifier,
			validation.Required,
		),
		validation.Field(
			&r.Password,
			validation.Required,
		),
	)
}

func (a *AuthController) LoginPost(ctx router.Context) error {
	payload := new(LoginRequest)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("login parse payload: %v", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Status(fiber.StatusBadRequest).Render(a.Views.Login, router.ViewContext{
			"record": payload,
		})
	}

	if err := payload.Validate(); err != nil {
		return ctx.Render(a.Views.Login, router.ViewContext{
			"record":     payload,
			"validation": FormatValidationErrorToMap(err),
		})
	}

	if a.Debug {
		fmt.Println("======= AUTH LOGIN ======")
		fmt.Println(print.MaybePrettyJSON(payload))
		fmt.Println("=========================")
	}

	scope := a.Guard.Scope(ctx)
	creds := Credentials{
		Identifier: payload.Identifier,
		Password:   payload.Password,
		Token:      payload.Token,
	}

	if err := a.Auth.Login(ctx.Context(), scope, creds); err != nil {
		if !IsAuthenticationError(err) {
			a.Logger.Error("login error: %v", err)
		}
		return ctx.Render(a.Views.Login, router.ViewContext{
			"errors": map[string]string{
				"authentication": "Invalid username or password",
			},
			"record": payload,
		})
	}

	return ctx.Redirect(scope.Redirect(), fiber.StatusSeeOther)
}

// Logout pops one masquerade frame when delegating, otherwise ends the
// session.
func (a *AuthController) Logout(ctx router.Context) error {
	scope := a.Guard.Scope(ctx)

	if err := a.Auth.Logout(ctx.Context(), scope); err != nil {
		return a.Guard.ErrorHandler(ctx, err)
	}

	redirect := scope.Redirect()
	if redirect == "" {
		redirect = "/"
	}

	return ctx.Redirect(redirect, fiber.StatusTemporaryRedirect)
}

func (a *AuthController) RegistrationShow(ctx router.Context) error {
	return ctx.Render(a.Views.Register, router.ViewContext{
		"errors": map[string]string{},
		"record": RegisterUserMessage{},
	})
}

// RegistrationCreatePayload is the form payload
type RegistrationCreatePayload struct {
	Name            string `form:"name" json:"name"`
	Username        string `form:"username" json:"username"`
	Email           string `form:"email" json:"email"`
	Phone           string `form:"phone_number" json:"phone_number"`
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

// Validate will validate the payload
func (r RegistrationCreatePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Phone, validation.Length(10, 11), is.Digit),
		validation.Field(&r.Password, validation.Required, validation.Length(10, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.Length(10, 100),
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

func (a *AuthController) RegistrationCreate(ctx router.Context) error {
	payload := new(RegistrationCreatePayload)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("register user parse payload: %v", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Status(fiber.StatusBadRequest).Render(a.Views.Register, router.ViewContext{
			"errors": map[string]string{"form": "Failed to parse form"},
			"record": payload,
		})
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("register user validate payload: %v", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error validating payload",
		}).Render(a.Views.Register, router.ViewContext{
			"record":     payload,
			"validation": FormatValidationErrorToMap(err),
		})
	}

	req := RegisterUserMessage{
		Name:     payload.Name,
		Username: payload.Username,
		Email:    payload.Email,
		Phone:    payload.Phone,
		Password: payload.Password,
	}

	scope := a.Guard.Scope(ctx)
	registerUser := NewRegisterUserHandler(a.Repo)

	if _, err := registerUser.Execute(ctx.Context(), scope, req); err != nil {
		a.Logger.Error("register user error: %v", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error creating account",
		}).Render(a.Views.Register, router.ViewContext{
			"record": payload,
			"errors": []string{err.Error()},
		})
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Check your email to activate your account",
	}).Redirect("/", fiber.StatusSeeOther)
}

func (a *AuthController) RecoverShow(ctx router.Context) error {
	return ctx.Render(a.Views.Recover, router.ViewContext{
		"errors": nil,
		"record": nil,
	})
}

// RecoverRequestPayload holds values for password recovery
type RecoverRequestPayload struct {
	Email string `form:"email" json:"email"`
}

// Validate will validate the payload
func (r RecoverRequestPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Email,
			validation.Required,
			is.Email,
		),
	)
}

func (a *AuthController) RecoverPost(ctx router.Context) error {
	payload := new(RecoverRequestPayload)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("recover parse payload: %v", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Status(fiber.StatusBadRequest).Render(a.Views.Recover, router.ViewContext{
			"record": payload,
		})
	}

	if err := payload.Validate(); err != nil {
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error validating payload",
		}).Render(a.Views.Recover, router.ViewContext{
			"record":     payload,
			"validation": FormatValidationErrorToMap(err),
		})
	}

	scope := a.Guard.Scope(ctx)

	if err := a.Auth.Recover(ctx.Context(), scope, payload.Email); err != nil {
		a.Logger.Error("recover error: %v", err)
	}

	// same response for known and unknown addresses
	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "If the address exists you will receive an email shortly",
	}).Redirect(a.Guard.Config.GetLoginURL(), fiber.StatusSeeOther)
}

// ValidateStringEquals will check that both values match
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return errors.New("values must match")
		}
		return nil
	}
}

// FormatValidationErrorToMap flattens an ozzo validation error into a
// field-keyed message map.
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}
	if err == nil {
		return out
	}

	var verrs validation.Errors
	if errors.As(err, &verrs) {
		for field, ferr := range verrs {
			out[field] = ferr.Error()
		}
		return out
	}

	out["error"] = err.Error()

	return out
}
