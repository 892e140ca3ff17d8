// Package router wires handlers and middleware onto an echo instance.
package router

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/access-control-api/internal/handler"
	"github.com/iliyamo/access-control-api/internal/middleware"
	"github.com/iliyamo/access-control-api/internal/model"
	"github.com/iliyamo/access-control-api/internal/utils"
)

// Deps carries everything the routes need. Limiter and Cache may be nil.
type Deps struct {
	Log         *logrus.Logger
	Tokens      utils.TokenConfig
	Limiter     *middleware.RateLimiter
	Cache       *middleware.ResponseCache
	Registry    *prometheus.Registry
	Auth        *handler.AuthHandler
	Users       *handler.UserHandler
	RBAC        *handler.RBACHandler
	Invitations *handler.InvitationHandler
	Policies    *handler.PolicyHandler
	Status      *handler.StatusHandler
}

var (
	admins  = []string{model.RoleSuperAdmin, model.RolePropertyAdmin, model.RoleSecurityAdmin}
	topOnly = []string{model.RoleSuperAdmin}
)

// New builds the echo instance with the global middleware chain and every
// route registered.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = handler.ErrorHandler(d.Log)

	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(echomw.Recover())
	e.Use(echomw.CORS())
	e.Use(middleware.RequestLog(d.Log))
	if d.Registry != nil {
		e.Use(middleware.NewMetrics(d.Registry).Middleware())
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(d.Registry, promhttp.HandlerOpts{})))
	}

	e.GET("/healthz", handler.Health)
	e.GET("/api/status", d.Status.Status)

	api := e.Group("/api")
	registerAuth(api, d)
	registerUsers(api, d)
	registerRBAC(api, d)
	registerInvitations(api, d)
	registerPolicies(api, d)
	return e
}

func registerAuth(api *echo.Group, d Deps) {
	a := d.Auth
	g := api.Group("/auth")

	open := g.Group("", d.Limiter.Middleware())
	open.POST("/login", a.Login)
	open.POST("/signup", a.Signup)
	open.POST("/external-login", a.ExternalLogin)
	open.POST("/forgot-password", a.ForgotPassword)
	open.POST("/verify-code", a.VerifyCode)
	open.POST("/reset-password", a.ResetPassword)
	open.POST("/refresh-token", a.RefreshToken)

	authed := g.Group("", middleware.JWTAuth(d.Tokens))
	authed.POST("/logout", a.Logout)
	authed.GET("/me", a.Me)
	authed.POST("/change-password", a.ChangePassword)
	authed.GET("/role-check", a.RoleCheck)
}

func registerUsers(api *echo.Group, d Deps) {
	u := d.Users
	g := api.Group("/users", middleware.JWTAuth(d.Tokens))

	read := g.Group("", middleware.RequireRole(admins...))
	read.GET("", u.List)
	read.GET("/:id", u.Get)
	read.GET("/by-email/:email", u.GetByEmail)

	write := g.Group("", middleware.RequireRole(topOnly...))
	write.POST("", u.Create)
	write.PUT("/:id", u.Update)
	write.DELETE("/:id", u.Delete)
	write.PATCH("/:id/toggle-status", u.ToggleStatus)
	write.PUT("/:id/status", u.SetStatus)
	write.PUT("/:id/role", u.AssignRole)
	write.DELETE("/:id/role", u.RemoveRole)
}

func registerRBAC(api *echo.Group, d Deps) {
	h := d.RBAC

	roles := api.Group("/roles", middleware.JWTAuth(d.Tokens), middleware.RequireRole(topOnly...))
	roles.GET("", h.ListRoles)
	roles.GET("/hierarchy", h.Hierarchy)
	roles.GET("/:id", h.GetRole)
	roles.POST("", h.CreateRole)
	roles.PUT("/:id", h.UpdateRole)
	roles.DELETE("/:id", h.DeleteRole)
	roles.PUT("/:id/hierarchy", h.SetHierarchy)
	roles.GET("/:id/privileges", h.RolePrivileges)
	roles.PUT("/:id/privileges", h.AssignPrivileges)
	roles.DELETE("/:id/privileges/:privilegeId", h.RemovePrivilege)

	privs := api.Group("/privileges", middleware.JWTAuth(d.Tokens), middleware.RequireRole(topOnly...))
	privs.GET("", h.ListPrivileges)
	privs.GET("/:id", h.GetPrivilege)
	privs.POST("", h.CreatePrivilege)
	privs.PUT("/:id", h.UpdatePrivilege)
	privs.DELETE("/:id", h.DeletePrivilege)
}

func registerInvitations(api *echo.Group, d Deps) {
	h := d.Invitations
	g := api.Group("/invitations")
	g.GET("/check", h.Check)

	authed := g.Group("", middleware.JWTAuth(d.Tokens))
	authed.GET("", h.List, middleware.RequireRole(admins...))
	authed.GET("/:id", h.Get, middleware.RequireRole(admins...))
	authed.POST("", h.Create, middleware.RequireRole(topOnly...))
	authed.DELETE("/:id", h.Delete, middleware.RequireRole(topOnly...))
}

func registerPolicies(api *echo.Group, d Deps) {
	h := d.Policies
	g := api.Group("/policy")

	public := g.Group("", d.Cache.Middleware())
	public.GET("/terms", h.Terms)
	public.GET("/privacy", h.Privacy)

	admin := g.Group("", middleware.JWTAuth(d.Tokens), middleware.RequireRole(topOnly...))
	admin.GET("", h.List)
	admin.GET("/:id", h.Get)
	admin.POST("", h.Create)
	admin.PUT("/:id", h.Update)
	admin.DELETE("/:id", h.Delete)
}
