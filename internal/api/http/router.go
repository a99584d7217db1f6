package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/case-service/internal/api/http/handlers"
	"github.com/spec-kit/case-service/internal/auth"
	"github.com/spec-kit/case-service/internal/domain"
)

// RouteConfig bundles everything needed to register routes.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Users          *handlers.UsersHandler
	Staff          *handlers.StaffHandler
	Cases          *handlers.CasesHandler
	StaffCases     *handlers.StaffCasesHandler
	Notifications  *handlers.NotificationsHandler
	WS             *handlers.WSHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires the HTTP surface.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	api := app.Group("/api/v1")

	authGroup := api.Group("/auth")
	authGroup.Post("/otp/request", cfg.Users.RequestCode)
	authGroup.Post("/otp/verify", cfg.Users.VerifyCode)
	authGroup.Post("/users/register", cfg.Users.Register)
	authGroup.Post("/users/login", cfg.Users.Login)
	authGroup.Post("/staff/login", cfg.Staff.Login)
	authGroup.Post("/password/reset", cfg.Users.ResetPassword)
	authGroup.Post("/password/change", cfg.AuthMiddleware.Handle, auth.RequireAnyRole(), cfg.Users.ChangePassword)

	cases := api.Group("/cases", cfg.AuthMiddleware.Handle, auth.RequireUser())
	cases.Post("/", cfg.Cases.Create)
	cases.Get("/", cfg.Cases.List)
	cases.Get("/:id", cfg.Cases.Get)
	cases.Get("/:id/messages", cfg.Cases.History)
	cases.Post("/:id/messages", cfg.Cases.SendMessage)

	staffCases := api.Group("/staff/cases", cfg.AuthMiddleware.Handle, auth.RequireStaffRole())
	staffCases.Get("/", cfg.Cases.List)
	staffCases.Get("/:id", cfg.Cases.Get)
	staffCases.Get("/:id/messages", cfg.Cases.History)
	staffCases.Post("/:id/messages", cfg.Cases.SendMessage)
	staffCases.Post("/:id/accept", cfg.StaffCases.Accept)
	staffCases.Post("/:id/reject", cfg.StaffCases.Reject)
	staffCases.Post("/:id/resolve", cfg.StaffCases.Resolve)
	staffCases.Post("/:id/assign", auth.RequireStaffRole(domain.StaffRoleAdmin), cfg.StaffCases.Assign)

	notifications := api.Group("/notifications", cfg.AuthMiddleware.Handle, auth.RequireAnyRole())
	notifications.Get("/", cfg.Notifications.List)
	notifications.Get("/unread-count", cfg.Notifications.UnreadCount)
	notifications.Post("/read-all", cfg.Notifications.MarkAllRead)
	notifications.Post("/:id/read", cfg.Notifications.MarkRead)
	notifications.Delete("/read", cfg.Notifications.ClearRead)
	notifications.Delete("/:id", cfg.Notifications.Delete)

	app.Use("/ws", cfg.AuthMiddleware.Handle, cfg.WS.Upgrade)
	app.Get("/ws", cfg.WS.Serve())
}
