package routes

import (
	"shortstacks/controllers"
	"shortstacks/handlers"
	"shortstacks/middleware"
	"shortstacks/models"

	"github.com/gofiber/fiber/v2"
)

// Controllers groups every HTTP handler the router mounts.
type Controllers struct {
	Auth          *controllers.AuthController
	Admin         *controllers.AdminController
	Classes       *controllers.ClassController
	Bills         *controllers.BillController
	Accounts      *controllers.AccountController
	Store         *controllers.StoreController
	Lessons       *controllers.LessonController
	Notifications *controllers.NotificationController
	WebSocket     *controllers.WebSocketController
	Health        *controllers.HealthController
	LineWebhook   *handlers.LineWebhookHandler
}

// SetupRoutes configures all application routes
func SetupRoutes(app *fiber.App, auth *middleware.Auth, h Controllers) {
	app.Get("/health", h.Health.GetHealthStatus)
	if h.LineWebhook != nil {
		app.Post("/line/webhook", h.LineWebhook.Handle)
	}

	// WebSocket: ws://<host>/ws?token=<jwt>
	app.Get("/ws", h.WebSocket.RequireUpgrade, auth.JWTMiddleware(), h.WebSocket.WebSocketHandler())

	api := app.Group("/api")

	// Authentication routes (no middleware)
	authGroup := api.Group("/auth")
	authGroup.Post("/login", h.Auth.Login)
	authGroup.Post("/student-login", h.Auth.StudentLogin)

	protected := api.Group("/", auth.JWTMiddleware())
	staff := middleware.RequireTeacherOrAdmin()
	student := middleware.RequireRole(models.RoleStudent)
	admin := middleware.RequireRole(models.RoleSuperAdmin)

	protected.Post("/auth/logout", h.Auth.Logout)
	protected.Get("/profile", h.Auth.Profile)
	protected.Put("/profile/password", h.Auth.ChangePassword)
	protected.Post("/profile/line-link", h.Auth.LinkLine)

	// Classes and rosters
	protected.Get("/classes", h.Classes.ListClasses)
	protected.Post("/classes", staff, h.Classes.CreateClass)
	protected.Get("/classes/:id", h.Classes.GetClass)
	protected.Post("/classes/:id/join-code", staff, h.Classes.RegenerateJoinCode)
	protected.Get("/classes/:id/students", staff, h.Classes.ListStudents)
	protected.Post("/classes/:id/students", staff, h.Classes.AddStudent)
	protected.Delete("/classes/:id/students/:studentId", staff, h.Classes.RemoveStudent)
	protected.Post("/classes/:id/roster", staff, h.Classes.ImportRoster)
	protected.Get("/classes/:id/bills", staff, h.Bills.ListClassBills)
	protected.Get("/classes/:id/store", h.Store.ListItems)
	protected.Post("/classes/:id/store", staff, h.Store.CreateItem)
	protected.Get("/classes/:id/lessons", h.Lessons.ListClassLessons)

	// Bills
	protected.Post("/bills", staff, h.Bills.CreateBill)
	protected.Get("/bills/mine", student, h.Bills.ListMyBills)
	protected.Get("/bills/:id", h.Bills.GetBill)
	protected.Get("/bills/:id/schedule", h.Bills.GetSchedule)
	protected.Post("/bills/:id/cancel", staff, h.Bills.CancelBill)
	protected.Post("/bills/:id/refresh-status", staff, h.Bills.RefreshStatus)
	protected.Post("/bills/:id/pay", student, h.Bills.PayBill)

	// Accounts and statements
	protected.Get("/accounts", h.Accounts.ListAccounts)
	protected.Post("/accounts/transfer", student, h.Accounts.Transfer)
	protected.Post("/accounts/deposit", staff, h.Accounts.Deposit)
	protected.Get("/accounts/:id", h.Accounts.GetAccount)
	protected.Get("/accounts/:id/transactions", h.Accounts.ListTransactions)
	protected.Get("/accounts/:id/statements", h.Accounts.ListStatements)
	protected.Post("/accounts/:id/statements", h.Accounts.GenerateStatement)
	protected.Get("/statements/:id/download", h.Accounts.DownloadStatement)

	// Store
	protected.Put("/store/items/:id", staff, h.Store.UpdateItem)
	protected.Post("/store/items/:id/purchase", student, h.Store.Purchase)

	// Lesson plans
	protected.Get("/lessons", staff, h.Lessons.ListPlans)
	protected.Post("/lessons", staff, h.Lessons.CreatePlan)
	protected.Put("/lessons/:id/schedule", staff, h.Lessons.SchedulePlan)
	protected.Delete("/lessons/:id/classes/:classId", staff, h.Lessons.Unschedule)

	// Notifications
	protected.Get("/notifications", h.Notifications.GetNotifications)
	protected.Get("/notifications/unread-count", h.Notifications.GetUnreadCount)
	protected.Patch("/notifications/mark-all-read", h.Notifications.MarkAllAsRead)
	protected.Patch("/notifications/:id/read", h.Notifications.MarkAsRead)

	// Super admin
	adminGroup := protected.Group("/admin", admin)
	adminGroup.Get("/teachers", h.Admin.ListTeachers)
	adminGroup.Post("/teachers", h.Admin.CreateTeacher)
	adminGroup.Get("/logs", h.Admin.ListActivityLogs)
	adminGroup.Post("/logs/flush", h.Admin.FlushActivityLogs)
	adminGroup.Post("/logs/archive", h.Admin.ArchiveActivityLogs)
	adminGroup.Get("/logs/archives", h.Admin.ListLogArchives)
	adminGroup.Get("/logs/archives/:id/download", h.Admin.DownloadLogArchive)
	adminGroup.Get("/ws/stats", h.WebSocket.GetWebSocketStats)
}

// NotFound is mounted last.
func NotFound(c *fiber.Ctx) error {
	return fiber.NewError(fiber.StatusNotFound, "Route not found")
}
