package router

import (
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/edulink/edulink-api/internal/handler"
	"github.com/edulink/edulink-api/internal/middleware"
	"github.com/edulink/edulink-api/internal/models"
	"github.com/edulink/edulink-api/internal/service"
	"github.com/edulink/edulink-api/pkg/config"
	"github.com/edulink/edulink-api/pkg/logger"
	corsmiddleware "github.com/edulink/edulink-api/pkg/middleware/cors"
	reqidmiddleware "github.com/edulink/edulink-api/pkg/middleware/requestid"
)

// Services bundles everything the router wires into handlers.
type Services struct {
	Auth          *service.AuthService
	Attendance    *service.AttendanceService
	Subjects      *service.SubjectService
	Announcements *service.AnnouncementService
	Assignments   *service.AssignmentService
	Notes         *service.NoteService
	Notifications *service.NotificationService
	Exports       *service.ExportService
	Metrics       *service.MetricsService
}

// New builds the gin engine with all routes and middleware attached.
func New(cfg *config.Config, logr *zap.Logger, db *sqlx.DB, svcs Services) *gin.Engine {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(svcs.Metrics))

	authHandler := handler.NewAuthHandler(svcs.Auth)
	attendanceHandler := handler.NewAttendanceHandler(svcs.Attendance, svcs.Exports, svcs.Metrics)
	subjectHandler := handler.NewSubjectHandler(svcs.Subjects)
	announcementHandler := handler.NewAnnouncementHandler(svcs.Announcements)
	assignmentHandler := handler.NewAssignmentHandler(svcs.Assignments)
	noteHandler := handler.NewNoteHandler(svcs.Notes)
	notificationHandler := handler.NewNotificationHandler(svcs.Notifications)
	metricsHandler := handler.NewMetricsHandler(svcs.Metrics, db)

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	authn := middleware.JWT(svcs.Auth)
	teacherOnly := middleware.RequireRoles(models.RoleTeacher)
	teacherOrAdmin := middleware.RequireRoles(models.RoleTeacher, models.RoleAdmin)
	studentOnly := middleware.RequireRoles(models.RoleStudent)
	adminOnly := middleware.RequireRoles(models.RoleAdmin)

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", authn, authHandler.Logout)
		auth.POST("/change-password", authn, authHandler.ChangePassword)
		auth.GET("/me", authn, authHandler.Me)
	}

	subjects := api.Group("/subjects", authn)
	{
		subjects.POST("", teacherOrAdmin, subjectHandler.Create)
		subjects.GET("", subjectHandler.List)
		subjects.GET("/:id", subjectHandler.Get)
		subjects.POST("/:id/enroll", adminOnly, subjectHandler.Enroll)
		subjects.DELETE("/:id/enroll/:studentId", adminOnly, subjectHandler.Unenroll)
		subjects.GET("/:id/roster", teacherOrAdmin, subjectHandler.Roster)
		subjects.GET("/:id/assignments", assignmentHandler.ListBySubject)
		subjects.POST("/:id/notes", teacherOnly, noteHandler.Upload)
		subjects.GET("/:id/notes", noteHandler.ListBySubject)
	}

	attendance := api.Group("/attendance", authn)
	{
		attendance.POST("/bulk", teacherOnly, attendanceHandler.BulkMark)
		attendance.GET("/summary", studentOnly, attendanceHandler.AllSubjectsSummary)
		attendance.GET("/subjects/:id/summary", studentOnly, attendanceHandler.SubjectSummary)
		attendance.GET("/subjects/:id/report", teacherOnly, attendanceHandler.ComprehensiveReport)
		attendance.GET("/subjects/:id/report/export", teacherOnly, attendanceHandler.ExportReport)
		attendance.GET("/subjects/:id/at-risk", teacherOnly, attendanceHandler.AtRisk)
	}

	announcements := api.Group("/announcements", authn)
	{
		announcements.GET("", announcementHandler.List)
		announcements.GET("/:id", announcementHandler.Get)
		announcements.POST("", teacherOrAdmin, announcementHandler.Create)
		announcements.PUT("/:id", teacherOrAdmin, announcementHandler.Update)
		announcements.DELETE("/:id", teacherOrAdmin, announcementHandler.Delete)
	}

	assignments := api.Group("/assignments", authn)
	{
		assignments.POST("", teacherOnly, assignmentHandler.Create)
		assignments.POST("/:id/submissions", studentOnly, assignmentHandler.Submit)
		assignments.GET("/:id/submissions", teacherOnly, assignmentHandler.ListSubmissions)
	}
	api.POST("/submissions/:id/grade", authn, teacherOnly, assignmentHandler.Grade)

	notes := api.Group("/notes")
	{
		notes.GET("/:id/download", authn, noteHandler.DownloadGrant)
		// Token-authenticated; the signed token is the credential.
		notes.GET("/download", noteHandler.Download)
	}

	notifications := api.Group("/notifications", authn)
	{
		notifications.GET("", notificationHandler.List)
		notifications.POST("/:id/read", notificationHandler.MarkRead)
	}

	return r
}
