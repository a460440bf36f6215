package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/carecircle/carecircle/internal/app"
	"github.com/carecircle/carecircle/internal/auth"
	"github.com/carecircle/carecircle/internal/handlers"
	"github.com/carecircle/carecircle/internal/middleware"
	"github.com/carecircle/carecircle/internal/notifications"
	"github.com/carecircle/carecircle/internal/services"
)

// Deps bundles the services the router mounts endpoints for.
type Deps struct {
	Config            *app.Config
	JWT               *auth.JWTService
	Hub               *notifications.Hub
	CareRecipients    *services.CareRecipientService
	Memberships       *services.MembershipService
	Medications       *services.MedicationService
	Appointments      *services.AppointmentService
	Documents         *services.DocumentService
	Notifications     *services.NotificationService
	PushSubscriptions *services.PushSubscriptionService
}

// NewRouter builds the Gin engine, wires middleware and registers routes.
func NewRouter(deps Deps) (*gin.Engine, error) {
	if deps.Config == nil {
		return nil, fmt.Errorf("config must be provided")
	}
	if deps.JWT == nil {
		return nil, fmt.Errorf("jwt service must be provided")
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())

	r.NoRoute(middleware.NotFoundHandler)

	// Public endpoints
	if deps.Config.Monitoring.Health.Enabled {
		r.GET("/health", handlers.Health())
	}
	if deps.Config.Monitoring.Prometheus.Enabled {
		endpoint := deps.Config.Monitoring.Prometheus.Endpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	recipientHandler := handlers.NewCareRecipientHandler(deps.CareRecipients)
	membershipHandler := handlers.NewMembershipHandler(deps.Memberships)
	medicationHandler := handlers.NewMedicationHandler(deps.Medications)
	appointmentHandler := handlers.NewAppointmentHandler(deps.Appointments)
	documentHandler := handlers.NewDocumentHandler(deps.Documents)
	notificationHandler := handlers.NewNotificationHandler(deps.Notifications, deps.Hub, deps.JWT)
	pushHandler := handlers.NewPushSubscriptionHandler(deps.PushSubscriptions)

	// The stream endpoint authenticates via query token inside the handler.
	r.GET("/api/notifications/stream", notificationHandler.Stream)

	api := r.Group("/api")
	api.Use(middleware.Auth(deps.JWT))

	recipients := api.Group("/care-recipients")
	{
		recipients.GET("", recipientHandler.List)
		recipients.POST("", recipientHandler.Create)
		recipients.GET("/:id", recipientHandler.Get)
		recipients.PATCH("/:id", recipientHandler.Update)
		recipients.DELETE("/:id", recipientHandler.Delete)

		recipients.GET("/:id/members", membershipHandler.List)
		recipients.POST("/:id/members", membershipHandler.Invite)

		recipients.GET("/:id/medications", medicationHandler.List)
		recipients.POST("/:id/medications", medicationHandler.Create)

		recipients.GET("/:id/appointments", appointmentHandler.List)
		recipients.POST("/:id/appointments", appointmentHandler.Create)

		recipients.GET("/:id/documents", documentHandler.List)
		recipients.POST("/:id/documents", documentHandler.Upload)
	}

	invites := api.Group("/invites")
	{
		invites.GET("", membershipHandler.ListInvites)
		invites.POST("/:id/accept", membershipHandler.Accept)
		invites.POST("/:id/decline", membershipHandler.Decline)
	}

	memberships := api.Group("/memberships")
	{
		memberships.PATCH("/:id", membershipHandler.UpdatePermissions)
		memberships.DELETE("/:id", membershipHandler.Remove)
		memberships.POST("/:id/transfer-admin", membershipHandler.TransferAdmin)
	}

	medications := api.Group("/medications")
	{
		medications.PATCH("/:id", medicationHandler.Update)
		medications.DELETE("/:id", medicationHandler.Delete)
		medications.POST("/:id/logs", medicationHandler.LogDose)
		medications.GET("/:id/logs", medicationHandler.ListLogs)
	}

	appointments := api.Group("/appointments")
	{
		appointments.PATCH("/:id", appointmentHandler.Update)
		appointments.PATCH("/:id/status", appointmentHandler.UpdateStatus)
		appointments.DELETE("/:id", appointmentHandler.Delete)
	}

	documents := api.Group("/documents")
	{
		documents.GET("/:id/content", documentHandler.Download)
		documents.DELETE("/:id", documentHandler.Delete)
	}

	notificationsGroup := api.Group("/notifications")
	{
		notificationsGroup.GET("", notificationHandler.List)
		notificationsGroup.POST("/read-all", notificationHandler.MarkAllRead)
		notificationsGroup.POST("/:id/read", notificationHandler.MarkRead)
		notificationsGroup.DELETE("/:id", notificationHandler.Delete)
	}

	push := api.Group("/push-subscriptions")
	{
		push.GET("", pushHandler.List)
		push.POST("", pushHandler.Register)
		push.DELETE("/:id", pushHandler.Remove)
	}

	return r, nil
}
