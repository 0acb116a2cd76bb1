package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aria7-op/school-mis-backend/api/controllers"
	"github.com/aria7-op/school-mis-backend/api/middleware"
	"github.com/aria7-op/school-mis-backend/internal/notifications"
	"github.com/aria7-op/school-mis-backend/internal/realtime"
	"github.com/aria7-op/school-mis-backend/pkg/config"
	"github.com/aria7-op/school-mis-backend/pkg/db"
	"github.com/aria7-op/school-mis-backend/pkg/logger"
	"github.com/aria7-op/school-mis-backend/pkg/metrics"
	"github.com/aria7-op/school-mis-backend/pkg/redis"
)

// RouterParams bundles everything the HTTP surface needs.
type RouterParams struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       db.Pinger
	Redis    redis.Pinger
	Registry *prometheus.Registry

	Notifications   notifications.Service
	Hub             *realtime.Hub
	RealtimeMetrics *metrics.RealtimeMetrics
}

// NewRouter assembles the middleware chain and every route the API serves.
func NewRouter(p RouterParams) http.Handler {
	cfg := p.Config
	logg := p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins...),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, p.DB, p.Redis))
	})

	if p.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(p.Registry, promhttp.HandlerOpts{}))
	}

	// The realtime channel authenticates in-band via auth:login, so it
	// sits outside the bearer-token middleware.
	r.Get(cfg.Realtime.Path, controllers.RealtimeSocket(cfg, p.Hub, p.Notifications, p.RealtimeMetrics, logg))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(p.Notifications, logg))
			r.Post("/", controllers.CreateNotification(p.Notifications, logg))
			r.Get("/realtime", controllers.RecentNotifications(p.Notifications, logg))
			r.Get("/unread/count", controllers.UnreadNotificationCount(p.Notifications, logg))
			r.Get("/stats", controllers.NotificationStats(p.Notifications, logg))
			r.Get("/templates", controllers.NotificationTemplates(p.Notifications, logg))
			r.Put("/{notificationId}/read", controllers.MarkNotificationRead(p.Notifications, logg))
			r.Post("/mark-read", controllers.MarkNotificationsRead(p.Notifications, logg))
			r.Delete("/{notificationId}", controllers.DeleteNotification(p.Notifications, logg))

			r.Post("/bulk", controllers.BulkCreateNotifications(p.Notifications, logg))
			for _, kind := range notifications.TemplateKinds() {
				r.Post("/"+kind, controllers.ProduceNotification(kind, p.Notifications, logg))
			}
		})
	})

	return r
}
