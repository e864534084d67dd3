package main

import (
	"net/http"
	"time"

	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/ticrm/tire-storage-api/config"
	"github.com/ticrm/tire-storage-api/controllers"
	"github.com/ticrm/tire-storage-api/logger"
	"github.com/ticrm/tire-storage-api/middleware"
	"github.com/ticrm/tire-storage-api/services"
	"github.com/ticrm/tire-storage-api/telegram"
	"gorm.io/gorm"
)

// application holds every long-lived component, built once at startup.
type application struct {
	cfg           *config.Config
	db            *gorm.DB
	log           logger.ILogger
	bot           *telegram.Bot
	botRouter     *telegram.Router
	sessions      *middleware.SessionManager
	users         *services.UserService
	orders        *services.OrderService
	notifications *services.NotificationService
}

func newApplication(cfg *config.Config, db *gorm.DB, log logger.ILogger, store services.PhotoStore, analyzer services.Analyzer) (*application, error) {
	bot, err := telegram.NewBot(telegram.Options{
		Token:       cfg.TelegramBotToken,
		Username:    cfg.TelegramBotUsername,
		APIURL:      cfg.TelegramAPIURL,
		SendTimeout: cfg.MessagingTimeout,
	}, log.With(logger.String("component", "bot")))
	if err != nil {
		return nil, err
	}

	sessions, err := middleware.NewSessionManager(cfg.SessionSecret, cfg.SessionMaxAge, cfg.IsProduction(), log)
	if err != nil {
		return nil, err
	}

	users := services.NewUserService(db, cfg.AdminTelegramIDs, log)
	notifications := services.NewNotificationService(db, bot, cfg.MessagingTimeout, log)
	orders := services.NewOrderService(db, services.NewPhotoService(store), analyzer, notifications, services.OrderServiceOptions{
		Location:        cfg.Location(),
		AnalysisTimeout: cfg.AnalysisTimeout,
	}, log.With(logger.String("component", "orders")))

	botRouter := telegram.NewRouter(bot, users, orders, telegram.RouterOptions{
		AppURL:       cfg.PublicAppURL,
		SupportPhone: cfg.SupportPhone,
		SupportEmail: cfg.SupportEmail,
		Location:     cfg.Location(),
	}, log.With(logger.String("component", "bot")))

	return &application{
		cfg:           cfg,
		db:            db,
		log:           log,
		bot:           bot,
		botRouter:     botRouter,
		sessions:      sessions,
		users:         users,
		orders:        orders,
		notifications: notifications,
	}, nil
}

func setupRouter(app *application) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	if app.cfg.SentryDSN != "" {
		router.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	}
	router.Use(middleware.RequestLogger(app.log))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     app.cfg.AllowedOrigins(),
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	auth := controllers.NewAuthController(app.users, app.sessions, app.cfg.TelegramBotToken, app.log)
	webhook := controllers.NewWebhookController(app.botRouter, app.cfg.TelegramWebhookSecret, app.log)
	orders := controllers.NewOrderController(app.orders, !app.cfg.IsProduction(), app.log)
	clients := controllers.NewClientController(app.users, app.log)
	notifications := controllers.NewNotificationController(app.notifications, app.log)
	uploads := controllers.NewUploadController(app.cfg.UploadDir)

	requireSession := app.sessions.RequireSession()
	requireStaff := middleware.RequireStaff()

	api := router.Group("/api")
	{
		api.POST("/telegram/webhook", webhook.Handle)

		api.POST("/auth/telegram", auth.TelegramLogin)
		api.POST("/auth/logout", auth.Logout)
		api.GET("/auth/session", requireSession, auth.Session)
	}

	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", healthCheck)
		v1.GET("/database/status", databaseStatus(app.db))
		v1.GET("/uploads/:filename", uploads.GetUploadedImage)

		v1.GET("/orders", requireSession, orders.ListOrders)
		v1.GET("/orders/my", requireSession, orders.ListMyOrders)
		v1.GET("/orders/:id", requireSession, orders.GetOrder)
		v1.POST("/orders", requireSession, requireStaff, orders.CreateOrder)
		v1.POST("/orders/:id/complete", requireSession, requireStaff, orders.CompleteOrder)

		v1.GET("/clients", requireSession, requireStaff, clients.ListClients)
		v1.POST("/clients", requireSession, requireStaff, clients.CreateClient)

		v1.GET("/notifications", requireSession, notifications.ListMyNotifications)
	}

	return router
}

// healthCheck handles the health check endpoint
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "TiCRM API is running",
	})
}

// databaseStatus checks database connectivity and returns table information
func databaseStatus(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "DATABASE_ERROR",
					"message": "Failed to get database instance",
				},
			})
			return
		}

		if err := sqlDB.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "DATABASE_CONNECTION_ERROR",
					"message": "Database connection failed",
				},
			})
			return
		}

		tables, err := db.WithContext(c.Request.Context()).Migrator().GetTables()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "DATABASE_QUERY_ERROR",
					"message": "Failed to query tables",
				},
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "Database connected",
			"tables":  tables,
		})
	}
}
