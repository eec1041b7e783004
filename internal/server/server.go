// Package server assembles the services and the Gin router.
package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/gorm"

	"budgetkit/internal/config"
	_ "budgetkit/internal/docs" // registers the OpenAPI document
	"budgetkit/internal/handlers"
	"budgetkit/internal/middleware"
	"budgetkit/internal/services"
)

// Services bundles the business-logic layer.
type Services struct {
	Users        services.UserServicer
	Categories   services.CategoryServicer
	Transactions services.TransactionServicer
	Budgets      services.BudgetServicer
	Periods      services.PeriodServicer
	Audit        services.AuditServicer
}

// NewServices wires every service against db using cfg.
func NewServices(db *gorm.DB, cfg *config.Config) *Services {
	categories := services.NewCategoryService(db)
	transactions := services.NewTransactionService(db, categories, cfg.Ledger.SignConvention)
	periods := services.NewPeriodService(db, transactions, categories, services.LifecycleConfig{
		ArchiveAfter:  cfg.Lifecycle.ArchiveAfter,
		Workers:       cfg.Lifecycle.Workers,
		RetryAttempts: cfg.Lifecycle.RetryAttempts,
		RetryBackoff:  cfg.Lifecycle.RetryBackoff,
	})
	return &Services{
		Users:        services.NewUserService(db),
		Categories:   categories,
		Transactions: transactions,
		Budgets:      services.NewBudgetService(db, categories, periods, cfg.Lifecycle.DefaultPolicy, cfg.Lifecycle.Workers),
		Periods:      periods,
		Audit:        services.NewAuditService(db),
	}
}

// NewRouter builds the HTTP API. serviceKey guards the /service routes.
func NewRouter(svc *Services, tokens *middleware.TokenManager, serviceKey string) *gin.Engine {
	authHandler := handlers.NewAuthHandler(svc.Users, svc.Audit, tokens)
	categoryHandler := handlers.NewCategoryHandler(svc.Categories, svc.Audit)
	transactionHandler := handlers.NewTransactionHandler(svc.Transactions, svc.Audit)
	budgetHandler := handlers.NewBudgetHandler(svc.Budgets, svc.Periods, svc.Users, svc.Audit)
	periodHandler := handlers.NewPeriodHandler(svc.Periods, svc.Users, svc.Audit)
	serviceHandler := handlers.NewServiceHandler(svc.Periods, svc.Transactions, svc.Users)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogging())
	router.Use(middleware.ErrorHandler())

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	router.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")

	auth := v1.Group("/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)

	protected := v1.Group("/")
	protected.Use(middleware.AuthMiddleware(tokens))

	protected.GET("/profile", authHandler.GetProfile)
	protected.PUT("/profile", authHandler.UpdateProfile)

	categories := protected.Group("/categories")
	categories.POST("", categoryHandler.CreateCategory)
	categories.GET("", categoryHandler.GetUserCategories)
	categories.GET("/:id", categoryHandler.GetCategoryByID)
	categories.PUT("/:id", categoryHandler.UpdateCategory)
	categories.DELETE("/:id", categoryHandler.DeleteCategory)

	transactions := protected.Group("/transactions")
	transactions.POST("", transactionHandler.CreateTransaction)
	transactions.GET("", transactionHandler.GetUserTransactions)
	transactions.GET("/:id", transactionHandler.GetTransactionByID)
	transactions.DELETE("/:id", transactionHandler.DeleteTransaction)

	budgets := protected.Group("/budgets")
	budgets.POST("", budgetHandler.CreateBudget)
	budgets.GET("", budgetHandler.GetBudgets)
	budgets.GET("/progress", budgetHandler.ListProgress)
	budgets.GET("/:id", budgetHandler.GetBudget)
	budgets.PUT("/:id", budgetHandler.UpdateBudget)
	budgets.DELETE("/:id", budgetHandler.DeleteBudget)
	budgets.GET("/:id/progress", budgetHandler.GetBudgetProgress)
	budgets.GET("/:id/periods", budgetHandler.GetBudgetPeriods)

	periods := protected.Group("/periods")
	periods.GET("/:id", periodHandler.GetPeriod)
	periods.POST("/:id/close", periodHandler.ClosePeriod)
	periods.POST("/:id/archive", periodHandler.ArchivePeriod)

	service := v1.Group("/service")
	service.Use(middleware.ServiceKeyAuth(serviceKey))
	service.POST("/lifecycle/close-expired", serviceHandler.CloseExpired)
	service.POST("/lifecycle/archive-stale", serviceHandler.ArchiveStale)
	service.POST("/users/:user_id/transactions/import", serviceHandler.ImportTransactions)

	return router
}
