package main

import (
	"log"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/rsd-darshan/merokitab/config"
	"github.com/rsd-darshan/merokitab/controllers"
	"github.com/rsd-darshan/merokitab/middleware"
	"github.com/rsd-darshan/merokitab/models"
	"github.com/rsd-darshan/merokitab/services"
)

func main() {
	// Basic logging
	log.Println("Starting MeroKitab marketplace server...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Connect to database
	if err := config.ConnectDatabase(); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Auto-migrate database models
	db := config.GetDB()
	if err := db.AutoMigrate(
		&models.User{},
		&models.Book{},
		&models.Order{},
		&models.ChatThread{},
		&models.ChatMessage{},
	); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}
	log.Println("Database migration completed successfully")

	// Chat notification broker, created once for the process
	services.InitChatBroker()

	// S3 image storage (optional outside production-like environments)
	if cfg.AWSS3Bucket != "" {
		if _, err := services.InitS3Service(); err != nil {
			log.Fatalf("Failed to initialize S3 service: %v", err)
		}
	} else {
		log.Println("AWS_S3_BUCKET not set, image uploads disabled")
	}

	router := setupRouter()

	// Start server
	port := ":" + cfg.Port
	log.Printf("Server is running on http://localhost%s", port)
	if err := router.Run(port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// setupRouter builds the Gin engine with all API routes registered
func setupRouter() *gin.Engine {
	router := gin.Default()

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowCredentials = false
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization")
	router.Use(cors.New(corsConfig))

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Health check endpoint
		v1.GET("/health", healthCheck)

		// Session endpoints
		auth := v1.Group("/auth")
		{
			auth.POST("/signup", controllers.Signup)
			auth.POST("/login", controllers.Login)
			auth.POST("/logout", controllers.Logout)
			auth.GET("/me", middleware.RequireAuth(), controllers.Me)
		}

		// Book listings
		v1.GET("/books", controllers.ListBooks)
		v1.GET("/books/:id", controllers.GetBook)
		v1.POST("/books", middleware.RequireAuth(), controllers.CreateBook)
		v1.DELETE("/books/:id", middleware.RequireAuth(), controllers.DeleteBook)

		// Cover image uploads
		v1.POST("/uploads", middleware.RequireAuth(), controllers.UploadImage)

		// Orders
		v1.GET("/orders", middleware.RequireAuth(), controllers.ListOrders)
		v1.POST("/orders", middleware.RequireAuth(), controllers.CreateOrder)
		v1.GET("/orders/:id", middleware.RequireAuth(), controllers.GetOrder)
		v1.PATCH("/orders/:id", middleware.RequireAuth(), controllers.PatchOrder)

		// Chat
		chat := v1.Group("/chat", middleware.RequireAuth())
		{
			chat.GET("/threads", controllers.ListThreads)
			chat.GET("/order/:orderId", controllers.GetThreadForOrder)
			chat.GET("/threads/:threadId/messages", controllers.ListMessages)
			chat.POST("/threads/:threadId/messages", controllers.SendMessage)
			chat.GET("/threads/:threadId/stream", controllers.StreamThread)
		}

		// Admin
		admin := v1.Group("/admin", middleware.RequireAuth(), middleware.RequireAdmin())
		{
			admin.GET("/orders", controllers.ListAdminOrders)
			admin.POST("/fix-threads", controllers.FixThreads)
		}
	}

	return router
}

// healthCheck handles the health check endpoint
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "MeroKitab API is running",
	})
}
