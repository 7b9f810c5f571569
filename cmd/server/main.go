package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/tenantcore/backend/internal/application/services"
	"github.com/tenantcore/backend/internal/bootstrap"
	"github.com/tenantcore/backend/internal/extensions"
	"github.com/tenantcore/backend/internal/infrastructure/database"
	"github.com/tenantcore/backend/internal/interfaces/middleware"
	"github.com/tenantcore/backend/internal/interfaces/rest"
	"github.com/tenantcore/backend/pkg/constants"
)

func main() {
	if err := godotenv.Load(); err == nil {
		log.Println("✅ Loaded .env")
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "3001"
	}

	db, err := database.GetInstance()
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	log.Println("✅ Database connection established")

	svcMgr := services.NewServiceManager(db)
	log.Println("🔧 Service manager initialized")

	ctx := context.Background()

	// Core kinds first so extensions can reference them
	if err := bootstrap.RegisterCoreEntities(svcMgr.Registry, svcMgr.Identity); err != nil {
		log.Fatalf("Failed to register core entities: %v", err)
	}

	// Extensions load in dependency order; APP_EXTENSIONS selects the set
	for _, ext := range extensions.BuiltIn(svcMgr.Auth) {
		svcMgr.Extensions.Register(ext)
	}
	if err := svcMgr.Extensions.Load(ctx, enabledExtensions()); err != nil {
		log.Fatalf("Failed to load extensions: %v", err)
	}
	svcMgr.Hooks.Seal()

	if err := svcMgr.CompileRules(); err != nil {
		log.Fatalf("Failed to compile validation rules: %v", err)
	}

	if services.SeedEnabled(os.Getenv(constants.EnvSeedData)) {
		if err := svcMgr.Seeder.Seed(ctx); err != nil {
			log.Fatalf("Failed to seed data: %v", err)
		}
	} else {
		log.Println("⚠️  Seeding disabled (SEED_DATA=false)")
	}

	svcMgr.RefreshRoleHierarchy(ctx)
	log.Println("🛡️ Role hierarchy loaded")

	svcMgr.Supervisor.StartAll()

	router := buildRouter(svcMgr)

	log.Printf("🚀 Server listening on http://localhost:%s", port)
	log.Printf("🔐 Auth API:   http://localhost:%s/api/auth", port)
	log.Printf("💾 Data API:   http://localhost:%s/api/data", port)
	log.Printf("💚 Health:     http://localhost:%s/health", port)

	srv := &http.Server{
		Addr:    "0.0.0.0:" + port,
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	svcMgr.Shutdown(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown: ", err)
	}

	log.Println("Server exiting")
}

// enabledExtensions parses APP_EXTENSIONS; empty means all registered
func enabledExtensions() []string {
	raw := os.Getenv(constants.EnvExtensions)
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var names []string
	for _, name := range strings.Split(raw, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}

func buildRouter(svcMgr *services.ServiceManager) *gin.Engine {
	router := gin.Default()
	router.Use(middleware.Cors())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authHandler := rest.NewAuthHandler(svcMgr)
	dataHandler := rest.NewDataHandler(svcMgr)
	permissionHandler := rest.NewPermissionHandler(svcMgr)
	extensionHandler := rest.NewExtensionHandler(svcMgr)
	serviceHandler := rest.NewServiceHandler(svcMgr)

	requireAuth := middleware.RequireAuth()

	api := router.Group("/api")
	{
		authGroup := api.Group("/auth")
		{
			authGroup.POST("/login", authHandler.Login)
			authGroup.GET("/me", requireAuth, authHandler.Me)
		}

		data := api.Group("/data", requireAuth)
		{
			data.POST("/:plural", dataHandler.Create)
			data.POST("/:plural/search", dataHandler.Search)
			data.GET("/:plural", dataHandler.List)
			data.GET("/:plural/:id", dataHandler.Get)
			data.PUT("/:plural", dataHandler.BatchUpdate)
			data.PUT("/:plural/:id", dataHandler.Update)
			data.DELETE("/:plural", dataHandler.BatchDelete)
			data.DELETE("/:plural/:id", dataHandler.Delete)
		}

		permissions := api.Group("/permissions", requireAuth)
		{
			permissions.POST("", permissionHandler.CreateGrant)
			permissions.DELETE("/:id", permissionHandler.RevokeGrant)
		}

		ext := api.Group("/extensions", requireAuth)
		{
			ext.GET("", extensionHandler.List)
			ext.POST("/:name/abilities/:ability", extensionHandler.ExecuteAbility)
		}

		svc := api.Group("/services", requireAuth)
		{
			svc.GET("", serviceHandler.List)
			svc.POST("/:name/:action", serviceHandler.Control)
		}
	}

	return router
}
