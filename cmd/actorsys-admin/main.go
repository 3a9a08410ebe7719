// Command actorsys-admin exposes the event catalog's read operations and a
// few operator-facing mutations over HTTP (spec §4.1), so the catalog can
// be inspected without a direct database connection.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/actorsys/runtime/catalog"
	"github.com/actorsys/runtime/internal/config"
	"github.com/actorsys/runtime/internal/log"
	"github.com/actorsys/runtime/internal/metrics"
	"github.com/actorsys/runtime/pkg/version"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New("actorsys-admin", cfg.Logging.Level, cfg.Logging.Format)
	logger.WithContext(context.Background()).Infof("starting actorsys-admin %s", version.FullVersion())

	db, err := sqlx.Connect("postgres", cfg.Database.DSN)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to database")
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetime) * time.Second)

	store := catalog.NewPostgresStore(db)
	if cfg.Database.MigrateOnStart {
		if err := store.EnsureSchema(context.Background()); err != nil {
			logger.WithError(err).Fatal("failed to apply catalog migrations")
		}
	}

	m := metrics.New()
	cat := catalog.New(store, catalog.ModeStrict, logger, catalog.WithMetrics(m))

	router := newRouter(cat, logger)

	addr := cfg.Server.Host + ":" + strconv.Itoa(cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: router}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("admin server failed")
		}
	}()
	logger.WithContext(context.Background()).Infof("actorsys-admin listening on %s", addr)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("admin server shutdown error")
	}
}

// newRouter wires the catalog's read surface plus a handful of operator
// mutations (register, deprecate, add consumer). gin.Default already wires its own
// recovery and request logging middleware.
func newRouter(cat *catalog.Catalog, logger *log.Logger) *gin.Engine {
	r := gin.Default()

	r.GET("/healthz", func(c *gin.Context) {
		status := cat.HealthCheck(c.Request.Context())
		code := http.StatusOK
		if !status.Healthy {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, status)
	})

	r.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"version": version.FullVersion()})
	})

	events := r.Group("/events")
	{
		events.GET("", handleListEvents(cat))
		events.GET("/:name", handleGetDefinition(cat))
		events.POST("", handleRegisterEvent(cat))
		events.POST("/:name/deprecate", handleDeprecateEvent(cat))
		events.GET("/:name/consumers", handleGetConsumers(cat))
		events.POST("/:name/consumers", handleAddConsumer(cat))
		events.GET("/:name/history", handleSchemaHistory(cat))
	}

	r.GET("/actors/:name/events", handleDiscoverEvents(cat))
	r.GET("/catalog/export", handleExportCatalog(cat))
	r.GET("/catalog/dependencies", handleVisualizeDependencies(cat))
	r.GET("/catalog/types", handleGenerateTypes(cat))

	return r
}

func handleListEvents(cat *catalog.Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		filter := catalog.ListFilter{
			Category: catalog.Category(c.Query("category")),
			Producer: c.Query("producer"),
		}
		events, err := cat.ListEvents(c.Request.Context(), filter)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, events)
	}
}

func handleGetDefinition(cat *catalog.Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		def, err := cat.GetDefinition(c.Request.Context(), c.Param("name"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if def == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
			return
		}
		c.JSON(http.StatusOK, def)
	}
}

func handleRegisterEvent(cat *catalog.Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		var def catalog.EventDefinition
		if err := c.ShouldBindJSON(&def); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := cat.Register(c.Request.Context(), def); err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, def)
	}
}

func handleDeprecateEvent(cat *catalog.Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			ReplacedBy string `json:"replacedBy"`
		}
		_ = c.ShouldBindJSON(&body)
		if err := cat.Deprecate(c.Request.Context(), c.Param("name"), body.ReplacedBy); err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func handleGetConsumers(cat *catalog.Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		consumers, err := cat.GetConsumers(c.Request.Context(), c.Param("name"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, consumers)
	}
}

func handleAddConsumer(cat *catalog.Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		var consumer catalog.EventConsumer
		if err := c.ShouldBindJSON(&consumer); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		consumer.EventName = c.Param("name")
		if err := cat.AddConsumer(c.Request.Context(), consumer); err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, consumer)
	}
}

func handleSchemaHistory(cat *catalog.Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		history, err := cat.GetSchemaHistory(c.Request.Context(), c.Param("name"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, history)
	}
}

func handleDiscoverEvents(cat *catalog.Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		produces, consumes, err := cat.DiscoverEvents(c.Request.Context(), c.Param("name"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"produces": produces, "consumes": consumes})
	}
}

func handleExportCatalog(cat *catalog.Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		exported, err := cat.ExportCatalog(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, exported)
	}
}

func handleVisualizeDependencies(cat *catalog.Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		graph, err := cat.VisualizeDependencies(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, graph)
	}
}

func handleGenerateTypes(cat *catalog.Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		types, err := cat.GenerateTypes(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(types))
	}
}
