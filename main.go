package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/sagarkhandagre998/pdf-invoice-ai-tool/config"
	"github.com/sagarkhandagre998/pdf-invoice-ai-tool/handler"
	"github.com/sagarkhandagre998/pdf-invoice-ai-tool/middleware"
	"github.com/sagarkhandagre998/pdf-invoice-ai-tool/model"
	"github.com/sagarkhandagre998/pdf-invoice-ai-tool/pkg/logger"
	"github.com/sagarkhandagre998/pdf-invoice-ai-tool/repository"
	"github.com/sagarkhandagre998/pdf-invoice-ai-tool/service"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	godotenv.Load()

	cfg, err := config.Load("config.yaml")
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Init(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})

	slog.Info("configuration loaded",
		"storage_backend", cfg.Storage.Backend,
		"gemini_model", cfg.Gemini.Model,
	)

	// The server stays up without Mongo so uploads and extraction keep
	// working; invoice persistence endpoints report errors until it returns.
	var mongoClient *mongo.Client
	var invoiceRepo *repository.InvoiceRepository
	var fileRepo handler.FileIndex
	mongoClient, err = repository.Connect(&cfg.Mongo)
	if err != nil {
		slog.Warn("mongodb unavailable, continuing without persistence", "error", err)
		fileRepo = newMemoryFileIndex()
	} else {
		db := mongoClient.Database(cfg.Mongo.Database)
		invoiceRepo = repository.NewInvoiceRepository(db)
		files := repository.NewFileRepository(db)
		fileRepo = files

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := invoiceRepo.EnsureIndexes(ctx); err != nil {
			slog.Warn("failed to ensure invoice indexes", "error", err)
		}
		if err := files.EnsureIndexes(ctx); err != nil {
			slog.Warn("failed to ensure file indexes", "error", err)
		}
		cancel()
	}

	store, err := buildFileStore(cfg)
	if err != nil {
		slog.Error("failed to initialize file storage", "error", err)
		os.Exit(1)
	}

	cache := service.NewExtractionCache(&cfg.Cache)
	usage := service.NewUsageTracker(cfg.Gemini.DailyLimit)
	gemini := service.NewGeminiService(&cfg.Gemini)

	extraction, err := service.NewExtractionService(cache, usage, gemini)
	if err != nil {
		slog.Error("failed to initialize extraction service", "error", err)
		os.Exit(1)
	}

	uploadHandler := handler.NewUploadHandler(store, fileRepo, cfg.Storage.MaxUploadBytes)
	extractHandler := handler.NewExtractHandler(extraction, fileRepo, store, usage)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.MaxMultipartMemory = cfg.Storage.MaxUploadBytes

	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(corsMiddleware(cfg.Server.FrontendOrigin))

	router.GET("/api/health", healthHandler(mongoClient))

	// Local uploads are served straight from disk under the public base URL
	// recorded on each file; MinIO records carry presigned URLs instead.
	if cfg.Storage.Backend != "minio" {
		router.Static("/uploads", cfg.Storage.LocalDir)
	}

	api := router.Group("/api")
	{
		api.POST("/upload", uploadHandler.Upload)

		// Extraction burns shared AI quota, so it gets its own limiter.
		extract := api.Group("/extract")
		extract.Use(middleware.RateLimit(30, time.Minute))
		{
			extract.POST("", extractHandler.Extract)
			extract.GET("/quota", extractHandler.Quota)
		}

		invoices := api.Group("/invoices")
		{
			invoiceHandler := handler.NewInvoiceHandler(invoiceStoreOrStub(invoiceRepo))
			invoices.GET("", invoiceHandler.List)
			invoices.POST("", invoiceHandler.Create)

			byID := invoices.Group("/:fileId")
			byID.Use(middleware.FileID())
			{
				byID.GET("", invoiceHandler.Get)
				byID.PUT("", invoiceHandler.Update)
				byID.DELETE("", invoiceHandler.Delete)
			}
		}
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	if mongoClient != nil {
		mongoClient.Disconnect(ctx)
	}

	slog.Info("server exited gracefully")
}

func buildFileStore(cfg *config.Config) (service.FileStore, error) {
	switch cfg.Storage.Backend {
	case "minio":
		store, err := service.NewMinioStore(&cfg.Minio)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureBucket(context.Background()); err != nil {
			return nil, err
		}
		return store, nil
	default:
		return service.NewLocalStore(&cfg.Storage, cfg.Server.BaseURL)
	}
}

func healthHandler(mongoClient *mongo.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		body := gin.H{
			"status":    "OK",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		}

		if mongoClient != nil {
			if err := repository.Ping(c.Request.Context(), mongoClient); err != nil {
				body["database"] = "unreachable"
			} else {
				body["database"] = "ok"
			}
		} else {
			body["database"] = "disconnected"
		}

		c.JSON(http.StatusOK, body)
	}
}

// invoiceStoreOrStub keeps the invoice routes mounted when Mongo is down;
// they answer with errors instead of 404s on every path.
func invoiceStoreOrStub(repo *repository.InvoiceRepository) handler.InvoiceStore {
	if repo != nil {
		return repo
	}
	return unavailableInvoiceStore{}
}

var errNoDatabase = fmt.Errorf("invoice persistence unavailable: not connected to mongodb")

type unavailableInvoiceStore struct{}

func (unavailableInvoiceStore) Create(context.Context, *model.Invoice) error {
	return errNoDatabase
}

func (unavailableInvoiceStore) GetByFileID(context.Context, string) (*model.Invoice, error) {
	return nil, errNoDatabase
}

func (unavailableInvoiceStore) List(context.Context, string, int, int) ([]model.Invoice, repository.Pagination, error) {
	return nil, repository.Pagination{}, errNoDatabase
}

func (unavailableInvoiceStore) Update(context.Context, string, *model.Invoice) (*model.Invoice, error) {
	return nil, errNoDatabase
}

func (unavailableInvoiceStore) Delete(context.Context, string) error {
	return errNoDatabase
}

// memoryFileIndex stands in for the Mongo file index when the database is
// unreachable, so uploads and extraction still work within one process.
type memoryFileIndex struct {
	mu      sync.RWMutex
	records map[string]*model.FileRecord
}

func newMemoryFileIndex() *memoryFileIndex {
	return &memoryFileIndex{records: make(map[string]*model.FileRecord)}
}

func (i *memoryFileIndex) Create(_ context.Context, record *model.FileRecord) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if _, ok := i.records[record.FileID]; ok {
		return repository.ErrDuplicate
	}
	i.records[record.FileID] = record
	return nil
}

func (i *memoryFileIndex) GetByFileID(_ context.Context, fileID string) (*model.FileRecord, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	record, ok := i.records[fileID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return record, nil
}

func (i *memoryFileIndex) Delete(_ context.Context, fileID string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.records, fileID)
	return nil
}

func corsMiddleware(origin string) gin.HandlerFunc {
	if origin == "" {
		origin = "*"
	}
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, accept, origin, Cache-Control, X-Requested-With, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "X-Request-ID")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
