package container

import (
	"fmt"
	"net/http"

	"go-diagnosis-bridge/internal/config"
	"go-diagnosis-bridge/internal/gemini"
	"go-diagnosis-bridge/internal/logger"
	"go-diagnosis-bridge/internal/observer"
	"go-diagnosis-bridge/internal/service"
	"go-diagnosis-bridge/internal/storage"
	"go-diagnosis-bridge/internal/transport"
	"go-diagnosis-bridge/pkg/validation"
)

// Container holds all application dependencies
type Container struct {
	config           *config.Config
	generator        gemini.Generator
	scanStore        storage.ScanStore
	metrics          *observer.MetricsObserver
	diagnosisService service.DiagnosisService
	handler          http.Handler
}

// NewContainer creates a new dependency injection container
func NewContainer(cfg *config.Config) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	generator := gemini.NewClient(cfg.GeminiEndpoint, cfg.GeminiAPIKey, cfg.UpstreamTimeout)
	uploads := validation.NewUploadValidatorWithMinLength(cfg.MinEncodedImageLength)

	var scanStore storage.ScanStore
	if cfg.StoredScansEnabled() {
		store, err := storage.NewAzureScanStore(cfg.AzureStorageAccount, cfg.AzureStorageKey, cfg.MaxRequestBodySize)
		if err != nil {
			return nil, fmt.Errorf("failed to create scan store: %w", err)
		}
		scanStore = store
	}

	metrics := observer.NewMetricsObserver()
	publisher := observer.NewEventPublisher()
	publisher.Subscribe(observer.NewLoggingObserver(logger.Logger))
	publisher.Subscribe(metrics)

	diagnosisService := service.NewDiagnosisService(generator, uploads, scanStore, publisher)
	handler := transport.NewHandler(diagnosisService, metrics, cfg)

	return &Container{
		config:           cfg,
		generator:        generator,
		scanStore:        scanStore,
		metrics:          metrics,
		diagnosisService: diagnosisService,
		handler:          handler,
	}, nil
}

// Handler returns the HTTP handler
func (c *Container) Handler() http.Handler {
	return c.handler
}

// Config returns the configuration
func (c *Container) Config() *config.Config {
	return c.config
}

// Service returns the diagnosis service
func (c *Container) Service() service.DiagnosisService {
	return c.diagnosisService
}
