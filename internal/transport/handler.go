package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"go-diagnosis-bridge/internal/config"
	apperrors "go-diagnosis-bridge/internal/errors"
	"go-diagnosis-bridge/internal/logger"
	"go-diagnosis-bridge/internal/observer"
	"go-diagnosis-bridge/internal/service"
	"go-diagnosis-bridge/pkg/models"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
	uploadField     = "file"
	version         = "1.0.0"
)

func NewHandler(svc service.DiagnosisService, metrics *observer.MetricsObserver, cfg *config.Config) http.Handler {
	r := gin.New()

	r.Use(
		gin.Recovery(),
		requestID(),
		requestLogger(),
		cors.New(corsConfig(cfg.AllowedOrigins)),
		requestSizeLimiter(cfg.MaxRequestBodySize),
		errorHandler(),
	)

	r.GET("/health", healthCheck(cfg))
	r.GET("/metrics", metricsSnapshot(metrics))

	api := r.Group("/api")
	api.POST("/generate_report", diagnoseImage(svc))
	if cfg.StoredScansEnabled() {
		api.POST("/generate_report/stored", diagnoseStoredImage(svc))
	}
	api.POST("/symptom_diagnosis", diagnoseSymptoms(svc))

	return r
}

func diagnoseImage(svc service.DiagnosisService) gin.HandlerFunc {
	return func(c *gin.Context) {
		upload, err := readUpload(c)
		if err != nil {
			_ = c.Error(err)
			return
		}

		analysis, err := svc.DiagnoseImage(bridgeContext(c), upload)
		if err != nil {
			_ = c.Error(err)
			return
		}

		c.JSON(http.StatusOK, models.ImageDiagnosisResponse{
			Status:   models.StatusSuccess,
			Analysis: analysis,
		})
	}
}

func diagnoseStoredImage(svc service.DiagnosisService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.StoredScanRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			_ = c.Error(apperrors.NewValidationError("Both container and blob are required.", err))
			return
		}

		analysis, err := svc.DiagnoseStoredImage(bridgeContext(c), req)
		if err != nil {
			_ = c.Error(err)
			return
		}

		c.JSON(http.StatusOK, models.ImageDiagnosisResponse{
			Status:   models.StatusSuccess,
			Analysis: analysis,
		})
	}
}

func diagnoseSymptoms(svc service.DiagnosisService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.SymptomRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			_ = c.Error(bodyError(err, "Invalid request body."))
			return
		}

		diagnosis, err := svc.DiagnoseSymptoms(bridgeContext(c), req)
		if err != nil {
			_ = c.Error(err)
			return
		}

		c.JSON(http.StatusOK, models.SymptomDiagnosisResponse{
			Status:    models.StatusSuccess,
			Diagnosis: diagnosis,
		})
	}
}

// readUpload returns nil without error when the request carries no file.
func readUpload(c *gin.Context) (*models.ImageUpload, error) {
	header, err := c.FormFile(uploadField)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return nil, nil
		}
		return nil, bodyError(err, "Invalid multipart form.")
	}

	file, err := header.Open()
	if err != nil {
		return nil, apperrors.NewValidationError("Unable to read uploaded file.", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, apperrors.NewValidationError("Unable to read uploaded file.", err)
	}

	return &models.ImageUpload{
		Filename:     header.Filename,
		DeclaredType: header.Header.Get("Content-Type"),
		Data:         data,
	}, nil
}

// bridgeContext detaches the upstream call from client disconnects; it stays
// bounded by the upstream client timeout.
func bridgeContext(c *gin.Context) context.Context {
	ctx := context.WithoutCancel(c.Request.Context())
	return service.WithRequestID(ctx, c.GetString(requestIDKey))
}

func bodyError(err error, message string) *apperrors.AppError {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return apperrors.NewValidationError("Request body too large.", err)
	}
	return apperrors.NewValidationError(message, err)
}

func healthCheck(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":       "available",
			"version":      version,
			"time":         time.Now().UTC().Format(time.RFC3339),
			"stored_scans": cfg.StoredScansEnabled(),
		})
	}
}

func metricsSnapshot(metrics *observer.MetricsObserver) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metrics == nil {
			c.JSON(http.StatusOK, gin.H{})
			return
		}
		c.JSON(http.StatusOK, metrics.GetMetrics())
	}
}

// Middleware and helper functions

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", requestIDHeader},
		ExposeHeaders: []string{requestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	for _, origin := range origins {
		if origin == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	cfg.AllowOrigins = origins
	return cfg
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := logger.WithFields(logrus.Fields{
			"method":             c.Request.Method,
			"path":               c.Request.URL.Path,
			"status":             c.Writer.Status(),
			"processing_time_ms": time.Since(start).Milliseconds(),
			"ip":                 c.ClientIP(),
			"user_agent":         c.Request.UserAgent(),
			"request_id":         c.GetString(requestIDKey),
		})
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Warn("Request completed with server error")
			return
		}
		entry.Info("Request completed")
	}
}

func requestSizeLimiter(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// errorHandler renders the failure envelope for the last error a handler recorded
func errorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 && !c.Writer.Written() {
			respondError(c, c.Errors.Last().Err)
		}
	}
}

func respondError(c *gin.Context, err error) {
	appErr, ok := apperrors.As(err)
	if !ok {
		appErr = apperrors.NewInternalError("Request processing failed.", err)
	}

	fields := logrus.Fields{
		"status_code": appErr.StatusCode,
		"error_kind":  appErr.Type,
		"message":     appErr.Message,
		"path":        c.Request.URL.Path,
		"request_id":  c.GetString(requestIDKey),
	}
	if appErr.Details != "" {
		fields["raw_response"] = appErr.Details
	}
	logger.WithError(err).WithFields(fields).Error("Request failed")

	resp := models.ErrorResponse{
		Status:    models.StatusError,
		Error:     appErr.Message,
		RequestID: c.GetString(requestIDKey),
	}
	if appErr.Type == apperrors.ErrorTypeFormat {
		resp.RawResponse = appErr.Details
	}
	c.AbortWithStatusJSON(appErr.StatusCode, resp)
}
