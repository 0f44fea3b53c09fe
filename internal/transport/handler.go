package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"lungperfusion/internal/logger"
	"lungperfusion/internal/models"
	"lungperfusion/pkg/apperrors"
	"lungperfusion/pkg/config"
	"lungperfusion/pkg/imageio"
	"lungperfusion/pkg/perfusion"
)

const requestIDHeader = "X-Request-ID"

type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message,omitempty"`
	Kind      string `json:"kind,omitempty"`
	Stage     string `json:"stage,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// PerfusionResponse is the body of a successful single-projection request
type PerfusionResponse struct {
	RequestID string            `json:"request_id"`
	Result    *perfusion.Result `json:"result"`
}

// StudyResponse is the body of a successful study request
type StudyResponse struct {
	RequestID string                 `json:"request_id"`
	Study     *perfusion.StudyResult `json:"study"`
}

func NewHandler(processor *perfusion.Processor, cfg *config.Config) http.Handler {
	r := gin.New()

	r.Use(
		gin.Recovery(),
		requestID(),
		requestLogger(),
		requestSizeLimiter(cfg.Server.MaxUploadBytes),
	)

	r.GET("/health", healthCheck)

	api := r.Group("/api/v1")
	api.POST("/perfusion", quantify(processor, cfg))
	api.POST("/study", quantifyStudy(processor, cfg))

	return r
}

func quantify(p *perfusion.Processor, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		projection, err := perfusion.ParseProjection(c.PostForm("projection"))
		if err != nil {
			respondError(c, err)
			return
		}

		labels := formLabels(c, "")

		img, err := formImage(c, "image")
		if err != nil {
			respondError(c, err)
			return
		}

		result, err := withTimeout(c.Request.Context(), cfg.Server.RequestTimeout, func() (*perfusion.Result, error) {
			return p.Process(img, projection, labels)
		})
		if err != nil {
			respondError(c, err)
			return
		}

		logger.WithFields(logrus.Fields{
			"request_id":  c.GetString("request_id"),
			"projection":  projection,
			"total_kct":   result.TotalKct(),
			"lung_shares": result.LungShares,
		}).Info("Perfusion quantified")

		c.JSON(http.StatusOK, PerfusionResponse{RequestID: c.GetString("request_id"), Result: result})
	}
}

// quantifyStudy accepts an "anterior" and/or "posterior" image, with
// optional "<projection>_first_label" and "<projection>_second_label"
// fields per view.
func quantifyStudy(p *perfusion.Processor, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		views := make(map[models.Projection]perfusion.View, len(models.Projections))
		for _, proj := range models.Projections {
			// Only an absent field is optional; oversized or malformed
			// uploads are reported by formImage.
			if _, err := c.FormFile(string(proj)); errors.Is(err, http.ErrMissingFile) {
				continue
			}

			img, err := formImage(c, string(proj))
			if err != nil {
				respondError(c, err)
				return
			}
			views[proj] = perfusion.View{Image: img, Labels: formLabels(c, string(proj)+"_")}
		}

		if len(views) == 0 {
			respondError(c, apperrors.NewInvalidInputError(apperrors.StageLoad,
				"an anterior or posterior image is required", nil))
			return
		}

		study, err := withTimeout(c.Request.Context(), cfg.Server.RequestTimeout, func() (*perfusion.StudyResult, error) {
			return p.ProcessStudy(views)
		})
		if err != nil {
			respondError(c, err)
			return
		}

		logger.WithFields(logrus.Fields{
			"request_id": c.GetString("request_id"),
			"views":      len(study.Projections),
			"combined":   len(study.Combined) > 0,
		}).Info("Study quantified")

		c.JSON(http.StatusOK, StudyResponse{RequestID: c.GetString("request_id"), Study: study})
	}
}

// withTimeout runs fn and gives up waiting once ctx or the timeout expires.
// The pipeline is CPU bound and not interruptible, so an abandoned run
// finishes in the background and its result is dropped.
func withTimeout[T any](ctx context.Context, timeout time.Duration, fn func() (T, error)) (T, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type outcome struct {
		value T
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := fn()
		done <- outcome{v, err}
	}()

	select {
	case o := <-done:
		return o.value, o.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func formImage(c *gin.Context, field string) (*models.GrayscaleImage, error) {
	header, err := c.FormFile(field)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, apperrors.NewInvalidInputError(apperrors.StageLoad,
				fmt.Sprintf("upload exceeds %d bytes", maxErr.Limit), err)
		}
		return nil, apperrors.NewInvalidInputError(apperrors.StageLoad,
			fmt.Sprintf("multipart field %q with the scan is required", field), err)
	}

	file, err := header.Open()
	if err != nil {
		return nil, apperrors.NewImageLoadError("failed to open upload "+header.Filename, err)
	}
	defer file.Close()

	return imageio.Decode(file, header.Filename)
}

// formLabels reads an optional lung label pair; Process validates it
func formLabels(c *gin.Context, prefix string) models.LabelPair {
	return models.LabelPair{
		First:  strings.TrimSpace(c.PostForm(prefix + "first_label")),
		Second: strings.TrimSpace(c.PostForm(prefix + "second_label")),
	}
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "available",
		"version": "1.0.0",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// Middleware and helper functions
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.WithFields(logrus.Fields{
			"request_id":  c.GetString("request_id"),
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"status":      c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
			"ip":          c.ClientIP(),
		}).Debug("Request handled")
	}
}

func requestSizeLimiter(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBytes > 0 {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}

func determineStatusCode(err error) int {
	if _, ok := apperrors.As(err); ok {
		return apperrors.StatusCode(err)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	code := determineStatusCode(err)
	resp := ErrorResponse{
		Error:     http.StatusText(code),
		Message:   err.Error(),
		RequestID: c.GetString("request_id"),
	}
	if appErr, ok := apperrors.As(err); ok {
		resp.Kind = string(appErr.Kind)
		resp.Stage = appErr.Stage
	}

	logger.WithError(err).WithFields(logrus.Fields{
		"request_id":  resp.RequestID,
		"status_code": code,
		"kind":        resp.Kind,
		"stage":       resp.Stage,
		"path":        c.Request.URL.Path,
		"ip":          c.ClientIP(),
	}).Error("Request failed")

	c.AbortWithStatusJSON(code, resp)
}
