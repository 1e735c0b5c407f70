package web

import (
	"context"
	_ "embed"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/raine/ecosort-bot/internal/llm"
	"github.com/raine/ecosort-bot/internal/metrics"
	"github.com/raine/ecosort-bot/internal/scan"
	"github.com/raine/ecosort-bot/internal/waste"
	"github.com/rs/zerolog/log"
)

const (
	// MaxBodySize limits classify request bodies (10 MiB).
	MaxBodySize = 10 << 20

	DefaultClassifyTimeout = 60 * time.Second
	shutdownTimeout        = 10 * time.Second
)

//go:embed static/index.html
var indexHTML []byte

// Options configures optional Server behavior.
type Options struct {
	ClassifyTimeout time.Duration
	Observer        scan.Observer
}

// Server is the browser front-end and JSON API.
type Server struct {
	classifier llm.Classifier
	observer   scan.Observer
	timeout    time.Duration
	router     *gin.Engine
}

// ClassifyRequest is the JSON body of POST /api/classify. Image is a data
// URL or a bare base64 payload.
type ClassifyRequest struct {
	Image string `json:"image" binding:"required"`
}

// NewServer creates a Server with its routes registered.
func NewServer(classifier llm.Classifier, opts Options) *Server {
	s := &Server{
		classifier: classifier,
		observer:   opts.Observer,
		timeout:    opts.ClassifyTimeout,
	}
	if s.timeout <= 0 {
		s.timeout = DefaultClassifyTimeout
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/", s.Index)
	router.GET("/healthz", s.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	{
		api.POST("/classify", s.Classify)
	}

	s.router = router
	return s
}

// Handler returns the HTTP handler serving all routes.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("starting web server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down web server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return ctx.Err()
}

// Index serves the single-page scanner.
func (s *Server) Index(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", indexHTML)
}

// HealthCheck returns the health status of the service.
func (s *Server) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "ecosort-bot",
	})
}

// Classify runs one classification cycle for the submitted image. Each
// request gets its own analysis; the page keeps the visible state.
func (s *Server) Classify(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxBodySize)

	img, err := readImage(c)
	if err != nil {
		status := http.StatusBadRequest
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			status = http.StatusRequestEntityTooLarge
		}
		metrics.CaptureErrorsTotal.WithLabelValues("web").Inc()
		log.Debug().Err(err).Int("status", status).Msg("rejected classify request")
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	var outcome scan.Outcome
	scanner := scan.NewScanner(s.classifier).WithObserver(func(o scan.Outcome) {
		outcome = o
		if s.observer != nil {
			s.observer(o)
		}
	})

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.timeout)
	defer cancel()

	st, err := scanner.Scan(ctx, img)
	if err != nil {
		log.Error().Err(err).Msg("failed to start analysis")
		c.JSON(http.StatusInternalServerError, gin.H{"error": llm.FailureMessage})
		return
	}

	if st.Status != scan.StatusComplete {
		status := http.StatusBadGateway
		if errors.Is(outcome.Err, llm.ErrConfiguration) {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"error": st.Error})
		return
	}

	c.JSON(http.StatusOK, st.Result)
}

var errMissingImage = errors.New("missing image")

// readImage accepts a multipart "image" file or a JSON ClassifyRequest.
func readImage(c *gin.Context) (waste.EncodedImage, error) {
	if c.ContentType() == gin.MIMEMultipartPOSTForm {
		fh, err := c.FormFile("image")
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				return waste.EncodedImage{}, err
			}
			return waste.EncodedImage{}, errMissingImage
		}
		f, err := fh.Open()
		if err != nil {
			return waste.EncodedImage{}, err
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		if err != nil {
			return waste.EncodedImage{}, err
		}
		if len(data) == 0 {
			return waste.EncodedImage{}, waste.ErrEmptyImage
		}
		mediaType := fh.Header.Get("Content-Type")
		if mediaType == "" || mediaType == "application/octet-stream" {
			mediaType = http.DetectContentType(data)
		}
		return waste.EncodeImage(data, mediaType), nil
	}

	var req ClassifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return waste.EncodedImage{}, err
		}
		return waste.EncodedImage{}, errMissingImage
	}
	img, err := waste.ParseEncodedImage(req.Image)
	if err != nil {
		return waste.EncodedImage{}, err
	}
	if _, err := img.Bytes(); err != nil {
		return waste.EncodedImage{}, err
	}
	return img, nil
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("http request")
	}
}
