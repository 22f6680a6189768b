package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"groqchat/internal/config"
	"groqchat/internal/models"
	"groqchat/internal/provider"
	"groqchat/internal/web"
)

const (
	maxBodyBytes        = 1 << 20 // 1 MiB
	shutdownGracePeriod = 10 * time.Second
	readTimeout         = 30 * time.Second
	idleTimeout         = 120 * time.Second
)

// Relay is the upstream-facing behaviour the handlers depend on.
type Relay interface {
	Chat(ctx context.Context, messages []models.Message, params models.GenerationParams) (<-chan models.StreamEvent, error)
	Title(ctx context.Context, messages []models.Message) (json.RawMessage, error)
	Models(ctx context.Context) ([]string, error)
}

type Server struct {
	cfg     config.Config
	relay   Relay
	app     *echo.Echo
	address string
}

// New constructs an HTTP server wired with routing and middleware.
func New(cfg config.Config, rl Relay) (*Server, error) {
	if rl == nil {
		return nil, errors.New("relay must not be nil")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = openAIErrorHandler

	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogLatency:   true,
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			slog.Info("request",
				"request_id", v.RequestID,
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds(),
				"error", v.Error,
			)
			return nil
		},
	}))
	e.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		HSTSMaxAge:            31536000,
		ContentSecurityPolicy: "default-src 'self'; frame-ancestors 'none'; form-action 'self'",
	}))

	srv := &Server{
		cfg:     cfg,
		relay:   rl,
		app:     e,
		address: fmt.Sprintf(":%d", cfg.Server.Port),
	}

	srv.registerRoutes()

	return srv, nil
}

// Handler exposes the routed application.
func (s *Server) Handler() http.Handler {
	return s.app
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	printStartupBanner(s.cfg.Server.Port)
	slog.Info("starting server", "addr", s.address, "upstream", s.cfg.Upstream.BaseURL)

	// No WriteTimeout: chat streams last as long as the upstream generates.
	httpServer := &http.Server{
		Addr:        s.address,
		Handler:     s.app,
		ReadTimeout: readTimeout,
		IdleTimeout: idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.app.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()
		if err := s.app.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		slog.Info("server shutdown complete")
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) registerRoutes() {
	s.app.GET("/health", s.handleHealth)
	s.app.GET("/api/config", s.handleClientConfig)
	s.app.GET("/api/models", s.handleModels)
	s.app.POST("/api/chat", s.handleChat)
	s.app.POST("/api/title", s.handleTitle)

	assets := web.Assets()
	s.app.FileFS("/", "index.html", assets)
	s.app.StaticFS("/static", assets)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

type clientConfig struct {
	Heading       string  `json:"heading"`
	FallbackModel string  `json:"fallbackModel"`
	Temperature   float64 `json:"temperature"`
	TopP          float64 `json:"topP"`
}

func (s *Server) handleClientConfig(c echo.Context) error {
	ui := s.cfg.UI
	out := clientConfig{
		Heading:       defaultHeading,
		FallbackModel: ui.FallbackModel,
		Temperature:   config.DefaultTemperature,
		TopP:          config.DefaultTopP,
	}
	if ui.Temperature != nil {
		out.Temperature = *ui.Temperature
	}
	if ui.TopP != nil {
		out.TopP = *ui.TopP
	}
	return c.JSON(http.StatusOK, out)
}

func decodeRequestBody[T any](c echo.Context, target *T) error {
	req := c.Request()
	defer req.Body.Close()

	req.Body = http.MaxBytesReader(c.Response(), req.Body, maxBodyBytes)

	decoder := json.NewDecoder(req.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return requestError{
				Status:  http.StatusBadRequest,
				Message: "request body is required",
				Type:    "invalid_request_error",
			}
		}
		return requestError{
			Status:  http.StatusBadRequest,
			Message: fmt.Sprintf("invalid JSON payload: %v", err),
			Type:    "invalid_request_error",
		}
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return requestError{
			Status:  http.StatusBadRequest,
			Message: "request body must contain a single JSON object",
			Type:    "invalid_request_error",
		}
	}
	return nil
}

type requestError struct {
	Status  int
	Message string
	Type    string
	Code    string
}

func (e requestError) Error() string {
	return e.Message
}

func writeError(c echo.Context, status int, message, errType, code string) error {
	return c.JSON(status, models.ErrorPayload{Error: models.ErrorDetail{
		Message: message,
		Type:    errType,
		Code:    code,
	}})
}

func openAIErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		slog.Warn("error after response was committed", "uri", c.Request().RequestURI, "err", err)
		return
	}

	var reqErr requestError
	if errors.As(err, &reqErr) {
		_ = writeError(c, reqErr.Status, reqErr.Message, reqErr.Type, reqErr.Code)
		return
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		_ = writeError(c, he.Code, fmt.Sprint(he.Message), "invalid_request_error", "")
		return
	}

	_ = writeError(c, http.StatusInternalServerError, "internal server error", "server_error", "")
}

// toHTTPError keeps upstream 4xx statuses and reports everything else as a bad gateway.
func toHTTPError(err error) error {
	var reqErr requestError
	if errors.As(err, &reqErr) {
		return reqErr
	}

	if errors.Is(err, context.Canceled) {
		return requestError{
			Status:  499,
			Message: "request cancelled",
			Type:    "client_closed_request",
		}
	}

	var apiErr *provider.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
		errType := apiErr.Type
		if errType == "" {
			errType = "upstream_error"
		}
		return requestError{
			Status:  apiErr.StatusCode,
			Message: apiErr.Message,
			Type:    errType,
		}
	}

	slog.Warn("upstream failure", "err", err)
	return requestError{
		Status:  http.StatusBadGateway,
		Message: "upstream provider error",
		Type:    "upstream_error",
	}
}

func printStartupBanner(port int) {
	host := "127.0.0.1"
	fmt.Println()
	fmt.Println("groqchat ready")
	fmt.Printf("Open http://%s:%d in a browser\n", host, port)
	fmt.Println("Endpoints:")
	fmt.Println("  GET  /health")
	fmt.Println("  GET  /api/models")
	fmt.Println("  POST /api/chat")
	fmt.Println("  POST /api/title")
	fmt.Printf("Example:\n  curl -N http://%s:%d/api/chat -H 'Content-Type: application/json' -d '{\"messages\":[{\"role\":\"user\",\"content\":\"hello\"}]}'\n\n", host, port)
}
