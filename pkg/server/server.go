// Package server exposes the verification dispatcher over HTTP.
package server

import (
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog/log"

	"github.com/planbok/playground/internal/config"
	"github.com/planbok/playground/pkg/verify"
)

type Option func(*Server)

// WithDispatcher replaces the default dispatcher.
func WithDispatcher(d *verify.Dispatcher) Option {
	return func(s *Server) { s.dispatcher = d }
}

// WithCustody enables POST /custody/sign-and-verify.
func WithCustody(c CustodyClient) Option {
	return func(s *Server) { s.custody = c }
}

// WithStackTraces logs a stack trace for every recovered handler panic.
func WithStackTraces() Option {
	return func(s *Server) { s.stackTraces = true }
}

// WithWebhookVerifier enables POST /custody/webhook.
func WithWebhookVerifier(v WebhookVerifier) Option {
	return func(s *Server) { s.webhooks = v }
}

// NewServer creates the HTTP service with all routes registered.
func NewServer(serverConfig *config.ServerEnvConfig, opts ...Option) *Server {
	if serverConfig == nil {
		serverConfig = &config.ServerEnvConfig{}
	}
	if serverConfig.Host == "" {
		serverConfig.Host = DefaultServerHost
	}
	if serverConfig.Port == 0 {
		serverConfig.Port = DefaultServerPort
	}
	if serverConfig.BodySizeLimit == 0 {
		serverConfig.BodySizeLimit = DefaultBodyLimit
	}
	if serverConfig.OperatorAuthMaxAge == 0 {
		serverConfig.OperatorAuthMaxAge = DefaultOperatorAuthMaxAge
	}

	log.Info().
		Str("host", serverConfig.Host).
		Int("port", serverConfig.Port).
		Int("body_limit", serverConfig.BodySizeLimit).
		Int("operators", len(serverConfig.OperatorAddresses)).
		Msg("Server configuration loaded")

	server := &Server{config: serverConfig}
	for _, opt := range opts {
		opt(server)
	}
	if server.dispatcher == nil {
		server.dispatcher = verify.NewDispatcher()
	}

	app := fiber.New(fiber.Config{
		Prefork:               false,
		DisableStartupMessage: true,
		ErrorHandler:          fiberErrHandler,
		JSONEncoder:           sonic.Marshal,
		JSONDecoder:           sonic.Unmarshal,
		BodyLimit:             serverConfig.BodySizeLimit,
	})
	server.App = app

	app.Use(recover.New(recover.Config{EnableStackTrace: server.stackTraces}))
	app.Use(compress.New(compress.Config{Level: compress.LevelBestSpeed}))

	whitelistedRoutes := []string{"/health", "/custody/webhook"}
	app.Use(ZstdMiddleware(whitelistedRoutes))
	if len(serverConfig.OperatorAddresses) > 0 {
		app.Use(OperatorAuthMiddleware(server.dispatcher, serverConfig.OperatorAddresses, serverConfig.OperatorAuthMaxAge, whitelistedRoutes))
	} else {
		log.Warn().Msg("No operator addresses configured, operator authentication disabled")
	}

	server.registerRoutes()
	return server
}

func fiberErrHandler(ctx *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}

	log.Error().
		Err(err).
		Int("status_code", code).
		Str("path", ctx.Path()).
		Str("method", ctx.Method()).
		Msg("Fiber error handler triggered")

	return ctx.Status(code).JSON(createResponse(fiber.Map{}, err))
}

// ServeRoute registers a JSON POST handler on path.
func ServeRoute[Req, Resp any](s *Server, path string, handler RouterHandler[Req, Resp]) {
	s.App.Post(path, func(c *fiber.Ctx) error {
		var req Req
		if err := c.BodyParser(&req); err != nil {
			log.Error().
				Err(err).
				Str("route", path).
				Msg("Failed to parse request body")
			return c.Status(fiber.StatusBadRequest).
				JSON(createResponse(fiber.Map{}, err))
		}

		resp, err := handler(c, req)
		if err != nil {
			code := fiber.StatusInternalServerError
			var fe *fiber.Error
			if errors.As(err, &fe) {
				code = fe.Code
			}
			log.Error().
				Err(err).
				Int("status_code", code).
				Str("route", path).
				Msg("Handler returned error")
			var zero Resp
			return c.Status(code).JSON(createResponse(zero, err))
		}

		return c.JSON(createResponse(resp, nil))
	})
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	log.Info().Str("addr", addr).Msg("Starting verification server")
	return s.App.Listen(addr)
}

func (s *Server) Shutdown() error {
	return s.App.Shutdown()
}
