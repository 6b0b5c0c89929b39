// Package httpserver exposes the management and authorization API over
// fiber. Everything except the authorization-gate endpoints sits behind the
// session JWT issued by the gate.
package httpserver

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	jwtware "github.com/gofiber/contrib/jwt"
	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	recoverware "github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/dwongdev/defguard/internal/errs"
	"github.com/dwongdev/defguard/internal/gate"
	"github.com/dwongdev/defguard/internal/gateway"
	"github.com/dwongdev/defguard/internal/service"
)

// Server wires the HTTP API over the application services.
type Server struct {
	networks    service.NetworkService
	devices     service.DeviceService
	memberships service.MembershipService
	stats       service.StatsService
	gate        gate.Service
	registry    *gateway.Registry
	signKey     []byte
	log         *zap.Logger
}

// New constructs the HTTP server. signKey verifies the session tokens the
// authorization gate issues; the registry feeds live gateway state into
// network reads.
func New(networks service.NetworkService, devices service.DeviceService, memberships service.MembershipService, stats service.StatsService, gateSvc gate.Service, registry *gateway.Registry, signKey []byte, log *zap.Logger) *Server {
	return &Server{
		networks:    networks,
		devices:     devices,
		memberships: memberships,
		stats:       stats,
		gate:        gateSvc,
		registry:    registry,
		signKey:     signKey,
		log:         log,
	}
}

// App assembles the fiber application and its routes.
func (s *Server) App() *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler:          s.errorHandler,
		DisableStartupMessage: true,
	})
	app.Use(recoverware.New())
	app.Use(logger.New())
	app.Use(otelfiber.Middleware())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Authorization, Content-Type, Accept",
	}))

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api/v1")
	api.Use(jwtware.New(jwtware.Config{
		Filter:     authExempt,
		SigningKey: jwtware.SigningKey{JWTAlg: jwtware.HS256, Key: s.signKey},
		ErrorHandler: func(c *fiber.Ctx, _ error) error {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing or invalid session token"})
		},
	}))
	api.Use(rejectGatewayTokens)

	api.Post("/network", s.createNetwork)
	api.Get("/network", s.listNetworks)
	api.Get("/network/:id", s.getNetwork)
	api.Put("/network/:id", s.updateNetwork)
	api.Delete("/network/:id", s.deleteNetwork)
	api.Post("/network/:id/token", s.issueGatewayToken)
	api.Get("/network/:id/device", s.listNetworkDevices)
	api.Get("/network/:id/device/:device_id/config", s.deviceConfig)
	api.Get("/network/:id/stats/active", s.networkActivity)
	api.Get("/network/:id/stats/users", s.networkUserStats)

	api.Post("/device", s.createDevice)
	api.Get("/device/:id", s.getDevice)
	api.Put("/device/:id", s.updateDevice)
	api.Delete("/device/:id", s.deleteDevice)
	api.Get("/device/:id/stats", s.deviceStats)
	api.Get("/user/:id/device", s.listUserDevices)

	api.Post("/membership", s.enroll)
	api.Get("/membership/:id", s.getMembership)
	api.Post("/membership/:id/revoke", s.revokeMembership)
	api.Delete("/membership/:id", s.removeMembership)

	// The static callback route must be registered before the :token routes
	// or fiber would capture "callback" as a token.
	api.Post("/authorize", s.beginAuthorize)
	api.Get("/authorize/callback", s.consentCallback)
	api.Post("/authorize/:token/mfa", s.completeMFA)
	api.Get("/authorize/:token", s.authorizeStatus)

	return app
}

// authExempt marks the endpoints a client may hit before it holds a session:
// the whole authorization-gate surface.
func authExempt(c *fiber.Ctx) bool {
	return strings.HasPrefix(c.Path(), "/api/v1/authorize")
}

// rejectGatewayTokens keeps gateway connection tokens off the interactive
// API. They are signed with the same key but carry a role claim.
func rejectGatewayTokens(c *fiber.Ctx) error {
	if tok, ok := c.Locals("user").(*jwt.Token); ok && tok != nil {
		if claims, ok := tok.Claims.(jwt.MapClaims); ok {
			if role, _ := claims["role"].(string); role == service.GatewayTokenRole {
				return fmt.Errorf("%w: gateway token on interactive api", errs.ErrUnauthorized)
			}
		}
	}
	return c.Next()
}

// errorHandler maps sentinel errors onto HTTP statuses. Internal failures
// are logged and masked; everything else carries its message.
func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
	}
	code := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, errs.ErrValidation):
		code = fiber.StatusBadRequest
	case errors.Is(err, errs.ErrNotFound):
		code = fiber.StatusNotFound
	case errors.Is(err, errs.ErrConflict):
		code = fiber.StatusConflict
	case errors.Is(err, errs.ErrUnauthorized), errors.Is(err, errs.ErrMFAFailed):
		code = fiber.StatusUnauthorized
	case errors.Is(err, errs.ErrExpired):
		code = fiber.StatusGone
	case errors.Is(err, errs.ErrRateLimited):
		code = fiber.StatusTooManyRequests
	}
	if code == fiber.StatusInternalServerError {
		s.log.Error("request failed",
			zap.String("method", c.Method()), zap.String("path", c.Path()), zap.Error(err))
		return c.Status(code).JSON(fiber.Map{"error": "internal error"})
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

// pathID parses a positive integer path parameter.
func pathID(c *fiber.Ctx, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Params(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: bad %s", errs.ErrValidation, name)
	}
	return id, nil
}

// statsWindow reads the from/to query bounds (RFC 3339). A missing bound
// defaults to the last hour ending now.
func statsWindow(c *fiber.Ctx) (from, to time.Time, err error) {
	to = time.Now().UTC()
	if v := c.Query("to"); v != "" {
		if to, err = time.Parse(time.RFC3339, v); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: bad to timestamp", errs.ErrValidation)
		}
	}
	from = to.Add(-time.Hour)
	if v := c.Query("from"); v != "" {
		if from, err = time.Parse(time.RFC3339, v); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: bad from timestamp", errs.ErrValidation)
		}
	}
	return from, to, nil
}

func badBody(err error) error {
	return fmt.Errorf("%w: malformed body: %v", errs.ErrValidation, err)
}
