package threatlens

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server wires the detection pipeline, stores, and API routes into one
// Fiber application.
type Server struct {
	cfg      *Config
	store    *Store
	catalog  *CatalogProvider
	hub      *Hub
	detector *Detector
	monitor  *ScannerMonitor
	logins   *LoginMonitor
	bcast    Broadcaster
	analyzer *AIAnalyzer
	scanner  *Scanner
	registry *prometheus.Registry
	app      *fiber.App
}

// NewServer assembles the application. hub may be nil for tests that
// do not exercise the dashboard feed.
func NewServer(cfg *Config, store *Store, catalog *CatalogProvider, hub *Hub, registry *prometheus.Registry) *Server {
	var broadcast Broadcaster = NopBroadcaster{}
	if hub != nil {
		broadcast = hub
	}
	s := &Server{
		cfg:      cfg,
		store:    store,
		catalog:  catalog,
		hub:      hub,
		detector: NewDetector(catalog, store, broadcast),
		monitor:  NewScannerMonitor(catalog, store, broadcast),
		logins:   NewLoginMonitor(store, broadcast, cfg.BruteForce.Threshold, cfg.BruteForce.Window),
		bcast:    broadcast,
		analyzer: NewAIAnalyzer(cfg.AI.APIKey, cfg.AI.Model, cfg.AI.BaseURL, AIClient()),
		scanner:  NewScanner(store, ScanClient()),
		registry: registry,
	}
	s.app = s.buildApp()
	return s
}

// App exposes the underlying Fiber app, mainly for tests.
func (s *Server) App() *fiber.App { return s.app }

// Listen serves until the listener fails or Shutdown is called.
func (s *Server) Listen() error {
	logger.Info().Str("addr", s.cfg.ListenAddr).Msg("server listening")
	return s.app.Listen(s.cfg.ListenAddr)
}

// Shutdown drains in-flight requests with a deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) buildApp() *fiber.App {
	app := fiber.New(fiber.Config{
		ServerHeader:          "Server",
		BodyLimit:             10 * 1024 * 1024,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
		IdleTimeout:           60 * time.Second,
		DisableStartupMessage: true,
	})

	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(requestid.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(s.cfg.AllowedOrigins, ","),
		AllowMethods:     "GET,POST,PATCH,DELETE,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization",
		AllowCredentials: true,
	}))

	// Passive monitors run before routing so every request is seen.
	app.Use(s.monitor.Middleware())
	app.Use(s.detector.Middleware())

	app.Get("/healthz", s.handleHealth)
	if s.registry != nil {
		app.Get("/metrics", adaptor.HTTPHandler(
			promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
	}

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	if s.hub != nil {
		app.Get("/ws", websocket.New(func(conn *websocket.Conn) {
			s.hub.Serve(conn)
		}))
	}

	api := app.Group("/api")

	auth := api.Group("/auth")
	auth.Post("/register", s.handleRegister)
	auth.Post("/login", s.handleLogin)
	auth.Get("/logout", s.handleLogout)
	auth.Patch("/profile", RequireAuth(s.cfg.JWTSecret), s.handleUpdateProfile)
	auth.Get("/profile", RequireAuth(s.cfg.JWTSecret), s.handleGetProfile)

	alerts := api.Group("/alerts", RequireAuth(s.cfg.JWTSecret))
	alerts.Get("/stats", s.handleAlertStats)
	alerts.Get("/", s.handleListAlerts)
	alerts.Post("/", s.handleCreateAlert)
	alerts.Delete("/", RequireRole(RoleAdmin), s.handleClearAlerts)
	alerts.Get("/:id", s.handleGetAlert)

	api.Post("/simulate/:kind", RequireAuth(s.cfg.JWTSecret), s.handleSimulate)
	api.Get("/ai/incident/:id", RequireAuth(s.cfg.JWTSecret), s.handleIncidentAnalysis)

	scan := api.Group("/scan", RequireAuth(s.cfg.JWTSecret))
	scan.Post("/", s.handleStartScan)
	scan.Get("/:scanId", s.handleScanResults)

	api.Post("/actions/protected-data", RequireAuth(s.cfg.JWTSecret), s.handleProtectedData)

	return app
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	if err := s.store.HealthCheck(c.Context()); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "degraded", "error": err.Error(),
		})
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleRegister(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"msg": "Invalid request body"})
	}
	hash, err := HashPassword(req.Password)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"msg": err.Error()})
	}
	user := &User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		Role:         RoleDeveloper,
	}
	if err := s.store.CreateUser(c.Context(), user); err != nil {
		logger.Warn().Err(err).Str("email", req.Email).Msg("registration failed")
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"msg": "Registration failed"})
	}
	token, err := IssueToken(user, s.cfg.JWTSecret)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"msg": "Token issue failed"})
	}
	s.setAuthCookie(c, token)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"user": user, "token": token})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"msg": "Invalid request body"})
	}
	ip := ClientIP(c)
	user, err := s.store.GetUserByEmail(c.Context(), req.Email)
	if err != nil || !user.CheckPassword(req.Password) {
		s.logins.RecordFailure(c.Context(), ip, c.Path())
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"msg": "Invalid Credentials"})
	}
	s.logins.RecordSuccess(ip)
	token, err := IssueToken(user, s.cfg.JWTSecret)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"msg": "Token issue failed"})
	}
	s.setAuthCookie(c, token)
	return c.JSON(fiber.Map{"user": user, "token": token})
}

func (s *Server) handleLogout(c *fiber.Ctx) error {
	c.Cookie(&fiber.Cookie{
		Name:     authCookie,
		Value:    "",
		Expires:  time.Now().Add(-time.Hour),
		HTTPOnly: true,
	})
	return c.JSON(fiber.Map{"msg": "user logged out"})
}

func (s *Server) setAuthCookie(c *fiber.Ctx, token string) {
	c.Cookie(&fiber.Cookie{
		Name:     authCookie,
		Value:    token,
		Expires:  time.Now().Add(tokenLifetime),
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

func (s *Server) handleGetProfile(c *fiber.Ctx) error {
	claims := AuthClaims(c)
	user, err := s.store.GetUserByID(c.Context(), claims.UserID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"msg": "User not found"})
	}
	return c.JSON(fiber.Map{"user": user})
}

type profileRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

func (s *Server) handleUpdateProfile(c *fiber.Ctx) error {
	claims := AuthClaims(c)
	var req profileRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"msg": "Invalid request body"})
	}
	user, err := s.store.GetUserByID(c.Context(), claims.UserID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"msg": "User not found"})
	}
	if req.Username != "" {
		user.Username = req.Username
	}
	if req.Email != "" {
		user.Email = req.Email
	}
	if err := s.store.UpdateUser(c.Context(), user); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"msg": err.Error()})
	}
	// Re-issue so the token reflects the new identity fields.
	token, err := IssueToken(user, s.cfg.JWTSecret)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"msg": "Token issue failed"})
	}
	s.setAuthCookie(c, token)
	return c.JSON(fiber.Map{"user": user, "token": token})
}

func (s *Server) handleListAlerts(c *fiber.Ctx) error {
	filter := AlertFilter{
		Category: Category(c.Query("category")),
		Severity: Severity(c.Query("severity")),
		Status:   Status(c.Query("status")),
	}
	if since := c.Query("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"msg": "Invalid since timestamp"})
		}
		filter.Since = t
	}
	if limit := c.Query("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"msg": "Invalid limit"})
		}
		filter.Limit = n
	}
	alerts, err := s.store.ListAlerts(c.Context(), filter)
	if err != nil {
		logger.Error().Err(err).Msg("list alerts failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"msg": "Failed to fetch alerts"})
	}
	return c.JSON(fiber.Map{"alerts": alerts, "count": len(alerts)})
}

func (s *Server) handleGetAlert(c *fiber.Ctx) error {
	alert, err := s.store.GetAlert(c.Context(), c.Params("id"))
	if errors.Is(err, ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"msg": "Alert not found"})
	}
	if err != nil {
		logger.Error().Err(err).Msg("get alert failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"msg": "Failed to fetch alert"})
	}
	return c.JSON(alert)
}

type createAlertRequest struct {
	Category    Category `json:"type"`
	Severity    Severity `json:"severity"`
	Message     string   `json:"message"`
	SourceIP    string   `json:"ip"`
	RequestPath string   `json:"path"`
	Payload     string   `json:"payload"`
}

// handleCreateAlert accepts manually reported alerts. Unlike the
// detection pipeline, omitted fields default to OTHER / High here.
func (s *Server) handleCreateAlert(c *fiber.Ctx) error {
	var req createAlertRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"msg": "Invalid request body"})
	}
	if req.Category == "" {
		req.Category = CategoryOther
	}
	if req.Severity == "" {
		req.Severity = SeverityHigh
	}
	alert := &Alert{
		Category:     req.Category,
		Severity:     req.Severity,
		Message:      req.Message,
		SourceIP:     req.SourceIP,
		RequestPath:  req.RequestPath,
		Payload:      TruncatePayload(req.Payload),
		Timestamp:    time.Now(),
		Status:       StatusActive,
		ThreatSource: DefaultThreatSource(),
		Analysis:     DefaultAnalysis(),
	}
	if alert.SourceIP == "" {
		alert.SourceIP = ClientIP(c)
	}
	if alert.RequestPath == "" {
		alert.RequestPath = "Unknown"
	}
	if err := s.store.SaveAlert(c.Context(), alert); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"msg": err.Error()})
	}
	observeAlert(alert.Category, alert.Severity)
	s.broadcast(alert)
	return c.Status(fiber.StatusCreated).JSON(alert)
}

func (s *Server) handleClearAlerts(c *fiber.Ctx) error {
	n, err := s.store.ClearAlerts(c.Context())
	if err != nil {
		logger.Error().Err(err).Msg("clear alerts failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"msg": "Failed to clear alerts"})
	}
	logger.Info().Int("deleted", int(n)).Msg("alerts cleared")
	return c.JSON(fiber.Map{"msg": "All alerts cleared", "deleted": n})
}

func (s *Server) handleAlertStats(c *fiber.Ctx) error {
	stats, err := s.store.AlertStats(c.Context())
	if err != nil {
		logger.Error().Err(err).Msg("alert stats failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"msg": "Failed to compute stats"})
	}
	return c.JSON(stats)
}

func (s *Server) handleSimulate(c *fiber.Ctx) error {
	alert := SimulatedAlert(c.Params("kind"))
	if alert == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"msg": "Unknown simulation kind"})
	}
	if err := s.store.SaveAlert(c.Context(), alert); err != nil {
		logger.Error().Err(err).Msg("simulation save failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"msg": "Failed to save alert"})
	}
	observeAlert(alert.Category, alert.Severity)
	s.broadcast(alert)
	return c.Status(fiber.StatusCreated).JSON(alert)
}

func (s *Server) handleIncidentAnalysis(c *fiber.Ctx) error {
	alert, err := s.store.GetAlert(c.Context(), c.Params("id"))
	if errors.Is(err, ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"msg": "Alert not found"})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"msg": "Failed to fetch alert"})
	}
	analysis, err := s.analyzer.Analyze(c.Context(), alert)
	if errors.Is(err, ErrAINotConfigured) {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"msg": "AI analysis is not configured"})
	}
	if err != nil {
		logger.Error().Err(err).Str("alert", alert.ID).Msg("incident analysis failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"msg": "Analysis failed"})
	}
	return c.JSON(fiber.Map{"incident": alert, "analysis": analysis})
}

type scanRequest struct {
	URL string `json:"url"`
}

func (s *Server) handleStartScan(c *fiber.Ctx) error {
	var req scanRequest
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.URL) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"msg": "A target url is required"})
	}
	scanID, findings, err := s.scanner.Scan(c.Context(), req.URL)
	if err != nil {
		logger.Error().Err(err).Str("target", req.URL).Msg("scan failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"msg": "Scan failed"})
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"scanId": scanID, "target": req.URL, "findings": findings,
	})
}

func (s *Server) handleScanResults(c *fiber.Ctx) error {
	scanID := c.Params("scanId")
	findings, err := s.store.ListFindings(c.Context(), scanID)
	if err != nil {
		logger.Error().Err(err).Str("scan", scanID).Msg("list findings failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"msg": "Failed to fetch findings"})
	}
	if len(findings) == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"msg": "Scan not found"})
	}
	return c.JSON(fiber.Map{"scanId": scanID, "findings": findings})
}

// handleProtectedData is a demo endpoint: any payload posted here has
// already passed through the detection middleware.
func (s *Server) handleProtectedData(c *fiber.Ctx) error {
	claims := AuthClaims(c)
	return c.JSON(fiber.Map{
		"msg":  "This is protected data.",
		"user": claims.Username,
	})
}

func (s *Server) broadcast(alert *Alert) {
	s.bcast.Emit(EventNewAlert, alert)
}
