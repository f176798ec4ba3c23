// Package api serves the control surface over HTTP: risk status,
// safe-mode control, the current position and the trade journal.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"upbit-trading-bot/internal/database"
	"upbit-trading-bot/internal/domain"
	"upbit-trading-bot/internal/risk"
)

// RiskControl exposes the risk manager operations the API needs.
type RiskControl interface {
	Snapshot() risk.Snapshot
	EnableSafeMode(reason string)
	DisableSafeMode()
}

// PositionSource exposes the current holding.
type PositionSource interface {
	Position() *domain.Position
}

// TradeSource reads the trade journal.
type TradeSource interface {
	RecentTrades(ctx context.Context, ticker string, limit int) ([]database.TradeRecord, error)
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host           string   `json:"host"`
	Port           int      `json:"port"`
	ProductionMode bool     `json:"production_mode"`
	AllowOrigins   []string `json:"allow_origins"`
}

// Server is the HTTP control server.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	config     ServerConfig
	ticker     string
	riskCtl    RiskControl
	positions  PositionSource
	trades     TradeSource // nil when the journal is disabled
	log        zerolog.Logger
}

// NewServer creates the API server. trades may be nil.
func NewServer(config ServerConfig, ticker string, riskCtl RiskControl,
	positions PositionSource, trades TradeSource, log zerolog.Logger) *Server {

	if config.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if len(config.AllowOrigins) > 0 {
		corsConfig.AllowOrigins = config.AllowOrigins
	} else {
		corsConfig.AllowOrigins = []string{"http://localhost:5173"}
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	router.Use(cors.New(corsConfig))

	s := &Server{
		router:    router,
		config:    config,
		ticker:    ticker,
		riskCtl:   riskCtl,
		positions: positions,
		trades:    trades,
		log:       log.With().Str("component", "api").Logger(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	api := s.router.Group("/api")
	{
		api.GET("/risk/status", s.handleRiskStatus)
		api.POST("/risk/safe-mode", s.handleEnableSafeMode)
		api.DELETE("/risk/safe-mode", s.handleDisableSafeMode)
		api.GET("/position", s.handlePosition)
		api.GET("/trades", s.handleTrades)
	}
}

// Start runs the HTTP server until Shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.log.Info().Str("addr", addr).Msg("HTTP server starting")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("HTTP server shutting down")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":   true,
		"message": message,
	})
}
