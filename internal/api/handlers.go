package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"upbit-trading-bot/internal/database"
)

const (
	defaultTradeLimit = 50
	maxTradeLimit     = 200
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"ticker": s.ticker,
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleRiskStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.riskCtl.Snapshot())
}

type safeModeRequest struct {
	Reason string `json:"reason" binding:"required"`
}

func (s *Server) handleEnableSafeMode(c *gin.Context) {
	var req safeModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "reason is required")
		return
	}

	s.riskCtl.EnableSafeMode(req.Reason)
	s.log.Warn().Str("reason", req.Reason).Msg("Safe mode enabled via API")
	c.JSON(http.StatusOK, s.riskCtl.Snapshot())
}

func (s *Server) handleDisableSafeMode(c *gin.Context) {
	s.riskCtl.DisableSafeMode()
	s.log.Info().Msg("Safe mode disabled via API")
	c.JSON(http.StatusOK, s.riskCtl.Snapshot())
}

func (s *Server) handlePosition(c *gin.Context) {
	pos := s.positions.Position()
	if !pos.IsOpen() {
		c.JSON(http.StatusOK, gin.H{"open": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"open":            true,
		"ticker":          pos.Ticker,
		"volume":          pos.Volume.String(),
		"avg_entry_price": pos.AvgEntryPrice.Amount().String(),
		"currency":        string(pos.AvgEntryPrice.Currency()),
		"entry_time":      pos.EntryTime.UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleTrades(c *gin.Context) {
	if s.trades == nil {
		errorResponse(c, http.StatusNotFound, "trade journal is disabled")
		return
	}

	limit := defaultTradeLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			errorResponse(c, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	if limit > maxTradeLimit {
		limit = maxTradeLimit
	}

	records, err := s.trades.RecentTrades(c.Request.Context(), s.ticker, limit)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to read trade journal")
		errorResponse(c, http.StatusInternalServerError, "failed to read trade journal")
		return
	}

	out := make([]gin.H, 0, len(records))
	for _, rec := range records {
		out = append(out, tradeJSON(rec))
	}
	c.JSON(http.StatusOK, gin.H{"trades": out, "count": len(out)})
}

func tradeJSON(rec database.TradeRecord) gin.H {
	h := gin.H{
		"id":          rec.ID,
		"ticker":      rec.Ticker,
		"side":        string(rec.Side),
		"action":      rec.Action,
		"price":       rec.Price.Amount().String(),
		"volume":      rec.Volume.String(),
		"fee":         rec.Fee.Amount().String(),
		"reason":      rec.Reason,
		"executed_at": rec.ExecutedAt.UTC().Format(time.RFC3339),
	}
	if rec.PnlPct != nil {
		h["pnl_pct"] = rec.PnlPct.Ratio().String()
	}
	return h
}
