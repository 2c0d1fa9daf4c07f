package main

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// CreateLeadRequest is the shape the relay posts for a new lead.
type CreateLeadRequest struct {
	TenantID  string                 `json:"tenant_id"`
	FirstName string                 `json:"first_name"`
	LastName  string                 `json:"last_name"`
	Email     string                 `json:"email" binding:"required"`
	Phone     string                 `json:"phone"`
	Answers   map[string]interface{} `json:"answers"`
}

// CreateLeadResponse mimics a CRM create reply. The relay extracts "id".
type CreateLeadResponse struct {
	ID          string    `json:"id"`
	Status      string    `json:"status"`
	ProcessedAt time.Time `json:"processed_at"`
}

type UpdateLeadRequest struct {
	Answers map[string]interface{} `json:"answers"`
}

type HealthResponse struct {
	Status      string    `json:"status"`
	CrmID       string    `json:"crm_id"`
	Timestamp   time.Time `json:"timestamp"`
	SuccessRate float64   `json:"success_rate"`
}

// MockCrm simulates a downstream CRM with configurable flakiness. Useful for
// exercising the retry and dedup paths without a real vendor account.
type MockCrm struct {
	successRate float64
	minDelay    time.Duration
	maxDelay    time.Duration
	crmID       string
	rng         *rand.Rand

	// leads holds ids issued so far so updates can 404 realistically.
	leads map[string]bool
}

func NewMockCrm(successRate float64, minDelay, maxDelay time.Duration) *MockCrm {
	return &MockCrm{
		successRate: successRate,
		minDelay:    minDelay,
		maxDelay:    maxDelay,
		crmID:       "MOCK_CRM_" + uuid.New().String()[:8],
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		leads:       make(map[string]bool),
	}
}

func (m *MockCrm) randomDelay() time.Duration {
	delta := m.maxDelay - m.minDelay
	randomDelta := time.Duration(m.rng.Int63n(int64(delta)))
	return m.minDelay + randomDelta
}

func (m *MockCrm) shouldSucceed() bool {
	return m.rng.Float64() < m.successRate
}

type Handler struct {
	crm *MockCrm
}

func NewHandler(crm *MockCrm) *Handler {
	return &Handler{crm: crm}
}

// CreateLead accepts a lead and either issues an external id or fails with a
// 5xx, which the relay treats as retryable.
func (h *Handler) CreateLead(c *gin.Context) {
	var req CreateLeadRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	time.Sleep(h.crm.randomDelay())

	if !h.crm.shouldSucceed() {
		log.Warn().
			Str("email", req.Email).
			Msg("Simulating CRM outage")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "CRM temporarily unavailable",
		})
		return
	}

	id := "crm-" + uuid.New().String()[:12]
	h.crm.leads[id] = true

	log.Info().
		Str("lead_id", id).
		Str("email", req.Email).
		Str("tenant", req.TenantID).
		Msg("Lead created")

	c.JSON(http.StatusCreated, CreateLeadResponse{
		ID:          id,
		Status:      "created",
		ProcessedAt: time.Now(),
	})
}

// UpdateLead merges answers into an existing lead.
func (h *Handler) UpdateLead(c *gin.Context) {
	leadID := c.Param("lead_id")
	if !h.crm.leads[leadID] {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "lead not found",
		})
		return
	}

	var req UpdateLeadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	time.Sleep(h.crm.randomDelay())

	if !h.crm.shouldSucceed() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "CRM temporarily unavailable",
		})
		return
	}

	log.Info().
		Str("lead_id", leadID).
		Int("fields", len(req.Answers)).
		Msg("Lead updated")

	c.JSON(http.StatusOK, gin.H{
		"id":     leadID,
		"status": "updated",
	})
}

func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:      "healthy",
		CrmID:       h.crm.crmID,
		Timestamp:   time.Now(),
		SuccessRate: h.crm.successRate,
	})
}

// UpdateConfig allows changing the failure profile at runtime.
func (h *Handler) UpdateConfig(c *gin.Context) {
	var config struct {
		SuccessRate *float64 `json:"success_rate"`
	}

	if err := c.ShouldBindJSON(&config); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	if config.SuccessRate != nil {
		if *config.SuccessRate >= 0 && *config.SuccessRate <= 1.0 {
			h.crm.successRate = *config.SuccessRate
			log.Info().Float64("rate", *config.SuccessRate).Msg("Updated success rate")
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"message":      "Configuration updated",
		"success_rate": h.crm.successRate,
	})
}

func SetupRouter(handler *Handler) *gin.Engine {
	router := gin.Default()

	router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)

		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", duration).
			Msg("Request processed")
	})

	v1 := router.Group("/api/v1")
	{
		v1.POST("/leads", handler.CreateLead)
		v1.PUT("/leads/:lead_id", handler.UpdateLead)
		v1.GET("/health", handler.HealthCheck)
		v1.PUT("/config", handler.UpdateConfig)
	}

	router.GET("/health", handler.HealthCheck)

	return router
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	port := getEnv("PORT", "8081")
	successRate := getEnvFloat("SUCCESS_RATE", 1)
	minDelay := getEnvDuration("MIN_DELAY", 100*time.Millisecond)
	maxDelay := getEnvDuration("MAX_DELAY", 2*time.Second)

	log.Info().
		Str("port", port).
		Float64("success_rate", successRate).
		Dur("min_delay", minDelay).
		Dur("max_delay", maxDelay).
		Msg("Starting Mock CRM")

	crm := NewMockCrm(successRate, minDelay, maxDelay)
	handler := NewHandler(crm)
	router := SetupRouter(handler)

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		var f float64
		if _, err := fmt.Sscanf(value, "%f", &f); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
