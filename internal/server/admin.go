package server

import (
	"context"
	"errors"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/Syriven/netvend/internal/auth"
	"github.com/Syriven/netvend/internal/observability"
	"github.com/Syriven/netvend/internal/store"
)

// AdminConfig configures the operator HTTP API.
type AdminConfig struct {
	ListenAddr string
	// Token guards mutating routes. Empty disables them.
	Token       string
	CORSOrigins []string
	// CreditsPerSatoshi converts deposited satoshis into pocket credit.
	CreditsPerSatoshi uint64
}

type depositRequest struct {
	Satoshis uint64 `json:"satoshis"`
}

type depositResponse struct {
	PocketID uint32 `json:"pocket_id"`
	Credited uint64 `json:"credited"`
	Credit   uint64 `json:"credit"`
}

type statsResponse struct {
	Agents      int    `json:"agents"`
	Pockets     int    `json:"pockets"`
	Files       int    `json:"files"`
	TotalCredit uint64 `json:"total_credit"`
	StoredBytes uint64 `json:"stored_bytes"`
	ActiveConns int64  `json:"active_connections"`
	Uptime      string `json:"uptime"`
}

// Admin serves health, metrics, stats and manual deposits.
type Admin struct {
	cfg     AdminConfig
	store   store.Store
	router  *gin.Engine
	started time.Time
	conns   func() int64
}

func NewAdmin(cfg AdminConfig, s store.Store) *Admin {
	observability.RegisterMetrics()
	if cfg.CreditsPerSatoshi == 0 {
		cfg.CreditsPerSatoshi = 1
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware())
	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins: cfg.CORSOrigins,
			AllowMethods: []string{"GET"},
			AllowHeaders: []string{"Origin", "Content-Type"},
			MaxAge:       12 * time.Hour,
		}))
	}
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	a := &Admin{
		cfg:     cfg,
		store:   s,
		router:  r,
		started: time.Now(),
		conns:   func() int64 { return 0 },
	}
	a.registerRoutes()
	return a
}

func (a *Admin) Addr() string { return a.cfg.ListenAddr }

func (a *Admin) Handler() http.Handler { return a.router }

func (a *Admin) setConnCounter(fn func() int64) { a.conns = fn }

func (a *Admin) registerRoutes() {
	a.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"uptime": time.Since(a.started).Round(time.Second).String(),
		})
	})
	a.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := a.router.Group("/v1")
	v1.GET("/stats", a.handleStats)
	v1.POST("/pockets/:id/deposits", auth.RequireBearer(auth.StaticToken{Token: a.cfg.Token}), a.handleDeposit)
}

func (a *Admin) handleStats(c *gin.Context) {
	st, err := a.store.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "stats unavailable"})
		log.Error().Err(err).Msg("server.Admin stats")
		return
	}
	c.JSON(http.StatusOK, statsResponse{
		Agents:      st.Agents,
		Pockets:     st.Pockets,
		Files:       st.Files,
		TotalCredit: st.TotalCredit,
		StoredBytes: st.StoredBytes,
		ActiveConns: a.conns(),
		Uptime:      time.Since(a.started).Round(time.Second).String(),
	})
}

func (a *Admin) handleDeposit(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid pocket id"})
		return
	}
	var req depositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid deposit body"})
		return
	}
	if req.Satoshis == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "satoshis must be positive"})
		return
	}
	if req.Satoshis > math.MaxUint64/a.cfg.CreditsPerSatoshi {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "deposit overflows credit"})
		return
	}
	amount := req.Satoshis * a.cfg.CreditsPerSatoshi
	pocketID := uint32(id)

	ctx := c.Request.Context()
	err = a.store.CreditPocket(ctx, pocketID, amount)
	var overflow *store.CreditOverflowError
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	case errors.As(err, &overflow):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case err != nil:
		log.Error().Err(err).Uint32("pocket", pocketID).Msg("server.Admin deposit")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "deposit failed"})
		return
	}

	p, err := a.store.FetchPocket(ctx, pocketID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "deposit applied, balance unavailable"})
		return
	}
	log.Info().
		Uint32("pocket", pocketID).
		Uint64("satoshis", req.Satoshis).
		Uint64("credited", amount).
		Msg("server.Admin deposit credited")
	c.JSON(http.StatusOK, depositResponse{PocketID: pocketID, Credited: amount, Credit: p.Credit})
}

// Serve runs the admin HTTP server on ln until ctx ends.
func (a *Admin) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	err := srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) || errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
