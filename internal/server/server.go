// Package server exposes the engine over HTTP: the entitlement surface for
// the rest of the application plus the on-ramp settlement webhook.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/voyatra/hybridpay/internal/catalog"
	"github.com/voyatra/hybridpay/internal/config"
	entitlementdomain "github.com/voyatra/hybridpay/internal/entitlement/domain"
	"github.com/voyatra/hybridpay/internal/manager"
	providerdomain "github.com/voyatra/hybridpay/internal/provider/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module provides the gin engine and runs the HTTP server.
var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	return r
}

type Server struct {
	engine  *gin.Engine
	cfg     config.Config
	log     *zap.Logger
	manager *manager.Manager
}

type Params struct {
	fx.In

	Engine   *gin.Engine
	Cfg      config.Config
	Log      *zap.Logger
	Manager  *manager.Manager
	Registry *prometheus.Registry
}

func NewServer(p Params) *Server {
	s := &Server{
		engine:  p.Engine,
		cfg:     p.Cfg,
		log:     p.Log.Named("http.server"),
		manager: p.Manager,
	}
	s.registerRoutes(p.Registry)
	return s
}

func (s *Server) registerRoutes(registry *prometheus.Registry) {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	v1 := s.engine.Group("/v1")
	v1.GET("/entitlements", s.getEntitlements)
	v1.GET("/features/:name", s.getFeature)
	v1.POST("/purchases", s.postPurchase)
	v1.POST("/restore", s.postRestore)
	v1.POST("/refresh", s.postRefresh)

	s.engine.POST("/webhooks/onramp", s.postOnRampWebhook)
}

func (s *Server) getEntitlements(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"entitlements": s.manager.GetCurrent(),
		"stale":        s.manager.Stale(),
	})
}

func (s *Server) getFeature(c *gin.Context) {
	name := c.Param("name")
	c.JSON(http.StatusOK, gin.H{
		"feature": name,
		"granted": s.manager.HasFeature(name),
	})
}

type purchaseRequest struct {
	Method   string `json:"method" binding:"required"`
	Tier     string `json:"tier" binding:"required"`
	Duration string `json:"duration"`
}

func (s *Server) postPurchase(c *gin.Context) {
	var req purchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	method := entitlementdomain.PaymentMethod(req.Method)
	if !method.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown payment method"})
		return
	}
	tier, err := catalog.ParseTier(req.Tier)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	duration := catalog.DurationMonthly
	if req.Duration != "" {
		if duration, err = catalog.ParseDuration(req.Duration); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	result, err := s.manager.Purchase(c.Request.Context(), method, tier, duration)
	if err != nil {
		status, reason := purchaseError(err)
		c.JSON(status, gin.H{"error": reason})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tier":           result.Tier,
		"method":         result.Method,
		"transaction_id": result.TransactionID,
	})
}

func (s *Server) postRestore(c *gin.Context) {
	restored, err := s.manager.RestorePurchases(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "restore failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"restored": restored})
}

func (s *Server) postRefresh(c *gin.Context) {
	if err := s.manager.Refresh(c.Request.Context()); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "refresh failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entitlements": s.manager.GetCurrent()})
}

type onRampWebhook struct {
	OrderID         string `json:"order_id" binding:"required"`
	TransactionHash string `json:"transaction_hash"`
	Status          string `json:"status" binding:"required"`
}

// postOnRampWebhook ingests settlement callbacks. Duplicates and unknown
// orders are acknowledged with 200 so the sender stops retrying.
func (s *Server) postOnRampWebhook(c *gin.Context) {
	var hook onRampWebhook
	if err := c.ShouldBindJSON(&hook); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	err := s.manager.HandleSettlement(providerdomain.Settlement{
		OrderID:         hook.OrderID,
		TransactionHash: hook.TransactionHash,
		Status:          providerdomain.OrderStatus(hook.Status),
	})
	if err != nil {
		s.log.Warn("settlement webhook rejected", zap.String("order_id", hook.OrderID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "settlement not accepted"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}

func purchaseError(err error) (int, string) {
	switch {
	case errors.Is(err, providerdomain.ErrAlreadyInProgress):
		return http.StatusConflict, "a purchase for this tier is already in progress"
	case errors.Is(err, providerdomain.ErrValidationRejected):
		return http.StatusUnprocessableEntity, "purchase could not be verified"
	case errors.Is(err, providerdomain.ErrSettlementTimeout):
		return http.StatusGatewayTimeout, "payment not confirmed in time; if funds left your account, contact support"
	case errors.Is(err, providerdomain.ErrOfferingNotFound):
		return http.StatusNotFound, "selected plan is not available"
	case errors.Is(err, providerdomain.ErrProviderUnavailable):
		return http.StatusBadGateway, "payment service unavailable; try again later"
	default:
		return http.StatusInternalServerError, "purchase failed"
	}
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, m *manager.Manager, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := m.Initialize(ctx, cfg.UserID); err != nil {
				return err
			}
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}
