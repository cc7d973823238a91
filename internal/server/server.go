// Package server is the thin HTTP surface over the order engine: request
// and response marshalling only, all semantics live in the repositories,
// the lifecycle tracker and the unimind controller.
package server

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/dutchbook/dutchbook/internal/lifecycle"
	"github.com/dutchbook/dutchbook/internal/model"
	"github.com/dutchbook/dutchbook/internal/repository"
	"github.com/dutchbook/dutchbook/internal/unimind"
)

// Server hosts the HTTP routes.
type Server struct {
	engine     *gin.Engine
	repos      map[model.OrderType]*repository.OrderRepository
	tracker    *lifecycle.Tracker
	controller *unimind.Controller
	quoting    *unimind.Service
	logger     *zap.Logger
}

// New assembles the gin engine. repos maps each order type to the
// repository instantiated with that type's predicate table; queries naming
// no order type fall back to the dutch repository.
func New(repos map[model.OrderType]*repository.OrderRepository, tracker *lifecycle.Tracker, controller *unimind.Controller, quoting *unimind.Service, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(ginzap.Ginzap(logger, time.RFC3339, true))
	engine.Use(ginzap.RecoveryWithZap(logger, true))
	engine.Use(cors.Default())

	s := &Server{
		engine:     engine,
		repos:      repos,
		tracker:    tracker,
		controller: controller,
		quoting:    quoting,
		logger:     logger,
	}

	engine.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := engine.Group("/v1")
	{
		v1.POST("/orders", s.postOrder)
		v1.GET("/orders", s.getOrders)
		v1.GET("/orders/count", s.countOrders)
		v1.GET("/orders/:hash", s.getOrder)
		v1.DELETE("/orders", s.deleteOrders)
		v1.POST("/quotes/params", s.quoteParams)
		v1.POST("/quotes/metadata", s.postQuoteMetadata)
	}

	internal := engine.Group("/internal")
	{
		internal.POST("/lifecycle/step", s.lifecycleStep)
		internal.POST("/unimind/run", s.unimindRun)
	}

	return s
}

// Run blocks serving HTTP on addr.
func (s *Server) Run(addr string) error { return s.engine.Run(addr) }

// Handler exposes the engine for tests.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) repoFor(c *gin.Context) *repository.OrderRepository {
	t := model.OrderType(c.Query("orderType"))
	if repo, ok := s.repos[t]; ok {
		return repo
	}
	return s.repos[model.TypeDutch]
}
