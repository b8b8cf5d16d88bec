// Package api exposes a Deployer over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/gin-gonic/gin"

	"github.com/blndgs/batchdeploy"
	"github.com/blndgs/batchdeploy/deployer"
)

// Service is the part of *deployer.Deployer the handlers use.
type Service interface {
	AddToken(spec deployer.TokenSpec) (deployer.TokenSpec, error)
	RemoveToken(id string) bool
	Tokens() []deployer.TokenSpec
	ResolveAccount(ctx context.Context) (deployer.AccountInfo, error)
	CreateAccount(ctx context.Context) (deployer.AccountInfo, error)
	Deploy(ctx context.Context) (deployer.Status, error)
	Status() deployer.Status
	Reset() error
}

var _ Service = (*deployer.Deployer)(nil)

type Server struct {
	svc    Service
	logger log.Logger
	engine *gin.Engine
}

func NewServer(svc Service, logger log.Logger) (*Server, error) {
	if err := deployer.NewValidator(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Root()
	}

	s := &Server{svc: svc, logger: logger}
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))

	r.GET("/health", s.health)
	r.GET("/account", s.getAccount)
	r.POST("/account", s.createAccount)
	r.GET("/tokens", s.listTokens)
	r.POST("/tokens", s.addToken)
	r.DELETE("/tokens/:id", s.removeToken)
	r.POST("/deployments", s.deploy)
	r.GET("/status", s.status)
	r.POST("/reset", s.reset)

	s.engine = r
	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func requestLogger(logger log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("HTTP request", "method", c.Request.Method, "path", c.FullPath(),
			"status", c.Writer.Status(), "elapsed", time.Since(start))
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) getAccount(c *gin.Context) {
	info, err := s.svc.ResolveAccount(c.Request.Context())
	if err != nil {
		c.JSON(accountErrorCode(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, info)
}

func (s *Server) createAccount(c *gin.Context) {
	info, err := s.svc.CreateAccount(c.Request.Context())
	if err != nil {
		c.JSON(accountErrorCode(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, info)
}

func (s *Server) listTokens(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tokens": s.svc.Tokens()})
}

// addTokenRequest only checks presence. The token rules apply after
// AddToken normalizes the input.
type addTokenRequest struct {
	Name          string `json:"name" binding:"required"`
	Symbol        string `json:"symbol" binding:"required"`
	InitialSupply string `json:"initialSupply" binding:"required"`
}

func (s *Server) addToken(c *gin.Context) {
	var req addTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	added, err := s.svc.AddToken(deployer.TokenSpec{
		Name:          req.Name,
		Symbol:        req.Symbol,
		InitialSupply: req.InitialSupply,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, added)
}

func (s *Server) removeToken(c *gin.Context) {
	if !s.svc.RemoveToken(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "token not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) deploy(c *gin.Context) {
	st, err := s.svc.Deploy(c.Request.Context())
	if err != nil {
		c.JSON(failureCode(err), st)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) status(c *gin.Context) {
	c.JSON(http.StatusOK, s.svc.Status())
}

func (s *Server) reset(c *gin.Context) {
	if err := s.svc.Reset(); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s.svc.Status())
}

var failureCodes = []struct {
	kind deployer.Kind
	code int
}{
	{deployer.ValidationError, http.StatusBadRequest},
	{deployer.InsufficientFunds, http.StatusPaymentRequired},
	{deployer.SigningRejected, http.StatusForbidden},
	{deployer.SubmissionReverted, http.StatusUnprocessableEntity},
	{deployer.NetworkError, http.StatusBadGateway},
}

func failureCode(err error) int {
	for _, fc := range failureCodes {
		if deployer.IsKind(err, fc.kind) {
			return fc.code
		}
	}
	return http.StatusInternalServerError
}

func accountErrorCode(err error) int {
	switch {
	case errors.Is(err, batchdeploy.ErrSignerUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, batchdeploy.ErrSigningRejected):
		return http.StatusForbidden
	default:
		return http.StatusBadGateway
	}
}
