// Package httpapi exposes the generation, wallet, video, and webhook
// endpoints over gin. Generation progress streams to the client as
// Server-Sent Events; the saga itself runs detached from the client
// connection so a dropped stream never strands a reservation.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lucentmedia/genstudio/internal/events"
	"github.com/lucentmedia/genstudio/internal/generation"
	"github.com/lucentmedia/genstudio/internal/media"
	"github.com/lucentmedia/genstudio/internal/progress"
	"github.com/lucentmedia/genstudio/pkg/ledger"
)

// Wallet is the slice of the credit ledger the wallet endpoints need.
type Wallet interface {
	Balance(ctx context.Context, userID ledger.UserID) (int64, error)
	TopUp(ctx context.Context, userID ledger.UserID, amount ledger.Amount, reason ledger.Reason) (int64, error)
	History(ctx context.Context, userID ledger.UserID, limit int) ([]ledger.Entry, error)
}

// Saga runs one generation workflow to its terminal state.
type Saga interface {
	Run(ctx context.Context, userID string, prompt string, workflow generation.Workflow, sink progress.Sink) (generation.Request, error)
}

// MediaService is the slice of the reconciler the video endpoints need.
type MediaService interface {
	CreateUpload(ctx context.Context, ownerID string, title string) (media.Asset, string, error)
	Apply(ctx context.Context, externalJobID string, statusCode int, source media.Source) error
	PollOnce(ctx context.Context, externalJobID string) (media.Asset, error)
}

// WorkflowResolver maps a workflow kind and request payload to a runnable
// workflow. Unknown kinds return an error.
type WorkflowResolver func(kind string, payload GenerateRequest) (generation.Workflow, error)

// ErrUnknownWorkflowKind reports a generation kind the server does not
// offer.
var ErrUnknownWorkflowKind = errors.New("httpapi: unknown workflow kind")

// GenerateRequest is the POST body of a generation call.
type GenerateRequest struct {
	Prompt          string   `json:"prompt" binding:"required"`
	SourceImageURLs []string `json:"sourceImageUrls"`
}

// Server wires handlers to their collaborators.
type Server struct {
	cfg       Config
	logger    *zap.Logger
	wallet    Wallet
	saga      Saga
	media     MediaService
	workflows WorkflowResolver
	publisher events.Publisher
}

// NewServer validates the configuration and returns a ready Server.
func NewServer(cfg Config, logger *zap.Logger, wallet Wallet, saga Saga, mediaService MediaService, workflows WorkflowResolver, publisher events.Publisher) (*Server, error) {
	if validateError := cfg.Validate(); validateError != nil {
		return nil, fmt.Errorf("httpapi: %w", validateError)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if publisher == nil {
		publisher = events.Nop{}
	}
	if wallet == nil || saga == nil || mediaService == nil || workflows == nil {
		return nil, fmt.Errorf("httpapi: missing collaborator")
	}
	return &Server{
		cfg:       cfg,
		logger:    logger,
		wallet:    wallet,
		saga:      saga,
		media:     mediaService,
		workflows: workflows,
		publisher: publisher,
	}, nil
}

// Router builds the gin engine with every route attached.
func (server *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     server.cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.Static(defaultStaticRoute, server.cfg.ArtifactDir)

	router.POST("/api/webhooks/encoder", server.handleEncoderWebhook)

	api := router.Group("/api")
	api.Use(server.requireAuth())

	api.POST("/generations/:kind", server.handleGenerate)
	api.GET("/wallet", server.handleWallet)
	api.GET("/wallet/history", server.handleWalletHistory)
	api.POST("/wallet/topup", server.handleTopUp)
	api.POST("/videos", server.handleCreateVideo)
	api.GET("/videos/:id/status", server.handleVideoStatus)

	return router
}

// Run serves until the context is cancelled, then drains gracefully.
func (server *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    server.cfg.ListenAddr,
		Handler: server.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		server.logger.Info("api listening", zap.String("addr", server.cfg.ListenAddr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownError := httpServer.Shutdown(shutdownCtx); shutdownError != nil {
			server.logger.Warn("server shutdown error", zap.Error(shutdownError))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func errorResponse(code string, message string) gin.H {
	return gin.H{"error": gin.H{"code": code, "message": message}}
}
