package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lucentmedia/genstudio/internal/generation"
	"github.com/lucentmedia/genstudio/internal/media"
	"github.com/lucentmedia/genstudio/internal/progress"
	"github.com/lucentmedia/genstudio/pkg/ledger"
)

// handleGenerate starts a saga and streams its progress as SSE. The SSE
// writer itself emits the terminal event; by the time Run returns the
// stream is already settled, so errors here are logged, not re-sent.
func (server *Server) handleGenerate(ctx *gin.Context) {
	userID := currentUserID(ctx)

	var payload GenerateRequest
	if bindError := ctx.ShouldBindJSON(&payload); bindError != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "prompt is required"))
		return
	}

	workflow, resolveError := server.workflows(ctx.Param("kind"), payload)
	if resolveError != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("unknown_kind", "no such generation kind"))
		return
	}

	sink, sinkError := progress.NewSSEWriter(ctx.Writer)
	if sinkError != nil {
		ctx.JSON(http.StatusInternalServerError, errorResponse("streaming_unsupported", "response writer cannot stream"))
		return
	}

	// The saga must reach its terminal state even if the client goes away;
	// a reservation held because nobody is listening would never be
	// released. Writes to a dead stream degrade to no-ops.
	sagaCtx := context.WithoutCancel(ctx.Request.Context())
	if _, runError := server.saga.Run(sagaCtx, userID, payload.Prompt, workflow, sink); runError != nil {
		if errors.Is(runError, generation.ErrInsufficientCredits) {
			server.logger.Info("generation declined", zap.String("user_id", userID), zap.String("kind", workflow.Kind))
			return
		}
		server.logger.Warn("generation failed",
			zap.String("user_id", userID),
			zap.String("kind", workflow.Kind),
			zap.Error(runError))
	}
}

func (server *Server) handleWallet(ctx *gin.Context) {
	userID, userIDError := ledger.NewUserID(currentUserID(ctx))
	if userIDError != nil {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return
	}
	balance, balanceError := server.wallet.Balance(ctx.Request.Context(), userID)
	if balanceError != nil {
		server.logger.Error("balance fetch failed", zap.Error(balanceError))
		ctx.JSON(http.StatusBadGateway, errorResponse("ledger_error", "wallet unavailable"))
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"balance": balance})
}

func (server *Server) handleWalletHistory(ctx *gin.Context) {
	userID, userIDError := ledger.NewUserID(currentUserID(ctx))
	if userIDError != nil {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return
	}
	entries, historyError := server.wallet.History(ctx.Request.Context(), userID, walletHistoryLimit)
	if historyError != nil {
		server.logger.Error("history fetch failed", zap.Error(historyError))
		ctx.JSON(http.StatusBadGateway, errorResponse("ledger_error", "wallet unavailable"))
		return
	}

	history := make([]gin.H, 0, len(entries))
	for _, entry := range entries {
		history = append(history, gin.H{
			"id":           entry.EntryID,
			"kind":         entry.Kind.String(),
			"delta":        entry.Delta,
			"balanceAfter": entry.BalanceAfter,
			"reason":       entry.Reason,
			"createdAt":    entry.CreatedUnixUTC,
		})
	}
	ctx.JSON(http.StatusOK, gin.H{"entries": history})
}

type topUpRequest struct {
	Amount int64 `json:"amount" binding:"required"`
}

func (server *Server) handleTopUp(ctx *gin.Context) {
	userID, userIDError := ledger.NewUserID(currentUserID(ctx))
	if userIDError != nil {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return
	}

	var payload topUpRequest
	if bindError := ctx.ShouldBindJSON(&payload); bindError != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "amount is required"))
		return
	}
	if payload.Amount <= 0 || payload.Amount > maxTopUpAmount {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_amount", "amount out of range"))
		return
	}
	amount, amountError := ledger.NewAmount(payload.Amount)
	if amountError != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_amount", "amount out of range"))
		return
	}
	reason, _ := ledger.NewReason("topup:purchase")

	balance, topUpError := server.wallet.TopUp(ctx.Request.Context(), userID, amount, reason)
	if topUpError != nil {
		server.logger.Error("topup failed", zap.Error(topUpError))
		ctx.JSON(http.StatusBadGateway, errorResponse("ledger_error", "topup failed"))
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"balance": balance})
}

type createVideoRequest struct {
	Title string `json:"title" binding:"required"`
}

func (server *Server) handleCreateVideo(ctx *gin.Context) {
	userID := currentUserID(ctx)

	var payload createVideoRequest
	if bindError := ctx.ShouldBindJSON(&payload); bindError != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "title is required"))
		return
	}

	asset, uploadURL, createError := server.media.CreateUpload(ctx.Request.Context(), userID, payload.Title)
	if createError != nil {
		server.logger.Error("video creation failed", zap.Error(createError))
		ctx.JSON(http.StatusBadGateway, errorResponse("encode_error", "video creation failed"))
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{
		"id":        asset.AssetID,
		"jobId":     asset.ExternalJobID,
		"status":    string(asset.Status),
		"uploadUrl": uploadURL,
	})
}

// handleVideoStatus reports the asset state, polling the provider first for
// non-terminal assets so progress shows up even when webhooks cannot reach
// this server.
func (server *Server) handleVideoStatus(ctx *gin.Context) {
	asset, pollError := server.media.PollOnce(ctx.Request.Context(), ctx.Param("id"))
	if pollError != nil {
		if errors.Is(pollError, media.ErrAssetNotFound) {
			ctx.JSON(http.StatusNotFound, errorResponse("not_found", "no such video"))
			return
		}
		server.logger.Error("video status poll failed", zap.Error(pollError))
		ctx.JSON(http.StatusBadGateway, errorResponse("encode_error", "status unavailable"))
		return
	}
	if asset.OwnerID != currentUserID(ctx) {
		ctx.JSON(http.StatusNotFound, errorResponse("not_found", "no such video"))
		return
	}

	response := gin.H{
		"id":     asset.AssetID,
		"jobId":  asset.ExternalJobID,
		"status": string(asset.Status),
	}
	if asset.FailureReason != "" {
		response["failureReason"] = asset.FailureReason
	}
	if asset.Metadata != nil {
		response["metadata"] = asset.Metadata
	}
	ctx.JSON(http.StatusOK, response)
}
