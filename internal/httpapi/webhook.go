package httpapi

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lucentmedia/genstudio/internal/events"
	"github.com/lucentmedia/genstudio/internal/media"
)

const webhookSecretHeader = "X-Webhook-Secret"

type encoderWebhookPayload struct {
	ExternalJobID string `json:"externalJobId" binding:"required"`
	LibraryID     string `json:"libraryId" binding:"required"`
	StatusCode    *int   `json:"statusCode" binding:"required"`
}

type webhookMismatchEvent struct {
	LibraryID     string `json:"libraryId"`
	ExternalJobID string `json:"externalJobId"`
	StatusCode    int    `json:"statusCode"`
}

// handleEncoderWebhook ingests provider status pushes. The shared secret is
// checked before anything else touches state. A payload for a library this
// server does not own is acknowledged with 200 and not applied, so probing
// cannot distinguish valid identifiers; the mismatch is published as an
// operational event instead of vanishing silently.
func (server *Server) handleEncoderWebhook(ctx *gin.Context) {
	provided := ctx.GetHeader(webhookSecretHeader)
	if subtle.ConstantTimeCompare([]byte(provided), []byte(server.cfg.WebhookSecret)) != 1 {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "bad webhook secret"))
		return
	}

	var payload encoderWebhookPayload
	if bindError := ctx.ShouldBindJSON(&payload); bindError != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "malformed webhook body"))
		return
	}

	if payload.LibraryID != server.cfg.LibraryID {
		if publishError := server.publisher.Publish(ctx.Request.Context(), events.TopicWebhookMismatch, webhookMismatchEvent{
			LibraryID:     payload.LibraryID,
			ExternalJobID: payload.ExternalJobID,
			StatusCode:    *payload.StatusCode,
		}); publishError != nil {
			server.logger.Warn("webhook mismatch alert not published", zap.Error(publishError))
		}
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}

	applyError := server.media.Apply(ctx.Request.Context(), payload.ExternalJobID, *payload.StatusCode, media.SourceWebhook)
	switch {
	case applyError == nil:
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	case errors.Is(applyError, media.ErrUnknownStatusCode):
		server.logger.Warn("webhook carried unknown status code",
			zap.String("external_job_id", payload.ExternalJobID),
			zap.Int("status_code", *payload.StatusCode))
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	case errors.Is(applyError, media.ErrAssetNotFound):
		server.logger.Warn("webhook referenced unknown job",
			zap.String("external_job_id", payload.ExternalJobID))
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	default:
		server.logger.Error("webhook transition failed", zap.Error(applyError))
		ctx.JSON(http.StatusInternalServerError, errorResponse("transition_failed", "could not apply status"))
	}
}
