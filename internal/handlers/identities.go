package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/emilythestrangee/consensus/backend/internal/identity"
	"github.com/emilythestrangee/consensus/backend/internal/models"
)

type IdentityBuilder interface {
	Build(ctx context.Context, kind identity.Kind, userID int, token string) (models.Identity, error)
}

type IdentityStore interface {
	SaveIdentity(ctx context.Context, identity *models.Identity) error
	ListIdentities(ctx context.Context, userID int) ([]models.Identity, error)
}

type IdentityHandler struct {
	providers IdentityBuilder
	store     IdentityStore
	logger    *zap.Logger
}

func NewIdentityHandler(providers IdentityBuilder, store IdentityStore, logger *zap.Logger) *IdentityHandler {
	return &IdentityHandler{providers: providers, store: store, logger: logger}
}

// LinkIdentity verifies a provider token and links the account to the caller
func (h *IdentityHandler) LinkIdentity(c *gin.Context) {
	userID, ok := extractUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var input struct {
		Provider string `json:"provider" binding:"required"`
		Token    string `json:"token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Provider and token are required"})
		return
	}

	linked, err := h.providers.Build(c.Request.Context(), identity.Kind(input.Provider), userID, input.Token)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrUnknownProvider):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unsupported provider"})
		case errors.Is(err, identity.ErrInvalidToken):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid provider token"})
		default:
			h.logger.Error("identity verification failed", zap.String("provider", input.Provider), zap.Error(err))
			c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to verify provider token"})
		}
		return
	}

	if err := h.store.SaveIdentity(c.Request.Context(), &linked); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to link identity"})
		return
	}

	c.JSON(http.StatusCreated, linked)
}

// GetIdentities lists the caller's linked identities
func (h *IdentityHandler) GetIdentities(c *gin.Context) {
	userID, ok := extractUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	identities, err := h.store.ListIdentities(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch identities"})
		return
	}
	if identities == nil {
		identities = []models.Identity{}
	}
	c.JSON(http.StatusOK, identities)
}
