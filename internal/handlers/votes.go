package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/emilythestrangee/consensus/backend/internal/models"
	"github.com/emilythestrangee/consensus/backend/internal/voting"
)

type VoteSubmitter interface {
	Submit(ctx context.Context, cmd voting.SubmitVote) (voting.Result, error)
}

type VoteLister interface {
	ListVotes(ctx context.Context, motionID int) ([]models.Vote, error)
}

type VoteHandler struct {
	votes  VoteSubmitter
	reader VoteLister
	logger *zap.Logger
}

func NewVoteHandler(votes VoteSubmitter, reader VoteLister, logger *zap.Logger) *VoteHandler {
	return &VoteHandler{votes: votes, reader: reader, logger: logger}
}

// SubmitVote records the caller's position on a motion (PROTECTED - requires authentication)
func (h *VoteHandler) SubmitVote(c *gin.Context) {
	motionID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid motion ID"})
		return
	}

	userID, ok := extractUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var input struct {
		Position  string `json:"position" binding:"required"`
		Statement string `json:"statement"`
		Announce  bool   `json:"announce"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Position is required"})
		return
	}

	result, err := h.votes.Submit(c.Request.Context(), voting.SubmitVote{
		MotionID:  motionID,
		UserID:    userID,
		Position:  models.Position(input.Position),
		Statement: input.Statement,
		Announce:  input.Announce,
	})
	if err != nil {
		var fieldErr *voting.FieldError
		switch {
		case errors.As(err, &fieldErr):
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error": fieldErr.Error(),
				"field": fieldErr.Field,
			})
		case errors.Is(err, voting.ErrMotionNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Motion not found"})
		default:
			h.logger.Error("submit vote failed", zap.Int("motion_id", motionID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save vote"})
		}
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{
		"vote":              result.Vote,
		"previous_position": result.PreviousPosition,
		"changed":           result.Changed,
	})
}

// GetVotes returns every vote on a motion
func (h *VoteHandler) GetVotes(c *gin.Context) {
	motionID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid motion ID"})
		return
	}

	votes, err := h.reader.ListVotes(c.Request.Context(), motionID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch votes"})
		return
	}

	var responses []gin.H
	for _, vote := range votes {
		responses = append(responses, gin.H{
			"id":         vote.ID,
			"motion_id":  vote.MotionID,
			"user_id":    vote.UserID,
			"username":   vote.User.Username,
			"position":   vote.Position,
			"verb":       vote.Position.Verb(),
			"statement":  vote.Statement,
			"created_at": vote.CreatedAt,
			"updated_at": vote.UpdatedAt,
		})
	}

	// If no votes, return empty array not null
	if responses == nil {
		responses = []gin.H{}
	}

	c.JSON(http.StatusOK, responses)
}
