package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ingresounam/ingreso/internal/models"
	"github.com/ingresounam/ingreso/internal/tasks"
)

// FeedbackRequest is a report submitted from the feedback widget
type FeedbackRequest struct {
	Type    string `json:"type" binding:"required,feedbacktype"`
	Message string `json:"message" binding:"required,trimmin=5,max=2000"`
	Page    string `json:"page" binding:"max=500"`
}

// @Summary Submit feedback
// @Description Records a bug report or suggestion from the current user
// @Tags feedback
// @Accept json
// @Produce json
// @Param request body FeedbackRequest true "Feedback"
// @Success 201 {object} models.Feedback
// @Failure 400 {object} map[string]interface{}
// @Router /api/feedback [post]
// @Security BearerAuth
func (s *Server) submitFeedback(c *gin.Context) {
	sessionData, _ := GetSessionData(c)

	var req FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var user models.User
	if err := models.FindByID(s.db, sessionData.UserID, &user); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	feedback := &models.Feedback{
		UserID:    user.ID,
		UserEmail: user.Email,
		UserName:  user.Name,
		Type:      req.Type,
		Message:   strings.TrimSpace(req.Message),
		Page:      req.Page,
		Status:    models.FeedbackPending,
	}
	if err := s.db.Create(feedback).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to create feedback")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save feedback"})
		return
	}

	s.notifyFeedback(feedback.ID)

	s.logger.Info().
		Str("feedback_id", feedback.ID).
		Str("user_id", user.ID).
		Str("type", feedback.Type).
		Msg("Feedback received")

	c.JSON(http.StatusCreated, feedback)
}

// notifyFeedback enqueues the admin notification; failures never fail the request
func (s *Server) notifyFeedback(feedbackID string) {
	if s.enqueuer == nil {
		return
	}

	task, err := tasks.NewFeedbackReceivedTask(feedbackID)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to create feedback task")
		return
	}

	if _, err := s.enqueuer.Enqueue(task); err != nil {
		s.logger.Warn().Err(err).Str("feedback_id", feedbackID).Msg("Failed to enqueue feedback notification")
	}
}

// @Summary List my feedback
// @Tags feedback
// @Produce json
// @Success 200 {array} models.Feedback
// @Router /api/feedback/my [get]
// @Security BearerAuth
func (s *Server) listMyFeedback(c *gin.Context) {
	sessionData, _ := GetSessionData(c)

	var feedback []models.Feedback
	if err := s.db.Where("user_id = ?", sessionData.UserID).Order("created_at DESC").Find(&feedback).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to list feedback")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, feedback)
}

// @Summary List active simulators
// @Tags simulators
// @Produce json
// @Success 200 {array} models.Simulator
// @Router /api/simulators [get]
// @Security BearerAuth
func (s *Server) listActiveSimulators(c *gin.Context) {
	var simulators []models.Simulator
	if err := s.db.Where("is_active = ?", true).Order("area ASC, name ASC").Find(&simulators).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to list simulators")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, simulators)
}
