package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/ingresounam/ingreso/internal/audit"
	"github.com/ingresounam/ingreso/internal/models"
)

// StatsResponse holds the admin dashboard counters
type StatsResponse struct {
	TotalUsers      int64 `json:"total_users"`
	TotalAdmins     int64 `json:"total_admins"`
	TotalStudents   int64 `json:"total_students"`
	TotalQuestions  int64 `json:"total_questions"`
	TotalSimulators int64 `json:"total_simulators"`
	PendingFeedback int64 `json:"pending_feedback"`
	ActiveSessions  int64 `json:"active_sessions"`
}

// UserDetail represents user information returned in admin listings
type UserDetail struct {
	UserID      string  `json:"user_id"`
	Email       string  `json:"email"`
	Name        string  `json:"name"`
	Role        string  `json:"role"`
	Picture     string  `json:"picture,omitempty"`
	CreatedAt   string  `json:"created_at"`
	LastLoginAt *string `json:"last_login_at"`
}

// UpdateRoleRequest changes a user's role
type UpdateRoleRequest struct {
	Role string `json:"role" binding:"required,role"`
}

// UpdateFeedbackStatusRequest moves a feedback entry through triage
type UpdateFeedbackStatusRequest struct {
	Status     string `json:"status" binding:"required,feedbackstatus"`
	AdminNotes string `json:"admin_notes" binding:"max=2000"`
}

func toUserDetail(user *models.User) UserDetail {
	detail := UserDetail{
		UserID:    user.ID,
		Email:     user.Email,
		Name:      user.Name,
		Role:      user.Role,
		Picture:   user.Picture,
		CreatedAt: user.CreatedAt.UTC().Format(time.RFC3339),
	}
	if user.LastLoginAt != nil {
		lastLogin := user.LastLoginAt.UTC().Format(time.RFC3339)
		detail.LastLoginAt = &lastLogin
	}
	return detail
}

// @Summary Admin dashboard stats
// @Tags admin
// @Produce json
// @Success 200 {object} StatsResponse
// @Router /api/admin/stats [get]
// @Security BearerAuth
func (s *Server) getAdminStats(c *gin.Context) {
	var stats StatsResponse

	counts := []struct {
		query *gorm.DB
		dest  *int64
	}{
		{s.db.Model(&models.User{}), &stats.TotalUsers},
		{s.db.Model(&models.User{}).Where("role = ?", models.RoleAdmin), &stats.TotalAdmins},
		{s.db.Model(&models.User{}).Where("role = ?", models.RoleStudent), &stats.TotalStudents},
		{s.db.Model(&models.Question{}), &stats.TotalQuestions},
		{s.db.Model(&models.Simulator{}), &stats.TotalSimulators},
		{s.db.Model(&models.Feedback{}).Where("status = ?", models.FeedbackPending), &stats.PendingFeedback},
		{s.db.Model(&models.UserSession{}).Where("expires_at > ?", time.Now()), &stats.ActiveSessions},
	}

	for _, count := range counts {
		if err := count.query.Count(count.dest).Error; err != nil {
			s.logger.Error().Err(err).Msg("Failed to compute admin stats")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}
	}

	c.JSON(http.StatusOK, stats)
}

// @Summary List users
// @Tags admin
// @Produce json
// @Success 200 {array} UserDetail
// @Router /api/admin/users [get]
// @Security BearerAuth
func (s *Server) listUsers(c *gin.Context) {
	var users []models.User
	if err := s.db.Order("created_at DESC").Find(&users).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to list users")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	details := make([]UserDetail, 0, len(users))
	for i := range users {
		details = append(details, toUserDetail(&users[i]))
	}

	c.JSON(http.StatusOK, details)
}

// @Summary Update user role
// @Tags admin
// @Accept json
// @Produce json
// @Param id path string true "User ID"
// @Param request body UpdateRoleRequest true "New role"
// @Success 200 {object} UserDetail
// @Failure 400 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /api/admin/users/{id}/role [put]
// @Security BearerAuth
func (s *Server) updateUserRole(c *gin.Context) {
	sessionData, _ := GetSessionData(c)
	userID := c.Param("id")

	var req UpdateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if userID == sessionData.UserID && req.Role != models.RoleAdmin {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot demote yourself"})
		return
	}

	var user models.User
	if err := models.FindByID(s.db, userID, &user); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		s.logger.Error().Err(err).Msg("Failed to find user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	if err := s.db.Model(&user).Update("role", req.Role).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to update role")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update role"})
		return
	}
	user.Role = req.Role

	s.logger.Info().
		Str("user_id", user.ID).
		Str("role", req.Role).
		Str("changed_by", sessionData.UserID).
		Msg("User role updated")
	s.recordAudit(c, audit.Event{
		Type:    audit.EventRoleChanged,
		UserID:  user.ID,
		Email:   user.Email,
		ActorID: sessionData.UserID,
		Detail:  req.Role,
	})

	c.JSON(http.StatusOK, toUserDetail(&user))
}

// @Summary Delete user
// @Description Deletes an account along with its sessions and feedback
// @Tags admin
// @Param id path string true "User ID"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /api/admin/users/{id} [delete]
// @Security BearerAuth
func (s *Server) deleteUser(c *gin.Context) {
	sessionData, _ := GetSessionData(c)
	userID := c.Param("id")

	// Prevent deleting yourself
	if userID == sessionData.UserID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot delete yourself"})
		return
	}

	var user models.User
	if err := models.FindByID(s.db, userID, &user); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		s.logger.Error().Err(err).Msg("Failed to find user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", user.ID).Delete(&models.UserSession{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", user.ID).Delete(&models.Feedback{}).Error; err != nil {
			return err
		}
		return tx.Delete(&user).Error
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to delete user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete user"})
		return
	}

	s.logger.Info().Str("user_id", user.ID).Str("deleted_by", sessionData.UserID).Msg("User deleted")
	s.recordAudit(c, audit.Event{
		Type:    audit.EventUserDeleted,
		UserID:  user.ID,
		Email:   user.Email,
		ActorID: sessionData.UserID,
	})

	c.JSON(http.StatusOK, gin.H{"message": "User deleted"})
}

// @Summary List questions
// @Tags admin
// @Produce json
// @Param subject query string false "Filter by subject"
// @Success 200 {array} models.Question
// @Router /api/admin/questions [get]
// @Security BearerAuth
func (s *Server) listQuestions(c *gin.Context) {
	query := s.db.Order("subject ASC, created_at DESC")
	if subject := c.Query("subject"); subject != "" {
		query = query.Where("subject = ?", subject)
	}

	var questions []models.Question
	if err := query.Find(&questions).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to list questions")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, questions)
}

// @Summary List all simulators
// @Tags admin
// @Produce json
// @Success 200 {array} models.Simulator
// @Router /api/admin/simulators [get]
// @Security BearerAuth
func (s *Server) listAllSimulators(c *gin.Context) {
	var simulators []models.Simulator
	if err := s.db.Order("area ASC, name ASC").Find(&simulators).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to list simulators")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, simulators)
}

// @Summary List all feedback
// @Tags admin
// @Produce json
// @Param status query string false "Filter by status"
// @Success 200 {array} models.Feedback
// @Router /api/admin/feedback [get]
// @Security BearerAuth
func (s *Server) listAllFeedback(c *gin.Context) {
	query := s.db.Order("created_at DESC")
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var feedback []models.Feedback
	if err := query.Find(&feedback).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to list feedback")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, feedback)
}

// @Summary Update feedback status
// @Tags admin
// @Accept json
// @Produce json
// @Param id path string true "Feedback ID"
// @Param request body UpdateFeedbackStatusRequest true "New status"
// @Success 200 {object} models.Feedback
// @Failure 400 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /api/admin/feedback/{id}/status [put]
// @Security BearerAuth
func (s *Server) updateFeedbackStatus(c *gin.Context) {
	var req UpdateFeedbackStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var feedback models.Feedback
	if err := models.FindByID(s.db, c.Param("id"), &feedback); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Feedback not found"})
			return
		}
		s.logger.Error().Err(err).Msg("Failed to find feedback")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	updates := map[string]interface{}{
		"status":      req.Status,
		"admin_notes": req.AdminNotes,
	}
	if err := s.db.Model(&feedback).Updates(updates).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to update feedback")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update feedback"})
		return
	}
	feedback.Status = req.Status
	feedback.AdminNotes = req.AdminNotes

	c.JSON(http.StatusOK, feedback)
}
