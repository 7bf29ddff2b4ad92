package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/ingresounam/ingreso/internal/audit"
	"github.com/ingresounam/ingreso/internal/auth"
	"github.com/ingresounam/ingreso/internal/models"
	"github.com/ingresounam/ingreso/internal/session"
)

// SetupRequest represents the first-run setup request
type SetupRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
	Name     string `json:"name" binding:"required"`
}

// RegisterRequest represents a self-service student sign-up
type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
	Name     string `json:"name" binding:"required,max=120"`
}

// LoginRequest represents a login request
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse represents a login response
type LoginResponse struct {
	AccessToken string              `json:"access_token"`
	TokenType   string              `json:"token_type"`
	User        *session.UserRecord `json:"user"`
}

// toUserRecord converts a stored user into the identity shape clients persist
func toUserRecord(user *models.User) *session.UserRecord {
	return &session.UserRecord{
		UserID:    user.ID,
		Email:     user.Email,
		Name:      user.Name,
		Role:      user.Role,
		Picture:   user.Picture,
		CreatedAt: user.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// issueSession creates a token pair for user: a JWT for bearer clients and
// a server session referenced by the session_token cookie
func (s *Server) issueSession(c *gin.Context, user *models.User) (*LoginResponse, error) {
	token, err := auth.GenerateToken(user.ID, user.Email, user.Role)
	if err != nil {
		return nil, err
	}

	sessionToken, err := auth.NewSessionToken()
	if err != nil {
		return nil, err
	}

	userSession := &models.UserSession{
		UserID:    user.ID,
		Token:     sessionToken,
		ExpiresAt: time.Now().Add(s.config.Auth.SessionTTL),
	}
	if err := s.db.Create(userSession).Error; err != nil {
		return nil, err
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(auth.SessionCookieName, sessionToken, int(s.config.Auth.SessionTTL.Seconds()), "/", "", s.config.Server.Production(), true)

	return &LoginResponse{
		AccessToken: token,
		TokenType:   "bearer",
		User:        toUserRecord(user),
	}, nil
}

// @Summary First-run setup
// @Description Creates the first admin user (only works if no users exist)
// @Tags auth
// @Accept json
// @Produce json
// @Param request body SetupRequest true "Setup request"
// @Success 201 {object} LoginResponse
// @Failure 400 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Router /api/setup [post]
func (s *Server) setupFirstAdmin(c *gin.Context) {
	var req SetupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Check if any users exist
	var count int64
	if err := s.db.Model(&models.User{}).Count(&count).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to count users")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	if count > 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "Setup already completed"})
		return
	}

	// Hash password
	passwordHash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to hash password")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
		return
	}

	// Create admin user
	user := &models.User{
		Email:        normalizeEmail(req.Email),
		PasswordHash: passwordHash,
		Name:         req.Name,
		Role:         models.RoleAdmin,
		AuthProvider: models.ProviderLocal,
	}

	if err := s.db.Create(user).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to create admin user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
		return
	}

	resp, err := s.issueSession(c, user)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to issue session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	s.logger.Info().Str("user_id", user.ID).Str("email", user.Email).Msg("First admin user created")
	s.recordAudit(c, audit.Event{Type: audit.EventSetup, UserID: user.ID, Email: user.Email})

	c.JSON(http.StatusCreated, resp)
}

// @Summary Register
// @Description Creates a student account and signs it in
// @Tags auth
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Register request"
// @Success 201 {object} LoginResponse
// @Failure 400 {object} map[string]interface{}
// @Failure 429 {object} map[string]interface{}
// @Router /api/auth/register [post]
func (s *Server) register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	email := normalizeEmail(req.Email)

	var existing int64
	if err := s.db.Model(&models.User{}).Where("email = ?", email).Count(&existing).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to check existing user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	if existing > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email already registered"})
		return
	}

	passwordHash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to hash password")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
		return
	}

	user := &models.User{
		Email:        email,
		PasswordHash: passwordHash,
		Name:         strings.TrimSpace(req.Name),
		Role:         models.RoleStudent,
		AuthProvider: models.ProviderLocal,
	}
	if err := s.db.Create(user).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to create user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
		return
	}

	resp, err := s.issueSession(c, user)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to issue session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	s.logger.Info().Str("user_id", user.ID).Str("email", user.Email).Msg("User registered")
	s.recordAudit(c, audit.Event{Type: audit.EventRegister, UserID: user.ID, Email: user.Email})

	c.JSON(http.StatusCreated, resp)
}

// @Summary Login
// @Description Authenticate with email and password
// @Tags auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login request"
// @Success 200 {object} LoginResponse
// @Failure 400 {object} map[string]interface{}
// @Failure 401 {object} map[string]interface{}
// @Failure 429 {object} map[string]interface{}
// @Router /api/auth/login [post]
func (s *Server) login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	email := normalizeEmail(req.Email)

	// Find user by email
	var user models.User
	if err := s.db.Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.recordAudit(c, audit.Event{Type: audit.EventLoginFailed, Email: email, Detail: "unknown email"})
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
			return
		}
		s.logger.Error().Err(err).Msg("Failed to find user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	// Verify password
	if err := auth.VerifyPassword(req.Password, user.PasswordHash); err != nil {
		s.recordAudit(c, audit.Event{Type: audit.EventLoginFailed, UserID: user.ID, Email: email, Detail: "bad password"})
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
		return
	}

	resp, err := s.issueSession(c, &user)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to issue session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	now := time.Now()
	if err := s.db.Model(&user).Update("last_login_at", now).Error; err != nil {
		s.logger.Warn().Err(err).Str("user_id", user.ID).Msg("Failed to record last login")
	}

	s.logger.Info().Str("user_id", user.ID).Str("email", user.Email).Msg("User logged in")
	s.recordAudit(c, audit.Event{Type: audit.EventLogin, UserID: user.ID, Email: user.Email})

	c.JSON(http.StatusOK, resp)
}

// @Summary Logout
// @Description Revokes the server session named by the session_token cookie
// @Tags auth
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/auth/logout [post]
func (s *Server) logout(c *gin.Context) {
	if token, err := c.Cookie(auth.SessionCookieName); err == nil && token != "" {
		var userSession models.UserSession
		if err := s.db.Where("token = ?", token).First(&userSession).Error; err == nil {
			if err := s.db.Delete(&userSession).Error; err != nil {
				s.logger.Error().Err(err).Msg("Failed to delete session")
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
				return
			}
			s.recordAudit(c, audit.Event{Type: audit.EventLogout, UserID: userSession.UserID})
		}
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(auth.SessionCookieName, "", -1, "/", "", s.config.Server.Production(), true)

	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

// @Summary Get current user
// @Description Returns the identity behind the session cookie or bearer token
// @Tags auth
// @Produce json
// @Success 200 {object} session.UserRecord
// @Failure 401 {object} map[string]interface{}
// @Router /api/auth/me [get]
// @Security BearerAuth
func (s *Server) getCurrentUser(c *gin.Context) {
	sessionData, exists := GetSessionData(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return
	}

	var user models.User
	if err := models.FindByID(s.db, sessionData.UserID, &user); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	c.JSON(http.StatusOK, toUserRecord(&user))
}
