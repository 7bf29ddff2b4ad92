package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// FeedbackRequest represents a feedback submission
type FeedbackRequest struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Page    string `json:"page,omitempty"`
}

// Feedback represents a stored feedback entry
type Feedback struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	UserEmail  string `json:"user_email"`
	UserName   string `json:"user_name"`
	Type       string `json:"type"`
	Message    string `json:"message"`
	Page       string `json:"page"`
	Status     string `json:"status"`
	AdminNotes string `json:"admin_notes"`
	CreatedAt  string `json:"created_at"`
}

// Simulator represents a mock exam
type Simulator struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Area            int    `json:"area"`
	Description     string `json:"description"`
	QuestionCount   int    `json:"question_count"`
	DurationMinutes int    `json:"duration_minutes"`
	IsActive        bool   `json:"is_active"`
}

// Question represents an exam question as listed to admins
type Question struct {
	ID            string   `json:"id"`
	Subject       string   `json:"subject"`
	Topic         string   `json:"topic"`
	Text          string   `json:"text"`
	Options       []string `json:"options"`
	CorrectOption int      `json:"correct_option"`
	Difficulty    string   `json:"difficulty"`
}

// User represents an account as listed to admins
type User struct {
	UserID      string  `json:"user_id"`
	Email       string  `json:"email"`
	Name        string  `json:"name"`
	Role        string  `json:"role"`
	Picture     string  `json:"picture,omitempty"`
	CreatedAt   string  `json:"created_at"`
	LastLoginAt *string `json:"last_login_at"`
}

// Stats represents the admin dashboard counters
type Stats struct {
	TotalUsers      int64 `json:"total_users"`
	TotalAdmins     int64 `json:"total_admins"`
	TotalStudents   int64 `json:"total_students"`
	TotalQuestions  int64 `json:"total_questions"`
	TotalSimulators int64 `json:"total_simulators"`
	PendingFeedback int64 `json:"pending_feedback"`
	ActiveSessions  int64 `json:"active_sessions"`
}

// SubmitFeedback stores a feedback entry for the signed-in user
func (c *Client) SubmitFeedback(ctx context.Context, auth Auth, req FeedbackRequest) (*Feedback, error) {
	var out Feedback
	if _, err := c.do(ctx, "submit feedback", http.MethodPost, "/api/feedback", auth, req, http.StatusCreated, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MyFeedback lists the signed-in user's feedback
func (c *Client) MyFeedback(ctx context.Context, auth Auth) ([]Feedback, error) {
	var out []Feedback
	if _, err := c.do(ctx, "list feedback", http.MethodGet, "/api/feedback/my", auth, nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Simulators lists active simulators
func (c *Client) Simulators(ctx context.Context, auth Auth) ([]Simulator, error) {
	var out []Simulator
	if _, err := c.do(ctx, "list simulators", http.MethodGet, "/api/simulators", auth, nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AdminStats returns dashboard counters
func (c *Client) AdminStats(ctx context.Context, auth Auth) (*Stats, error) {
	var out Stats
	if _, err := c.do(ctx, "admin stats", http.MethodGet, "/api/admin/stats", auth, nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AdminUsers lists every account
func (c *Client) AdminUsers(ctx context.Context, auth Auth) ([]User, error) {
	var out []User
	if _, err := c.do(ctx, "admin users", http.MethodGet, "/api/admin/users", auth, nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateUserRole changes an account's role
func (c *Client) UpdateUserRole(ctx context.Context, auth Auth, userID, role string) (*User, error) {
	var out User
	path := fmt.Sprintf("/api/admin/users/%s/role", url.PathEscape(userID))
	if _, err := c.do(ctx, "update role", http.MethodPut, path, auth, map[string]string{"role": role}, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteUser removes an account
func (c *Client) DeleteUser(ctx context.Context, auth Auth, userID string) error {
	path := fmt.Sprintf("/api/admin/users/%s", url.PathEscape(userID))
	_, err := c.do(ctx, "delete user", http.MethodDelete, path, auth, nil, http.StatusOK, nil)
	return err
}

// AdminQuestions lists questions
func (c *Client) AdminQuestions(ctx context.Context, auth Auth) ([]Question, error) {
	var out []Question
	if _, err := c.do(ctx, "admin questions", http.MethodGet, "/api/admin/questions", auth, nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AdminSimulators lists every simulator including inactive ones
func (c *Client) AdminSimulators(ctx context.Context, auth Auth) ([]Simulator, error) {
	var out []Simulator
	if _, err := c.do(ctx, "admin simulators", http.MethodGet, "/api/admin/simulators", auth, nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AdminFeedback lists all feedback, newest first
func (c *Client) AdminFeedback(ctx context.Context, auth Auth) ([]Feedback, error) {
	var out []Feedback
	if _, err := c.do(ctx, "admin feedback", http.MethodGet, "/api/admin/feedback", auth, nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateFeedbackStatus moves a feedback entry through its workflow
func (c *Client) UpdateFeedbackStatus(ctx context.Context, auth Auth, id, status, notes string) (*Feedback, error) {
	var out Feedback
	path := fmt.Sprintf("/api/admin/feedback/%s/status", url.PathEscape(id))
	body := map[string]string{"status": status, "admin_notes": notes}
	if _, err := c.do(ctx, "update feedback", http.MethodPut, path, auth, body, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
