package models

import (
	"time"

	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"
)

// Roles
const (
	RoleAdmin   = "admin"
	RoleStudent = "student"
)

// Auth providers
const (
	ProviderLocal = "local"
)

// Feedback types
const (
	FeedbackBug         = "bug"
	FeedbackFeature     = "feature"
	FeedbackImprovement = "improvement"
	FeedbackOther       = "other"
)

// Feedback statuses
const (
	FeedbackPending    = "pending"
	FeedbackInProgress = "in_progress"
	FeedbackResolved   = "resolved"
	FeedbackRejected   = "rejected"
)

// BaseModel provides common fields and auto-generated ULID for all models
type BaseModel struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(26)"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// BeforeCreate generates a ULID for the ID field if it's empty
func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = ulid.Make().String()
	}
	return nil
}

// Settings is the deployment-wide singleton (only one row should exist)
type Settings struct {
	BaseModel
	JWTSecret string `json:"-" gorm:"type:varchar(64);not null"` // Generated on first setup when JWT_SECRET is unset
}

// User represents an account able to sign in
type User struct {
	BaseModel
	Email        string     `json:"email" gorm:"unique;not null"`
	PasswordHash string     `json:"-" gorm:"not null"`
	Name         string     `json:"name"`
	Role         string     `json:"role" gorm:"not null;default:student"`
	Picture      string     `json:"picture"`
	AuthProvider string     `json:"auth_provider" gorm:"not null;default:local"`
	LastLoginAt  *time.Time `json:"last_login_at"`
	UpdatedAt    time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}

// IsAdmin reports whether the user holds the admin role
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// UserSession is a server-side browser session referenced by the session_token cookie
type UserSession struct {
	BaseModel
	UserID    string    `json:"user_id" gorm:"not null;index"`
	Token     string    `json:"-" gorm:"unique;not null"`
	ExpiresAt time.Time `json:"expires_at" gorm:"not null;index"`

	User User `json:"-" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}

// Expired reports whether the session is past its expiry at now
func (s *UserSession) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Question is a multiple-choice exam question
type Question struct {
	BaseModel
	Subject       string   `json:"subject" gorm:"not null;index"`
	Topic         string   `json:"topic"`
	Text          string   `json:"text" gorm:"type:text;not null"`
	Options       []string `json:"options" gorm:"serializer:json"`
	CorrectOption int      `json:"correct_option" gorm:"not null;default:0"`
	Explanation   string   `json:"explanation" gorm:"type:text"`
	Difficulty    string   `json:"difficulty" gorm:"not null;default:medium"`
}

// Simulator is a timed mock exam assembled from questions
type Simulator struct {
	BaseModel
	Name            string `json:"name" gorm:"not null"`
	Area            int    `json:"area" gorm:"not null"` // UNAM knowledge area 1-4
	Description     string `json:"description"`
	QuestionCount   int    `json:"question_count" gorm:"not null"`
	DurationMinutes int    `json:"duration_minutes" gorm:"not null"`
	IsActive        bool   `json:"is_active" gorm:"not null;default:true"`
}

// Feedback is a user report collected by the in-app feedback widget
type Feedback struct {
	BaseModel
	UserID     string     `json:"user_id" gorm:"not null;index"`
	UserEmail  string     `json:"user_email"`
	UserName   string     `json:"user_name"`
	Type       string     `json:"type" gorm:"not null"`
	Message    string     `json:"message" gorm:"type:text;not null"`
	Page       string     `json:"page"`
	Status     string     `json:"status" gorm:"not null;default:pending;index"`
	AdminNotes string     `json:"admin_notes" gorm:"type:text"`
	NotifiedAt *time.Time `json:"notified_at"`
	UpdatedAt  time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}

// AutoMigrate runs database migrations for all models
func AutoMigrate(db *gorm.DB) error {
	models := []interface{}{
		&Settings{}, &User{}, &UserSession{}, &Question{}, &Simulator{}, &Feedback{},
	}

	return db.AutoMigrate(models...)
}

// FindByID safely finds a record by string ID
func FindByID[T any](db *gorm.DB, id string, model *T) error {
	return db.Where("id = ?", id).First(model).Error
}
