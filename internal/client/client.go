package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ingresounam/ingreso/internal/session"
)

// Client represents an HTTP client for the identity API
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a new API client for baseURL (e.g. http://localhost:8000)
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// SetHTTPClient sets a custom HTTP client
func (c *Client) SetHTTPClient(httpClient *http.Client) {
	c.httpClient = httpClient
}

// BaseURL returns the API base URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Auth carries the credentials attached to a request. Either field may be empty.
type Auth struct {
	Token   string
	Cookies []*http.Cookie
}

func (a Auth) apply(req *http.Request) {
	if a.Token != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", a.Token))
	}
	for _, cookie := range a.Cookies {
		req.AddCookie(cookie)
	}
}

// StatusError is returned when the API answers with an unexpected status
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s failed (status %d): %s", e.Op, e.StatusCode, e.Body)
}

// LoginRequest represents the login request body
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest represents the registration request body
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// AuthResponse is returned by login, register and setup
type AuthResponse struct {
	AccessToken string             `json:"access_token"`
	TokenType   string             `json:"token_type"`
	User        session.UserRecord `json:"user"`

	// Cookies issued by the API alongside the token (the server session)
	Cookies []*http.Cookie `json:"-"`
}

// Login authenticates the user and returns a bearer token plus session cookie
func (c *Client) Login(ctx context.Context, email, password string) (*AuthResponse, error) {
	var out AuthResponse
	resp, err := c.do(ctx, "login", http.MethodPost, "/api/auth/login", Auth{}, LoginRequest{Email: email, Password: password}, http.StatusOK, &out)
	if err != nil {
		return nil, err
	}
	out.Cookies = resp.Cookies()
	return &out, nil
}

// Register creates a student account and signs it in
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	var out AuthResponse
	resp, err := c.do(ctx, "register", http.MethodPost, "/api/auth/register", Auth{}, req, http.StatusCreated, &out)
	if err != nil {
		return nil, err
	}
	out.Cookies = resp.Cookies()
	return &out, nil
}

// Setup creates the first admin account on an empty deployment
func (c *Client) Setup(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	var out AuthResponse
	resp, err := c.do(ctx, "setup", http.MethodPost, "/api/setup", Auth{}, req, http.StatusCreated, &out)
	if err != nil {
		return nil, err
	}
	out.Cookies = resp.Cookies()
	return &out, nil
}

// Logout ends the server session referenced by the credentials
func (c *Client) Logout(ctx context.Context, auth Auth) error {
	_, err := c.do(ctx, "logout", http.MethodPost, "/api/auth/logout", auth, nil, http.StatusOK, nil)
	return err
}

// Me returns the identity behind the credentials
func (c *Client) Me(ctx context.Context, auth Auth) (*session.UserRecord, error) {
	var user session.UserRecord
	if _, err := c.do(ctx, "me", http.MethodGet, "/api/auth/me", auth, nil, http.StatusOK, &user); err != nil {
		return nil, err
	}
	if user.UserID == "" {
		return nil, fmt.Errorf("me failed: response carries no user_id")
	}
	return &user, nil
}

// do sends one JSON request. body and out may be nil.
func (c *Client) do(ctx context.Context, op, method, path string, auth Auth, body any, want int, out any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	auth.apply(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return resp, nil
}
