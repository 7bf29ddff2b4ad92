package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ingresounam/ingreso/internal/admindata"
	"github.com/ingresounam/ingreso/internal/auth"
	"github.com/ingresounam/ingreso/internal/client"
	"github.com/ingresounam/ingreso/internal/guard"
	"github.com/ingresounam/ingreso/internal/routes"
	"github.com/ingresounam/ingreso/internal/session"
)

// navigate resolves a GET against the route table and the guard
func (h *Host) navigate(c *gin.Context) {
	if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
		c.Status(http.StatusNotFound)
		return
	}

	path := c.Request.URL.Path
	m, redirected, err := h.table.Resolve(path)
	if err != nil {
		if errors.Is(err, routes.ErrNotFound) {
			c.Set(ctxRoute, "not_found")
			c.HTML(http.StatusNotFound, notFoundView, h.data(c, notFoundView))
			return
		}
		h.logger.Error().Err(err).Str("path", path).Msg("Route table resolution failed")
		c.Status(http.StatusInternalServerError)
		return
	}

	// Aliases redirect before any guard runs
	if redirected {
		c.Set(ctxRoute, path)
		c.Redirect(http.StatusMovedPermanently, m.Route.Path)
		return
	}
	c.Set(ctxRoute, m.Route.Path)

	if m.Route.Guard == guard.RequireNone {
		data := h.data(c, m.Route.View)
		data.Params = m.Params
		c.HTML(http.StatusOK, m.Route.View, data)
		return
	}

	store := h.sessions(c.Writer, c.Request)
	cookies := forwardedCookies(c.Request)

	result := h.guard.Resolve(c.Request.Context(), guard.Navigation{
		ClientID:    c.GetString(ctxClientID),
		Path:        path,
		Requirement: m.Route.Guard,
		Store:       store,
		Cookies:     cookies,
	})

	switch result.Outcome {
	case guard.Placeholder:
		c.Status(http.StatusNoContent)
		return
	case guard.RedirectLogin, guard.RedirectDashboard:
		c.Redirect(http.StatusFound, result.Outcome.Location())
		return
	}

	sess, err := store.Get()
	if err != nil {
		h.logger.Warn().Err(err).Str("path", path).Msg("Failed to read session, calling the API with cookies only")
	}
	apiAuth := client.Auth{Token: sess.Token, Cookies: cookies}

	// Views read the verified user and admin snapshot from the request context
	ctx := guard.Provide(c.Request.Context(), result.Scope)
	var adminErr error
	if m.Route.IsAdmin() {
		snap, err := h.admin.Load(ctx, result.Scope.User(), apiAuth)
		if err != nil {
			adminErr = err
		} else {
			ctx = admindata.WithData(ctx, snap)
		}
	}
	c.Request = c.Request.WithContext(ctx)

	data := h.data(c, m.Route.View)
	data.Params = m.Params
	data.Feedback = result.MountFeedback()
	data.Notice = noticeFor(c)

	if adminErr != nil {
		h.logger.Error().Err(adminErr).Str("path", path).Msg("Failed to load admin data")
		data.Error = "No se pudieron cargar los datos de administración"
		c.HTML(http.StatusBadGateway, m.Route.View, data)
		return
	}

	if load, ok := pageLoaders[m.Route.View]; ok {
		if err := load(ctx, h.api, apiAuth, m.Params, &data); err != nil {
			if errors.Is(err, errNoSuchRecord) {
				c.HTML(http.StatusNotFound, notFoundView, h.data(c, notFoundView))
				return
			}
			h.logger.Error().Err(err).Str("path", path).Str("view", m.Route.View).Msg("Failed to load view data")
			data.Error = "No se pudieron cargar los datos"
			c.HTML(http.StatusBadGateway, m.Route.View, data)
			return
		}
	}

	c.HTML(http.StatusOK, m.Route.View, data)
}

// data builds the common view data, taking the user and admin snapshot
// from whatever the request context was provided with
func (h *Host) data(c *gin.Context, view string) viewData {
	data := viewData{
		View:      view,
		Path:      c.Request.URL.Path,
		RequestID: c.GetString(ctxRequestID),
	}

	ctx := c.Request.Context()
	if scope, ok := guard.FromContext(ctx); ok {
		data.User = scope.User()
	}
	if snap, ok := admindata.FromContext(ctx); ok {
		data.Admin = snap
	}
	return data
}

// login signs in through the identity API and persists the session
func (h *Host) login(c *gin.Context) {
	email := strings.TrimSpace(c.PostForm("email"))
	password := c.PostForm("password")
	if email == "" || password == "" {
		h.renderForm(c, "login", http.StatusBadRequest, "Correo y contraseña son obligatorios")
		return
	}

	resp, err := h.api.Login(c.Request.Context(), email, password)
	if err != nil {
		h.logger.Info().Err(err).Str("email", email).Msg("Login rejected")
		h.renderForm(c, "login", formStatus(err), apiMessage(err, "Correo o contraseña incorrectos"))
		return
	}

	h.signIn(c, resp)
}

// register creates an account through the identity API and signs it in
func (h *Host) register(c *gin.Context) {
	req := client.RegisterRequest{
		Email:    strings.TrimSpace(c.PostForm("email")),
		Password: c.PostForm("password"),
		Name:     strings.TrimSpace(c.PostForm("name")),
	}
	if req.Email == "" || req.Password == "" || req.Name == "" {
		h.renderForm(c, "register", http.StatusBadRequest, "Todos los campos son obligatorios")
		return
	}

	resp, err := h.api.Register(c.Request.Context(), req)
	if err != nil {
		h.logger.Info().Err(err).Str("email", req.Email).Msg("Registration rejected")
		h.renderForm(c, "register", formStatus(err), apiMessage(err, "No se pudo crear la cuenta"))
		return
	}

	h.signIn(c, resp)
}

func (h *Host) signIn(c *gin.Context, resp *client.AuthResponse) {
	user := resp.User
	store := h.sessions(c.Writer, c.Request)
	if err := store.Set(session.Session{User: &user, Authenticated: true, Token: resp.AccessToken}); err != nil {
		h.logger.Error().Err(err).Msg("Failed to persist session")
		h.renderForm(c, "login", http.StatusInternalServerError, "No se pudo guardar la sesión")
		return
	}
	h.relaySessionCookie(c, resp.Cookies)

	h.logger.Info().Str("user_id", user.UserID).Str("role", user.Role).Msg("Signed in")
	c.Redirect(http.StatusSeeOther, "/dashboard")
}

// logout ends the server session and clears every stored credential
func (h *Host) logout(c *gin.Context) {
	store := h.sessions(c.Writer, c.Request)
	sess, err := store.Get()
	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to read session on logout")
	}

	// A bare server session cookie is still revoked
	cookies := forwardedCookies(c.Request)
	if sess.HasCredentials() || len(cookies) > 0 {
		if err := h.api.Logout(c.Request.Context(), client.Auth{Token: sess.Token, Cookies: cookies}); err != nil {
			h.logger.Warn().Err(err).Msg("Identity API logout failed")
		}
	}
	if sess.User != nil {
		h.admin.Invalidate(c.Request.Context(), sess.User)
	}

	if err := store.Clear(); err != nil {
		h.logger.Warn().Err(err).Msg("Failed to clear session")
	}
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.Web.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	c.Redirect(http.StatusSeeOther, "/login")
}

// feedback forwards the widget's form to the identity API and returns to the page
func (h *Host) feedback(c *gin.Context) {
	store := h.sessions(c.Writer, c.Request)
	sess, err := store.Get()
	if err != nil || !sess.HasCredentials() {
		c.Redirect(http.StatusSeeOther, "/login")
		return
	}

	page := safeReturnPath(c.PostForm("page"))
	req := client.FeedbackRequest{
		Type:    c.PostForm("type"),
		Message: strings.TrimSpace(c.PostForm("message")),
		Page:    page,
	}

	status := "sent"
	if _, err := h.api.SubmitFeedback(c.Request.Context(), client.Auth{Token: sess.Token, Cookies: forwardedCookies(c.Request)}, req); err != nil {
		h.logger.Warn().Err(err).Str("page", page).Msg("Failed to submit feedback")
		status = "failed"
	}

	target := url.URL{Path: page, RawQuery: url.Values{"feedback": {status}}.Encode()}
	c.Redirect(http.StatusSeeOther, target.String())
}

func (h *Host) renderForm(c *gin.Context, view string, status int, message string) {
	c.Set(ctxRoute, "/"+view)
	data := h.data(c, view)
	data.Error = message
	c.HTML(status, view, data)
}

// relaySessionCookie re-issues the identity API's session cookie on this origin
func (h *Host) relaySessionCookie(c *gin.Context, cookies []*http.Cookie) {
	for _, ck := range cookies {
		if ck.Name != auth.SessionCookieName {
			continue
		}
		http.SetCookie(c.Writer, &http.Cookie{
			Name:     ck.Name,
			Value:    ck.Value,
			Path:     "/",
			MaxAge:   ck.MaxAge,
			HttpOnly: true,
			Secure:   h.config.Web.CookieSecure,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

// forwardedCookies picks the cookies the identity API understands
func forwardedCookies(r *http.Request) []*http.Cookie {
	var out []*http.Cookie
	for _, ck := range r.Cookies() {
		if ck.Name == auth.SessionCookieName && ck.Value != "" {
			out = append(out, &http.Cookie{Name: ck.Name, Value: ck.Value})
		}
	}
	return out
}

// safeReturnPath keeps redirects on this origin
func safeReturnPath(page string) string {
	if !strings.HasPrefix(page, "/") || strings.HasPrefix(page, "//") || strings.Contains(page, "\\") {
		return "/dashboard"
	}
	if u, err := url.Parse(page); err == nil {
		return u.Path
	}
	return "/dashboard"
}

// noticeFor maps the status a form post redirected with to a banner
func noticeFor(c *gin.Context) string {
	switch c.Query("feedback") {
	case "sent":
		return "¡Gracias! Recibimos tus comentarios."
	case "failed":
		return "No se pudieron enviar tus comentarios."
	}
	switch c.Query("admin") {
	case "updated":
		return "Cambios guardados."
	case "failed":
		return "No se pudieron guardar los cambios."
	}
	return ""
}

// formStatus maps an identity API failure to the status of the re-rendered form
func formStatus(err error) int {
	var statusErr *client.StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusConflict, http.StatusTooManyRequests:
			return statusErr.StatusCode
		}
	}
	return http.StatusBadGateway
}

// apiMessage extracts the identity API's {"error": ...} text
func apiMessage(err error, fallback string) string {
	var statusErr *client.StatusError
	if !errors.As(err, &statusErr) {
		return fallback
	}

	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal([]byte(statusErr.Body), &body) != nil || body.Error == "" {
		return fallback
	}
	if statusErr.StatusCode == http.StatusBadRequest && strings.Contains(body.Error, "Field validation") {
		return fallback
	}
	return body.Error
}
