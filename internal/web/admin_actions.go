package web

import (
	"context"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/ingresounam/ingreso/internal/client"
	"github.com/ingresounam/ingreso/internal/guard"
)

// adminAction re-verifies the caller as an admin, runs fn against the
// identity API and returns to back. The caller's cached admin snapshot is
// dropped whether or not fn succeeded.
func (h *Host) adminAction(c *gin.Context, back string, fn func(ctx context.Context, auth client.Auth) error) {
	store := h.sessions(c.Writer, c.Request)
	cookies := forwardedCookies(c.Request)

	// Untracked: a form post must not cancel the page navigation that follows it
	result := h.guard.Resolve(c.Request.Context(), guard.Navigation{
		Path:        c.Request.URL.Path,
		Requirement: guard.RequireAdmin,
		Store:       store,
		Cookies:     cookies,
	})

	switch result.Outcome {
	case guard.Placeholder:
		c.Status(http.StatusNoContent)
		return
	case guard.RedirectLogin, guard.RedirectDashboard:
		c.Redirect(http.StatusSeeOther, result.Outcome.Location())
		return
	}

	sess, err := store.Get()
	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to read session, calling the API with cookies only")
	}

	ctx := guard.Provide(c.Request.Context(), result.Scope)
	admin := result.Scope.User()

	status := "updated"
	if err := fn(ctx, client.Auth{Token: sess.Token, Cookies: cookies}); err != nil {
		h.logger.Warn().Err(err).Str("path", c.Request.URL.Path).Str("admin_id", admin.UserID).Msg("Admin action failed")
		status = "failed"
	} else {
		h.logger.Info().Str("path", c.Request.URL.Path).Str("admin_id", admin.UserID).Msg("Admin action applied")
	}
	h.admin.Invalidate(ctx, admin)

	target := url.URL{Path: back, RawQuery: url.Values{"admin": {status}}.Encode()}
	c.Redirect(http.StatusSeeOther, target.String())
}

func (h *Host) updateUserRole(c *gin.Context) {
	id, role := c.Param("id"), c.PostForm("role")
	h.adminAction(c, "/admin/users", func(ctx context.Context, auth client.Auth) error {
		_, err := h.api.UpdateUserRole(ctx, auth, id, role)
		return err
	})
}

func (h *Host) deleteUser(c *gin.Context) {
	id := c.Param("id")
	h.adminAction(c, "/admin/users", func(ctx context.Context, auth client.Auth) error {
		return h.api.DeleteUser(ctx, auth, id)
	})
}

func (h *Host) updateFeedbackStatus(c *gin.Context) {
	id := c.Param("id")
	status, notes := c.PostForm("status"), c.PostForm("admin_notes")
	h.adminAction(c, "/admin/feedback", func(ctx context.Context, auth client.Auth) error {
		_, err := h.api.UpdateFeedbackStatus(ctx, auth, id, status, notes)
		return err
	})
}
