package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/justsurfingit/nextsteps/internal/dtos"
	"github.com/justsurfingit/nextsteps/internal/models"
)

type UserStore interface {
	UserFinder
	UpsertFromGoogle(ctx context.Context, email, name, picture string) (*models.User, error)
	UpdateIgnoreList(ctx context.Context, user *models.User, raw string) (*models.User, int64, error)
}

type UserHandler struct {
	Users UserStore
}

func NewUserHandler(u UserStore) *UserHandler {
	return &UserHandler{Users: u}
}

// Me is the GET /users/me endpoint
func (h *UserHandler) Me(c *gin.Context) {
	c.JSON(http.StatusOK, currentUser(c))
}

// UpdateMe is the PUT /users/me endpoint. Saving an ignore list also
// deletes the records it now excludes.
func (h *UserHandler) UpdateMe(c *gin.Context) {
	var req dtos.UserUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	user, _, err := h.Users.UpdateIgnoreList(c.Request.Context(), currentUser(c), *req.IgnoredEmails)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}
