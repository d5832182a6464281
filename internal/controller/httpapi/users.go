package httpapi

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/Freeeeeet/mentorbook/internal/service"
)

type UserHandler struct {
	users  *service.UserService
	logger *zap.Logger
}

func NewUserHandler(users *service.UserService, logger *zap.Logger) *UserHandler {
	return &UserHandler{users: users, logger: logger}
}

// TelegramLink handles POST /api/me/telegram-link.
func (h *UserHandler) TelegramLink(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFrom(r.Context())
	token, err := h.users.TelegramLinkToken(r.Context(), principal)
	if err != nil {
		Error(w, h.logger, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{
		"token":   token,
		"command": "/start " + token,
	})
}
