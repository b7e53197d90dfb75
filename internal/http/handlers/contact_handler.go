// README: Contact handler: registers the caller's push token and phone for notifications.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"carpool/internal/http/middleware"
	"carpool/internal/modules/notify"
)

type ContactHandler struct {
	notify *notify.Service
}

func NewContactHandler(svc *notify.Service) *ContactHandler {
	return &ContactHandler{notify: svc}
}

type contactReq struct {
	DeviceToken string `json:"device_token" validate:"max=4096"`
	Phone       string `json:"phone" validate:"omitempty,e164"`
}

func (h *ContactHandler) Register(c *gin.Context) {
	var req contactReq
	if !bind(c, &req) {
		return
	}
	contact, err := h.notify.RegisterContact(c.Request.Context(), notify.RegisterContactCommand{
		UserID:      middleware.Caller(c).ID,
		DeviceToken: req.DeviceToken,
		Phone:       req.Phone,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, contact)
}
