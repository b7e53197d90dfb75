// README: Chat handlers: send a preset message, read history, list presets.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"carpool/internal/http/middleware"
	"carpool/internal/modules/chat"
	"carpool/internal/types"
)

type ChatHandler struct {
	chat *chat.Service
}

func NewChatHandler(svc *chat.Service) *ChatHandler {
	return &ChatHandler{chat: svc}
}

type sendMessageReq struct {
	Text string `json:"text" validate:"required,max=200"`
	To   string `json:"to" validate:"max=128"`
}

func (h *ChatHandler) Send(c *gin.Context) {
	rideID, ok := pathID(c)
	if !ok {
		return
	}
	var req sendMessageReq
	if !bind(c, &req) {
		return
	}
	m, err := h.chat.Send(c.Request.Context(), chat.SendCommand{
		RideID: rideID,
		Sender: middleware.Caller(c),
		To:     types.ID(req.To),
		Text:   req.Text,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, m)
}

func (h *ChatHandler) History(c *gin.Context) {
	rideID, ok := pathID(c)
	if !ok {
		return
	}
	limit, err := queryInt(c, "limit", 200)
	if err != nil {
		writeError(c, err)
		return
	}
	msgs, err := h.chat.History(c.Request.Context(), rideID, middleware.Caller(c), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"messages": msgs})
}

// Presets lists the phrases for ?side=driver|passenger, defaulting to the
// caller's role.
func (h *ChatHandler) Presets(c *gin.Context) {
	side := chat.Side(c.Query("side"))
	if side == "" {
		side = chat.SidePassenger
		if middleware.Caller(c).IsDriver() {
			side = chat.SideDriver
		}
	}
	if side != chat.SideDriver && side != chat.SidePassenger {
		writeError(c, errValidation.WithField("side", "must be driver or passenger"))
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"side": side, "presets": chat.Presets(side)})
}
