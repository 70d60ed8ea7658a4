// Conversation HTTP handlers.
//
// The chat provider delivers every inbound message to
// POST /api/v1/conversations/inbound and relays the returned reply (and
// optional document) to the customer. Provider retries carry the same
// message_id and receive the stored reply.
package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/boxquote/internal/conversation"
	"github.com/tbourn/boxquote/internal/domain"
	"github.com/tbourn/boxquote/internal/services"
)

// InboundMessageRequest is the provider payload for one inbound message.
type InboundMessageRequest struct {
	// Address is the caller's phone number as sent by the provider.
	Address string `json:"address" binding:"required" example:"+5491155551234"`
	// Body is the message text; empty for pure media messages.
	Body string `json:"body" example:"hola"`
	// Media reports that the message carried an attachment.
	Media bool `json:"media"`
	// MessageID is the provider's message identifier, used to drop retries.
	MessageID string `json:"message_id,omitempty" example:"wamid.HBgLNTQ5MTE1NTU1MTIzNBUCABIYFjNFQjA"`
}

// SessionView is the staff-facing view of a conversation session.
type SessionView struct {
	Step              string    `json:"step" example:"waiting_dimensions"`
	ClientType        string    `json:"client_type,omitempty" example:"company"`
	ClientName        string    `json:"client_name,omitempty"`
	CompanyName       string    `json:"company_name,omitempty"`
	LastQuoteID       string    `json:"last_quote_id,omitempty"`
	LastQuoteSubtotal float64   `json:"last_quote_subtotal,omitempty"`
	Escalated         bool      `json:"escalated"`
	LastInteractionAt time.Time `json:"last_interaction_at"`
}

func sessionView(s domain.ConversationSession) SessionView {
	return SessionView{
		Step:              s.Step.String(),
		ClientType:        s.ClientType,
		ClientName:        s.ClientName,
		CompanyName:       s.CompanyName,
		LastQuoteID:       s.LastQuoteID,
		LastQuoteSubtotal: s.LastQuoteSubtotal,
		Escalated:         s.Escalated,
		LastInteractionAt: s.LastInteractionAt,
	}
}

// PostInbound godoc
// @ID          postInboundMessage
// @Summary     Handle an inbound chat message
// @Description Advances the caller's conversation by one message and returns
// @Description the Spanish reply to send back.
// @Tags        Conversations
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.InboundMessageRequest  true  "Inbound message"
// @Success     200  {object}  conversation.Reply
// @Param       X-API-Key  header  string  false  "API credential; raises the rate limit"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     429  {object}  handlers.ErrorResponse  "Rate limited"
// @Router      /conversations/inbound [post]
func (h *Handlers) PostInbound(c *gin.Context) {
	var req InboundMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid body: address is required")
		return
	}

	reply, err := h.convo.Handle(c.Request.Context(), conversation.Inbound{
		Address:   req.Address,
		Body:      req.Body,
		Media:     req.Media,
		MessageID: req.MessageID,
	})
	switch {
	case errors.Is(err, services.ErrEmptyAddress):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "address is required")
		return
	case errors.Is(err, services.ErrMessageTooLong):
		fail(c, http.StatusBadRequest, ErrCodeMessageTooLong, "message too long")
		return
	case err != nil:
		_ = c.Error(err)
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
		return
	}
	ok(c, http.StatusOK, reply)
}

// GetConversation godoc
// @ID          getConversation
// @Summary     Inspect a conversation session
// @Tags        Internal
// @Produce     json
// @Param       X-Internal-Token  header  string  true  "Internal access token"
// @Param       address  path  string  true  "Caller address"
// @Success     200  {object}  handlers.SessionView
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     401  {object}  handlers.ErrorResponse
// @Router      /internal/conversations/{address} [get]
func (h *Handlers) GetConversation(c *gin.Context) {
	sess, err := h.convo.Session(c.Request.Context(), strings.TrimSpace(c.Param("address")))
	if err != nil {
		if errors.Is(err, services.ErrEmptyAddress) {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "address is required")
			return
		}
		_ = c.Error(err)
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
		return
	}
	ok(c, http.StatusOK, sessionView(sess))
}

// DeleteConversation godoc
// @ID          resetConversation
// @Summary     Reset a conversation session
// @Description Forgets the caller's session so the next message starts over.
// @Tags        Internal
// @Param       X-Internal-Token  header  string  true  "Internal access token"
// @Param       address  path  string  true  "Caller address"
// @Success     204
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     401  {object}  handlers.ErrorResponse
// @Router      /internal/conversations/{address} [delete]
func (h *Handlers) DeleteConversation(c *gin.Context) {
	if err := h.convo.Reset(c.Request.Context(), strings.TrimSpace(c.Param("address"))); err != nil {
		if errors.Is(err, services.ErrEmptyAddress) {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "address is required")
			return
		}
		_ = c.Error(err)
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
		return
	}
	noContent(c)
}
