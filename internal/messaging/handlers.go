// internal/messaging/handlers.go

package messaging

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/KhurshidShaikh/Alumni-Bridge-sub001/internal/auth"
	"github.com/KhurshidShaikh/Alumni-Bridge-sub001/internal/common/utils"
)

type Handler struct {
	service     Service
	hub         *Hub
	authService auth.Service
}

func NewHandler(service Service, hub *Hub, authService auth.Service) *Handler {
	return &Handler{
		service:     service,
		hub:         hub,
		authService: authService,
	}
}

// GetOrCreateConversation finds or opens the thread with another user.
// Requires an accepted connection between the two.
func (h *Handler) GetOrCreateConversation(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	peerID, err := strconv.ParseInt(mux.Vars(r)["participantId"], 10, 64)
	if err != nil || peerID <= 0 {
		utils.ErrorResponse(w, "Invalid participant ID", http.StatusBadRequest)
		return
	}

	conv, err := h.service.GetOrCreateConversation(r.Context(), identity.UserID, peerID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	utils.SuccessResponse(w, conv, http.StatusOK)
}

// ListConversations returns the caller's conversations, most recent
// activity first.
func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	page, pageSize := parsePageParams(r)

	list, err := h.service.ListConversations(r.Context(), identity.UserID, page, pageSize)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	utils.SuccessResponse(w, list, http.StatusOK)
}

// GetMessages returns one page of history and marks the caller's unread
// messages read.
func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conversationID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		utils.ErrorResponse(w, "Invalid conversation ID", http.StatusBadRequest)
		return
	}

	page, pageSize := parsePageParams(r)

	pageResult, err := h.service.GetMessages(r.Context(), conversationID, identity.UserID, page, pageSize)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	utils.SuccessResponse(w, pageResult, http.StatusOK)
}

// SendMessage posts a text message into a conversation.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conversationID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		utils.ErrorResponse(w, "Invalid conversation ID", http.StatusBadRequest)
		return
	}

	var input SendMessageInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		utils.ErrorResponse(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := utils.ValidateStruct(&input); err != nil {
		utils.ErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	message, err := h.service.SendMessage(r.Context(), conversationID, identity.UserID, input.Content)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	utils.SuccessResponse(w, message, http.StatusCreated)
}

// EditMessage replaces the content of the caller's own message.
func (h *Handler) EditMessage(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	messageID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		utils.ErrorResponse(w, "Invalid message ID", http.StatusBadRequest)
		return
	}

	var input EditMessageInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		utils.ErrorResponse(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := utils.ValidateStruct(&input); err != nil {
		utils.ErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	message, err := h.service.EditMessage(r.Context(), messageID, identity.UserID, input.Content)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	utils.SuccessResponse(w, message, http.StatusOK)
}

// DeleteMessage soft-deletes the caller's own message.
func (h *Handler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	messageID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		utils.ErrorResponse(w, "Invalid message ID", http.StatusBadRequest)
		return
	}

	if err := h.service.DeleteMessage(r.Context(), messageID, identity.UserID); err != nil {
		respondServiceError(w, err)
		return
	}

	utils.MessageResponse(w, "Message deleted", http.StatusOK)
}

// SearchMessages searches the caller's visible messages, optionally
// scoped to one conversation.
func (h *Handler) SearchMessages(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	query := r.URL.Query().Get("query")

	var conversationID *int64
	if raw := r.URL.Query().Get("conversationId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			utils.ErrorResponse(w, "Invalid conversation ID", http.StatusBadRequest)
			return
		}
		conversationID = &id
	}

	messages, err := h.service.SearchMessages(r.Context(), identity.UserID, query, conversationID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	utils.SuccessResponse(w, messages, http.StatusOK)
}

// Admin handlers. Routes are mounted behind RequireAdmin.

// AdminGetOrCreateConversation opens a thread with any verified user,
// bypassing the connection gate.
func (h *Handler) AdminGetOrCreateConversation(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	peerID, err := strconv.ParseInt(mux.Vars(r)["participantId"], 10, 64)
	if err != nil || peerID <= 0 {
		utils.ErrorResponse(w, "Invalid participant ID", http.StatusBadRequest)
		return
	}

	conv, err := h.service.AdminGetOrCreateConversation(r.Context(), identity.UserID, peerID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	utils.SuccessResponse(w, conv, http.StatusOK)
}

// AdminListConversations lists every conversation in the system.
func (h *Handler) AdminListConversations(w http.ResponseWriter, r *http.Request) {
	page, pageSize := parsePageParams(r)

	list, err := h.service.AdminListConversations(r.Context(), page, pageSize)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	utils.SuccessResponse(w, list, http.StatusOK)
}

// AdminSendMessage posts into an existing conversation the admin is a
// participant of. Same pipeline as the user send.
func (h *Handler) AdminSendMessage(w http.ResponseWriter, r *http.Request) {
	h.SendMessage(w, r)
}

// BulkSend fans one message out to many recipients. Partial failures
// are reported per recipient, not as an overall error.
func (h *Handler) BulkSend(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var input BulkSendInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		utils.ErrorResponse(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := utils.ValidateStruct(&input); err != nil {
		utils.ErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	report, err := h.service.BulkSend(r.Context(), identity.UserID, &input)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	utils.SuccessResponse(w, report, http.StatusOK)
}

func parsePageParams(r *http.Request) (int, int) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("pageSize"))
	return page, pageSize
}

// respondServiceError maps service errors to HTTP status codes
func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrConversationNotFound),
		errors.Is(err, ErrMessageNotFound),
		errors.Is(err, ErrUserNotFound):
		utils.ErrorResponse(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrNotParticipant),
		errors.Is(err, ErrNotSender),
		errors.Is(err, ErrNotConnected),
		errors.Is(err, ErrPeerNotVerified):
		utils.ErrorResponse(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, ErrSelfConversation),
		errors.Is(err, ErrEmptyContent),
		errors.Is(err, ErrContentTooLong),
		errors.Is(err, ErrQueryTooShort),
		errors.Is(err, ErrMessageDeleted):
		utils.ErrorResponse(w, err.Error(), http.StatusBadRequest)
	default:
		log.Printf("messaging: internal error: %v", err)
		utils.ErrorResponse(w, "Internal server error", http.StatusInternalServerError)
	}
}
