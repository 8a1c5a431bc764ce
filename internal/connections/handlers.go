// internal/connections/handlers.go

package connections

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
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// SendRequest creates a pending connection request
func (h *Handler) SendRequest(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var input SendRequestInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		utils.ErrorResponse(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := utils.ValidateStruct(&input); err != nil {
		utils.ErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	req, err := h.service.SendRequest(r.Context(), identity.UserID, &input)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	utils.SuccessResponse(w, req, http.StatusCreated)
}

// ListRequests returns the caller's pending requests, both directions
func (h *Handler) ListRequests(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	requests, err := h.service.ListRequests(r.Context(), identity.UserID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	utils.SuccessResponse(w, requests, http.StatusOK)
}

// AcceptRequest accepts a pending request and creates the connection
func (h *Handler) AcceptRequest(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	requestID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		utils.ErrorResponse(w, "Invalid request ID", http.StatusBadRequest)
		return
	}

	conn, err := h.service.AcceptRequest(r.Context(), requestID, identity.UserID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	utils.SuccessResponse(w, conn, http.StatusOK)
}

// DeclineRequest declines a pending request
func (h *Handler) DeclineRequest(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	requestID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		utils.ErrorResponse(w, "Invalid request ID", http.StatusBadRequest)
		return
	}

	if err := h.service.DeclineRequest(r.Context(), requestID, identity.UserID); err != nil {
		respondServiceError(w, err)
		return
	}

	utils.MessageResponse(w, "Request declined", http.StatusOK)
}

// WithdrawRequest withdraws the caller's own pending request
func (h *Handler) WithdrawRequest(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	requestID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		utils.ErrorResponse(w, "Invalid request ID", http.StatusBadRequest)
		return
	}

	if err := h.service.WithdrawRequest(r.Context(), requestID, identity.UserID); err != nil {
		respondServiceError(w, err)
		return
	}

	utils.MessageResponse(w, "Request withdrawn", http.StatusOK)
}

// ListConnections returns the caller's accepted connections
func (h *Handler) ListConnections(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conns, err := h.service.ListConnections(r.Context(), identity.UserID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	utils.SuccessResponse(w, conns, http.StatusOK)
}

// respondServiceError maps service errors to HTTP status codes
func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrRequestNotFound):
		utils.ErrorResponse(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrDuplicateRequest),
		errors.Is(err, ErrAlreadyConnected),
		errors.Is(err, ErrSelfRequest),
		errors.Is(err, ErrNotPending):
		utils.ErrorResponse(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrNotRecipient), errors.Is(err, ErrNotRequester):
		utils.ErrorResponse(w, err.Error(), http.StatusForbidden)
	default:
		log.Printf("connections: internal error: %v", err)
		utils.ErrorResponse(w, "Internal server error", http.StatusInternalServerError)
	}
}
