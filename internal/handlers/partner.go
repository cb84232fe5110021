package handlers

import (
	"net/http"

	"together-backend/internal/middleware"
	"together-backend/internal/services"
)

// PartnerHandler handles partner invitations and linking
type PartnerHandler struct {
	partnerService *services.PartnerService
}

// NewPartnerHandler creates a new partner handler
func NewPartnerHandler(partnerService *services.PartnerService) *PartnerHandler {
	return &PartnerHandler{partnerService: partnerService}
}

// InvitationRequest identifies an invitation to respond to
type InvitationRequest struct {
	InvitationID string `json:"invitation_id"`
}

// Status handles GET /api/auth/partner/status
func (h *PartnerHandler) Status(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	overview, err := h.partnerService.Overview(r.Context(), userID)
	if err != nil {
		respondServiceError(w, err, userID, "get partner status")
		return
	}
	respondJSON(w, http.StatusOK, overview)
}

// Invite handles POST /api/auth/partner/invite
func (h *PartnerHandler) Invite(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req services.InviteRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := h.partnerService.Invite(r.Context(), userID, req)
	if err != nil {
		respondServiceError(w, err, userID, "send invitation")
		return
	}

	status := http.StatusCreated
	if result.Existing {
		status = http.StatusOK
	}
	respondJSON(w, status, result)
}

// Accept handles POST /api/auth/partner/accept
func (h *PartnerHandler) Accept(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req InvitationRequest
	if !decodeBody(w, r, &req) {
		return
	}

	overview, err := h.partnerService.Accept(r.Context(), userID, req.InvitationID)
	if err != nil {
		respondServiceError(w, err, userID, "accept invitation")
		return
	}
	respondJSON(w, http.StatusOK, overview)
}

// Reject handles POST /api/auth/partner/reject
func (h *PartnerHandler) Reject(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req InvitationRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := h.partnerService.Reject(r.Context(), userID, req.InvitationID); err != nil {
		respondServiceError(w, err, userID, "reject invitation")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "rejected"})
}

// Cancel handles POST /api/auth/partner/cancel
func (h *PartnerHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req InvitationRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := h.partnerService.CancelInvitation(r.Context(), userID, req.InvitationID); err != nil {
		respondServiceError(w, err, userID, "cancel invitation")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// Disconnect handles DELETE /api/auth/partner
func (h *PartnerHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	if err := h.partnerService.Disconnect(r.Context(), userID); err != nil {
		respondServiceError(w, err, userID, "disconnect partner")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "disconnected"})
}
