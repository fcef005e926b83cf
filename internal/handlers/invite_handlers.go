package handlers

import (
	"context"
	"net/http"

	"groupchat/internal/models"
	"groupchat/internal/services"
)

type InviteHandlers struct {
	invites *services.InviteWorkflow
}

func NewInviteHandlers(invites *services.InviteWorkflow) *InviteHandlers {
	return &InviteHandlers{invites: invites}
}

func (h *InviteHandlers) CreateInvite(w http.ResponseWriter, r *http.Request) {
	roomID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req models.CreateInviteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	invite, err := h.invites.Create(r.Context(), accountFrom(r.Context()).ID, req.ReceiverID, roomID, req.Text)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, invite)
}

func (h *InviteHandlers) ListPending(w http.ResponseWriter, r *http.Request) {
	invites, err := h.invites.ListPendingFor(r.Context(), accountFrom(r.Context()).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, invites)
}

func (h *InviteHandlers) ListSent(w http.ResponseWriter, r *http.Request) {
	invites, err := h.invites.ListSentBy(r.Context(), accountFrom(r.Context()).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, invites)
}

func (h *InviteHandlers) Accept(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, h.invites.Accept)
}

func (h *InviteHandlers) Decline(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, h.invites.Decline)
}

func (h *InviteHandlers) resolve(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, inviteID, actingID int) (*models.Invite, error)) {
	inviteID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	invite, err := fn(r.Context(), inviteID, accountFrom(r.Context()).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, invite)
}
