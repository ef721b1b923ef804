package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"pnj.com/jewelry-designer/internal/core"
)

type CreateConversationRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

func (h *APIHandler) CreateConversationHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateConversationRequest
	if err := decodeJSON(r, &req, true); err != nil {
		writeError(w, err)
		return
	}
	conv, err := h.conversations.Create(r.Context(), currentUser(r).ID, req.Title, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

func (h *APIHandler) ListConversationsHandler(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", core.DefaultConversationLimit)
	if err != nil {
		writeError(w, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeError(w, err)
		return
	}
	page, err := h.conversations.List(r.Context(), currentUser(r).ID, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *APIHandler) GetConversationHandler(w http.ResponseWriter, r *http.Request) {
	detail, err := h.conversations.Get(r.Context(), currentUser(r).ID, chi.URLParam(r, "conversationID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (h *APIHandler) DeleteConversationHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.conversations.Delete(r.Context(), currentUser(r).ID, chi.URLParam(r, "conversationID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
