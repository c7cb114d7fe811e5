package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"gwi.com/streak-chat/internal/core"
	"gwi.com/streak-chat/internal/store"
)

type APIHandler struct {
	chatService *core.ChatService
	accounts    *core.AccountService
	stylePacks  *core.StylePackService
}

func NewAPIHandler(cs *core.ChatService, as *core.AccountService, ss *core.StylePackService) *APIHandler {
	return &APIHandler{chatService: cs, accounts: as, stylePacks: ss}
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", core.ErrValidation, err)
	}
	return nil
}

type CredentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *APIHandler) SignupHandler(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	user, err := h.accounts.Signup(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	token, err := h.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (h *APIHandler) ChatHandler(w http.ResponseWriter, r *http.Request) {
	var req core.TurnRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	result, err := h.chatService.HandleTurn(r.Context(), UserID(r.Context()), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *APIHandler) ListConversationsHandler(w http.ResponseWriter, r *http.Request) {
	conversations, err := h.chatService.ListConversations(r.Context(), UserID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if conversations == nil {
		conversations = []store.Conversation{}
	}
	writeJSON(w, http.StatusOK, conversations)
}

type GetConversationResponse struct {
	*store.Conversation
	Messages []store.Message `json:"messages"`
}

func (h *APIHandler) GetConversationHandler(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")

	conv, messages, err := h.chatService.GetConversation(r.Context(), conversationID, UserID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if messages == nil {
		messages = []store.Message{}
	}
	writeJSON(w, http.StatusOK, GetConversationResponse{Conversation: conv, Messages: messages})
}

func (h *APIHandler) DeleteConversationHandler(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")

	if err := h.chatService.DeleteConversation(r.Context(), conversationID, UserID(r.Context())); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) ProfileHandler(w http.ResponseWriter, r *http.Request) {
	profile, err := h.accounts.Profile(r.Context(), UserID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (h *APIHandler) RewardsHandler(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, r, fmt.Errorf("%w: limit must be a non-negative integer", core.ErrValidation))
			return
		}
		limit = n
	}

	entries, err := h.accounts.Ledger(r.Context(), UserID(r.Context()), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []store.LedgerEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *APIHandler) ListStylePacksHandler(w http.ResponseWriter, r *http.Request) {
	packs, err := h.stylePacks.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if packs == nil {
		packs = []store.StylePack{}
	}
	writeJSON(w, http.StatusOK, packs)
}

func (h *APIHandler) PurchasedStylePacksHandler(w http.ResponseWriter, r *http.Request) {
	packs, err := h.stylePacks.Purchased(r.Context(), UserID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if packs == nil {
		packs = []store.PurchasedStylePack{}
	}
	writeJSON(w, http.StatusOK, packs)
}

func (h *APIHandler) PurchaseStylePackHandler(w http.ResponseWriter, r *http.Request) {
	stylePackID := chi.URLParam(r, "stylePackID")

	purchase, err := h.stylePacks.Purchase(r.Context(), UserID(r.Context()), stylePackID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, purchase)
}
