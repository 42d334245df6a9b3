package httpapi

import (
	"errors"
	"net/http"

	"ainstein.io/internal/assistant"
	"ainstein.io/internal/auth"
)

type chatRequest struct {
	Messages []assistant.Message `json:"messages"`
}

type chatResponse struct {
	Content    string `json:"content"`
	TokensUsed int64  `json:"tokensUsed"`
}

func (a *API) handleAssistantChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if a.assistant == nil {
		writeError(w, r, http.StatusServiceUnavailable, "assistant is not configured")
		return
	}

	orgID, ok := auth.OrgFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusForbidden, "assistant requires an organization")
		return
	}

	var req chatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, r, http.StatusBadRequest, "messages are required")
		return
	}

	reply, err := a.assistant.Chat(r.Context(), orgID, req.Messages)
	if err != nil {
		if errors.Is(err, assistant.ErrLimitReached) {
			writeError(w, r, http.StatusPaymentRequired, "ai token limit reached")
			return
		}
		writeError(w, r, http.StatusBadGateway, "assistant request failed")
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{
		Content:    reply.Content,
		TokensUsed: reply.TokensUsed,
	})
}
