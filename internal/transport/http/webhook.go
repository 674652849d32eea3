package http

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"fils-quiz-bot/internal/telegram"
	"go.uber.org/zap"
)

// SecretHeader carries the secret registered with setWebhook.
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

const maxUpdateBytes = 1 << 20

// UpdateProcessor handles one decoded update (telegram.UpdateHandler).
type UpdateProcessor interface {
	HandleUpdate(ctx context.Context, upd telegram.Update) error
}

// WebhookHandler receives Telegram updates over HTTPS.
type WebhookHandler struct {
	updates UpdateProcessor
	secret  string
	logger  *zap.Logger
}

func NewWebhookHandler(updates UpdateProcessor, secret string, logger *zap.Logger) *WebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{updates: updates, secret: secret, logger: logger}
}

// ServeHTTP answers {"ok":true} for every well-formed update, including ones that failed downstream.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.secret != "" {
		got := r.Header.Get(SecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"ok": false, "error": "invalid secret token"})
			return
		}
	}

	var upd telegram.Update
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUpdateBytes)).Decode(&upd); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "invalid update payload"})
		return
	}
	if err := h.updates.HandleUpdate(r.Context(), upd); err != nil {
		h.logger.Error("handle update", zap.Int64("update_id", upd.UpdateID), zap.Error(err))
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
