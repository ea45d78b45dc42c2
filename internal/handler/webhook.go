package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	stderrors "errors"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/Blackspectre-tech/u4c-backends/internal/blockchain"
	"github.com/Blackspectre-tech/u4c-backends/internal/config"
	"github.com/Blackspectre-tech/u4c-backends/internal/models"
	"github.com/Blackspectre-tech/u4c-backends/internal/service"
	"github.com/Blackspectre-tech/u4c-backends/pkg/logger"
)

var errNoLogs = stderrors.New("no log received")

type WebhookHandler struct {
	reconciler *service.Reconciler
	audit      *service.AuditSink
	cfg        config.WebhookConfig
	warnOnce   sync.Once
}

func NewWebhookHandler(reconciler *service.Reconciler, audit *service.AuditSink, cfg config.WebhookConfig) *WebhookHandler {
	if cfg.SignatureHeader == "" {
		cfg.SignatureHeader = "X-Alchemy-Signature"
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 5 << 20
	}
	return &WebhookHandler{reconciler: reconciler, audit: audit, cfg: cfg}
}

// Alchemy receives contract log deliveries. Only a bad method, a bad
// signature or an unparsable body are rejected; per-log failures are
// reported in the body with status 200.
func (h *WebhookHandler) Alchemy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"status": "invalid method"})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.cfg.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"status": "payload too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "unreadable body"})
		return
	}

	if !h.verify(body, r.Header.Get(h.cfg.SignatureHeader)) {
		logger.WithFields(map[string]interface{}{
			"request_id": requestIDFromContext(r.Context()),
		}).Warn("webhook signature mismatch")
		writeJSON(w, http.StatusUnauthorized, map[string]string{"status": "invalid signature"})
		return
	}

	delivery, err := blockchain.ParseDelivery(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "invalid JSON"})
		return
	}

	if len(delivery.Logs()) == 0 {
		h.audit.Record(r.Context(), service.Failure{
			Stage:   models.AuditStageRequest,
			Payload: body,
			Err:     errNoLogs,
		})
		writeJSON(w, http.StatusOK, map[string]string{"status": "no logs received"})
		return
	}

	report := h.reconciler.ProcessDelivery(r.Context(), body, delivery)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"results": report.Results,
	})
}

// verify checks the hex HMAC-SHA256 of body. With no signing key configured
// every delivery is accepted.
func (h *WebhookHandler) verify(body []byte, signature string) bool {
	if h.cfg.SigningKey == "" {
		h.warnOnce.Do(func() {
			logger.Warn("webhook signing key not set; signature verification disabled")
		})
		return true
	}
	got, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(signature), "0x"))
	if err != nil || len(got) == 0 {
		return false
	}
	return hmac.Equal(got, Sign([]byte(h.cfg.SigningKey), body))
}

// Sign returns HMAC-SHA256(key, body).
func Sign(key, body []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(body)
	return mac.Sum(nil)
}
