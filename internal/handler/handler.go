package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

func HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// Handlers groups everything NewRouter mounts. Nil members leave their
// routes unmounted.
type Handlers struct {
	Webhook    *WebhookHandler
	Admin      *AdminHandler
	Contract   *ContractHandler
	Audit      *AuditHandler
	Pledges    *PledgeHandler
	Drift      *DriftHandler
	AdminToken string
}

func NewRouter(h Handlers) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware)
	r.Use(loggingMiddleware)

	r.Get("/health", HandleHealth)

	if h.Webhook != nil {
		// Method is checked by the handler so the provider gets a JSON 405.
		r.HandleFunc("/webhook/alchemy", h.Webhook.Alchemy)
	}

	r.Route("/api", func(r chi.Router) {
		if h.Pledges != nil {
			r.Post("/pledge-intents", h.Pledges.Create)
		}
		if h.Contract != nil {
			r.Get("/contract/status", h.Contract.Status)
			r.Get("/contract/campaigns/{id}", h.Contract.Campaign)
			r.Get("/contract/campaigns/{id}/milestones/{index}", h.Contract.Milestone)
		}

		r.Group(func(r chi.Router) {
			r.Use(adminAuth(h.AdminToken))
			if h.Audit != nil {
				r.Get("/audit", h.Audit.List)
				r.Post("/audit/{key}/replay", h.Audit.Replay)
			}
			if h.Admin != nil {
				r.Post("/admin/pause", h.Admin.Pause)
				r.Post("/admin/unpause", h.Admin.Unpause)
				r.Post("/admin/set-fee-bps", h.Admin.SetFeeBps)
				r.Post("/admin/set-platform-wallet", h.Admin.SetPlatformWallet)
				r.Post("/admin/set-allowed-token", h.Admin.SetAllowedToken)
				r.Post("/admin/transfer-ownership", h.Admin.TransferOwnership)
				r.Post("/admin/approve-milestone", h.Admin.ApproveMilestone)
				r.Post("/admin/finalize", h.Admin.Finalize)
			}
			if h.Drift != nil {
				r.Post("/admin/drift-check", h.Drift.Check)
			}
		})
	})

	return r
}
