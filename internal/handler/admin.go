package handler

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"github.com/Blackspectre-tech/u4c-backends/internal/blockchain"
	"github.com/Blackspectre-tech/u4c-backends/internal/service"
	"github.com/Blackspectre-tech/u4c-backends/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
)

// OwnerActions is satisfied by *blockchain.OwnerTransactor.
type OwnerActions interface {
	Pause(ctx context.Context) (string, error)
	Unpause(ctx context.Context) (string, error)
	SetFeeBps(ctx context.Context, feeBps *big.Int) (string, error)
	SetPlatformWallet(ctx context.Context, wallet common.Address) (string, error)
	SetTokenAllowed(ctx context.Context, token common.Address, allowed bool) (string, error)
	TransferOwnership(ctx context.Context, newOwner common.Address) (string, error)
	ApproveMilestone(ctx context.Context, id, index *big.Int) (string, error)
	Finalize(ctx context.Context, id *big.Int) (string, error)
}

type AdminHandler struct {
	actions OwnerActions
}

func NewAdminHandler(actions OwnerActions) *AdminHandler {
	return &AdminHandler{actions: actions}
}

func writeOK(w http.ResponseWriter, txHash string) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "tx_hash": txHash})
}

func writeFail(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]interface{}{"ok": false, "error": message})
}

// respond writes the result of an owner transaction.
func (h *AdminHandler) respond(w http.ResponseWriter, action string, txHash string, err error) {
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"action": action,
		}).WithError(err).Error("owner transaction failed")
		status := http.StatusInternalServerError
		if stderrors.Is(err, blockchain.ErrMissingOwnerKey) {
			status = http.StatusServiceUnavailable
		}
		writeFail(w, status, err.Error())
		return
	}
	writeOK(w, txHash)
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	return dec.Decode(v)
}

// flexBool accepts true/false or the strings "true", "1", "yes".
type flexBool struct {
	set   bool
	value bool
}

func (b *flexBool) UnmarshalJSON(data []byte) error {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case bool:
		b.set, b.value = true, t
	case string:
		s := strings.ToLower(strings.TrimSpace(t))
		b.set, b.value = true, s == "true" || s == "1" || s == "yes"
	case float64:
		b.set, b.value = true, t != 0
	case nil:
	default:
		return fmt.Errorf("invalid boolean %v", v)
	}
	return nil
}

// parseUint accepts a JSON number or numeric string.
func parseUint(raw json.RawMessage) (*big.Int, bool) {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if s == "" || s == "null" {
		return nil, false
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok || n.Sign() < 0 {
		return nil, false
	}
	return n, true
}

func parseAddress(s string) (common.Address, bool) {
	if !common.IsHexAddress(s) {
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}

func (h *AdminHandler) Pause(w http.ResponseWriter, r *http.Request) {
	hash, err := h.actions.Pause(r.Context())
	h.respond(w, "pause", hash, err)
}

func (h *AdminHandler) Unpause(w http.ResponseWriter, r *http.Request) {
	hash, err := h.actions.Unpause(r.Context())
	h.respond(w, "unpause", hash, err)
}

func (h *AdminHandler) SetFeeBps(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FeeBps json.RawMessage `json:"fee_bps"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeFail(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.FeeBps) == 0 {
		writeFail(w, http.StatusBadRequest, "fee_bps required")
		return
	}
	fee, ok := parseUint(req.FeeBps)
	if !ok {
		writeFail(w, http.StatusBadRequest, "fee_bps must be integer")
		return
	}
	hash, err := h.actions.SetFeeBps(r.Context(), fee)
	h.respond(w, "set_fee_bps", hash, err)
}

func (h *AdminHandler) SetPlatformWallet(w http.ResponseWriter, r *http.Request) {
	var req struct {
		WalletAddress string `json:"wallet_address"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeFail(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.WalletAddress == "" {
		writeFail(w, http.StatusBadRequest, "wallet_address required")
		return
	}
	wallet, ok := parseAddress(req.WalletAddress)
	if !ok {
		writeFail(w, http.StatusBadRequest, "invalid wallet_address")
		return
	}
	hash, err := h.actions.SetPlatformWallet(r.Context(), wallet)
	h.respond(w, "set_platform_wallet", hash, err)
}

func (h *AdminHandler) SetAllowedToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TokenAddress string   `json:"token_address"`
		Allowed      flexBool `json:"allowed"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeFail(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.TokenAddress == "" || !req.Allowed.set {
		writeFail(w, http.StatusBadRequest, "token_address and allowed required")
		return
	}
	token, ok := parseAddress(req.TokenAddress)
	if !ok {
		writeFail(w, http.StatusBadRequest, "invalid token_address")
		return
	}
	hash, err := h.actions.SetTokenAllowed(r.Context(), token, req.Allowed.value)
	h.respond(w, "set_allowed_token", hash, err)
}

func (h *AdminHandler) TransferOwnership(w http.ResponseWriter, r *http.Request) {
	var req struct {
		NewOwner string `json:"new_owner"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeFail(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.NewOwner == "" {
		writeFail(w, http.StatusBadRequest, "new_owner required")
		return
	}
	owner, ok := parseAddress(req.NewOwner)
	if !ok {
		writeFail(w, http.StatusBadRequest, "invalid new_owner")
		return
	}
	hash, err := h.actions.TransferOwnership(r.Context(), owner)
	h.respond(w, "transfer_ownership", hash, err)
}

func (h *AdminHandler) ApproveMilestone(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CampaignID json.RawMessage `json:"campaign_id"`
		Index      json.RawMessage `json:"index"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeFail(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	id, okID := parseUint(req.CampaignID)
	index, okIndex := parseUint(req.Index)
	if !okID || !okIndex {
		writeFail(w, http.StatusBadRequest, "campaign_id and index must be non-negative integers")
		return
	}
	hash, err := h.actions.ApproveMilestone(r.Context(), id, index)
	h.respond(w, "approve_milestone", hash, err)
}

func (h *AdminHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CampaignID json.RawMessage `json:"campaign_id"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeFail(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	id, ok := parseUint(req.CampaignID)
	if !ok {
		writeFail(w, http.StatusBadRequest, "campaign_id must be a non-negative integer")
		return
	}
	hash, err := h.actions.Finalize(r.Context(), id)
	h.respond(w, "finalize", hash, err)
}

// DriftTrigger is satisfied by *scheduler.DriftScheduler.
type DriftTrigger interface {
	TriggerManualCheck(ctx context.Context) (*service.DriftReport, error)
}

type DriftHandler struct {
	trigger DriftTrigger
}

func NewDriftHandler(trigger DriftTrigger) *DriftHandler {
	return &DriftHandler{trigger: trigger}
}

// Check runs one ledger/contract comparison and returns the report.
func (h *DriftHandler) Check(w http.ResponseWriter, r *http.Request) {
	report, err := h.trigger.TriggerManualCheck(r.Context())
	if err != nil {
		writeFail(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "report": report})
}
