package handler

import (
	"context"
	stderrors "errors"
	"math/big"
	"net/http"
	"strconv"

	"github.com/Blackspectre-tech/u4c-backends/internal/blockchain"
	"github.com/Blackspectre-tech/u4c-backends/internal/service"
	"github.com/Blackspectre-tech/u4c-backends/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// ContractReader is the read side of *blockchain.Client.
type ContractReader interface {
	Owner(ctx context.Context) (common.Address, error)
	Paused(ctx context.Context) (bool, error)
	FeeBps(ctx context.Context) (*big.Int, error)
	PlatformWallet(ctx context.Context) (common.Address, error)
	CampaignCount(ctx context.Context) (*big.Int, error)
	GetCampaignCore(ctx context.Context, id *big.Int) (*blockchain.CampaignCore, error)
	GetMilestone(ctx context.Context, id, index *big.Int) (*blockchain.MilestoneInfo, error)
}

type ContractHandler struct {
	reader ContractReader
}

func NewContractHandler(reader ContractReader) *ContractHandler {
	return &ContractHandler{reader: reader}
}

// Status reports the contract's global settings.
func (h *ContractHandler) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner, err := h.reader.Owner(ctx)
	if err != nil {
		writeChainError(w, err)
		return
	}
	paused, err := h.reader.Paused(ctx)
	if err != nil {
		writeChainError(w, err)
		return
	}
	fee, err := h.reader.FeeBps(ctx)
	if err != nil {
		writeChainError(w, err)
		return
	}
	wallet, err := h.reader.PlatformWallet(ctx)
	if err != nil {
		writeChainError(w, err)
		return
	}
	count, err := h.reader.CampaignCount(ctx)
	if err != nil {
		writeChainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"owner":           owner.Hex(),
		"paused":          paused,
		"fee_bps":         fee.String(),
		"platform_wallet": wallet.Hex(),
		"campaign_count":  count.String(),
	})
}

func (h *ContractHandler) Campaign(w http.ResponseWriter, r *http.Request) {
	id, ok := new(big.Int).SetString(chi.URLParam(r, "id"), 10)
	if !ok || id.Sign() < 0 {
		writeError(w, http.StatusBadRequest, "invalid campaign id")
		return
	}
	core, err := h.reader.GetCampaignCore(r.Context(), id)
	if err != nil {
		writeChainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, core)
}

func (h *ContractHandler) Milestone(w http.ResponseWriter, r *http.Request) {
	id, okID := new(big.Int).SetString(chi.URLParam(r, "id"), 10)
	index, okIndex := new(big.Int).SetString(chi.URLParam(r, "index"), 10)
	if !okID || !okIndex || id.Sign() < 0 || index.Sign() < 0 {
		writeError(w, http.StatusBadRequest, "invalid campaign id or milestone index")
		return
	}
	m, err := h.reader.GetMilestone(r.Context(), id, index)
	if err != nil {
		writeChainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func writeChainError(w http.ResponseWriter, err error) {
	logger.WithError(err).Error("contract read failed")
	writeError(w, http.StatusBadGateway, err.Error())
}

// AuditHandler exposes the failure log and replays stored deliveries.
type AuditHandler struct {
	audit      *service.AuditSink
	reconciler *service.Reconciler
}

func NewAuditHandler(audit *service.AuditSink, reconciler *service.Reconciler) *AuditHandler {
	return &AuditHandler{audit: audit, reconciler: reconciler}
}

func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		if n > 500 {
			n = 500
		}
		limit = n
	}
	records, err := h.audit.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"records": records})
}

func (h *AuditHandler) Replay(w http.ResponseWriter, r *http.Request) {
	report, err := h.reconciler.Replay(r.Context(), chi.URLParam(r, "key"))
	if stderrors.Is(err, service.ErrAuditRecordNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type PledgeHandler struct {
	svc *service.PledgeService
}

func NewPledgeHandler(svc *service.PledgeService) *PledgeHandler {
	return &PledgeHandler{svc: svc}
}

type pledgeRequest struct {
	WalletAddress string          `json:"wallet_address"`
	ProjectID     uint64          `json:"project_id"`
	Amount        decimal.Decimal `json:"amount"`
	Tip           decimal.Decimal `json:"tip"`
}

// Create stages a pending pledge for the wallet.
func (h *PledgeHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req pledgeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	tx, superseded, err := h.svc.CreateIntent(r.Context(), service.PledgeIntent{
		WalletAddress: req.WalletAddress,
		ProjectID:     req.ProjectID,
		Amount:        req.Amount,
		Tip:           req.Tip,
	})
	switch {
	case stderrors.Is(err, service.ErrInvalidWallet),
		stderrors.Is(err, service.ErrInvalidAmount),
		stderrors.Is(err, service.ErrProjectNotDeployed):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case stderrors.Is(err, service.ErrProjectNotFound):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		logger.WithError(err).Error("failed to stage pledge intent")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"transaction": tx,
		"superseded":  superseded,
	})
}
