package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/Blackspectre-tech/u4c-backends/internal/blockchain"
	"github.com/Blackspectre-tech/u4c-backends/internal/models"
	"github.com/Blackspectre-tech/u4c-backends/internal/repository"
	"github.com/Blackspectre-tech/u4c-backends/pkg/errors"
	"github.com/Blackspectre-tech/u4c-backends/pkg/logger"

	"github.com/shopspring/decimal"
)

var (
	ErrCampaignNotFound    = stderrors.New("no matching campaign")
	ErrAmbiguousCampaign   = stderrors.New("more than one campaign matches")
	ErrTransactionNotFound = stderrors.New("no pending transaction matches")
	ErrMilestoneNotFound   = stderrors.New("no milestone matches amount")
	ErrDonationNotFound    = stderrors.New("no donation for backer")
	ErrDonationRefunded    = stderrors.New("donation already refunded")
	ErrNotRefundable       = stderrors.New("donation is not refundable")
	ErrAuditRecordNotFound = stderrors.New("audit record not found")
)

const (
	stateSucceeded uint8 = 1
	stateFailed    uint8 = 2
)

func reconcileError(msg string, err error) error {
	return errors.New(errors.ErrReconcile, msg, err)
}

func ledgerError(msg string, err error) error {
	return errors.New(errors.ErrLedgerUpdate, msg, err)
}

// onCampaignCreated confirms the off-chain project the contract campaign was
// deployed for. The project is matched on payout wallet and goal.
func (r *Reconciler) onCampaignCreated(ctx context.Context, tx *repository.Store, rec blockchain.LogRecord, e blockchain.CampaignCreatedEvent) (handleResult, error) {
	id, err := contractID(e.ID)
	if err != nil {
		return handleResult{}, reconcileError("invalid CampaignCreated", err)
	}
	goal := tokenAmount(e.Goal, r.cfg.TokenDecimals)
	creator := strings.ToLower(e.Creator.Hex())

	candidates, err := tx.Projects.FindDeployCandidates(ctx, creator)
	if err != nil {
		return handleResult{}, ledgerError("failed to load deploy candidates", err)
	}
	var matches []models.Project
	for _, p := range candidates {
		if p.Goal.Round(2).Equal(goal) {
			matches = append(matches, p)
		}
	}
	switch len(matches) {
	case 0:
		return handleResult{}, reconcileError(fmt.Sprintf("campaign %d: creator %s goal %s", id, creator, goal), ErrCampaignNotFound)
	case 1:
	default:
		return handleResult{}, reconcileError(fmt.Sprintf("campaign %d: %d projects match creator %s goal %s", id, len(matches), creator, goal), ErrAmbiguousCampaign)
	}
	project := matches[0]

	deadline := time.Unix(int64(e.Deadline), 0).UTC()
	if err := tx.Projects.MarkDeployed(ctx, project.ID, id, deadline); err != nil {
		return handleResult{}, ledgerError(fmt.Sprintf("failed to mark project %d deployed", project.ID), err)
	}

	first, err := tx.Milestones.GetByNumber(ctx, project.ID, 1)
	if err != nil {
		return handleResult{}, ledgerError("failed to load first milestone", err)
	}
	if first != nil {
		if err := tx.Milestones.SetStatus(ctx, first.ID, models.MilestoneActive); err != nil {
			return handleResult{}, ledgerError("failed to activate first milestone", err)
		}
	} else {
		logger.WithFields(map[string]interface{}{
			"project_id": project.ID,
		}).Warn("deployed project has no milestones")
	}

	wallet, err := tx.Wallets.GetOrCreate(ctx, creator)
	if err != nil {
		return handleResult{}, ledgerError("failed to resolve creator wallet", err)
	}
	if err := tx.Transactions.Create(ctx, &models.Transaction{
		WalletID:  wallet.ID,
		ProjectID: &project.ID,
		Kind:      models.TxKindCampaignDeployment,
		Status:    models.TxStatusSuccessful,
		TxHash:    rec.TxHash,
	}); err != nil {
		return handleResult{}, ledgerError("failed to record deployment transaction", err)
	}

	logger.WithFields(map[string]interface{}{
		"project_id":  project.ID,
		"contract_id": id,
		"deadline":    deadline,
	}).Info("campaign deployed")
	return handleResult{outcome: OutcomeApplied}, nil
}

// onPledged settles the staged pledge intent and advances the project.
func (r *Reconciler) onPledged(ctx context.Context, tx *repository.Store, rec blockchain.LogRecord, e blockchain.PledgedEvent) (handleResult, error) {
	id, err := contractID(e.ID)
	if err != nil {
		return handleResult{}, reconcileError("invalid Pledged", err)
	}

	project, err := tx.Projects.LockByContractID(ctx, id)
	if err != nil {
		return handleResult{}, ledgerError("failed to load project", err)
	}
	if project == nil {
		return handleResult{}, reconcileError(fmt.Sprintf("campaign %d", id), ErrCampaignNotFound)
	}

	net := tokenAmount(e.NetAmount, r.cfg.TokenDecimals)
	tip := tokenAmount(e.TipAmount, r.cfg.TokenDecimals)
	backer := strings.ToLower(e.Backer.Hex())

	pending, err := tx.Transactions.FindPending(ctx, backer, project.ID)
	if err != nil {
		return handleResult{}, ledgerError("failed to load pending transactions", err)
	}
	var match *models.Transaction
	for i := range pending {
		if pending[i].Amount.Equal(net) && pending[i].Tip.Equal(tip) {
			match = &pending[i]
			break
		}
	}
	if match == nil {
		return handleResult{}, reconcileError(fmt.Sprintf("campaign %d: backer %s amount %s tip %s", id, backer, net, tip), ErrTransactionNotFound)
	}

	donation, err := tx.Donations.GetByProjectWallet(ctx, project.ID, match.WalletID)
	if err != nil {
		return handleResult{}, ledgerError("failed to load donation", err)
	}
	if donation != nil && donation.Refunded {
		return handleResult{}, reconcileError(fmt.Sprintf("campaign %d: backer %s", id, backer), ErrDonationRefunded)
	}

	if err := tx.Projects.AddFunds(ctx, project.ID, net); err != nil {
		return handleResult{}, ledgerError("failed to add funds", err)
	}
	updated, err := tx.Projects.GetByID(ctx, project.ID)
	if err != nil || updated == nil {
		return handleResult{}, ledgerError("failed to reload project", err)
	}
	total := updated.TotalFunds
	if err := tx.Projects.UpdateProgress(ctx, project.ID, progressOf(total, updated.Goal)); err != nil {
		return handleResult{}, ledgerError("failed to update progress", err)
	}

	finished, err := advanceMilestones(ctx, tx, project.ID, total)
	if err != nil {
		return handleResult{}, err
	}

	if err := tx.Transactions.MarkSuccessful(ctx, match.ID, rec.TxHash); err != nil {
		return handleResult{}, ledgerError(fmt.Sprintf("failed to settle transaction %d", match.ID), err)
	}

	if donation == nil {
		err = tx.Donations.Create(ctx, &models.Donation{
			ProjectID: project.ID,
			WalletID:  match.WalletID,
			Amount:    net,
		})
	} else {
		err = tx.Donations.AddAmount(ctx, donation.ID, net)
	}
	if err != nil {
		return handleResult{}, ledgerError("failed to record donation", err)
	}

	logger.WithFields(map[string]interface{}{
		"project_id":  project.ID,
		"contract_id": id,
		"backer":      backer,
		"amount":      net.String(),
		"total_funds": total.String(),
	}).Info("pledge reconciled")

	res := handleResult{outcome: OutcomeApplied}
	if finished {
		res.finalize = e.ID
	}
	return res, nil
}

// advanceMilestones completes the active milestone while total covers its
// goal, activating the next one each time. It reports whether the last
// milestone was completed by this call.
func advanceMilestones(ctx context.Context, tx *repository.Store, projectID uint64, total decimal.Decimal) (bool, error) {
	milestones, err := tx.Milestones.ListByProject(ctx, projectID)
	if err != nil {
		return false, ledgerError("failed to load milestones", err)
	}

	finished := false
	for i, m := range milestones {
		if m.Status != models.MilestoneActive {
			continue
		}
		if total.LessThan(m.Goal) {
			break
		}
		if err := tx.Milestones.SetStatus(ctx, m.ID, models.MilestoneCompleted); err != nil {
			return false, ledgerError("failed to complete milestone", err)
		}
		logger.WithFields(map[string]interface{}{
			"project_id":   projectID,
			"milestone_no": m.MilestoneNo,
		}).Info("milestone completed")

		if i+1 == len(milestones) {
			finished = true
			break
		}
		next := &milestones[i+1]
		if err := tx.Milestones.SetStatus(ctx, next.ID, models.MilestoneActive); err != nil {
			return false, ledgerError("failed to activate milestone", err)
		}
		next.Status = models.MilestoneActive
	}
	return finished, nil
}

func (r *Reconciler) onCampaignStateChanged(ctx context.Context, tx *repository.Store, e blockchain.CampaignStateChangedEvent) (handleResult, error) {
	id, err := contractID(e.ID)
	if err != nil {
		return handleResult{}, reconcileError("invalid CampaignStateChanged", err)
	}
	project, err := tx.Projects.LockByContractID(ctx, id)
	if err != nil {
		return handleResult{}, ledgerError("failed to load project", err)
	}
	if project == nil {
		return handleResult{}, reconcileError(fmt.Sprintf("campaign %d", id), ErrCampaignNotFound)
	}

	fields := map[string]interface{}{
		"project_id":  project.ID,
		"contract_id": id,
		"new_state":   e.NewState,
	}

	switch e.NewState {
	case stateSucceeded:
		if err := tx.Projects.UpdateStatus(ctx, project.ID, models.ProjectCompleted); err != nil {
			return handleResult{}, ledgerError("failed to update status", err)
		}
	case stateFailed:
		if err := tx.Projects.UpdateStatus(ctx, project.ID, models.ProjectFailed); err != nil {
			return handleResult{}, ledgerError("failed to update status", err)
		}
		n, err := tx.Donations.MarkAllRefundable(ctx, project.ID)
		if err != nil {
			return handleResult{}, ledgerError("failed to unlock refunds", err)
		}
		fields["refundable"] = n
	default:
		logger.WithFields(fields).Info("campaign state change ignored")
		return handleResult{outcome: OutcomeIgnored}, nil
	}

	logger.WithFields(fields).Info("campaign state changed")
	return handleResult{outcome: OutcomeApplied}, nil
}

// findMilestone returns the milestone of a deployed campaign whose goal
// equals the on-chain amount.
func (r *Reconciler) findMilestone(ctx context.Context, tx *repository.Store, id uint64, amount decimal.Decimal) (*models.Project, *models.Milestone, error) {
	project, err := tx.Projects.GetByContractID(ctx, id)
	if err != nil {
		return nil, nil, ledgerError("failed to load project", err)
	}
	if project == nil {
		return nil, nil, reconcileError(fmt.Sprintf("campaign %d", id), ErrCampaignNotFound)
	}
	milestones, err := tx.Milestones.ListByProject(ctx, project.ID)
	if err != nil {
		return nil, nil, ledgerError("failed to load milestones", err)
	}
	for i := range milestones {
		if milestones[i].Goal.Round(2).Equal(amount) {
			return project, &milestones[i], nil
		}
	}
	return nil, nil, reconcileError(fmt.Sprintf("campaign %d amount %s", id, amount), ErrMilestoneNotFound)
}

func (r *Reconciler) onMilestoneApproved(ctx context.Context, tx *repository.Store, e blockchain.MilestoneApprovedEvent) (handleResult, error) {
	id, err := contractID(e.ID)
	if err != nil {
		return handleResult{}, reconcileError("invalid MilestoneApproved", err)
	}
	project, milestone, err := r.findMilestone(ctx, tx, id, tokenAmount(e.Amount, r.cfg.TokenDecimals))
	if err != nil {
		return handleResult{}, err
	}
	if milestone.Approved {
		return handleResult{outcome: OutcomeIgnored}, nil
	}
	if err := tx.Milestones.SetApproved(ctx, milestone.ID); err != nil {
		return handleResult{}, ledgerError("failed to approve milestone", err)
	}

	logger.WithFields(map[string]interface{}{
		"project_id":   project.ID,
		"milestone_no": milestone.MilestoneNo,
	}).Info("milestone approved")
	return handleResult{outcome: OutcomeApplied}, nil
}

// onMilestoneWithdrawn flags the milestone and records the payout for the
// sender of the withdrawing transaction.
func (r *Reconciler) onMilestoneWithdrawn(ctx context.Context, tx *repository.Store, rec blockchain.LogRecord, e blockchain.MilestoneWithdrawnEvent) (handleResult, error) {
	id, err := contractID(e.ID)
	if err != nil {
		return handleResult{}, reconcileError("invalid MilestoneWithdrawn", err)
	}
	amount := tokenAmount(e.Amount, r.cfg.TokenDecimals)
	project, milestone, err := r.findMilestone(ctx, tx, id, amount)
	if err != nil {
		return handleResult{}, err
	}
	if milestone.Withdrawn {
		return handleResult{outcome: OutcomeIgnored}, nil
	}
	if err := tx.Milestones.SetWithdrawn(ctx, milestone.ID); err != nil {
		return handleResult{}, ledgerError("failed to flag withdrawal", err)
	}

	sender := rec.From
	if sender == "" {
		sender = strings.ToLower(project.WalletAddress)
		logger.WithFields(map[string]interface{}{
			"tx_hash":    rec.TxHash,
			"project_id": project.ID,
		}).Warn("withdrawal sender unknown, using project wallet")
	}
	wallet, err := tx.Wallets.GetOrCreate(ctx, sender)
	if err != nil {
		return handleResult{}, ledgerError("failed to resolve sender wallet", err)
	}
	if err := tx.Transactions.Create(ctx, &models.Transaction{
		WalletID:  wallet.ID,
		ProjectID: &project.ID,
		Kind:      models.TxKindMilestoneWithdrawal,
		Status:    models.TxStatusSuccessful,
		Amount:    amount,
		TxHash:    rec.TxHash,
	}); err != nil {
		return handleResult{}, ledgerError("failed to record withdrawal transaction", err)
	}

	logger.WithFields(map[string]interface{}{
		"project_id":   project.ID,
		"milestone_no": milestone.MilestoneNo,
		"amount":       amount.String(),
	}).Info("milestone withdrawn")
	return handleResult{outcome: OutcomeApplied}, nil
}

func (r *Reconciler) onRefunded(ctx context.Context, tx *repository.Store, rec blockchain.LogRecord, e blockchain.RefundedEvent) (handleResult, error) {
	id, err := contractID(e.ID)
	if err != nil {
		return handleResult{}, reconcileError("invalid Refunded", err)
	}
	project, err := tx.Projects.GetByContractID(ctx, id)
	if err != nil {
		return handleResult{}, ledgerError("failed to load project", err)
	}
	if project == nil {
		return handleResult{}, reconcileError(fmt.Sprintf("campaign %d", id), ErrCampaignNotFound)
	}

	backer := strings.ToLower(e.Backer.Hex())
	donation, err := tx.Donations.GetByProjectAddress(ctx, project.ID, backer)
	if err != nil {
		return handleResult{}, ledgerError("failed to load donation", err)
	}
	if donation == nil {
		return handleResult{}, reconcileError(fmt.Sprintf("campaign %d: backer %s", id, backer), ErrDonationNotFound)
	}
	if donation.Refunded {
		return handleResult{outcome: OutcomeIgnored}, nil
	}
	if !donation.Refundable {
		return handleResult{}, reconcileError(fmt.Sprintf("campaign %d: backer %s", id, backer), ErrNotRefundable)
	}

	if err := tx.Donations.MarkRefunded(ctx, donation.ID); err != nil {
		return handleResult{}, ledgerError("failed to mark donation refunded", err)
	}
	amount := tokenAmount(e.Amount, r.cfg.TokenDecimals)
	if err := tx.Transactions.Create(ctx, &models.Transaction{
		WalletID:  donation.WalletID,
		ProjectID: &project.ID,
		Kind:      models.TxKindRefund,
		Status:    models.TxStatusSuccessful,
		Amount:    amount,
		TxHash:    rec.TxHash,
	}); err != nil {
		return handleResult{}, ledgerError("failed to record refund transaction", err)
	}

	logger.WithFields(map[string]interface{}{
		"project_id": project.ID,
		"backer":     backer,
		"amount":     amount.String(),
	}).Info("refund reconciled")
	return handleResult{outcome: OutcomeApplied}, nil
}

// onAcknowledged handles contract administration events. They carry no
// ledger state; claiming the dedup key is all that is persisted.
func (r *Reconciler) onAcknowledged(rec blockchain.LogRecord, ev blockchain.Event) (handleResult, error) {
	fields := map[string]interface{}{
		"event":   ev.Kind(),
		"tx_hash": rec.TxHash,
	}
	switch e := ev.(type) {
	case blockchain.UnpledgedEvent:
		fields["campaign_id"] = e.ID.String()
		fields["backer"] = strings.ToLower(e.Backer.Hex())
		fields["amount"] = tokenAmount(e.Amount, r.cfg.TokenDecimals).String()
	case blockchain.PlatformWalletUpdatedEvent:
		fields["wallet"] = e.Wallet.Hex()
	case blockchain.FeeUpdatedEvent:
		fields["fee_bps"] = e.FeeBps.String()
	case blockchain.TokenAllowlistUpdatedEvent:
		fields["token"] = e.Token.Hex()
		fields["allowed"] = e.Allowed
	case blockchain.PausedEvent:
		fields["account"] = e.Account.Hex()
	case blockchain.UnpausedEvent:
		fields["account"] = e.Account.Hex()
	case blockchain.OwnershipTransferredEvent:
		fields["previous_owner"] = e.PreviousOwner.Hex()
		fields["new_owner"] = e.NewOwner.Hex()
	}
	logger.WithFields(fields).Info("contract event acknowledged")
	return handleResult{outcome: OutcomeIgnored}, nil
}
