package service

import (
	"context"
	"math/big"

	"github.com/Blackspectre-tech/u4c-backends/internal/blockchain"
	"github.com/Blackspectre-tech/u4c-backends/internal/repository"
	"github.com/Blackspectre-tech/u4c-backends/pkg/logger"

	"github.com/shopspring/decimal"
)

const driftPageSize = 100

// CampaignReader reads campaign state from the contract.
type CampaignReader interface {
	GetCampaignCore(ctx context.Context, id *big.Int) (*blockchain.CampaignCore, error)
}

type Drift struct {
	ProjectID  uint64          `json:"project_id"`
	ContractID uint64          `json:"contract_id"`
	Ledger     decimal.Decimal `json:"ledger_total"`
	Chain      decimal.Decimal `json:"chain_pledged"`
}

type DriftReport struct {
	Checked int     `json:"checked"`
	Errors  int     `json:"errors"`
	Drifts  []Drift `json:"drifts"`
}

// DriftChecker compares ledger totals with the contract's pledged amounts.
// It only reports; the ledger is never corrected from here.
type DriftChecker struct {
	projects *repository.ProjectRepository
	reader   CampaignReader
	decimals int32
}

func NewDriftChecker(projects *repository.ProjectRepository, reader CampaignReader, decimals int32) *DriftChecker {
	return &DriftChecker{projects: projects, reader: reader, decimals: decimals}
}

func (c *DriftChecker) Check(ctx context.Context) (*DriftReport, error) {
	report := &DriftReport{}

	for offset := 0; ; offset += driftPageSize {
		projects, err := c.projects.ListDeployed(ctx, offset, driftPageSize)
		if err != nil {
			return report, err
		}

		for _, p := range projects {
			if p.ContractID == nil {
				continue
			}
			report.Checked++

			core, err := c.reader.GetCampaignCore(ctx, new(big.Int).SetUint64(*p.ContractID))
			if err != nil {
				report.Errors++
				logger.WithFields(map[string]interface{}{
					"project_id":  p.ID,
					"contract_id": *p.ContractID,
				}).WithError(err).Error("drift check: contract read failed")
				continue
			}

			chain := tokenAmount(core.Pledged, c.decimals)
			if chain.Equal(p.TotalFunds.Round(2)) {
				continue
			}
			report.Drifts = append(report.Drifts, Drift{
				ProjectID:  p.ID,
				ContractID: *p.ContractID,
				Ledger:     p.TotalFunds,
				Chain:      chain,
			})
			logger.WithFields(map[string]interface{}{
				"project_id":    p.ID,
				"contract_id":   *p.ContractID,
				"ledger_total":  p.TotalFunds.String(),
				"chain_pledged": chain.String(),
			}).Warn("ledger total differs from contract")
		}

		if len(projects) < driftPageSize {
			break
		}
	}

	logger.WithFields(map[string]interface{}{
		"checked": report.Checked,
		"drifts":  len(report.Drifts),
		"errors":  report.Errors,
	}).Info("drift check completed")
	return report, nil
}
