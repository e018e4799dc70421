package escrow

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"deedgateway/apierrors"
	"deedgateway/audit"
	"deedgateway/ledger"
	"deedgateway/models"
)

// ReleaseResult reports the outcome of a release call. Replayed is true when
// the escrow was already released and no new ledger submission was made.
type ReleaseResult struct {
	Escrow   *models.Escrow `json:"escrow"`
	TxID     string         `json:"txId"`
	Status   string         `json:"status"`
	Replayed bool           `json:"replayed"`
}

// canRelease is the approval/condition gate. Release requires the escrow to
// be exactly FUNDED, every approval APPROVED, and a ledger contract ref
// present. Conditions are deliberately not checked.
func canRelease(record *models.Escrow) error {
	switch record.Status {
	case models.EscrowFunded:
	case models.EscrowDraft:
		return apierrors.BadRequest(apierrors.CodeEscrowNotFunded, "escrow must be funded before release")
	default:
		return apierrors.BadRequest(apierrors.CodeInvalidEscrowState, "escrow cannot be released from "+string(record.Status))
	}
	for _, approval := range record.Approvals {
		if approval.Status != models.ApprovalApproved {
			return apierrors.BadRequest(apierrors.CodeApprovalsIncomplete, "all approvers must approve before release")
		}
	}
	if strings.TrimSpace(record.LedgerRef) == "" {
		return apierrors.BadRequest(apierrors.CodeContractIDMissing, "escrow contract not configured")
	}
	return nil
}

// Release submits the payout instruction to the external ledger and, only on
// a confirmed finality receipt, flips the escrow to RELEASED, appends the
// transaction id to the ledger reference, and records the audit event in one
// relational commit while the row lock is held.
//
// A confirmed rejection rolls everything back and surfaces the network's
// reason; the caller may retry. An ambiguous outcome (timeout, transport
// failure, or any local failure after a confirmed receipt) also rolls back
// but surfaces LEDGER_OUTCOME_UNKNOWN: the instruction may have applied, so
// an operator must reconcile via the ledger's transaction lookup before any
// retry.
//
// Releasing an already-released escrow is an idempotent no-op: no ledger
// call, no audit event, the recorded outcome is returned.
func (s *Service) Release(ctx context.Context, tenantID, escrowID, actorID uuid.UUID) (*ReleaseResult, error) {
	var (
		record  models.Escrow
		result  ReleaseResult
		receipt *ledger.ReleaseReceipt
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.lockEscrow(tx, tenantID, escrowID, &record); err != nil {
			return err
		}

		if record.Status == models.EscrowReleased {
			result = ReleaseResult{
				Escrow:   &record,
				TxID:     releasedTxID(record.LedgerRef),
				Status:   "SUCCESS",
				Replayed: true,
			}
			return nil
		}

		if err := canRelease(&record); err != nil {
			return err
		}

		contractRef := record.LedgerRef
		beneficiaries := make([]ledger.Beneficiary, 0, len(record.Splits))
		for _, split := range record.Splits {
			beneficiaries = append(beneficiaries, ledger.Beneficiary{
				AccountID: split.AccountID,
				Bps:       split.Bps,
			})
		}

		// The ledger call happens while the row lock is held so no
		// concurrent release can submit a second instruction. The commit
		// below only runs after a confirmed finality receipt.
		submitted, err := s.ledger.SubmitRelease(ctx, ledger.ReleaseInstruction{
			ContractRef:   contractRef,
			CaseID:        record.CaseID.String(),
			Amount:        record.Amount,
			Beneficiaries: beneficiaries,
		})
		if err != nil {
			var rejection *ledger.RejectionError
			if errors.As(err, &rejection) {
				return apierrors.LedgerRejected(rejection.Reason).WithCause(err)
			}
			s.logger.Error("escrow release outcome unknown",
				"escrowId", record.ID,
				"contractRef", contractRef,
				"error", err,
			)
			return apierrors.LedgerOutcomeUnknown(
				"ledger outcome unknown; reconcile the transaction before retrying").WithCause(err)
		}
		receipt = submitted

		record.Status = models.EscrowReleased
		record.LedgerRef = contractRef + "|" + receipt.TxID
		record.UpdatedAt = s.now()
		if err := tx.Save(&record).Error; err != nil {
			return err
		}
		if err := audit.Append(tx, tenantID, audit.ActionEscrowReleased, audit.SubjectEscrow, record.ID, models.Metadata{
			"transactionId": receipt.TxID,
			"status":        receipt.Status,
		}, actorID); err != nil {
			return err
		}
		result = ReleaseResult{Escrow: &record, TxID: receipt.TxID, Status: receipt.Status}
		return nil
	})
	if err != nil {
		// A write or commit failure after a confirmed receipt leaves the
		// payout applied and the store still FUNDED. That is an unknown
		// outcome, not a retryable infrastructure error.
		if receipt != nil {
			s.logger.Error("local commit failed after confirmed ledger release",
				"escrowId", escrowID,
				"transactionId", receipt.TxID,
				"error", err,
			)
			return nil, apierrors.LedgerOutcomeUnknown(
				"release confirmed by ledger but not recorded; reconcile the transaction before retrying").WithCause(err)
		}
		return nil, err
	}
	return &result, nil
}

// releasedTxID extracts the transaction id recorded on a released escrow's
// ledger reference, composed as contractRef|txId.
func releasedTxID(ledgerRef string) string {
	if idx := strings.LastIndex(ledgerRef, "|"); idx >= 0 {
		return ledgerRef[idx+1:]
	}
	return ""
}
