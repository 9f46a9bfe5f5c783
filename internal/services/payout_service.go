package services

import (
	"context"
	"encoding/xml"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/moov-io/iso20022/pkg/common"
	"github.com/moov-io/iso20022/pkg/pacs_v08"
	"github.com/spf13/viper"

	"github.com/venuepay/backend/internal/models"
)

const payoutQueueKey = "payout_queue"

// PayoutService turns approved withdrawal requests into ISO 20022 payout
// instructions and hands them to the settlement queue. It runs strictly
// after the ledger transaction has committed.
type PayoutService struct {
	redis       *redis.Client
	platformBIC string
	currency    string
}

func NewPayoutService(redisClient *redis.Client) *PayoutService {
	viper.SetDefault("payout.platform_bic", "VENUEPAY")
	viper.SetDefault("payout.currency", "IDR")

	return &PayoutService{
		redis:       redisClient,
		platformBIC: viper.GetString("payout.platform_bic"),
		currency:    viper.GetString("payout.currency"),
	}
}

// NewPayoutReference mints the reference stamped on an approved request and
// carried end-to-end through the payout instruction.
func (ps *PayoutService) NewPayoutReference() string {
	return "PAY-" + strings.ToUpper(uuid.New().String()[:8]) + "-" + time.Now().UTC().Format("20060102")
}

// QueuePayout builds the pacs.008 instruction for an approved withdrawal and
// pushes its XML onto the settlement queue. Without Redis the instruction is
// only logged; the settlement operator re-drives payouts from the admin
// console in that mode.
func (ps *PayoutService) QueuePayout(ctx context.Context, wr *models.WithdrawalRequest) error {
	doc, err := ps.BuildPayoutInstruction(wr)
	if err != nil {
		return err
	}

	xmlData, err := ps.ConvertToXML(doc)
	if err != nil {
		return err
	}

	if ps.redis == nil {
		log.Printf("[PAYOUT] Redis unavailable, payout %s for withdrawal %s not queued", wr.PayoutReference, wr.ID)
		return nil
	}

	if err := ps.redis.RPush(ctx, payoutQueueKey, xmlData).Err(); err != nil {
		return err
	}

	log.Printf("[PAYOUT] Queued payout %s for withdrawal %s (%d %s)", wr.PayoutReference, wr.ID, wr.Amount, ps.currency)
	return nil
}

// BuildPayoutInstruction creates the pacs.008 FIToFICustomerCreditTransfer
// moving an approved withdrawal's amount to the owner's bank.
func (ps *PayoutService) BuildPayoutInstruction(wr *models.WithdrawalRequest) (*pacs_v08.FIToFICustomerCreditTransferV08, error) {
	if wr.Status != models.WithdrawalApproved {
		return nil, fmt.Errorf("cannot build payout for %s withdrawal %s", wr.Status, wr.ID)
	}

	msgId := uuid.New().String()
	creDtTm := time.Now()
	settlementDate := time.Now()

	doc := &pacs_v08.FIToFICustomerCreditTransferV08{
		GrpHdr: pacs_v08.GroupHeader93{
			MsgId:   common.Max35Text(msgId),
			CreDtTm: common.ISODateTime(creDtTm),
			NbOfTxs: "1",
			TtlIntrBkSttlmAmt: &pacs_v08.ActiveCurrencyAndAmount{
				Ccy:   common.ActiveCurrencyCode(ps.currency),
				Value: float64(wr.Amount),
			},
			IntrBkSttlmDt: (*common.ISODate)(&settlementDate),
			SttlmInf: pacs_v08.SettlementInstruction7{
				SttlmMtd: "CLRG", // Clearing
			},
		},
		CdtTrfTxInf: []pacs_v08.CreditTransferTransaction39{
			{
				PmtId: pacs_v08.PaymentIdentification7{
					InstrId:    &[]common.Max35Text{common.Max35Text(wr.ID)}[0],
					EndToEndId: common.Max35Text(wr.PayoutReference),
					TxId:       &[]common.Max35Text{common.Max35Text(wr.ID)}[0],
				},
				IntrBkSttlmAmt: pacs_v08.ActiveCurrencyAndAmount{
					Ccy:   common.ActiveCurrencyCode(ps.currency),
					Value: float64(wr.Amount),
				},
				IntrBkSttlmDt: (*common.ISODate)(&settlementDate),
				ChrgBr:        "SLEV",
				DbtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
					FinInstnId: pacs_v08.FinancialInstitutionIdentification18{
						BICFI: &[]common.BICFIDec2014Identifier{common.BICFIDec2014Identifier(ps.platformBIC)}[0],
					},
				},
				Dbtr: pacs_v08.PartyIdentification135{
					Nm: &[]common.Max140Text{common.Max140Text(ps.platformBIC)}[0],
				},
				CdtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
					FinInstnId: pacs_v08.FinancialInstitutionIdentification18{
						ClrSysMmbId: &pacs_v08.ClearingSystemMemberIdentification2{
							MmbId: common.Max35Text(wr.BankCode),
						},
					},
				},
				Cdtr: pacs_v08.PartyIdentification135{
					Nm: &[]common.Max140Text{common.Max140Text(wr.AccountID)}[0],
				},
			},
		},
	}

	return doc, nil
}

// BuildStatusAck creates the pacs.002 status report acknowledging a payout.
func (ps *PayoutService) BuildStatusAck(wr *models.WithdrawalRequest, status string) *pacs_v08.FIToFIPaymentStatusReportV08 {
	msgId := uuid.New().String()
	creDtTm := time.Now()

	return &pacs_v08.FIToFIPaymentStatusReportV08{
		GrpHdr: pacs_v08.GroupHeader53{
			MsgId:   common.Max35Text(msgId),
			CreDtTm: common.ISODateTime(creDtTm),
		},
		TxInfAndSts: []pacs_v08.PaymentTransaction80{
			{
				OrgnlInstrId:    &[]common.Max35Text{common.Max35Text(wr.ID)}[0],
				OrgnlEndToEndId: &[]common.Max35Text{common.Max35Text(wr.PayoutReference)}[0],
				OrgnlTxId:       &[]common.Max35Text{common.Max35Text(wr.ID)}[0],
				TxSts:           &[]pacs_v08.ExternalPaymentTransactionStatus1Code{pacs_v08.ExternalPaymentTransactionStatus1Code(status)}[0], // ACCP, RJCT, ACSC, etc.
			},
		},
	}
}

// ConvertToXML converts an ISO 20022 document to an XML string
func (ps *PayoutService) ConvertToXML(doc interface{}) (string, error) {
	xmlData, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal XML: %w", err)
	}
	return xml.Header + string(xmlData), nil
}
