package rpc

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ledgerdesk/ledgerdesk/internal/core/domain"
	"github.com/ledgerdesk/ledgerdesk/internal/core/ports"
)

// rippleEpochOffset is the number of seconds between the unix epoch and the
// ledger epoch (2000-01-01T00:00:00Z).
const rippleEpochOffset = 946684800

const (
	pushLedgerClosed = "ledgerClosed"
	pushTransaction  = "transaction"
	typeResponse     = "response"
	statusError      = "error"
	errActNotFound   = "actNotFound"
)

// envelope is the part shared by every inbound frame.
type envelope struct {
	ID           *uint64         `json:"id"`
	Type         string          `json:"type"`
	Status       string          `json:"status"`
	Error        string          `json:"error"`
	ErrorMessage string          `json:"error_message"`
	Result       json.RawMessage `json:"result"`
}

func (e envelope) isResponse() bool {
	return e.ID != nil || e.Type == typeResponse
}

func (e envelope) isError() bool {
	return e.Status == statusError || e.Error != ""
}

func (e envelope) errorText() string {
	if e.ErrorMessage != "" {
		return fmt.Sprintf("%s: %s", e.Error, e.ErrorMessage)
	}
	return e.Error
}

type accountInfoResult struct {
	AccountData struct {
		Account  string `json:"Account"`
		Balance  string `json:"Balance"`
		Sequence uint32 `json:"Sequence"`
	} `json:"account_data"`
}

type accountTxResult struct {
	Account      string          `json:"account"`
	Transactions []accountTxItem `json:"transactions"`
}

type accountTxItem struct {
	Tx        txJSON   `json:"tx"`
	Meta      metaJSON `json:"meta"`
	Validated bool     `json:"validated"`
}

type txJSON struct {
	TransactionType string          `json:"TransactionType"`
	Account         string          `json:"Account"`
	Destination     string          `json:"Destination"`
	Amount          json.RawMessage `json:"Amount"`
	Fee             string          `json:"Fee"`
	Sequence        uint32          `json:"Sequence"`
	Hash            string          `json:"hash"`
	Date            int64           `json:"date"`
	LedgerIndex     uint32          `json:"ledger_index"`
}

type metaJSON struct {
	TransactionResult string `json:"TransactionResult"`
}

type submitResult struct {
	EngineResult        string `json:"engine_result"`
	EngineResultCode    int    `json:"engine_result_code"`
	EngineResultMessage string `json:"engine_result_message"`
	Accepted            *bool  `json:"accepted"`
	TxJSON              struct {
		Hash string `json:"hash"`
	} `json:"tx_json"`
}

// ledgerJSON is both the subscribe result and the ledgerClosed push.
type ledgerJSON struct {
	LedgerIndex uint32 `json:"ledger_index"`
	LedgerHash  string `json:"ledger_hash"`
	LedgerTime  int64  `json:"ledger_time"`
	TxnCount    int    `json:"txn_count"`
	FeeBase     uint64 `json:"fee_base"`
	FeeRef      uint64 `json:"fee_ref"`
	ReserveBase uint64 `json:"reserve_base"`
	ReserveInc  uint64 `json:"reserve_inc"`
}

func (l ledgerJSON) toDomain() domain.LedgerState {
	return domain.LedgerState{
		LedgerIndex:      l.LedgerIndex,
		LedgerHash:       l.LedgerHash,
		CloseTime:        fromRippleTime(l.LedgerTime),
		TransactionCount: l.TxnCount,
		BaseFee:          l.FeeBase,
		ReferenceFee:     l.FeeRef,
		ReserveBase:      l.ReserveBase,
		ReserveIncrement: l.ReserveInc,
	}
}

type transactionPush struct {
	Transaction  txJSON   `json:"transaction"`
	Meta         metaJSON `json:"meta"`
	EngineResult string   `json:"engine_result"`
	LedgerIndex  uint32   `json:"ledger_index"`
	Validated    bool     `json:"validated"`
}

func (t txJSON) summary(result string, ledgerIndex uint32, validated bool) domain.TxSummary {
	if ledgerIndex == 0 {
		ledgerIndex = t.LedgerIndex
	}
	fee, _ := strconv.ParseUint(t.Fee, 10, 64)
	return domain.TxSummary{
		Hash:        t.Hash,
		Type:        t.TransactionType,
		Account:     t.Account,
		Destination: t.Destination,
		Amount:      nativeAmount(t.Amount),
		Fee:         fee,
		Sequence:    t.Sequence,
		LedgerIndex: ledgerIndex,
		Result:      result,
		Date:        fromRippleTime(t.Date),
		Validated:   validated,
	}
}

// nativeAmount returns the drops of a native amount, or 0 for issued
// currency amounts which are encoded as objects.
func nativeAmount(raw json.RawMessage) uint64 {
	var drops string
	if err := json.Unmarshal(raw, &drops); err != nil {
		return 0
	}
	v, err := strconv.ParseUint(drops, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func fromRippleTime(seconds int64) time.Time {
	if seconds <= 0 {
		return time.Time{}
	}
	return time.Unix(seconds+rippleEpochOffset, 0).UTC()
}

// isAcceptedResult tells whether an engine result means the transaction was
// applied or queued: tes* and terQUEUED are, as are tec* which still claim
// the fee.
func isAcceptedResult(engineResult string) bool {
	switch {
	case strings.HasPrefix(engineResult, "tes"):
		return true
	case engineResult == "terQUEUED":
		return true
	case strings.HasPrefix(engineResult, "tec"):
		return true
	default:
		return false
	}
}

func accountInfoRequest(account string) map[string]interface{} {
	return map[string]interface{}{
		"command":      string(ports.KindAccountInfo),
		"account":      account,
		"ledger_index": "current",
	}
}

func accountTxRequest(account string, limit int) map[string]interface{} {
	return map[string]interface{}{
		"command":          string(ports.KindAccountTx),
		"account":          account,
		"ledger_index_min": -1,
		"ledger_index_max": -1,
		"limit":            limit,
	}
}

func subscribeRequest(accounts []string) map[string]interface{} {
	req := map[string]interface{}{
		"command": string(ports.KindSubscribe),
		"streams": []string{"ledger"},
	}
	if len(accounts) > 0 {
		req["accounts"] = accounts
	}
	return req
}

func submitRequest(blobHex string) map[string]interface{} {
	return map[string]interface{}{
		"command": string(ports.KindSubmit),
		"tx_blob": blobHex,
	}
}
