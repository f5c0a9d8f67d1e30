package swap

import (
	"encoding/json"
	"fmt"

	"github.com/mitchellh/hashstructure/v2"
	"github.com/shopspring/decimal"
)

// PublicKey is a key referenced by unlock conditions.
type PublicKey struct {
	Algorithm string `json:"algorithm"`
	Key       string `json:"key"`
}

// UnlockConditions describe who may spend an input.
type UnlockConditions struct {
	Timelock           uint64      `json:"timelock"`
	PublicKeys         []PublicKey `json:"publickeys"`
	SignaturesRequired uint64      `json:"signaturesrequired"`
}

// SiacoinInput spends a siacoin output.
type SiacoinInput struct {
	ParentID         string           `json:"parentid"`
	UnlockConditions UnlockConditions `json:"unlockconditions"`
}

// SiafundInput spends a siafund output.
type SiafundInput struct {
	ParentID         string           `json:"parentid"`
	UnlockConditions UnlockConditions `json:"unlockconditions"`
	ClaimUnlockHash  string           `json:"claimunlockhash"`
}

// SiacoinOutput creates a siacoin output. Value is in hastings.
type SiacoinOutput struct {
	Value      string `json:"value"`
	UnlockHash string `json:"unlockhash"`
}

// SiafundOutput creates a siafund output.
type SiafundOutput struct {
	Value      string `json:"value"`
	UnlockHash string `json:"unlockhash"`
	ClaimStart string `json:"claimstart"`
}

// TransactionSignature signs one input. CoveredFields is kept verbatim.
type TransactionSignature struct {
	ParentID       string          `json:"parentid"`
	PublicKeyIndex uint64          `json:"publickeyindex"`
	Timelock       uint64          `json:"timelock"`
	CoveredFields  json.RawMessage `json:"coveredfields"`
	Signature      string          `json:"signature"`
}

// Transaction is the swap artifact exchanged between the two parties. The
// JSON field names are shared with the counterparty's client and must not
// change. Treat a loaded Transaction as immutable.
type Transaction struct {
	SiacoinInputs  []SiacoinInput         `json:"siacoinInputs"`
	SiafundInputs  []SiafundInput         `json:"siafundInputs"`
	SiacoinOutputs []SiacoinOutput        `json:"siacoinOutputs"`
	SiafundOutputs []SiafundOutput        `json:"siafundOutputs"`
	Signatures     []TransactionSignature `json:"signatures"`
}

// Summary is the remote breakdown of a transaction from our point of view.
type Summary struct {
	ReceiveSF bool            `json:"receiveSF"`
	ReceiveSC bool            `json:"receiveSC"`
	PayFee    bool            `json:"payFee"`
	AmountSC  decimal.Decimal `json:"amountSC"`
	AmountSF  decimal.Decimal `json:"amountSF"`
	AmountFee decimal.Decimal `json:"amountFee"`
	Stage     int             `json:"stage"`
}

// SummarizeResult is the response of Remote.Summarize.
type SummarizeResult struct {
	ID      string  `json:"id"`
	Summary Summary `json:"summary"`
}

// summaryKey is the hashable form of a Summary; decimal.Decimal keeps its
// digits in unexported fields.
type summaryKey struct {
	ID        string
	ReceiveSF bool
	ReceiveSC bool
	PayFee    bool
	AmountSC  string
	AmountSF  string
	AmountFee string
	Stage     int
}

// fingerprint identifies a (id, summary) pair so repeated identical poll
// results can be told apart from real progress.
func fingerprint(id string, s *Summary) (uint64, error) {
	key := summaryKey{
		ID:        id,
		ReceiveSF: s.ReceiveSF,
		ReceiveSC: s.ReceiveSC,
		PayFee:    s.PayFee,
		AmountSC:  s.AmountSC.String(),
		AmountSF:  s.AmountSF.String(),
		AmountFee: s.AmountFee.String(),
		Stage:     s.Stage,
	}
	h, err := hashstructure.Hash(key, hashstructure.FormatV2, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to hash summary: %w", err)
	}
	return h, nil
}
