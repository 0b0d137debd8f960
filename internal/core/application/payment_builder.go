package application

import (
	"encoding/hex"
	"strings"

	"github.com/ledgerdesk/ledgerdesk/internal/core/domain"
	"github.com/ledgerdesk/ledgerdesk/pkg/addresscodec"
	"github.com/ledgerdesk/ledgerdesk/pkg/binarycodec"
	log "github.com/sirupsen/logrus"
)

// Signer is the part of the KeyVault the builder needs.
type Signer interface {
	Entry(index int) (domain.KeyEntry, error)
	Sign(index int, hash []byte) ([]byte, error)
}

// PaymentRequest describes a native payment from one of the vault accounts.
// Amount and Fee are in drops. A zero Sequence means the last one reported by
// the network for the sender.
type PaymentRequest struct {
	SenderIndex    int
	Destination    string
	Amount         uint64
	Fee            uint64
	DestinationTag *uint32
	Sequence       uint32
}

// SignedPayment is the result of BuildPayment. PreviewText is rendered from
// the decoded blob, so it shows exactly what was signed.
type SignedPayment struct {
	PreviewText   string
	SignedBlobHex string
	Hash          string
	TxJSON        binarycodec.TxJSON
}

// PaymentBuilder validates payment requests against the current ledger and
// account state, and signs them with the vault.
type PaymentBuilder struct {
	signer   Signer
	ledger   *domain.LedgerCache
	accounts *domain.AccountBook
}

func NewPaymentBuilder(
	signer Signer, ledger *domain.LedgerCache, accounts *domain.AccountBook,
) *PaymentBuilder {
	return &PaymentBuilder{
		signer:   signer,
		ledger:   ledger,
		accounts: accounts,
	}
}

// BuildPayment validates req, signs it and returns the signed blob with its
// hash and preview. It never touches the network.
func (b *PaymentBuilder) BuildPayment(req PaymentRequest) (*SignedPayment, error) {
	sender, err := b.signer.Entry(req.SenderIndex)
	if err != nil {
		return nil, err
	}

	sequence, err := b.validate(req, sender.AccountID)
	if err != nil {
		return nil, err
	}

	payment := &binarycodec.Payment{
		Account:        sender.AccountID,
		Destination:    req.Destination,
		Amount:         req.Amount,
		Fee:            req.Fee,
		Sequence:       sequence,
		Flags:          binarycodec.FlagFullyCanonicalSig,
		DestinationTag: req.DestinationTag,
		SigningPubKey:  sender.PublicKey,
	}

	signingHash, err := binarycodec.SigningHash(payment)
	if err != nil {
		return nil, err
	}
	signature, err := b.signer.Sign(req.SenderIndex, signingHash)
	if err != nil {
		return nil, err
	}
	payment.TxnSignature = signature

	blob, err := binarycodec.Encode(payment)
	if err != nil {
		return nil, err
	}
	signed, err := binarycodec.Decode(blob)
	if err != nil {
		return nil, err
	}
	txHash := binarycodec.TransactionHash(blob)
	hash := strings.ToUpper(hex.EncodeToString(txHash))

	txJSON := signed.JSON()
	txJSON.Hash = hash

	log.WithFields(log.Fields{
		"account":  sender.AccountID,
		"sequence": sequence,
		"hash":     hash,
	}).Debug("payment signed")

	return &SignedPayment{
		PreviewText:   binarycodec.Preview(signed, txHash),
		SignedBlobHex: strings.ToUpper(hex.EncodeToString(blob)),
		Hash:          hash,
		TxJSON:        txJSON,
	}, nil
}

// validate checks req and returns the sequence to sign with.
func (b *PaymentBuilder) validate(req PaymentRequest, sender string) (uint32, error) {
	if req.Amount == 0 || req.Amount > binarycodec.MaxDrops {
		return 0, domain.ErrInvalidAmount
	}
	if req.Fee > binarycodec.MaxDrops {
		return 0, domain.ErrInvalidAmount.WithMessage("fee exceeds the maximum amount")
	}

	ledger := b.ledger.Current()
	if minFee := ledger.MinimumFee(); req.Fee < minFee {
		return 0, domain.ErrFeeTooLow.WithMessage(
			"fee must be at least %s XRP", binarycodec.DropsToXRP(minFee),
		)
	}

	if !addresscodec.IsValidAddress(req.Destination) {
		return 0, domain.ErrInvalidDestination
	}
	if req.Destination == sender {
		return 0, domain.ErrInvalidDestination.WithMessage("cannot send a payment to the sender account")
	}

	if balance, ok := b.accounts.Balance(sender); ok {
		if req.Amount+req.Fee+ledger.ReserveBase > balance {
			return 0, domain.ErrInsufficientFunds.WithMessage(
				"balance of %s XRP does not cover amount, fee and the %s XRP reserve",
				binarycodec.DropsToXRP(balance), binarycodec.DropsToXRP(ledger.ReserveBase),
			)
		}
	}

	known, ok := b.accounts.KnownSequence(sender)
	if req.Sequence == 0 {
		if !ok {
			return 0, domain.ErrStaleSequence.WithMessage("sequence of %s is not known yet", sender)
		}
		return known, nil
	}
	if ok && req.Sequence < known {
		return 0, domain.ErrStaleSequence.WithMessage(
			"sequence %d is lower than the account sequence %d", req.Sequence, known,
		)
	}
	return req.Sequence, nil
}
