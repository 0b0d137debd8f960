package binarycodec

import (
	"encoding/binary"
	"errors"
	"strings"

	"github.com/ledgerdesk/ledgerdesk/pkg/addresscodec"
	"github.com/ledgerdesk/ledgerdesk/pkg/keypairs"
)

const (
	// MaxDrops is the largest native amount representable on the ledger.
	MaxDrops uint64 = 100000000000000000

	nativeAmountPositiveBit uint64 = 0x4000000000000000
	nonNativeAmountBit      uint64 = 0x8000000000000000
)

var (
	signingPrefix     = []byte{0x53, 0x54, 0x58, 0x00} // STX\0
	transactionPrefix = []byte{0x54, 0x58, 0x4e, 0x00} // TXN\0
)

var (
	// ErrUnexpectedEnd ...
	ErrUnexpectedEnd = errors.New("unexpected end of serialized data")
	// ErrUnknownField ...
	ErrUnknownField = errors.New("unknown serialized field")
	// ErrNonCanonicalOrder ...
	ErrNonCanonicalOrder = errors.New("fields are not in canonical order")
	// ErrUnsupportedTransaction ...
	ErrUnsupportedTransaction = errors.New("only payment transactions are supported")
	// ErrUnsupportedAmount ...
	ErrUnsupportedAmount = errors.New("only positive native amounts are supported")
	// ErrAmountOutOfRange ...
	ErrAmountOutOfRange = errors.New("amount exceeds maximum native amount")
	// ErrMissingField ...
	ErrMissingField = errors.New("required field is missing")
	// ErrInvalidLengthPrefix ...
	ErrInvalidLengthPrefix = errors.New("invalid variable length prefix")
)

// Payment is a simple native payment in its decoded form. Accounts are
// classic addresses and amounts are expressed in drops.
type Payment struct {
	Account        string
	Destination    string
	Amount         uint64
	Fee            uint64
	Sequence       uint32
	Flags          uint32
	DestinationTag *uint32
	SigningPubKey  []byte
	TxnSignature   []byte
}

// EncodeForSigning serializes every signing field of the payment, that is
// all fields except TxnSignature.
func EncodeForSigning(p *Payment) ([]byte, error) {
	return encode(p, false)
}

// Encode serializes the payment including its signature.
func Encode(p *Payment) ([]byte, error) {
	return encode(p, true)
}

// SigningHash returns the digest that gets signed for the payment.
func SigningHash(p *Payment) ([]byte, error) {
	buf, err := EncodeForSigning(p)
	if err != nil {
		return nil, err
	}
	return keypairs.SHA512Half(signingPrefix, buf), nil
}

// TransactionHash returns the identifying hash of a signed blob.
func TransactionHash(blob []byte) []byte {
	return keypairs.SHA512Half(transactionPrefix, blob)
}

func encode(p *Payment, withSignature bool) ([]byte, error) {
	account, err := addresscodec.DecodeAccountID(p.Account)
	if err != nil {
		return nil, err
	}
	destination, err := addresscodec.DecodeAccountID(p.Destination)
	if err != nil {
		return nil, err
	}
	amount, err := encodeNativeAmount(p.Amount)
	if err != nil {
		return nil, err
	}
	fee, err := encodeNativeAmount(p.Fee)
	if err != nil {
		return nil, err
	}

	s := &serializer{}
	s.uint16(fieldTransactionType, PaymentTransactionType)
	s.uint32(fieldFlags, p.Flags)
	s.uint32(fieldSequence, p.Sequence)
	if p.DestinationTag != nil {
		s.uint32(fieldDestinationTag, *p.DestinationTag)
	}
	s.raw(fieldAmount, amount)
	s.raw(fieldFee, fee)
	s.vl(fieldSigningPubKey, p.SigningPubKey)
	if withSignature && len(p.TxnSignature) > 0 {
		s.vl(fieldTxnSignature, p.TxnSignature)
	}
	s.vl(fieldAccount, account)
	s.vl(fieldDestination, destination)
	return s.buf, nil
}

// Decode parses a serialized payment. Fields must appear in canonical order
// and every mandatory payment field must be present.
func Decode(blob []byte) (*Payment, error) {
	p := &Payment{}
	seen := map[fieldID]bool{}
	var last *fieldID

	for pos := 0; pos < len(blob); {
		field, n, err := readHeader(blob[pos:])
		if err != nil {
			return nil, err
		}
		pos += n
		if _, ok := fieldNames[field]; !ok {
			return nil, ErrUnknownField
		}
		if last != nil && !last.less(field) {
			return nil, ErrNonCanonicalOrder
		}
		f := field
		last = &f
		seen[field] = true

		switch field.typeCode {
		case typeUInt16:
			if len(blob) < pos+2 {
				return nil, ErrUnexpectedEnd
			}
			if binary.BigEndian.Uint16(blob[pos:]) != PaymentTransactionType {
				return nil, ErrUnsupportedTransaction
			}
			pos += 2
		case typeUInt32:
			if len(blob) < pos+4 {
				return nil, ErrUnexpectedEnd
			}
			v := binary.BigEndian.Uint32(blob[pos:])
			pos += 4
			switch field {
			case fieldFlags:
				p.Flags = v
			case fieldSequence:
				p.Sequence = v
			case fieldDestinationTag:
				tag := v
				p.DestinationTag = &tag
			}
		case typeAmount:
			if len(blob) < pos+8 {
				return nil, ErrUnexpectedEnd
			}
			v, err := decodeNativeAmount(blob[pos : pos+8])
			if err != nil {
				return nil, err
			}
			pos += 8
			if field == fieldAmount {
				p.Amount = v
			} else {
				p.Fee = v
			}
		case typeBlob, typeAccountID:
			length, n, err := decodeVLLength(blob[pos:])
			if err != nil {
				return nil, err
			}
			pos += n
			if len(blob) < pos+length {
				return nil, ErrUnexpectedEnd
			}
			value := make([]byte, length)
			copy(value, blob[pos:pos+length])
			pos += length

			switch field {
			case fieldSigningPubKey:
				p.SigningPubKey = value
			case fieldTxnSignature:
				p.TxnSignature = value
			case fieldAccount:
				if p.Account, err = addresscodec.EncodeAccountID(value); err != nil {
					return nil, err
				}
			case fieldDestination:
				if p.Destination, err = addresscodec.EncodeAccountID(value); err != nil {
					return nil, err
				}
			}
		}
	}

	for _, f := range []fieldID{
		fieldTransactionType, fieldSequence, fieldAmount, fieldFee,
		fieldSigningPubKey, fieldAccount, fieldDestination,
	} {
		if !seen[f] {
			return nil, ErrMissingField
		}
	}
	return p, nil
}

// TxJSON is the JSON rendering of a payment as found in the tx_json object
// of the ledger API.
type TxJSON struct {
	TransactionType string  `json:"TransactionType"`
	Account         string  `json:"Account"`
	Destination     string  `json:"Destination"`
	DestinationTag  *uint32 `json:"DestinationTag,omitempty"`
	Amount          string  `json:"Amount"`
	Fee             string  `json:"Fee"`
	Flags           uint32  `json:"Flags"`
	Sequence        uint32  `json:"Sequence"`
	SigningPubKey   string  `json:"SigningPubKey"`
	TxnSignature    string  `json:"TxnSignature,omitempty"`
	Hash            string  `json:"hash,omitempty"`
}

// JSON returns the tx_json view of the payment.
func (p *Payment) JSON() TxJSON {
	return TxJSON{
		TransactionType: "Payment",
		Account:         p.Account,
		Destination:     p.Destination,
		DestinationTag:  p.DestinationTag,
		Amount:          formatUint(p.Amount),
		Fee:             formatUint(p.Fee),
		Flags:           p.Flags,
		Sequence:        p.Sequence,
		SigningPubKey:   strings.ToUpper(hexString(p.SigningPubKey)),
		TxnSignature:    strings.ToUpper(hexString(p.TxnSignature)),
	}
}

func encodeNativeAmount(drops uint64) ([]byte, error) {
	if drops > MaxDrops {
		return nil, ErrAmountOutOfRange
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, drops|nativeAmountPositiveBit)
	return buf, nil
}

func decodeNativeAmount(buf []byte) (uint64, error) {
	v := binary.BigEndian.Uint64(buf)
	if v&nonNativeAmountBit != 0 || v&nativeAmountPositiveBit == 0 {
		return 0, ErrUnsupportedAmount
	}
	drops := v &^ nativeAmountPositiveBit
	if drops > MaxDrops {
		return 0, ErrAmountOutOfRange
	}
	return drops, nil
}
