package binarycodec

import "fmt"

// Serialized type codes.
const (
	typeUInt16    = 1
	typeUInt32    = 2
	typeAmount    = 6
	typeBlob      = 7
	typeAccountID = 8
)

// PaymentTransactionType is the TransactionType code of a Payment.
const PaymentTransactionType uint16 = 0

// FlagFullyCanonicalSig requires the signature to be in low-S canonical form.
const FlagFullyCanonicalSig uint32 = 0x80000000

type fieldID struct {
	typeCode  int
	fieldCode int
}

func (f fieldID) less(o fieldID) bool {
	if f.typeCode != o.typeCode {
		return f.typeCode < o.typeCode
	}
	return f.fieldCode < o.fieldCode
}

// header returns the compact field header: both codes packed in one byte
// when they are below 16, otherwise spilled into the following bytes.
func (f fieldID) header() []byte {
	switch {
	case f.typeCode < 16 && f.fieldCode < 16:
		return []byte{byte(f.typeCode<<4 | f.fieldCode)}
	case f.typeCode < 16:
		return []byte{byte(f.typeCode << 4), byte(f.fieldCode)}
	case f.fieldCode < 16:
		return []byte{byte(f.fieldCode), byte(f.typeCode)}
	default:
		return []byte{0, byte(f.typeCode), byte(f.fieldCode)}
	}
}

func (f fieldID) String() string {
	if name, ok := fieldNames[f]; ok {
		return name
	}
	return fmt.Sprintf("field(%d,%d)", f.typeCode, f.fieldCode)
}

var (
	fieldTransactionType = fieldID{typeUInt16, 2}
	fieldFlags           = fieldID{typeUInt32, 2}
	fieldSequence        = fieldID{typeUInt32, 4}
	fieldDestinationTag  = fieldID{typeUInt32, 14}
	fieldAmount          = fieldID{typeAmount, 1}
	fieldFee             = fieldID{typeAmount, 8}
	fieldSigningPubKey   = fieldID{typeBlob, 3}
	fieldTxnSignature    = fieldID{typeBlob, 4}
	fieldAccount         = fieldID{typeAccountID, 1}
	fieldDestination     = fieldID{typeAccountID, 3}

	fieldNames = map[fieldID]string{
		fieldTransactionType: "TransactionType",
		fieldFlags:           "Flags",
		fieldSequence:        "Sequence",
		fieldDestinationTag:  "DestinationTag",
		fieldAmount:          "Amount",
		fieldFee:             "Fee",
		fieldSigningPubKey:   "SigningPubKey",
		fieldTxnSignature:    "TxnSignature",
		fieldAccount:         "Account",
		fieldDestination:     "Destination",
	}
)

// readHeader parses a field header and returns the field and the number of
// consumed bytes.
func readHeader(buf []byte) (fieldID, int, error) {
	if len(buf) < 1 {
		return fieldID{}, 0, ErrUnexpectedEnd
	}
	typeCode := int(buf[0] >> 4)
	fieldCode := int(buf[0] & 0x0f)
	n := 1

	if typeCode == 0 {
		if len(buf) < n+1 {
			return fieldID{}, 0, ErrUnexpectedEnd
		}
		typeCode = int(buf[n])
		n++
	}
	if fieldCode == 0 {
		if len(buf) < n+1 {
			return fieldID{}, 0, ErrUnexpectedEnd
		}
		fieldCode = int(buf[n])
		n++
	}
	return fieldID{typeCode, fieldCode}, n, nil
}
