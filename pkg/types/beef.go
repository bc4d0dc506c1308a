package types

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/bsv-blockchain/go-sdk/chainhash"
	"github.com/bsv-blockchain/go-sdk/transaction"
)

// Static error variables for err113 compliance
var (
	ErrInvalidBEEF   = errors.New("invalid BEEF")
	errAmbiguousBEEF = errors.New("envelope has more than one unspent transaction")
	errEmptyBEEF     = errors.New("envelope carries no transaction")
)

// HasBEEFPrefix reports whether b starts with a V1, V2 or Atomic BEEF version.
func HasBEEFPrefix(b []byte) bool {
	if len(b) < 4 {
		return false
	}
	switch binary.LittleEndian.Uint32(b[:4]) {
	case transaction.BEEF_V1, transaction.BEEF_V2, transaction.ATOMIC_BEEF:
		return true
	}
	return false
}

// ParseBEEF reads a V1, V2 or Atomic BEEF envelope into a transaction.Beef.
func ParseBEEF(beef []byte) (*transaction.Beef, error) {
	if !HasBEEFPrefix(beef) {
		return nil, fmt.Errorf("%w: missing version prefix", ErrInvalidBEEF)
	}
	if binary.LittleEndian.Uint32(beef[:4]) == transaction.ATOMIC_BEEF {
		b, _, err := transaction.NewBeefFromAtomicBytes(beef)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidBEEF, err)
		}
		return b, nil
	}
	b, err := transaction.NewBeefFromBytes(beef)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidBEEF, err)
	}
	return b, nil
}

// SubjectTransaction reads a V1, V2 or Atomic BEEF envelope and returns the transaction it
// delivers. V1 ends with it and Atomic names it. A V2 envelope must hold exactly one full
// transaction that no other transaction in the envelope spends.
func SubjectTransaction(beef []byte) (*transaction.Transaction, error) {
	if len(beef) < 4 {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidBEEF, len(beef))
	}

	switch version := binary.LittleEndian.Uint32(beef[:4]); version {
	case transaction.BEEF_V1:
		tx, err := transaction.NewTransactionFromBEEF(beef)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidBEEF, err)
		}
		if tx == nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidBEEF, errEmptyBEEF)
		}
		return tx, nil

	case transaction.ATOMIC_BEEF:
		b, txid, err := transaction.NewBeefFromAtomicBytes(beef)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidBEEF, err)
		}
		btx, ok := b.Transactions[*txid]
		if !ok || btx.DataFormat == transaction.TxIDOnly || btx.Transaction == nil {
			return nil, fmt.Errorf("%w: subject %s is not in the envelope", ErrInvalidBEEF, txid)
		}
		return btx.Transaction, nil

	case transaction.BEEF_V2:
		b, err := transaction.NewBeefFromBytes(beef)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidBEEF, err)
		}
		return unspentTip(b)

	default:
		return nil, fmt.Errorf("%w: unknown version %#08x", ErrInvalidBEEF, version)
	}
}

func unspentTip(b *transaction.Beef) (*transaction.Transaction, error) {
	spent := make(map[chainhash.Hash]struct{})
	for _, btx := range b.Transactions {
		if btx.DataFormat == transaction.TxIDOnly || btx.Transaction == nil {
			continue
		}
		for _, in := range btx.Transaction.Inputs {
			if in.SourceTXID != nil {
				spent[*in.SourceTXID] = struct{}{}
			}
		}
	}

	var tip *transaction.Transaction
	for txid, btx := range b.Transactions {
		if btx.DataFormat == transaction.TxIDOnly || btx.Transaction == nil {
			continue
		}
		if _, ok := spent[txid]; ok {
			continue
		}
		if tip != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidBEEF, errAmbiguousBEEF)
		}
		tip = btx.Transaction
	}
	if tip == nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidBEEF, errEmptyBEEF)
	}
	return tip, nil
}
