// Package pushdrop encodes ordered byte-string fields into a single-signer locking script
// and decodes them back out.
//
// A token locks to one public key with OP_CHECKSIG. The fields are pushed either after the
// lock (LockBefore) or before it (LockAfter), and then dropped from the stack so that only
// the signature check decides whether the output can be spent.
package pushdrop

import (
	"context"
	"errors"
	"fmt"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	"github.com/bsv-blockchain/go-sdk/script"
	"github.com/bsv-blockchain/go-sdk/wallet"
)

// LockPosition decides whether the lock chunks come before or after the fields.
type LockPosition int

const (
	// LockBefore places <pubkey> OP_CHECKSIG ahead of the fields.
	LockBefore LockPosition = iota
	// LockAfter places <pubkey> OP_CHECKSIG behind the drop opcodes.
	LockAfter
)

const compressedPubKeyLen = 33

// Static error variables for err113 compliance
var (
	ErrNoLock           = errors.New("script does not contain a pushdrop lock")
	ErrMalformedScript  = errors.New("malformed script")
	ErrUnexpectedOpcode = errors.New("unexpected opcode in pushdrop fields")
	errNilWallet        = errors.New("pushdrop requires a wallet")
	errNilPublicKey     = errors.New("wallet returned no public key")
	errNilSignature     = errors.New("wallet returned no signature")
)

// Signer is the part of a wallet that token encoding needs.
type Signer interface {
	GetPublicKey(ctx context.Context, args wallet.GetPublicKeyArgs, originator string) (*wallet.GetPublicKeyResult, error)
	CreateSignature(ctx context.Context, args wallet.CreateSignatureArgs, originator string) (*wallet.CreateSignatureResult, error)
}

// PushDrop builds and spends pushdrop tokens with keys derived by Wallet.
type PushDrop struct {
	Wallet     Signer
	Originator string
}

// Result is a decoded pushdrop token.
type Result struct {
	LockingPublicKey *ec.PublicKey
	Fields           [][]byte
}

// Lock builds a locking script that embeds fields and locks to the key derived from
// protocol, keyID and counterparty.
//
// When includeSignature is set, the wallet signs the concatenation of all fields and the
// DER signature is appended as the last field.
func (p *PushDrop) Lock(
	ctx context.Context,
	fields [][]byte,
	protocol wallet.Protocol,
	keyID string,
	counterparty wallet.Counterparty,
	forSelf bool,
	includeSignature bool,
	position LockPosition,
) (*script.Script, error) {
	if p.Wallet == nil {
		return nil, errNilWallet
	}

	encArgs := wallet.EncryptionArgs{
		ProtocolID:   protocol,
		KeyID:        keyID,
		Counterparty: counterparty,
	}

	pub, err := p.Wallet.GetPublicKey(ctx, wallet.GetPublicKeyArgs{
		EncryptionArgs: encArgs,
		ForSelf:        &forSelf,
	}, p.Originator)
	if err != nil {
		return nil, fmt.Errorf("failed to derive locking key: %w", err)
	}
	if pub == nil || pub.PublicKey == nil {
		return nil, errNilPublicKey
	}

	allFields := make([][]byte, 0, len(fields)+1)
	allFields = append(allFields, fields...)

	if includeSignature {
		var data []byte
		for _, f := range fields {
			data = append(data, f...)
		}
		sig, err := p.Wallet.CreateSignature(ctx, wallet.CreateSignatureArgs{
			EncryptionArgs: encArgs,
			Data:           data,
		}, p.Originator)
		if err != nil {
			return nil, fmt.Errorf("failed to sign fields: %w", err)
		}
		if sig == nil {
			return nil, errNilSignature
		}
		allFields = append(allFields, sig.Signature.Serialize())
	}

	lock := make([]byte, 0, compressedPubKeyLen+2)
	lock = append(lock, MinimalPush(pub.PublicKey.Compressed())...)
	lock = append(lock, script.OpCHECKSIG)

	var body []byte
	for _, f := range allFields {
		body = append(body, MinimalPush(f)...)
	}
	for remaining := len(allFields); remaining > 0; remaining -= 2 {
		if remaining == 1 {
			body = append(body, script.OpDROP)
			break
		}
		body = append(body, script.Op2DROP)
	}

	var out []byte
	if position == LockBefore {
		out = append(lock, body...)
	} else {
		out = append(body, lock...)
	}
	s := script.Script(out)
	return &s, nil
}

// Decode recovers the locking key and fields from a pushdrop locking script. Both lock
// positions are recognised. Fields are read until the first OP_DROP or OP_2DROP.
func Decode(s *script.Script) (*Result, error) {
	if s == nil {
		return nil, ErrNoLock
	}
	chunks, err := ParseChunks(*s)
	if err != nil {
		return nil, err
	}
	if len(chunks) < 2 {
		return nil, ErrNoLock
	}

	var lockKey []byte
	var fieldChunks []Chunk
	switch {
	case isLockKey(chunks[0]) && chunks[1].Op == script.OpCHECKSIG:
		lockKey = chunks[0].Data
		fieldChunks = chunks[2:]
	case chunks[len(chunks)-1].Op == script.OpCHECKSIG && isLockKey(chunks[len(chunks)-2]):
		lockKey = chunks[len(chunks)-2].Data
		fieldChunks = chunks[:len(chunks)-2]
	default:
		return nil, ErrNoLock
	}

	pub, err := ec.ParsePubKey(lockKey)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid locking key: %w", ErrNoLock, err)
	}

	fields := make([][]byte, 0, len(fieldChunks))
	for _, c := range fieldChunks {
		if c.Op == script.OpDROP || c.Op == script.Op2DROP {
			break
		}
		f, err := c.Field()
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}

	return &Result{LockingPublicKey: pub, Fields: fields}, nil
}

func isLockKey(c Chunk) bool {
	return c.Op == compressedPubKeyLen && len(c.Data) == compressedPubKeyLen
}
