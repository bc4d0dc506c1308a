package pushdrop

import (
	"context"
	"errors"
	"fmt"

	hash "github.com/bsv-blockchain/go-sdk/primitives/hash"
	"github.com/bsv-blockchain/go-sdk/script"
	"github.com/bsv-blockchain/go-sdk/transaction"
	sighash "github.com/bsv-blockchain/go-sdk/transaction/sighash"
	"github.com/bsv-blockchain/go-sdk/wallet"
)

// SignOutputs selects which outputs an unlocking signature commits to.
type SignOutputs int

const (
	SignAll SignOutputs = iota
	SignNone
	SignSingle
)

// UnlockLength is the worst-case size of the unlocking script: a one-byte push opcode,
// a 71-byte DER signature and the sighash byte.
const UnlockLength = 73

// Static error variables for err113 compliance
var (
	ErrMissingSourceTXID   = errors.New("input is missing its source transaction id")
	ErrMissingSourceOutput = errors.New("input is missing its source output (satoshis and locking script)")
	errInputOutOfRange     = errors.New("input index out of range")
)

// Unlocker spends pushdrop outputs. It implements transaction.UnlockingScriptTemplate.
type Unlocker struct {
	pushDrop     *PushDrop
	ctx          context.Context
	protocol     wallet.Protocol
	keyID        string
	counterparty wallet.Counterparty
	scope        SignOutputs
	anyoneCanPay bool
}

var _ transaction.UnlockingScriptTemplate = (*Unlocker)(nil)

// Unlock returns an unlocking template that signs with the key derived from protocol,
// keyID and counterparty. ctx is used for the wallet call made during Sign.
func (p *PushDrop) Unlock(
	ctx context.Context,
	protocol wallet.Protocol,
	keyID string,
	counterparty wallet.Counterparty,
	scope SignOutputs,
	anyoneCanPay bool,
) *Unlocker {
	return &Unlocker{
		pushDrop:     p,
		ctx:          ctx,
		protocol:     protocol,
		keyID:        keyID,
		counterparty: counterparty,
		scope:        scope,
		anyoneCanPay: anyoneCanPay,
	}
}

// SigHashFlag returns the sighash flag the unlocker appends to its signatures.
func (u *Unlocker) SigHashFlag() sighash.Flag {
	flag := sighash.ForkID
	switch u.scope {
	case SignNone:
		flag |= sighash.None
	case SignSingle:
		flag |= sighash.Single
	default:
		flag |= sighash.All
	}
	if u.anyoneCanPay {
		flag |= sighash.AnyOneCanPay
	}
	return flag
}

// Sign produces a single-push unlocking script holding the DER signature followed by the
// sighash byte.
func (u *Unlocker) Sign(tx *transaction.Transaction, inputIndex uint32) (*script.Script, error) {
	if u.pushDrop == nil || u.pushDrop.Wallet == nil {
		return nil, errNilWallet
	}
	if int(inputIndex) >= len(tx.Inputs) {
		return nil, fmt.Errorf("%w: %d", errInputOutOfRange, inputIndex)
	}
	input := tx.Inputs[inputIndex]
	if input.SourceTXID == nil {
		return nil, ErrMissingSourceTXID
	}
	if src := input.SourceTxOutput(); src == nil || src.LockingScript == nil {
		return nil, ErrMissingSourceOutput
	}

	flag := u.SigHashFlag()
	preimage, err := tx.CalcInputPreimage(inputIndex, flag)
	if err != nil {
		return nil, fmt.Errorf("failed to compute signature preimage: %w", err)
	}

	// The wallet hashes Data once more, so the signed digest is sha256d(preimage).
	res, err := u.pushDrop.Wallet.CreateSignature(u.ctx, wallet.CreateSignatureArgs{
		EncryptionArgs: wallet.EncryptionArgs{
			ProtocolID:   u.protocol,
			KeyID:        u.keyID,
			Counterparty: u.counterparty,
		},
		Data: hash.Sha256(preimage),
	}, u.pushDrop.Originator)
	if err != nil {
		return nil, fmt.Errorf("failed to sign input %d: %w", inputIndex, err)
	}
	if res == nil || res.Signature == nil {
		return nil, errNilSignature
	}

	sig := append(res.Signature.Serialize(), byte(flag))
	s := script.Script(MinimalPush(sig))
	return &s, nil
}

// EstimateLength returns the maximum unlocking script length.
func (u *Unlocker) EstimateLength(_ *transaction.Transaction, _ uint32) uint32 {
	return UnlockLength
}
