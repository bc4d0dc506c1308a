package pushdrop

import (
	"bytes"
	"context"
	"testing"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	hash "github.com/bsv-blockchain/go-sdk/primitives/hash"
	"github.com/bsv-blockchain/go-sdk/script"
	"github.com/bsv-blockchain/go-sdk/transaction"
	sighash "github.com/bsv-blockchain/go-sdk/transaction/sighash"
	"github.com/bsv-blockchain/go-sdk/wallet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testProtocol = wallet.Protocol{
	SecurityLevel: wallet.SecurityLevelEveryAppAndCounterparty,
	Protocol:      "pushdrop tests",
}

func newTestWallet(t *testing.T, seedByte byte) *wallet.Wallet {
	t.Helper()
	seed := make([]byte, 32)
	seed[0] = seedByte
	key, _ := ec.PrivateKeyFromBytes(seed)
	w, err := wallet.NewWallet(key)
	require.NoError(t, err)
	return w
}

func selfCounterparty() wallet.Counterparty {
	return wallet.Counterparty{Type: wallet.CounterpartyTypeSelf}
}

func derivedKey(t *testing.T, w *wallet.Wallet) *ec.PublicKey {
	t.Helper()
	forSelfTrue := true
	res, err := w.GetPublicKey(context.Background(), wallet.GetPublicKeyArgs{
		EncryptionArgs: wallet.EncryptionArgs{
			ProtocolID:   testProtocol,
			KeyID:        "1",
			Counterparty: selfCounterparty(),
		},
		ForSelf: &forSelfTrue,
	}, "")
	require.NoError(t, err)
	return res.PublicKey
}

func TestMinimalPush(t *testing.T) {
	tests := []struct {
		name   string
		data   []byte
		prefix []byte
	}{
		{"empty becomes OP_0", []byte{}, []byte{script.Op0}},
		{"zero byte becomes OP_0", []byte{0}, []byte{script.Op0}},
		{"one becomes OP_1", []byte{1}, []byte{script.Op1}},
		{"sixteen becomes OP_16", []byte{16}, []byte{script.Op16}},
		{"0x81 becomes OP_1NEGATE", []byte{0x81}, []byte{script.Op1NEGATE}},
		{"seventeen is a direct push", []byte{17}, []byte{0x01}},
		{"75 bytes is a direct push", bytes.Repeat([]byte{0xaa}, 75), []byte{75}},
		{"76 bytes uses PUSHDATA1", bytes.Repeat([]byte{0xaa}, 76), []byte{script.OpPUSHDATA1, 76}},
		{"255 bytes uses PUSHDATA1", bytes.Repeat([]byte{0xaa}, 255), []byte{script.OpPUSHDATA1, 0xff}},
		{"256 bytes uses PUSHDATA2", bytes.Repeat([]byte{0xaa}, 256), []byte{script.OpPUSHDATA2, 0x00, 0x01}},
		{"65535 bytes uses PUSHDATA2", bytes.Repeat([]byte{0xaa}, 65535), []byte{script.OpPUSHDATA2, 0xff, 0xff}},
		{"65536 bytes uses PUSHDATA4", bytes.Repeat([]byte{0xaa}, 65536), []byte{script.OpPUSHDATA4, 0x00, 0x00, 0x01, 0x00}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := MinimalPush(tt.data)
			require.True(t, bytes.HasPrefix(out, tt.prefix), "prefix %x", out[:min(len(out), 5)])

			smallInt := len(tt.prefix) == 1 && len(out) == 1
			if !smallInt {
				assert.Len(t, out, len(tt.prefix)+len(tt.data))
			}

			c, next, err := ReadChunk(out, 0)
			require.NoError(t, err)
			assert.Equal(t, len(out), next)
			field, err := c.Field()
			require.NoError(t, err)
			if len(tt.data) == 0 {
				assert.Equal(t, []byte{0}, field)
			} else {
				assert.Equal(t, tt.data, field)
			}
		})
	}
}

func TestReadChunkTruncated(t *testing.T) {
	cases := map[string][]byte{
		"direct push":       {0x05, 0x01, 0x02},
		"pushdata1 length":  {script.OpPUSHDATA1},
		"pushdata1 payload": {script.OpPUSHDATA1, 0x04, 0x01},
		"pushdata2 length":  {script.OpPUSHDATA2, 0x01},
		"pushdata4 length":  {script.OpPUSHDATA4, 0x01, 0x00},
	}
	for name, b := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := ReadChunk(b, 0)
			require.ErrorIs(t, err, ErrMalformedScript)
		})
	}
}

func TestLockDecodeRoundTrip(t *testing.T) {
	ctx := context.Background()
	w := newTestWallet(t, 7)
	pd := &PushDrop{Wallet: w}

	fields := [][]byte{
		[]byte("hello"),
		{0},
		{16},
		{0x81},
		bytes.Repeat([]byte{0x42}, 80),
		bytes.Repeat([]byte{0x43}, 300),
	}

	for _, position := range []LockPosition{LockBefore, LockAfter} {
		for _, withSig := range []bool{false, true} {
			lock, err := pd.Lock(ctx, fields, testProtocol, "1", selfCounterparty(), true, withSig, position)
			require.NoError(t, err)

			decoded, err := Decode(lock)
			require.NoError(t, err)
			assert.True(t, decoded.LockingPublicKey.IsEqual(derivedKey(t, w)))

			if withSig {
				require.Len(t, decoded.Fields, len(fields)+1)
				assert.Equal(t, fields, decoded.Fields[:len(fields)])
			} else {
				assert.Equal(t, fields, decoded.Fields)
			}
		}
	}
}

func TestLockLayout(t *testing.T) {
	ctx := context.Background()
	pd := &PushDrop{Wallet: newTestWallet(t, 9)}

	t.Run("even field count ends with 2DROP pairs", func(t *testing.T) {
		lock, err := pd.Lock(ctx, [][]byte{[]byte("a"), []byte("b")}, testProtocol, "1", selfCounterparty(), true, false, LockBefore)
		require.NoError(t, err)
		chunks, err := ParseChunks(*lock)
		require.NoError(t, err)
		require.Len(t, chunks, 5)
		assert.Equal(t, byte(33), chunks[0].Op)
		assert.Equal(t, byte(script.OpCHECKSIG), chunks[1].Op)
		assert.Equal(t, byte(script.Op2DROP), chunks[4].Op)
	})

	t.Run("odd field count ends with DROP", func(t *testing.T) {
		lock, err := pd.Lock(ctx, [][]byte{[]byte("a"), []byte("b"), []byte("c")}, testProtocol, "1", selfCounterparty(), true, false, LockBefore)
		require.NoError(t, err)
		chunks, err := ParseChunks(*lock)
		require.NoError(t, err)
		require.Len(t, chunks, 7)
		assert.Equal(t, byte(script.Op2DROP), chunks[5].Op)
		assert.Equal(t, byte(script.OpDROP), chunks[6].Op)
	})

	t.Run("lock after puts checksig last", func(t *testing.T) {
		lock, err := pd.Lock(ctx, [][]byte{[]byte("a")}, testProtocol, "1", selfCounterparty(), true, false, LockAfter)
		require.NoError(t, err)
		chunks, err := ParseChunks(*lock)
		require.NoError(t, err)
		require.Len(t, chunks, 4)
		assert.Equal(t, byte(script.OpDROP), chunks[1].Op)
		assert.Equal(t, byte(script.OpCHECKSIG), chunks[3].Op)
	})
}

func TestLockSignatureVerifies(t *testing.T) {
	ctx := context.Background()
	w := newTestWallet(t, 11)
	pd := &PushDrop{Wallet: w}
	fields := [][]byte{[]byte("one"), []byte("two")}

	lock, err := pd.Lock(ctx, fields, testProtocol, "1", selfCounterparty(), true, true, LockBefore)
	require.NoError(t, err)
	decoded, err := Decode(lock)
	require.NoError(t, err)

	sig, err := ec.ParseSignature(decoded.Fields[2])
	require.NoError(t, err)
	res, err := w.VerifySignature(ctx, wallet.VerifySignatureArgs{
		EncryptionArgs: wallet.EncryptionArgs{
			ProtocolID:   testProtocol,
			KeyID:        "1",
			Counterparty: selfCounterparty(),
		},
		Data:      []byte("onetwo"),
		Signature: sig,
	}, "")
	require.NoError(t, err)
	assert.True(t, res.Valid)
}

func TestDecodeErrors(t *testing.T) {
	t.Run("nil script", func(t *testing.T) {
		_, err := Decode(nil)
		require.ErrorIs(t, err, ErrNoLock)
	})

	t.Run("no checksig", func(t *testing.T) {
		s := script.Script(append(MinimalPush([]byte("x")), script.OpDROP))
		_, err := Decode(&s)
		require.ErrorIs(t, err, ErrNoLock)
	})

	t.Run("truncated push", func(t *testing.T) {
		s := script.Script{0x10, 0x01}
		_, err := Decode(&s)
		require.ErrorIs(t, err, ErrMalformedScript)
	})
}

func TestUnlockSignsInput(t *testing.T) {
	ctx := context.Background()
	w := newTestWallet(t, 13)
	pd := &PushDrop{Wallet: w}

	lock, err := pd.Lock(ctx, [][]byte{[]byte("token")}, testProtocol, "1", selfCounterparty(), true, false, LockBefore)
	require.NoError(t, err)

	source := transaction.NewTransaction()
	source.AddOutput(&transaction.TransactionOutput{Satoshis: 1000, LockingScript: lock})

	spend := transaction.NewTransaction()
	spend.AddInput(&transaction.TransactionInput{
		SourceTXID:        source.TxID(),
		SourceTxOutIndex:  0,
		SourceTransaction: source,
		SequenceNumber:    0xffffffff,
	})
	spend.AddOutput(&transaction.TransactionOutput{Satoshis: 900, LockingScript: lock})

	unlocker := pd.Unlock(ctx, testProtocol, "1", selfCounterparty(), SignAll, false)
	assert.Equal(t, uint32(73), unlocker.EstimateLength(spend, 0))

	unlocking, err := unlocker.Sign(spend, 0)
	require.NoError(t, err)

	chunks, err := ParseChunks(*unlocking)
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	sigBytes := chunks[0].Data
	flag := sighash.All | sighash.ForkID
	assert.Equal(t, byte(flag), sigBytes[len(sigBytes)-1])

	sig, err := ec.ParseSignature(sigBytes[:len(sigBytes)-1])
	require.NoError(t, err)

	preimage, err := spend.CalcInputPreimage(0, flag)
	require.NoError(t, err)
	assert.True(t, sig.Verify(hash.Sha256d(preimage), derivedKey(t, w)))
}

func TestUnlockSigHashFlag(t *testing.T) {
	pd := &PushDrop{}
	ctx := context.Background()
	assert.Equal(t, sighash.ForkID|sighash.All, pd.Unlock(ctx, testProtocol, "1", selfCounterparty(), SignAll, false).SigHashFlag())
	assert.Equal(t, sighash.ForkID|sighash.None, pd.Unlock(ctx, testProtocol, "1", selfCounterparty(), SignNone, false).SigHashFlag())
	assert.Equal(t, sighash.ForkID|sighash.Single|sighash.AnyOneCanPay, pd.Unlock(ctx, testProtocol, "1", selfCounterparty(), SignSingle, true).SigHashFlag())
}

func TestUnlockMissingSource(t *testing.T) {
	ctx := context.Background()
	pd := &PushDrop{Wallet: newTestWallet(t, 15)}
	unlocker := pd.Unlock(ctx, testProtocol, "1", selfCounterparty(), SignAll, false)

	t.Run("missing txid", func(t *testing.T) {
		tx := transaction.NewTransaction()
		tx.AddInput(&transaction.TransactionInput{SequenceNumber: 0xffffffff})
		_, err := unlocker.Sign(tx, 0)
		require.ErrorIs(t, err, ErrMissingSourceTXID)
	})

	t.Run("missing source output", func(t *testing.T) {
		source := transaction.NewTransaction()
		tx := transaction.NewTransaction()
		tx.AddInput(&transaction.TransactionInput{SourceTXID: source.TxID(), SequenceNumber: 0xffffffff})
		_, err := unlocker.Sign(tx, 0)
		require.ErrorIs(t, err, ErrMissingSourceOutput)
	})
}
