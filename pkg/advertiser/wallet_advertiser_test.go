package advertiser

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/bsv-blockchain/go-overlay-client/internal/overlaytest"
	"github.com/bsv-blockchain/go-overlay-client/pkg/admintoken"
	"github.com/bsv-blockchain/go-overlay-client/pkg/pushdrop"
	"github.com/bsv-blockchain/go-overlay-client/pkg/types"
	"github.com/bsv-blockchain/go-sdk/overlay"
	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	hash "github.com/bsv-blockchain/go-sdk/primitives/hash"
	"github.com/bsv-blockchain/go-sdk/script"
	"github.com/bsv-blockchain/go-sdk/transaction"
	sighash "github.com/bsv-blockchain/go-sdk/transaction/sighash"
	"github.com/bsv-blockchain/go-sdk/wallet"
)

const testURI = "https://advertiser.example"

var errTestWallet = errors.New("wallet unavailable")

// MockWallet signs with a real key and mocks the action methods.
type MockWallet struct {
	*wallet.Wallet
	mock.Mock
}

func (m *MockWallet) CreateAction(ctx context.Context, args wallet.CreateActionArgs, originator string) (*wallet.CreateActionResult, error) {
	ret := m.Called(ctx, args, originator)
	if fn, ok := ret.Get(0).(func(wallet.CreateActionArgs) *wallet.CreateActionResult); ok {
		return fn(args), ret.Error(1)
	}
	res, _ := ret.Get(0).(*wallet.CreateActionResult)
	return res, ret.Error(1)
}

func (m *MockWallet) SignAction(ctx context.Context, args wallet.SignActionArgs, originator string) (*wallet.SignActionResult, error) {
	ret := m.Called(ctx, args, originator)
	if fn, ok := ret.Get(0).(func(wallet.SignActionArgs) *wallet.SignActionResult); ok {
		return fn(args), ret.Error(1)
	}
	res, _ := ret.Get(0).(*wallet.SignActionResult)
	return res, ret.Error(1)
}

// MockResolver is a mock lookup resolver.
type MockResolver struct {
	mock.Mock
}

func (m *MockResolver) Query(ctx context.Context, question *types.LookupQuestion, timeout time.Duration) (types.LookupAnswer, error) {
	ret := m.Called(ctx, question, timeout)
	answer, _ := ret.Get(0).(types.LookupAnswer)
	return answer, ret.Error(1)
}

func newMockWallet(t *testing.T, seed byte) *MockWallet {
	return &MockWallet{Wallet: overlaytest.Wallet(t, seed)}
}

func newInitialized(t *testing.T, w *MockWallet, opts ...Option) *WalletAdvertiser {
	t.Helper()
	wa, err := NewWalletAdvertiser("main", testURI, w, opts...)
	require.NoError(t, err)
	require.NoError(t, wa.Init(context.Background()))
	return wa
}

func identityHex(t *testing.T, w *MockWallet) string {
	t.Helper()
	res, err := w.GetPublicKey(context.Background(), wallet.GetPublicKeyArgs{IdentityKey: true}, "")
	require.NoError(t, err)
	return hex.EncodeToString(res.PublicKey.Compressed())
}

func TestNewWalletAdvertiser(t *testing.T) {
	w := newMockWallet(t, 1)

	tests := []struct {
		name            string
		chain           string
		advertisableURI string
		wallet          Wallet
		errorContains   string
	}{
		{name: "valid configuration", chain: "main", advertisableURI: "https://example.com/", wallet: w},
		{name: "missing chain", chain: " ", advertisableURI: "https://example.com/", wallet: w, errorContains: "chain parameter is required"},
		{name: "missing URI", chain: "main", advertisableURI: "", wallet: w, errorContains: "advertisableURI parameter is required"},
		{
			name:            "invalid advertisable URI",
			chain:           "main",
			advertisableURI: "http://example.com/",
			wallet:          w,
			errorContains:   "refusing to initialize with non-advertisable URI",
		},
		{name: "missing wallet", chain: "main", advertisableURI: "https://example.com/", errorContains: "wallet parameter is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wa, err := NewWalletAdvertiser(tt.chain, tt.advertisableURI, tt.wallet)
			if tt.errorContains != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorContains)
				assert.Nil(t, wa)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.chain, wa.GetChain())
			assert.Equal(t, tt.advertisableURI, wa.GetAdvertisableURI())
			assert.False(t, wa.IsInitialized())
			assert.Empty(t, wa.IdentityKey())
		})
	}
}

func TestWalletAdvertiser_Init(t *testing.T) {
	w := newMockWallet(t, 2)
	wa, err := NewWalletAdvertiser("test", testURI, w)
	require.NoError(t, err)

	require.NoError(t, wa.Init(context.Background()))
	assert.True(t, wa.IsInitialized())
	assert.Equal(t, identityHex(t, w), wa.IdentityKey())
	assert.Equal(t, overlay.NetworkTestnet, wa.network())

	err = wa.Init(context.Background())
	require.ErrorIs(t, err, errAlreadyInitialized)
}

func TestWalletAdvertiser_CreateAdvertisements(t *testing.T) {
	ctx := context.Background()
	w := newMockWallet(t, 3)

	var issued *transaction.Transaction
	w.On("CreateAction", mock.Anything, mock.MatchedBy(func(args wallet.CreateActionArgs) bool {
		return args.Description == "SHIP/SLAP Advertisement Issuance"
	}), "").Return(func(args wallet.CreateActionArgs) *wallet.CreateActionResult {
		issued = transaction.NewTransaction()
		for _, out := range args.Outputs {
			issued.AddOutput(&transaction.TransactionOutput{
				Satoshis:      out.Satoshis,
				LockingScript: script.NewFromBytes(out.LockingScript),
			})
		}
		return &wallet.CreateActionResult{Tx: overlaytest.BEEF(t, issued)}
	}, nil).Once()

	wa, err := NewWalletAdvertiser("main", testURI, w)
	require.NoError(t, err)

	_, err = wa.CreateAdvertisements(ctx, []*types.AdvertisementData{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "initialize the Advertiser using Init()")

	require.NoError(t, wa.Init(ctx))

	_, err = wa.CreateAdvertisements(ctx, nil)
	require.ErrorIs(t, err, errNoAdvertisementData)

	_, err = wa.CreateAdvertisements(ctx, []*types.AdvertisementData{
		{Protocol: overlay.ProtocolSHIP, TopicOrServiceName: "invalid topic!"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refusing to create SHIP advertisement with invalid topic")

	_, err = wa.CreateAdvertisements(ctx, []*types.AdvertisementData{
		{Protocol: overlay.ProtocolSLAP, TopicOrServiceName: "tm_wrong_prefix"},
	})
	require.ErrorIs(t, err, errInvalidName)

	_, err = wa.CreateAdvertisements(ctx, []*types.AdvertisementData{
		{Protocol: "FOO", TopicOrServiceName: "tm_foo"},
	})
	require.ErrorIs(t, err, admintoken.ErrUnsupportedProtocol)

	tagged, err := wa.CreateAdvertisements(ctx, []*types.AdvertisementData{
		{Protocol: overlay.ProtocolSHIP, TopicOrServiceName: "tm_foo"},
		{Protocol: overlay.ProtocolSLAP, TopicOrServiceName: "ls_foo"},
		{Protocol: overlay.ProtocolSHIP, TopicOrServiceName: "tm_bar"},
	})
	require.NoError(t, err)
	w.AssertExpectations(t)

	assert.Equal(t, []string{"tm_ship", "tm_slap"}, tagged.Topics)

	tx, err := types.SubjectTransaction(tagged.Beef)
	require.NoError(t, err)
	assert.Equal(t, issued.TxID().String(), tx.TxID().String())
	require.Len(t, tx.Outputs, 3)

	want := []struct {
		protocol overlay.Protocol
		name     string
	}{
		{overlay.ProtocolSHIP, "tm_foo"},
		{overlay.ProtocolSLAP, "ls_foo"},
		{overlay.ProtocolSHIP, "tm_bar"},
	}
	for i, out := range tx.Outputs {
		assert.Equal(t, uint64(AdTokenValue), out.Satoshis)
		ad, err := admintoken.Verify(ctx, out.LockingScript)
		require.NoError(t, err)
		assert.Equal(t, want[i].protocol, ad.Protocol)
		assert.Equal(t, want[i].name, ad.TopicOrService)
		assert.Equal(t, testURI, ad.Domain)
		assert.Equal(t, wa.IdentityKey(), ad.IdentityKey)
	}
}

func TestWalletAdvertiser_CreateAdvertisementsWalletError(t *testing.T) {
	w := newMockWallet(t, 4)
	w.On("CreateAction", mock.Anything, mock.Anything, "").Return(nil, errTestWallet).Once()
	wa := newInitialized(t, w)

	_, err := wa.CreateAdvertisements(context.Background(), []*types.AdvertisementData{
		{Protocol: overlay.ProtocolSHIP, TopicOrServiceName: "tm_foo"},
	})
	require.ErrorIs(t, err, errTestWallet)
	w.AssertExpectations(t)
}

func TestWalletAdvertiser_ParseAdvertisement(t *testing.T) {
	w := newMockWallet(t, 5)
	wa, err := NewWalletAdvertiser("main", testURI, w)
	require.NoError(t, err)

	_, err = wa.ParseAdvertisement(script.NewFromBytes([]byte{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty script")

	_, err = wa.ParseAdvertisement(overlaytest.OpReturn("nope"))
	require.ErrorIs(t, err, admintoken.ErrInvalidAdvertisement)

	lock := overlaytest.Advertisement(t, w.Wallet, overlay.ProtocolSLAP, testURI, "ls_foo")
	ad, err := wa.ParseAdvertisement(lock)
	require.NoError(t, err)
	assert.Equal(t, overlay.ProtocolSLAP, ad.Protocol)
	assert.Equal(t, identityHex(t, w), ad.IdentityKey)
	assert.Equal(t, testURI, ad.Domain)
	assert.Equal(t, "ls_foo", ad.TopicOrService)
	assert.Nil(t, ad.OutputIndex)
}

func TestWalletAdvertiser_FindAllAdvertisements(t *testing.T) {
	ctx := context.Background()
	w := newMockWallet(t, 6)
	resolver := new(MockResolver)

	shipAd := overlaytest.Advertisement(t, w.Wallet, overlay.ProtocolSHIP, testURI, "tm_foo")
	slapAd := overlaytest.Advertisement(t, w.Wallet, overlay.ProtocolSLAP, testURI, "ls_foo")
	outputs := []types.OutputRef{
		{Beef: overlaytest.BEEF(t, overlaytest.Tx(1, overlaytest.OpReturn("filler"), shipAd)), OutputIndex: 1},
		{Beef: overlaytest.BEEF(t, overlaytest.Tx(2, slapAd)), OutputIndex: 0},
		{Beef: overlaytest.BEEF(t, overlaytest.Tx(3, overlaytest.OpReturn("junk"))), OutputIndex: 0},
		{Beef: []byte{0xde, 0xad}, OutputIndex: 0},
	}

	wa, err := NewWalletAdvertiser("main", testURI, w, WithResolver(resolver))
	require.NoError(t, err)

	_, err = wa.FindAllAdvertisements(ctx, overlay.ProtocolSHIP)
	require.ErrorIs(t, err, errNotInitialized)

	require.NoError(t, wa.Init(ctx))

	resolver.On("Query", mock.Anything, mock.MatchedBy(func(q *types.LookupQuestion) bool {
		var query types.SHIPQuery
		return q.Service == types.ServiceSHIP &&
			json.Unmarshal(q.Query, &query) == nil &&
			query.IdentityKey != nil && *query.IdentityKey == wa.IdentityKey()
	}), time.Duration(0)).Return(&types.OutputListAnswer{Outputs: outputs}, nil).Once()

	ads, err := wa.FindAllAdvertisements(ctx, overlay.ProtocolSHIP)
	require.NoError(t, err)
	require.Len(t, ads, 1)
	assert.Equal(t, "tm_foo", ads[0].TopicOrService)
	assert.Equal(t, outputs[0].Beef, ads[0].Beef)
	require.NotNil(t, ads[0].OutputIndex)
	assert.Equal(t, uint32(1), *ads[0].OutputIndex)

	_, err = wa.FindAllAdvertisements(ctx, "FOO")
	require.ErrorIs(t, err, admintoken.ErrUnsupportedProtocol)

	resolver.AssertExpectations(t)
}

func TestWalletAdvertiser_FindAllAdvertisementsLookupFailure(t *testing.T) {
	w := newMockWallet(t, 7)
	resolver := new(MockResolver)
	resolver.On("Query", mock.Anything, mock.MatchedBy(func(q *types.LookupQuestion) bool {
		return q.Service == types.ServiceSLAP
	}), time.Duration(0)).Return(nil, errTestWallet).Once()

	wa := newInitialized(t, w, WithResolver(resolver))

	ads, err := wa.FindAllAdvertisements(context.Background(), overlay.ProtocolSLAP)
	require.NoError(t, err)
	assert.NotNil(t, ads)
	assert.Empty(t, ads)
	resolver.AssertExpectations(t)
}

func TestWalletAdvertiser_RevokeAdvertisements(t *testing.T) {
	ctx := context.Background()
	w := newMockWallet(t, 8)

	lock := overlaytest.Advertisement(t, w.Wallet, overlay.ProtocolSHIP, testURI, "tm_foo")
	source := overlaytest.Tx(5, overlaytest.OpReturn("change"), lock)
	index := uint32(1)
	ad := &types.Advertisement{
		Protocol:       overlay.ProtocolSHIP,
		IdentityKey:    identityHex(t, w),
		Domain:         testURI,
		TopicOrService: "tm_foo",
		Beef:           overlaytest.BEEF(t, source),
		OutputIndex:    &index,
	}

	wa, err := NewWalletAdvertiser("main", testURI, w)
	require.NoError(t, err)

	_, err = wa.RevokeAdvertisements(ctx, []*types.Advertisement{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must provide advertisements to revoke")

	_, err = wa.RevokeAdvertisements(ctx, []*types.Advertisement{ad})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "initialize the Advertiser using Init()")

	require.NoError(t, wa.Init(ctx))

	t.Run("missing revocation data", func(t *testing.T) {
		_, err := wa.RevokeAdvertisements(ctx, []*types.Advertisement{{Protocol: overlay.ProtocolSHIP, OutputIndex: &index}})
		require.ErrorIs(t, err, errMissingBeefData)

		_, err = wa.RevokeAdvertisements(ctx, []*types.Advertisement{{Protocol: overlay.ProtocolSHIP, Beef: ad.Beef}})
		require.ErrorIs(t, err, errMissingOutputIndex)

		outOfRange := uint32(9)
		_, err = wa.RevokeAdvertisements(ctx, []*types.Advertisement{{Protocol: overlay.ProtocolSHIP, Beef: ad.Beef, OutputIndex: &outOfRange}})
		require.ErrorIs(t, err, types.ErrOutputIndexOutOfRange)
	})

	var spend *transaction.Transaction
	w.On("CreateAction", mock.Anything, mock.MatchedBy(func(args wallet.CreateActionArgs) bool {
		return len(args.Inputs) == 1 && len(args.InputBEEF) > 0
	}), "").Return(func(args wallet.CreateActionArgs) *wallet.CreateActionResult {
		in := args.Inputs[0]
		assert.Equal(t, source.TxID().String(), in.Outpoint.Txid.String())
		assert.Equal(t, index, in.Outpoint.Index)
		assert.Equal(t, uint32(pushdrop.UnlockLength), in.UnlockingScriptLength)

		spend = transaction.NewTransaction()
		spend.AddInput(&transaction.TransactionInput{
			SourceTXID:        source.TxID(),
			SourceTxOutIndex:  index,
			SourceTransaction: source,
			SequenceNumber:    0xffffffff,
		})
		spend.AddOutput(&transaction.TransactionOutput{Satoshis: 1, LockingScript: overlaytest.OpReturn("revoked")})
		return &wallet.CreateActionResult{SignableTransaction: &wallet.SignableTransaction{
			Tx:        overlaytest.BEEF(t, spend),
			Reference: []byte("ref-1"),
		}}
	}, nil).Once()

	var unlocking []byte
	w.On("SignAction", mock.Anything, mock.MatchedBy(func(args wallet.SignActionArgs) bool {
		return string(args.Reference) == "ref-1"
	}), "").Return(func(args wallet.SignActionArgs) *wallet.SignActionResult {
		unlocking = args.Spends[0].UnlockingScript
		spend.Inputs[0].UnlockingScript = script.NewFromBytes(unlocking)
		return &wallet.SignActionResult{Tx: overlaytest.BEEF(t, spend)}
	}, nil).Once()

	tagged, err := wa.RevokeAdvertisements(ctx, []*types.Advertisement{ad})
	require.NoError(t, err)
	w.AssertExpectations(t)
	assert.Equal(t, []string{"tm_ship"}, tagged.Topics)

	revoked, err := types.SubjectTransaction(tagged.Beef)
	require.NoError(t, err)
	assert.Equal(t, spend.TxID().String(), revoked.TxID().String())

	// The spend signature must verify against the advertisement's locking key.
	chunks, err := pushdrop.ParseChunks(unlocking)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	sigBytes := chunks[0].Data
	flag := sighash.All | sighash.ForkID
	assert.Equal(t, byte(flag), sigBytes[len(sigBytes)-1])

	sig, err := ec.ParseSignature(sigBytes[:len(sigBytes)-1])
	require.NoError(t, err)
	spend.Inputs[0].UnlockingScript = nil
	preimage, err := spend.CalcInputPreimage(0, flag)
	require.NoError(t, err)

	decoded, err := pushdrop.Decode(lock)
	require.NoError(t, err)
	assert.True(t, sig.Verify(hash.Sha256d(preimage), decoded.LockingPublicKey))
}
