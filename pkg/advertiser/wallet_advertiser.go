// Package advertiser implements the WalletAdvertiser functionality for creating and managing
// SHIP (Service Host Interconnect Protocol) and SLAP (Service Lookup Availability Protocol) advertisements.
package advertiser

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bsv-blockchain/go-overlay-client/pkg/admintoken"
	"github.com/bsv-blockchain/go-overlay-client/pkg/lookup"
	"github.com/bsv-blockchain/go-overlay-client/pkg/pushdrop"
	"github.com/bsv-blockchain/go-overlay-client/pkg/types"
	"github.com/bsv-blockchain/go-overlay-client/pkg/utils"
	"github.com/bsv-blockchain/go-sdk/overlay"
	"github.com/bsv-blockchain/go-sdk/script"
	"github.com/bsv-blockchain/go-sdk/transaction"
	"github.com/bsv-blockchain/go-sdk/wallet"
)

// AdTokenValue is the default token value used for advertisements.
const AdTokenValue = 1

// FindTimeout bounds FindAllAdvertisements.
const FindTimeout = 30 * time.Second

// Static error variables for err113 compliance
var (
	errChainRequired           = errors.New("chain parameter is required and cannot be empty")
	errWalletRequired          = errors.New("wallet parameter is required")
	errAdvertisableURIRequired = errors.New("advertisableURI parameter is required and cannot be empty")
	errAdvertisableURIInvalid  = errors.New("refusing to initialize with non-advertisable URI")
	errAlreadyInitialized      = errors.New("WalletAdvertiser is already initialized")
	errNotInitialized          = errors.New("initialize the Advertiser using Init() before use")
	errNoAdvertisementData     = errors.New("at least one advertisement data entry is required")
	errNoAdvertisements        = errors.New("must provide advertisements to revoke")
	errInvalidName             = errors.New("invalid topic or service name")
	errMissingBeefData         = errors.New("is missing BEEF data required for revocation")
	errMissingOutputIndex      = errors.New("is missing output index required for revocation")
	errOutputScriptEmpty       = errors.New("cannot parse an empty script")
	errNoTransaction           = errors.New("wallet returned no transaction")
	errInputNotFound           = errors.New("revocation transaction does not spend advertisement")
)

// Wallet is what the advertiser needs from a BRC-100 wallet: key derivation and signing for
// the tokens, plus action creation for the transactions that carry them.
type Wallet interface {
	pushdrop.Signer
	CreateAction(ctx context.Context, args wallet.CreateActionArgs, originator string) (*wallet.CreateActionResult, error)
	SignAction(ctx context.Context, args wallet.SignActionArgs, originator string) (*wallet.SignActionResult, error)
}

// Resolver answers lookup questions. *lookup.Resolver implements it.
type Resolver interface {
	Query(ctx context.Context, question *types.LookupQuestion, timeout time.Duration) (types.LookupAnswer, error)
}

// Option configures a WalletAdvertiser.
type Option func(*WalletAdvertiser)

// WithResolver sets the resolver used by FindAllAdvertisements. The default is a
// lookup.Resolver for the advertiser's chain.
func WithResolver(r Resolver) Option {
	return func(w *WalletAdvertiser) { w.resolver = r }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(w *WalletAdvertiser) { w.logger = l }
}

// WithOriginator sets the originator passed on every wallet call.
func WithOriginator(originator string) Option {
	return func(w *WalletAdvertiser) { w.originator = originator }
}

// WalletAdvertiser implements the Advertiser interface for creating and managing
// overlay advertisements using a BSV wallet. It supports both SHIP and SLAP protocols
// for advertising services within the overlay network.
type WalletAdvertiser struct {
	// chain specifies the blockchain network (e.g., "main", "test")
	chain string
	// advertisableURI is the URI that will be advertised for service discovery
	advertisableURI string
	wallet          Wallet
	originator      string
	template        *admintoken.Template
	resolver        Resolver
	logger          *slog.Logger
	// identityKey is the hex-encoded identity key of the wallet, set by Init
	identityKey string
	initialized bool
}

// Compile-time verification that WalletAdvertiser implements types.Advertiser
var _ types.Advertiser = (*WalletAdvertiser)(nil)

// NewWalletAdvertiser creates a new WalletAdvertiser instance.
//
// Parameters:
//   - chain: "main", "test" or "local"; selects the default lookup preset
//   - advertisableURI: the URI advertised for this host, which must be advertisable
//   - wlt: the wallet that owns and signs the advertisements
//   - opts: optional settings
//
// Returns:
//   - *WalletAdvertiser: the advertiser, which must be initialized before use
//   - error: when a parameter is missing or the URI is not advertisable
func NewWalletAdvertiser(chain, advertisableURI string, wlt Wallet, opts ...Option) (*WalletAdvertiser, error) {
	if strings.TrimSpace(chain) == "" {
		return nil, errChainRequired
	}
	if strings.TrimSpace(advertisableURI) == "" {
		return nil, errAdvertisableURIRequired
	}
	if err := utils.ValidateAdvertisableURI(advertisableURI); err != nil {
		return nil, fmt.Errorf("%w: %w", errAdvertisableURIInvalid, err)
	}
	if wlt == nil {
		return nil, errWalletRequired
	}

	w := &WalletAdvertiser{
		chain:           chain,
		advertisableURI: advertisableURI,
		wallet:          wlt,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	w.template = &admintoken.Template{Wallet: wlt, Originator: w.originator}
	return w, nil
}

// Init resolves the wallet's identity key and prepares the default resolver.
// This method must be called before using any other advertiser functionality.
func (w *WalletAdvertiser) Init(ctx context.Context) error {
	if w.initialized {
		return errAlreadyInitialized
	}

	identity, err := w.wallet.GetPublicKey(ctx, wallet.GetPublicKeyArgs{IdentityKey: true}, w.originator)
	if err != nil {
		return fmt.Errorf("identity key derivation failed: %w", err)
	}
	w.identityKey = hex.EncodeToString(identity.PublicKey.Compressed())

	if w.resolver == nil {
		w.resolver = lookup.NewResolver(&lookup.Config{
			NetworkPreset: w.network(),
			Logger:        w.logger,
		})
	}

	w.initialized = true
	return nil
}

// CreateAdvertisements creates one advertisement output per entry in a single transaction
// and returns it tagged with the tm_ship and/or tm_slap topics.
func (w *WalletAdvertiser) CreateAdvertisements(ctx context.Context, adsData []*types.AdvertisementData) (*overlay.TaggedBEEF, error) {
	if !w.initialized {
		return nil, errNotInitialized
	}
	if len(adsData) == 0 {
		return nil, errNoAdvertisementData
	}

	outputs := make([]wallet.CreateActionOutput, 0, len(adsData))
	protocols := make([]overlay.Protocol, 0, len(adsData))
	for i, ad := range adsData {
		if ad == nil {
			return nil, fmt.Errorf("invalid advertisement data at index %d: %w", i, errNoAdvertisementData)
		}
		if ad.Protocol != overlay.ProtocolSHIP && ad.Protocol != overlay.ProtocolSLAP {
			return nil, fmt.Errorf("%w: %s", admintoken.ErrUnsupportedProtocol, ad.Protocol)
		}
		if !utils.IsValidNameForProtocol(ad.Protocol, ad.TopicOrServiceName) {
			return nil, fmt.Errorf("refusing to create %s advertisement with %w: %s", ad.Protocol, errInvalidName, ad.TopicOrServiceName)
		}

		lockingScript, err := w.template.Lock(ctx, ad.Protocol, w.advertisableURI, ad.TopicOrServiceName)
		if err != nil {
			return nil, fmt.Errorf("failed to create locking script: %w", err)
		}
		outputs = append(outputs, wallet.CreateActionOutput{
			OutputDescription: fmt.Sprintf("%s advertisement of %s", ad.Protocol, ad.TopicOrServiceName),
			Satoshis:          AdTokenValue,
			LockingScript:     lockingScript.Bytes(),
		})
		protocols = append(protocols, ad.Protocol)
	}

	result, err := w.wallet.CreateAction(ctx, wallet.CreateActionArgs{
		Outputs:     outputs,
		Description: "SHIP/SLAP Advertisement Issuance",
	}, w.originator)
	if err != nil {
		return nil, fmt.Errorf("failed to create action for advertisements: %w", err)
	}
	if result == nil || len(result.Tx) == 0 {
		return nil, errNoTransaction
	}

	beef, err := beefFromWalletTx(result.Tx)
	if err != nil {
		return nil, err
	}
	return &overlay.TaggedBEEF{Beef: beef, Topics: adminTopics(protocols)}, nil
}

// FindAllAdvertisements finds the advertisements for protocol created by this identity.
// Lookup failures are logged and yield an empty list.
func (w *WalletAdvertiser) FindAllAdvertisements(ctx context.Context, protocol overlay.Protocol) ([]*types.Advertisement, error) {
	if !w.initialized {
		return nil, errNotInitialized
	}

	var (
		question *types.LookupQuestion
		err      error
	)
	switch protocol {
	case overlay.ProtocolSHIP:
		question, err = types.NewLookupQuestion(types.ServiceSHIP, types.SHIPQuery{IdentityKey: &w.identityKey})
	case overlay.ProtocolSLAP:
		question, err = types.NewLookupQuestion(types.ServiceSLAP, types.SLAPQuery{IdentityKey: &w.identityKey})
	default:
		return nil, fmt.Errorf("%w: %s", admintoken.ErrUnsupportedProtocol, protocol)
	}
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, FindTimeout)
	defer cancel()

	advertisements := []*types.Advertisement{}
	answer, err := w.resolver.Query(ctx, question, 0)
	if err != nil {
		w.logger.Warn("Error finding advertisements", "protocol", protocol, "error", err)
		return advertisements, nil
	}

	list, ok := answer.(*types.OutputListAnswer)
	if !ok || list == nil {
		return advertisements, nil
	}
	for _, output := range list.Outputs {
		lockingScript, err := output.LockingScript()
		if err != nil {
			w.logger.Error("Failed to read advertisement output", "error", err)
			continue
		}
		ad, err := w.ParseAdvertisement(lockingScript)
		if err != nil {
			w.logger.Error("Failed to parse advertisement output", "error", err)
			continue
		}
		if ad.Protocol != protocol {
			continue
		}
		ad.Beef = output.Beef
		outputIndex := output.OutputIndex
		ad.OutputIndex = &outputIndex
		advertisements = append(advertisements, ad)
	}
	return advertisements, nil
}

// RevokeAdvertisements spends the given advertisements in one transaction and returns it
// tagged with the topics the advertisements were admitted under.
func (w *WalletAdvertiser) RevokeAdvertisements(ctx context.Context, advertisements []*types.Advertisement) (*overlay.TaggedBEEF, error) {
	if len(advertisements) == 0 {
		return nil, errNoAdvertisements
	}
	if !w.initialized {
		return nil, errNotInitialized
	}

	spent := make([]*revocation, 0, len(advertisements))
	protocols := make([]overlay.Protocol, 0, len(advertisements))
	for i, ad := range advertisements {
		r, err := newRevocation(ad)
		if err != nil {
			return nil, fmt.Errorf("advertisement at index %d %w", i, err)
		}
		spent = append(spent, r)
		protocols = append(protocols, ad.Protocol)
	}

	inputBEEF, err := mergeBEEF(advertisements)
	if err != nil {
		return nil, err
	}

	inputs := make([]wallet.CreateActionInput, 0, len(spent))
	for _, r := range spent {
		inputs = append(inputs, wallet.CreateActionInput{
			Outpoint:              r.outpoint,
			InputDescription:      fmt.Sprintf("Revoke %s advertisement of %s", r.ad.Protocol, r.ad.TopicOrService),
			UnlockingScriptLength: pushdrop.UnlockLength,
		})
	}

	created, err := w.wallet.CreateAction(ctx, wallet.CreateActionArgs{
		Description: "Revoke SHIP/SLAP advertisements",
		InputBEEF:   inputBEEF,
		Inputs:      inputs,
	}, w.originator)
	if err != nil {
		return nil, fmt.Errorf("failed to create revocation action: %w", err)
	}
	if created == nil || created.SignableTransaction == nil || len(created.SignableTransaction.Tx) == 0 {
		return nil, errNoTransaction
	}

	partial, err := types.SubjectTransaction(created.SignableTransaction.Tx)
	if err != nil {
		return nil, fmt.Errorf("failed to parse signable transaction: %w", err)
	}

	spends := make(map[uint32]wallet.SignActionSpend, len(spent))
	for _, r := range spent {
		si, err := r.sign(ctx, w.template, partial)
		if err != nil {
			return nil, err
		}
		spends[si.input] = wallet.SignActionSpend{UnlockingScript: si.unlocking.Bytes()}
	}

	signed, err := w.wallet.SignAction(ctx, wallet.SignActionArgs{
		Reference: created.SignableTransaction.Reference,
		Spends:    spends,
	}, w.originator)
	if err != nil {
		return nil, fmt.Errorf("failed to sign revocation action: %w", err)
	}
	if signed == nil || len(signed.Tx) == 0 {
		return nil, errNoTransaction
	}

	beef, err := beefFromWalletTx(signed.Tx)
	if err != nil {
		return nil, err
	}
	return &overlay.TaggedBEEF{Beef: beef, Topics: adminTopics(protocols)}, nil
}

// ParseAdvertisement parses an output script to extract advertisement information.
// BEEF and OutputIndex are left unset.
func (w *WalletAdvertiser) ParseAdvertisement(outputScript *script.Script) (*types.Advertisement, error) {
	if outputScript == nil || len(*outputScript) == 0 {
		return nil, errOutputScriptEmpty
	}
	return admintoken.Decode(outputScript)
}

// GetChain returns the blockchain network identifier
func (w *WalletAdvertiser) GetChain() string {
	return w.chain
}

// GetAdvertisableURI returns the advertisable URI
func (w *WalletAdvertiser) GetAdvertisableURI() string {
	return w.advertisableURI
}

// IdentityKey returns the hex-encoded identity key, empty until Init succeeds.
func (w *WalletAdvertiser) IdentityKey() string {
	return w.identityKey
}

// IsInitialized returns whether the advertiser has been initialized
func (w *WalletAdvertiser) IsInitialized() bool {
	return w.initialized
}

// network returns the overlay network based on the chain configuration
func (w *WalletAdvertiser) network() overlay.Network {
	network, err := lookup.ParseNetwork(w.chain)
	if err != nil {
		return overlay.NetworkMainnet
	}
	return network
}

// adminTopics returns the distinct admin topics for protocols, in first-seen order.
func adminTopics(protocols []overlay.Protocol) []string {
	var topics []string
	seen := make(map[string]struct{}, 2)
	for _, p := range protocols {
		t := utils.AdminTopic(p)
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		topics = append(topics, t)
	}
	return topics
}

// revocation is one advertisement output being spent.
type revocation struct {
	ad       *types.Advertisement
	source   *transaction.Transaction
	outpoint transaction.Outpoint
}

func newRevocation(ad *types.Advertisement) (*revocation, error) {
	if ad == nil || len(ad.Beef) == 0 {
		return nil, errMissingBeefData
	}
	if ad.OutputIndex == nil {
		return nil, errMissingOutputIndex
	}
	if ad.Protocol != overlay.ProtocolSHIP && ad.Protocol != overlay.ProtocolSLAP {
		return nil, fmt.Errorf("%w: %s", admintoken.ErrUnsupportedProtocol, ad.Protocol)
	}
	source, err := types.SubjectTransaction(ad.Beef)
	if err != nil {
		return nil, fmt.Errorf("has unreadable BEEF: %w", err)
	}
	if int(*ad.OutputIndex) >= len(source.Outputs) {
		return nil, fmt.Errorf("%w: %d", types.ErrOutputIndexOutOfRange, *ad.OutputIndex)
	}
	return &revocation{
		ad:       ad,
		source:   source,
		outpoint: transaction.Outpoint{Txid: *source.TxID(), Index: *ad.OutputIndex},
	}, nil
}

type signedInput struct {
	input     uint32
	unlocking *script.Script
}

// sign finds the input of tx spending the advertisement and signs it.
func (r *revocation) sign(ctx context.Context, template *admintoken.Template, tx *transaction.Transaction) (*signedInput, error) {
	for i, input := range tx.Inputs {
		if input.SourceTXID == nil || !input.SourceTXID.IsEqual(&r.outpoint.Txid) || input.SourceTxOutIndex != r.outpoint.Index {
			continue
		}
		if input.SourceTransaction == nil {
			input.SourceTransaction = r.source
		}

		unlocker, err := template.Unlock(ctx, r.ad.Protocol)
		if err != nil {
			return nil, err
		}
		unlocking, err := unlocker.Sign(tx, uint32(i))
		if err != nil {
			return nil, fmt.Errorf("failed to sign revocation of %s: %w", r.outpoint.String(), err)
		}
		return &signedInput{input: uint32(i), unlocking: unlocking}, nil
	}
	return nil, fmt.Errorf("%w: %s", errInputNotFound, r.outpoint.String())
}

// mergeBEEF combines the BEEF of every advertisement into one V2 input BEEF.
func mergeBEEF(advertisements []*types.Advertisement) ([]byte, error) {
	merged, err := types.ParseBEEF(advertisements[0].Beef)
	if err != nil {
		return nil, fmt.Errorf("failed to read advertisement BEEF: %w", err)
	}
	for _, ad := range advertisements[1:] {
		other, err := types.ParseBEEF(ad.Beef)
		if err != nil {
			return nil, fmt.Errorf("failed to read advertisement BEEF: %w", err)
		}
		if err := merged.MergeBeef(other); err != nil {
			return nil, fmt.Errorf("failed to merge advertisement BEEF: %w", err)
		}
	}
	// Bytes writes V2 records whatever version was read.
	merged.Version = transaction.BEEF_V2
	return merged.Bytes()
}

// beefFromWalletTx turns the transaction a wallet hands back into V1 BEEF. The wallet may
// answer with raw bytes or any BEEF version. A BEEF whose ancestry is too thin to re-encode
// is passed through unchanged.
func beefFromWalletTx(raw []byte) ([]byte, error) {
	if types.HasBEEFPrefix(raw) {
		tx, err := types.SubjectTransaction(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse wallet transaction: %w", err)
		}
		if beef, err := tx.BEEF(); err == nil {
			return beef, nil
		}
		return raw, nil
	}

	tx, err := transaction.NewTransactionFromBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse wallet transaction: %w", err)
	}
	beef, err := tx.BEEF()
	if err != nil {
		return nil, fmt.Errorf("failed to create BEEF from transaction: %w", err)
	}
	return beef, nil
}
