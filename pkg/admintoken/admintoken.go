// Package admintoken encodes and decodes SHIP and SLAP advertisement tokens.
//
// An advertisement is a pushdrop token with four fields (protocol, identity key, domain and
// topic or service name) plus a signature by the advertiser's identity. Its locking key is
// derived under the BRC-43 protocol that matches the advertisement protocol, key ID "1",
// with the "anyone" counterparty so any party can check the link to the identity key.
package admintoken

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/bsv-blockchain/go-overlay-client/pkg/pushdrop"
	"github.com/bsv-blockchain/go-overlay-client/pkg/types"
	"github.com/bsv-blockchain/go-overlay-client/pkg/utils"
	"github.com/bsv-blockchain/go-sdk/overlay"
	"github.com/bsv-blockchain/go-sdk/script"
	"github.com/bsv-blockchain/go-sdk/wallet"
)

// Field positions inside an advertisement token.
const (
	fieldProtocol = iota
	fieldIdentityKey
	fieldDomain
	fieldTopicOrService
	fieldSignature

	minFields    = fieldTopicOrService + 1
	signedFields = fieldSignature + 1
)

// Static error variables for err113 compliance
var (
	ErrUnsupportedProtocol  = errors.New("unsupported protocol: must be 'SHIP' or 'SLAP'")
	ErrInvalidAdvertisement = errors.New("invalid advertisement token")
	ErrUnverified           = errors.New("advertisement failed verification")
	errNilWallet            = errors.New("admin token template requires a wallet")
	errNilIdentityKey       = errors.New("wallet returned no identity key")
)

// Template creates and spends advertisement tokens for the wallet's identity.
type Template struct {
	Wallet     pushdrop.Signer
	Originator string
}

// New returns a Template bound to w.
func New(w pushdrop.Signer) *Template {
	return &Template{Wallet: w}
}

func anyone() wallet.Counterparty {
	return wallet.Counterparty{Type: wallet.CounterpartyTypeAnyone}
}

func (t *Template) pushDrop() (*pushdrop.PushDrop, error) {
	if t == nil || t.Wallet == nil {
		return nil, errNilWallet
	}
	return &pushdrop.PushDrop{Wallet: t.Wallet, Originator: t.Originator}, nil
}

// Lock builds the locking script of an advertisement for domain and topicOrService.
func (t *Template) Lock(ctx context.Context, protocol overlay.Protocol, domain, topicOrService string) (*script.Script, error) {
	walletProtocol, ok := utils.AdminProtocol(protocol)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProtocol, protocol)
	}
	pd, err := t.pushDrop()
	if err != nil {
		return nil, err
	}

	identity, err := t.Wallet.GetPublicKey(ctx, wallet.GetPublicKeyArgs{IdentityKey: true}, t.Originator)
	if err != nil {
		return nil, fmt.Errorf("failed to get identity key: %w", err)
	}
	if identity == nil || identity.PublicKey == nil {
		return nil, errNilIdentityKey
	}

	fields := [][]byte{
		[]byte(protocol),
		identity.PublicKey.Compressed(),
		[]byte(domain),
		[]byte(topicOrService),
	}

	return pd.Lock(ctx, fields, walletProtocol, utils.AdminKeyID, anyone(), true, true, pushdrop.LockBefore)
}

// Decode reads an advertisement out of a locking script. It checks shape only; use Verify
// to also check the signature and names.
func Decode(s *script.Script) (*types.Advertisement, error) {
	result, err := pushdrop.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidAdvertisement, err)
	}
	return fromFields(result.Fields)
}

func fromFields(fields [][]byte) (*types.Advertisement, error) {
	if len(fields) < minFields {
		return nil, fmt.Errorf("%w: expected at least %d fields, got %d", ErrInvalidAdvertisement, minFields, len(fields))
	}
	protocol := overlay.Protocol(fields[fieldProtocol])
	if protocol != overlay.ProtocolSHIP && protocol != overlay.ProtocolSLAP {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProtocol, fields[fieldProtocol])
	}
	return &types.Advertisement{
		Protocol:       protocol,
		IdentityKey:    hex.EncodeToString(fields[fieldIdentityKey]),
		Domain:         string(fields[fieldDomain]),
		TopicOrService: string(fields[fieldTopicOrService]),
	}, nil
}

// Verify decodes an advertisement and applies the admission rules SHIP and SLAP topic
// managers enforce: exactly five fields, an advertisable domain, a name valid for the
// protocol, and a signature linked to the claimed identity key.
func Verify(ctx context.Context, s *script.Script) (*types.Advertisement, error) {
	result, err := pushdrop.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidAdvertisement, err)
	}
	if len(result.Fields) != signedFields {
		return nil, fmt.Errorf("%w: expected %d fields, got %d", ErrUnverified, signedFields, len(result.Fields))
	}
	ad, err := fromFields(result.Fields)
	if err != nil {
		return nil, err
	}
	if err := utils.ValidateAdvertisableURI(ad.Domain); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnverified, err)
	}
	if !utils.IsValidNameForProtocol(ad.Protocol, ad.TopicOrService) {
		return nil, fmt.Errorf("%w: invalid %s name %q", ErrUnverified, ad.Protocol, ad.TopicOrService)
	}
	if !utils.IsTokenSignatureCorrectlyLinked(ctx, result.LockingPublicKey, result.Fields) {
		return nil, fmt.Errorf("%w: signature is not linked to identity %s", ErrUnverified, ad.IdentityKey)
	}
	return ad, nil
}

// Unlock returns an unlocking template that spends an advertisement of protocol. The
// signature covers all outputs.
func (t *Template) Unlock(ctx context.Context, protocol overlay.Protocol) (*pushdrop.Unlocker, error) {
	walletProtocol, ok := utils.AdminProtocol(protocol)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProtocol, protocol)
	}
	pd, err := t.pushDrop()
	if err != nil {
		return nil, err
	}
	return pd.Unlock(ctx, walletProtocol, utils.AdminKeyID, anyone(), pushdrop.SignAll, false), nil
}
