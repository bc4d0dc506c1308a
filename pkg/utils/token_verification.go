package utils

import (
	"context"

	"github.com/bsv-blockchain/go-sdk/overlay"
	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	"github.com/bsv-blockchain/go-sdk/wallet"
)

// AdminKeyID is the key ID every SHIP and SLAP advertisement token is derived with.
const AdminKeyID = "1"

// AdminProtocol returns the BRC-43 protocol that SHIP or SLAP advertisement keys are derived under.
func AdminProtocol(protocol overlay.Protocol) (wallet.Protocol, bool) {
	switch protocol {
	case overlay.ProtocolSHIP, overlay.ProtocolSLAP:
		return wallet.Protocol{
			SecurityLevel: wallet.SecurityLevelEveryAppAndCounterparty,
			Protocol:      string(protocol.ID()),
		}, true
	default:
		return wallet.Protocol{}, false
	}
}

// IsTokenSignatureCorrectlyLinked checks that the BRC-48 locking key and the signature
// are valid and linked to the claimed identity key.
//
// Parameters:
//   - lockingPublicKey: The public key found in the output's locking script
//   - fields: The token fields; protocol first, identity key second, signature last
//
// Returns:
//   - bool: true if the signature verifies for the identity key and the locking key is the
//     child key that identity would derive for anyone
func IsTokenSignatureCorrectlyLinked(ctx context.Context, lockingPublicKey *ec.PublicKey, fields [][]byte) bool {
	if len(fields) < 3 || lockingPublicKey == nil {
		return false
	}

	signed := fields[:len(fields)-1]
	sig, err := ec.ParseSignature(fields[len(fields)-1])
	if err != nil {
		return false
	}

	protocol, ok := AdminProtocol(overlay.Protocol(signed[0]))
	if !ok {
		return false
	}

	identityPubKey, err := ec.ParsePubKey(signed[1])
	if err != nil {
		return false
	}

	data := FlattenFields(signed)

	anyonePrivKey, _ := wallet.AnyoneKey()
	anyoneWallet, err := wallet.NewWallet(anyonePrivKey)
	if err != nil {
		return false
	}

	encArgs := wallet.EncryptionArgs{
		ProtocolID: protocol,
		KeyID:      AdminKeyID,
		Counterparty: wallet.Counterparty{
			Type:         wallet.CounterpartyTypeOther,
			Counterparty: identityPubKey,
		},
	}

	verifyResult, err := anyoneWallet.VerifySignature(ctx, wallet.VerifySignatureArgs{
		EncryptionArgs: encArgs,
		Data:           data,
		Signature:      sig,
	}, "")
	if err != nil || !verifyResult.Valid {
		return false
	}

	forSelf := false
	pubKeyResult, err := anyoneWallet.GetPublicKey(ctx, wallet.GetPublicKeyArgs{
		EncryptionArgs: encArgs,
		ForSelf:        &forSelf,
	}, "")
	if err != nil {
		return false
	}

	return pubKeyResult.PublicKey.IsEqual(lockingPublicKey)
}
