// Package types holds the wire and domain types shared by the overlay client packages.
package types

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bsv-blockchain/go-sdk/overlay"
	"github.com/bsv-blockchain/go-sdk/script"
	"github.com/bsv-blockchain/go-sdk/transaction"
)

// Reserved lookup service names.
const (
	ServiceSLAP = "ls_slap"
	ServiceSHIP = "ls_ship"
)

// Answer type discriminators used on the wire.
const (
	AnswerTypeOutputList = "output-list"
	AnswerTypeFreeform   = "freeform"
)

// Static error variables for err113 compliance
var (
	ErrUnknownAnswerType = errors.New("unknown lookup answer type")
	errInvalidBeefField  = errors.New("beef must be a byte array, base64 string or hex string")
)

// SHIPQuery represents a query for SHIP records. The broadcaster sends it to ls_ship
// with Topics set; the advertiser sends it with IdentityKey set.
type SHIPQuery struct {
	Domain      *string  `json:"domain,omitempty"`
	Topics      []string `json:"topics,omitempty"`
	IdentityKey *string  `json:"identityKey,omitempty"`
}

// SLAPQuery represents a query for SLAP records. Trackers receive it with Service set.
type SLAPQuery struct {
	Domain      *string `json:"domain,omitempty"`
	Service     *string `json:"service,omitempty"`
	IdentityKey *string `json:"identityKey,omitempty"`
}

// LookupQuestion is a request addressed to a named lookup service.
type LookupQuestion struct {
	Service string          `json:"service"`
	Query   json.RawMessage `json:"query"`
}

// NewLookupQuestion marshals query and wraps it in a LookupQuestion for service.
func NewLookupQuestion(service string, query any) (*LookupQuestion, error) {
	raw, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal lookup query: %w", err)
	}
	return &LookupQuestion{Service: service, Query: raw}, nil
}

// LookupAnswer is either an *OutputListAnswer or a *FreeformAnswer.
type LookupAnswer interface {
	AnswerType() string
}

// OutputListAnswer carries transaction outputs that match a lookup question.
type OutputListAnswer struct {
	Outputs []OutputRef `json:"outputs"`
}

// AnswerType implements LookupAnswer.
func (*OutputListAnswer) AnswerType() string { return AnswerTypeOutputList }

// FreeformAnswer carries an opaque service-defined result.
type FreeformAnswer struct {
	Result json.RawMessage `json:"result"`
}

// AnswerType implements LookupAnswer.
func (*FreeformAnswer) AnswerType() string { return AnswerTypeFreeform }

// OutputRef points at one output of a BEEF-encoded transaction.
type OutputRef struct {
	Beef        []byte `json:"beef"`
	OutputIndex uint32 `json:"outputIndex"`
}

type outputRefWire struct {
	Beef        json.RawMessage `json:"beef"`
	OutputIndex uint32          `json:"outputIndex"`
}

// MarshalJSON encodes Beef as an array of byte values, the form overlay hosts exchange.
func (o OutputRef) MarshalJSON() ([]byte, error) {
	nums := make([]int, len(o.Beef))
	for i, b := range o.Beef {
		nums[i] = int(b)
	}
	rawBeef, err := json.Marshal(nums)
	if err != nil {
		return nil, err
	}
	return json.Marshal(outputRefWire{Beef: rawBeef, OutputIndex: o.OutputIndex})
}

// UnmarshalJSON accepts Beef as an array of byte values, a base64 string or a hex string.
// A string is read as hex when that yields a BEEF version prefix, otherwise as base64.
func (o *OutputRef) UnmarshalJSON(data []byte) error {
	var wire outputRefWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	o.OutputIndex = wire.OutputIndex
	o.Beef = nil
	if len(wire.Beef) == 0 || string(wire.Beef) == "null" {
		return nil
	}

	var nums []byte
	var ints []int
	if err := json.Unmarshal(wire.Beef, &ints); err == nil {
		nums = make([]byte, len(ints))
		for i, n := range ints {
			if n < 0 || n > 255 {
				return fmt.Errorf("%w: value %d out of range", errInvalidBeefField, n)
			}
			nums[i] = byte(n)
		}
		o.Beef = nums
		return nil
	}

	var str string
	if err := json.Unmarshal(wire.Beef, &str); err != nil {
		return errInvalidBeefField
	}
	hexDecoded, hexErr := hex.DecodeString(str)
	if hexErr == nil && HasBEEFPrefix(hexDecoded) {
		o.Beef = hexDecoded
		return nil
	}
	decoded, err := base64.StdEncoding.DecodeString(str)
	if err == nil {
		o.Beef = decoded
		return nil
	}
	if hexErr == nil {
		o.Beef = hexDecoded
		return nil
	}
	return fmt.Errorf("%w: %w", errInvalidBeefField, err)
}

// Outpoint parses the BEEF and returns the transaction id and output index it references.
func (o *OutputRef) Outpoint() (*transaction.Outpoint, error) {
	tx, err := SubjectTransaction(o.Beef)
	if err != nil {
		return nil, fmt.Errorf("failed to parse BEEF: %w", err)
	}
	return &transaction.Outpoint{Txid: *tx.TxID(), Index: o.OutputIndex}, nil
}

// LockingScript parses the BEEF and returns the locking script of the referenced output.
func (o *OutputRef) LockingScript() (*script.Script, error) {
	tx, err := SubjectTransaction(o.Beef)
	if err != nil {
		return nil, fmt.Errorf("failed to parse BEEF: %w", err)
	}
	if int(o.OutputIndex) >= len(tx.Outputs) {
		return nil, fmt.Errorf("%w: index %d, %d outputs", ErrOutputIndexOutOfRange, o.OutputIndex, len(tx.Outputs))
	}
	return tx.Outputs[o.OutputIndex].LockingScript, nil
}

// ErrOutputIndexOutOfRange is returned when an OutputRef points past the transaction outputs.
var ErrOutputIndexOutOfRange = errors.New("output index out of range")

type answerEnvelope struct {
	Type    string          `json:"type"`
	Outputs []OutputRef     `json:"outputs,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
}

// DecodeLookupAnswer parses the tagged wire form of a lookup answer.
func DecodeLookupAnswer(data []byte) (LookupAnswer, error) {
	var env answerEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode lookup answer: %w", err)
	}
	switch env.Type {
	case AnswerTypeOutputList:
		outputs := env.Outputs
		if outputs == nil {
			outputs = []OutputRef{}
		}
		return &OutputListAnswer{Outputs: outputs}, nil
	case AnswerTypeFreeform:
		return &FreeformAnswer{Result: env.Result}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAnswerType, env.Type)
	}
}

// EncodeLookupAnswer produces the tagged wire form of a lookup answer.
func EncodeLookupAnswer(answer LookupAnswer) ([]byte, error) {
	switch a := answer.(type) {
	case *OutputListAnswer:
		outputs := a.Outputs
		if outputs == nil {
			outputs = []OutputRef{}
		}
		return json.Marshal(struct {
			Type    string      `json:"type"`
			Outputs []OutputRef `json:"outputs"`
		}{AnswerTypeOutputList, outputs})
	case *FreeformAnswer:
		result := a.Result
		if result == nil {
			result = json.RawMessage("null")
		}
		return json.Marshal(struct {
			Type   string          `json:"type"`
			Result json.RawMessage `json:"result"`
		}{AnswerTypeFreeform, result})
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownAnswerType, answer)
	}
}

// Advertisement represents an overlay advertisement
type Advertisement struct {
	Protocol       overlay.Protocol `json:"protocol"`
	IdentityKey    string           `json:"identityKey"`
	Domain         string           `json:"domain"`
	TopicOrService string           `json:"topicOrService"`
	Beef           []byte           `json:"beef,omitempty"`
	OutputIndex    *uint32          `json:"outputIndex,omitempty"`
}

// AdvertisementData represents data needed to create an advertisement
type AdvertisementData struct {
	Protocol           overlay.Protocol `json:"protocol"`
	TopicOrServiceName string           `json:"topicOrServiceName"`
}

// Advertiser interface defines the methods for managing advertisements
type Advertiser interface {
	// Init initializes the advertiser
	Init(ctx context.Context) error

	// CreateAdvertisements creates multiple advertisements in a single transaction
	CreateAdvertisements(ctx context.Context, adsData []*AdvertisementData) (*overlay.TaggedBEEF, error)

	// FindAllAdvertisements finds all advertisements for a given protocol created by this identity
	FindAllAdvertisements(ctx context.Context, protocol overlay.Protocol) ([]*Advertisement, error)

	// RevokeAdvertisements revokes existing advertisements
	RevokeAdvertisements(ctx context.Context, advertisements []*Advertisement) (*overlay.TaggedBEEF, error)

	// ParseAdvertisement parses an advertisement from the provided output script
	ParseAdvertisement(outputScript *script.Script) (*Advertisement, error)
}
