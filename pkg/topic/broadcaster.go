// Package topic broadcasts transactions to the overlay hosts interested in their topics.
//
// A Broadcaster discovers interested hosts through SHIP advertisements, submits the
// transaction to all of them concurrently, and checks the returned admittance instructions
// against its acknowledgment requirements.
package topic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bsv-blockchain/go-overlay-client/pkg/admintoken"
	"github.com/bsv-blockchain/go-overlay-client/pkg/lookup"
	"github.com/bsv-blockchain/go-overlay-client/pkg/types"
	"github.com/bsv-blockchain/go-overlay-client/pkg/utils"
	"github.com/bsv-blockchain/go-sdk/overlay"
	"github.com/bsv-blockchain/go-sdk/transaction"
)

// Static error variables for err113 compliance
var (
	ErrNoTopics           = errors.New("at least one topic is required for broadcast")
	ErrInvalidTopicPrefix = errors.New(`every topic must start with "tm_"`)
	ErrBEEFSerialization  = errors.New("transactions sent via the broadcaster must be serializable to BEEF")
)

// Result statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Result codes reported when a broadcast does not go through.
const (
	CodeNoHostsInterested                 = "ERR_NO_HOSTS_INTERESTED"
	CodeAllHostsRejected                  = "ERR_ALL_HOSTS_REJECTED"
	CodeRequireAckFromAllHostsFailed      = "ERR_REQUIRE_ACK_FROM_ALL_HOSTS_FAILED"
	CodeRequireAckFromAnyHostFailed       = "ERR_REQUIRE_ACK_FROM_ANY_HOST_FAILED"
	CodeRequireAckFromSpecificHostsFailed = "ERR_REQUIRE_ACK_FROM_SPECIFIC_HOSTS_FAILED"
)

// DiscoveryTimeout bounds the SHIP lookup for interested hosts.
const DiscoveryTimeout = 5 * time.Second

// Result is the outcome of a broadcast. Quorum and delivery failures are reported here
// rather than as errors.
type Result struct {
	Status      string `json:"status"`
	Txid        string `json:"txid,omitempty"`
	Message     string `json:"message,omitempty"`
	Code        string `json:"code,omitempty"`
	Description string `json:"description,omitempty"`
}

// Resolver answers lookup questions. *lookup.Resolver implements it.
type Resolver interface {
	Query(ctx context.Context, question *types.LookupQuestion, timeout time.Duration) (types.LookupAnswer, error)
}

// Config configures a Broadcaster. Zero values select the defaults for NetworkPreset.
type Config struct {
	NetworkPreset overlay.Network
	// Facilitator submits to one host. Defaults to an HTTPSFacilitator.
	Facilitator Facilitator
	// Resolver finds SHIP advertisements. Defaults to a lookup.Resolver for the same preset.
	Resolver Resolver
	// RequireAckFromAllHosts defaults to AllTopics().
	RequireAckFromAllHosts AckRequirement
	// RequireAckFromAnyHost is not checked unless set.
	RequireAckFromAnyHost AckRequirement
	// RequireAckFromSpecificHosts maps host URLs to what each must acknowledge.
	RequireAckFromSpecificHosts map[string]AckRequirement
	// VerifyAdvertisements ignores SHIP advertisements whose signature is not linked to the
	// advertiser's identity key.
	VerifyAdvertisements bool
	Logger               *slog.Logger
}

// Broadcaster sends transactions to interested overlay hosts. It is safe for concurrent use.
type Broadcaster struct {
	topics      []string
	topicSet    map[string]struct{}
	network     overlay.Network
	facilitator Facilitator
	resolver    Resolver
	ackAll      AckRequirement
	ackAny      AckRequirement
	ackSpecific map[string]AckRequirement
	verify      bool
	logger      *slog.Logger
}

// NewBroadcaster creates a Broadcaster for topics.
//
// Parameters:
//   - topics: the topic names the transaction is submitted under, each starting with "tm_"
//   - cfg: optional configuration, nil selects mainnet defaults
//
// Returns:
//   - *Broadcaster: the broadcaster
//   - error: ErrNoTopics or ErrInvalidTopicPrefix when topics are unusable
func NewBroadcaster(topics []string, cfg *Config) (*Broadcaster, error) {
	if len(topics) == 0 {
		return nil, ErrNoTopics
	}
	topicSet := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		if !utils.IsTopicName(t) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidTopicPrefix, t)
		}
		topicSet[t] = struct{}{}
	}
	if cfg == nil {
		cfg = &Config{}
	}

	b := &Broadcaster{
		topics:      append([]string(nil), topics...),
		topicSet:    topicSet,
		network:     cfg.NetworkPreset,
		facilitator: cfg.Facilitator,
		resolver:    cfg.Resolver,
		ackAll:      cfg.RequireAckFromAllHosts,
		ackAny:      cfg.RequireAckFromAnyHost,
		ackSpecific: make(map[string]AckRequirement, len(cfg.RequireAckFromSpecificHosts)),
		verify:      cfg.VerifyAdvertisements,
		logger:      cfg.Logger,
	}
	for host, requirement := range cfg.RequireAckFromSpecificHosts {
		b.ackSpecific[host] = requirement
	}
	if !b.ackAll.IsSet() {
		b.ackAll = AllTopics()
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	if b.facilitator == nil {
		b.facilitator = &HTTPSFacilitator{AllowHTTP: b.network == overlay.NetworkLocal}
	}
	if b.resolver == nil {
		b.resolver = lookup.NewResolver(&lookup.Config{
			NetworkPreset:        b.network,
			VerifyAdvertisements: b.verify,
			Logger:               b.logger,
		})
	}
	return b, nil
}

// Topics returns the topics the broadcaster submits under.
func (b *Broadcaster) Topics() []string {
	return append([]string(nil), b.topics...)
}

// Broadcast serialises tx as V1 BEEF and submits it to every interested host.
func (b *Broadcaster) Broadcast(ctx context.Context, tx *transaction.Transaction) (*Result, error) {
	if tx == nil {
		return nil, fmt.Errorf("%w: nil transaction", ErrBEEFSerialization)
	}
	beefBytes, err := tx.BEEF()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBEEFSerialization, err)
	}
	return b.submit(ctx, tx.TxID().String(), beefBytes, nil), nil
}

// BroadcastTaggedBEEF submits an already encoded BEEF, with any off-chain values, under the
// broadcaster's topics. The topics carried by tagged are ignored.
func (b *Broadcaster) BroadcastTaggedBEEF(ctx context.Context, tagged *overlay.TaggedBEEF) (*Result, error) {
	if tagged == nil {
		return nil, fmt.Errorf("%w: nil payload", ErrBEEFSerialization)
	}
	tx, err := types.SubjectTransaction(tagged.Beef)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBEEFSerialization, err)
	}
	return b.submit(ctx, tx.TxID().String(), tagged.Beef, tagged.OffChainValues), nil
}

func (b *Broadcaster) submit(ctx context.Context, txid string, beef, offChainValues []byte) *Result {
	network := lookup.NetworkName(b.network)

	hosts := b.findInterestedHosts(ctx)
	if len(hosts) == 0 {
		return b.failure(txid, CodeNoHostsInterested,
			fmt.Sprintf("No %s hosts are interested in receiving this transaction.", network))
	}

	acks := b.sendAll(ctx, hosts, beef, offChainValues)
	if len(acks) == 0 {
		return b.failure(txid, CodeAllHostsRejected,
			fmt.Sprintf("All %s topical hosts have rejected the transaction.", network))
	}

	if required, requireAll := b.ackAll.resolve(b.topics); len(required) > 0 {
		if !ackFromAllHosts(acks, hosts, required, requireAll) {
			return b.failure(txid, CodeRequireAckFromAllHostsFailed, "Not all hosts acknowledged the required topics.")
		}
	}
	if required, requireAll := b.ackAny.resolve(b.topics); len(required) > 0 {
		if !ackFromAnyHost(acks, hosts, required, requireAll) {
			return b.failure(txid, CodeRequireAckFromAnyHostFailed, "No host acknowledged the required topics.")
		}
	}
	if len(b.ackSpecific) > 0 && !ackFromSpecificHosts(acks, hosts, b.ackSpecific, b.topics) {
		return b.failure(txid, CodeRequireAckFromSpecificHostsFailed, "Specific hosts did not acknowledge the required topics.")
	}

	noun := "hosts"
	if len(acks) == 1 {
		noun = "host"
	}
	return &Result{
		Status:  StatusSuccess,
		Txid:    txid,
		Message: fmt.Sprintf("Sent to %d Overlay Services %s.", len(acks), noun),
	}
}

func (b *Broadcaster) failure(txid, code, description string) *Result {
	b.logger.Warn("Broadcast failed", "txid", txid, "code", code)
	return &Result{Status: StatusError, Txid: txid, Code: code, Description: description}
}

// findInterestedHosts maps each host URL to the topics it advertises interest in. Discovery
// failures leave the map empty.
func (b *Broadcaster) findInterestedHosts(ctx context.Context) hostTopics {
	hosts := make(hostTopics)
	if b.network == overlay.NetworkLocal {
		hosts[lookup.LocalHost] = b.copyTopicSet()
		return hosts
	}

	question, err := types.NewLookupQuestion(types.ServiceSHIP, types.SHIPQuery{Topics: b.topics})
	if err != nil {
		b.logger.Warn("Failed to build SHIP lookup", "error", err)
		return hosts
	}
	answer, err := b.resolver.Query(ctx, question, DiscoveryTimeout)
	if err != nil {
		b.logger.Warn("SHIP lookup failed", "topics", strings.Join(b.topics, ","), "error", err)
		return hosts
	}
	list, ok := answer.(*types.OutputListAnswer)
	if !ok || list == nil {
		b.logger.Warn("SHIP lookup did not return an output list")
		return hosts
	}

	for _, output := range list.Outputs {
		ad, err := b.parseAdvertisement(ctx, &output)
		if err != nil {
			b.logger.Debug("Skipping unreadable SHIP record", "error", err)
			continue
		}
		if ad.Protocol != overlay.ProtocolSHIP {
			continue
		}
		if _, wanted := b.topicSet[ad.TopicOrService]; !wanted {
			continue
		}
		if hosts[ad.Domain] == nil {
			hosts[ad.Domain] = make(map[string]struct{})
		}
		hosts[ad.Domain][ad.TopicOrService] = struct{}{}
	}
	return hosts
}

func (b *Broadcaster) parseAdvertisement(ctx context.Context, output *types.OutputRef) (*types.Advertisement, error) {
	lockingScript, err := output.LockingScript()
	if err != nil {
		return nil, err
	}
	if b.verify {
		return admintoken.Verify(ctx, lockingScript)
	}
	return admintoken.Decode(lockingScript)
}

func (b *Broadcaster) copyTopicSet() map[string]struct{} {
	out := make(map[string]struct{}, len(b.topicSet))
	for t := range b.topicSet {
		out[t] = struct{}{}
	}
	return out
}

// sendAll submits to every host concurrently, each under the sorted subset of topics it is
// interested in, and returns the acknowledged topics of each host that answered with a
// non-empty STEAK.
func (b *Broadcaster) sendAll(ctx context.Context, hosts hostTopics, beef, offChainValues []byte) types.HostAcknowledgments {
	urls := make([]string, 0, len(hosts))
	for host := range hosts {
		urls = append(urls, host)
	}
	sort.Strings(urls)
	steaks := make([]types.Steak, len(urls))

	var g errgroup.Group
	for i, host := range urls {
		tagged := &overlay.TaggedBEEF{
			Beef:           beef,
			Topics:         sortedTopics(hosts[host]),
			OffChainValues: offChainValues,
		}
		g.Go(func() error {
			steak, err := b.facilitator.Send(ctx, host, tagged)
			if err != nil {
				b.logger.Warn("Host rejected submission", "host", host, "error", err)
				return nil
			}
			if len(steak) == 0 {
				b.logger.Warn("Host returned an empty STEAK", "host", host)
				return nil
			}
			steaks[i] = steak
			return nil
		})
	}
	_ = g.Wait()

	acks := make(types.HostAcknowledgments)
	for i, steak := range steaks {
		if steak != nil {
			acks[urls[i]] = steak.AcknowledgedTopics()
		}
	}
	return acks
}

func sortedTopics(set map[string]struct{}) []string {
	topics := make([]string, 0, len(set))
	for t := range set {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics
}
