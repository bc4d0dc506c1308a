// Package lookup resolves lookup questions against overlay hosts.
//
// A Resolver finds the hosts competent for a lookup service (through SLAP trackers,
// configured overrides or the local preset), asks all of them at once, and merges the
// answers into one deduplicated output list. Host failures are tolerated as long as at
// least one host answers.
package lookup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bsv-blockchain/go-overlay-client/pkg/admintoken"
	"github.com/bsv-blockchain/go-overlay-client/pkg/types"
	"github.com/bsv-blockchain/go-sdk/overlay"
)

// Static error variables for err113 compliance
var (
	ErrNoCompetentHosts      = errors.New("no competent hosts found by the SLAP trackers for lookup service")
	ErrNoSuccessfulResponses = errors.New("no successful responses from lookup hosts")
	ErrHostTimeout           = errors.New("lookup host did not answer in time")
	errNilQuestion           = errors.New("lookup question is required")
)

// Config configures a Resolver. Zero values select the defaults for NetworkPreset.
type Config struct {
	// NetworkPreset selects default trackers and whether plaintext hosts are allowed.
	NetworkPreset overlay.Network
	// Facilitator performs the per-host request. Defaults to an HTTPSFacilitator.
	Facilitator Facilitator
	// SLAPTrackers are asked which hosts serve a lookup service. Nil selects the preset defaults.
	SLAPTrackers []string
	// HostOverrides replaces tracker discovery for the named services.
	HostOverrides map[string][]string
	// AdditionalHosts are queried for the named services on top of whatever else is chosen.
	AdditionalHosts map[string][]string
	// VerifyAdvertisements rejects SLAP advertisements whose signature is not linked to the
	// advertiser's identity key.
	VerifyAdvertisements bool
	// Logger receives per-host failures. Defaults to slog.Default().
	Logger *slog.Logger
}

// Resolver answers lookup questions. It is immutable after construction and safe for
// concurrent use.
type Resolver struct {
	network         overlay.Network
	facilitator     Facilitator
	trackers        []string
	hostOverrides   map[string][]string
	additionalHosts map[string][]string
	verify          bool
	logger          *slog.Logger
}

// NewResolver creates a Resolver from cfg. A nil cfg selects mainnet defaults.
func NewResolver(cfg *Config) *Resolver {
	if cfg == nil {
		cfg = &Config{}
	}

	r := &Resolver{
		network:         cfg.NetworkPreset,
		facilitator:     cfg.Facilitator,
		trackers:        cfg.SLAPTrackers,
		hostOverrides:   copyHostMap(cfg.HostOverrides),
		additionalHosts: copyHostMap(cfg.AdditionalHosts),
		verify:          cfg.VerifyAdvertisements,
		logger:          cfg.Logger,
	}
	if r.facilitator == nil {
		r.facilitator = &HTTPSFacilitator{AllowHTTP: r.network == overlay.NetworkLocal}
	}
	if r.trackers == nil {
		r.trackers = DefaultTrackers(r.network)
	} else {
		r.trackers = append([]string(nil), r.trackers...)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

func copyHostMap(in map[string][]string) map[string][]string {
	out := make(map[string][]string, len(in))
	for service, hosts := range in {
		out[service] = append([]string(nil), hosts...)
	}
	return out
}

// Network returns the preset the resolver was configured with.
func (r *Resolver) Network() overlay.Network {
	return r.network
}

// Query resolves question. Each host gets timeout to answer; zero leaves the deadline to ctx.
//
// The first successful answer, in candidate order, is returned as is when it is freeform.
// Otherwise all output lists are merged, keyed by txid and output index: the first
// occurrence fixes the position and later duplicates replace the value.
func (r *Resolver) Query(ctx context.Context, question *types.LookupQuestion, timeout time.Duration) (types.LookupAnswer, error) {
	if question == nil {
		return nil, errNilQuestion
	}

	hosts, err := r.candidateHosts(ctx, question.Service)
	if err != nil {
		return nil, err
	}
	if len(hosts) == 0 {
		return nil, fmt.Errorf("%w: preset %s, service %s", ErrNoCompetentHosts, NetworkName(r.network), question.Service)
	}

	answers := r.queryAll(ctx, hosts, question, timeout)
	if len(answers) == 0 {
		return nil, fmt.Errorf("%w: service %s, %d hosts tried", ErrNoSuccessfulResponses, question.Service, len(hosts))
	}

	if free, ok := answers[0].(*types.FreeformAnswer); ok {
		return free, nil
	}

	return r.mergeOutputLists(answers), nil
}

// candidateHosts picks the hosts to ask, in priority order.
func (r *Resolver) candidateHosts(ctx context.Context, service string) ([]string, error) {
	var hosts []string
	switch {
	case service == types.ServiceSLAP:
		if r.network == overlay.NetworkLocal {
			hosts = []string{LocalHost}
		} else {
			hosts = r.trackers
		}
	case len(r.hostOverrides[service]) > 0:
		hosts = r.hostOverrides[service]
	case r.network == overlay.NetworkLocal:
		hosts = []string{LocalHost}
	default:
		found, err := r.FindCompetentHosts(ctx, service)
		if err != nil {
			return nil, err
		}
		hosts = found
	}

	return uniqueHosts(hosts, r.additionalHosts[service]), nil
}

func uniqueHosts(lists ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, list := range lists {
		for _, h := range list {
			if _, ok := seen[h]; ok {
				continue
			}
			seen[h] = struct{}{}
			out = append(out, h)
		}
	}
	return out
}

// FindCompetentHosts asks every SLAP tracker which hosts advertise service and returns the
// distinct domains in the order they were first seen.
func (r *Resolver) FindCompetentHosts(ctx context.Context, service string) ([]string, error) {
	question, err := types.NewLookupQuestion(types.ServiceSLAP, types.SLAPQuery{Service: &service})
	if err != nil {
		return nil, err
	}

	answers := r.queryAll(ctx, r.trackers, question, TrackerTimeout)

	var domains []string
	seen := make(map[string]struct{})
	for _, answer := range answers {
		list, ok := answer.(*types.OutputListAnswer)
		if !ok {
			continue
		}
		for _, output := range list.Outputs {
			ad, err := r.parseAdvertisement(ctx, &output)
			if err != nil {
				r.logger.Debug("Skipping unreadable SLAP record", "service", service, "error", err)
				continue
			}
			if ad.Protocol != overlay.ProtocolSLAP || ad.TopicOrService != service {
				continue
			}
			if _, dup := seen[ad.Domain]; dup {
				continue
			}
			seen[ad.Domain] = struct{}{}
			domains = append(domains, ad.Domain)
		}
	}
	return domains, nil
}

func (r *Resolver) parseAdvertisement(ctx context.Context, output *types.OutputRef) (*types.Advertisement, error) {
	lockingScript, err := output.LockingScript()
	if err != nil {
		return nil, err
	}
	if r.verify {
		return admintoken.Verify(ctx, lockingScript)
	}
	return admintoken.Decode(lockingScript)
}

// queryAll asks every host concurrently and returns the successful answers in host order.
// A failing host never cancels the others.
func (r *Resolver) queryAll(ctx context.Context, hosts []string, question *types.LookupQuestion, timeout time.Duration) []types.LookupAnswer {
	results := make([]types.LookupAnswer, len(hosts))

	var g errgroup.Group
	for i, host := range hosts {
		g.Go(func() error {
			answer, err := r.lookupHost(ctx, host, question, timeout)
			if err != nil {
				r.logger.Warn("Lookup host failed", "host", host, "service", question.Service, "error", err)
				return nil
			}
			results[i] = answer
			return nil
		})
	}
	_ = g.Wait()

	answers := make([]types.LookupAnswer, 0, len(results))
	for _, answer := range results {
		if answer != nil {
			answers = append(answers, answer)
		}
	}
	return answers
}

type hostResult struct {
	answer types.LookupAnswer
	err    error
}

// lookupHost races the facilitator against the per-host deadline, so a facilitator that
// ignores its context cannot hold up aggregation.
func (r *Resolver) lookupHost(ctx context.Context, host string, question *types.LookupQuestion, timeout time.Duration) (types.LookupAnswer, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	done := make(chan hostResult, 1)
	go func() {
		answer, err := r.facilitator.Lookup(ctx, host, question)
		done <- hostResult{answer: answer, err: err}
	}()

	select {
	case res := <-done:
		if res.err == nil && res.answer == nil {
			return nil, fmt.Errorf("%w: %s returned no answer", ErrLookupFailed, host)
		}
		return res.answer, res.err
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %s: %w", ErrHostTimeout, host, ctx.Err())
	}
}

func (r *Resolver) mergeOutputLists(answers []types.LookupAnswer) *types.OutputListAnswer {
	var order []string
	byKey := make(map[string]types.OutputRef)

	for _, answer := range answers {
		list, ok := answer.(*types.OutputListAnswer)
		if !ok {
			continue
		}
		for _, output := range list.Outputs {
			outpoint, err := output.Outpoint()
			if err != nil {
				r.logger.Debug("Skipping output with unreadable BEEF", "error", err)
				continue
			}
			key := fmt.Sprintf("%s.%d", outpoint.Txid.String(), outpoint.Index)
			if _, exists := byKey[key]; !exists {
				order = append(order, key)
			}
			byKey[key] = output
		}
	}

	merged := &types.OutputListAnswer{Outputs: make([]types.OutputRef, 0, len(order))}
	for _, key := range order {
		merged.Outputs = append(merged.Outputs, byKey[key])
	}
	return merged
}
