// Package overlaytest provides wallets, BEEF fixtures and fake overlay hosts for tests.
package overlaytest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/bsv-blockchain/go-overlay-client/pkg/admintoken"
	"github.com/bsv-blockchain/go-overlay-client/pkg/types"
	"github.com/bsv-blockchain/go-sdk/overlay"
	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	"github.com/bsv-blockchain/go-sdk/script"
	"github.com/bsv-blockchain/go-sdk/transaction"
	"github.com/bsv-blockchain/go-sdk/wallet"
)

// ErrHostDown is what fake hosts return when told to fail.
var ErrHostDown = errors.New("host down")

// Wallet returns a deterministic wallet whose root key is derived from seedByte.
func Wallet(tb testing.TB, seedByte byte) *wallet.Wallet {
	tb.Helper()
	seed := make([]byte, 32)
	seed[0] = seedByte
	key, _ := ec.PrivateKeyFromBytes(seed)
	w, err := wallet.NewWallet(key)
	if err != nil {
		tb.Fatalf("failed to create wallet: %v", err)
	}
	return w
}

// Tx builds a transaction with one 1-satoshi output per locking script. nonce becomes the
// lock time so otherwise identical transactions get distinct ids.
func Tx(nonce uint32, scripts ...*script.Script) *transaction.Transaction {
	tx := transaction.NewTransaction()
	tx.LockTime = nonce
	for _, s := range scripts {
		tx.AddOutput(&transaction.TransactionOutput{Satoshis: 1, LockingScript: s})
	}
	return tx
}

// BEEF serialises tx as V1 BEEF.
func BEEF(tb testing.TB, tx *transaction.Transaction) []byte {
	tb.Helper()
	b, err := tx.BEEF()
	if err != nil {
		tb.Fatalf("failed to encode BEEF: %v", err)
	}
	return b
}

// OpReturn returns a distinct unspendable script, handy as filler output.
func OpReturn(data string) *script.Script {
	s := script.Script(append([]byte{script.Op0, script.OpRETURN, byte(len(data))}, data...))
	return &s
}

// Advertisement returns the locking script of a signed advertisement from w.
func Advertisement(tb testing.TB, w *wallet.Wallet, protocol overlay.Protocol, domain, name string) *script.Script {
	tb.Helper()
	s, err := admintoken.New(w).Lock(context.Background(), protocol, domain, name)
	if err != nil {
		tb.Fatalf("failed to lock advertisement: %v", err)
	}
	return s
}

// AdvertisementOutputs wraps each advertisement script in its own transaction and returns
// the output references a tracker or SHIP host would answer with.
func AdvertisementOutputs(tb testing.TB, scripts ...*script.Script) []types.OutputRef {
	tb.Helper()
	outputs := make([]types.OutputRef, 0, len(scripts))
	for i, s := range scripts {
		outputs = append(outputs, types.OutputRef{Beef: BEEF(tb, Tx(uint32(i), s)), OutputIndex: 0})
	}
	return outputs
}

// LookupFunc answers a lookup for one fake host.
type LookupFunc func(ctx context.Context, question *types.LookupQuestion) (types.LookupAnswer, error)

// LookupFacilitator is an in-memory lookup transport. Hosts without a handler fail.
type LookupFacilitator struct {
	mu       sync.Mutex
	Handlers map[string]LookupFunc
	calls    []string
}

// Lookup records the call and dispatches it to the host's handler.
func (f *LookupFacilitator) Lookup(ctx context.Context, url string, question *types.LookupQuestion) (types.LookupAnswer, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	handler := f.Handlers[url]
	f.mu.Unlock()

	if handler == nil {
		return nil, ErrHostDown
	}
	return handler(ctx, question)
}

// Calls returns the hosts contacted so far.
func (f *LookupFacilitator) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// Answer returns a handler that always answers with answer.
func Answer(answer types.LookupAnswer) LookupFunc {
	return func(context.Context, *types.LookupQuestion) (types.LookupAnswer, error) {
		return answer, nil
	}
}

// Fail returns a handler that always fails.
func Fail() LookupFunc {
	return func(context.Context, *types.LookupQuestion) (types.LookupAnswer, error) {
		return nil, ErrHostDown
	}
}

// Hang returns a handler that ignores its context and blocks until release is closed.
func Hang(release <-chan struct{}) LookupFunc {
	return func(context.Context, *types.LookupQuestion) (types.LookupAnswer, error) {
		<-release
		return nil, ErrHostDown
	}
}

// SendFunc answers a submission for one fake host.
type SendFunc func(ctx context.Context, tagged *overlay.TaggedBEEF) (types.Steak, error)

// BroadcastFacilitator is an in-memory submit transport. Hosts without a handler fail.
type BroadcastFacilitator struct {
	mu       sync.Mutex
	Handlers map[string]SendFunc
	calls    []string
	topics   map[string][]string
}

// Send records the call and dispatches it to the host's handler.
func (f *BroadcastFacilitator) Send(ctx context.Context, url string, tagged *overlay.TaggedBEEF) (types.Steak, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	if f.topics == nil {
		f.topics = make(map[string][]string)
	}
	f.topics[url] = append([]string(nil), tagged.Topics...)
	handler := f.Handlers[url]
	f.mu.Unlock()

	if handler == nil {
		return nil, ErrHostDown
	}
	return handler(ctx, tagged)
}

// Topics returns the topics last submitted to url.
func (f *BroadcastFacilitator) Topics(url string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.topics[url]...)
}

// Calls returns the hosts contacted so far.
func (f *BroadcastFacilitator) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// Admit returns a handler that admits output 0 for every topic listed in acked and returns
// empty instructions for the rest of the submitted topics.
func Admit(acked ...string) SendFunc {
	return func(_ context.Context, tagged *overlay.TaggedBEEF) (types.Steak, error) {
		steak := types.Steak{}
		for _, topic := range tagged.Topics {
			steak[topic] = &types.AdmittanceInstructions{OutputsToAdmit: []uint32{}, CoinsToRetain: []uint32{}}
		}
		for _, topic := range acked {
			steak[topic] = &types.AdmittanceInstructions{OutputsToAdmit: []uint32{0}, CoinsToRetain: []uint32{}}
		}
		return steak, nil
	}
}

// Reject returns a handler that always fails.
func Reject() SendFunc {
	return func(context.Context, *overlay.TaggedBEEF) (types.Steak, error) {
		return nil, ErrHostDown
	}
}

// Submission is one request received by an OverlayServer on /submit.
type Submission struct {
	Topics         string
	ContentType    string
	OffChainHeader string
	Body           []byte
}

// OverlayServer is an HTTP overlay host with /lookup and /submit endpoints.
type OverlayServer struct {
	*httptest.Server

	mu          sync.Mutex
	questions   []types.LookupQuestion
	submissions []Submission
}

// NewOverlayServer starts a host that answers every lookup with answer and every
// submission with steak. When tls is set the server speaks https.
func NewOverlayServer(tb testing.TB, answer types.LookupAnswer, steak types.Steak, tls bool) *OverlayServer {
	tb.Helper()
	s := &OverlayServer{}

	r := chi.NewRouter()
	r.Post("/lookup", func(w http.ResponseWriter, req *http.Request) {
		var q types.LookupQuestion
		if err := json.NewDecoder(req.Body).Decode(&q); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.mu.Lock()
		s.questions = append(s.questions, q)
		s.mu.Unlock()

		if answer == nil {
			http.Error(w, "lookup unavailable", http.StatusInternalServerError)
			return
		}
		body, err := types.EncodeLookupAnswer(answer)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	})
	r.Post("/submit", func(w http.ResponseWriter, req *http.Request) {
		body, _ := io.ReadAll(req.Body)
		s.mu.Lock()
		s.submissions = append(s.submissions, Submission{
			Topics:         req.Header.Get("X-Topics"),
			ContentType:    req.Header.Get("Content-Type"),
			OffChainHeader: req.Header.Get("X-Includes-Off-Chain-Values"),
			Body:           body,
		})
		s.mu.Unlock()

		if steak == nil {
			http.Error(w, "submit unavailable", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(steak)
	})

	if tls {
		s.Server = httptest.NewTLSServer(r)
	} else {
		s.Server = httptest.NewServer(r)
	}
	tb.Cleanup(s.Close)
	return s
}

// Questions returns the lookup questions received so far.
func (s *OverlayServer) Questions() []types.LookupQuestion {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.LookupQuestion(nil), s.questions...)
}

// Submissions returns the submissions received so far.
func (s *OverlayServer) Submissions() []Submission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Submission(nil), s.submissions...)
}
