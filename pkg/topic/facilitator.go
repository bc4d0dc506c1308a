package topic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/bsv-blockchain/go-overlay-client/pkg/types"
	"github.com/bsv-blockchain/go-overlay-client/pkg/utils"
	"github.com/bsv-blockchain/go-sdk/overlay"
	"github.com/bsv-blockchain/go-sdk/util"
)

// maxSteakBytes caps the size of a submit response body.
const maxSteakBytes = 16 << 20

// ErrSubmitFailed is returned when a host answers a submission with a non-success status.
var ErrSubmitFailed = errors.New("failed to facilitate broadcast")

// Facilitator submits a tagged BEEF to one host.
type Facilitator interface {
	Send(ctx context.Context, url string, tagged *overlay.TaggedBEEF) (types.Steak, error)
}

// HTTPSFacilitator posts BEEF to <host>/submit, naming the topics in the X-Topics header.
type HTTPSFacilitator struct {
	Client *http.Client
	// AllowHTTP permits plaintext hosts, which is how a local overlay is reached.
	AllowHTTP bool
}

var _ Facilitator = (*HTTPSFacilitator)(nil)

// Send implements Facilitator. When off-chain values are present the body is the BEEF length
// as a varint, the BEEF, then the off-chain values.
func (f *HTTPSFacilitator) Send(ctx context.Context, url string, tagged *overlay.TaggedBEEF) (types.Steak, error) {
	if _, err := utils.CheckHostURL(url, f.AllowHTTP); err != nil {
		return nil, err
	}

	topics, err := json.Marshal(tagged.Topics)
	if err != nil {
		return nil, fmt.Errorf("failed to encode topics: %w", err)
	}

	body := tagged.Beef
	if len(tagged.OffChainValues) > 0 {
		body = make([]byte, 0, len(tagged.Beef)+len(tagged.OffChainValues)+9)
		body = append(body, util.VarInt(uint64(len(tagged.Beef))).Bytes()...)
		body = append(body, tagged.Beef...)
		body = append(body, tagged.OffChainValues...)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(url, "/")+"/submit", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("X-Topics", string(topics))
	if len(tagged.OffChainValues) > 0 {
		req.Header.Set("X-Includes-Off-Chain-Values", "true")
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("submit request to %s failed: %w", url, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSteakBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read submit response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s returned %d %s", ErrSubmitFailed, url, resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	var steak types.Steak
	if err := json.Unmarshal(data, &steak); err != nil {
		return nil, fmt.Errorf("failed to decode STEAK from %s: %w", url, err)
	}
	return steak, nil
}
