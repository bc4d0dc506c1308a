package lookup

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
)

// maxAnswerBytes caps the size of a lookup response body.
const maxAnswerBytes = 64 << 20

// ErrLookupFailed is returned when a host answers a lookup with a non-success status.
var ErrLookupFailed = errors.New("lookup request failed")

// Facilitator sends one lookup question to one host.
type Facilitator interface {
	Lookup(ctx context.Context, url string, question *types.LookupQuestion) (types.LookupAnswer, error)
}

// HTTPSFacilitator posts lookup questions as JSON to <host>/lookup.
type HTTPSFacilitator struct {
	Client *http.Client
	// AllowHTTP permits plaintext hosts, which is how a local overlay is reached.
	AllowHTTP bool
}

var _ Facilitator = (*HTTPSFacilitator)(nil)

// Lookup implements Facilitator.
func (f *HTTPSFacilitator) Lookup(ctx context.Context, url string, question *types.LookupQuestion) (types.LookupAnswer, error) {
	if _, err := utils.CheckHostURL(url, f.AllowHTTP); err != nil {
		return nil, err
	}

	body, err := json.Marshal(question)
	if err != nil {
		return nil, fmt.Errorf("failed to encode lookup question: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(url, "/")+"/lookup", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create lookup request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("lookup request to %s failed: %w", url, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAnswerBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read lookup response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s returned %d", ErrLookupFailed, url, resp.StatusCode)
	}

	return types.DecodeLookupAnswer(data)
}
