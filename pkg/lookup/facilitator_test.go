package lookup

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/bsv-blockchain/go-overlay-client/internal/overlaytest"
	"github.com/bsv-blockchain/go-overlay-client/pkg/types"
	"github.com/bsv-blockchain/go-overlay-client/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPSFacilitatorLookup(t *testing.T) {
	ctx := context.Background()
	outputs := dataOutputs(t, 1)
	server := overlaytest.NewOverlayServer(t, &types.OutputListAnswer{Outputs: outputs}, nil, true)

	f := &HTTPSFacilitator{Client: server.Client()}
	answer, err := f.Lookup(ctx, server.URL, fooQuestion(t))
	require.NoError(t, err)
	assert.Equal(t, &types.OutputListAnswer{Outputs: outputs}, answer)

	questions := server.Questions()
	require.Len(t, questions, 1)
	assert.Equal(t, "ls_foo", questions[0].Service)
	assert.JSONEq(t, `{"name":"alice"}`, string(questions[0].Query))
}

func TestHTTPSFacilitatorFreeform(t *testing.T) {
	server := overlaytest.NewOverlayServer(t, &types.FreeformAnswer{Result: json.RawMessage(`[1,2]`)}, nil, true)

	f := &HTTPSFacilitator{Client: server.Client()}
	answer, err := f.Lookup(context.Background(), server.URL+"/", fooQuestion(t))
	require.NoError(t, err)

	free, ok := answer.(*types.FreeformAnswer)
	require.True(t, ok)
	assert.JSONEq(t, `[1,2]`, string(free.Result))
}

func TestHTTPSFacilitatorRejectsPlaintext(t *testing.T) {
	server := overlaytest.NewOverlayServer(t, &types.OutputListAnswer{}, nil, false)

	strict := &HTTPSFacilitator{Client: server.Client()}
	_, err := strict.Lookup(context.Background(), server.URL, fooQuestion(t))
	require.ErrorIs(t, err, utils.ErrInsecureHostURL)
	assert.Empty(t, server.Questions())

	local := &HTTPSFacilitator{Client: server.Client(), AllowHTTP: true}
	answer, err := local.Lookup(context.Background(), server.URL, fooQuestion(t))
	require.NoError(t, err)
	assert.IsType(t, &types.OutputListAnswer{}, answer)
}

func TestHTTPSFacilitatorStatusError(t *testing.T) {
	server := overlaytest.NewOverlayServer(t, nil, nil, true)

	f := &HTTPSFacilitator{Client: server.Client()}
	_, err := f.Lookup(context.Background(), server.URL, fooQuestion(t))
	require.ErrorIs(t, err, ErrLookupFailed)
}

func TestParseNetwork(t *testing.T) {
	for _, name := range []string{"mainnet", "testnet", "local"} {
		network, err := ParseNetwork(name)
		require.NoError(t, err)
		assert.Equal(t, name, NetworkName(network))
	}

	network, err := ParseNetwork("test")
	require.NoError(t, err)
	assert.Equal(t, "testnet", NetworkName(network))

	_, err = ParseNetwork("regtest")
	require.ErrorIs(t, err, ErrUnknownNetwork)
}
