package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bsv-blockchain/go-overlay-client/internal/overlaytest"
	"github.com/bsv-blockchain/go-overlay-client/pkg/types"
	"github.com/bsv-blockchain/go-sdk/overlay"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "overlay.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLookupCommand(t *testing.T) {
	server := overlaytest.NewOverlayServer(t, &types.FreeformAnswer{Result: json.RawMessage(`{"ok":true}`)}, nil, false)
	path := writeConfig(t, fmt.Sprintf("network: local\nhostOverrides:\n  ls_foo:\n    - %s\n", server.URL))

	var out bytes.Buffer
	err := newApp(&out).Run([]string{"overlayctl", "--config", path, "lookup", "--service", "ls_foo", "--query", `{"name":"alice"}`})
	require.NoError(t, err)

	var printed map[string]interface{}
	require.NoError(t, json.Unmarshal(out.Bytes(), &printed))
	assert.Equal(t, map[string]interface{}{"ok": true}, printed["result"])

	questions := server.Questions()
	require.Len(t, questions, 1)
	assert.Equal(t, "ls_foo", questions[0].Service)
	assert.JSONEq(t, `{"name":"alice"}`, string(questions[0].Query))
}

func TestLookupCommandErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		err  error
	}{
		{name: "missing service", args: []string{"lookup"}, err: errServiceRequired},
		{name: "invalid query", args: []string{"lookup", "--service", "ls_foo", "--query", "{"}, err: errInvalidQuery},
		{name: "hosts without service", args: []string{"hosts"}, err: errServiceRequired},
		{name: "decode without script", args: []string{"decode"}, err: errScriptRequired},
		{name: "broadcast without beef", args: []string{"broadcast", "--topics", "tm_foo"}, err: errBEEFSource},
		{name: "advertise without names", args: []string{"advertise", "--uri", "https://a.example"}, err: errNothingToAdvertise},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := newApp(&bytes.Buffer{}).Run(append([]string{"overlayctl"}, tt.args...))
			require.ErrorIs(t, err, tt.err)
		})
	}
}

func TestDecodeCommand(t *testing.T) {
	w := overlaytest.Wallet(t, 7)
	s := overlaytest.Advertisement(t, w, overlay.ProtocolSHIP, "https://a.example", "tm_foo")

	var out bytes.Buffer
	err := newApp(&out).Run([]string{"overlayctl", "decode", "--verify", "--script", hex.EncodeToString(*s)})
	require.NoError(t, err)

	var printed decodedToken
	require.NoError(t, json.Unmarshal(out.Bytes(), &printed))
	assert.Empty(t, printed.Error)
	assert.Len(t, printed.Fields, 5)
	require.NotNil(t, printed.Advertisement)
	assert.Equal(t, overlay.ProtocolSHIP, printed.Advertisement.Protocol)
	assert.Equal(t, "https://a.example", printed.Advertisement.Domain)
	assert.Equal(t, "tm_foo", printed.Advertisement.TopicOrService)
}

func TestDecodeCommandNonAdvertisement(t *testing.T) {
	var out bytes.Buffer
	err := newApp(&out).Run([]string{"overlayctl", "decode", "--script", "6a"})
	require.Error(t, err)
	assert.Empty(t, out.String())
}

func TestReadBEEF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tx.beef")
	require.NoError(t, os.WriteFile(path, []byte{0x01, 0x02}, 0o600))

	tests := []struct {
		name    string
		file    string
		hex     string
		want    []byte
		wantErr bool
	}{
		{name: "file", file: path, want: []byte{0x01, 0x02}},
		{name: "hex", hex: "0a0b", want: []byte{0x0a, 0x0b}},
		{name: "both", file: path, hex: "0a", wantErr: true},
		{name: "neither", wantErr: true},
		{name: "bad hex", hex: "zz", wantErr: true},
		{name: "missing file", file: filepath.Join(t.TempDir(), "nope"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readBEEF(tt.file, tt.hex)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
