package utils

import (
	"bytes"
	"testing"

	"github.com/bsv-blockchain/go-sdk/overlay"
	"github.com/stretchr/testify/assert"
)

func TestFlattenFields(t *testing.T) {
	tests := []struct {
		name     string
		fields   TokenFields
		expected []byte
	}{
		{
			name:     "empty fields",
			fields:   TokenFields{},
			expected: []byte{},
		},
		{
			name: "single field",
			fields: TokenFields{
				[]byte("hello"),
			},
			expected: []byte("hello"),
		},
		{
			name: "multiple fields",
			fields: TokenFields{
				[]byte("hello"),
				[]byte("world"),
				[]byte{0x01, 0x02},
			},
			expected: []byte("helloworld\x01\x02"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := FlattenFields(tt.fields)
			if !bytes.Equal(result, tt.expected) {
				t.Errorf("FlattenFields() = %v, expected %v", result, tt.expected)
			}
		})
	}
}

func TestIsValidNameForProtocol(t *testing.T) {
	tests := []struct {
		protocol overlay.Protocol
		name     string
		valid    bool
	}{
		{overlay.ProtocolSHIP, "tm_meter", true},
		{overlay.ProtocolSHIP, "ls_meter", false},
		{overlay.ProtocolSLAP, "ls_identity_lookup", true},
		{overlay.ProtocolSLAP, "tm_meter", false},
		{overlay.ProtocolSLAP, "ls_", false},
		{overlay.Protocol("XYZ"), "tm_meter", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.protocol)+"/"+tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, IsValidNameForProtocol(tt.protocol, tt.name))
		})
	}
}

func TestAdminTopic(t *testing.T) {
	assert.Equal(t, "tm_ship", AdminTopic(overlay.ProtocolSHIP))
	assert.Equal(t, "tm_slap", AdminTopic(overlay.ProtocolSLAP))
}
