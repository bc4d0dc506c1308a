package utils

import (
	"strings"

	"github.com/bsv-blockchain/go-sdk/overlay"
)

// Topic managers that admit SHIP and SLAP advertisement tokens.
const (
	TopicSHIP = "tm_ship"
	TopicSLAP = "tm_slap"
)

// TokenFields represents the fields of a PushDrop token for SHIP or SLAP advertisement
type TokenFields [][]byte

// FlattenFields concatenates all field bytes into the message a token signature covers.
func FlattenFields(fields TokenFields) []byte {
	n := 0
	for _, field := range fields {
		n += len(field)
	}
	result := make([]byte, 0, n)
	for _, field := range fields {
		result = append(result, field...)
	}
	return result
}

// IsValidNameForProtocol checks a topic or service name against the advertisement protocol
// it is published under: SHIP advertises tm_ topics and SLAP advertises ls_ services.
func IsValidNameForProtocol(protocol overlay.Protocol, name string) bool {
	switch protocol {
	case overlay.ProtocolSHIP:
		return strings.HasPrefix(name, "tm_") && IsValidTopicOrServiceName(name)
	case overlay.ProtocolSLAP:
		return strings.HasPrefix(name, "ls_") && IsValidTopicOrServiceName(name)
	default:
		return false
	}
}

// AdminTopic returns the topic an advertisement token for protocol is submitted to.
func AdminTopic(protocol overlay.Protocol) string {
	if protocol == overlay.ProtocolSLAP {
		return TopicSLAP
	}
	return TopicSHIP
}
