package topic

import "github.com/bsv-blockchain/go-overlay-client/pkg/types"

// hostTopics maps a host URL to the topics submitted to it.
type hostTopics map[string]map[string]struct{}

type ackMode int

const (
	ackUnset ackMode = iota
	ackAll
	ackAny
	ackList
)

// AckRequirement says which topics a host must acknowledge. The zero value means the
// requirement is not configured.
type AckRequirement struct {
	mode   ackMode
	topics []string
}

// AllTopics requires every topic the broadcaster was created with.
func AllTopics() AckRequirement {
	return AckRequirement{mode: ackAll}
}

// AnyTopic requires at least one of the topics the broadcaster was created with.
func AnyTopic() AckRequirement {
	return AckRequirement{mode: ackAny}
}

// Topics requires every listed topic. An empty list is always satisfied.
func Topics(topics ...string) AckRequirement {
	return AckRequirement{mode: ackList, topics: append([]string{}, topics...)}
}

// IsSet reports whether the requirement was configured.
func (a AckRequirement) IsSet() bool {
	return a.mode != ackUnset
}

// resolve returns the required topics and whether all of them must be acknowledged.
func (a AckRequirement) resolve(configured []string) (required []string, requireAll bool) {
	switch a.mode {
	case ackAll:
		return configured, true
	case ackAny:
		return configured, false
	case ackList:
		return a.topics, true
	default:
		return nil, true
	}
}

// satisfies judges one host against the required topics it was sent. Required topics the
// host never received are not expected from it.
func satisfies(acked, sent map[string]struct{}, required []string, requireAll bool) bool {
	expected := make([]string, 0, len(required))
	for _, topic := range required {
		if _, ok := sent[topic]; ok {
			expected = append(expected, topic)
		}
	}
	if len(expected) == 0 {
		return requireAll
	}
	if requireAll {
		for _, topic := range expected {
			if _, ok := acked[topic]; !ok {
				return false
			}
		}
		return true
	}
	for _, topic := range expected {
		if _, ok := acked[topic]; ok {
			return true
		}
	}
	return false
}

// ackFromAllHosts holds when every successful host satisfies the requirement.
func ackFromAllHosts(acks types.HostAcknowledgments, sent hostTopics, required []string, requireAll bool) bool {
	for host, acked := range acks {
		if !satisfies(acked, sent[host], required, requireAll) {
			return false
		}
	}
	return true
}

// ackFromAnyHost holds when at least one successful host satisfies the requirement.
// A host sent none of the required topics cannot satisfy it.
func ackFromAnyHost(acks types.HostAcknowledgments, sent hostTopics, required []string, requireAll bool) bool {
	for host, acked := range acks {
		if !sentAny(sent[host], required) {
			continue
		}
		if satisfies(acked, sent[host], required, requireAll) {
			return true
		}
	}
	return false
}

// ackFromSpecificHosts holds when each named host answered successfully and satisfies its
// own requirement.
func ackFromSpecificHosts(acks types.HostAcknowledgments, sent hostTopics, requirements map[string]AckRequirement, configured []string) bool {
	for host, requirement := range requirements {
		acked, ok := acks[host]
		if !ok {
			return false
		}
		if !requirement.IsSet() {
			continue
		}
		required, requireAll := requirement.resolve(configured)
		if !satisfies(acked, sent[host], required, requireAll) {
			return false
		}
	}
	return true
}

func sentAny(sent map[string]struct{}, required []string) bool {
	for _, topic := range required {
		if _, ok := sent[topic]; ok {
			return true
		}
	}
	return false
}
