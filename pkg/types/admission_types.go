package types

// AdmittanceInstructions is a host's verdict on one topic of a submitted transaction.
type AdmittanceInstructions struct {
	OutputsToAdmit []uint32 `json:"outputsToAdmit"`
	CoinsToRetain  []uint32 `json:"coinsToRetain"`
	CoinsRemoved   []uint32 `json:"coinsRemoved,omitempty"`
}

// Acknowledges reports whether the host did anything with the transaction for this topic.
func (a *AdmittanceInstructions) Acknowledges() bool {
	if a == nil {
		return false
	}
	return len(a.OutputsToAdmit) > 0 || len(a.CoinsToRetain) > 0 || len(a.CoinsRemoved) > 0
}

// Steak (Submitted Transaction Execution AcKnowledgment) maps topic names to admittance instructions.
type Steak map[string]*AdmittanceInstructions

// AcknowledgedTopics returns the set of topics for which the host admitted, retained or removed outputs.
func (s Steak) AcknowledgedTopics() map[string]struct{} {
	acked := make(map[string]struct{}, len(s))
	for topic, instructions := range s {
		if instructions.Acknowledges() {
			acked[topic] = struct{}{}
		}
	}
	return acked
}

// HostAcknowledgments maps a host URL to the set of topics it acknowledged.
type HostAcknowledgments map[string]map[string]struct{}
