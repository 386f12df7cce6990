package identity

// Payload shapes decoded from envelope.Payload for each event_type this
// package appends to a sigchain. Every chain-appending payload carries
// seqno and an optional prev_hash per the payload conventions; sigchain.Append
// re-derives and validates those itself, so these structs only need to
// extract the event-specific fields the state machine acts on.

type devicePayload struct {
	DeviceID     string `json:"device_id"`
	DevicePubkey string `json:"device_pubkey"`
}

type deviceRevocationPayload struct {
	DeviceID string  `json:"device_id"`
	Reason   *string `json:"reason,omitempty"`
}

type endorsementPayload struct {
	SubjectType  string   `json:"subject_type"`
	SubjectID    string   `json:"subject_id"`
	Topic        string   `json:"topic"`
	Magnitude    float64  `json:"magnitude"`
	Confidence   float64  `json:"confidence"`
	Context      *string  `json:"context,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	EvidenceURL  *string  `json:"evidence_url,omitempty"`
}

type endorsementRevocationPayload struct {
	EndorsementID string `json:"endorsement_id"`
}

type recoveryHelperPayload struct {
	AccountID     string  `json:"account_id"`
	HelperRootKID *string `json:"helper_root_kid,omitempty"`
}

type recoveryPolicyPayload struct {
	Threshold int                     `json:"threshold"`
	Helpers   []recoveryHelperPayload `json:"helpers"`
}

type recoveryApprovalPayload struct {
	PolicyID      string `json:"policy_id"`
	NewRootKID    string `json:"new_root_kid"`
	NewRootPubkey string `json:"new_root_pubkey"`
}

type rootRotationPayload struct {
	PolicyID      string `json:"policy_id"`
	NewRootKID    string `json:"new_root_kid"`
	NewRootPubkey string `json:"new_root_pubkey"`
}
