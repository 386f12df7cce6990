package identity

import (
	"encoding/json"
	"fmt"

	"github.com/sigil-id/identity/pkg/envelope"
)

// decodePayload unmarshals env's payload into v.
func decodePayload(env *envelope.SignedEnvelope, v interface{}) error {
	if err := json.Unmarshal(env.Payload, v); err != nil {
		return fmt.Errorf("identity: decode payload: %w", err)
	}
	return nil
}
