// Package sigchain enforces seqno and prev_hash continuity when appending
// signed events to an account's hash-linked event log, and verifies the
// envelope signature against the signer's current key before the link is
// allowed onto the chain.
package sigchain

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/sigil-id/identity/pkg/database"
	"github.com/sigil-id/identity/pkg/envelope"
	"github.com/sigil-id/identity/pkg/idcrypto"
)

var (
	// ErrSeqnoOutOfOrder is returned when the appended event's seqno does not
	// immediately follow the previous link.
	ErrSeqnoOutOfOrder = errors.New("sigchain: seqno out of order")
	// ErrPrevHashMismatch is returned when the appended event's prev_hash
	// does not equal the canonical-bytes hash of the previous link.
	ErrPrevHashMismatch = errors.New("sigchain: prev_hash does not match previous link")
	// ErrPrevHashMissing is returned when a non-genesis event omits prev_hash.
	ErrPrevHashMissing = errors.New("sigchain: prev_hash missing for chained event")
	// ErrPrevHashUnexpected is returned when the genesis event (seqno 1)
	// carries a prev_hash.
	ErrPrevHashUnexpected = errors.New("sigchain: prev_hash must be absent for the first event")
)

// chainedPayloadHeader is the subset of fields every chain-appending payload
// carries, per the payload conventions: seqno and an optional prev_hash.
type chainedPayloadHeader struct {
	Seqno    int64   `json:"seqno"`
	PrevHash *string `json:"prev_hash,omitempty"`
}

// Append validates and appends a signed event within tx. Callers are
// expected to have already begun tx (typically as part of a larger
// operation such as device delegation or root rotation that must commit
// atomically with this append) and to commit or roll it back themselves.
func Append(ctx context.Context, events *database.SignedEventRepository, tx *database.Tx, accountID uuid.UUID, eventType string, env *envelope.SignedEnvelope, signerKey ed25519.PublicKey) (*database.SignedEvent, error) {
	var header chainedPayloadHeader
	if err := json.Unmarshal(env.Payload, &header); err != nil {
		return nil, fmt.Errorf("sigchain: failed to decode payload header: %w", err)
	}

	prevHash, err := envelope.ExtractPrevHash(header.PrevHash)
	if err != nil {
		return nil, fmt.Errorf("sigchain: failed to extract prev_hash: %w", err)
	}

	prev, err := events.LastInTx(ctx, tx, accountID)
	if err != nil {
		return nil, fmt.Errorf("sigchain: failed to fetch previous link: %w", err)
	}

	if prev == nil {
		if header.Seqno != 1 {
			return nil, ErrSeqnoOutOfOrder
		}
		if prevHash != nil {
			return nil, ErrPrevHashUnexpected
		}
	} else {
		if header.Seqno != prev.Seqno+1 {
			return nil, ErrSeqnoOutOfOrder
		}
		if prevHash == nil {
			return nil, ErrPrevHashMissing
		}
		if idcrypto.EncodeBase64URL(prevHash) != prev.CanonicalBytesHash {
			return nil, ErrPrevHashMismatch
		}
	}

	if err := env.Verify(signerKey); err != nil {
		return nil, fmt.Errorf("sigchain: envelope verification failed: %w", err)
	}

	canonical, err := env.CanonicalSigningBytes()
	if err != nil {
		return nil, fmt.Errorf("sigchain: failed to canonicalize envelope: %w", err)
	}
	canonicalHash := idcrypto.EncodeBase64URL(idcrypto.SHA256(canonical))

	envelopeJSON, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("sigchain: failed to marshal envelope: %w", err)
	}

	row := &database.SignedEvent{
		AccountID:          accountID,
		Seqno:              header.Seqno,
		EventType:          eventType,
		Envelope:           envelopeJSON,
		CanonicalBytesHash: canonicalHash,
	}
	if prev != nil {
		row.PrevHash.String = prev.CanonicalBytesHash
		row.PrevHash.Valid = true
	}

	if err := events.AppendInTx(ctx, tx, row); err != nil {
		return nil, fmt.Errorf("sigchain: failed to append signed event: %w", err)
	}
	return row, nil
}

// Fetch returns every event for accountID ordered by seqno ascending.
func Fetch(ctx context.Context, events *database.SignedEventRepository, accountID uuid.UUID) ([]*database.SignedEvent, error) {
	return events.Fetch(ctx, accountID)
}
