package sigchain

import (
	"encoding/json"
	"testing"

	"github.com/sigil-id/identity/pkg/idcrypto"
)

func TestChainedPayloadHeaderDecodesAbsentPrevHash(t *testing.T) {
	raw := []byte(`{"seqno":1,"device_id":"d1"}`)
	var header chainedPayloadHeader
	if err := json.Unmarshal(raw, &header); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if header.Seqno != 1 {
		t.Fatalf("expected seqno 1, got %d", header.Seqno)
	}
	if header.PrevHash != nil {
		t.Fatalf("expected nil prev_hash, got %v", *header.PrevHash)
	}
}

func TestChainedPayloadHeaderDecodesPrevHash(t *testing.T) {
	prevHash := idcrypto.EncodeBase64URL(idcrypto.SHA256([]byte("link-1")))
	raw, err := json.Marshal(map[string]interface{}{
		"seqno":     2,
		"prev_hash": prevHash,
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var header chainedPayloadHeader
	if err := json.Unmarshal(raw, &header); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if header.PrevHash == nil || *header.PrevHash != prevHash {
		t.Fatalf("expected prev_hash %q, got %v", prevHash, header.PrevHash)
	}
}
