package identity

import (
	"testing"

	"github.com/google/uuid"

	"github.com/sigil-id/identity/pkg/envelope"
)

func TestClamp(t *testing.T) {
	cases := []struct {
		v, lo, hi, want float64
	}{
		{0.5, 0, 1, 0.5},
		{-0.2, 0, 1, 0},
		{1.7, 0, 1, 1},
		{-2, -1, 1, -1},
	}
	for _, c := range cases {
		if got := clamp(c.v, c.lo, c.hi); got != c.want {
			t.Errorf("clamp(%v, %v, %v) = %v, want %v", c.v, c.lo, c.hi, got, c.want)
		}
	}
}

func TestCheckAccountIDClaimAcceptsAbsent(t *testing.T) {
	env := &envelope.SignedEnvelope{}
	if err := checkAccountIDClaim(env, uuid.Nil); err != nil {
		t.Fatalf("expected nil error for absent account_id claim, got %v", err)
	}
}

func TestCheckAccountIDClaimRejectsUnparseable(t *testing.T) {
	other := "not-a-uuid"
	env := &envelope.SignedEnvelope{Signer: envelope.Signer{AccountID: &other}}
	if err := checkAccountIDClaim(env, uuid.Nil); err == nil {
		t.Fatal("expected an error for an unparseable account_id claim")
	}
}
