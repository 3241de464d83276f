package signer

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"testing"
)

func newTestSigner(t *testing.T) *Signer {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	s, err := New(hex.EncodeToString(priv.Seed()))
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	return s
}

func TestSignClaimRoundTrip(t *testing.T) {
	s := newTestSigner(t)

	sig, err := s.SignClaim("0xabc", 500, "nonce-1")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	msg := ClaimMessage("0xabc", 500, "nonce-1")
	if err := Verify(s.PublicKeyHex(), msg, sig); err != nil {
		t.Fatalf("verify: %v", err)
	}

	// Tampered amount must not verify.
	bad := ClaimMessage("0xabc", 501, "nonce-1")
	if err := Verify(s.PublicKeyHex(), bad, sig); err == nil {
		t.Fatal("expected verification failure for tampered amount")
	}
}

func TestClaimMessageDeterministic(t *testing.T) {
	a := ClaimMessage("0xabc", 100, "n")
	b := ClaimMessage("0xabc", 100, "n")
	if !bytes.Equal(a, b) {
		t.Fatal("claim message not deterministic")
	}

	if bytes.Equal(a, ClaimMessage("0xabd", 100, "n")) {
		t.Fatal("address not bound into message")
	}
	if bytes.Equal(a, ClaimMessage("0xabc", 100, "m")) {
		t.Fatal("nonce not bound into message")
	}
}

func TestDisabledSigner(t *testing.T) {
	s, err := New("")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if s.Ready() {
		t.Fatal("empty key should not be ready")
	}
	if _, err := s.SignClaim("0xabc", 100, "n"); err != ErrNoKey {
		t.Fatalf("expected ErrNoKey, got %v", err)
	}
}

func TestNewRejectsBadKey(t *testing.T) {
	if _, err := New("zz"); err == nil {
		t.Fatal("expected error for non-hex key")
	}
	if _, err := New("abcd"); err == nil {
		t.Fatal("expected error for wrong-length key")
	}
}

func TestPrefix(t *testing.T) {
	if got := Prefix("0123456789abcdef"); got != "01234567" {
		t.Fatalf("Prefix = %q", got)
	}
	if got := Prefix("abc"); got != "abc" {
		t.Fatalf("Prefix short = %q", got)
	}
}
