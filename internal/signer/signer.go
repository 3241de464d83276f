// Package signer produces the single-use signatures that let players redeem
// off-chain coin balances on chain. The private key lives only in process
// memory; logs never carry more than a short prefix of any key or signature.
package signer

import (
	"crypto/ed25519"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/sha3"
)

var (
	// ErrNoKey means the signer was constructed without key material.
	ErrNoKey = errors.New("signer key not configured")
)

// Signer signs deterministic claim and battle-result messages.
type Signer struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// New builds a Signer from a hex-encoded ed25519 private key (seed or full
// 64-byte key). An empty key yields a disabled signer whose Sign methods
// return ErrNoKey, so a misconfigured deploy fails per-request instead of
// at boot.
func New(hexKey string) (*Signer, error) {
	if hexKey == "" {
		return &Signer{}, nil
	}

	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid signer key hex: %w", err)
	}

	var priv ed25519.PrivateKey
	switch len(raw) {
	case ed25519.SeedSize:
		priv = ed25519.NewKeyFromSeed(raw)
	case ed25519.PrivateKeySize:
		priv = ed25519.PrivateKey(raw)
	default:
		return nil, fmt.Errorf("signer key must be %d or %d bytes, got %d",
			ed25519.SeedSize, ed25519.PrivateKeySize, len(raw))
	}

	return &Signer{
		priv: priv,
		pub:  priv.Public().(ed25519.PublicKey),
	}, nil
}

// Ready reports whether key material is loaded.
func (s *Signer) Ready() bool {
	return s.priv != nil
}

// PublicKeyHex returns the hex-encoded verification key.
func (s *Signer) PublicKeyHex() string {
	if s.pub == nil {
		return ""
	}
	return hex.EncodeToString(s.pub)
}

// ClaimMessage builds the deterministic message hash for a claim:
// keccak256("raid-claim-v1" || address || amount(8 bytes BE) || nonce).
// The on-chain verifier reconstructs the same bytes.
func ClaimMessage(address string, amount int64, nonce string) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte("raid-claim-v1"))
	h.Write([]byte(address))

	amt := make([]byte, 8)
	binary.BigEndian.PutUint64(amt, uint64(amount))
	h.Write(amt)

	h.Write([]byte(nonce))
	return h.Sum(nil)
}

// BattleMessage builds the deterministic message hash for a battle result:
// keccak256("raid-battle-v1" || battleID || winner).
func BattleMessage(battleID, winner string) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte("raid-battle-v1"))
	h.Write([]byte(battleID))
	h.Write([]byte(winner))
	return h.Sum(nil)
}

// SignClaim signs the claim message and returns a hex signature.
func (s *Signer) SignClaim(address string, amount int64, nonce string) (string, error) {
	if !s.Ready() {
		return "", ErrNoKey
	}
	sig := ed25519.Sign(s.priv, ClaimMessage(address, amount, nonce))
	return hex.EncodeToString(sig), nil
}

// SignBattle signs a battle result message and returns a hex signature.
func (s *Signer) SignBattle(battleID, winner string) (string, error) {
	if !s.Ready() {
		return "", ErrNoKey
	}
	sig := ed25519.Sign(s.priv, BattleMessage(battleID, winner))
	return hex.EncodeToString(sig), nil
}

// Verify checks a hex signature against the given message bytes.
func Verify(pubHex string, message []byte, sigHex string) error {
	pub, err := hex.DecodeString(pubHex)
	if err != nil {
		return fmt.Errorf("invalid pubkey hex: %w", err)
	}
	if len(pub) != ed25519.PublicKeySize {
		return errors.New("invalid public key size")
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return fmt.Errorf("invalid signature hex: %w", err)
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), message, sig) {
		return errors.New("signature verification failed")
	}
	return nil
}

// Prefix returns the first 8 characters of a hex string for safe logging.
func Prefix(hexStr string) string {
	if len(hexStr) <= 8 {
		return hexStr
	}
	return hexStr[:8]
}
