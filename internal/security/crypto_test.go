package security

import (
	"crypto/ed25519"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadOrCreateKeypair_StableAcrossReload(t *testing.T) {
	home := t.TempDir()

	kp1, err := LoadOrCreateKeypair(home)
	if err != nil {
		t.Fatalf("LoadOrCreateKeypair: %v", err)
	}
	kp2, err := LoadOrCreateKeypair(home)
	if err != nil {
		t.Fatalf("LoadOrCreateKeypair (reload): %v", err)
	}
	if kp1.PublicKeyHex() != kp2.PublicKeyHex() {
		t.Errorf("identity changed across reload: %s -> %s",
			kp1.PublicKeyHex(), kp2.PublicKeyHex())
	}
}

func TestLoadOrCreateKeypair_CorruptKeyIsAnError(t *testing.T) {
	home := t.TempDir()
	if _, err := LoadOrCreateKeypair(home); err != nil {
		t.Fatalf("LoadOrCreateKeypair: %v", err)
	}

	pubPath := filepath.Join(home, "keys", "node.pub")
	if err := os.WriteFile(pubPath, []byte("not hex"), 0644); err != nil {
		t.Fatalf("corrupt key file: %v", err)
	}
	if _, err := LoadOrCreateKeypair(home); err == nil {
		t.Error("corrupt key file silently replaced")
	}
}

func TestLoadOrCreateKeypair_TruncatedKeyIsAnError(t *testing.T) {
	home := t.TempDir()
	if _, err := LoadOrCreateKeypair(home); err != nil {
		t.Fatalf("LoadOrCreateKeypair: %v", err)
	}

	privPath := filepath.Join(home, "keys", "node.key")
	if err := os.WriteFile(privPath, []byte("abcd"), 0600); err != nil {
		t.Fatalf("truncate key file: %v", err)
	}
	if _, err := LoadOrCreateKeypair(home); err == nil {
		t.Error("wrong-size key accepted")
	}
}

func TestSignVerify(t *testing.T) {
	kp, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}

	msg := []byte("trace digest payload")
	sig := kp.Sign(msg)
	if !Verify(msg, sig, kp.Public) {
		t.Error("signature did not verify against its own key")
	}
	if Verify([]byte("tampered"), sig, kp.Public) {
		t.Error("signature verified a different message")
	}

	other, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	if Verify(msg, sig, ed25519.PublicKey(other.Public)) {
		t.Error("signature verified under a foreign key")
	}
}

func TestNewNodeID(t *testing.T) {
	id := NewNodeID()
	if len(id) != NodeIDLength {
		t.Errorf("node id %q, want %d hex chars", id, NodeIDLength)
	}
	if NewNodeID() == NewNodeID() {
		t.Error("two derived node ids should differ")
	}
}
