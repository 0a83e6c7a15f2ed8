// Package security provides the node's cryptographic identity: the Ed25519
// keypair that signs every gossip envelope, the derived node identifier,
// and the content-hash oracle used for trace fingerprinting.
package security

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NodeIDLength is the length of a node identifier in hex characters.
const NodeIDLength = 16

// Keypair holds the node's Ed25519 identity.
type Keypair struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// GenerateKeypair creates a new Ed25519 keypair.
func GenerateKeypair() (*Keypair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ed25519 keypair: %w", err)
	}
	return &Keypair{Public: pub, Private: priv}, nil
}

// LoadOrCreateKeypair loads the node keypair from home/keys, generating and
// persisting a fresh one when none exists. A present-but-corrupt key file
// is an error, never silently replaced — replacing it would change the
// node's signing identity.
func LoadOrCreateKeypair(home string) (*Keypair, error) {
	keyDir := filepath.Join(home, "keys")

	kp, err := loadKeypair(keyDir)
	if err == nil {
		return kp, nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}

	kp, err = GenerateKeypair()
	if err != nil {
		return nil, err
	}
	if err := saveKeypair(keyDir, kp); err != nil {
		return nil, err
	}
	return kp, nil
}

func loadKeypair(keyDir string) (*Keypair, error) {
	pub, err := readHexKey(filepath.Join(keyDir, "node.pub"), ed25519.PublicKeySize)
	if err != nil {
		return nil, err
	}
	priv, err := readHexKey(filepath.Join(keyDir, "node.key"), ed25519.PrivateKeySize)
	if err != nil {
		return nil, err
	}
	return &Keypair{
		Public:  ed25519.PublicKey(pub),
		Private: ed25519.PrivateKey(priv),
	}, nil
}

// readHexKey reads one hex-encoded key file and enforces its decoded size.
func readHexKey(path string, size int) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	key, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	if len(key) != size {
		return nil, fmt.Errorf("%s holds %d key bytes, want %d",
			filepath.Base(path), len(key), size)
	}
	return key, nil
}

// saveKeypair persists both halves hex-encoded: the public key readable,
// the private key owner-only.
func saveKeypair(keyDir string, kp *Keypair) error {
	if err := os.MkdirAll(keyDir, 0700); err != nil {
		return fmt.Errorf("create key dir: %w", err)
	}
	pubPath := filepath.Join(keyDir, "node.pub")
	if err := os.WriteFile(pubPath, []byte(hex.EncodeToString(kp.Public)), 0644); err != nil {
		return fmt.Errorf("write public key: %w", err)
	}
	privPath := filepath.Join(keyDir, "node.key")
	if err := os.WriteFile(privPath, []byte(hex.EncodeToString(kp.Private)), 0600); err != nil {
		return fmt.Errorf("write private key: %w", err)
	}
	return nil
}

// PublicKeyHex returns the public key as a hex string.
func (kp *Keypair) PublicKeyHex() string {
	return hex.EncodeToString(kp.Public)
}

// Sign signs a message with the node's private key.
func (kp *Keypair) Sign(message []byte) []byte {
	return ed25519.Sign(kp.Private, message)
}

// Verify checks a signature against a public key.
func Verify(message, signature []byte, publicKey ed25519.PublicKey) bool {
	return ed25519.Verify(publicKey, message, signature)
}

// NewNodeID derives a fresh node identifier: the first NodeIDLength hex
// characters of a digest over the current time and a random UUID.
func NewNodeID() string {
	d := NewDigester()
	d.Fold([]byte(strconv.FormatInt(time.Now().UnixNano(), 10)))
	d.Fold([]byte(uuid.New().String()))
	return d.Sum()[:NodeIDLength]
}
