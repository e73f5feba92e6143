// Package signature provides hashing and signing support for the GSC
// blockchain. Transaction signatures are opaque to consensus; producing and
// checking them is a wallet capability, not a validation requirement.
package signature

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
)

// ZeroHash is the previous-hash sentinel carried by the genesis block.
const ZeroHash = "0000000000000000000000000000000000000000000000000000000000000000"

// AddressPrefix starts every GSC account address. A full address is the
// prefix followed by 32 hex characters.
const AddressPrefix = "GSC1"

// addressLength is the total length of a GSC address in characters.
const addressLength = 36

// gscStamp is mixed into every signing hash so signatures produced for the
// GSC network can never be replayed on another chain.
var gscStamp = []byte("\x19GSC Signed Message:\n32")

// =============================================================================

// Hash returns the hex encoded sha256 of the specified string. Every
// consensus digest in the system (transaction ids, block hashes, merkle
// nodes, envelope checksums) goes through this one function.
func Hash(data string) string {
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}

// =============================================================================

// AddressFromPublicKey derives the GSC address for the specified public key.
func AddressFromPublicKey(pk ecdsa.PublicKey) string {
	digest := crypto.Keccak256(crypto.FromECDSAPub(&pk))
	return AddressPrefix + hex.EncodeToString(digest[:16])
}

// IsAddress verifies whether the specified string is a properly formatted
// GSC address. The reserved minting accounts are accepted as well.
func IsAddress(address string) bool {
	if address == "COINBASE" || address == "GENESIS" {
		return true
	}

	if len(address) != addressLength {
		return false
	}

	if address[:len(AddressPrefix)] != AddressPrefix {
		return false
	}

	_, err := hex.DecodeString(address[len(AddressPrefix):])
	return err == nil
}

// =============================================================================

// Sign produces an opaque hex signature over the specified data with the
// private key. The data is stamped and keccak hashed first so the produced
// signature is always 65 bytes and unique to the GSC network.
func Sign(data string, privateKey *ecdsa.PrivateKey) (string, error) {
	digest := stamp(data)

	sig, err := crypto.Sign(digest, privateKey)
	if err != nil {
		return "", err
	}

	return hex.EncodeToString(sig), nil
}

// Verify checks the opaque signature recovers to the specified address for
// the given data. This is the pluggable verification capability; consensus
// code never calls it directly.
func Verify(data string, sigHex string, address string) error {
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return fmt.Errorf("decoding signature: %w", err)
	}
	if len(sig) != crypto.SignatureLength {
		return errors.New("signature has wrong length")
	}

	publicKey, err := crypto.SigToPub(stamp(data), sig)
	if err != nil {
		return err
	}

	if AddressFromPublicKey(*publicKey) != address {
		return errors.New("signature does not match address")
	}

	return nil
}

// stamp returns the 32 byte digest that is actually signed.
func stamp(data string) []byte {
	return crypto.Keccak256(gscStamp, crypto.Keccak256([]byte(data)))
}
