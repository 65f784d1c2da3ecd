// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package keystore manages the secp256k1 signing keys that identify callers
// of the vault.
package keystore

import (
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrInsecureFileMode = errors.New("insecure file permissions")
	ErrInvalidKey       = errors.New("invalid signing key")
	ErrKeyFileExists    = errors.New("key file already exists")
)

// Key is a secp256k1 signing key and the principal derived from it
type Key struct {
	private *ecdsa.PrivateKey
	address common.Address
}

func newKey(private *ecdsa.PrivateKey) *Key {
	return &Key{
		private: private,
		address: crypto.PubkeyToAddress(private.PublicKey),
	}
}

// GenerateKey creates a new random key
func GenerateKey() (*Key, error) {
	private, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return newKey(private), nil
}

// KeyFromHex parses a hex encoded private key, with or without a 0x prefix
func KeyFromHex(s string) (*Key, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	private, err := crypto.HexToECDSA(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}
	return newKey(private), nil
}

// Address returns the principal controlled by the key
func (k *Key) Address() common.Address {
	return k.address
}

func (k *Key) PublicKey() *ecdsa.PublicKey {
	return &k.private.PublicKey
}

// Hex returns the hex encoded private key
func (k *Key) Hex() string {
	return hex.EncodeToString(crypto.FromECDSA(k.private))
}

// Sign produces a 65 byte recoverable signature over a 32 byte digest
func (k *Key) Sign(digest []byte) ([]byte, error) {
	return crypto.Sign(digest, k.private)
}
