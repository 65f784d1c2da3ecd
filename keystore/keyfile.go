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

package keystore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/ethereum/go-ethereum/common"

	"github.com/blinklabs-io/bequest/keystore/sops"
)

const (
	KeyFileType = "Secp256k1SigningKey"

	// Valid key files are well under this size
	maxKeyFileSize = 1 << 20
)

// keyFileEnvelope is the JSON structure of a key file
type keyFileEnvelope struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Address     string `json:"address"`
	KeyHex      string `json:"keyHex"`
}

type saveOptions struct {
	description string
	sops        bool
}

type SaveOption func(*saveOptions)

// WithDescription sets the free-form description stored in the key file
func WithDescription(description string) SaveOption {
	return func(o *saveOptions) {
		o.description = description
	}
}

// WithSops encrypts the key file with the SOPS master keys configured in the
// environment
func WithSops(enabled bool) SaveOption {
	return func(o *saveOptions) {
		o.sops = enabled
	}
}

// SaveKeyFile writes key to a new file readable only by its owner. An
// existing file is never overwritten.
func SaveKeyFile(path string, key *Key, opts ...SaveOption) error {
	o := saveOptions{description: "Signing Key"}
	for _, opt := range opts {
		opt(&o)
	}
	data, err := json.MarshalIndent(
		keyFileEnvelope{
			Type:        KeyFileType,
			Description: o.description,
			Address:     key.Address().Hex(),
			KeyHex:      key.Hex(),
		},
		"",
		"    ",
	)
	if err != nil {
		return err
	}
	if o.sops {
		data, err = sops.Encrypt(data)
		if err != nil {
			return fmt.Errorf("failed to encrypt key file: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%w: %s", ErrKeyFileExists, path)
		}
		return fmt.Errorf("failed to create key file %q: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write key file %q: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write key file %q: %w", path, err)
	}
	return restrictFilePermissions(path)
}

// LoadKeyFile loads a key file written by SaveKeyFile, decrypting it first if
// it is SOPS encrypted. Returns ErrInsecureFileMode if the file is
// accessible to anyone but its owner.
//
// The file is opened first and permissions are checked on the open handle
// (via fstat on Unix) to avoid a TOCTOU race between the permission check
// and the read.
func LoadKeyFile(path string) (*Key, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open key file %q: %w", path, err)
	}
	defer f.Close()

	if err := checkOpenFilePermissions(f); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(f, maxKeyFileSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read key file %q: %w", path, err)
	}
	key, err := parseKeyFile(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse key file %q: %w", path, err)
	}
	return key, nil
}

func parseKeyFile(data []byte) (*Key, error) {
	if sops.IsEncrypted(data) {
		plain, err := sops.Decrypt(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt: %w", err)
		}
		data = plain
	}
	var env keyFileEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("could not parse key file envelope: %w", err)
	}
	if env.Type != KeyFileType {
		return nil, fmt.Errorf("unknown key type: %s", env.Type)
	}
	key, err := KeyFromHex(env.KeyHex)
	if err != nil {
		return nil, err
	}
	// Derive the address rather than trusting file contents
	if env.Address != "" &&
		common.HexToAddress(env.Address) != key.Address() {
		return nil, fmt.Errorf(
			"%w: address %s does not match key",
			ErrInvalidKey,
			env.Address,
		)
	}
	return key, nil
}
