// Copyright 2025 Blink Labs Software
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

// Package sops encrypts and decrypts key files with SOPS, using master keys
// configured through the environment.
package sops

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	sopsapi "github.com/getsops/sops/v3"
	"github.com/getsops/sops/v3/aes"
	sopsage "github.com/getsops/sops/v3/age"
	scommon "github.com/getsops/sops/v3/cmd/sops/common"
	"github.com/getsops/sops/v3/config"
	"github.com/getsops/sops/v3/decrypt"
	"github.com/getsops/sops/v3/gcpkms"
	skeys "github.com/getsops/sops/v3/keys"
	awskms "github.com/getsops/sops/v3/kms"
	jsonstore "github.com/getsops/sops/v3/stores/json"
	"github.com/getsops/sops/v3/version"
)

var (
	ErrAlreadyEncrypted = errors.New("already encrypted")
	ErrNoMasterKeys     = errors.New("SOPS requires at least one master key to encrypt")
)

const (
	EnvGcpKmsResourceId = "BEQUEST_GCP_KMS_RESOURCE_ID"
	EnvAwsKmsKeyArns    = "BEQUEST_AWS_KMS_KEY_ARNS"
	EnvAwsKmsProfile    = "BEQUEST_AWS_KMS_PROFILE"
	EnvAgeRecipients    = "BEQUEST_AGE_RECIPIENTS"
)

// IsEncrypted reports whether data is a SOPS encrypted document
func IsEncrypted(data []byte) bool {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return false
	}
	_, ok := doc["sops"]
	return ok
}

// Decrypt returns the plaintext of a document produced by Encrypt. SOPS
// locates the master key from the document metadata and the environment.
func Decrypt(data []byte) ([]byte, error) {
	return decrypt.Data(data, "binary")
}

// Encrypt wraps data in a SOPS binary document with one key group per
// configured master key source
func Encrypt(data []byte) ([]byte, error) {
	if IsEncrypted(data) {
		return nil, ErrAlreadyEncrypted
	}
	keyGroups, err := keyGroupsFromEnv()
	if err != nil {
		return nil, err
	}
	store := jsonstore.NewBinaryStore(&config.JSONBinaryStoreConfig{})
	branches, err := store.LoadPlainFile(data)
	if err != nil {
		return nil, fmt.Errorf("load key file: %w", err)
	}
	tree := sopsapi.Tree{
		Branches: branches,
		Metadata: sopsapi.Metadata{
			KeyGroups: keyGroups,
			Version:   version.Version,
		},
	}
	dataKey, errs := tree.GenerateDataKey()
	if len(errs) > 0 {
		return nil, fmt.Errorf("generate data key: %w", errors.Join(errs...))
	}
	err = scommon.EncryptTree(scommon.EncryptTreeOpts{
		DataKey: dataKey,
		Tree:    &tree,
		Cipher:  aes.NewCipher(),
	})
	if err != nil {
		return nil, fmt.Errorf("encrypt key file: %w", err)
	}
	return store.EmitEncryptedFile(tree)
}

func asMasterKeys[K skeys.MasterKey](keys []K) []skeys.MasterKey {
	ret := make([]skeys.MasterKey, 0, len(keys))
	for _, k := range keys {
		ret = append(ret, k)
	}
	return ret
}

func keyGroupsFromEnv() ([]sopsapi.KeyGroup, error) {
	var groups []sopsapi.KeyGroup
	add := func(keys []skeys.MasterKey) {
		if len(keys) > 0 {
			groups = append(groups, keys)
		}
	}
	if rid := os.Getenv(EnvGcpKmsResourceId); rid != "" {
		add(asMasterKeys(gcpkms.MasterKeysFromResourceIDString(rid)))
	}
	if arns := os.Getenv(EnvAwsKmsKeyArns); arns != "" {
		add(asMasterKeys(awskms.MasterKeysFromArnString(
			arns,
			nil,
			os.Getenv(EnvAwsKmsProfile),
		)))
	}
	if recipients := os.Getenv(EnvAgeRecipients); recipients != "" {
		ageKeys, err := sopsage.MasterKeysFromRecipients(recipients)
		if err != nil {
			return nil, fmt.Errorf("invalid age recipients: %w", err)
		}
		add(asMasterKeys(ageKeys))
	}
	if len(groups) == 0 {
		return nil, fmt.Errorf(
			"%w: set %s, %s or %s",
			ErrNoMasterKeys,
			EnvAgeRecipients,
			EnvGcpKmsResourceId,
			EnvAwsKmsKeyArns,
		)
	}
	return groups, nil
}
