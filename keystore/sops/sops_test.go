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

package sops_test

import (
	"testing"

	"filippo.io/age"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/bequest/keystore/sops"
)

func setupAgeEnv(t *testing.T) {
	t.Helper()
	identity, err := age.GenerateX25519Identity()
	require.NoError(t, err)
	t.Setenv(sops.EnvGcpKmsResourceId, "")
	t.Setenv(sops.EnvAwsKmsKeyArns, "")
	t.Setenv(sops.EnvAgeRecipients, identity.Recipient().String())
	t.Setenv("SOPS_AGE_KEY", identity.String())
}

func TestEncryptDecrypt(t *testing.T) {
	setupAgeEnv(t)
	plain := []byte(`{"type":"Secp256k1SigningKey"}`)
	encrypted, err := sops.Encrypt(plain)
	require.NoError(t, err)
	assert.True(t, sops.IsEncrypted(encrypted))
	assert.NotContains(t, string(encrypted), "Secp256k1SigningKey")
	decrypted, err := sops.Decrypt(encrypted)
	require.NoError(t, err)
	assert.Equal(t, plain, decrypted)
	_, err = sops.Encrypt(encrypted)
	require.ErrorIs(t, err, sops.ErrAlreadyEncrypted)
}

func TestEncryptRequiresMasterKey(t *testing.T) {
	t.Setenv(sops.EnvGcpKmsResourceId, "")
	t.Setenv(sops.EnvAwsKmsKeyArns, "")
	t.Setenv(sops.EnvAgeRecipients, "")
	_, err := sops.Encrypt([]byte("secret"))
	require.ErrorIs(t, err, sops.ErrNoMasterKeys)
}

func TestIsEncrypted(t *testing.T) {
	assert.False(t, sops.IsEncrypted([]byte("not json")))
	assert.False(t, sops.IsEncrypted([]byte(`{"data":"x"}`)))
	assert.True(t, sops.IsEncrypted([]byte(`{"data":"x","sops":{}}`)))
}
