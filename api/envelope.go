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

package api

import (
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/fxamacker/cbor/v2"

	"github.com/blinklabs-io/bequest/ledger"
)

// EnvelopeDomain separates envelope signatures from any other use of a key
const EnvelopeDomain = "bequest/tx/v1"

const signatureLength = 65

// Signer produces a recoverable secp256k1 signature over a 32-byte digest.
// *keystore.Key satisfies it.
type Signer interface {
	Address() common.Address
	Sign(digest []byte) ([]byte, error)
}

// TxEnvelope is the signed transaction body accepted by POST /api/v1/tx.
// Addresses are 0x-prefixed hex and Amount is a base-unit decimal string.
type TxEnvelope struct {
	Id        string `json:"id"`
	Vault     string `json:"vault"`
	Caller    string `json:"caller"`
	Op        string `json:"op"`
	Nonce     uint64 `json:"nonce"`
	Candidate string `json:"candidate,omitempty"`
	Amount    string `json:"amount,omitempty"`
	Signature string `json:"signature"`
}

type signingPayload struct {
	_         struct{} `cbor:",toarray"`
	Domain    string
	Id        string
	Vault     []byte
	Caller    []byte
	Op        string
	Nonce     uint64
	Candidate []byte
	Amount    uint64
}

var canonicalEncMode = func() cbor.EncMode {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// NewTxEnvelope builds an unsigned envelope for tx against vaultAddr
func NewTxEnvelope(vaultAddr common.Address, tx ledger.Tx) *TxEnvelope {
	env := &TxEnvelope{
		Id:     tx.Id,
		Vault:  vaultAddr.Hex(),
		Caller: tx.Caller.Hex(),
		Op:     string(tx.Op),
		Nonce:  tx.Nonce,
	}
	if tx.Op.NeedsCandidate() {
		env.Candidate = tx.Candidate.Hex()
	}
	if tx.Amount > 0 {
		env.Amount = strconv.FormatUint(tx.Amount, 10)
	}
	return env
}

// Tx decodes the envelope fields into a ledger transaction
func (e *TxEnvelope) Tx() (ledger.Tx, error) {
	caller, err := parseAddress("caller", e.Caller)
	if err != nil {
		return ledger.Tx{}, err
	}
	tx := ledger.Tx{
		Id:     e.Id,
		Caller: caller,
		Op:     ledger.TxOp(e.Op),
		Nonce:  e.Nonce,
	}
	if e.Candidate != "" {
		if tx.Candidate, err = parseAddress("candidate", e.Candidate); err != nil {
			return ledger.Tx{}, err
		}
	}
	if e.Amount != "" {
		if tx.Amount, err = strconv.ParseUint(e.Amount, 10, 64); err != nil {
			return ledger.Tx{}, fmt.Errorf(
				"%w: amount %q",
				ErrInvalidRequest,
				e.Amount,
			)
		}
	}
	return tx, nil
}

// SigningHash returns the Keccak-256 digest of the canonical CBOR encoding
// of the envelope, excluding the signature
func (e *TxEnvelope) SigningHash() ([]byte, error) {
	tx, err := e.Tx()
	if err != nil {
		return nil, err
	}
	vaultAddr, err := parseAddress("vault", e.Vault)
	if err != nil {
		return nil, err
	}
	payload := signingPayload{
		Domain:    EnvelopeDomain,
		Id:        tx.Id,
		Vault:     vaultAddr.Bytes(),
		Caller:    tx.Caller.Bytes(),
		Op:        string(tx.Op),
		Nonce:     tx.Nonce,
		Candidate: tx.Candidate.Bytes(),
		Amount:    tx.Amount,
	}
	data, err := canonicalEncMode.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return crypto.Keccak256(data), nil
}

// Sign sets Signature using signer, which must be the envelope's caller
func (e *TxEnvelope) Sign(signer Signer) error {
	caller, err := parseAddress("caller", e.Caller)
	if err != nil {
		return err
	}
	if signer.Address() != caller {
		return ErrSignerMismatch
	}
	digest, err := e.SigningHash()
	if err != nil {
		return err
	}
	sig, err := signer.Sign(digest)
	if err != nil {
		return err
	}
	e.Signature = hexutil.Encode(sig)
	return nil
}

// Verify checks that the envelope targets vaultAddr and that its signature
// recovers to the claimed caller. It returns the decoded transaction.
func (e *TxEnvelope) Verify(vaultAddr common.Address) (ledger.Tx, error) {
	tx, err := e.Tx()
	if err != nil {
		return ledger.Tx{}, err
	}
	envVault, err := parseAddress("vault", e.Vault)
	if err != nil {
		return ledger.Tx{}, err
	}
	if envVault != vaultAddr {
		return ledger.Tx{}, fmt.Errorf(
			"%w: envelope vault %s, serving %s",
			ErrWrongVault,
			envVault.Hex(),
			vaultAddr.Hex(),
		)
	}
	sig, err := hexutil.Decode(e.Signature)
	if err != nil || len(sig) != signatureLength {
		return ledger.Tx{}, ErrInvalidSignature
	}
	digest, err := e.SigningHash()
	if err != nil {
		return ledger.Tx{}, err
	}
	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return ledger.Tx{}, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	signer := crypto.PubkeyToAddress(*pub)
	if signer != tx.Caller {
		return ledger.Tx{}, fmt.Errorf(
			"%w: recovered %s, caller %s",
			ErrSignerMismatch,
			signer.Hex(),
			tx.Caller.Hex(),
		)
	}
	return tx, nil
}

func parseAddress(field string, s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf(
			"%w: %s is not a hex address: %q",
			ErrInvalidRequest,
			field,
			s,
		)
	}
	return common.HexToAddress(s), nil
}
