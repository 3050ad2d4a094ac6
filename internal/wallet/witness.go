package wallet

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/blake2b"

	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/domain"
)

// vkeyWitnessKey is the witness-set map key holding vkey witnesses.
const vkeyWitnessKey = 0

var errMalformedTx = errors.New("malformed transaction cbor")

// splitTx decodes a transaction into its top-level elements without
// re-encoding them, so the body keeps its exact bytes.
func splitTx(raw []byte) ([]cbor.RawMessage, error) {
	var parts []cbor.RawMessage
	if err := cbor.Unmarshal(raw, &parts); err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedTx, err)
	}
	if len(parts) < 2 {
		return nil, fmt.Errorf("%w: %d elements", errMalformedTx, len(parts))
	}
	return parts, nil
}

// TxHash returns the blake2b-256 hash of a transaction's body, which is both
// the transaction id and the message signed by each vkey witness.
func TxHash(txCborHex string) (string, error) {
	raw, err := hex.DecodeString(txCborHex)
	if err != nil {
		return "", fmt.Errorf("wallet: decode tx hex: %w", domain.ErrInvalidInput)
	}
	parts, err := splitTx(raw)
	if err != nil {
		return "", fmt.Errorf("wallet: %w", err)
	}
	sum := blake2b.Sum256(parts[0])
	return hex.EncodeToString(sum[:]), nil
}

// WitnessSet signs the body hash of txCborHex and returns a CBOR witness set
// holding the single vkey witness.
func WitnessSet(txCborHex string, key ed25519.PrivateKey) ([]byte, error) {
	raw, err := hex.DecodeString(txCborHex)
	if err != nil {
		return nil, fmt.Errorf("wallet: decode tx hex: %w", domain.ErrInvalidInput)
	}
	parts, err := splitTx(raw)
	if err != nil {
		return nil, fmt.Errorf("wallet: %w", err)
	}
	hash := blake2b.Sum256(parts[0])
	sig := ed25519.Sign(key, hash[:])
	vkey := []byte(key.Public().(ed25519.PublicKey))

	// {0: [[vkey, signature]]}
	witness := [][]byte{vkey, sig}
	out, err := cbor.Marshal(map[uint64][][][]byte{vkeyWitnessKey: {witness}})
	if err != nil {
		return nil, fmt.Errorf("wallet: encode witness set: %w", err)
	}
	return out, nil
}

// AssembleSigned merges the vkey witnesses of witnessSet into the
// transaction's own witness set and returns the signed transaction hex.
func AssembleSigned(txCborHex string, witnessSet []byte) (string, error) {
	raw, err := hex.DecodeString(txCborHex)
	if err != nil {
		return "", fmt.Errorf("wallet: decode tx hex: %w", domain.ErrInvalidInput)
	}
	parts, err := splitTx(raw)
	if err != nil {
		return "", fmt.Errorf("wallet: %w", err)
	}

	var add map[uint64]cbor.RawMessage
	if err := cbor.Unmarshal(witnessSet, &add); err != nil {
		return "", fmt.Errorf("wallet: decode witness set: %w", err)
	}
	newVkeys, _, err := vkeyList(add[vkeyWitnessKey])
	if err != nil {
		return "", fmt.Errorf("wallet: decode witness set: %w", err)
	}

	existing := map[uint64]cbor.RawMessage{}
	if err := cbor.Unmarshal(parts[1], &existing); err != nil {
		return "", fmt.Errorf("wallet: %w: witness set: %v", errMalformedTx, err)
	}
	if existing == nil {
		existing = map[uint64]cbor.RawMessage{}
	}
	vkeys, tag, err := vkeyList(existing[vkeyWitnessKey])
	if err != nil {
		return "", fmt.Errorf("wallet: %w: vkey witnesses: %v", errMalformedTx, err)
	}
	vkeys = append(vkeys, newVkeys...)

	var merged any = vkeys
	if tag != 0 {
		merged = cbor.Tag{Number: tag, Content: vkeys}
	}
	enc, err := cbor.Marshal(merged)
	if err != nil {
		return "", fmt.Errorf("wallet: encode vkey witnesses: %w", err)
	}
	existing[vkeyWitnessKey] = enc

	ws, err := cbor.Marshal(existing)
	if err != nil {
		return "", fmt.Errorf("wallet: encode witness set: %w", err)
	}
	parts[1] = ws

	out, err := cbor.Marshal(parts)
	if err != nil {
		return "", fmt.Errorf("wallet: encode tx: %w", err)
	}
	return hex.EncodeToString(out), nil
}

// vkeyList decodes a vkey witness list, which newer eras wrap in a set tag.
// The tag number is returned so the list can be re-encoded the same way.
func vkeyList(raw cbor.RawMessage) ([]cbor.RawMessage, uint64, error) {
	if len(raw) == 0 {
		return nil, 0, nil
	}
	var list []cbor.RawMessage
	var tag cbor.RawTag
	if err := cbor.Unmarshal(raw, &tag); err == nil {
		if err := cbor.Unmarshal(tag.Content, &list); err != nil {
			return nil, 0, err
		}
		return list, tag.Number, nil
	}
	if err := cbor.Unmarshal(raw, &list); err != nil {
		return nil, 0, err
	}
	return list, 0, nil
}
