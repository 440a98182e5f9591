// Package psbtfinalize turns a partially-signed PSBT carrying the
// collected signatures for one chosen package spendpath.Path branch into
// a broadcastable transaction. None of this engine's witness scripts
// (package vaultscript) are one of the standard templates
// btcutil/psbt's own Finalize recognizes — every branch is a custom
// IF/ELSE tree — so this package builds the witness stack by hand and
// writes it directly into the PSBT's final fields, the way
// path_wallet_psbt.go's pathWalletPSBTFinalize assembles a stack before
// calling psbt.Extract.
package psbtfinalize

import (
	"bytes"
	"encoding/hex"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/camiliosalomanda/satslegacy-vaultengine/spendpath"
	"github.com/camiliosalomanda/satslegacy-vaultengine/vaulterrors"
)

// WitnessKind is the coarse shape a witness script's satisfying branch
// resolves to.
type WitnessKind int

const (
	WitnessKindChecksig WitnessKind = iota
	WitnessKindMultisig
)

// DetectWitnessKind tokenizes script looking for OP_CHECKMULTISIG or
// OP_CHECKMULTISIGVERIFY. Every vaultscript template resolves to exactly
// one of these two shapes per branch; this is a defensive cross-check
// against a caller passing a spendpath.Path that doesn't actually match
// the script it is paired with.
func DetectWitnessKind(script []byte) (WitnessKind, error) {
	tokenizer := txscript.MakeScriptTokenizer(0, script)
	for tokenizer.Next() {
		switch tokenizer.Opcode() {
		case txscript.OP_CHECKMULTISIG, txscript.OP_CHECKMULTISIGVERIFY:
			return WitnessKindMultisig, nil
		}
	}
	if err := tokenizer.Err(); err != nil {
		return 0, vaulterrors.New(vaulterrors.KindPsbtMalformed, "tokenizing witness script: %v", err)
	}
	return WitnessKindChecksig, nil
}

func selectorBytes(on bool) []byte {
	if on {
		return []byte{0x01}
	}
	return []byte{}
}

// selectSignatures picks, for path, the ordered set of signature bytes
// to place in the witness stack from the sigs collected so far (keyed by
// hex-encoded compressed pubkey). For a thresholded multisig branch it
// takes the first Threshold keys (in ascending order, matching the
// BIP-67 order vaultscript.BuildMultisigDecay compiled the script with)
// that have a matching signature — OP_CHECKMULTISIG only requires
// supplied signatures to appear in the same relative order as their
// pubkeys, not a signature for every pubkey. For every other branch
// shape, every key in path.Keys must have signed, in the order the
// script expects them.
func selectSignatures(path spendpath.Path, sigs map[string][]byte) ([][]byte, error) {
	if path.NeedsDummy {
		sorted := sortedKeys(path.Keys)
		var out [][]byte
		for _, k := range sorted {
			sig, ok := sigs[hex.EncodeToString(k)]
			if !ok {
				continue
			}
			out = append(out, sig)
			if len(out) == path.Threshold {
				break
			}
		}
		if len(out) < path.Threshold {
			return nil, vaulterrors.New(vaulterrors.KindInsufficientKeys,
				"branch %q needs %d signatures, only %d available", path.Name, path.Threshold, len(out))
		}
		return out, nil
	}

	out := make([][]byte, 0, len(path.Keys))
	for _, k := range path.Keys {
		sig, ok := sigs[hex.EncodeToString(k)]
		if !ok {
			return nil, vaulterrors.New(vaulterrors.KindInsufficientKeys,
				"branch %q is missing a signature for key %s", path.Name, hex.EncodeToString(k))
		}
		out = append(out, sig)
	}
	return out, nil
}

func sortedKeys(keys [][]byte) [][]byte {
	out := make([][]byte, len(keys))
	copy(out, keys)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && bytes.Compare(out[j-1], out[j]) > 0; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

// buildWitnessStack assembles the full witness item list for path: an
// optional CHECKMULTISIG dummy element, the chosen signatures, the
// branch-selector flags from innermost to outermost IF level, and
// finally the witness script itself. The selector order is reversed
// relative to path.Selector (which is listed outermost-first) because
// the last witness item ends up on top of the stack, and the outermost
// OP_IF executes first, so its flag must be pushed last.
func buildWitnessStack(path spendpath.Path, script []byte, sigs [][]byte) [][]byte {
	items := make([][]byte, 0, len(sigs)+len(path.Selector)+2)
	if path.NeedsDummy {
		items = append(items, []byte{})
	}
	items = append(items, sigs...)
	for i := len(path.Selector) - 1; i >= 0; i-- {
		items = append(items, selectorBytes(path.Selector[i]))
	}
	items = append(items, script)
	return items
}

func serializeWitness(items [][]byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := wire.WriteVarInt(&buf, 0, uint64(len(items))); err != nil {
		return nil, vaulterrors.New(vaulterrors.KindPsbtMalformed, "encoding witness count: %v", err)
	}
	for _, item := range items {
		if err := wire.WriteVarBytes(&buf, 0, item); err != nil {
			return nil, vaulterrors.New(vaulterrors.KindPsbtMalformed, "encoding witness item: %v", err)
		}
	}
	return buf.Bytes(), nil
}

// FinalizeInput builds the final witness for p.Inputs[index] along path
// and writes it into the packet's final fields, clearing the
// now-superseded partial-signing fields per BIP-174.
func FinalizeInput(p *psbt.Packet, index int, script []byte, path spendpath.Path) error {
	if index < 0 || index >= len(p.Inputs) {
		return vaulterrors.New(vaulterrors.KindPsbtMalformed, "input index %d out of range", index)
	}
	input := &p.Inputs[index]

	kind, err := DetectWitnessKind(script)
	if err != nil {
		return err
	}
	if (kind == WitnessKindMultisig) != path.NeedsDummy {
		return vaulterrors.New(vaulterrors.KindPsbtMalformed,
			"branch %q expects NeedsDummy=%v but script resolves to witness kind %v", path.Name, path.NeedsDummy, kind)
	}

	sigsByKey := make(map[string][]byte, len(input.PartialSigs))
	for _, ps := range input.PartialSigs {
		sigsByKey[hex.EncodeToString(ps.PubKey)] = ps.Signature
	}

	selected, err := selectSignatures(path, sigsByKey)
	if err != nil {
		return err
	}

	witnessItems := buildWitnessStack(path, script, selected)
	serialized, err := serializeWitness(witnessItems)
	if err != nil {
		return err
	}

	input.FinalScriptWitness = serialized
	input.FinalScriptSig = nil
	input.PartialSigs = nil
	input.WitnessScript = nil
	input.Bip32Derivation = nil
	input.SighashType = 0

	log.Debugf("finalized input %d on branch %q", index, path.Name)
	return nil
}

// Extract requires every input to already carry a FinalScriptWitness
// (via FinalizeInput) and returns the broadcastable transaction plus its
// txid.
func Extract(p *psbt.Packet) (*wire.MsgTx, chainhash.Hash, error) {
	for i, in := range p.Inputs {
		if len(in.FinalScriptWitness) == 0 && len(in.FinalScriptSig) == 0 {
			return nil, chainhash.Hash{}, vaulterrors.New(vaulterrors.KindFinalizationFailure, "input %d has not been finalized", i)
		}
	}

	tx, err := psbt.Extract(p)
	if err != nil {
		return nil, chainhash.Hash{}, vaulterrors.New(vaulterrors.KindFinalizationFailure, "extracting final transaction: %v", err)
	}
	return tx, tx.TxHash(), nil
}
