// Package spendpath catalogues every way a witness script emitted by
// package vaultscript can be spent: which branch selector unlocks it,
// which keys must sign and in what witness-stack order (crucially,
// OP_CHECKMULTISIG's mandatory leading dummy element), and the
// nLockTime/nSequence the spending transaction must carry. It is the
// single source of truth package psbtbuild and package psbtfinalize
// consume — neither package re-derives branch shape on its own.
//
// Grounded on the qprimed-lnd input/input.go Input interface: an
// outpoint's witness type plus its required signing material generalize
// here from "one input, one witness type" to "one script, many
// enumerated spend paths."
package spendpath

import (
	"bytes"
	"sort"
)

// MaxCombinations caps the number of distinct key subsets enumerated for
// a thresholded branch, per spec.md §4.F.
const MaxCombinations = 1000

// SequenceUnrestricted is the nSequence value for the owner path, which
// carries no CSV restriction at all.
const SequenceUnrestricted = uint32(0xFFFFFFFF)

// Path is one spendable branch of a witness script.
type Path struct {
	// Name identifies the branch ("owner", "heir", "spouse", "recovery",
	// "heirs", "multisig_before_decay", "multisig_after_decay", "joint",
	// "owner_solo", "trustee").
	Name string
	// Selector is the sequence of branch choices from the outermost
	// OP_IF inward: true pushes a truthy byte (0x01), false pushes an
	// empty vector, onto the witness stack for that IF level.
	Selector []bool
	// Keys is the full key set available to this branch (before any
	// threshold subset selection).
	Keys [][]byte
	// Threshold is the number of signatures required from Keys; 0 means
	// every key in Keys is required (no subset choice).
	Threshold int
	// NeedsDummy is true when this branch resolves to OP_CHECKMULTISIG,
	// which requires an extra empty witness element ahead of the
	// signatures due to the historical off-by-one bug retained by
	// consensus.
	NeedsDummy bool
	// NLockTime is non-nil for a CLTV branch; the transaction's
	// nLockTime must equal this value.
	NLockTime *uint32
	// NSequence is this input's required per-input sequence: the
	// encoded CSV value for a relative-timelock branch, or
	// SequenceUnrestricted for the owner path.
	NSequence uint32
	// AvailableAtHeight is set for a CLTV branch: the earliest height
	// this branch can be included in a block.
	AvailableAtHeight *uint32
	Description       string
}

// KeyCombinations enumerates up to MaxCombinations distinct subsets of
// size Threshold from Keys, in a stable, sorted order. For an
// unthresholded branch (Threshold == 0) it returns a single combination
// containing every key.
func (p Path) KeyCombinations() [][][]byte {
	if p.Threshold <= 0 || p.Threshold >= len(p.Keys) {
		return [][][]byte{sortedCopy(p.Keys)}
	}
	return combinations(sortedCopy(p.Keys), p.Threshold, MaxCombinations)
}

func sortedCopy(keys [][]byte) [][]byte {
	out := make([][]byte, len(keys))
	copy(out, keys)
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i], out[j]) < 0 })
	return out
}

func combinations(keys [][]byte, k, cap int) [][][]byte {
	n := len(keys)
	if k <= 0 || k > n {
		return nil
	}
	idx := make([]int, k)
	for i := range idx {
		idx[i] = i
	}

	var out [][][]byte
	for {
		combo := make([][]byte, k)
		for i, id := range idx {
			combo[i] = keys[id]
		}
		out = append(out, combo)
		if len(out) >= cap {
			break
		}

		i := k - 1
		for i >= 0 && idx[i] == i+n-k {
			i--
		}
		if i < 0 {
			break
		}
		idx[i]++
		for j := i + 1; j < k; j++ {
			idx[j] = idx[j-1] + 1
		}
	}
	return out
}

// ForTimelock enumerates the two branches of a pure-CLTV timelock
// script built by vaultscript.BuildTimelock.
func ForTimelock(owner, heir []byte, locktime uint32) []Path {
	lt := locktime
	return []Path{
		{
			Name:        "owner",
			Selector:    []bool{true},
			Keys:        [][]byte{owner},
			NSequence:   SequenceUnrestricted,
			Description: "owner spends at any time with their own signature",
		},
		{
			Name:              "heir",
			Selector:          []bool{false},
			Keys:              [][]byte{heir},
			NLockTime:         &lt,
			NSequence:         0xFFFFFFFE,
			AvailableAtHeight: &lt,
			Description:       "heir spends once the chain reaches the absolute locktime",
		},
	}
}

// ForDeadManSwitch enumerates the two branches of a CSV dead-man-switch
// script built by vaultscript.BuildDeadManSwitch. sequence is the
// already BIP-68-encoded value vaultscript.BuildDeadManSwitch consumed.
func ForDeadManSwitch(owner, heir []byte, sequence uint32) []Path {
	seq := sequence
	return []Path{
		{
			Name:        "owner",
			Selector:    []bool{true},
			Keys:        [][]byte{owner},
			NSequence:   SequenceUnrestricted,
			Description: "owner spends (and implicitly refreshes the inactivity timer) at any time",
		},
		{
			Name:        "heir",
			Selector:    []bool{false},
			Keys:        [][]byte{heir},
			NSequence:   seq,
			Description: "heir spends once the input has aged past the relative timelock",
		},
	}
}

// ForMultisigDecay enumerates the two branches of the decaying-multisig
// script built by vaultscript.BuildMultisigDecay. Both branches resolve
// to OP_CHECKMULTISIG and therefore require the CHECKMULTISIG dummy
// element; the after-decay branch never includes the owner key.
func ForMultisigDecay(owner []byte, heirs [][]byte, nBefore, nAfter int, locktime uint32) []Path {
	beforeKeys := append([][]byte{owner}, heirs...)
	lt := locktime
	return []Path{
		{
			Name:        "multisig_before_decay",
			Selector:    []bool{true},
			Keys:        beforeKeys,
			Threshold:   nBefore,
			NeedsDummy:  true,
			NSequence:   SequenceUnrestricted,
			Description: "any N-of-M of owner+heirs spends before the decay height",
		},
		{
			Name:              "multisig_after_decay",
			Selector:          []bool{false},
			Keys:              heirs,
			Threshold:         nAfter,
			NeedsDummy:        true,
			NLockTime:         &lt,
			NSequence:         0xFFFFFFFE,
			AvailableAtHeight: &lt,
			Description:       "any lower N-of-M of heirs only spends after the decay height",
		},
	}
}

// ForSpouse enumerates the three branches of the spouse-inheritance
// nested-IF script built by vaultscript.BuildSpouse.
func ForSpouse(owner, spouse, heir []byte, spouseSequence, heirSequence uint32) []Path {
	spouseSeq, heirSeq := spouseSequence, heirSequence
	return []Path{
		{
			Name:        "owner",
			Selector:    []bool{true},
			Keys:        [][]byte{owner},
			NSequence:   SequenceUnrestricted,
			Description: "owner spends at any time with their own signature",
		},
		{
			Name:        "spouse",
			Selector:    []bool{false, true},
			Keys:        [][]byte{spouse},
			NSequence:   spouseSeq,
			Description: "spouse spends once the short-horizon CSV delay has passed",
		},
		{
			Name:        "heir",
			Selector:    []bool{false, false},
			Keys:        [][]byte{heir},
			NSequence:   heirSeq,
			Description: "heir spends once the longer CSV delay has passed",
		},
	}
}

// ForFamily enumerates the three branches of the family-trust nested-IF
// script built by vaultscript.BuildFamily. The heir branch always
// resolves to a fixed 2-of-N CHECKMULTISIG, regardless of how many heir
// keys are configured.
func ForFamily(owner, recovery []byte, heirs [][]byte, recoverySequence, heirSequence uint32) []Path {
	recoverySeq, heirSeq := recoverySequence, heirSequence
	return []Path{
		{
			Name:        "owner",
			Selector:    []bool{true},
			Keys:        [][]byte{owner},
			NSequence:   SequenceUnrestricted,
			Description: "owner spends at any time with their own signature",
		},
		{
			Name:        "recovery",
			Selector:    []bool{false, true},
			Keys:        [][]byte{recovery},
			NSequence:   recoverySeq,
			Description: "recovery key spends once the short-horizon CSV delay has passed",
		},
		{
			Name:        "heirs",
			Selector:    []bool{false, false},
			Keys:        heirs,
			Threshold:   2,
			NeedsDummy:  true,
			NSequence:   heirSeq,
			Description: "any 2-of-N heirs spend once the longer CSV delay has passed",
		},
	}
}

// ForBusiness enumerates the three branches of the business-vault
// nested-IF script built by vaultscript.BuildBusiness.
func ForBusiness(owner, partner, trustee []byte, ownerSoloSequence, trusteeSequence uint32) []Path {
	soloSeq, trusteeSeq := ownerSoloSequence, trusteeSequence
	return []Path{
		{
			Name:        "joint",
			Selector:    []bool{true},
			Keys:        [][]byte{owner, partner},
			NSequence:   SequenceUnrestricted,
			Description: "owner and partner spend together at any time",
		},
		{
			Name:        "owner_solo",
			Selector:    []bool{false, true},
			Keys:        [][]byte{owner},
			NSequence:   soloSeq,
			Description: "owner alone spends once the short-horizon CSV delay has passed",
		},
		{
			Name:        "trustee",
			Selector:    []bool{false, false},
			Keys:        [][]byte{trustee},
			NSequence:   trusteeSeq,
			Description: "trustee spends once the longer CSV delay has passed",
		},
	}
}
