// Package psbtbuild constructs unsigned PSBTs for a vault's sweep and
// refresh flows. It consumes package spendpath's catalogue to decide
// nLockTime/nSequence and never performs coin selection — spec.md §4.G
// is explicit that inheritance spends are always full sweeps of every
// confirmed UTXO at the vault address.
//
// The fee/weight-estimate flow (dust limit, per-witness-class vsize) is
// grounded on sweep/txgenerator.go's generateInputPartitionings and
// getWeightEstimate; the PSBT construction calls themselves are grounded
// on path_wallet_psbt.go's pathWalletPSBTCreate (psbt.NewFromUnsignedTx,
// WitnessUtxo, Bip32Derivation hints).
package psbtbuild

import (
	"crypto/sha256"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/wallet/txrules"

	"github.com/camiliosalomanda/satslegacy-vaultengine/spendpath"
	"github.com/camiliosalomanda/satslegacy-vaultengine/vaulterrors"
)

// DustLimit is the spec-fixed absolute floor for any output value
// (spec.md §4.G), independent of the dynamic relay-fee-derived threshold
// txrules.GetDustThreshold computes; both are honored, the stricter of
// the two wins.
const DustLimit = int64(546)

// Witness weight-unit estimates per spend-path class, spec.md §4.G.
const (
	WeightOwnerPath    = int64(150)
	WeightHeirPath     = int64(200)
	WeightMultisigPath = int64(325)
	// WeightJointPath is this engine's own estimate for the business
	// vault's two-signature joint branch, not named in spec.md's
	// three-class table; it sits between a single-sig and a decay
	// multisig witness since it carries two signatures but no dummy
	// element or branch-selector overhead beyond the nested IF flags.
	WeightJointPath = int64(250)
)

const (
	txOverheadBytes  = int64(10) // version + locktime + input/output count varints, typical case
	legacyInputBytes = int64(41) // outpoint (36) + empty scriptSig varint (1) + sequence (4)
	p2wpkhOutputSize = int64(31) // value (8) + scriptPubKey varint+script (1+22)
)

// WitnessWeight returns this engine's per-input witness-weight estimate
// for a spend-path name.
func WitnessWeight(pathName string) int64 {
	switch pathName {
	case "owner", "owner_solo":
		return WeightOwnerPath
	case "heir", "trustee":
		return WeightHeirPath
	case "multisig_before_decay", "multisig_after_decay":
		return WeightMultisigPath
	case "joint":
		return WeightJointPath
	default:
		return WeightHeirPath
	}
}

// EstimateVsize applies spec.md §4.G's formula directly:
// vsize = ceil((baseSize*4 + witness) / 4).
func EstimateVsize(numInputs, numOutputs int, witnessWeightPerInput int64) int64 {
	base := txOverheadBytes + int64(numInputs)*legacyInputBytes + int64(numOutputs)*p2wpkhOutputSize
	weight := base*4 + witnessWeightPerInput*int64(numInputs)
	return (weight + 3) / 4
}

// Utxo is one confirmed output at a vault address, ready to be swept.
type Utxo struct {
	OutPoint      wire.OutPoint
	Value         int64
	WitnessScript []byte
}

// KeyHint is the optional BIP-32 derivation hint attached to an input
// when the caller supplied a master fingerprint for the signing key
// (spec.md §9, Open Question 2 — absence is not an error).
type KeyHint struct {
	PubKey            []byte
	MasterFingerprint [4]byte
	Path              []uint32
}

// Result bundles a constructed PSBT with the fee math that went into it.
// NewWitnessScript is non-nil only for a refresh that moves funds to a
// fresh vault address; the caller must persist it atomically with the
// broadcast PSBT or the refreshed UTXO becomes unspendable (spec.md §9).
type Result struct {
	Packet           *psbt.Packet
	EstimatedVsize   int64
	Fee              int64
	OutputValue      int64
	NewWitnessScript []byte
}

func sumValues(utxos []Utxo) int64 {
	var total int64
	for _, u := range utxos {
		total += u.Value
	}
	return total
}

func pkScriptForWitnessScript(script []byte) []byte {
	hash := sha256.Sum256(script)
	b := txscript.NewScriptBuilder()
	b.AddOp(txscript.OP_0)
	b.AddData(hash[:])
	s, _ := b.Script() // OP_0 + fixed-length push never errors
	return s
}

func relayDustFloor(outputScriptSize int, feePerVByte int64) int64 {
	threshold := txrules.GetDustThreshold(outputScriptSize, btcutil.Amount(feePerVByte*1000))
	return int64(threshold)
}

func effectiveDustLimit(outputScriptSize int, feePerVByte int64) int64 {
	relay := relayDustFloor(outputScriptSize, feePerVByte)
	if relay > DustLimit {
		return relay
	}
	return DustLimit
}

// buildUnsignedTx assembles the shared skeleton both BuildSweep and
// BuildRefresh need: inputs with the chosen branch's nSequence, a single
// destination output, and nLockTime set from the branch when present.
func buildUnsignedTx(utxos []Utxo, path spendpath.Path, destScript []byte,
	feePerVByte int64) (*wire.MsgTx, int64, int64, error) {

	if len(utxos) == 0 {
		return nil, 0, 0, vaulterrors.New(vaulterrors.KindInsufficientFunds, "no confirmed UTXOs to sweep")
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	for _, u := range utxos {
		outpoint := u.OutPoint
		txIn := wire.NewTxIn(&outpoint, nil, nil)
		txIn.Sequence = path.NSequence
		tx.AddTxIn(txIn)
	}
	if path.NLockTime != nil {
		tx.LockTime = *path.NLockTime
	}

	vsize := EstimateVsize(len(utxos), 1, WitnessWeight(path.Name))
	fee := vsize * feePerVByte
	total := sumValues(utxos)
	outputValue := total - fee

	dustFloor := effectiveDustLimit(len(destScript), feePerVByte)
	if outputValue <= 0 {
		return nil, 0, 0, vaulterrors.New(vaulterrors.KindInsufficientFunds,
			"sum(inputs)=%d is not enough to cover estimated fee %d", total, fee)
	}
	if outputValue < dustFloor {
		return nil, 0, 0, vaulterrors.New(vaulterrors.KindDustOutput,
			"output value %d is below the dust floor %d", outputValue, dustFloor)
	}

	tx.AddTxOut(wire.NewTxOut(outputValue, destScript))
	return tx, vsize, fee, nil
}

func attachInputMetadata(p *psbt.Packet, utxos []Utxo, hints map[int]KeyHint) {
	for i, u := range utxos {
		p.Inputs[i].WitnessUtxo = &wire.TxOut{
			Value:    u.Value,
			PkScript: pkScriptForWitnessScript(u.WitnessScript),
		}
		p.Inputs[i].WitnessScript = u.WitnessScript

		if hint, ok := hints[i]; ok {
			p.Inputs[i].Bip32Derivation = []*psbt.Bip32Derivation{{
				PubKey:               hint.PubKey,
				MasterKeyFingerprint: fingerprintToUint32(hint.MasterFingerprint),
				Bip32Path:            hint.Path,
			}}
		}
	}
}

func fingerprintToUint32(fp [4]byte) uint32 {
	return uint32(fp[0])<<24 | uint32(fp[1])<<16 | uint32(fp[2])<<8 | uint32(fp[3])
}

// BuildSweep builds an unsigned PSBT that sweeps every utxo to
// destination along path. destination must validate against net.
func BuildSweep(utxos []Utxo, path spendpath.Path, destination btcutil.Address,
	net *chaincfg.Params, feePerVByte int64, hints map[int]KeyHint) (*Result, error) {

	if !destination.IsForNet(net) {
		return nil, vaulterrors.New(vaulterrors.KindInvalidNetwork, "destination address does not belong to %s", net.Name)
	}
	destScript, err := txscript.PayToAddrScript(destination)
	if err != nil {
		return nil, vaulterrors.New(vaulterrors.KindPsbtMalformed, "building destination script: %v", err)
	}

	tx, vsize, fee, err := buildUnsignedTx(utxos, path, destScript, feePerVByte)
	if err != nil {
		return nil, err
	}

	p, err := psbt.NewFromUnsignedTx(tx)
	if err != nil {
		return nil, vaulterrors.New(vaulterrors.KindPsbtMalformed, "building PSBT: %v", err)
	}
	attachInputMetadata(p, utxos, hints)

	log.Debugf("built sweep PSBT: %d input(s), vsize=%d, fee=%d sat", len(utxos), vsize, fee)

	return &Result{
		Packet:         p,
		EstimatedVsize: vsize,
		Fee:            fee,
		OutputValue:    tx.TxOut[0].Value,
	}, nil
}

// BuildRefresh builds an owner-path PSBT that moves every utxo back to
// the vault, either at the same address (newWitnessScript nil) or a
// freshly-derived one (newWitnessScript non-nil). When a new script is
// used, Result.NewWitnessScript is populated so the caller can persist
// it before broadcasting — failing to do so loses the ability to spend
// the refreshed output (spec.md §9).
func BuildRefresh(utxos []Utxo, ownerPath spendpath.Path, refreshAddress btcutil.Address,
	net *chaincfg.Params, feePerVByte int64, hints map[int]KeyHint, newWitnessScript []byte) (*Result, error) {

	res, err := BuildSweep(utxos, ownerPath, refreshAddress, net, feePerVByte, hints)
	if err != nil {
		return nil, err
	}
	res.NewWitnessScript = newWitnessScript
	return res, nil
}

// EstimateRefreshCost reports the fee and resulting output value a
// refresh would incur without constructing a PSBT, for UI display before
// the user commits to a refresh.
func EstimateRefreshCost(utxos []Utxo, ownerPath spendpath.Path, feePerVByte int64) (vsize, fee, outputValue int64, err error) {
	// A refresh's destination is always a P2WSH output, same size class
	// regardless of whether it's the same address or a fresh one.
	placeholderP2WSHSize := 34
	total := sumValues(utxos)
	if len(utxos) == 0 {
		return 0, 0, 0, vaulterrors.New(vaulterrors.KindInsufficientFunds, "no confirmed UTXOs to refresh")
	}
	vsize = EstimateVsize(len(utxos), 1, WitnessWeight(ownerPath.Name))
	fee = vsize * feePerVByte
	outputValue = total - fee
	dustFloor := effectiveDustLimit(placeholderP2WSHSize, feePerVByte)
	if outputValue <= 0 {
		return vsize, fee, outputValue, vaulterrors.New(vaulterrors.KindInsufficientFunds, "refresh fee %d exceeds input total %d", fee, total)
	}
	if outputValue < dustFloor {
		return vsize, fee, outputValue, vaulterrors.New(vaulterrors.KindDustOutput, "refresh output %d is below dust floor %d", outputValue, dustFloor)
	}
	return vsize, fee, outputValue, nil
}
