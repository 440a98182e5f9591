package psbtfinalize

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/camiliosalomanda/satslegacy-vaultengine/spendpath"
	"github.com/camiliosalomanda/satslegacy-vaultengine/vaultscript"
)

func key(b byte) []byte {
	k := make([]byte, 33)
	k[0] = 0x02
	k[1] = b
	return k
}

func fakeSig(tag byte) []byte {
	s := make([]byte, 71)
	for i := range s {
		s[i] = tag
	}
	s[len(s)-1] = 0x01 // SIGHASH_ALL trailer
	return s
}

func newUnsignedPacket(t *testing.T, value int64, script []byte) *psbt.Packet {
	t.Helper()
	tx := wire.NewMsgTx(wire.TxVersion)
	var h chainhash.Hash
	h[0] = 0x01
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&h, 0), nil, nil))

	dest, err := vaultscript.Address(script, &chaincfg.MainNetParams)
	require.NoError(t, err)
	destScript, err := txscript.PayToAddrScript(dest)
	require.NoError(t, err)
	tx.AddTxOut(wire.NewTxOut(value, destScript))

	p, err := psbt.NewFromUnsignedTx(tx)
	require.NoError(t, err)
	p.Inputs[0].WitnessScript = script
	return p
}

func TestFinalizeChecksigBranchBuildsThreeItemWitness(t *testing.T) {
	owner, heir := key(1), key(2)
	script, err := vaultscript.BuildTimelock(owner, heir, 900000)
	require.NoError(t, err)

	p := newUnsignedPacket(t, 500000, script)
	path := spendpath.ForTimelock(owner, heir, 900000)[0] // owner branch

	sig := fakeSig(0xaa)
	p.Inputs[0].PartialSigs = []*psbt.PartialSig{{PubKey: owner, Signature: sig}}

	err = FinalizeInput(p, 0, script, path)
	require.NoError(t, err)
	require.NotEmpty(t, p.Inputs[0].FinalScriptWitness)
	require.Nil(t, p.Inputs[0].WitnessScript)
	require.Nil(t, p.Inputs[0].PartialSigs)

	tx, txid, err := Extract(p)
	require.NoError(t, err)
	require.NotEqual(t, "", txid.String())
	require.Len(t, tx.TxIn[0].Witness, 3) // sig, selector, script
	require.Equal(t, sig, []byte(tx.TxIn[0].Witness[0]))
	require.Equal(t, []byte{0x01}, []byte(tx.TxIn[0].Witness[1]))
	require.Equal(t, script, []byte(tx.TxIn[0].Witness[2]))
}

func TestFinalizeHeirBranchPushesEmptySelector(t *testing.T) {
	owner, heir := key(1), key(2)
	script, err := vaultscript.BuildTimelock(owner, heir, 900000)
	require.NoError(t, err)

	p := newUnsignedPacket(t, 500000, script)
	path := spendpath.ForTimelock(owner, heir, 900000)[1] // heir branch

	sig := fakeSig(0xbb)
	p.Inputs[0].PartialSigs = []*psbt.PartialSig{{PubKey: heir, Signature: sig}}

	err = FinalizeInput(p, 0, script, path)
	require.NoError(t, err)

	tx, _, err := Extract(p)
	require.NoError(t, err)
	require.Equal(t, []byte{}, []byte(tx.TxIn[0].Witness[1]))
}

func TestFinalizeMultisigBranchIncludesDummyAndSortsSignatures(t *testing.T) {
	owner := key(0x01)
	heir1 := key(0x02)
	heir2 := key(0x03)
	script, err := vaultscript.BuildMultisigDecay(owner, [][]byte{heir1, heir2}, 2, 1, 900000)
	require.NoError(t, err)

	p := newUnsignedPacket(t, 500000, script)
	path := spendpath.ForMultisigDecay(owner, [][]byte{heir1, heir2}, 2, 1, 900000)[0]

	p.Inputs[0].PartialSigs = []*psbt.PartialSig{
		{PubKey: owner, Signature: fakeSig(0x11)},
		{PubKey: heir1, Signature: fakeSig(0x22)},
	}

	err = FinalizeInput(p, 0, script, path)
	require.NoError(t, err)

	tx, _, err := Extract(p)
	require.NoError(t, err)
	require.Equal(t, []byte{}, []byte(tx.TxIn[0].Witness[0])) // CHECKMULTISIG dummy
	// Signatures follow the BIP-67 key order in the script: owner (02 01..)
	// before heir1 (02 02..).
	require.Equal(t, fakeSig(0x11), []byte(tx.TxIn[0].Witness[1]))
	require.Equal(t, fakeSig(0x22), []byte(tx.TxIn[0].Witness[2]))
}

func TestFinalizeRejectsWhenSignatureCountBelowThreshold(t *testing.T) {
	owner := key(0x01)
	heir1 := key(0x02)
	heir2 := key(0x03)
	script, err := vaultscript.BuildMultisigDecay(owner, [][]byte{heir1, heir2}, 2, 1, 900000)
	require.NoError(t, err)

	p := newUnsignedPacket(t, 500000, script)
	path := spendpath.ForMultisigDecay(owner, [][]byte{heir1, heir2}, 2, 1, 900000)[0]

	p.Inputs[0].PartialSigs = []*psbt.PartialSig{
		{PubKey: owner, Signature: fakeSig(0x11)},
	}

	err = FinalizeInput(p, 0, script, path)
	require.Error(t, err)
}

func TestFinalizeRejectsNeedsDummyMismatch(t *testing.T) {
	owner, heir := key(1), key(2)
	script, err := vaultscript.BuildTimelock(owner, heir, 900000)
	require.NoError(t, err)

	p := newUnsignedPacket(t, 500000, script)
	badPath := spendpath.Path{
		Name:       "owner",
		Selector:   []bool{true},
		Keys:       [][]byte{owner},
		NeedsDummy: true, // wrong: BuildTimelock never resolves to CHECKMULTISIG
	}
	p.Inputs[0].PartialSigs = []*psbt.PartialSig{{PubKey: owner, Signature: fakeSig(0xaa)}}

	err = FinalizeInput(p, 0, script, badPath)
	require.Error(t, err)
}

func TestExtractRejectsUnfinalizedInput(t *testing.T) {
	owner, heir := key(1), key(2)
	script, err := vaultscript.BuildTimelock(owner, heir, 900000)
	require.NoError(t, err)

	p := newUnsignedPacket(t, 500000, script)
	_, _, err = Extract(p)
	require.Error(t, err)
}

func TestDetectWitnessKindDistinguishesMultisigFromChecksig(t *testing.T) {
	owner, heir := key(1), key(2)
	checksigScript, err := vaultscript.BuildTimelock(owner, heir, 900000)
	require.NoError(t, err)
	kind, err := DetectWitnessKind(checksigScript)
	require.NoError(t, err)
	require.Equal(t, WitnessKindChecksig, kind)

	multisigScript, err := vaultscript.BuildMultisigDecay(owner, [][]byte{heir, key(3)}, 2, 1, 900000)
	require.NoError(t, err)
	kind, err = DetectWitnessKind(multisigScript)
	require.NoError(t, err)
	require.Equal(t, WitnessKindMultisig, kind)
}
