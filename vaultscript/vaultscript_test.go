package vaultscript

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/stretchr/testify/require"
)

func key(b byte) []byte {
	k := make([]byte, 33)
	k[0] = 0x02
	k[1] = b
	return k
}

func disasm(t *testing.T, script []byte) string {
	t.Helper()
	s, err := txscript.DisasmString(script)
	require.NoError(t, err)
	return s
}

// TestTimelockScriptShapeMatchesS1 mirrors seed scenario S1: mainnet
// timelock vault, script contains OP_CHECKLOCKTIMEVERIFY, address is a
// valid 62-character bc1q address on mainnet only.
func TestTimelockScriptShapeMatchesS1(t *testing.T) {
	script, err := BuildTimelock(key(0xaa), key(0xbb), 900000)
	require.NoError(t, err)

	d := disasm(t, script)
	require.True(t, strings.HasPrefix(d, "OP_IF"))
	require.True(t, strings.HasSuffix(d, "OP_ENDIF"))
	require.Contains(t, d, "OP_CHECKLOCKTIMEVERIFY")

	addr, err := Address(script, &chaincfg.MainNetParams)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(addr.String(), "bc1q"))
	require.Len(t, addr.String(), 62)

	require.True(t, addr.IsForNet(&chaincfg.MainNetParams))
	require.False(t, addr.IsForNet(&chaincfg.TestNet3Params))
}

// TestDeadManSwitchScriptShapeMatchesS2 mirrors S2: testnet DMS vault.
func TestDeadManSwitchScriptShapeMatchesS2(t *testing.T) {
	script, err := BuildDeadManSwitch(key(0xaa), key(0xbb), 12960)
	require.NoError(t, err)

	d := disasm(t, script)
	require.Contains(t, d, "OP_CHECKSEQUENCEVERIFY")
	require.NotContains(t, d, "OP_CHECKLOCKTIMEVERIFY")

	addr, err := Address(script, &chaincfg.TestNet3Params)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(addr.String(), "tb1q"))
}

// TestMultisigDecayScriptShapeMatchesS3 mirrors S3: two OP_CHECKMULTISIG
// occurrences, owner absent from the after-decay key set.
func TestMultisigDecayScriptShapeMatchesS3(t *testing.T) {
	owner := key(0x01)
	heir1 := key(0x02)
	heir2 := key(0x03)

	script, err := BuildMultisigDecay(owner, [][]byte{heir1, heir2}, 2, 1, 900000)
	require.NoError(t, err)

	d := disasm(t, script)
	require.Equal(t, 2, strings.Count(d, "OP_CHECKMULTISIG"))

	ownerHex := hex.EncodeToString(owner)
	// Everything after the OP_ELSE belongs to the after-decay branch.
	elseIdx := strings.Index(d, "OP_ELSE")
	require.NotEqual(t, -1, elseIdx)
	require.NotContains(t, d[elseIdx:], ownerHex)
}

func TestMultisigDecayRejectsOutOfRangeThreshold(t *testing.T) {
	_, err := BuildMultisigDecay(key(0x01), [][]byte{key(0x02)}, 5, 1, 900000)
	require.Error(t, err)
}

func TestBusinessScriptReusesOwnerAcrossBranches(t *testing.T) {
	owner := key(0x01)
	script, err := BuildBusiness(owner, key(0x02), key(0x03), 1000, 2000)
	require.NoError(t, err)

	d := disasm(t, script)
	require.Equal(t, 2, strings.Count(d, hex.EncodeToString(owner)))
	require.Contains(t, d, "OP_CHECKSIGVERIFY")
}

func TestAddressDeterministic(t *testing.T) {
	script, err := BuildTimelock(key(0xaa), key(0xbb), 900000)
	require.NoError(t, err)

	addr1, err := Address(script, &chaincfg.MainNetParams)
	require.NoError(t, err)
	addr2, err := Address(script, &chaincfg.MainNetParams)
	require.NoError(t, err)
	require.Equal(t, addr1.String(), addr2.String())
}

func TestBuildTimelockRejectsShortKey(t *testing.T) {
	_, err := BuildTimelock([]byte{0x02, 0x01}, key(0xbb), 900000)
	require.Error(t, err)
}

func TestSpouseScriptShapeHasThreeBranches(t *testing.T) {
	owner, spouse, heir := key(0x01), key(0x02), key(0x03)
	script, err := BuildSpouse(owner, spouse, heir, 1000, 2000)
	require.NoError(t, err)

	d := disasm(t, script)
	require.Equal(t, 2, strings.Count(d, "OP_IF"))
	require.Equal(t, 2, strings.Count(d, "OP_CHECKSEQUENCEVERIFY"))
	require.Contains(t, d, hex.EncodeToString(owner))
	require.Contains(t, d, hex.EncodeToString(spouse))
	require.Contains(t, d, hex.EncodeToString(heir))
}

func TestSpouseRejectsSpouseSequenceNotShorterThanHeir(t *testing.T) {
	_, err := BuildSpouse(key(0x01), key(0x02), key(0x03), 2000, 1000)
	require.Error(t, err)
}

func TestFamilyScriptShapeEndsInMultisig(t *testing.T) {
	owner, recovery := key(0x01), key(0x02)
	heirs := [][]byte{key(0x03), key(0x04), key(0x05)}
	script, err := BuildFamily(owner, recovery, heirs, 1000, 2000)
	require.NoError(t, err)

	d := disasm(t, script)
	require.Equal(t, 1, strings.Count(d, "OP_CHECKMULTISIG"))
	require.Contains(t, d, hex.EncodeToString(owner))
	require.Contains(t, d, hex.EncodeToString(recovery))

	addr, err := Address(script, &chaincfg.MainNetParams)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(addr.String(), "bc1q"))
}

func TestFamilyRejectsFewerThanTwoHeirs(t *testing.T) {
	_, err := BuildFamily(key(0x01), key(0x02), [][]byte{key(0x03)}, 1000, 2000)
	require.Error(t, err)
}
