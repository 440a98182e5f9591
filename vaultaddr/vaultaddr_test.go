package vaultaddr

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/camiliosalomanda/satslegacy-vaultengine/timelock"
	"github.com/camiliosalomanda/satslegacy-vaultengine/vaultcfg"
)

// hexKey returns a valid compressed key. 0xaa gives the 02aa..aa
// literal spec.md's seed scenarios use for the owner, which lies on
// secp256k1. Their heir literal 03bb..bb does not (bb..bb is not an x
// coordinate on the curve, so keycodec.Normalize rejects it), so 0xbb
// gives the generator's x coordinate with an 03 prefix instead. Any
// other byte falls back to the 0xaa form. None of these tests depend on
// key distinctness, only on script/address derivation and spend-path
// shape.
func hexKey(b byte) string {
	if b == 0xbb {
		return "0379be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798"
	}
	return "02aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
}

func days(n int) vaultcfg.TimelockSpec {
	return vaultcfg.TimelockSpec{RelativeDays: &n}
}

func absolute(date time.Time) vaultcfg.TimelockSpec {
	return vaultcfg.TimelockSpec{AbsoluteDate: &date}
}

// TestGenerateMainnetTimelockMatchesS1 mirrors S1: mainnet timelock
// vault, address starts with bc1q, length 62, script carries CLTV.
func TestGenerateMainnetTimelockMatchesS1(t *testing.T) {
	anchor := timelock.CurrentAnchor()
	lockDate := anchor.Time.AddDate(1, 0, 0)

	cfg := vaultcfg.VaultConfiguration{
		Profile: vaultcfg.ProfileTimelockLegacy,
		Network: vaultcfg.Mainnet,
		Keys: map[vaultcfg.KeyRole]vaultcfg.KeyDescriptor{
			vaultcfg.RoleOwner: {Key: hexKey(0xaa)},
			vaultcfg.RoleHeir:  {Key: hexKey(0xbb)},
		},
		Timelocks: map[vaultcfg.KeyRole]vaultcfg.TimelockSpec{
			vaultcfg.RoleHeir: absolute(lockDate),
		},
	}

	results, err := Generate(cfg, anchor.Time)
	require.NoError(t, err)
	require.Len(t, results, 1)

	r := results[0]
	require.True(t, r.IsValid)
	require.NoError(t, r.Err)
	require.True(t, strings.HasPrefix(r.Address, "bc1q"))
	require.Len(t, r.Address, 62)
	require.Contains(t, r.Policy, "after(")
	require.NotEmpty(t, r.RedeemInfo.SpendPaths)
}

// TestGenerateTestnetDeadManSwitchMatchesS2 mirrors S2.
func TestGenerateTestnetDeadManSwitchMatchesS2(t *testing.T) {
	cfg := vaultcfg.VaultConfiguration{
		Profile: vaultcfg.ProfileDeadManSwitch,
		Network: vaultcfg.Testnet,
		Keys: map[vaultcfg.KeyRole]vaultcfg.KeyDescriptor{
			vaultcfg.RoleOwner: {Key: hexKey(0xaa)},
			vaultcfg.RoleHeir:  {Key: hexKey(0xbb)},
		},
		Timelocks: map[vaultcfg.KeyRole]vaultcfg.TimelockSpec{
			vaultcfg.RoleHeir: days(90),
		},
	}

	results, err := Generate(cfg, time.Now())
	require.NoError(t, err)
	require.Len(t, results, 1)

	r := results[0]
	require.True(t, r.IsValid)
	require.True(t, strings.HasPrefix(r.Address, "tb1q"))
	require.Contains(t, r.Policy, "older(")
	require.NotContains(t, r.Policy, "after(")
}

// TestGenerateMultisigDecayMatchesS3 mirrors S3: is_valid true even when
// miniscript sanity is false, estimated vsize consideration left to
// package psbtbuild — here we only assert the script/address/validity
// contract.
func TestGenerateMultisigDecayMatchesS3(t *testing.T) {
	anchor := timelock.CurrentAnchor()
	decayDate := anchor.Time.AddDate(2, 0, 0)

	cfg := vaultcfg.VaultConfiguration{
		Profile: vaultcfg.ProfileMultisigDecay,
		Network: vaultcfg.Mainnet,
		Keys: map[vaultcfg.KeyRole]vaultcfg.KeyDescriptor{
			vaultcfg.RoleOwner: {Key: hexKey(0x01)},
		},
		Timelocks: map[vaultcfg.KeyRole]vaultcfg.TimelockSpec{
			vaultcfg.RoleHeir: absolute(decayDate),
		},
		Beneficiaries: []vaultcfg.Beneficiary{
			{Name: "h1", Percentage: 50, PublicKey: hexKey(0x02)},
			{Name: "h2", Percentage: 50, PublicKey: hexKey(0x03)},
		},
		MultisigDecay: &vaultcfg.MultisigDecaySpec{Before: 2, After: 1},
	}

	results, err := Generate(cfg, anchor.Time)
	require.NoError(t, err)
	require.Len(t, results, 1)

	r := results[0]
	require.True(t, r.IsValid)
	require.Len(t, r.RedeemInfo.SpendPaths, 2)
	require.True(t, r.RedeemInfo.SpendPaths[0].NeedsDummy)
}

func TestGenerateSoloReusesDeadManSwitchShape(t *testing.T) {
	cfg := vaultcfg.VaultConfiguration{
		Profile: vaultcfg.ProfileSolo,
		Network: vaultcfg.Mainnet,
		Keys: map[vaultcfg.KeyRole]vaultcfg.KeyDescriptor{
			vaultcfg.RoleOwner:    {Key: hexKey(0x01)},
			vaultcfg.RoleRecovery: {Key: hexKey(0x02)},
		},
		Timelocks: map[vaultcfg.KeyRole]vaultcfg.TimelockSpec{
			vaultcfg.RoleRecovery: days(30),
		},
	}

	results, err := Generate(cfg, time.Now())
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.True(t, results[0].IsValid)
	require.Len(t, results[0].RedeemInfo.SpendPaths, 2)
}

func TestGenerateSpouseProducesThreeSpendPaths(t *testing.T) {
	cfg := vaultcfg.VaultConfiguration{
		Profile: vaultcfg.ProfileSpouse,
		Network: vaultcfg.Mainnet,
		Keys: map[vaultcfg.KeyRole]vaultcfg.KeyDescriptor{
			vaultcfg.RoleOwner:  {Key: hexKey(0x01)},
			vaultcfg.RoleSpouse: {Key: hexKey(0x02)},
			vaultcfg.RoleHeir:   {Key: hexKey(0x03)},
		},
		Timelocks: map[vaultcfg.KeyRole]vaultcfg.TimelockSpec{
			vaultcfg.RoleSpouse: days(30),
			vaultcfg.RoleHeir:   days(180),
		},
	}

	results, err := Generate(cfg, time.Now())
	require.NoError(t, err)
	require.Len(t, results, 1)
	r := results[0]
	require.True(t, r.IsValid)
	require.Len(t, r.RedeemInfo.SpendPaths, 3)
	require.Contains(t, r.Policy, "or(pk(")
}

func TestGenerateFamilySourcesHeirsFromBeneficiaries(t *testing.T) {
	cfg := vaultcfg.VaultConfiguration{
		Profile: vaultcfg.ProfileFamily,
		Network: vaultcfg.Mainnet,
		Keys: map[vaultcfg.KeyRole]vaultcfg.KeyDescriptor{
			vaultcfg.RoleOwner:    {Key: hexKey(0x01)},
			vaultcfg.RoleRecovery: {Key: hexKey(0x02)},
		},
		Timelocks: map[vaultcfg.KeyRole]vaultcfg.TimelockSpec{
			vaultcfg.RoleRecovery: days(30),
			vaultcfg.RoleHeir:     days(365),
		},
		Beneficiaries: []vaultcfg.Beneficiary{
			{Name: "h1", Percentage: 34, PublicKey: hexKey(0x03)},
			{Name: "h2", Percentage: 33, PublicKey: hexKey(0x04)},
			{Name: "h3", Percentage: 33, PublicKey: hexKey(0x05)},
		},
	}

	results, err := Generate(cfg, time.Now())
	require.NoError(t, err)
	require.Len(t, results, 1)
	r := results[0]
	require.True(t, r.IsValid)
	require.Len(t, r.RedeemInfo.SpendPaths, 3)
	require.Equal(t, 2, r.RedeemInfo.SpendPaths[2].Threshold)
	require.Len(t, r.RedeemInfo.SpendPaths[2].Keys, 3)
}

func TestGenerateStaggeredProducesOneResultPerStage(t *testing.T) {
	cfg := vaultcfg.VaultConfiguration{
		Profile: vaultcfg.ProfileDeadManSwitch,
		Network: vaultcfg.Mainnet,
		Keys: map[vaultcfg.KeyRole]vaultcfg.KeyDescriptor{
			vaultcfg.RoleOwner: {Key: hexKey(0x01)},
			vaultcfg.RoleHeir:  {Key: hexKey(0x02)},
		},
		Timelocks: map[vaultcfg.KeyRole]vaultcfg.TimelockSpec{
			vaultcfg.RoleHeir: days(90),
		},
		Modifiers: vaultcfg.Modifiers{
			Staggered: []vaultcfg.StaggeredStage{
				{Percent: 50, OffsetDays: 0},
				{Percent: 50, OffsetDays: 30},
			},
		},
	}

	results, err := Generate(cfg, time.Now())
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.NotEqual(t, results[0].WitnessScript, results[1].WitnessScript)
	require.NotEqual(t, results[0].Address, results[1].Address)
}

func TestGenerateRejectsMissingOwnerKey(t *testing.T) {
	cfg := vaultcfg.VaultConfiguration{
		Profile: vaultcfg.ProfileDeadManSwitch,
		Network: vaultcfg.Mainnet,
		Keys: map[vaultcfg.KeyRole]vaultcfg.KeyDescriptor{
			vaultcfg.RoleHeir: {Key: hexKey(0x02)},
		},
		Timelocks: map[vaultcfg.KeyRole]vaultcfg.TimelockSpec{
			vaultcfg.RoleHeir: days(90),
		},
	}

	results, err := Generate(cfg, time.Now())
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.False(t, results[0].IsValid)
	require.Error(t, results[0].Err)
}
