package policy

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/camiliosalomanda/satslegacy-vaultengine/vaultcfg"
)

func u32(v uint32) *uint32 { return &v }

func key(b byte) []byte {
	k := make([]byte, 33)
	k[0] = 0x02
	k[1] = b
	return k
}

func TestBuildSolo(t *testing.T) {
	cfg := vaultcfg.VaultConfiguration{Profile: vaultcfg.ProfileSolo}
	keys := ResolvedKeys{Owner: key(1), Recovery: key(2)}
	tl := ResolvedTimelocks{Recovery: u32(4320)}

	stages, warnings, err := Build(cfg, keys, tl, DecayThresholds{})
	require.NoError(t, err)
	require.Empty(t, warnings)
	require.Len(t, stages, 1)
	require.Equal(t, 100, stages[0].Percent)
	require.Contains(t, stages[0].Expression, "older(4320)")
	require.Contains(t, stages[0].Expression, "or(pk(")
}

func TestBuildSpouseOrdersTimelocks(t *testing.T) {
	cfg := vaultcfg.VaultConfiguration{Profile: vaultcfg.ProfileSpouse}
	keys := ResolvedKeys{Owner: key(1), Spouse: key(2), Heir: key(3)}
	tl := ResolvedTimelocks{Spouse: u32(180 * 144), Heir: u32(365 * 144)}

	stages, _, err := Build(cfg, keys, tl, DecayThresholds{})
	require.NoError(t, err)
	require.Len(t, stages, 1)
	require.Contains(t, stages[0].Expression, "older(25920)")
	require.Contains(t, stages[0].Expression, "older(52560)")
}

func TestBuildFamilyRequiresTwoHeirs(t *testing.T) {
	cfg := vaultcfg.VaultConfiguration{Profile: vaultcfg.ProfileFamily}
	keys := ResolvedKeys{Owner: key(1), Recovery: key(2), Heirs: [][]byte{key(3)}}
	tl := ResolvedTimelocks{Recovery: u32(1000), Heir: u32(2000)}

	_, _, err := Build(cfg, keys, tl, DecayThresholds{})
	require.Error(t, err)
}

func TestBuildFamilyThresholdTwo(t *testing.T) {
	cfg := vaultcfg.VaultConfiguration{Profile: vaultcfg.ProfileFamily}
	keys := ResolvedKeys{
		Owner: key(1), Recovery: key(2),
		Heirs: [][]byte{key(3), key(4), key(5)},
	}
	tl := ResolvedTimelocks{Recovery: u32(1000), Heir: u32(2000)}

	stages, _, err := Build(cfg, keys, tl, DecayThresholds{})
	require.NoError(t, err)
	require.Contains(t, stages[0].Expression, "thresh(2,")
}

func TestBuildDeadManSwitchOlderNoAfter(t *testing.T) {
	cfg := vaultcfg.VaultConfiguration{Profile: vaultcfg.ProfileDeadManSwitch}
	keys := ResolvedKeys{Owner: key(1), Heir: key(2)}
	tl := ResolvedTimelocks{Heir: u32(12960)}

	stages, _, err := Build(cfg, keys, tl, DecayThresholds{})
	require.NoError(t, err)
	require.Contains(t, stages[0].Expression, "older(12960)")
	require.NotContains(t, stages[0].Expression, "after(")
}

func TestBuildLegacyTimelockUsesAfter(t *testing.T) {
	cfg := vaultcfg.VaultConfiguration{Profile: vaultcfg.ProfileTimelockLegacy}
	keys := ResolvedKeys{Owner: key(1), Heir: key(2)}
	tl := ResolvedTimelocks{After: u32(900000)}

	stages, _, err := Build(cfg, keys, tl, DecayThresholds{})
	require.NoError(t, err)
	require.Contains(t, stages[0].Expression, "after(900000)")
}

func TestBuildMultisigDecayExcludesOwnerFromDecayedQuorum(t *testing.T) {
	cfg := vaultcfg.VaultConfiguration{Profile: vaultcfg.ProfileMultisigDecay}
	keys := ResolvedKeys{Owner: key(1), Heirs: [][]byte{key(2), key(3)}}
	tl := ResolvedTimelocks{After: u32(900000)}
	decay := DecayThresholds{Before: 2, After: 1}

	stages, _, err := Build(cfg, keys, tl, decay)
	require.NoError(t, err)
	expr := stages[0].Expression
	require.Contains(t, expr, "thresh(2,")
	require.Contains(t, expr, "thresh(1,")

	// The decayed (after-fork) quorum must never mention the owner key.
	decayedPart := expr[len(expr)-120:]
	require.NotContains(t, decayedPart, hx(key(1)))
}

func TestGateWrapsOnlyFurthestBranch(t *testing.T) {
	cfg := vaultcfg.VaultConfiguration{
		Profile: vaultcfg.ProfileSpouse,
		Gate:    vaultcfg.Gate{ChallengeHash: make([]byte, 32)},
	}
	keys := ResolvedKeys{Owner: key(1), Spouse: key(2), Heir: key(3)}
	tl := ResolvedTimelocks{Spouse: u32(100), Heir: u32(200)}

	stages, warnings, err := Build(cfg, keys, tl, DecayThresholds{})
	require.NoError(t, err)
	require.Empty(t, warnings)
	expr := stages[0].Expression
	require.Contains(t, expr, "sha256(")
	// Owner branch must be untouched: pk(owner) appears directly after
	// the outermost or(, not wrapped in a sha256 gate.
	require.True(t, len(expr) > 0 && expr[:3] == "or(")
}

func TestStaggeredModifierProducesOneStagePerEntry(t *testing.T) {
	cfg := vaultcfg.VaultConfiguration{
		Profile: vaultcfg.ProfileDeadManSwitch,
		Modifiers: vaultcfg.Modifiers{
			Staggered: []vaultcfg.StaggeredStage{
				{Percent: 50, OffsetDays: 0},
				{Percent: 50, OffsetDays: 30},
			},
		},
	}
	keys := ResolvedKeys{Owner: key(1), Heir: key(2)}
	tl := ResolvedTimelocks{Heir: u32(12960)}

	stages, _, err := Build(cfg, keys, tl, DecayThresholds{})
	require.NoError(t, err)
	require.Len(t, stages, 2)
	require.Contains(t, stages[0].Expression, "older(12960)")
	require.Contains(t, stages[1].Expression, "older(17280)")
}
