package validator

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/camiliosalomanda/satslegacy-vaultengine/vaultcfg"
)

func baseConfig() vaultcfg.VaultConfiguration {
	return vaultcfg.VaultConfiguration{
		Profile: vaultcfg.ProfileSolo,
		Network: vaultcfg.Mainnet,
		Keys: map[vaultcfg.KeyRole]vaultcfg.KeyDescriptor{
			vaultcfg.RoleOwner:    {Key: "owner"},
			vaultcfg.RoleRecovery: {Key: "recovery"},
		},
	}
}

func TestValidateCleanConfigurationHasNoErrors(t *testing.T) {
	report := Validate(baseConfig())
	require.True(t, report.Valid())
	require.Empty(t, report.Warnings)
}

func TestValidateRejectsShamirAndMultisigConfigTogether(t *testing.T) {
	cfg := baseConfig()
	cfg.Infrastructure = []vaultcfg.InfrastructureOption{vaultcfg.InfraShamir, vaultcfg.InfraMultisigConfig}
	report := Validate(cfg)
	require.False(t, report.Valid())
	require.Contains(t, codes(report.Errors), "infra_shamir_multisig_conflict")
}

func TestValidateRecommendsAgainstNostrIpfsRedundancy(t *testing.T) {
	cfg := baseConfig()
	cfg.Infrastructure = []vaultcfg.InfrastructureOption{vaultcfg.InfraNostr, vaultcfg.InfraIPFS}
	report := Validate(cfg)
	require.True(t, report.Valid())
	require.Contains(t, codes(report.Recommendations), "infra_nostr_ipfs_redundant")
}

func TestValidateRequiresMultisigConfigForDecayProfile(t *testing.T) {
	cfg := baseConfig()
	cfg.Profile = vaultcfg.ProfileMultisigDecay
	report := Validate(cfg)
	require.False(t, report.Valid())
	require.Contains(t, codes(report.Errors), "multisig_decay_requires_multisig_config")
}

func TestValidateAcceptsDecayProfileWithMultisigConfig(t *testing.T) {
	cfg := baseConfig()
	cfg.Profile = vaultcfg.ProfileMultisigDecay
	cfg.Infrastructure = []vaultcfg.InfrastructureOption{vaultcfg.InfraMultisigConfig}
	report := Validate(cfg)
	require.NotContains(t, codes(report.Errors), "multisig_decay_requires_multisig_config")
}

func TestValidateRequiresNostrOrIpfsForOracleGate(t *testing.T) {
	cfg := baseConfig()
	cfg.Gate.OracleEnabled = true
	report := Validate(cfg)
	require.False(t, report.Valid())
	require.Contains(t, codes(report.Errors), "oracle_requires_nostr_or_ipfs")
}

func TestValidateRejectsDecoyWithMultisigConfig(t *testing.T) {
	cfg := baseConfig()
	cfg.Modifiers.Decoy = true
	cfg.Infrastructure = []vaultcfg.InfrastructureOption{vaultcfg.InfraMultisigConfig}
	report := Validate(cfg)
	require.False(t, report.Valid())
	require.Contains(t, codes(report.Errors), "decoy_incompatible_with_multisig_config")
}

func TestValidateRejectsBeneficiaryTotalOver100(t *testing.T) {
	cfg := baseConfig()
	cfg.Beneficiaries = []vaultcfg.Beneficiary{{Name: "a", Percentage: 60}, {Name: "b", Percentage: 60}}
	report := Validate(cfg)
	require.False(t, report.Valid())
	require.Contains(t, codes(report.Errors), "beneficiary_total_exceeds_100")
}

func TestValidateRecommendsWhenBeneficiaryTotalUnder100(t *testing.T) {
	cfg := baseConfig()
	cfg.Beneficiaries = []vaultcfg.Beneficiary{{Name: "a", Percentage: 40}}
	report := Validate(cfg)
	require.True(t, report.Valid())
	require.Contains(t, codes(report.Recommendations), "beneficiary_total_below_100")
}

func TestValidateNeverMutatesInput(t *testing.T) {
	cfg := baseConfig()
	cfg.Infrastructure = []vaultcfg.InfrastructureOption{vaultcfg.InfraShamir, vaultcfg.InfraMultisigConfig}
	before := len(cfg.Infrastructure)
	_ = Validate(cfg)
	require.Equal(t, before, len(cfg.Infrastructure))
}

func TestMigrateLegacySpouseProfile(t *testing.T) {
	legacy := LegacyConfiguration{
		PrimaryLogic: "spouse",
		Network:      vaultcfg.Mainnet,
		OwnerKey:     "owner-key",
		SpouseKey:    "spouse-key",
		HeirKey:      "heir-key",
		TimelockDays: 30,
	}
	cfg, err := MigrateLegacy(legacy)
	require.NoError(t, err)
	require.Equal(t, vaultcfg.ProfileSpouse, cfg.Profile)
	require.Equal(t, "spouse-key", cfg.Keys[vaultcfg.RoleSpouse].Key)
	require.Equal(t, "heir-key", cfg.Keys[vaultcfg.RoleHeir].Key)
	require.NotNil(t, cfg.Timelocks[vaultcfg.RoleHeir].RelativeDays)
}

func TestMigrateLegacyDefaultsToTimelockProfile(t *testing.T) {
	legacy := LegacyConfiguration{OwnerKey: "owner-key", HeirKey: "heir-key"}
	cfg, err := MigrateLegacy(legacy)
	require.NoError(t, err)
	require.Equal(t, vaultcfg.ProfileTimelockLegacy, cfg.Profile)
}

func codes(findings []Finding) []string {
	out := make([]string, len(findings))
	for i, f := range findings {
		out[i] = f.Code
	}
	return out
}
