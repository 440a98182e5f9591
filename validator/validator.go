// Package validator checks a vaultcfg.VaultConfiguration for incoherent
// infrastructure/logic/modifier combinations (spec.md §4.I) and migrates
// legacy-shaped configurations to the profile model. It never mutates
// its input — every rule function reads from a vaultcfg.VaultConfiguration
// and appends to one of three independent result slices, the same
// read-only posture channeldb/error.go's sentinel catalogue assumes of
// its callers, generalized here into rule codes carried on the returned
// report rather than on individual sentinel values.
package validator

import (
	"fmt"

	"github.com/camiliosalomanda/satslegacy-vaultengine/vaultcfg"
)

// Finding is one rule outcome: a stable code plus a human-readable
// message. Codes are the stable contract external callers should branch
// on; messages may be reworded freely.
type Finding struct {
	Code    string
	Message string
}

// Report is the validator's complete output. A configuration is valid
// iff Errors is empty; Warnings and Recommendations never block use.
type Report struct {
	Errors          []Finding
	Warnings        []Finding
	Recommendations []Finding
}

func (r Report) Valid() bool { return len(r.Errors) == 0 }

func (r *Report) addError(code, format string, args ...interface{}) {
	r.Errors = append(r.Errors, Finding{Code: code, Message: fmt.Sprintf(format, args...)})
}

func (r *Report) addWarning(code, format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, Finding{Code: code, Message: fmt.Sprintf(format, args...)})
}

func (r *Report) addRecommendation(code, format string, args ...interface{}) {
	r.Recommendations = append(r.Recommendations, Finding{Code: code, Message: fmt.Sprintf(format, args...)})
}

// Validate runs every compatibility rule against cfg without mutating
// it, and returns the accumulated report.
func Validate(cfg vaultcfg.VaultConfiguration) Report {
	var r Report

	checkInfrastructureConflicts(cfg, &r)
	checkInfrastructureRedundancy(cfg, &r)
	checkLogicRequirements(cfg, &r)
	checkModifierConstraints(cfg, &r)
	checkBeneficiaryTotals(cfg, &r)

	log.Debugf("validated %s vault: %d error(s), %d warning(s), %d recommendation(s)",
		cfg.Profile, len(r.Errors), len(r.Warnings), len(r.Recommendations))
	return r
}

// checkInfrastructureConflicts: shamir and multisig_config are mutually
// exclusive key-splitting strategies — declaring both means the owner's
// signing material is split two incompatible ways at once.
func checkInfrastructureConflicts(cfg vaultcfg.VaultConfiguration, r *Report) {
	if cfg.HasInfrastructure(vaultcfg.InfraShamir) && cfg.HasInfrastructure(vaultcfg.InfraMultisigConfig) {
		r.addError("infra_shamir_multisig_conflict",
			"shamir and multisig_config cannot both be declared: they are mutually exclusive key-splitting strategies")
	}
}

// checkInfrastructureRedundancy: nostr and ipfs are both off-device
// distribution channels for the same backup payload; declaring both is
// never wrong, only redundant.
func checkInfrastructureRedundancy(cfg vaultcfg.VaultConfiguration, r *Report) {
	if cfg.HasInfrastructure(vaultcfg.InfraNostr) && cfg.HasInfrastructure(vaultcfg.InfraIPFS) {
		r.addRecommendation("infra_nostr_ipfs_redundant",
			"nostr and ipfs both distribute the same backup payload; one is usually enough")
	}
}

// checkLogicRequirements enforces each profile/gate's hard dependency on
// a specific infrastructure option.
func checkLogicRequirements(cfg vaultcfg.VaultConfiguration, r *Report) {
	if cfg.Profile == vaultcfg.ProfileMultisigDecay && !cfg.HasInfrastructure(vaultcfg.InfraMultisigConfig) {
		r.addError("multisig_decay_requires_multisig_config",
			"multisig_decay requires the multisig_config infrastructure option to record the cosigner set")
	}

	oracleGated := cfg.Gate.OracleEnabled
	if oracleGated && !cfg.HasInfrastructure(vaultcfg.InfraNostr) && !cfg.HasInfrastructure(vaultcfg.InfraIPFS) {
		r.addError("oracle_requires_nostr_or_ipfs",
			"an oracle-gated heir branch requires nostr or ipfs to reach the oracle co-signer")
	}
}

// checkModifierConstraints: the decoy modifier assumes a single
// plausible witness script per address; multisig_config publishes the
// cosigner set out of band, which defeats the decoy's plausible-deniability
// goal.
func checkModifierConstraints(cfg vaultcfg.VaultConfiguration, r *Report) {
	if cfg.Modifiers.Has(vaultcfg.ModifierDecoy) && cfg.HasInfrastructure(vaultcfg.InfraMultisigConfig) {
		r.addError("decoy_incompatible_with_multisig_config",
			"the decoy modifier is incompatible with multisig_config: the published cosigner set reveals the real script")
	}

	if cfg.Modifiers.Has(vaultcfg.ModifierStaggered) && cfg.Modifiers.Has(vaultcfg.ModifierMultiBeneficiary) {
		r.addWarning("staggered_multi_beneficiary_interaction",
			"staggered release combined with multiple beneficiaries needs careful per-stage percentage bookkeeping")
	}
}

// checkBeneficiaryTotals reports an error when beneficiary percentages
// sum to more than 100, and a recommendation when they sum to less —
// the remainder implicitly falls to the owner per vaultcfg.Beneficiary's
// doc comment.
func checkBeneficiaryTotals(cfg vaultcfg.VaultConfiguration, r *Report) {
	total := cfg.BeneficiaryPercentTotal()
	if total > 100 {
		r.addError("beneficiary_total_exceeds_100",
			"beneficiary percentages sum to %d%%, which exceeds 100%%", total)
	} else if len(cfg.Beneficiaries) > 0 && total < 100 {
		r.addRecommendation("beneficiary_total_below_100",
			"beneficiary percentages sum to %d%%; the remaining %d%% falls to the owner implicitly", total, 100-total)
	}
}

// LegacyConfiguration is the pre-profile shape this engine's
// predecessor used: a single named strategy plus loose flags, rather
// than a profile enum with gates and hardened roles.
type LegacyConfiguration struct {
	PrimaryLogic    string
	Network         vaultcfg.Network
	OwnerKey        string
	HeirKey         string
	SpouseKey       string
	RecoveryKey     string
	RequireOracle   bool
	RequireChallenge []byte
	TimelockDays    int
}

// MigrateLegacy converts a LegacyConfiguration into the current
// profile/gates/hardened-roles shape, non-destructively: legacy is left
// untouched and a fresh vaultcfg.VaultConfiguration is returned.
func MigrateLegacy(legacy LegacyConfiguration) (vaultcfg.VaultConfiguration, error) {
	keys := make(map[vaultcfg.KeyRole]vaultcfg.KeyDescriptor)
	timelocks := make(map[vaultcfg.KeyRole]vaultcfg.TimelockSpec)

	if legacy.OwnerKey != "" {
		keys[vaultcfg.RoleOwner] = vaultcfg.KeyDescriptor{Key: legacy.OwnerKey}
	}

	var profile vaultcfg.Profile
	switch legacy.PrimaryLogic {
	case "spouse", "spouse_inheritance":
		profile = vaultcfg.ProfileSpouse
		if legacy.SpouseKey != "" {
			keys[vaultcfg.RoleSpouse] = vaultcfg.KeyDescriptor{Key: legacy.SpouseKey}
		}
		if legacy.HeirKey != "" {
			keys[vaultcfg.RoleHeir] = vaultcfg.KeyDescriptor{Key: legacy.HeirKey}
		}
	case "family", "family_trust":
		profile = vaultcfg.ProfileFamily
		if legacy.RecoveryKey != "" {
			keys[vaultcfg.RoleRecovery] = vaultcfg.KeyDescriptor{Key: legacy.RecoveryKey}
		}
		if legacy.HeirKey != "" {
			keys[vaultcfg.RoleHeir] = vaultcfg.KeyDescriptor{Key: legacy.HeirKey}
		}
	case "dead_man_switch", "inactivity":
		profile = vaultcfg.ProfileDeadManSwitch
		if legacy.HeirKey != "" {
			keys[vaultcfg.RoleHeir] = vaultcfg.KeyDescriptor{Key: legacy.HeirKey}
		}
	case "timelock", "legacy_timelock", "":
		profile = vaultcfg.ProfileTimelockLegacy
		if legacy.HeirKey != "" {
			keys[vaultcfg.RoleHeir] = vaultcfg.KeyDescriptor{Key: legacy.HeirKey}
		}
	default:
		profile = vaultcfg.ProfileSolo
		if legacy.RecoveryKey != "" {
			keys[vaultcfg.RoleRecovery] = vaultcfg.KeyDescriptor{Key: legacy.RecoveryKey}
		}
	}

	if legacy.TimelockDays > 0 {
		days := legacy.TimelockDays
		for role := range keys {
			if role != vaultcfg.RoleOwner {
				timelocks[role] = vaultcfg.TimelockSpec{RelativeDays: &days}
			}
		}
	}

	cfg := vaultcfg.VaultConfiguration{
		Profile:   profile,
		Network:   legacy.Network,
		Keys:      keys,
		Timelocks: timelocks,
		Gate: vaultcfg.Gate{
			ChallengeHash: legacy.RequireChallenge,
			OracleEnabled: legacy.RequireOracle,
		},
	}
	return cfg, nil
}
