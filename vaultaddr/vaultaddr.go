// Package vaultaddr is the top-level orchestrator: given a validated
// vault configuration, it walks key codec → timelock arithmetic →
// policy builder → miniscript analysis → script assembler → spend-path
// model and returns one fully-derived bundle per stage (a non-staggered
// vault produces exactly one). Grounded on chainregistry.go's role as
// the place that wires every subsystem together and hands back one
// assembled result, generalized here from node subsystems to vault
// derivation stages.
//
// Every stage's lock values are computed exactly once (the base
// resolution for stage zero, a single offset bump for every staggered
// stage after it) so the emitted witness script and the policy string
// describing it can never drift apart — spec.md §4.J's central
// invariant for this component.
package vaultaddr

import (
	"time"

	"github.com/btcsuite/btcd/chaincfg"

	"github.com/camiliosalomanda/satslegacy-vaultengine/keycodec"
	"github.com/camiliosalomanda/satslegacy-vaultengine/miniscript"
	"github.com/camiliosalomanda/satslegacy-vaultengine/policy"
	"github.com/camiliosalomanda/satslegacy-vaultengine/spendpath"
	"github.com/camiliosalomanda/satslegacy-vaultengine/timelock"
	"github.com/camiliosalomanda/satslegacy-vaultengine/vaultcfg"
	"github.com/camiliosalomanda/satslegacy-vaultengine/vaulterrors"
	"github.com/camiliosalomanda/satslegacy-vaultengine/vaultscript"
)

// RedeemInfo is the enumerated set of ways the witness script in the
// same Result can be spent.
type RedeemInfo struct {
	SpendPaths []spendpath.Path
}

// Result is one fully-derived vault bundle: one per stage policy.Build
// returns, so a staggered vault gets one Result per declared stage.
type Result struct {
	StageIndex     int
	Percent        int
	Address        string
	WitnessScript  []byte
	Policy         string
	PolicyWarnings []string
	Miniscript     string
	MiniscriptSane bool
	RedeemInfo     RedeemInfo
	Network        vaultcfg.Network

	// IsValid reflects address derivation success only — a multisig_decay
	// or business vault can be a perfectly valid, spendable address even
	// when MiniscriptSane is false (spec.md §4.J, mirrored by seed
	// scenario S3). IsValid is false, with Err set, only when this
	// specific stage's script or address could not be built at all, or
	// when a failure common to every stage left nothing to build.
	IsValid bool
	Err     error
}

// Generate derives one Result per stage for cfg. now anchors any
// absolute-date timelock conversion; it should be the caller's present
// moment, not a cached value, since a stale now can silently shift an
// absolute CLTV height relative to what the caller believes "today" is.
//
// Failures are reported on Results; the returned error is always nil.
// A failure common to every stage (resolving keys or timelocks, or
// building the policy) yields a single Result with IsValid false and
// Err set, since no stage could proceed without them; a failure
// specific to one stage (e.g. a staggered offset pushing a threshold
// out of range) is recorded on that stage's own Result so the other
// stages still come back usable.
func Generate(cfg vaultcfg.VaultConfiguration, now time.Time) ([]Result, error) {
	net := cfg.Network.Params()
	invalid := func(err error) []Result {
		return []Result{{Percent: 100, Network: cfg.Network, Err: err}}
	}

	keys, err := resolveKeys(cfg, net)
	if err != nil {
		return invalid(err), nil
	}

	baseTL, err := resolveTimelocks(cfg, now)
	if err != nil {
		return invalid(err), nil
	}

	decay := policy.DecayThresholds{}
	if cfg.MultisigDecay != nil {
		decay = policy.DecayThresholds{Before: cfg.MultisigDecay.Before, After: cfg.MultisigDecay.After}
	}

	stages, warnings, err := policy.Build(cfg, keys, baseTL, decay)
	if err != nil {
		return invalid(err), nil
	}

	results := make([]Result, 0, len(stages))
	for _, stage := range stages {
		tl := baseTL
		if len(cfg.Modifiers.Staggered) > 0 {
			offsetDays := cfg.Modifiers.Staggered[stage.Index].OffsetDays
			offsetBlocks := uint32(offsetDays) * timelock.CurrentAnchor().BlocksPerDay
			tl = stageTimelocks(baseTL, cfg.Profile, offsetBlocks)
		}
		results = append(results, buildResult(stage, tl, decay, keys, cfg, warnings, net))
	}
	log.Debugf("derived %d stage(s) for %s vault on %s", len(results), cfg.Profile, cfg.Network)
	return results, nil
}

// buildResult assembles the witness script, address, spend paths and
// miniscript analysis for a single stage.
func buildResult(stage policy.Stage, tl policy.ResolvedTimelocks, decay policy.DecayThresholds,
	keys policy.ResolvedKeys, cfg vaultcfg.VaultConfiguration, warnings []string, net *chaincfg.Params) Result {

	r := Result{
		StageIndex:     stage.Index,
		Percent:        stage.Percent,
		Policy:         stage.Expression,
		PolicyWarnings: warnings,
		Network:        cfg.Network,
	}

	script, paths, err := buildScript(cfg.Profile, keys, tl, decay)
	if err != nil {
		r.Err = err
		return r
	}

	addr, err := vaultscript.Address(script, net)
	if err != nil {
		r.Err = err
		return r
	}

	r.WitnessScript = script
	r.Address = addr.String()
	r.RedeemInfo = RedeemInfo{SpendPaths: paths}
	r.IsValid = true

	if compiled, cErr := miniscript.CompilePolicy(stage.Expression); cErr == nil {
		r.Miniscript = compiled.Miniscript
		r.MiniscriptSane = compiled.IsSane
	} else {
		r.PolicyWarnings = append(r.PolicyWarnings, "miniscript compile failed: "+cErr.Error())
	}

	return r
}

// buildScript dispatches to the fixed vaultscript template and matching
// spendpath catalogue for profile. Solo reuses BuildDeadManSwitch and
// ForDeadManSwitch directly, passing the recovery key in the heir slot,
// since solo's policy is structurally identical to dead-man-switch's
// (see DESIGN.md Open Question decision 3).
func buildScript(profile vaultcfg.Profile, keys policy.ResolvedKeys, tl policy.ResolvedTimelocks,
	decay policy.DecayThresholds) ([]byte, []spendpath.Path, error) {

	switch profile {
	case vaultcfg.ProfileSolo:
		if keys.Owner == nil || keys.Recovery == nil || tl.Recovery == nil {
			return nil, nil, missingErr("solo")
		}
		script, err := vaultscript.BuildDeadManSwitch(keys.Owner, keys.Recovery, *tl.Recovery)
		if err != nil {
			return nil, nil, err
		}
		return script, spendpath.ForDeadManSwitch(keys.Owner, keys.Recovery, *tl.Recovery), nil

	case vaultcfg.ProfileSpouse:
		if keys.Owner == nil || keys.Spouse == nil || keys.Heir == nil || tl.Spouse == nil || tl.Heir == nil {
			return nil, nil, missingErr("spouse")
		}
		script, err := vaultscript.BuildSpouse(keys.Owner, keys.Spouse, keys.Heir, *tl.Spouse, *tl.Heir)
		if err != nil {
			return nil, nil, err
		}
		return script, spendpath.ForSpouse(keys.Owner, keys.Spouse, keys.Heir, *tl.Spouse, *tl.Heir), nil

	case vaultcfg.ProfileFamily:
		if keys.Owner == nil || keys.Recovery == nil || len(keys.Heirs) < 2 || tl.Recovery == nil || tl.Heir == nil {
			return nil, nil, missingErr("family")
		}
		script, err := vaultscript.BuildFamily(keys.Owner, keys.Recovery, keys.Heirs, *tl.Recovery, *tl.Heir)
		if err != nil {
			return nil, nil, err
		}
		return script, spendpath.ForFamily(keys.Owner, keys.Recovery, keys.Heirs, *tl.Recovery, *tl.Heir), nil

	case vaultcfg.ProfileBusiness:
		if keys.Owner == nil || keys.Partner == nil || keys.Trustee == nil || tl.OwnerSolo == nil || tl.Trustee == nil {
			return nil, nil, missingErr("business")
		}
		script, err := vaultscript.BuildBusiness(keys.Owner, keys.Partner, keys.Trustee, *tl.OwnerSolo, *tl.Trustee)
		if err != nil {
			return nil, nil, err
		}
		return script, spendpath.ForBusiness(keys.Owner, keys.Partner, keys.Trustee, *tl.OwnerSolo, *tl.Trustee), nil

	case vaultcfg.ProfileDeadManSwitch:
		if keys.Owner == nil || keys.Heir == nil || tl.Heir == nil {
			return nil, nil, missingErr("dead_man_switch")
		}
		script, err := vaultscript.BuildDeadManSwitch(keys.Owner, keys.Heir, *tl.Heir)
		if err != nil {
			return nil, nil, err
		}
		return script, spendpath.ForDeadManSwitch(keys.Owner, keys.Heir, *tl.Heir), nil

	case vaultcfg.ProfileTimelockLegacy:
		if keys.Owner == nil || keys.Heir == nil || tl.After == nil {
			return nil, nil, missingErr("timelock_legacy")
		}
		script, err := vaultscript.BuildTimelock(keys.Owner, keys.Heir, *tl.After)
		if err != nil {
			return nil, nil, err
		}
		return script, spendpath.ForTimelock(keys.Owner, keys.Heir, *tl.After), nil

	case vaultcfg.ProfileMultisigDecay:
		if keys.Owner == nil || len(keys.Heirs) == 0 || tl.After == nil {
			return nil, nil, missingErr("multisig_decay")
		}
		script, err := vaultscript.BuildMultisigDecay(keys.Owner, keys.Heirs, decay.Before, decay.After, *tl.After)
		if err != nil {
			return nil, nil, err
		}
		return script, spendpath.ForMultisigDecay(keys.Owner, keys.Heirs, decay.Before, decay.After, *tl.After), nil

	default:
		return nil, nil, vaulterrors.New(vaulterrors.KindInvalidConfiguration, "unknown profile %q", profile)
	}
}

func missingErr(profile string) error {
	return vaulterrors.New(vaulterrors.KindInsufficientKeys, "profile %q is missing a required key or timelock", profile)
}

// resolveKeys normalizes every key role cfg declares into the compressed
// points the script assembler needs. Family and multisig_decay source
// their multi-key heir list from cfg.Beneficiaries' PublicKey field
// (skipping entries with none set) rather than cfg.Keys, since
// vaultcfg.KeyDescriptor only holds one key per role and these two
// profiles need several (see DESIGN.md Open Question decision 4).
func resolveKeys(cfg vaultcfg.VaultConfiguration, net *chaincfg.Params) (policy.ResolvedKeys, error) {
	var out policy.ResolvedKeys
	var err error

	if out.Owner, err = normalizeRole(cfg, vaultcfg.RoleOwner, net); err != nil {
		return out, err
	}
	if out.Recovery, err = normalizeRole(cfg, vaultcfg.RoleRecovery, net); err != nil {
		return out, err
	}
	if out.Spouse, err = normalizeRole(cfg, vaultcfg.RoleSpouse, net); err != nil {
		return out, err
	}
	if out.Heir, err = normalizeRole(cfg, vaultcfg.RoleHeir, net); err != nil {
		return out, err
	}
	if out.Partner, err = normalizeRole(cfg, vaultcfg.RolePartner, net); err != nil {
		return out, err
	}
	if out.Trustee, err = normalizeRole(cfg, vaultcfg.RoleTrustee, net); err != nil {
		return out, err
	}
	if out.Oracle, err = normalizeRole(cfg, vaultcfg.RoleOracle, net); err != nil {
		return out, err
	}

	if cfg.Profile == vaultcfg.ProfileFamily || cfg.Profile == vaultcfg.ProfileMultisigDecay {
		for _, b := range cfg.Beneficiaries {
			if b.PublicKey == "" {
				continue
			}
			k, err := keycodec.Normalize(b.PublicKey, net)
			if err != nil {
				return out, err
			}
			out.Heirs = append(out.Heirs, k)
		}
	}

	return out, nil
}

func normalizeRole(cfg vaultcfg.VaultConfiguration, role vaultcfg.KeyRole, net *chaincfg.Params) ([]byte, error) {
	desc, ok := cfg.Keys[role]
	if !ok || desc.Key == "" {
		return nil, nil
	}
	return keycodec.Normalize(desc.Key, net)
}

// resolveTimelocks converts every TimelockSpec the current profile's
// branches reference into its already-encoded CSV sequence or CLTV
// height, once, so every stage starts from the same base values.
func resolveTimelocks(cfg vaultcfg.VaultConfiguration, now time.Time) (policy.ResolvedTimelocks, error) {
	var out policy.ResolvedTimelocks
	var err error

	switch cfg.Profile {
	case vaultcfg.ProfileSolo:
		if out.Recovery, err = csvFor(cfg, vaultcfg.RoleRecovery); err != nil {
			return out, err
		}

	case vaultcfg.ProfileSpouse:
		if out.Spouse, err = csvFor(cfg, vaultcfg.RoleSpouse); err != nil {
			return out, err
		}
		if out.Heir, err = csvFor(cfg, vaultcfg.RoleHeir); err != nil {
			return out, err
		}

	case vaultcfg.ProfileFamily:
		if out.Recovery, err = csvFor(cfg, vaultcfg.RoleRecovery); err != nil {
			return out, err
		}
		if out.Heir, err = csvFor(cfg, vaultcfg.RoleHeir); err != nil {
			return out, err
		}

	case vaultcfg.ProfileBusiness:
		if out.OwnerSolo, err = csvFor(cfg, vaultcfg.RoleOwner); err != nil {
			return out, err
		}
		if out.Trustee, err = csvFor(cfg, vaultcfg.RoleTrustee); err != nil {
			return out, err
		}

	case vaultcfg.ProfileDeadManSwitch:
		if out.Heir, err = csvFor(cfg, vaultcfg.RoleHeir); err != nil {
			return out, err
		}

	case vaultcfg.ProfileTimelockLegacy, vaultcfg.ProfileMultisigDecay:
		if out.After, err = cltvFor(cfg, vaultcfg.RoleHeir, now); err != nil {
			return out, err
		}

	default:
		return out, vaulterrors.New(vaulterrors.KindInvalidConfiguration, "unknown profile %q", cfg.Profile)
	}

	return out, nil
}

func csvFor(cfg vaultcfg.VaultConfiguration, role vaultcfg.KeyRole) (*uint32, error) {
	spec, ok := cfg.Timelocks[role]
	if !ok {
		return nil, nil
	}
	if spec.RelativeDays == nil {
		return nil, vaulterrors.New(vaulterrors.KindInvalidConfiguration,
			"role %q needs a relative (day-count) timelock, got an absolute one", role)
	}
	v, err := timelock.DaysToCSV(*spec.RelativeDays, true)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func cltvFor(cfg vaultcfg.VaultConfiguration, role vaultcfg.KeyRole, now time.Time) (*uint32, error) {
	spec, ok := cfg.Timelocks[role]
	if !ok {
		return nil, nil
	}
	if spec.AbsoluteDate == nil {
		return nil, vaulterrors.New(vaulterrors.KindInvalidConfiguration,
			"role %q needs an absolute-date timelock, got a relative one", role)
	}
	v, err := timelock.DateToCLTV(*spec.AbsoluteDate, now)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// stageTimelocks bumps the profile's furthest heir-tier timelock field
// by offsetBlocks for one staggered stage. This duplicates
// policy.addOlderOffset's per-profile field selection (that function is
// unexported and policy-string-specific) so the witness script's lock
// value stays numerically identical to the policy string describing it;
// the two must be kept in lockstep by hand if either changes.
func stageTimelocks(base policy.ResolvedTimelocks, profile vaultcfg.Profile, offsetBlocks uint32) policy.ResolvedTimelocks {
	out := base
	switch profile {
	case vaultcfg.ProfileSpouse, vaultcfg.ProfileFamily, vaultcfg.ProfileDeadManSwitch:
		if base.Heir != nil {
			v := *base.Heir + offsetBlocks
			out.Heir = &v
		}
	case vaultcfg.ProfileBusiness:
		if base.Trustee != nil {
			v := *base.Trustee + offsetBlocks
			out.Trustee = &v
		}
	case vaultcfg.ProfileSolo:
		if base.Recovery != nil {
			v := *base.Recovery + offsetBlocks
			out.Recovery = &v
		}
	case vaultcfg.ProfileTimelockLegacy, vaultcfg.ProfileMultisigDecay:
		if base.After != nil {
			v := *base.After + offsetBlocks
			out.After = &v
		}
	}
	return out
}
