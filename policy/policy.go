// Package policy turns a validated vault configuration and its resolved
// keys into the canonical Miniscript-style policy string(s) described in
// spec.md §4.C. Gates wrap only the furthest heir-tier subexpression;
// owner-tier and short-horizon recovery/spouse branches are never
// wrapped. Duress is never emitted (spec.md §9).
package policy

import (
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/camiliosalomanda/satslegacy-vaultengine/timelock"
	"github.com/camiliosalomanda/satslegacy-vaultengine/vaultcfg"
	"github.com/camiliosalomanda/satslegacy-vaultengine/vaulterrors"
)

// ResolvedKeys carries the normalized 33-byte compressed keys for every
// role a profile might reference. Heirs holds the multi-key lists used
// by the family (>=2) and multisig-decay (N) profiles; single-key roles
// use their own field.
type ResolvedKeys struct {
	Owner    []byte
	Recovery []byte
	Spouse   []byte
	Heir     []byte
	Heirs    [][]byte
	Partner  []byte
	Trustee  []byte
	Oracle   []byte
}

// ResolvedTimelocks carries the already block/height-encoded timelock
// values a profile's branches need. Relative fields are BIP-68 sequence
// values (see package timelock); After is an absolute CLTV height.
type ResolvedTimelocks struct {
	Recovery  *uint32 // CSV, solo + family short-horizon branch
	Spouse    *uint32 // CSV, spouse profile
	Heir      *uint32 // CSV, spouse/family/dead-man-switch heir branch
	OwnerSolo *uint32 // CSV, business owner-solo branch
	Trustee   *uint32 // CSV, business trustee branch
	After     *uint32 // CLTV, legacy timelock / multisig-decay
}

// DecayThresholds fixes the before/after quorum sizes for a decaying
// multisig vault. Before counts the owner plus the heirs; After counts
// heirs only, excluding the owner by design.
type DecayThresholds struct {
	Before int
	After  int
}

// Stage is one independently-spendable policy, with its own percentage
// and timelock. A non-staggered vault produces exactly one Stage at
// 100%; a staggered vault produces one Stage per declared stage.
type Stage struct {
	Index      int
	Percent    int
	Expression string
}

// Build produces the canonical policy string(s) for cfg. It never
// mutates cfg and never emits a duress path.
func Build(cfg vaultcfg.VaultConfiguration, keys ResolvedKeys,
	tl ResolvedTimelocks, decay DecayThresholds) ([]Stage, []string, error) {

	template, furthest, furthestOlder, furthestAfter, err := buildBase(cfg.Profile, keys, tl, decay)
	if err != nil {
		return nil, nil, err
	}

	gatedFurthest, warnings := applyGate(furthest, cfg.Gate, keys)
	expr := fmt.Sprintf(template, gatedFurthest)

	if len(cfg.Modifiers.Staggered) == 0 {
		return []Stage{{Index: 0, Percent: 100, Expression: expr}}, warnings, nil
	}

	stages := make([]Stage, 0, len(cfg.Modifiers.Staggered))
	for i, s := range cfg.Modifiers.Staggered {
		stageTL := tl
		offsetBlocks := uint32(s.OffsetDays) * timelock.CurrentAnchor().BlocksPerDay

		switch {
		case furthestOlder:
			stageTL = addOlderOffset(tl, cfg.Profile, offsetBlocks)
		case furthestAfter:
			if tl.After != nil {
				v := *tl.After + offsetBlocks
				stageTL.After = &v
			}
		}

		stageTemplate, stageFurthest, _, _, err := buildBase(cfg.Profile, keys, stageTL, decay)
		if err != nil {
			return nil, nil, err
		}
		stageGatedFurthest, w := applyGate(stageFurthest, cfg.Gate, keys)
		warnings = append(warnings, w...)

		stages = append(stages, Stage{
			Index:      i,
			Percent:    s.Percent,
			Expression: fmt.Sprintf(stageTemplate, stageGatedFurthest),
		})
	}

	return stages, warnings, nil
}

// addOlderOffset bumps the profile's furthest (heir-tier) relative
// timelock field by offsetBlocks, leaving every other field untouched.
func addOlderOffset(tl ResolvedTimelocks, profile vaultcfg.Profile, offsetBlocks uint32) ResolvedTimelocks {
	out := tl
	switch profile {
	case vaultcfg.ProfileSpouse, vaultcfg.ProfileFamily, vaultcfg.ProfileDeadManSwitch:
		if tl.Heir != nil {
			v := *tl.Heir + offsetBlocks
			out.Heir = &v
		}
	case vaultcfg.ProfileBusiness:
		if tl.Trustee != nil {
			v := *tl.Trustee + offsetBlocks
			out.Trustee = &v
		}
	case vaultcfg.ProfileSolo:
		if tl.Recovery != nil {
			v := *tl.Recovery + offsetBlocks
			out.Recovery = &v
		}
	}
	return out
}

// buildBase returns a template with exactly one "%s" placeholder marking
// the furthest heir-tier subexpression, that subexpression itself
// (unwrapped), and whether its timelock is relative (older) or absolute
// (after). Gates are applied to the returned furthest fragment only,
// never to the template, so the owner (and any short-horizon recovery
// or spouse branch) can never end up inside a gate.
func buildBase(profile vaultcfg.Profile, keys ResolvedKeys, tl ResolvedTimelocks,
	decay DecayThresholds) (template, furthest string, furthestIsOlder, furthestIsAfter bool, err error) {

	switch profile {
	case vaultcfg.ProfileSolo:
		if keys.Owner == nil || keys.Recovery == nil || tl.Recovery == nil {
			return "", "", false, false, missingErr("solo")
		}
		furthest = fmt.Sprintf("and(pk(%s),older(%d))", hx(keys.Recovery), *tl.Recovery)
		return fmt.Sprintf("or(pk(%s),%%s)", hx(keys.Owner)), furthest, true, false, nil

	case vaultcfg.ProfileSpouse:
		if keys.Owner == nil || keys.Spouse == nil || keys.Heir == nil ||
			tl.Spouse == nil || tl.Heir == nil {
			return "", "", false, false, missingErr("spouse")
		}
		furthest = fmt.Sprintf("and(pk(%s),older(%d))", hx(keys.Heir), *tl.Heir)
		template = fmt.Sprintf("or(pk(%s),or(and(pk(%s),older(%d)),%%s))",
			hx(keys.Owner), hx(keys.Spouse), *tl.Spouse)
		return template, furthest, true, false, nil

	case vaultcfg.ProfileFamily:
		if keys.Owner == nil || keys.Recovery == nil || len(keys.Heirs) < 2 ||
			tl.Recovery == nil || tl.Heir == nil {
			return "", "", false, false, missingErr("family")
		}
		furthest = fmt.Sprintf("and(thresh(2,%s),older(%d))", pkList(keys.Heirs), *tl.Heir)
		template = fmt.Sprintf("or(pk(%s),or(and(pk(%s),older(%d)),%%s))",
			hx(keys.Owner), hx(keys.Recovery), *tl.Recovery)
		return template, furthest, true, false, nil

	case vaultcfg.ProfileBusiness:
		if keys.Owner == nil || keys.Partner == nil || keys.Trustee == nil ||
			tl.OwnerSolo == nil || tl.Trustee == nil {
			return "", "", false, false, missingErr("business")
		}
		furthest = fmt.Sprintf("and(pk(%s),older(%d))", hx(keys.Trustee), *tl.Trustee)
		template = fmt.Sprintf("or(and(pk(%s),pk(%s)),or(and(pk(%s),older(%d)),%%s))",
			hx(keys.Owner), hx(keys.Partner), hx(keys.Owner), *tl.OwnerSolo)
		return template, furthest, true, false, nil

	case vaultcfg.ProfileDeadManSwitch:
		if keys.Owner == nil || keys.Heir == nil || tl.Heir == nil {
			return "", "", false, false, missingErr("dead_man_switch")
		}
		furthest = fmt.Sprintf("and(pk(%s),older(%d))", hx(keys.Heir), *tl.Heir)
		return fmt.Sprintf("or(pk(%s),%%s)", hx(keys.Owner)), furthest, true, false, nil

	case vaultcfg.ProfileTimelockLegacy:
		if keys.Owner == nil || keys.Heir == nil || tl.After == nil {
			return "", "", false, false, missingErr("timelock_legacy")
		}
		furthest = fmt.Sprintf("and(pk(%s),after(%d))", hx(keys.Heir), *tl.After)
		return fmt.Sprintf("or(pk(%s),%%s)", hx(keys.Owner)), furthest, false, true, nil

	case vaultcfg.ProfileMultisigDecay:
		if keys.Owner == nil || len(keys.Heirs) == 0 || tl.After == nil {
			return "", "", false, false, missingErr("multisig_decay")
		}
		beforeList := fmt.Sprintf("pk(%s),%s", hx(keys.Owner), pkList(keys.Heirs))
		furthest = fmt.Sprintf("and(thresh(%d,%s),after(%d))", decay.After, pkList(keys.Heirs), *tl.After)
		template = fmt.Sprintf("or(thresh(%d,%s),%%s)", decay.Before, beforeList)
		return template, furthest, false, true, nil

	default:
		return "", "", false, false, vaulterrors.New(
			vaulterrors.KindInvalidConfiguration, "unknown profile %q", profile,
		)
	}
}

func missingErr(profile string) error {
	return vaulterrors.New(
		vaulterrors.KindInsufficientKeys,
		"profile %q is missing a required key or timelock", profile,
	)
}

// applyGate wraps the furthest heir-tier subexpression of base with the
// challenge/oracle gates declared on cfg.Gate. Challenge wraps first
// (innermost), oracle wraps the result, so an oracle co-signature is
// required in addition to revealing the preimage when both are set.
func applyGate(base string, gate vaultcfg.Gate, keys ResolvedKeys) (string, []string) {
	var warnings []string
	result := base

	if len(gate.ChallengeHash) == 32 {
		result = fmt.Sprintf("and(sha256(%s),%s)", hex.EncodeToString(gate.ChallengeHash), result)
	} else if len(gate.ChallengeHash) != 0 {
		warnings = append(warnings, "challenge hash present but not 32 bytes, gate skipped")
	}

	if gate.OracleEnabled {
		if keys.Oracle != nil {
			result = fmt.Sprintf("and(pk(%s),%s)", hx(keys.Oracle), result)
		} else {
			warnings = append(warnings, "oracle gate requested but no oracle key supplied, gate skipped")
		}
	}

	return result, warnings
}

func hx(key []byte) string {
	return hex.EncodeToString(key)
}

// pkList renders a sorted (BIP-67 style, see vaultscript) list of keys
// as comma-separated pk(...) policy fragments.
func pkList(keys [][]byte) string {
	return joinPkFrags(pkHexList(keys))
}

func pkHexList(keys [][]byte) []string {
	hexes := make([]string, len(keys))
	for i, k := range keys {
		hexes[i] = hx(k)
	}
	sort.Strings(hexes)
	return hexes
}

func joinPkFrags(hexes []string) string {
	frags := make([]string, len(hexes))
	for i, h := range hexes {
		frags[i] = fmt.Sprintf("pk(%s)", h)
	}
	return joinPk(frags)
}

func joinPk(frags []string) string {
	out := ""
	for i, f := range frags {
		if i > 0 {
			out += ","
		}
		out += f
	}
	return out
}
