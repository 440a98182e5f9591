// Package vaultcfg defines the data model shared by every component of
// the vault engine: roles, profiles, gates, modifiers and the
// structured configuration a wizard-like caller assembles before
// handing it to the validator and the address orchestrator.
package vaultcfg

import (
	"time"

	"github.com/btcsuite/btcd/chaincfg"
)

// Network identifies which chain a vault configuration targets.
// Signet shares testnet's Bech32 HRP ("tb") and key prefixes.
type Network int

const (
	Mainnet Network = iota
	Testnet
	Signet
)

func (n Network) String() string {
	switch n {
	case Mainnet:
		return "mainnet"
	case Testnet:
		return "testnet"
	case Signet:
		return "signet"
	default:
		return "unknown"
	}
}

// Params returns the btcsuite chain parameters backing this network.
// Signet uses the real chaincfg.SigNetParams; it is distinct from
// testnet for address validation purposes even though both share HRP
// "tb".
func (n Network) Params() *chaincfg.Params {
	switch n {
	case Mainnet:
		return &chaincfg.MainNetParams
	case Testnet:
		return &chaincfg.TestNet3Params
	case Signet:
		return &chaincfg.SigNetParams
	default:
		return &chaincfg.MainNetParams
	}
}

// IsMainnet reports whether n is Mainnet.
func (n Network) IsMainnet() bool { return n == Mainnet }

// KeyRole identifies the part a public key plays in a vault's script.
type KeyRole string

const (
	RoleOwner    KeyRole = "owner"
	RoleRecovery KeyRole = "recovery"
	RoleSpouse   KeyRole = "spouse"
	RoleHeir     KeyRole = "heir"
	RolePartner  KeyRole = "partner"
	RoleTrustee  KeyRole = "trustee"
	RoleOracle   KeyRole = "oracle"
	RoleBackup   KeyRole = "backup"
)

// Profile is the canonical vault shape: it fixes which roles are
// required and which timelocks are meaningful. A profile is immutable
// once a vault is created. The two non-canonical legacy/raw shapes
// (TimelockLegacy, MultisigDecay) are included here because the Policy
// Builder and Compatibility Validator both select behavior on the same
// enum; spec.md §3 calls the first five "canonical".
type Profile string

const (
	ProfileSolo           Profile = "solo"
	ProfileSpouse         Profile = "spouse"
	ProfileFamily         Profile = "family"
	ProfileBusiness       Profile = "business"
	ProfileDeadManSwitch  Profile = "dead_man_switch"
	ProfileTimelockLegacy Profile = "timelock_legacy"
	ProfileMultisigDecay  Profile = "multisig_decay"
)

// RequiredRoles lists the key roles a profile's policy shape consumes.
// RoleOwner is mandatory in every profile.
func RequiredRoles(p Profile) []KeyRole {
	switch p {
	case ProfileSolo:
		return []KeyRole{RoleOwner, RoleRecovery}
	case ProfileSpouse:
		return []KeyRole{RoleOwner, RoleSpouse, RoleHeir}
	case ProfileFamily:
		return []KeyRole{RoleOwner, RoleRecovery, RoleHeir}
	case ProfileBusiness:
		return []KeyRole{RoleOwner, RolePartner, RoleTrustee}
	case ProfileDeadManSwitch:
		return []KeyRole{RoleOwner, RoleHeir}
	case ProfileTimelockLegacy:
		return []KeyRole{RoleOwner, RoleHeir}
	case ProfileMultisigDecay:
		return []KeyRole{RoleOwner, RoleHeir}
	default:
		return []KeyRole{RoleOwner}
	}
}

// InfrastructureOption is an independent storage/transport surface a
// vault configuration can declare. The validator checks compatibility
// across the declared set; this module never implements any of them
// beyond the compatibility rules in spec.md §4.I.
type InfrastructureOption string

const (
	InfraLocal          InfrastructureOption = "local"
	InfraMicroSD        InfrastructureOption = "microsd"
	InfraShamir         InfrastructureOption = "shamir"
	InfraNostr          InfrastructureOption = "nostr"
	InfraIPFS           InfrastructureOption = "ipfs"
	InfraMultisigConfig InfrastructureOption = "multisig_config"
)

// ModifierKind enumerates the three supported modifiers.
type ModifierKind string

const (
	ModifierStaggered        ModifierKind = "staggered"
	ModifierMultiBeneficiary ModifierKind = "multi_beneficiary"
	ModifierDecoy            ModifierKind = "decoy"
)

// StaggeredStage is one independent release stage of a staggered
// modifier: its own percentage and its own additional timelock offset
// on top of the profile's base timelock.
type StaggeredStage struct {
	Percent    int
	OffsetDays int
}

// Modifiers captures the optional behavioural modifiers a vault may
// declare. Decoy is purely an application-layer construct (spec.md §9)
// and carries no script-affecting data here; its presence only matters
// to the compatibility validator.
type Modifiers struct {
	Staggered        []StaggeredStage
	MultiBeneficiary bool
	Decoy            bool
}

func (m Modifiers) Has(kind ModifierKind) bool {
	switch kind {
	case ModifierStaggered:
		return len(m.Staggered) > 0
	case ModifierMultiBeneficiary:
		return m.MultiBeneficiary
	case ModifierDecoy:
		return m.Decoy
	default:
		return false
	}
}

// Gate wraps the heir-tier branch of a policy with an extra
// precondition. Gates never apply to the owner sub-expression.
type Gate struct {
	// ChallengeHash is the SHA-256 hash of a preimage the heir must
	// reveal; nil disables the challenge gate.
	ChallengeHash []byte
	// OracleEnabled requires an additional co-signature from the
	// "oracle" role key on the heir branch.
	OracleEnabled bool
}

// TimelockSpec is the calendar/day-count form a caller supplies before
// the timelock package converts it into a CLTV height or CSV sequence.
// Exactly one field should be set, matching the branch type the
// profile expects for that role (absolute for legacy/decay, relative
// for spouse/family/dead-man-switch/business).
type TimelockSpec struct {
	AbsoluteDate *time.Time
	RelativeDays *int
}

// KeyDescriptor is the raw key material supplied for one role, plus an
// optional master fingerprint for PSBT BIP-32 derivation hints. Absence
// of the fingerprint is not an error (spec.md §9 Open Question 2); it
// only reduces hardware-signer ergonomics.
type KeyDescriptor struct {
	Key               string
	MasterFingerprint *[4]byte
}

// Beneficiary is one named recipient of a share of a vault's heir-tier
// funds. The sum of percentages across a vault's beneficiaries must not
// exceed 100; the remainder, if any, is implicitly the owner's.
type Beneficiary struct {
	Name       string
	Percentage int
	PublicKey  string
}

// MultisigDecaySpec fixes the before/after quorum sizes for a
// multisig_decay vault; the multisig_config infrastructure option
// records which cosigner set backs these counts out of band. Before
// counts the owner plus every heir key; After counts heirs only.
type MultisigDecaySpec struct {
	Before int
	After  int
}

// VaultConfiguration is the canonical, immutable-once-created shape a
// vault is built from. It must satisfy the compatibility validator
// before any script is produced.
type VaultConfiguration struct {
	Profile        Profile
	Network        Network
	Infrastructure []InfrastructureOption
	Gate           Gate
	Modifiers      Modifiers
	Keys           map[KeyRole]KeyDescriptor
	Timelocks      map[KeyRole]TimelockSpec
	Beneficiaries  []Beneficiary
	ChallengeHash  []byte
	MultisigDecay  *MultisigDecaySpec
}

// BeneficiaryPercentTotal sums the declared beneficiary percentages.
func (c VaultConfiguration) BeneficiaryPercentTotal() int {
	total := 0
	for _, b := range c.Beneficiaries {
		total += b.Percentage
	}
	return total
}

// HasInfrastructure reports whether opt is declared. "local" is
// implicitly always present per spec.md §4.I even if absent from the
// slice.
func (c VaultConfiguration) HasInfrastructure(opt InfrastructureOption) bool {
	if opt == InfraLocal {
		return true
	}
	for _, o := range c.Infrastructure {
		if o == opt {
			return true
		}
	}
	return false
}

// CheckInRecord tracks the last owner refresh of a dead-man-switch
// vault.
type CheckInRecord struct {
	LastCheckIn time.Time
	LastTxID    string
}

// Vault is the persisted, fully-derived entity: configuration plus the
// address and witness script computed from it. The engine never reads
// or writes it directly; it is loaded and saved through the storage
// interface in vaultio.
type Vault struct {
	ID            string
	Configuration VaultConfiguration
	Address       string
	WitnessScript []byte
	SequenceValue *uint32
	CheckIn       *CheckInRecord
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
