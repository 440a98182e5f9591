// Package timelock converts between calendar dates, block heights
// (used by OP_CHECKLOCKTIMEVERIFY) and BIP-68 sequence values (used by
// OP_CHECKSEQUENCEVERIFY), and enforces the range invariants that keep
// an inheritance vault from locking itself open or shut incorrectly.
package timelock

import (
	"time"

	"github.com/camiliosalomanda/satslegacy-vaultengine/vaulterrors"
)

const (
	// MaxAbsoluteLocktime is the exclusive upper bound for an absolute
	// CLTV block height (2^31), above which nLockTime values are
	// interpreted by consensus as Unix timestamps instead of heights.
	MaxAbsoluteLocktime = uint32(1) << 31

	// MaxRelativeBlocks is the largest number of blocks a BIP-68
	// block-mode relative timelock can encode in its 16-bit value field.
	MaxRelativeBlocks = uint32(65535)

	// MinRelativeBlocks is the smallest meaningful relative timelock;
	// zero would be spendable immediately and is never a deliberate
	// inheritance delay.
	MinRelativeBlocks = uint32(1)

	// seqTypeFlag is bit 22, BIP-68's time-based-relative-lock flag.
	seqTypeFlag = uint32(1) << 22

	// seqValueMask isolates the low 16 bits carrying the lock value.
	seqValueMask = uint32(0x0000ffff)

	// seqGranularitySeconds is the BIP-68 time-mode unit: 512 seconds.
	seqGranularitySeconds = 512

	// disableFlag is bit 31; when set a sequence number is not
	// interpreted as a relative lock at all.
	disableFlag = uint32(1) << 31

	// reservedBit23 and reservedBit21 must always be zero; only bit 22
	// (the type flag) is meaningful in bits 23-21.
	reservedBit23 = uint32(1) << 23
	reservedBit21 = uint32(1) << 21
)

// Anchor pins block height to wall-clock time so the engine can convert
// calendar dates into CLTV heights without a live chain query. See
// DESIGN.md Open Question (1): the anchor is a single swappable value,
// not a self-refreshing one.
type Anchor struct {
	Height       uint32
	Time         time.Time
	BlocksPerDay uint32
}

var currentAnchor = Anchor{
	Height:       878000,
	Time:         time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
	BlocksPerDay: 144,
}

// SetAnchor overrides the fixed (height, timestamp) anchor used to
// translate between dates and heights. Callers with a live chain tip
// should call this periodically with the freshest known height.
func SetAnchor(a Anchor) {
	currentAnchor = a
}

// CurrentAnchor returns the anchor presently in effect.
func CurrentAnchor() Anchor {
	return currentAnchor
}

// EstimateHeight projects the block height at `at`, assuming
// BlocksPerDay blocks are mined every 24h from the anchor forward (or
// backward, for a time before the anchor).
func EstimateHeight(at time.Time) uint32 {
	a := currentAnchor
	days := at.Sub(a.Time).Hours() / 24
	delta := int64(days * float64(a.BlocksPerDay))
	height := int64(a.Height) + delta
	if height < 0 {
		return 0
	}
	return uint32(height)
}

// DateToCLTV converts a future calendar date into an absolute CLTV block
// height. A date that does not lie strictly after the height estimated
// for `now` is a hard error: a past (or present) CLTV height lets the
// heir branch spend immediately, which is a silent funds-loss bug, not
// a recoverable condition.
func DateToCLTV(date, now time.Time) (uint32, error) {
	height := EstimateHeight(date)
	nowHeight := EstimateHeight(now)

	if height <= nowHeight {
		return 0, vaulterrors.New(
			vaulterrors.KindLocktimeInPast,
			"locktime date %s resolves to height %d, which is not "+
				"after the current estimated height %d",
			date.Format(time.RFC3339), height, nowHeight,
		)
	}
	if height >= MaxAbsoluteLocktime {
		return 0, vaulterrors.New(
			vaulterrors.KindLocktimeInPast,
			"locktime height %d exceeds the maximum absolute "+
				"locktime %d", height, MaxAbsoluteLocktime,
		)
	}
	return height, nil
}

// DaysToCSV converts a number of days into a BIP-68 relative-locktime
// sequence value. If the block-mode encoding (days * BlocksPerDay)
// overflows the 16-bit value field, and allowTimeMode is true, the
// value is re-encoded in 512-second intervals with the time-mode flag
// (bit 22) set; otherwise the overflow is a hard error. The time-mode
// range (65535 * 512 s, about 388 days) is shorter than the block-mode
// range (65535 blocks, about 455 days at 144 blocks/day), so with that
// anchor a re-encoded value also overflows and is likewise rejected.
func DaysToCSV(days int, allowTimeMode bool) (uint32, error) {
	if days <= 0 {
		return 0, vaulterrors.New(
			vaulterrors.KindBip68OutOfRange,
			"relative timelock must be at least 1 day, got %d", days,
		)
	}

	blocks := uint32(days) * currentAnchor.BlocksPerDay
	if blocks <= MaxRelativeBlocks {
		return blocks, nil
	}

	if !allowTimeMode {
		return 0, vaulterrors.New(
			vaulterrors.KindBip68OutOfRange,
			"%d days (%d blocks) exceeds the BIP-68 block-mode "+
				"range of %d and time mode was not requested",
			days, blocks, MaxRelativeBlocks,
		)
	}

	seconds := int64(days) * 86400
	units := (seconds + seqGranularitySeconds - 1) / seqGranularitySeconds
	if units > int64(seqValueMask) {
		return 0, vaulterrors.New(
			vaulterrors.KindBip68OutOfRange,
			"%d days exceeds the BIP-68 time-mode range even at "+
				"512-second granularity", days,
		)
	}

	value := seqTypeFlag | (uint32(units) & seqValueMask)
	if err := ValidateBIP68(value); err != nil {
		return 0, err
	}
	return value, nil
}

// ValidateBIP68 asserts the encoding invariants on a relative-locktime
// sequence value: bit 31 (the disable flag) and bits 23 and 21 must be
// clear. Bit 22 (the time-mode flag) is the only meaningful bit outside
// the low 16-bit value field.
func ValidateBIP68(value uint32) error {
	if value&disableFlag != 0 {
		return vaulterrors.New(
			vaulterrors.KindBip68OutOfRange,
			"sequence value 0x%08x has the disable flag (bit 31) set",
			value,
		)
	}
	if value&reservedBit23 != 0 {
		return vaulterrors.New(
			vaulterrors.KindBip68OutOfRange,
			"sequence value 0x%08x sets reserved bit 23", value,
		)
	}
	if value&reservedBit21 != 0 {
		return vaulterrors.New(
			vaulterrors.KindBip68OutOfRange,
			"sequence value 0x%08x sets reserved bit 21", value,
		)
	}
	return nil
}

// IsTimeMode reports whether a validated BIP-68 sequence value is
// encoded in 512-second time units rather than a block count.
func IsTimeMode(value uint32) bool {
	return value&seqTypeFlag != 0
}

// BlocksFromSequence returns the plain block count of a validated
// block-mode sequence value. Calling it on a time-mode value returns
// the raw 512-second unit count instead, matching consensus semantics.
func BlocksFromSequence(value uint32) uint32 {
	return value & seqValueMask
}
