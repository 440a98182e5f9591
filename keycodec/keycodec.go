// Package keycodec parses and normalizes the public keys that end up in
// a vault's witness script: either a bare compressed secp256k1 point, or
// an extended public key whose non-hardened 0/0 child is the point that
// actually goes in the script. Every script key seen by vaultscript has
// already passed through Normalize.
package keycodec

import (
	"encoding/hex"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/camiliosalomanda/satslegacy-vaultengine/vaulterrors"
)

// CompressedKeyLen is the length, in bytes, of a compressed secp256k1
// public key.
const CompressedKeyLen = 33

// extendedKeyPayloadLen is the BIP-32 serialized extended key length
// before the trailing 4-byte checksum: 4 version + 1 depth + 4 parent
// fingerprint + 4 child number + 32 chain code + 33 key.
const extendedKeyPayloadLen = 78

// extendedKeyChecksumLen is the Base58Check checksum length.
const extendedKeyChecksumLen = 4

// version bytes for the prefixes this codec recognizes, keyed by the
// lowercase 4-character prefix. canonical is the version bytes
// hdkeychain itself knows how to parse (plain xpub/tpub); mainnet
// reports which network the prefix belongs to.
type prefixInfo struct {
	canonical [4]byte
	mainnet   bool
}

var knownPrefixes = map[string]prefixInfo{
	"xpub": {canonical: [4]byte{0x04, 0x88, 0xb2, 0x1e}, mainnet: true},
	"ypub": {canonical: [4]byte{0x04, 0x88, 0xb2, 0x1e}, mainnet: true},
	"zpub": {canonical: [4]byte{0x04, 0x88, 0xb2, 0x1e}, mainnet: true},
	"tpub": {canonical: [4]byte{0x04, 0x35, 0x87, 0xcf}, mainnet: false},
	"upub": {canonical: [4]byte{0x04, 0x35, 0x87, 0xcf}, mainnet: false},
	"vpub": {canonical: [4]byte{0x04, 0x35, 0x87, 0xcf}, mainnet: false},
}

// IsExtended reports whether key looks like a Base58Check-encoded BIP-32
// extended public key with one of the recognized prefixes (xpub, ypub,
// zpub, tpub, upub, vpub — first letter case-insensitive) and a body
// length consistent with a 78-byte BIP-32 payload after Base58 decode.
func IsExtended(key string) bool {
	_, _, err := decodeExtended(key)
	return err == nil
}

// decodeExtended Base58-decodes key, validates its checksum and length,
// and returns its 78-byte payload along with the prefix metadata.
func decodeExtended(key string) ([]byte, prefixInfo, error) {
	if len(key) < 4 {
		return nil, prefixInfo{}, vaulterrors.New(
			vaulterrors.KindInvalidKey, "key too short to be extended",
		)
	}

	prefix := strings.ToLower(key[:4])
	info, ok := knownPrefixes[prefix]
	if !ok {
		return nil, prefixInfo{}, vaulterrors.New(
			vaulterrors.KindInvalidKey, "unrecognized extended key prefix %q", key[:4],
		)
	}

	raw := base58.Decode(key)
	if len(raw) != extendedKeyPayloadLen+extendedKeyChecksumLen {
		return nil, prefixInfo{}, vaulterrors.New(
			vaulterrors.KindInvalidKey,
			"extended key has %d bytes, want %d", len(raw),
			extendedKeyPayloadLen+extendedKeyChecksumLen,
		)
	}

	payload := raw[:extendedKeyPayloadLen]
	checksum := raw[extendedKeyPayloadLen:]
	want := chainhash.DoubleHashB(payload)[:extendedKeyChecksumLen]
	if string(checksum) != string(want) {
		return nil, prefixInfo{}, vaulterrors.New(
			vaulterrors.KindInvalidKey, "extended key checksum mismatch",
		)
	}

	return payload, info, nil
}

// reencode rewrites payload's version bytes to canonical (a version
// hdkeychain recognizes) and returns the Base58Check string hdkeychain
// can parse.
func reencode(payload []byte, canonical [4]byte) string {
	out := make([]byte, extendedKeyPayloadLen)
	copy(out, payload)
	copy(out[:4], canonical[:])

	checksum := chainhash.DoubleHashB(out)[:extendedKeyChecksumLen]
	full := append(out, checksum...)
	return base58.Encode(full)
}

// parseExtended validates key against net (mainnet keys on mainnet,
// testnet/signet keys elsewhere — signet shares testnet's key prefixes)
// and returns the underlying *hdkeychain.ExtendedKey.
func parseExtended(key string, net *chaincfg.Params) (*hdkeychain.ExtendedKey, error) {
	payload, info, err := decodeExtended(key)
	if err != nil {
		return nil, err
	}

	wantMainnet := net.Net == chaincfg.MainNetParams.Net
	if info.mainnet != wantMainnet {
		return nil, vaulterrors.New(
			vaulterrors.KindInvalidNetwork,
			"extended key prefix %q does not match network %s",
			key[:4], net.Name,
		)
	}

	reencoded := reencode(payload, info.canonical)
	extKey, err := hdkeychain.NewKeyFromString(reencoded)
	if err != nil {
		return nil, vaulterrors.New(
			vaulterrors.KindInvalidKey, "malformed extended key: %v", err,
		)
	}
	return extKey, nil
}

// DeriveScriptKey derives the non-hardened child at path 0/0 of the
// supplied account-level extended public key and returns its compressed
// public point. This is deliberate: third-party wallets signing a vault
// output must see the same leaf they would see when watching a standard
// receive chain.
func DeriveScriptKey(xpub string, net *chaincfg.Params) ([]byte, error) {
	extKey, err := parseExtended(xpub, net)
	if err != nil {
		return nil, err
	}

	external, err := extKey.Child(0)
	if err != nil {
		return nil, vaulterrors.New(
			vaulterrors.KindInvalidKey, "deriving external chain: %v", err,
		)
	}
	leaf, err := external.Child(0)
	if err != nil {
		return nil, vaulterrors.New(
			vaulterrors.KindInvalidKey, "deriving address index 0: %v", err,
		)
	}

	pub, err := leaf.ECPubKey()
	if err != nil {
		return nil, vaulterrors.New(
			vaulterrors.KindInvalidKey, "recovering public key: %v", err,
		)
	}
	return pub.SerializeCompressed(), nil
}

// FingerprintOf returns the 4-byte HASH160 prefix of the extended key's
// own node (not a derived child). Callers that need a *master*
// fingerprint for PSBT BIP-32 hints must supply it separately; this
// codec never fabricates one.
func FingerprintOf(xpub string, net *chaincfg.Params) ([4]byte, error) {
	var fp [4]byte

	extKey, err := parseExtended(xpub, net)
	if err != nil {
		return fp, err
	}

	pub, err := extKey.ECPubKey()
	if err != nil {
		return fp, vaulterrors.New(
			vaulterrors.KindInvalidKey, "recovering public key: %v", err,
		)
	}

	hash := btcutil.Hash160(pub.SerializeCompressed())
	copy(fp[:], hash[:4])
	return fp, nil
}

// Normalize resolves key — a bare compressed public key or an extended
// public key — to the 33-byte compressed point that belongs in a
// witness script. Any other input is a hard error; normalize never
// silently substitutes or hashes.
func Normalize(key string, net *chaincfg.Params) ([]byte, error) {
	if IsExtended(key) {
		return DeriveScriptKey(key, net)
	}
	return normalizeCompressed(key)
}

func normalizeCompressed(key string) ([]byte, error) {
	raw, err := hex.DecodeString(key)
	if err != nil {
		return nil, vaulterrors.New(
			vaulterrors.KindInvalidKey, "key is neither a valid extended "+
				"key nor valid hex: %v", err,
		)
	}
	if len(raw) != CompressedKeyLen {
		return nil, vaulterrors.New(
			vaulterrors.KindInvalidKey,
			"compressed key must be %d bytes, got %d", CompressedKeyLen, len(raw),
		)
	}
	if raw[0] != 0x02 && raw[0] != 0x03 {
		return nil, vaulterrors.New(
			vaulterrors.KindInvalidKey,
			"compressed key must start with 0x02 or 0x03, got 0x%02x", raw[0],
		)
	}

	pub, err := btcec.ParsePubKey(raw)
	if err != nil {
		return nil, vaulterrors.New(
			vaulterrors.KindInvalidKey, "key is not a valid curve point: %v", err,
		)
	}
	return pub.SerializeCompressed(), nil
}
