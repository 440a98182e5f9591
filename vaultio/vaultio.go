// Package vaultio declares the external boundaries the engine depends on
// but never implements itself: encrypted vault storage, a blockchain
// REST backend, an optional price oracle, an external signer, and a
// transaction broadcaster. Every interface here is intentionally
// general, mirroring chainntfs.ChainNotifier's own stance of supporting
// a wide array of concrete backends (mempool.space, blockstream.info,
// an Electrum server, a hardware wallet, …) behind one contract.
//
// Nothing in this package touches the network or the filesystem; it
// only names the shapes that chainapi, priceoracle, and a caller's own
// storage/signer implementations must satisfy.
package vaultio

import (
	"context"
	"time"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/google/uuid"

	"github.com/camiliosalomanda/satslegacy-vaultengine/psbtbuild"
	"github.com/camiliosalomanda/satslegacy-vaultengine/vaultcfg"
)

// NewVaultID mints a fresh vault identifier. Storage implementations
// call this when Create receives a record with an empty ID; the engine
// itself never inspects the ID's internal structure.
func NewVaultID() string {
	return uuid.NewString()
}

// Storage persists encrypted vault records. The engine never sees a
// password or ciphertext directly — Storage receives the password
// alongside the plaintext vault and is solely responsible for
// encrypting at rest; every method here returns or accepts only
// decrypted vaultcfg.Vault values.
type Storage interface {
	// List returns every vault record currently on disk.
	List(ctx context.Context) ([]vaultcfg.Vault, error)

	// Create persists a new vault under password, assigning it an ID if
	// v.ID is empty.
	Create(ctx context.Context, v vaultcfg.Vault, password string) (vaultcfg.Vault, error)

	// Update overwrites the vault record id with v, re-encrypting under
	// password. It fails if id does not already exist.
	Update(ctx context.Context, id string, v vaultcfg.Vault, password string) error

	// Delete removes the vault record id. Callers must sweep any
	// non-zero balance before calling Delete (spec.md §7); Storage
	// itself does not check the chain.
	Delete(ctx context.Context, id string) error

	// Export serializes the vault record id, decrypted under password,
	// into a caller-defined portable form (e.g. an encrypted backup
	// blob for Shamir or Nostr transport).
	Export(ctx context.Context, id string, password string) ([]byte, error)

	// Import decodes a previously exported blob back into a vault
	// record and persists it.
	Import(ctx context.Context, blob []byte, password string) (vaultcfg.Vault, error)
}

// AddressStats is the funded/spent totals mempool.space-style backends
// report for GET /address/{a}.
type AddressStats struct {
	FundedTxoSum int64
	SpentTxoSum  int64
}

// UtxoStatus is the confirmation state of one UTXO entry from
// GET /address/{a}/utxo.
type UtxoStatus struct {
	Confirmed   bool
	BlockHeight int32
	BlockTime   time.Time
}

// Utxo is one unspent output reported for a vault address.
type Utxo struct {
	TxID   string
	Vout   uint32
	Value  int64
	Status UtxoStatus
}

// FeeEstimates mirrors GET /v1/fees/recommended's sat/vB tiers.
type FeeEstimates struct {
	FastestFee  int64
	HalfHourFee int64
	HourFee     int64
	EconomyFee  int64
	MinimumFee  int64
}

// BlockchainAPI is the REST surface any mempool.space-compatible
// backend exposes, per network. Implementations may fan a single call
// out to several configured endpoints and return the first success;
// every method must honour ctx's deadline and return a typed error,
// never leave partial state, on timeout (spec.md §5).
type BlockchainAPI interface {
	// AddressStats returns the funded/spent totals for address.
	AddressStats(ctx context.Context, address string) (AddressStats, error)

	// ListUTXOs returns every UTXO currently sitting at address.
	ListUTXOs(ctx context.Context, address string) ([]Utxo, error)

	// TipHeight returns the current chain tip height.
	TipHeight(ctx context.Context) (int32, error)

	// RecommendedFees returns the backend's current fee estimates.
	RecommendedFees(ctx context.Context) (FeeEstimates, error)

	// RawTransaction returns the raw hex of a previously broadcast
	// transaction, needed to build non-witness UTXO fields for legacy
	// inputs during PSBT construction.
	RawTransaction(ctx context.Context, txid string) (string, error)

	Broadcaster
}

// Broadcaster submits a finalized raw transaction to the network. It is
// split out from BlockchainAPI so a caller can swap in, e.g., a direct
// node RPC broadcaster while still reading UTXOs through a REST
// backend.
type Broadcaster interface {
	// Broadcast submits rawTxHex and returns the resulting txid, or a
	// BroadcastRejected error carrying the node's message verbatim.
	Broadcast(ctx context.Context, rawTxHex string) (txid string, err error)
}

// PriceOracle looks up a display-only fiat price for BTC. A fixed
// fallback value is permitted only when every configured backend fails
// and only for display — it must never feed a consensus-critical
// decision (spec.md §6).
type PriceOracle interface {
	// PriceUSD returns the current BTC/USD price.
	PriceUSD(ctx context.Context) (float64, error)
}

// Signer hands a PSBT to an external wallet (hardware or software) for
// signing and returns it back, still in standards-compliant PSBT v0
// form. The engine never sees a private key; Sign may return the
// packet unchanged if the signer declined every input it was not asked
// to sign.
type Signer interface {
	Sign(ctx context.Context, packet *psbt.Packet) (*psbt.Packet, error)
}

// UtxoSet converts a blockchain client's confirmed UTXO report into the
// shape psbtbuild consumes, filtering out anything still unconfirmed.
// witnessScript is the same script for every entry since a vault
// address has exactly one witness script per derivation stage.
func UtxoSet(utxos []Utxo, witnessScript []byte) ([]psbtbuild.Utxo, error) {
	out := make([]psbtbuild.Utxo, 0, len(utxos))
	for _, u := range utxos {
		if !u.Status.Confirmed {
			continue
		}
		hash, err := chainhash.NewHashFromStr(u.TxID)
		if err != nil {
			return nil, err
		}
		out = append(out, psbtbuild.Utxo{
			OutPoint:      wire.OutPoint{Hash: *hash, Index: u.Vout},
			Value:         u.Value,
			WitnessScript: witnessScript,
		})
	}
	return out, nil
}
