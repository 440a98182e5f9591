package vaultio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestUtxoSetSkipsUnconfirmedEntries(t *testing.T) {
	script := []byte{0x63}
	utxos := []Utxo{
		{
			TxID:   "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
			Vout:   0,
			Value:  50000,
			Status: UtxoStatus{Confirmed: true, BlockHeight: 900000, BlockTime: time.Unix(0, 0)},
		},
		{
			TxID:   "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
			Vout:   1,
			Value:  20000,
			Status: UtxoStatus{Confirmed: false},
		},
	}

	out, err := UtxoSet(utxos, script)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, int64(50000), out[0].Value)
	require.Equal(t, script, out[0].WitnessScript)
	require.Equal(t, uint32(0), out[0].OutPoint.Index)
}

func TestUtxoSetRejectsMalformedTxID(t *testing.T) {
	utxos := []Utxo{
		{TxID: "not-a-txid", Vout: 0, Value: 1000, Status: UtxoStatus{Confirmed: true}},
	}
	_, err := UtxoSet(utxos, nil)
	require.Error(t, err)
}

func TestUtxoSetEmptyInputReturnsEmptySlice(t *testing.T) {
	out, err := UtxoSet(nil, nil)
	require.NoError(t, err)
	require.Len(t, out, 0)
}
