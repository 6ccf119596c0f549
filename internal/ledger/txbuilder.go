package ledger

import (
	"crypto/sha256"
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// Virtual sizes of P2WPKH spends, used for fee estimation.
const (
	txOverheadVSize = 11
	inputVSize      = 68
	outputVSize     = 31

	dustLimit = 546
)

// AttestationTag prefixes the payload digest in the OP_RETURN output.
var AttestationTag = []byte("ATST")

type utxo struct {
	hash   *chainhash.Hash
	index  uint32
	amount int64
}

func parseUnspent(list []btcjson.ListUnspentResult) ([]utxo, error) {
	coins := make([]utxo, 0, len(list))
	for _, u := range list {
		hash, err := chainhash.NewHashFromStr(u.TxID)
		if err != nil {
			return nil, fmt.Errorf("%w: bad txid %q", ErrUnexpectedResponse, u.TxID)
		}
		amount, err := btcutil.NewAmount(u.Amount)
		if err != nil {
			return nil, fmt.Errorf("%w: bad amount %v", ErrUnexpectedResponse, u.Amount)
		}
		coins = append(coins, utxo{hash: hash, index: u.Vout, amount: int64(amount)})
	}
	return coins, nil
}

func estimateFee(feeRate int64, inputs int, outputSizes ...int) int64 {
	vsize := txOverheadVSize + inputs*inputVSize
	for _, s := range outputSizes {
		vsize += s
	}
	return feeRate * int64(vsize)
}

func attestationScript(payload string) ([]byte, error) {
	digest := sha256.Sum256([]byte(payload))
	data := append(append([]byte{}, AttestationTag...), digest[:]...)
	return txscript.NullDataScript(data)
}

// buildSpend selects coins, largest first, to pay outputs plus the fee and
// returns change to changeScript when it is above dust.
func buildSpend(coins []utxo, outputs []*wire.TxOut, changeScript []byte, feeRate int64) (*wire.MsgTx, error) {
	var target int64
	outSizes := make([]int, 0, len(outputs)+1)
	for _, out := range outputs {
		target += out.Value
		outSizes = append(outSizes, 9+len(out.PkScript))
	}
	changeSize := 9 + len(changeScript)

	sorted := append([]utxo(nil), coins...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].amount > sorted[j].amount })

	var (
		selected []utxo
		total    int64
		fee      int64
	)
	for _, c := range sorted {
		selected = append(selected, c)
		total += c.amount
		fee = estimateFee(feeRate, len(selected), append(outSizes, changeSize)...)
		if total >= target+fee {
			break
		}
	}
	if total < target+fee {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientFunds, total, target+fee)
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	for _, c := range selected {
		tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(c.hash, c.index), nil, nil))
	}
	for _, out := range outputs {
		tx.AddTxOut(out)
	}
	if change := total - target - fee; change > dustLimit {
		tx.AddTxOut(wire.NewTxOut(change, changeScript))
	}
	return tx, nil
}

// buildSweep spends every coin to one output.
func buildSweep(coins []utxo, toScript []byte, feeRate int64) (*wire.MsgTx, error) {
	if len(coins) == 0 {
		return nil, ErrNothingToSweep
	}

	var total int64
	tx := wire.NewMsgTx(wire.TxVersion)
	for _, c := range coins {
		total += c.amount
		tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(c.hash, c.index), nil, nil))
	}

	value := total - estimateFee(feeRate, len(coins), 9+len(toScript))
	if value <= dustLimit {
		return nil, fmt.Errorf("%w: %d satoshi is below the fee", ErrNothingToSweep, total)
	}
	tx.AddTxOut(wire.NewTxOut(value, toScript))
	return tx, nil
}
