// Package ledger talks to a bitcoind wallet node: it derives and imports the
// bot's addresses, reports payments and their finality, walks payment
// ancestry and builds the transactions the bot sends.
package ledger

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
)

// NativeAsset is the only asset on this ledger.
const NativeAsset = ""

var (
	ErrNothingToSweep     = errors.New("nothing to sweep")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrUnknownNetwork     = errors.New("unknown network")
	ErrNotWalletAddress   = errors.New("address does not belong to the wallet")
	ErrUnexpectedResponse = errors.New("unexpected node response")
)

// Payment is an incoming payment to one of the wallet's addresses. Unit is
// the txid; Amount sums every output of the unit paying Address.
type Payment struct {
	Unit          string
	Address       string
	Asset         string
	Amount        int64
	Confirmations int64
}

// InputSource is one input of a unit: the address whose output is spent,
// the unit that created that output and its block height (0 if unconfirmed).
type InputSource struct {
	Address string
	SrcUnit string
	MCI     int64
}

func NetParams(network string) (*chaincfg.Params, error) {
	switch network {
	case "mainnet":
		return &chaincfg.MainNetParams, nil
	case "testnet3", "testnet":
		return &chaincfg.TestNet3Params, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	case "signet":
		return &chaincfg.SigNetParams, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownNetwork, network)
}
