package ledger

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
)

// Branches of the key tree under the master key.
const (
	// BranchService holds the attestor (index 0) and distribution (index 1) keys.
	BranchService   uint32 = 0
	BranchReceiving uint32 = 1

	IndexAttestor     uint32 = 0
	IndexDistribution uint32 = 1
)

type Keychain struct {
	master *hdkeychain.ExtendedKey
	params *chaincfg.Params
}

func NewKeychain(masterKey string, params *chaincfg.Params) (*Keychain, error) {
	master, err := hdkeychain.NewKeyFromString(masterKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode master key: %w", err)
	}
	if !master.IsPrivate() {
		return nil, fmt.Errorf("master key must be private")
	}
	return &Keychain{master: master, params: params}, nil
}

// Derive returns the P2WPKH address m/branch/index and its private key.
func (k *Keychain) Derive(branch, index uint32) (btcutil.Address, *btcutil.WIF, error) {
	branchKey, err := k.master.Derive(branch)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to derive branch %d: %w", branch, err)
	}
	child, err := branchKey.Derive(index)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to derive key %d/%d: %w", branch, index, err)
	}

	pub, err := child.ECPubKey()
	if err != nil {
		return nil, nil, err
	}
	address, err := btcutil.NewAddressWitnessPubKeyHash(btcutil.Hash160(pub.SerializeCompressed()), k.params)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build address %d/%d: %w", branch, index, err)
	}

	priv, err := child.ECPrivKey()
	if err != nil {
		return nil, nil, err
	}
	wif, err := btcutil.NewWIF(priv, k.params, true)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode key %d/%d: %w", branch, index, err)
	}
	return address, wif, nil
}

func (k *Keychain) Params() *chaincfg.Params {
	return k.params
}
