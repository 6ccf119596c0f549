package ledger

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/Fi44er/email_attestation_bot/utils"
	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKeychain(t *testing.T) *Keychain {
	t.Helper()
	params := &chaincfg.RegressionNetParams
	master, err := hdkeychain.NewMaster(bytes.Repeat([]byte{7}, 32), params)
	require.NoError(t, err)
	keys, err := NewKeychain(master.String(), params)
	require.NoError(t, err)
	return keys
}

func txid(seed string) string {
	return chainhash.DoubleHashH([]byte(seed)).String()
}

type fakeNode struct {
	best     int64
	headers  int64
	txs      map[string]*btcjson.TxRawResult
	unspent  []btcjson.ListUnspentResult
	imported []string
	since    *btcjson.ListSinceBlockResult
	anchors  []*chainhash.Hash
	sent     []*wire.MsgTx
	sendErr  error
}

func newFakeNode() *fakeNode {
	return &fakeNode{best: 100, headers: 100, txs: map[string]*btcjson.TxRawResult{}}
}

func (f *fakeNode) GetBlockCount() (int64, error) { return f.best, nil }

func (f *fakeNode) GetBlockHash(height int64) (*chainhash.Hash, error) {
	h := chainhash.DoubleHashH([]byte{byte(height)})
	return &h, nil
}

func (f *fakeNode) GetBlockChainInfo() (*btcjson.GetBlockChainInfoResult, error) {
	return &btcjson.GetBlockChainInfoResult{Blocks: int32(f.best), Headers: int32(f.headers)}, nil
}

func (f *fakeNode) GetRawTransactionVerbose(h *chainhash.Hash) (*btcjson.TxRawResult, error) {
	tx, ok := f.txs[h.String()]
	if !ok {
		return nil, errors.New("no such transaction")
	}
	return tx, nil
}

func (f *fakeNode) ImportPrivKeyRescan(wif *btcutil.WIF, label string, rescan bool) error {
	f.imported = append(f.imported, label)
	return nil
}

func (f *fakeNode) ListUnspentMinMaxAddresses(minConf, maxConf int, addrs []btcutil.Address) ([]btcjson.ListUnspentResult, error) {
	var out []btcjson.ListUnspentResult
	for _, u := range f.unspent {
		for _, a := range addrs {
			if u.Address == a.EncodeAddress() && u.Confirmations >= int64(minConf) {
				out = append(out, u)
			}
		}
	}
	return out, nil
}

func (f *fakeNode) ListSinceBlockMinConfWatchOnly(h *chainhash.Hash, minConf int, watchOnly bool) (*btcjson.ListSinceBlockResult, error) {
	f.anchors = append(f.anchors, h)
	return f.since, nil
}

func (f *fakeNode) SignRawTransactionWithWallet(tx *wire.MsgTx) (*wire.MsgTx, bool, error) {
	return tx, true, nil
}

func (f *fakeNode) SendRawTransaction(tx *wire.MsgTx, allowHighFees bool) (*chainhash.Hash, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sent = append(f.sent, tx)
	h := tx.TxHash()
	return &h, nil
}

func (f *fakeNode) addTx(id string, confirmations uint64, vin []btcjson.Vin, outAddrs ...btcutil.Address) {
	tx := &btcjson.TxRawResult{Txid: id, Confirmations: confirmations, Vin: vin}
	for i, a := range outAddrs {
		script, _ := txscript.PayToAddrScript(a)
		tx.Vout = append(tx.Vout, btcjson.Vout{N: uint32(i), ScriptPubKey: btcjson.ScriptPubKeyResult{Hex: hex.EncodeToString(script)}})
	}
	f.txs[id] = tx
}

func derive(t *testing.T, keys *Keychain, branch, index uint32) btcutil.Address {
	t.Helper()
	addr, _, err := keys.Derive(branch, index)
	require.NoError(t, err)
	return addr
}

func TestKeychainDerivesDistinctSegwitAddresses(t *testing.T) {
	keys := testKeychain(t)

	attestor := derive(t, keys, BranchService, IndexAttestor)
	distribution := derive(t, keys, BranchService, IndexDistribution)
	receiving := derive(t, keys, BranchReceiving, 0)

	assert.NotEqual(t, attestor.EncodeAddress(), distribution.EncodeAddress())
	assert.NotEqual(t, attestor.EncodeAddress(), receiving.EncodeAddress())
	assert.IsType(t, &btcutil.AddressWitnessPubKeyHash{}, receiving)
	assert.True(t, receiving.IsForNet(&chaincfg.RegressionNetParams))

	again := derive(t, keys, BranchReceiving, 0)
	assert.Equal(t, receiving.EncodeAddress(), again.EncodeAddress())
}

func TestNewKeychainRejectsPublicKey(t *testing.T) {
	master, err := hdkeychain.NewMaster(bytes.Repeat([]byte{7}, 32), &chaincfg.RegressionNetParams)
	require.NoError(t, err)
	pub, err := master.Neuter()
	require.NoError(t, err)

	_, err = NewKeychain(pub.String(), &chaincfg.RegressionNetParams)
	assert.Error(t, err)
	_, err = NewKeychain("garbage", &chaincfg.RegressionNetParams)
	assert.Error(t, err)
}

func TestNetParams(t *testing.T) {
	p, err := NetParams("mainnet")
	require.NoError(t, err)
	assert.Equal(t, chaincfg.MainNetParams.Name, p.Name)

	_, err = NetParams("obyte")
	assert.ErrorIs(t, err, ErrUnknownNetwork)
}

func TestIssueAddressImportsKey(t *testing.T) {
	keys := testKeychain(t)
	n := newFakeNode()
	c := NewClient(n, keys, 2, utils.NewNopLogger())

	addr, err := c.IssueAddress(context.Background(), BranchReceiving, 5)
	require.NoError(t, err)
	assert.Equal(t, derive(t, keys, BranchReceiving, 5).EncodeAddress(), addr)
	assert.Equal(t, []string{"m/1/5"}, n.imported)
	assert.True(t, c.ValidAddress(addr))
	assert.False(t, c.ValidAddress("not-an-address"))
}

func TestAuthorsAndInputSources(t *testing.T) {
	keys := testKeychain(t)
	a := derive(t, keys, BranchReceiving, 1)
	b := derive(t, keys, BranchReceiving, 2)
	recv := derive(t, keys, BranchReceiving, 3)

	n := newFakeNode()
	prev1, prev2, unit := txid("prev1"), txid("prev2"), txid("unit")
	n.addTx(prev1, 11, nil, a, b)
	n.addTx(prev2, 0, nil, a)
	n.addTx(unit, 1, []btcjson.Vin{{Txid: prev1, Vout: 0}, {Txid: prev2, Vout: 0}}, recv)

	c := NewClient(n, keys, 2, utils.NewNopLogger())
	ctx := context.Background()

	authors, err := c.Authors(ctx, unit)
	require.NoError(t, err)
	assert.Equal(t, []string{a.EncodeAddress()}, authors)

	sources, err := c.InputSources(ctx, []string{unit})
	require.NoError(t, err)
	assert.Equal(t, []InputSource{
		{Address: a.EncodeAddress(), SrcUnit: prev1, MCI: 90},
		{Address: a.EncodeAddress(), SrcUnit: prev2, MCI: 0},
	}, sources)

	n.addTx(txid("multi"), 1, []btcjson.Vin{{Txid: prev1, Vout: 0}, {Txid: prev1, Vout: 1}}, recv)
	authors, err = c.Authors(ctx, txid("multi"))
	require.NoError(t, err)
	assert.Len(t, authors, 2)

	_, err = c.Authors(ctx, txid("missing"))
	assert.Error(t, err)

	confirmations, err := c.Confirmations(ctx, prev1)
	require.NoError(t, err)
	assert.Equal(t, int64(11), confirmations)

	confirmations, err = c.Confirmations(ctx, prev2)
	require.NoError(t, err)
	assert.Zero(t, confirmations)
}

func TestPostAttestationAnchorsPayloadDigest(t *testing.T) {
	keys := testKeychain(t)
	attestor := derive(t, keys, BranchService, IndexAttestor).EncodeAddress()

	n := newFakeNode()
	n.unspent = []btcjson.ListUnspentResult{{TxID: txid("coin"), Vout: 0, Address: attestor, Amount: 0.001, Confirmations: 3}}
	c := NewClient(n, keys, 2, utils.NewNopLogger())

	unit, err := c.PostAttestation(context.Background(), attestor, `{"address":"x"}`)
	require.NoError(t, err)
	require.Len(t, n.sent, 1)
	tx := n.sent[0]
	assert.Equal(t, tx.TxHash().String(), unit)

	require.Len(t, tx.TxOut, 2)
	script, err := attestationScript(`{"address":"x"}`)
	require.NoError(t, err)
	assert.Equal(t, script, tx.TxOut[0].PkScript)
	assert.Equal(t, int64(0), tx.TxOut[0].Value)
	assert.Equal(t, txscript.NullDataTy, txscript.GetScriptClass(tx.TxOut[0].PkScript))

	change, err := c.payToScript(attestor)
	require.NoError(t, err)
	assert.Equal(t, change, tx.TxOut[1].PkScript)
	assert.Less(t, tx.TxOut[1].Value, int64(100000))
}

func TestSendPaymentInsufficientFunds(t *testing.T) {
	keys := testKeychain(t)
	distribution := derive(t, keys, BranchService, IndexDistribution).EncodeAddress()
	to := derive(t, keys, BranchReceiving, 9).EncodeAddress()

	n := newFakeNode()
	n.unspent = []btcjson.ListUnspentResult{{TxID: txid("coin"), Vout: 1, Address: distribution, Amount: 0.0001, Confirmations: 1}}
	c := NewClient(n, keys, 2, utils.NewNopLogger())

	_, err := c.SendPayment(context.Background(), distribution, to, 20000)
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	unit, err := c.SendPayment(context.Background(), distribution, to, 5000)
	require.NoError(t, err)
	assert.NotEmpty(t, unit)
	assert.Equal(t, int64(5000), n.sent[0].TxOut[0].Value)
}

func TestSweepAll(t *testing.T) {
	keys := testKeychain(t)
	r1 := derive(t, keys, BranchReceiving, 1).EncodeAddress()
	r2 := derive(t, keys, BranchReceiving, 2).EncodeAddress()
	attestor := derive(t, keys, BranchService, IndexAttestor).EncodeAddress()

	n := newFakeNode()
	c := NewClient(n, keys, 2, utils.NewNopLogger())
	ctx := context.Background()

	_, err := c.SweepAll(ctx, []string{r1, r2}, attestor)
	assert.ErrorIs(t, err, ErrNothingToSweep)

	n.unspent = []btcjson.ListUnspentResult{
		{TxID: txid("a"), Vout: 0, Address: r1, Amount: 0.0005, Confirmations: 4},
		{TxID: txid("b"), Vout: 2, Address: r2, Amount: 0.0005, Confirmations: 4},
		{TxID: txid("c"), Vout: 0, Address: r2, Amount: 0.0005, Confirmations: 0},
	}
	_, err = c.SweepAll(ctx, []string{r1, r2}, attestor)
	require.NoError(t, err)
	require.Len(t, n.sent, 1)
	tx := n.sent[0]
	assert.Len(t, tx.TxIn, 2, "unconfirmed coins stay")
	require.Len(t, tx.TxOut, 1)
	assert.Equal(t, int64(100000)-estimateFee(2, 2, 31), tx.TxOut[0].Value)

	balance, err := c.Balance(ctx, r2)
	require.NoError(t, err)
	assert.Equal(t, int64(100000), balance)
}

func TestSyncing(t *testing.T) {
	n := newFakeNode()
	c := NewClient(n, testKeychain(t), 2, utils.NewNopLogger())

	syncing, err := c.Syncing(context.Background())
	require.NoError(t, err)
	assert.False(t, syncing)

	n.headers = 150
	syncing, err = c.Syncing(context.Background())
	require.NoError(t, err)
	assert.True(t, syncing)
}
