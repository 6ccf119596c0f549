package ledger

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/Fi44er/email_attestation_bot/utils"
	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// node is the part of the bitcoind wallet RPC the bot relies on.
// *rpcclient.Client implements it.
type node interface {
	GetBlockCount() (int64, error)
	GetBlockHash(height int64) (*chainhash.Hash, error)
	GetBlockChainInfo() (*btcjson.GetBlockChainInfoResult, error)
	GetRawTransactionVerbose(txHash *chainhash.Hash) (*btcjson.TxRawResult, error)
	ImportPrivKeyRescan(privKeyWIF *btcutil.WIF, label string, rescan bool) error
	ListUnspentMinMaxAddresses(minConf, maxConf int, addrs []btcutil.Address) ([]btcjson.ListUnspentResult, error)
	ListSinceBlockMinConfWatchOnly(blockHash *chainhash.Hash, minConfirms int, watchOnly bool) (*btcjson.ListSinceBlockResult, error)
	SignRawTransactionWithWallet(tx *wire.MsgTx) (*wire.MsgTx, bool, error)
	SendRawTransaction(tx *wire.MsgTx, allowHighFees bool) (*chainhash.Hash, error)
}

type RPCConfig struct {
	Host    string
	User    string
	Pass    string
	TLS     bool
	FeeRate int64
}

type Client struct {
	node    node
	keys    *Keychain
	params  *chaincfg.Params
	feeRate int64
	logger  *utils.Logger

	// spendMu keeps two spends from selecting the same coins.
	spendMu sync.Mutex
	close   func()
}

func Dial(cfg RPCConfig, keys *Keychain, logger *utils.Logger) (*Client, error) {
	rpc, err := rpcclient.New(&rpcclient.ConnConfig{
		Host:         cfg.Host,
		User:         cfg.User,
		Pass:         cfg.Pass,
		HTTPPostMode: true,
		DisableTLS:   !cfg.TLS,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to node %s: %w", cfg.Host, err)
	}

	c := NewClient(rpc, keys, cfg.FeeRate, logger)
	c.close = rpc.Shutdown
	return c, nil
}

func NewClient(n node, keys *Keychain, feeRate int64, logger *utils.Logger) *Client {
	if feeRate <= 0 {
		feeRate = 1
	}
	return &Client{node: n, keys: keys, params: keys.Params(), feeRate: feeRate, logger: logger}
}

func (c *Client) Close() {
	if c.close != nil {
		c.close()
	}
}

func (c *Client) ValidAddress(address string) bool {
	addr, err := btcutil.DecodeAddress(address, c.params)
	if err != nil {
		return false
	}
	return addr.IsForNet(c.params) && addr.EncodeAddress() == address
}

// IssueAddress derives m/branch/index and imports its key into the node
// wallet, so payments to it are reported and it can be spent from.
func (c *Client) IssueAddress(ctx context.Context, branch, index uint32) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	address, wif, err := c.keys.Derive(branch, index)
	if err != nil {
		return "", err
	}
	label := fmt.Sprintf("m/%d/%d", branch, index)
	if err := c.node.ImportPrivKeyRescan(wif, label, false); err != nil {
		return "", fmt.Errorf("failed to import %s: %w", label, err)
	}
	c.logger.Debugf("issued %s address %s", label, address.EncodeAddress())
	return address.EncodeAddress(), nil
}

func (c *Client) BestHeight(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return c.node.GetBlockCount()
}

func (c *Client) Syncing(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	info, err := c.node.GetBlockChainInfo()
	if err != nil {
		return false, fmt.Errorf("failed to get chain info: %w", err)
	}
	return info.Blocks < info.Headers, nil
}

func (c *Client) Balance(ctx context.Context, address string) (int64, error) {
	coins, err := c.unspent(ctx, 0, address)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, u := range coins {
		total += u.amount
	}
	return total, nil
}

func (c *Client) unspent(ctx context.Context, minConf int, addresses ...string) ([]utxo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	addrs := make([]btcutil.Address, 0, len(addresses))
	for _, a := range addresses {
		addr, err := btcutil.DecodeAddress(a, c.params)
		if err != nil {
			return nil, fmt.Errorf("invalid address %s: %w", a, err)
		}
		addrs = append(addrs, addr)
	}
	list, err := c.node.ListUnspentMinMaxAddresses(minConf, 9999999, addrs)
	if err != nil {
		return nil, fmt.Errorf("failed to list unspent outputs: %w", err)
	}
	return parseUnspent(list)
}

type txCache struct {
	c   *Client
	txs map[string]*btcjson.TxRawResult
}

func (t *txCache) get(txid string) (*btcjson.TxRawResult, error) {
	if tx, ok := t.txs[txid]; ok {
		return tx, nil
	}
	hash, err := chainhash.NewHashFromStr(txid)
	if err != nil {
		return nil, fmt.Errorf("invalid unit %q: %w", txid, err)
	}
	tx, err := t.c.node.GetRawTransactionVerbose(hash)
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction %s: %w", txid, err)
	}
	t.txs[txid] = tx
	return tx, nil
}

func (c *Client) newTxCache() *txCache {
	return &txCache{c: c, txs: make(map[string]*btcjson.TxRawResult)}
}

func (c *Client) outputAddresses(out btcjson.Vout) ([]string, error) {
	script, err := hex.DecodeString(out.ScriptPubKey.Hex)
	if err != nil {
		return nil, fmt.Errorf("%w: bad script hex", ErrUnexpectedResponse)
	}
	_, addrs, _, err := txscript.ExtractPkScriptAddrs(script, c.params)
	if err != nil {
		return nil, err
	}
	result := make([]string, 0, len(addrs))
	for _, a := range addrs {
		result = append(result, a.EncodeAddress())
	}
	return result, nil
}

// spentOutput returns the addresses of the output spent by vin and the
// transaction that created it.
func (c *Client) spentOutput(cache *txCache, vin btcjson.Vin) ([]string, *btcjson.TxRawResult, error) {
	prev, err := cache.get(vin.Txid)
	if err != nil {
		return nil, nil, err
	}
	for _, out := range prev.Vout {
		if out.N == vin.Vout {
			addrs, err := c.outputAddresses(out)
			return addrs, prev, err
		}
	}
	return nil, nil, fmt.Errorf("%w: output %s:%d not found", ErrUnexpectedResponse, vin.Txid, vin.Vout)
}

// Confirmations is the number of blocks confirming unit, 0 while unconfirmed.
func (c *Client) Confirmations(ctx context.Context, unit string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	tx, err := c.newTxCache().get(unit)
	if err != nil {
		return 0, err
	}
	return int64(tx.Confirmations), nil
}

// Authors returns the distinct addresses whose outputs unit spends.
func (c *Client) Authors(ctx context.Context, unit string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cache := c.newTxCache()
	tx, err := cache.get(unit)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var authors []string
	for _, vin := range tx.Vin {
		if vin.IsCoinBase() {
			continue
		}
		addrs, _, err := c.spentOutput(cache, vin)
		if err != nil {
			return nil, err
		}
		for _, a := range addrs {
			if _, ok := seen[a]; !ok {
				seen[a] = struct{}{}
				authors = append(authors, a)
			}
		}
	}
	return authors, nil
}

// InputSources lists the inputs of units with the height of the unit each
// input comes from.
func (c *Client) InputSources(ctx context.Context, units []string) ([]InputSource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	best, err := c.node.GetBlockCount()
	if err != nil {
		return nil, fmt.Errorf("failed to get block count: %w", err)
	}

	cache := c.newTxCache()
	var sources []InputSource
	for _, unit := range units {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tx, err := cache.get(unit)
		if err != nil {
			return nil, err
		}
		for _, vin := range tx.Vin {
			if vin.IsCoinBase() {
				continue
			}
			addrs, prev, err := c.spentOutput(cache, vin)
			if err != nil {
				return nil, err
			}
			var mci int64
			if prev.Confirmations > 0 {
				mci = best - int64(prev.Confirmations) + 1
			}
			for _, a := range addrs {
				sources = append(sources, InputSource{Address: a, SrcUnit: vin.Txid, MCI: mci})
			}
		}
	}
	return sources, nil
}

func (c *Client) payToScript(address string) ([]byte, error) {
	addr, err := btcutil.DecodeAddress(address, c.params)
	if err != nil {
		return nil, fmt.Errorf("invalid address %s: %w", address, err)
	}
	return txscript.PayToAddrScript(addr)
}

func (c *Client) signAndSend(tx *wire.MsgTx) (string, error) {
	signed, complete, err := c.node.SignRawTransactionWithWallet(tx)
	if err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}
	if !complete {
		return "", fmt.Errorf("%w: wallet could not sign every input", ErrNotWalletAddress)
	}
	hash, err := c.node.SendRawTransaction(signed, false)
	if err != nil {
		return "", fmt.Errorf("failed to broadcast transaction: %w", err)
	}
	return hash.String(), nil
}

func (c *Client) spend(ctx context.Context, from string, outputs []*wire.TxOut) (string, error) {
	c.spendMu.Lock()
	defer c.spendMu.Unlock()

	coins, err := c.unspent(ctx, 0, from)
	if err != nil {
		return "", err
	}
	change, err := c.payToScript(from)
	if err != nil {
		return "", err
	}
	tx, err := buildSpend(coins, outputs, change, c.feeRate)
	if err != nil {
		return "", err
	}
	return c.signAndSend(tx)
}

// PostAttestation anchors sha256(payload) in an OP_RETURN output of a
// transaction paid by from.
func (c *Client) PostAttestation(ctx context.Context, from, payload string) (string, error) {
	script, err := attestationScript(payload)
	if err != nil {
		return "", err
	}
	return c.spend(ctx, from, []*wire.TxOut{wire.NewTxOut(0, script)})
}

func (c *Client) SendPayment(ctx context.Context, from, to string, amount int64) (string, error) {
	script, err := c.payToScript(to)
	if err != nil {
		return "", err
	}
	return c.spend(ctx, from, []*wire.TxOut{wire.NewTxOut(amount, script)})
}

// SweepAll moves every confirmed coin of from to the address to.
func (c *Client) SweepAll(ctx context.Context, from []string, to string) (string, error) {
	if len(from) == 0 {
		return "", ErrNothingToSweep
	}

	c.spendMu.Lock()
	defer c.spendMu.Unlock()

	coins, err := c.unspent(ctx, 1, from...)
	if err != nil {
		return "", err
	}
	script, err := c.payToScript(to)
	if err != nil {
		return "", err
	}
	tx, err := buildSweep(coins, script, c.feeRate)
	if err != nil {
		return "", err
	}
	return c.signAndSend(tx)
}
