package ledger

import (
	"context"
	"time"

	"github.com/Fi44er/email_attestation_bot/utils"
	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

type EventKind int

const (
	EventNewPayment EventKind = iota + 1
	EventPaymentStable
)

type Event struct {
	Kind    EventKind
	Payment Payment
}

// Handler processes one event. Events may be delivered again after a
// restart, so handlers must be idempotent.
type Handler func(ctx context.Context, ev Event) error

type chainSource interface {
	GetBlockCount() (int64, error)
	GetBlockHash(height int64) (*chainhash.Hash, error)
	ListSinceBlockMinConfWatchOnly(blockHash *chainhash.Hash, minConfirms int, watchOnly bool) (*btcjson.ListSinceBlockResult, error)
}

// Watcher polls the wallet for payments it received and reports first
// sightings and payments reaching StableConfirmations.
type Watcher struct {
	src      chainSource
	stable   int64
	interval time.Duration
	logger   *utils.Logger

	anchor   *chainhash.Hash
	reported map[string]bool // key -> stable reported
}

func NewWatcher(c *Client, stableConfirmations int64, interval time.Duration, logger *utils.Logger) *Watcher {
	return newWatcher(c.node, stableConfirmations, interval, logger)
}

func newWatcher(src chainSource, stable int64, interval time.Duration, logger *utils.Logger) *Watcher {
	if stable < 1 {
		stable = 1
	}
	return &Watcher{
		src:      src,
		stable:   stable,
		interval: interval,
		logger:   logger,
		reported: make(map[string]bool),
	}
}

// Run polls until ctx is done. A failed poll is logged and retried on the
// next tick.
func (w *Watcher) Run(ctx context.Context, handle Handler) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if err := w.Poll(ctx, handle); err != nil && ctx.Err() == nil {
			w.logger.Errorf("ledger poll failed: %v", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Poll lists wallet receipts since the anchor block and emits events for
// what changed since the previous poll.
func (w *Watcher) Poll(ctx context.Context, handle Handler) error {
	best, err := w.src.GetBlockCount()
	if err != nil {
		return err
	}
	res, err := w.src.ListSinceBlockMinConfWatchOnly(w.anchor, 1, true)
	if err != nil {
		return err
	}

	payments := aggregate(res.Transactions)
	listed := make(map[string]struct{}, len(payments))
	for _, p := range payments {
		key := p.Unit + ":" + p.Address
		listed[key] = struct{}{}

		stableReported, seen := w.reported[key]
		if !seen {
			if err := handle(ctx, Event{Kind: EventNewPayment, Payment: p}); err != nil {
				w.logger.Errorf("failed to handle payment %s to %s: %v", p.Unit, p.Address, err)
				continue
			}
			w.reported[key] = false
		}
		if !stableReported && p.Confirmations >= w.stable {
			if err := handle(ctx, Event{Kind: EventPaymentStable, Payment: p}); err != nil {
				w.logger.Errorf("failed to handle stable payment %s: %v", p.Unit, err)
				continue
			}
			w.reported[key] = true
		}
	}

	for key := range w.reported {
		if _, ok := listed[key]; !ok {
			delete(w.reported, key)
		}
	}

	// Keep listing from below the blocks whose payments may still be
	// becoming stable.
	if anchorHeight := best - w.stable - 1; anchorHeight > 0 {
		hash, err := w.src.GetBlockHash(anchorHeight)
		if err != nil {
			return err
		}
		w.anchor = hash
	}
	return nil
}

func aggregate(txs []btcjson.ListTransactionsResult) []Payment {
	var payments []Payment
	index := make(map[string]int)
	for _, t := range txs {
		if t.Category != "receive" || t.Confirmations < 0 {
			continue
		}
		amount, err := btcutil.NewAmount(t.Amount)
		if err != nil {
			continue
		}
		key := t.TxID + ":" + t.Address
		if i, ok := index[key]; ok {
			payments[i].Amount += int64(amount)
			continue
		}
		index[key] = len(payments)
		payments = append(payments, Payment{
			Unit:          t.TxID,
			Address:       t.Address,
			Asset:         NativeAsset,
			Amount:        int64(amount),
			Confirmations: t.Confirmations,
		})
	}
	return payments
}
