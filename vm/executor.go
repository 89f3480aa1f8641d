package vm

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/tolelom/tolbattle/core"
	"github.com/tolelom/tolbattle/crypto"
	"github.com/tolelom/tolbattle/events"
)

// ErrReplay is returned for a transaction that already has a receipt.
var ErrReplay = errors.New("transaction already executed")

// Context is passed to every Handler. Accounts are private deep copies of
// the transaction's accounts, in transaction order.
type Context struct {
	ProgramID      crypto.Pubkey
	Tx             *core.Transaction
	Accounts       []*core.Account
	StrictAccounts bool

	pending []events.Event
}

// Emit queues ev. Queued events are published only if the transaction commits.
func (c *Context) Emit(ev events.Event) {
	if ev.TxID == "" && c.Tx != nil {
		ev.TxID = c.Tx.ID
	}
	c.pending = append(c.pending, ev)
}

// Options configure an Executor.
type Options struct {
	// ChainID, when set, rejects transactions addressed to another chain.
	ChainID string
	// StrictAccounts is forwarded to programs through Context.
	StrictAccounts bool
	// Registry overrides the global program registry.
	Registry *Registry
}

// Executor applies transactions to the state through the program registry.
type Executor struct {
	mu       sync.Mutex
	state    core.State
	emitter  *events.Emitter
	registry *Registry
	opts     Options
}

// NewExecutor creates an Executor with the given state and event emitter.
// emitter may be nil.
func NewExecutor(state core.State, emitter *events.Emitter, opts Options) *Executor {
	reg := opts.Registry
	if reg == nil {
		reg = globalRegistry
	}
	return &Executor{state: state, emitter: emitter, registry: reg, opts: opts}
}

// Apply executes tx and commits the result. Callers are serialized, so two
// transactions never observe each other's uncommitted writes. Events are
// published only after the commit succeeds.
func (e *Executor) Apply(tx *core.Transaction) (*core.Receipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	snapID, err := e.state.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	ctx, receipt, err := e.execute(tx)
	if err != nil {
		// execute already rolled back; this drops the outer snapshot.
		if revertErr := e.state.RevertToSnapshot(snapID); revertErr != nil {
			return nil, fmt.Errorf("%w (revert: %v)", err, revertErr)
		}
		return nil, err
	}
	root := e.state.ComputeRoot()
	if err := e.state.Commit(); err != nil {
		if revertErr := e.state.RevertToSnapshot(snapID); revertErr != nil {
			return nil, fmt.Errorf("commit: %w (revert: %v)", err, revertErr)
		}
		return nil, fmt.Errorf("commit: %w", err)
	}
	log.Printf("[vm] tx %s committed (root %s)", receipt.TxID, root)
	e.publish(ctx)
	return receipt, nil
}

// View runs fn against the state while no transaction is in flight.
func (e *Executor) View(fn func(core.State) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.state)
}

// ExecuteTx verifies and executes a single transaction with snapshot/rollback
// and publishes its events. It does not commit; use Apply for that.
func (e *Executor) ExecuteTx(tx *core.Transaction) (*core.Receipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ctx, receipt, err := e.execute(tx)
	if err != nil {
		return nil, err
	}
	e.publish(ctx)
	return receipt, nil
}

func (e *Executor) execute(tx *core.Transaction) (*Context, *core.Receipt, error) {
	if err := tx.Verify(); err != nil {
		return nil, nil, fmt.Errorf("signature: %w", err)
	}
	if tx.ID != tx.Hash() {
		return nil, nil, errors.New("tx id does not match its body")
	}
	if e.opts.ChainID != "" && tx.ChainID != e.opts.ChainID {
		return nil, nil, fmt.Errorf("chain ID mismatch: got %q want %q", tx.ChainID, e.opts.ChainID)
	}
	if _, err := e.state.GetReceipt(tx.ID); err == nil {
		return nil, nil, fmt.Errorf("tx %s: %w", tx.ID, ErrReplay)
	} else if !errors.Is(err, core.ErrNotFound) {
		return nil, nil, fmt.Errorf("checking receipt %s: %w", tx.ID, err)
	}
	seen := make(map[crypto.Pubkey]bool, len(tx.Accounts))
	for _, addr := range tx.Accounts {
		if seen[addr] {
			return nil, nil, fmt.Errorf("account %s listed twice", addr)
		}
		seen[addr] = true
	}

	snapID, err := e.state.Snapshot()
	if err != nil {
		return nil, nil, fmt.Errorf("snapshot: %w", err)
	}

	ctx, receipt, err := e.applyTx(tx)
	if err != nil {
		if revertErr := e.state.RevertToSnapshot(snapID); revertErr != nil {
			return nil, nil, fmt.Errorf("revert snapshot after tx failure: %w (revert: %v)", err, revertErr)
		}
		return nil, nil, err
	}
	if err := e.state.DiscardSnapshot(snapID); err != nil {
		return nil, nil, fmt.Errorf("release snapshot: %w", err)
	}
	return ctx, receipt, nil
}

func (e *Executor) publish(ctx *Context) {
	if e.emitter == nil {
		return
	}
	for _, ev := range ctx.pending {
		e.emitter.Emit(ev)
	}
	tx := ctx.Tx
	e.emitter.Emit(events.Event{
		Type: events.EventTxExecuted,
		TxID: tx.ID,
		Data: map[string]any{"program_id": tx.ProgramID.Hex(), "signer": tx.Signer.Hex()},
	})
}

// applyTx loads the accounts, runs the program on copies and writes the
// copies back. A program may rewrite Data but never resize or reassign it.
func (e *Executor) applyTx(tx *core.Transaction) (*Context, *core.Receipt, error) {
	originals := make([]*core.Account, len(tx.Accounts))
	working := make([]*core.Account, len(tx.Accounts))
	for i, addr := range tx.Accounts {
		acc, err := e.state.GetAccount(addr)
		if err != nil {
			return nil, nil, fmt.Errorf("account %s: %w", addr, err)
		}
		originals[i] = acc
		working[i] = acc.Clone()
	}

	ctx := &Context{
		ProgramID:      tx.ProgramID,
		Tx:             tx,
		Accounts:       working,
		StrictAccounts: e.opts.StrictAccounts,
	}
	if err := e.registry.Execute(ctx, tx.Data); err != nil {
		return nil, nil, err
	}

	for i, acc := range working {
		orig := originals[i]
		if acc.Address != orig.Address || acc.Owner != orig.Owner || len(acc.Data) != len(orig.Data) {
			return nil, nil, fmt.Errorf("program %s reshaped account %s", tx.ProgramID, orig.Address)
		}
		if err := e.state.SetAccount(acc); err != nil {
			return nil, nil, err
		}
	}

	receipt := &core.Receipt{
		TxID:      tx.ID,
		ProgramID: tx.ProgramID,
		Signer:    tx.Signer,
		Timestamp: tx.Timestamp,
	}
	if err := e.state.SetReceipt(receipt); err != nil {
		return nil, nil, err
	}
	return ctx, receipt, nil
}
