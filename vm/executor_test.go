package vm

import (
	"bytes"
	"errors"
	"sync"
	"testing"

	"github.com/tolelom/tolbattle/core"
	"github.com/tolelom/tolbattle/crypto"
	"github.com/tolelom/tolbattle/events"
	"github.com/tolelom/tolbattle/internal/testutil"
	"github.com/tolelom/tolbattle/storage"
)

var (
	progInc    = crypto.DeriveAddress("test", "inc")
	progFail   = crypto.DeriveAddress("test", "fail")
	progResize = crypto.DeriveAddress("test", "resize")

	errBoom = errors.New("boom")
)

const chain = "vm-test"

func testRegistry() *Registry {
	r := NewRegistry()
	// inc bumps the first byte of every account and reports it
	r.Register(progInc, func(ctx *Context, data []byte) error {
		for _, acc := range ctx.Accounts {
			acc.Data[0]++
		}
		ctx.Emit(events.Event{Type: events.EventTroopsCommitted, Data: map[string]any{"n": len(ctx.Accounts)}})
		return nil
	})
	// fail mutates its copies, queues an event, then errors
	r.Register(progFail, func(ctx *Context, data []byte) error {
		for _, acc := range ctx.Accounts {
			acc.Data[0] = 0xff
		}
		ctx.Emit(events.Event{Type: events.EventTroopsCommitted})
		return errBoom
	})
	r.Register(progResize, func(ctx *Context, data []byte) error {
		ctx.Accounts[0].Data = append(ctx.Accounts[0].Data, 1)
		return nil
	})
	return r
}

type harness struct {
	db    *testutil.MemDB
	state core.State
	exec  *Executor
	seen  []events.Event
	key   crypto.PrivateKey
	addrs []crypto.Pubkey
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{db: testutil.NewMemDB()}
	h.state = storage.NewStateDB(h.db)
	em := events.NewEmitter()
	em.SubscribeAll(func(ev events.Event) { h.seen = append(h.seen, ev) })
	h.exec = NewExecutor(h.state, em, Options{ChainID: chain, Registry: testRegistry()})

	priv, _, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	h.key = priv
	for _, name := range []string{"a", "b"} {
		addr := crypto.DeriveAddress("acct", name)
		h.addrs = append(h.addrs, addr)
		if err := h.state.SetAccount(&core.Account{Address: addr, Owner: progInc, Data: []byte{1, 2, 3}}); err != nil {
			t.Fatal(err)
		}
	}
	if err := h.state.Commit(); err != nil {
		t.Fatal(err)
	}
	return h
}

func (h *harness) tx(program crypto.Pubkey, accounts ...crypto.Pubkey) *core.Transaction {
	if accounts == nil {
		accounts = h.addrs
	}
	tx := core.NewTransaction(chain, program, h.key.Public(), accounts, []byte{1})
	tx.Sign(h.key)
	return tx
}

func (h *harness) data(t *testing.T, i int) []byte {
	t.Helper()
	acc, err := h.state.GetAccount(h.addrs[i])
	if err != nil {
		t.Fatal(err)
	}
	return acc.Data
}

func TestApplyCommits(t *testing.T) {
	h := newHarness(t)
	tx := h.tx(progInc)
	receipt, err := h.exec.Apply(tx)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if receipt.TxID != tx.ID || receipt.ProgramID != progInc {
		t.Errorf("receipt = %+v", receipt)
	}
	for i := range h.addrs {
		if got := h.data(t, i); !bytes.Equal(got, []byte{2, 2, 3}) {
			t.Errorf("account %d = %v", i, got)
		}
	}
	// persisted, not just buffered
	fresh := storage.NewStateDB(h.db)
	if _, err := fresh.GetReceipt(tx.ID); err != nil {
		t.Errorf("receipt not committed: %v", err)
	}
	if len(h.seen) != 2 || h.seen[0].Type != events.EventTroopsCommitted || h.seen[1].Type != events.EventTxExecuted {
		t.Errorf("events = %+v", h.seen)
	}
	if h.seen[0].TxID != tx.ID {
		t.Errorf("program event not stamped with tx id")
	}
}

func TestApplyFailureLeavesStateUntouched(t *testing.T) {
	h := newHarness(t)
	before := h.state.ComputeRoot()

	_, err := h.exec.Apply(h.tx(progFail))
	if !errors.Is(err, errBoom) {
		t.Fatalf("got %v want errBoom", err)
	}
	if h.state.ComputeRoot() != before {
		t.Error("failed tx changed the state root")
	}
	if got := h.data(t, 0); !bytes.Equal(got, []byte{1, 2, 3}) {
		t.Errorf("account mutated: %v", got)
	}
	if len(h.seen) != 0 {
		t.Errorf("events published for a failed tx: %+v", h.seen)
	}
}

func TestApplyRejections(t *testing.T) {
	h := newHarness(t)

	replayed := h.tx(progInc)
	if _, err := h.exec.Apply(replayed); err != nil {
		t.Fatal(err)
	}

	unsigned := h.tx(progInc)
	unsigned.Signature = ""

	tampered := h.tx(progInc)
	tampered.Data = []byte{2}

	wrongChain := core.NewTransaction("elsewhere", progInc, h.key.Public(), h.addrs, nil)
	wrongChain.Sign(h.key)

	cases := []struct {
		name string
		tx   *core.Transaction
		is   error
	}{
		{"replay", replayed, ErrReplay},
		{"unsigned", unsigned, crypto.ErrBadSignature},
		{"tampered", tampered, crypto.ErrBadSignature},
		{"wrong chain", wrongChain, nil},
		{"duplicate account", h.tx(progInc, h.addrs[0], h.addrs[0]), nil},
		{"missing account", h.tx(progInc, crypto.DeriveAddress("ghost")), core.ErrNotFound},
		{"unknown program", h.tx(crypto.DeriveAddress("nope")), nil},
		{"resize", h.tx(progResize), nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			before := h.state.ComputeRoot()
			_, err := h.exec.Apply(tc.tx)
			if err == nil {
				t.Fatal("expected error")
			}
			if tc.is != nil && !errors.Is(err, tc.is) {
				t.Errorf("got %v want %v", err, tc.is)
			}
			if h.state.ComputeRoot() != before {
				t.Error("rejected tx changed state")
			}
		})
	}
}

func TestApplyCommitFailure(t *testing.T) {
	h := newHarness(t)
	h.db.FailWrites = true
	if _, err := h.exec.Apply(h.tx(progInc)); err == nil {
		t.Fatal("expected commit error")
	}
	h.db.FailWrites = false
	if got := h.data(t, 0); !bytes.Equal(got, []byte{1, 2, 3}) {
		t.Errorf("buffered writes survived a failed commit: %v", got)
	}
	if len(h.seen) != 0 {
		t.Errorf("events published for an uncommitted tx: %+v", h.seen)
	}
}

func TestExecuteTxLeavesCommitToCaller(t *testing.T) {
	h := newHarness(t)
	tx := h.tx(progInc)
	if _, err := h.exec.ExecuteTx(tx); err != nil {
		t.Fatal(err)
	}
	if got := h.data(t, 0); got[0] != 2 {
		t.Errorf("buffered state = %v", got)
	}
	if _, err := storage.NewStateDB(h.db).GetReceipt(tx.ID); err == nil {
		t.Error("ExecuteTx must not commit")
	}
	if len(h.seen) != 2 {
		t.Errorf("events = %+v", h.seen)
	}
}

func TestExecuteTxReleasesSnapshot(t *testing.T) {
	h := newHarness(t)
	if _, err := h.exec.ExecuteTx(h.tx(progInc)); err != nil {
		t.Fatal(err)
	}
	id, err := h.state.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	if id != 0 {
		t.Errorf("next snapshot id = %d, want 0 (a snapshot was left behind)", id)
	}
}

func TestExecuteTxConcurrentWithView(t *testing.T) {
	h := newHarness(t)
	const n = 16
	var wg sync.WaitGroup
	errs := make(chan error, 2*n)
	for i := 0; i < n; i++ {
		tx := core.NewTransaction(chain, progInc, h.key.Public(), h.addrs, []byte{byte(i)})
		tx.Sign(h.key)
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := h.exec.ExecuteTx(tx); err != nil {
				errs <- err
			}
		}()
		go func() {
			defer wg.Done()
			errs <- h.exec.View(func(st core.State) error {
				_, err := st.Accounts()
				return err
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatal(err)
		}
	}
	if got := h.data(t, 0); got[0] != 1+n {
		t.Errorf("first byte = %d, want %d", got[0], 1+n)
	}
}

func TestRegistryDuplicatePanics(t *testing.T) {
	r := NewRegistry()
	r.Register(progInc, func(*Context, []byte) error { return nil })
	defer func() {
		if recover() == nil {
			t.Error("duplicate Register should panic")
		}
	}()
	r.Register(progInc, func(*Context, []byte) error { return nil })
}
