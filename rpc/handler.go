package rpc

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tolelom/tolbattle/core"
	"github.com/tolelom/tolbattle/crypto"
	"github.com/tolelom/tolbattle/indexer"
	"github.com/tolelom/tolbattle/vm"
	"github.com/tolelom/tolbattle/vm/modules/battle"
)

// Handler holds all dependencies needed to serve RPC methods.
type Handler struct {
	exec    *vm.Executor
	indexer *indexer.Indexer
	chainID string // expected chain_id; used to reject cross-chain replay transactions
}

// NewHandler creates an RPC Handler. All state access goes through exec so
// reads never interleave with a transaction in flight. idx may be nil, which
// disables the history methods.
func NewHandler(exec *vm.Executor, idx *indexer.Indexer, chainID string) *Handler {
	return &Handler{exec: exec, indexer: idx, chainID: chainID}
}

// Dispatch routes an RPC request to the correct method.
func (h *Handler) Dispatch(req Request) Response {
	switch req.Method {
	case "getStateRoot":
		return h.getStateRoot(req)

	case "getProgramID":
		return okResponse(req.ID, battle.ProgramID.Hex())

	case "getAccount":
		return h.getAccount(req)

	case "getPlayer":
		return h.getPlayer(req)

	case "getBattlefield":
		return h.getBattlefield(req)

	case "getReceipt":
		return h.getReceipt(req)

	case "getBattleHistory":
		return h.getBattleHistory(req)

	case "getPlayerCommits":
		return h.getPlayerCommits(req)

	case "sendTx":
		return h.sendTx(req)

	default:
		return errResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("method %q not found", req.Method))
	}
}

func (h *Handler) getStateRoot(req Request) Response {
	var root string
	_ = h.exec.View(func(st core.State) error {
		root = st.ComputeRoot()
		return nil
	})
	return okResponse(req.ID, map[string]string{"root": root, "chain_id": h.chainID})
}

// loadAccount decodes an {"address": hex} param and fetches the account.
func (h *Handler) loadAccount(req Request) (*core.Account, *Error) {
	addr, rpcErr := addressParam(req)
	if rpcErr != nil {
		return nil, rpcErr
	}
	var acc *core.Account
	err := h.exec.View(func(st core.State) error {
		var err error
		acc, err = st.GetAccount(addr)
		return err
	})
	if errors.Is(err, core.ErrNotFound) {
		return nil, &Error{Code: CodeNotFound, Message: fmt.Sprintf("account %s not found", addr)}
	}
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: err.Error()}
	}
	return acc, nil
}

func (h *Handler) getAccount(req Request) Response {
	acc, rpcErr := h.loadAccount(req)
	if rpcErr != nil {
		return Response{JSONRPC: "2.0", ID: req.ID, Error: rpcErr}
	}
	return okResponse(req.ID, acc)
}

func (h *Handler) getPlayer(req Request) Response {
	acc, rpcErr := h.loadAccount(req)
	if rpcErr != nil {
		return Response{JSONRPC: "2.0", ID: req.ID, Error: rpcErr}
	}
	p, err := battle.DecodePlayer(acc.Data)
	if err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	return okResponse(req.ID, PlayerView{
		Address:  acc.Address.Hex(),
		Capacity: len(acc.Data),
		ID:       p.ID,
		Owner:    p.Owner.Hex(),
		Energy:   p.Energy,
		Troops:   p.Troops,
	})
}

func (h *Handler) getBattlefield(req Request) Response {
	acc, rpcErr := h.loadAccount(req)
	if rpcErr != nil {
		return Response{JSONRPC: "2.0", ID: req.ID, Error: rpcErr}
	}
	bf, err := battle.DecodeBattleField(acc.Data)
	if err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	return okResponse(req.ID, BattlefieldView{
		Address:       acc.Address.Hex(),
		Capacity:      len(acc.Data),
		ID:            bf.ID,
		Player1:       bf.Player1.Hex(),
		Player2:       bf.Player2.Hex(),
		Player1Troops: bf.Player1Troops,
		Player2Troops: bf.Player2Troops,
	})
}

func (h *Handler) getReceipt(req Request) Response {
	var params struct {
		TxID string `json:"tx_id"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if params.TxID == "" {
		return errResponse(req.ID, CodeInvalidParams, "tx_id is required")
	}
	var r *core.Receipt
	err := h.exec.View(func(st core.State) error {
		var err error
		r, err = st.GetReceipt(params.TxID)
		return err
	})
	if errors.Is(err, core.ErrNotFound) {
		return errResponse(req.ID, CodeNotFound, "receipt not found")
	}
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, r)
}

// addressParam decodes an {"address": hex} param.
func addressParam(req Request) (crypto.Pubkey, *Error) {
	var params struct {
		Address string `json:"address"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return crypto.Pubkey{}, &Error{Code: CodeInvalidParams, Message: "params: " + err.Error()}
	}
	if params.Address == "" {
		return crypto.Pubkey{}, &Error{Code: CodeInvalidParams, Message: "address is required"}
	}
	addr, err := crypto.PubkeyFromHex(params.Address)
	if err != nil {
		return crypto.Pubkey{}, &Error{Code: CodeInvalidParams, Message: err.Error()}
	}
	return addr, nil
}

func (h *Handler) getBattleHistory(req Request) Response {
	if h.indexer == nil {
		return errResponse(req.ID, CodeMethodNotFound, "history index disabled")
	}
	addr, rpcErr := addressParam(req)
	if rpcErr != nil {
		return Response{JSONRPC: "2.0", ID: req.ID, Error: rpcErr}
	}
	records, err := h.indexer.BattleHistory(addr)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	if records == nil {
		records = []indexer.BattleRecord{}
	}
	return okResponse(req.ID, records)
}

func (h *Handler) getPlayerCommits(req Request) Response {
	if h.indexer == nil {
		return errResponse(req.ID, CodeMethodNotFound, "history index disabled")
	}
	addr, rpcErr := addressParam(req)
	if rpcErr != nil {
		return Response{JSONRPC: "2.0", ID: req.ID, Error: rpcErr}
	}
	records, err := h.indexer.PlayerCommits(addr)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	if records == nil {
		records = []indexer.CommitRecord{}
	}
	return okResponse(req.ID, records)
}

func (h *Handler) sendTx(req Request) Response {
	var tx core.Transaction
	if err := json.Unmarshal(req.Params, &tx); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	// Reject transactions destined for a different network to prevent
	// cross-chain replay attacks.
	if tx.ChainID != h.chainID {
		return errResponse(req.ID, CodeInvalidParams,
			fmt.Sprintf("chain ID mismatch: got %q want %q", tx.ChainID, h.chainID))
	}
	// Recompute the ID server-side; do not trust the client-provided value.
	tx.ID = tx.Hash()
	receipt, err := h.exec.Apply(&tx)
	if err != nil {
		return errResponse(req.ID, CodeTxRejected, err.Error())
	}
	return okResponse(req.ID, receipt)
}
