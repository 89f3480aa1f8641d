// Package rpc exposes ledger state and transaction submission via a
// JSON-RPC 2.0 HTTP endpoint, plus a websocket event stream.
package rpc

import "encoding/json"

// Request is a JSON-RPC 2.0 request envelope.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// Response is a JSON-RPC 2.0 response envelope.
type Response struct {
	JSONRPC string `json:"jsonrpc"`
	ID      any    `json:"id"`
	Result  any    `json:"result,omitempty"`
	Error   *Error `json:"error,omitempty"`
}

// Error represents a JSON-RPC error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string { return e.Message }

// Standard JSON-RPC error codes, then server-defined ones.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeUnauthorized   = -32000
	CodeNotFound       = -32001
	CodeTxRejected     = -32002
)

func errResponse(id any, code int, msg string) Response {
	return Response{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &Error{Code: code, Message: msg},
	}
}

func okResponse(id, result any) Response {
	return Response{JSONRPC: "2.0", ID: id, Result: result}
}

// PlayerView is the getPlayer result.
type PlayerView struct {
	Address  string `json:"address"`
	Capacity int    `json:"capacity"`
	ID       uint64 `json:"id"`
	Owner    string `json:"owner"`
	Energy   uint64 `json:"energy"`
	Troops   uint64 `json:"troops"`
}

// BattlefieldView is the getBattlefield result.
type BattlefieldView struct {
	Address       string `json:"address"`
	Capacity      int    `json:"capacity"`
	ID            uint64 `json:"id"`
	Player1       string `json:"player1"`
	Player2       string `json:"player2"`
	Player1Troops uint64 `json:"player1_troops"`
	Player2Troops uint64 `json:"player2_troops"`
}
