package transport

import (
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"

	"github.com/caesar-terminal/amm/internal/fabric"
	"github.com/caesar-terminal/amm/internal/ledger"
)

// FrameType tags a websocket frame.
type FrameType string

const (
	FrameCall      FrameType = "call"
	FrameResult    FrameType = "result"
	FrameSubscribe FrameType = "subscribe"
	FrameNotify    FrameType = "notify"
)

// Frame is the single message shape exchanged between Client and Server.
// ID correlates a call with its result; notify frames carry no ID.
type Frame struct {
	Type FrameType `json:"type"`
	ID   uint64    `json:"id,omitempty"`

	Call   *fabric.Call    `json:"call,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`

	Account      *common.Address      `json:"account,omitempty"`
	Notification *ledger.Notification `json:"notification,omitempty"`
}
