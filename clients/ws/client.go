// Package ws provides a WebSocket client for the Lumi gateway.
package ws

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/coder/websocket"

	"github.com/dohr-michael/lumi/internal/events"
	wsprotocol "github.com/dohr-michael/lumi/internal/gateway/ws"
	"github.com/dohr-michael/lumi/internal/interaction"
)

// Client is a WebSocket client for the Lumi gateway.
type Client struct {
	conn   *websocket.Conn
	reqSeq uint64
	ctx    context.Context
	cancel context.CancelFunc
}

// Dial connects to the gateway WebSocket endpoint.
func Dial(ctx context.Context, url string) (*Client, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("ws dial: %w", err)
	}

	clientCtx, cancel := context.WithCancel(ctx)

	return &Client{
		conn:   conn,
		ctx:    clientCtx,
		cancel: cancel,
	}, nil
}

// URL builds the gateway WebSocket URL for a host:port address.
func URL(addr string) string {
	return "ws://" + addr + "/api/ws"
}

// ActivateOrb starts a voice interaction on the running shell.
func (c *Client) ActivateOrb() (interaction.Outcome, error) {
	return c.callOutcome(wsprotocol.MethodActivateOrb, nil)
}

// SubmitText sends text as if typed into the shell.
func (c *Client) SubmitText(text string) (interaction.Outcome, error) {
	return c.callOutcome(wsprotocol.MethodSubmitText, wsprotocol.SubmitTextParams{Text: text})
}

// SelectFile uploads the file at path. The path is resolved by the shell.
func (c *Client) SelectFile(path string) (interaction.Outcome, error) {
	return c.callOutcome(wsprotocol.MethodSelectFile, wsprotocol.SelectFileParams{Path: path})
}

// ClearDocument leaves document mode.
func (c *Client) ClearDocument() (interaction.Outcome, error) {
	return c.callOutcome(wsprotocol.MethodClearDocument, nil)
}

// Snapshot fetches the current session state.
func (c *Client) Snapshot() (interaction.Snapshot, error) {
	var snap interaction.Snapshot
	res, err := c.call(wsprotocol.MethodSnapshot, nil)
	if err != nil {
		return snap, err
	}
	if err := res.Decode(&snap); err != nil {
		return snap, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

// Subscribe limits the event frames this connection receives to the given
// types. No types restores every event.
func (c *Client) Subscribe(types ...events.EventType) error {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	_, err := c.call(wsprotocol.MethodSubscribe, wsprotocol.SubscribeParams{Events: names})
	return err
}

func (c *Client) callOutcome(method wsprotocol.Method, params any) (interaction.Outcome, error) {
	res, err := c.call(method, params)
	if err != nil {
		return interaction.Ignored, err
	}
	var out wsprotocol.OutcomeResult
	if err := res.Decode(&out); err != nil {
		return interaction.Ignored, fmt.Errorf("decode outcome: %w", err)
	}
	var o interaction.Outcome
	if err := o.UnmarshalText([]byte(out.Outcome)); err != nil {
		return interaction.Ignored, err
	}
	return o, nil
}

// call sends a request and waits for its response, skipping event frames.
func (c *Client) call(method wsprotocol.Method, params any) (wsprotocol.Frame, error) {
	seq := atomic.AddUint64(&c.reqSeq, 1)
	id := fmt.Sprintf("req-%d", seq)

	frame, err := wsprotocol.NewRequestFrame(id, method, params)
	if err != nil {
		return wsprotocol.Frame{}, err
	}
	data, err := wsprotocol.MarshalFrame(frame)
	if err != nil {
		return wsprotocol.Frame{}, err
	}
	if err := c.conn.Write(c.ctx, websocket.MessageText, data); err != nil {
		return wsprotocol.Frame{}, fmt.Errorf("ws write: %w", err)
	}

	for {
		f, err := c.ReadFrame()
		if err != nil {
			return wsprotocol.Frame{}, err
		}
		if f.Type != wsprotocol.FrameTypeResponse || f.ID != id {
			continue
		}
		return f, f.Err()
	}
}

// ReadFrame reads the next frame from the connection.
func (c *Client) ReadFrame() (wsprotocol.Frame, error) {
	_, data, err := c.conn.Read(c.ctx)
	if err != nil {
		return wsprotocol.Frame{}, err
	}
	return wsprotocol.UnmarshalFrame(data)
}

// Close gracefully closes the connection.
func (c *Client) Close() error {
	c.cancel()
	return c.conn.Close(websocket.StatusNormalClosure, "bye")
}
