package ws

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/dohr-michael/lumi/internal/events"
	"github.com/dohr-michael/lumi/internal/interaction"
)

const peerQueueSize = 256

// Session is the controller surface exposed to renderers.
type Session interface {
	ActivateOrb() interaction.Outcome
	SubmitText(text string) interaction.Outcome
	SelectFile(path string) interaction.Outcome
	ClearDocument() interaction.Outcome
	Snapshot() interaction.Snapshot
}

var errInvalidParams = errors.New("invalid params")

type handler func(Session, Frame) (any, error)

func outcome(o interaction.Outcome) OutcomeResult {
	return OutcomeResult{Outcome: o.String()}
}

var methods = map[Method]handler{
	MethodActivateOrb: func(s Session, _ Frame) (any, error) {
		return outcome(s.ActivateOrb()), nil
	},
	MethodSubmitText: func(s Session, f Frame) (any, error) {
		var p SubmitTextParams
		if err := f.Decode(&p); err != nil {
			return nil, errInvalidParams
		}
		return outcome(s.SubmitText(p.Text)), nil
	},
	MethodSelectFile: func(s Session, f Frame) (any, error) {
		var p SelectFileParams
		if err := f.Decode(&p); err != nil {
			return nil, errInvalidParams
		}
		return outcome(s.SelectFile(p.Path)), nil
	},
	MethodClearDocument: func(s Session, _ Frame) (any, error) {
		return outcome(s.ClearDocument()), nil
	},
	MethodSnapshot: func(s Session, _ Frame) (any, error) {
		return s.Snapshot(), nil
	},
}

// Hub fans bus events out to connected renderers and routes their
// requests to the session. A renderer that cannot keep up is disconnected
// rather than silently missing transcript events; on reconnect it gets a
// fresh snapshot.
type Hub struct {
	session     Session
	origins     []string
	unsubscribe func()

	mu    sync.RWMutex
	peers map[*peer]struct{}
}

// NewHub creates a hub fed by bus. Browser connections are accepted only
// from the given origin patterns or from the gateway's own host.
func NewHub(bus *events.Bus, session Session, origins []string) *Hub {
	h := &Hub{
		session: session,
		origins: origins,
		peers:   make(map[*peer]struct{}),
	}
	h.unsubscribe = bus.Subscribe(h.forward)
	return h
}

func (h *Hub) forward(e events.Event) {
	frame, err := NewEventFrame(string(e.Type), e.SessionID, e.Payload)
	if err != nil {
		slog.Error("ws event frame", "type", e.Type, "error", err)
		return
	}
	data, err := MarshalFrame(frame)
	if err != nil {
		slog.Error("ws event frame", "type", e.Type, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for p := range h.peers {
		if p.wants(frame.Event) && !p.push(data) {
			go p.drop("renderer too slow")
		}
	}
}

// attach queues the snapshot and registers p under the same lock, so no
// event can slip between the two.
func (h *Hub) attach(p *peer) {
	h.mu.Lock()
	defer h.mu.Unlock()

	snap := h.session.Snapshot()
	if frame, err := NewEventFrame(EventSnapshot, snap.SessionID, snap); err == nil {
		if data, err := MarshalFrame(frame); err == nil {
			p.push(data)
		}
	}
	h.peers[p] = struct{}{}
	slog.Info("renderer connected", "clients", len(h.peers))
}

func (h *Hub) detach(p *peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.peers[p]; ok {
		delete(h.peers, p)
		slog.Info("renderer disconnected", "clients", len(h.peers))
	}
}

// Clients returns the number of connected renderers.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers)
}

// ServeWS upgrades the request and serves the renderer until it leaves.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.origins,
	})
	if err != nil {
		slog.Warn("ws accept", "origin", r.Header.Get("Origin"), "error", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	p := &peer{conn: conn, out: make(chan []byte, peerQueueSize), cancel: cancel}
	h.attach(p)
	defer h.detach(p)

	go p.writeLoop(ctx)
	h.readLoop(ctx, p)
	conn.Close(websocket.StatusNormalClosure, "")
}

func (h *Hub) readLoop(ctx context.Context, p *peer) {
	for {
		_, data, err := p.conn.Read(ctx)
		if err != nil {
			slog.Debug("ws read ended", "status", websocket.CloseStatus(err), "error", err)
			return
		}
		frame, err := UnmarshalFrame(data)
		if err != nil {
			slog.Warn("ws bad frame", "error", err)
			continue
		}
		if frame.Type != FrameTypeRequest {
			slog.Debug("ws ignored frame", "type", frame.Type)
			continue
		}
		p.reply(h.handle(p, frame))
	}
}

func (h *Hub) handle(p *peer, req Frame) Frame {
	method := Method(req.Method)
	if method == MethodSubscribe {
		var params SubscribeParams
		if err := req.Decode(&params); err != nil {
			return NewErrorFrame(req.ID, errInvalidParams.Error())
		}
		p.setFilter(params.Events)
		return result(req.ID, params)
	}

	fn, ok := methods[method]
	if !ok {
		return NewErrorFrame(req.ID, "unknown method: "+req.Method)
	}
	out, err := fn(h.session, req)
	if err != nil {
		return NewErrorFrame(req.ID, err.Error())
	}
	return result(req.ID, out)
}

func result(id string, v any) Frame {
	f, err := NewResultFrame(id, v)
	if err != nil {
		return NewErrorFrame(id, "encode result: "+err.Error())
	}
	return f
}

// Close disconnects every renderer and stops forwarding events.
func (h *Hub) Close() {
	if h.unsubscribe != nil {
		h.unsubscribe()
	}
	h.mu.Lock()
	peers := make([]*peer, 0, len(h.peers))
	for p := range h.peers {
		peers = append(peers, p)
		delete(h.peers, p)
	}
	h.mu.Unlock()

	for _, p := range peers {
		p.drop("server shutdown")
	}
}

// peer is one connected renderer. filter is nil when it wants every event.
type peer struct {
	conn   *websocket.Conn
	out    chan []byte
	cancel context.CancelFunc

	mu     sync.Mutex
	filter map[string]struct{}
	once   sync.Once
}

func (p *peer) wants(event string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.filter == nil {
		return true
	}
	_, ok := p.filter[event]
	return ok
}

func (p *peer) setFilter(names []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(names) == 0 {
		p.filter = nil
		return
	}
	p.filter = make(map[string]struct{}, len(names))
	for _, n := range names {
		p.filter[n] = struct{}{}
	}
}

// push queues data without blocking and reports whether it fit.
func (p *peer) push(data []byte) bool {
	select {
	case p.out <- data:
		return true
	default:
		return false
	}
}

func (p *peer) reply(f Frame) {
	data, err := MarshalFrame(f)
	if err != nil {
		slog.Error("ws response frame", "id", f.ID, "error", err)
		return
	}
	if !p.push(data) {
		go p.drop("renderer too slow")
	}
}

// drop closes the connection once. The read loop then ends and detaches
// the peer.
func (p *peer) drop(reason string) {
	p.once.Do(func() {
		slog.Warn("dropping renderer", "reason", reason)
		p.conn.Close(websocket.StatusGoingAway, reason)
		p.cancel()
	})
}

func (p *peer) writeLoop(ctx context.Context) {
	for {
		select {
		case data := <-p.out:
			if err := p.conn.Write(ctx, websocket.MessageText, data); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
