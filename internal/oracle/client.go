// Package oracle is the client side of the remote decompilation service.
//
// One Client owns one persistent websocket connection and multiplexes every
// logical request over it. Identical payloads are coalesced by fingerprint
// into a single network submission, and total outstanding payload bytes are
// held under a fixed budget; requests that would exceed it wait in a deferral
// queue until a response frees space.
package oracle

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mshq-dev/oraclectl/internal/observability"
	"github.com/mshq-dev/oraclectl/internal/protocol"
)

// MaxBytesInFlight caps the sum of payload bytes across all open submissions.
const MaxBytesInFlight = 8 << 20

const submitQueueDepth = 256

var ErrPayloadTooLarge = errors.New("oracle: payload exceeds in-flight limit")

// Conn is the transport surface the client needs. *websocket.Conn satisfies
// it; tests substitute a scripted fake.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Config carries optional client behavior.
type Config struct {
	// Options, when non-nil, is sent as a serverbound options message right
	// after connecting. One of protocol.V1Options or protocol.V2Options.
	Options any

	// OnFatal handles unrecoverable transport failures. The default logs and
	// exits the process: correlating and resubmitting lost in-flight work is
	// not worth it for a one-shot batch tool. Results delivered before the
	// failure stand.
	OnFatal func(error)
}

// Client multiplexes decompilation requests over one connection.
type Client struct {
	conn      Conn
	cfg       Config
	submitCh  chan *Request
	done      chan struct{}
	closeOnce sync.Once
}

// pendingGroup is the set of requests sharing one fingerprint that were sent
// as a single submission, plus that submission's byte cost.
type pendingGroup struct {
	members []*Request
	size    int64
}

type inbound struct {
	data []byte
	err  error
}

// NewClient starts the event loop over an established connection.
func NewClient(conn Conn, cfg Config) *Client {
	if cfg.OnFatal == nil {
		cfg.OnFatal = func(err error) {
			log.Fatal().Err(err).Msg("oracle connection lost")
		}
	}
	c := &Client{
		conn:     conn,
		cfg:      cfg,
		submitCh: make(chan *Request, submitQueueDepth),
		done:     make(chan struct{}),
	}
	go c.run()
	return c
}

// Submit hands a request to the client and returns immediately. The outcome
// arrives only through the request's receipt. Must not be called after Close.
func (c *Client) Submit(r *Request) {
	c.submitCh <- r
}

// DecompileSingle submits one payload and blocks until its outcome arrives.
func (c *Client) DecompileSingle(payload string) (string, error) {
	r := NewRequest(payload)
	c.Submit(r)
	out := <-r.Receipt()
	return out.Source, out.Err
}

// Close marks the submission side finished. The event loop keeps running
// until every pending and deferred request has resolved.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.submitCh)
	})
}

// Wait blocks until the event loop has exited.
func (c *Client) Wait() {
	<-c.done
}

// run is the single owner of all admission state; no other goroutine touches
// the pending map, the deferral queue, or the budget.
func (c *Client) run() {
	defer close(c.done)
	defer c.conn.Close()

	if c.cfg.Options != nil {
		if !c.write(protocol.NewOptions(c.cfg.Options)) {
			return
		}
	}

	reads := make(chan inbound)
	go c.readLoop(reads)

	pending := make(map[string]*pendingGroup)
	var deferred []*Request
	var inFlight int64
	submits := c.submitCh

	for {
		if submits == nil && len(pending) == 0 && len(deferred) == 0 {
			return
		}

		select {
		case in := <-reads:
			if in.err != nil {
				c.cfg.OnFatal(fmt.Errorf("oracle: connection failed: %w", in.err))
				return
			}
			res, err := protocol.DecodeClientbound(in.data)
			if err != nil {
				log.Warn().Err(err).Msg("ignoring unrecognized server message")
				continue
			}
			group, ok := pending[res.InputHash]
			if !ok {
				log.Warn().Str("input_hash", res.InputHash).Msg("result for unknown fingerprint")
				continue
			}
			delete(pending, res.InputHash)
			inFlight -= group.size
			observability.SetInFlightBytes(inFlight)

			outcome := Outcome{Source: res.Data}
			if !res.Success {
				outcome = Outcome{Err: errors.New(res.Data)}
			}
			// identical bytecode yields identical source: every member of the
			// group gets the same outcome
			for _, m := range group.members {
				m.Resolve(outcome)
			}

			// budget freed: admit deferred requests in arrival order, keeping
			// whatever still does not fit
			kept := deferred[:0]
			for _, r := range deferred {
				if g, open := pending[r.Fingerprint]; open {
					g.members = append(g.members, r)
					continue
				}
				if inFlight+r.Size > MaxBytesInFlight {
					kept = append(kept, r)
					continue
				}
				if !c.write(protocol.NewDecompile(r.Payload)) {
					return
				}
				pending[r.Fingerprint] = &pendingGroup{members: []*Request{r}, size: r.Size}
				inFlight += r.Size
				observability.SetInFlightBytes(inFlight)
			}
			deferred = kept

		case r, ok := <-submits:
			if !ok {
				submits = nil
				continue
			}
			if g, open := pending[r.Fingerprint]; open {
				g.members = append(g.members, r)
				continue
			}
			if r.Size > MaxBytesInFlight {
				r.Resolve(Outcome{Err: fmt.Errorf("%w: %.2f MiB exceeds %d MiB limit",
					ErrPayloadTooLarge, float64(r.Size)/(1<<20), MaxBytesInFlight>>20)})
				continue
			}
			if inFlight+r.Size > MaxBytesInFlight {
				deferred = append(deferred, r)
				continue
			}
			if !c.write(protocol.NewDecompile(r.Payload)) {
				return
			}
			pending[r.Fingerprint] = &pendingGroup{members: []*Request{r}, size: r.Size}
			inFlight += r.Size
			observability.SetInFlightBytes(inFlight)
		}
	}
}

func (c *Client) write(msg any) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		c.cfg.OnFatal(fmt.Errorf("oracle: encode message: %w", err))
		return false
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.cfg.OnFatal(fmt.Errorf("oracle: websocket send failed: %w", err))
		return false
	}
	return true
}

func (c *Client) readLoop(out chan<- inbound) {
	for {
		_, data, err := c.conn.ReadMessage()
		select {
		case out <- inbound{data: data, err: err}:
		case <-c.done:
			return
		}
		if err != nil {
			return
		}
	}
}
