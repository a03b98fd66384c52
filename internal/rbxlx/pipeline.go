package rbxlx

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/mshq-dev/oraclectl/internal/cache"
	"github.com/mshq-dev/oraclectl/internal/observability"
	"github.com/mshq-dev/oraclectl/internal/oracle"
)

// bytecodeMarker announces an encoded payload inside a script node: a marker
// line, then a comment line holding the base64 data.
const bytecodeMarker = "-- Bytecode (Base64):\n-- "

const (
	writeBufferSize = 8 << 20
	taskQueueDepth  = 256
)

// Submitter is the slice of the oracle client the producer needs.
type Submitter interface {
	Submit(*oracle.Request)
}

// Config wires the pipeline's collaborators.
type Config struct {
	Client  Submitter
	Cache   cache.Store
	Tracker *Tracker
}

// task is one ordered unit for the assembler: either verbatim bytes or a
// placeholder whose text is not known until its receipt resolves.
type task struct {
	raw []byte
	ph  *placeholder
}

type placeholder struct {
	header      string
	payload     string
	fingerprint string
	receipt     <-chan oracle.Outcome
}

// Process streams the document from in to out, replacing every recognized
// bytecode node with its decompilation result. Structural order of the
// output always matches the input regardless of completion order.
func Process(ctx context.Context, in io.Reader, out io.Writer, cfg Config) error {
	if cfg.Cache == nil {
		cfg.Cache = cache.Nop{}
	}
	if cfg.Tracker == nil {
		cfg.Tracker = NewTracker()
	}

	tasks := make(chan task, taskQueueDepth)
	assembleErr := make(chan error, 1)
	go func() {
		assembleErr <- assemble(ctx, out, tasks, cfg)
	}()

	produceErr := produce(ctx, in, tasks, cfg)
	close(tasks)

	if err := <-assembleErr; produceErr == nil {
		produceErr = err
	}
	return produceErr
}

// produce walks the document forward, forwarding non-payload events
// unchanged and turning payload nodes into submissions plus placeholders.
// It never waits on decompilation, only on source reads and handoffs.
func produce(ctx context.Context, in io.Reader, tasks chan<- task, cfg Config) error {
	sc := NewScanner(in)
	for {
		ev, err := sc.Next()
		if err == io.EOF {
			cfg.Tracker.MarkProducerDone()
			return nil
		}
		if err != nil {
			return fmt.Errorf("rbxlx: read input: %w", err)
		}

		if !ev.IsCData {
			tasks <- task{raw: ev.Raw}
			continue
		}

		text := string(ev.CData)
		pos := strings.Index(text, bytecodeMarker)
		if pos < 0 {
			// not a script, or one that was already processed
			tasks <- task{raw: rewrapCData(text)}
			continue
		}

		start := pos + len(bytecodeMarker)
		end := len(text)
		if nl := strings.IndexByte(text[start:], '\n'); nl >= 0 {
			end = start + nl
		}
		header := text[:start]
		payload := text[start:end]

		cfg.Tracker.Discover()

		ph := &placeholder{
			header:      header,
			payload:     payload,
			fingerprint: oracle.Fingerprint(payload),
		}
		if src, ok := cacheLookup(ctx, cfg.Cache, ph.fingerprint); ok {
			observability.RecordCacheHit()
			resolved := make(chan oracle.Outcome, 1)
			resolved <- oracle.Outcome{Source: src}
			ph.receipt = resolved
		} else {
			req := oracle.NewRequest(payload)
			cfg.Client.Submit(req)
			ph.receipt = req.Receipt()
		}
		tasks <- task{ph: ph}
	}
}

// assemble is the single serialization point: tasks are written strictly in
// the order the producer emitted them, suspending on each placeholder's
// receipt before moving on.
func assemble(ctx context.Context, out io.Writer, tasks <-chan task, cfg Config) error {
	w := bufio.NewWriterSize(out, writeBufferSize)
	var failed error

	for t := range tasks {
		if failed != nil {
			continue // drain so the producer never blocks
		}
		if t.ph == nil {
			if _, err := w.Write(t.raw); err != nil {
				failed = fmt.Errorf("rbxlx: write output: %w", err)
			}
			continue
		}

		outcome := <-t.ph.receipt
		var body string
		if outcome.Err != nil {
			observability.RecordFailure()
			body = "-- decompilation failed:\n-- " + outcome.Err.Error()
		} else {
			body = "-- decompilation:\n" + outcome.Source
			if err := cfg.Cache.Put(ctx, t.ph.fingerprint, outcome.Source); err != nil {
				log.Warn().Err(err).Msg("result cache write failed")
			}
		}
		content := t.ph.header + t.ph.payload + "\n\n" + body + "\n"
		if _, err := w.Write(rewrapCData(content)); err != nil {
			failed = fmt.Errorf("rbxlx: write output: %w", err)
			continue
		}
		cfg.Tracker.Resolve()
	}

	if failed != nil {
		return failed
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("rbxlx: flush output: %w", err)
	}
	return nil
}

func rewrapCData(content string) []byte {
	raw := make([]byte, 0, len(cdataOpen)+len(content)+len(cdataClose))
	raw = append(raw, cdataOpen...)
	raw = append(raw, content...)
	raw = append(raw, cdataClose...)
	return raw
}

func cacheLookup(ctx context.Context, store cache.Store, fingerprint string) (string, bool) {
	src, ok, err := store.Get(ctx, fingerprint)
	if err != nil {
		log.Warn().Err(err).Msg("result cache read failed")
		return "", false
	}
	return src, ok
}
