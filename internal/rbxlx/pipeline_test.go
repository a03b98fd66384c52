package rbxlx

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mshq-dev/oraclectl/internal/cache"
	"github.com/mshq-dev/oraclectl/internal/oracle"
	"github.com/mshq-dev/oraclectl/internal/testutil/testlog"
)

type fakeSubmitter struct {
	mu   sync.Mutex
	reqs []*oracle.Request
}

func (f *fakeSubmitter) Submit(r *oracle.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, r)
}

func (f *fakeSubmitter) requests() []*oracle.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*oracle.Request, len(f.reqs))
	copy(out, f.reqs)
	return out
}

func (f *fakeSubmitter) waitRequests(t *testing.T, n int) []*oracle.Request {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if reqs := f.requests(); len(reqs) >= n {
			return reqs
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d submissions", n)
	return nil
}

func startProcess(t *testing.T, doc string, cfg Config) (*bytes.Buffer, chan error) {
	t.Helper()
	var buf bytes.Buffer
	errCh := make(chan error, 1)
	go func() {
		errCh <- Process(context.Background(), strings.NewReader(doc), &buf, cfg)
	}()
	return &buf, errCh
}

func finish(t *testing.T, errCh chan error) error {
	t.Helper()
	select {
	case err := <-errCh:
		return err
	case <-time.After(5 * time.Second):
		t.Fatalf("pipeline did not finish")
		return nil
	}
}

func TestProcessDecompilesSingleNode(t *testing.T) {
	testlog.Start(t)
	sub := &fakeSubmitter{}
	doc := "<r><s><![CDATA[-- Bytecode (Base64):\n-- QUJD\n\n]]></s></r>"
	buf, errCh := startProcess(t, doc, Config{Client: sub})

	reqs := sub.waitRequests(t, 1)
	if reqs[0].Payload != "QUJD" {
		t.Fatalf("unexpected payload %q", reqs[0].Payload)
	}
	reqs[0].Resolve(oracle.Outcome{Source: "print(1)"})

	if err := finish(t, errCh); err != nil {
		t.Fatalf("process: %v", err)
	}
	want := "<r><s><![CDATA[-- Bytecode (Base64):\n-- QUJD\n\n-- decompilation:\nprint(1)\n]]></s></r>"
	if buf.String() != want {
		t.Fatalf("output mismatch:\n got %q\nwant %q", buf.String(), want)
	}
}

func TestProcessKeepsHeaderAndDropsStaleSource(t *testing.T) {
	testlog.Start(t)
	sub := &fakeSubmitter{}
	doc := "<s><![CDATA[-- watermark line\n-- Bytecode (Base64):\n-- QUJD\n\n-- decompilation:\nstale()\n]]></s>"
	buf, errCh := startProcess(t, doc, Config{Client: sub})

	reqs := sub.waitRequests(t, 1)
	reqs[0].Resolve(oracle.Outcome{Source: "fresh()"})

	if err := finish(t, errCh); err != nil {
		t.Fatalf("process: %v", err)
	}
	want := "<s><![CDATA[-- watermark line\n-- Bytecode (Base64):\n-- QUJD\n\n-- decompilation:\nfresh()\n]]></s>"
	if buf.String() != want {
		t.Fatalf("output mismatch:\n got %q\nwant %q", buf.String(), want)
	}
}

func TestProcessWritesFailureMarker(t *testing.T) {
	testlog.Start(t)
	sub := &fakeSubmitter{}
	doc := "<s><![CDATA[-- Bytecode (Base64):\n-- QUJD\n]]></s>"
	buf, errCh := startProcess(t, doc, Config{Client: sub})

	reqs := sub.waitRequests(t, 1)
	reqs[0].Resolve(oracle.Outcome{Err: &textError{"upvalue count mismatch"}})

	if err := finish(t, errCh); err != nil {
		t.Fatalf("process: %v", err)
	}
	want := "<s><![CDATA[-- Bytecode (Base64):\n-- QUJD\n\n-- decompilation failed:\n-- upvalue count mismatch\n]]></s>"
	if buf.String() != want {
		t.Fatalf("output mismatch:\n got %q\nwant %q", buf.String(), want)
	}
}

func TestProcessPassesThroughNodesWithoutMarker(t *testing.T) {
	testlog.Start(t)
	sub := &fakeSubmitter{}
	doc := `<r><s><![CDATA[print("plain source")]]></s><v><![CDATA[1.5,0,3]]></v></r>`
	buf, errCh := startProcess(t, doc, Config{Client: sub})

	if err := finish(t, errCh); err != nil {
		t.Fatalf("process: %v", err)
	}
	if buf.String() != doc {
		t.Fatalf("document altered:\n got %q\nwant %q", buf.String(), doc)
	}
	if len(sub.requests()) != 0 {
		t.Fatalf("no submissions expected, got %d", len(sub.requests()))
	}
}

func TestProcessPreservesDocumentOrderUnderOutOfOrderCompletion(t *testing.T) {
	testlog.Start(t)
	sub := &fakeSubmitter{}
	doc := "<r>" +
		"<a><![CDATA[-- Bytecode (Base64):\n-- QUJD\n]]></a>" +
		"<b><![CDATA[-- Bytecode (Base64):\n-- REVG\n]]></b>" +
		"</r>"
	buf, errCh := startProcess(t, doc, Config{Client: sub})

	reqs := sub.waitRequests(t, 2)
	// the later node completes first
	reqs[1].Resolve(oracle.Outcome{Source: "second()"})
	time.Sleep(20 * time.Millisecond)
	reqs[0].Resolve(oracle.Outcome{Source: "first()"})

	if err := finish(t, errCh); err != nil {
		t.Fatalf("process: %v", err)
	}
	out := buf.String()
	first := strings.Index(out, "first()")
	second := strings.Index(out, "second()")
	if first < 0 || second < 0 || first > second {
		t.Fatalf("resolutions out of document order:\n%s", out)
	}
}

func TestProcessServesFromCache(t *testing.T) {
	testlog.Start(t)
	sub := &fakeSubmitter{}
	mem := cache.NewMemory()
	if err := mem.Put(context.Background(), oracle.Fingerprint("QUJD"), "cached()"); err != nil {
		t.Fatalf("seed cache: %v", err)
	}
	doc := "<s><![CDATA[-- Bytecode (Base64):\n-- QUJD\n]]></s>"
	buf, errCh := startProcess(t, doc, Config{Client: sub, Cache: mem})

	if err := finish(t, errCh); err != nil {
		t.Fatalf("process: %v", err)
	}
	want := "<s><![CDATA[-- Bytecode (Base64):\n-- QUJD\n\n-- decompilation:\ncached()\n]]></s>"
	if buf.String() != want {
		t.Fatalf("output mismatch:\n got %q\nwant %q", buf.String(), want)
	}
	if len(sub.requests()) != 0 {
		t.Fatalf("cache hit should not reach the client")
	}
}

func TestProcessStoresSuccessesInCache(t *testing.T) {
	testlog.Start(t)
	sub := &fakeSubmitter{}
	mem := cache.NewMemory()
	doc := "<s><![CDATA[-- Bytecode (Base64):\n-- QUJD\n]]></s>"
	_, errCh := startProcess(t, doc, Config{Client: sub, Cache: mem})

	reqs := sub.waitRequests(t, 1)
	reqs[0].Resolve(oracle.Outcome{Source: "print(1)"})

	if err := finish(t, errCh); err != nil {
		t.Fatalf("process: %v", err)
	}
	src, ok, err := mem.Get(context.Background(), oracle.Fingerprint("QUJD"))
	if err != nil || !ok || src != "print(1)" {
		t.Fatalf("success not cached: (%q,%v,%v)", src, ok, err)
	}
}

func TestProcessCountsDiscoveredAndResolved(t *testing.T) {
	testlog.Start(t)
	sub := &fakeSubmitter{}
	tracker := NewTracker()
	doc := "<r>" +
		"<a><![CDATA[-- Bytecode (Base64):\n-- QUJD\n]]></a>" +
		"<b><![CDATA[no marker here]]></b>" +
		"<c><![CDATA[-- Bytecode (Base64):\n-- REVG\n]]></c>" +
		"</r>"
	_, errCh := startProcess(t, doc, Config{Client: sub, Tracker: tracker})

	reqs := sub.waitRequests(t, 2)
	reqs[0].Resolve(oracle.Outcome{Source: "a()"})
	reqs[1].Resolve(oracle.Outcome{Source: "c()"})

	if err := finish(t, errCh); err != nil {
		t.Fatalf("process: %v", err)
	}
	discovered, resolved, done := tracker.Snapshot()
	if discovered != 2 || resolved != 2 || !done {
		t.Fatalf("unexpected tracker state: discovered=%d resolved=%d done=%v", discovered, resolved, done)
	}
}

func TestProcessReportsScanErrors(t *testing.T) {
	testlog.Start(t)
	sub := &fakeSubmitter{}
	_, errCh := startProcess(t, "<x><![CDATA[never closed", Config{Client: sub})
	if err := finish(t, errCh); err == nil {
		t.Fatalf("expected scan error")
	}
}

// textError keeps failure text byte-exact.
type textError struct{ text string }

func (e *textError) Error() string { return e.text }
