package session

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"
)

type recordingBinder struct {
	mu     sync.Mutex
	fluxes []FluxRecord
	events []EventRecord
}

func (b *recordingBinder) ApplyFlux(path string, f FluxRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fluxes = append(b.fluxes, f)
}
func (b *recordingBinder) ApplyEvent(e EventRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
}
func (b *recordingBinder) ApplyAtomicOp(AtomicOpRecord) {}
func (b *recordingBinder) ApplyDestroy(DestroyRecord)   {}

func (b *recordingBinder) fluxCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.fluxes)
}

// loopbackPair returns two connected TCP sockets. Unlike net.Pipe, TCP
// sockets are kernel-buffered, so both handshake sides can write their
// opening record before either has read anything -- matching how a
// real negotiation actually runs over the wire.
func loopbackPair(t *testing.T) (a, b net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	acceptCh := make(chan net.Conn, 1)
	go func() {
		c, _ := ln.Accept()
		acceptCh <- c
	}()
	client, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	server := <-acceptCh
	return server, client
}

func TestHandshakeReachesNormalState(t *testing.T) {
	serverConn, clientConn := loopbackPair(t)
	defer serverConn.Close()
	defer clientConn.Close()

	serverInfo := Info{WhoIAm: "server", Allow: AllowRead | AllowWrite}
	clientInfo := Info{WhoIAm: "client", Allow: AllowRead | AllowWrite | AllowCreate}

	serverSess := New(serverConn, &recordingBinder{}, serverInfo, false)
	clientSess := New(clientConn, &recordingBinder{}, clientInfo, true)

	var wg sync.WaitGroup
	wg.Add(2)
	var serverErr, clientErr error
	go func() { defer wg.Done(); serverErr = serverSess.Handshake(context.Background()) }()
	go func() { defer wg.Done(); clientErr = clientSess.Handshake(context.Background()) }()
	wg.Wait()

	if serverErr != nil {
		t.Fatalf("server handshake: %v", serverErr)
	}
	if clientErr != nil {
		t.Fatalf("client handshake: %v", clientErr)
	}
	if serverSess.State() != StateNormal || clientSess.State() != StateNormal {
		t.Fatalf("expected both sides in Normal state, got %s / %s", serverSess.State(), clientSess.State())
	}
	if serverSess.effectiveAllow != (AllowRead | AllowWrite) {
		t.Fatalf("expected combined allow mask to drop AllowCreate, got %v", serverSess.effectiveAllow)
	}
}

func TestHeartbeatNoEdgeCallbackBeforeReceiveTimeout(t *testing.T) {
	serverConn, clientConn := loopbackPair(t)
	defer serverConn.Close()
	defer clientConn.Close()

	serverSess := New(serverConn, &recordingBinder{}, Info{WhoIAm: "server"}, false)
	clientSess := New(clientConn, &recordingBinder{}, Info{WhoIAm: "client"}, true)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); _ = serverSess.Handshake(context.Background()) }()
	go func() { defer wg.Done(); _ = clientSess.Handshake(context.Background()) }()
	wg.Wait()

	var mu sync.Mutex
	var edges []bool
	clientSess.HeartbeatChanged = func(ok bool) {
		mu.Lock()
		defer mu.Unlock()
		edges = append(edges, ok)
	}

	origNow := timeNow
	defer func() { timeNow = origNow }()

	base := time.Now()
	now := base
	timeNow = func() time.Time { return now }
	clientSess.lastRecvAt = base
	serverSess.lastRecvAt = base

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go serverSess.Serve(ctx)
	go clientSess.Serve(ctx)

	// Push past heartbeatInterval without any traffic: liveness must not
	// flip to not-ok yet (the probe itself is not checked here). heartbeatLoop polls on
	// a real one-second ticker, so give it just over one tick of real
	// wall time to observe the mocked idle duration.
	now = base.Add(heartbeatInterval + time.Second)
	time.Sleep(1200 * time.Millisecond)

	mu.Lock()
	gotEdgesBeforeTimeout := len(edges)
	mu.Unlock()
	if gotEdgesBeforeTimeout != 0 {
		t.Fatalf("expected no heartbeat edge yet at T+1s idle, got %v", edges)
	}
}

func TestFluxDeliveredToBinder(t *testing.T) {
	serverConn, clientConn := loopbackPair(t)
	defer serverConn.Close()
	defer clientConn.Close()

	serverBinder := &recordingBinder{}
	serverSess := New(serverConn, serverBinder, Info{WhoIAm: "server"}, false)
	clientSess := New(clientConn, &recordingBinder{}, Info{WhoIAm: "client"}, true)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); _ = serverSess.Handshake(context.Background()) }()
	go func() { defer wg.Done(); _ = clientSess.Handshake(context.Background()) }()
	wg.Wait()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go serverSess.Serve(ctx)
	go clientSess.Serve(ctx)

	clientSess.QueueFlux(FluxRecord{Path: "/a/b", Type: FluxSubsequent, Blob: []byte("hello")}, "")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if serverBinder.fluxCount() > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if serverBinder.fluxCount() != 1 {
		t.Fatalf("expected server to receive exactly one flux record, got %d", serverBinder.fluxCount())
	}
}
