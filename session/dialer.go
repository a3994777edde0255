package session

import (
	"context"
	"math/rand"
	"net"
	"time"

	"github.com/sirupsen/logrus"
)

// Status reports a Dialer's current connection state, logged the way
// the teacher logs mount/unmount transitions in server.go.
type Status int

const (
	StatusIdle Status = iota
	StatusConnecting
	StatusConnected
	StatusBackoff
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusBackoff:
		return "backoff"
	default:
		return "unknown"
	}
}

// Resolver is the out-of-scope mDNS/Bonjour collaborator spec.md names:
// given a logical peer name it returns candidate addresses, freshest
// first. A *net.Resolver or a static list both satisfy this trivially.
type Resolver interface {
	Resolve(ctx context.Context, name string) ([]string, error)
}

// StaticResolver implements Resolver over a fixed address list, useful
// for tests and for peers configured by IP rather than discovery.
type StaticResolver []string

func (s StaticResolver) Resolve(context.Context, string) ([]string, error) {
	return []string(s), nil
}

// Dialer maintains an outbound connection to one peer, redialing with
// jittered backoff on failure. It tracks two independent persistent
// counters per spec.md §4.E/§8:
//
//   - is_re_contact rises exactly on TCP connects after the first
//     successful TCP connect to this peer — the very first connect a
//     Dialer ever makes is never a re-contact, every one after it is.
//   - is_re_connect is a separate signal tied to the Session reaching
//     StateNormal: the first time this Dialer's peer completes a full
//     handshake it is not a re-connect, every time after that it is,
//     regardless of how many raw TCP connects happened in between.
//
// These are deliberately not derived from each other: a TCP connect
// can re-contact a peer whose session never reached Normal yet (e.g.
// retried through a login failure), and a session can reach Normal
// again on the very first TCP connect of a fresh process.
type Dialer struct {
	PeerName string
	Resolver Resolver
	Dial     func(ctx context.Context, addr string) (net.Conn, error)

	log *logrus.Entry

	attempt int

	everConnected bool
	everNormal    bool
}

// NewDialer builds a Dialer using net.Dialer.DialContext for Dial.
func NewDialer(peerName string, resolver Resolver) *Dialer {
	nd := &net.Dialer{}
	return &Dialer{
		PeerName: peerName,
		Resolver: resolver,
		Dial: func(ctx context.Context, addr string) (net.Conn, error) {
			conn, err := nd.DialContext(ctx, "tcp", addr)
			if err != nil {
				return nil, err
			}
			if err := TuneTCPConn(conn); err != nil {
				conn.Close()
				return nil, err
			}
			return conn, nil
		},
		log: logrus.WithField("peer", peerName),
	}
}

// Connect resolves candidate addresses and tries each in turn. The
// returned isReContact is true unless this is the very first successful
// TCP connect this Dialer has ever made to its peer.
func (d *Dialer) Connect(ctx context.Context) (conn net.Conn, isReContact bool, err error) {
	addrs, err := d.Resolver.Resolve(ctx, d.PeerName)
	if err != nil {
		return nil, false, err
	}
	var lastErr error
	for _, addr := range addrs {
		conn, err := d.Dial(ctx, addr)
		if err == nil {
			d.attempt = 0
			isReContact := d.everConnected
			d.everConnected = true
			d.log.WithField("addr", addr).WithField("re_contact", isReContact).Info("session: connected")
			return conn, isReContact, nil
		}
		lastErr = err
		d.log.WithField("addr", addr).WithError(err).Warn("session: dial failed, trying next candidate")
	}
	d.attempt++
	return nil, false, lastErr
}

// MarkNormalReached records that a Session dialed through this Dialer
// has reached StateNormal, and reports whether this is a re-connect
// (i.e. whether a prior session already reached Normal before it).
func (d *Dialer) MarkNormalReached() (isReConnect bool) {
	isReConnect = d.everNormal
	d.everNormal = true
	return isReConnect
}

// Backoff returns how long to wait before the next Connect attempt:
// exponential growth with +/-20% jitter, never more than 30s, so a fleet
// of peers reconnecting to the same host after an outage doesn't retry
// in lockstep.
func (d *Dialer) Backoff() time.Duration {
	base := time.Second << uint(min(d.attempt, 5))
	jitter := time.Duration(rand.Int63n(int64(base) * 2 / 5))
	wait := base - base/5 + jitter
	if wait > 30*time.Second {
		wait = 30 * time.Second
	}
	return wait
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
