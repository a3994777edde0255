package session

import (
	"fmt"

	"github.com/synctree/synctree/wire"
)

// ProtocolVersion is the two-part version spec.md's "ver"/"Rver" records
// exchange before anything else.
type ProtocolVersion struct {
	Major int
	Minor int
}

// CompressedFraming became available starting with version 4: sessions
// negotiating 4 or higher may switch to length-prefixed framing instead
// of the line-oriented one. Both sides still must keep speaking the
// line framing until this negotiation completes.
func (v ProtocolVersion) CompressedFraming() bool { return v.Major >= 4 }

const (
	currentMajor = 4
	currentMinor = 1
)

// Mine is the version this implementation offers.
func Mine() ProtocolVersion { return ProtocolVersion{Major: currentMajor, Minor: currentMinor} }

// Negotiate picks the lower of two offered versions, matching spec.md's
// rule that two peers speak at the older one's level rather than
// failing the handshake over a minor mismatch.
func Negotiate(mine, theirs ProtocolVersion) ProtocolVersion {
	if theirs.Major < mine.Major || (theirs.Major == mine.Major && theirs.Minor < mine.Minor) {
		return theirs
	}
	return mine
}

func EncodeVersion(v ProtocolVersion) wire.Record {
	return wire.New("ver").WithInt("major", int64(v.Major)).WithInt("minor", int64(v.Minor))
}

func DecodeVersion(r wire.Record) (ProtocolVersion, error) {
	major, ok1 := r.GetInt("major")
	minor, ok2 := r.GetInt("minor")
	if !ok1 || !ok2 {
		return ProtocolVersion{}, fmt.Errorf("session: malformed version record %+v", r)
	}
	return ProtocolVersion{Major: int(major), Minor: int(minor)}, nil
}

// Info is the second negotiation stage: who the peer claims to be, the
// allow-mask and encryption stance it's offering, and the "free paths"
// that bypass the allow-mask entirely (spec.md's well-known diagnostic
// and heartbeat subtree, reachable even to an otherwise-locked-down
// peer).
type Info struct {
	WhoIAm     string
	Allow      AllowMask
	Encryption EncryptionPolicy
	FreePaths  []string
	DemandLogin bool
}

func EncodeInfo(i Info) wire.Record {
	r := wire.New("info").
		With("who", i.WhoIAm).
		WithInt("allow", int64(i.Allow)).
		WithInt("enc", int64(i.Encryption)).
		With("free", joinPaths(i.FreePaths))
	if i.DemandLogin {
		r = r.With("demand_login", "true")
	}
	return r
}

func DecodeInfo(r wire.Record) Info {
	who, _ := r.Get("who")
	allow, _ := r.GetInt("allow")
	enc, _ := r.GetInt("enc")
	free, _ := r.Get("free")
	demand, _ := r.Get("demand_login")
	return Info{
		WhoIAm:      who,
		Allow:       AllowMask(allow),
		Encryption:  EncryptionPolicy(enc),
		FreePaths:   splitPaths(free),
		DemandLogin: demand == "true",
	}
}

func joinPaths(paths []string) string {
	out := ""
	for i, p := range paths {
		if i > 0 {
			out += ","
		}
		out += p
	}
	return out
}

func splitPaths(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	return out
}

// IsFreePath reports whether path is reachable without login/allow-mask
// checks, per spec.md's Info negotiation.
func IsFreePath(freePaths []string, path string) bool {
	for _, p := range freePaths {
		if p == path {
			return true
		}
	}
	return false
}
