package session

import (
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/synctree/synctree/wire"
)

// LoginStage enumerates the 5-sequence mutual-auth handshake of spec.md
// §4.E, grounded on ArnSync::doCommandLogin's seq 0..4 switch in
// ArnSync.cpp. Kept as an explicit state rather than inferred from
// which records have been seen, matching the teacher's explicit
// connection-state enums in server.go.
type LoginStage int

const (
	LoginNotStarted LoginStage = iota
	LoginSalt1Sent             // seq 0: client -> server
	LoginSalt2Sent             // seq 1: server -> client
	LoginCredentialsSent       // seq 2: client -> server
	LoginServerVerdictSent     // seq 3: server -> client
	LoginVerified              // seq 4: client -> server, both sides agree
	LoginRejected
)

// LoginContextCode is the taxonomy spec.md §8 scenario 6 requires for a
// failed login, replacing a free-text reason string so the application
// can distinguish "retry with different credentials" from "the server
// itself failed mutual verification" without parsing text.
type LoginContextCode int

const (
	LoginContextNone LoginContextCode = iota
	// LoginContextServerDenyRetry: the server rejected the client's
	// credentials (wrong user/password); retrying with corrected
	// credentials may succeed.
	LoginContextServerDenyRetry
	// LoginContextClientDenyServerNotOk: the client accepted the
	// server's stat but the server's swapped-salt verification hash
	// didn't match what the client expected, meaning the peer does not
	// actually know the shared password. Retrying will not help unless
	// the peer itself is fixed.
	LoginContextClientDenyServerNotOk
)

func (c LoginContextCode) String() string {
	switch c {
	case LoginContextServerDenyRetry:
		return "server-deny-retry"
	case LoginContextClientDenyServerNotOk:
		return "client-deny-server-not-ok"
	default:
		return "none"
	}
}

// LoginError carries the taxonomy code alongside the usual error text,
// so callers can type-assert instead of string-matching.
type LoginError struct {
	Code LoginContextCode
	User string
}

func (e *LoginError) Error() string {
	return fmt.Sprintf("session: login rejected for user %q (%s)", e.User, e.Code)
}

// loginRetryDelay is the pause before a rejected login is retried on
// the same connection, matching ArnSync's _loginDelayTimer.start(2000).
const loginRetryDelay = 2 * time.Second

const maxLoginAttempts = 3

// newSaltValue returns a fresh random 32-bit salt, the Go equivalent of
// Arn::rand() in ArnSyncLogin.cpp -- a plain uint rather than a
// cryptographic nonce of arbitrary length, since pwHashXchg folds it
// into the hash input as a decimal/hex number, not as raw salt bytes.
func newSaltValue() (uint32, error) {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

// pwHashXchg computes sha1(password + "." + hex(saltA) + "." + hex(saltB)),
// the swapped-salt construction from ArnSyncLogin::pwHashXchg. Calling it
// with (salt1, salt2) produces the client's proof to the server; calling
// it with (salt2, salt1) -- the arguments swapped -- produces the
// server's proof back to the client, so each side can verify the other
// knows the password without either one ever sending it.
func pwHashXchg(saltA, saltB uint32, pwHash string) string {
	h := sha1.New()
	h.Write([]byte(pwHash))
	h.Write([]byte("."))
	h.Write([]byte(fmt.Sprintf("%x", saltA)))
	h.Write([]byte("."))
	h.Write([]byte(fmt.Sprintf("%x", saltB)))
	return hex.EncodeToString(h.Sum(nil))
}

// PasswordHash is the at-rest form login credentials are stored in
// (ArnSyncLogin::passwordHash): a plain SHA-1 of the password, never the
// password itself. pwHashXchg is then computed over this hash, not over
// the raw password, so a leaked access table still requires breaking
// SHA-1 twice to recover a usable credential.
func PasswordHash(password string) string {
	h := sha1.New()
	h.Write([]byte(password))
	return hex.EncodeToString(h.Sum(nil))
}

// ServerLogin drives the acceptor's half of the 5-sequence handshake:
//
//	seq0 (in):  client's salt1
//	seq1 (out): server's salt2
//	seq2 (in):  client's user + pwHashXchg(salt1, salt2, pwHash)
//	seq3 (out): stat + allow + pwHashXchg(salt2, salt1, pwHash) -- the
//	            server's own proof, so the client can reject an
//	            impostor server that doesn't actually know the password
//	seq4 (in):  client's own verdict on the server's proof
//
// lookup resolves a username to its stored password hash and granted
// AllowMask. On a rejected attempt the server waits loginRetryDelay and
// re-reads seq0, matching ArnSync's doLoginSeq0End retry behavior,
// bounded by maxLoginAttempts so a hostile peer can't wedge the
// goroutine open indefinitely.
func ServerLogin(codec *wire.Codec, lookup func(user string) (pwHash string, allow AllowMask, ok bool)) (user string, allow AllowMask, err error) {
	for attempt := 0; attempt < maxLoginAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(loginRetryDelay)
		}

		seq0, err := codec.ReadRecord()
		if err != nil {
			return "", 0, err
		}
		if seq0.Cmd != "login" {
			return "", 0, fmt.Errorf("session: expected login seq0, got %q", seq0.Cmd)
		}
		salt1, _ := seq0.GetInt("salt1")

		salt2, err := newSaltValue()
		if err != nil {
			return "", 0, err
		}
		if err := codec.WriteRecord(wire.New("Rlogin").WithInt("seq", 1).WithInt("salt2", int64(salt2))); err != nil {
			return "", 0, err
		}

		seq2, err := codec.ReadRecord()
		if err != nil {
			return "", 0, err
		}
		if seq2.Cmd != "login" {
			return "", 0, fmt.Errorf("session: expected login seq2, got %q", seq2.Cmd)
		}
		clientUser, _ := seq2.Get("user")
		clientProof, _ := seq2.Get("pass")
		user = clientUser

		var stat int64
		var serverProof string
		pwHash, allowMask, ok := lookup(clientUser)
		if ok {
			want := pwHashXchg(uint32(salt1), uint32(salt2), pwHash)
			if subtle.ConstantTimeCompare([]byte(clientProof), []byte(want)) == 1 {
				stat = 1
				allow = allowMask
				serverProof = pwHashXchg(salt2, uint32(salt1), pwHash)
			}
		}

		reply := wire.New("Rlogin").WithInt("seq", 3).WithInt("stat", stat).WithInt("allow", int64(allow))
		if serverProof != "" {
			reply = reply.With("pass", serverProof)
		}
		if err := codec.WriteRecord(reply); err != nil {
			return user, 0, err
		}

		seq4, err := codec.ReadRecord()
		if err != nil {
			return user, 0, err
		}
		clientStat, _ := seq4.GetInt("stat")

		if stat == 1 && clientStat == 1 {
			return user, allow, nil
		}
	}
	return user, 0, &LoginError{Code: LoginContextServerDenyRetry, User: user}
}

// ClientLogin drives the dialer's half of the same handshake. onLoginRequired,
// when non-nil, is called once with the context code whenever a login
// attempt is rejected, before ClientLogin either retries or gives up --
// the application-visible surface spec.md §8 scenario 6 names.
func ClientLogin(codec *wire.Codec, user, pwHash string, onLoginRequired func(code LoginContextCode)) (allow AllowMask, err error) {
	for attempt := 0; attempt < maxLoginAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(loginRetryDelay)
		}

		salt1, err := newSaltValue()
		if err != nil {
			return 0, err
		}
		if err := codec.WriteRecord(wire.New("login").WithInt("salt1", int64(salt1))); err != nil {
			return 0, err
		}

		seq1, err := codec.ReadRecord()
		if err != nil {
			return 0, err
		}
		if seq1.Cmd != "Rlogin" {
			return 0, fmt.Errorf("session: expected login seq1, got %q", seq1.Cmd)
		}
		salt2, _ := seq1.GetInt("salt2")

		proof := pwHashXchg(salt1, uint32(salt2), pwHash)
		if err := codec.WriteRecord(wire.New("login").With("user", user).With("pass", proof)); err != nil {
			return 0, err
		}

		seq3, err := codec.ReadRecord()
		if err != nil {
			return 0, err
		}
		if seq3.Cmd != "Rlogin" {
			return 0, fmt.Errorf("session: expected login seq3, got %q", seq3.Cmd)
		}
		statServer, _ := seq3.GetInt("stat")
		remoteAllowVal, _ := seq3.GetInt("allow")
		serverProof, _ := seq3.Get("pass")

		var code LoginContextCode
		var clientStat int64
		switch {
		case statServer == 0:
			code = LoginContextServerDenyRetry
		case subtle.ConstantTimeCompare([]byte(serverProof), []byte(pwHashXchg(uint32(salt2), salt1, pwHash))) != 1:
			code = LoginContextClientDenyServerNotOk
		default:
			clientStat = 1
		}

		if err := codec.WriteRecord(wire.New("login").WithInt("seq", 4).WithInt("stat", clientStat).WithInt("allow", remoteAllowVal)); err != nil {
			return 0, err
		}

		if clientStat == 1 {
			return AllowMask(remoteAllowVal), nil
		}
		if onLoginRequired != nil {
			onLoginRequired(code)
		}
		if code == LoginContextClientDenyServerNotOk {
			// No amount of retrying fixes an impostor peer.
			return 0, &LoginError{Code: code, User: user}
		}
	}
	return 0, &LoginError{Code: LoginContextServerDenyRetry, User: user}
}
