package session

import (
	"net"
	"testing"

	"github.com/synctree/synctree/wire"
)

func TestLoginHandshakeSuccess(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	serverCodec := wire.NewCodec(serverConn, serverConn)
	clientCodec := wire.NewCodec(clientConn, clientConn)

	pwHash := PasswordHash("hunter2")

	done := make(chan error, 1)
	var gotAllow AllowMask
	go func() {
		_, allow, err := ServerLogin(serverCodec, func(user string) (string, AllowMask, bool) {
			if user == "alice" {
				return pwHash, AllowRead | AllowWrite, true
			}
			return "", 0, false
		})
		gotAllow = allow
		done <- err
	}()

	allow, err := ClientLogin(clientCodec, "alice", pwHash, nil)
	if err != nil {
		t.Fatalf("client login: %v", err)
	}
	if allow != (AllowRead | AllowWrite) {
		t.Fatalf("expected client to learn its granted allow mask, got %v", allow)
	}
	if err := <-done; err != nil {
		t.Fatalf("server login: %v", err)
	}
	if gotAllow != (AllowRead | AllowWrite) {
		t.Fatalf("expected server to report granted allow mask, got %v", gotAllow)
	}
}

func TestLoginHandshakeRejectsBadPasswordWithServerDenyRetryCode(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	serverCodec := wire.NewCodec(serverConn, serverConn)
	clientCodec := wire.NewCodec(clientConn, clientConn)

	correctHash := PasswordHash("correct-password")
	wrongHash := PasswordHash("wrong-password")

	done := make(chan error, 1)
	go func() {
		_, _, err := ServerLogin(serverCodec, func(user string) (string, AllowMask, bool) {
			return correctHash, AllowRead, true
		})
		done <- err
	}()

	var codes []LoginContextCode
	_, clientErr := ClientLogin(clientCodec, "bob", wrongHash, func(code LoginContextCode) {
		codes = append(codes, code)
	})
	if clientErr == nil {
		t.Fatal("expected client to observe rejection")
	}
	if len(codes) == 0 || codes[0] != LoginContextServerDenyRetry {
		t.Fatalf("expected LoginContextServerDenyRetry reported to the app, got %v", codes)
	}
	if serverErr := <-done; serverErr == nil {
		t.Fatal("expected server to report rejection")
	}
}

func TestPwHashXchgIsNotSymmetric(t *testing.T) {
	a := pwHashXchg(1, 2, "secret")
	b := pwHashXchg(2, 1, "secret")
	if a == b {
		t.Fatal("swapping the salt order must change the hash, or mutual verification can't detect an impostor")
	}
}
