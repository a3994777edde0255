package wire

import "testing"

func TestEncodeDecodeRoundTrip(t *testing.T) {
	r := New("set").With("path", "/a/b").WithInt("seq", 42).With("note", "has space")
	line := Encode(r)
	got, err := Decode(line)
	if err != nil {
		t.Fatal(err)
	}
	if got.Cmd != "set" {
		t.Fatalf("cmd = %q", got.Cmd)
	}
	if v, _ := got.Get("path"); v != "/a/b" {
		t.Fatalf("path = %q", v)
	}
	if n, ok := got.GetInt("seq"); !ok || n != 42 {
		t.Fatalf("seq = %v %v", n, ok)
	}
	if v, _ := got.Get("note"); v != "has space" {
		t.Fatalf("note = %q", v)
	}
}

func TestEncodeIsDeterministic(t *testing.T) {
	r := New("ls").With("b", "2").With("a", "1").With("c", "3")
	if Encode(r) != "ls a=1 b=2 c=3\r\n" {
		t.Fatalf("got %q", Encode(r))
	}
}

func TestDecodeEmptyLineErrors(t *testing.T) {
	if _, err := Decode("\r\n"); err == nil {
		t.Fatal("expected error decoding empty record")
	}
}

func TestDecodeBareCommandNoFields(t *testing.T) {
	r, err := Decode("exit\r\n")
	if err != nil {
		t.Fatal(err)
	}
	if r.Cmd != "exit" || len(r.Fields) != 0 {
		t.Fatalf("got %+v", r)
	}
}
