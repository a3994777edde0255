package apath

import (
	"testing"

	"github.com/kylelemons/godebug/pretty"
)

func TestConvertRoundTrip(t *testing.T) {
	cases := []struct {
		path  string
		flags Flags
		want  string
	}{
		{"/a/b", Folder, "/a/b/"},
		{"/a/b/", NoFolder, "/a/b"},
		{"a/b", Absolute, "/a/b"},
		{"/a/b", Relative, "a/b"},
		{"/a/b!", 0, "/a/b!"},
	}
	for _, c := range cases {
		got := Convert(c.path, c.flags)
		if got != c.want {
			t.Errorf("Convert(%q, %v) = %q, want %q", c.path, c.flags, got, c.want)
		}
	}
}

func TestEscapeRoundTrip(t *testing.T) {
	path := `/a/b\.c/d!`
	name, ok := ItemName(path)
	if !ok || name != "d!" {
		t.Fatalf("ItemName(%q) = %q, %v, want %q, true", path, name, ok, "d!")
	}
	twin, ok := Twin(path)
	if !ok || twin != `/a/b\.c/d` {
		t.Fatalf("Twin(%q) = %q, %v, want %q, true", path, twin, ok, `/a/b\.c/d`)
	}
}

func TestEscapeUnescape(t *testing.T) {
	raw := "has/slash.and\\backslash"
	esc := Escape(raw)
	got := Unescape(esc)
	if got != raw {
		t.Errorf("Unescape(Escape(%q)) = %q, want %q", raw, got, raw)
	}
}

func TestTwinInvolution(t *testing.T) {
	paths := []string{"/a/b", "/a/b!", "/x/y/z!", "/x/y/z"}
	for _, p := range paths {
		t1, ok1 := Twin(p)
		if !ok1 {
			t.Fatalf("Twin(%q) not ok", p)
		}
		t2, ok2 := Twin(t1)
		if !ok2 || t2 != p {
			t.Errorf("Twin(Twin(%q)) = %q, %v, want %q, true", p, t2, ok2, p)
		}
	}
	// folders have no twin
	if _, ok := Twin("/a/"); ok {
		t.Errorf("Twin(folder) should not be applicable")
	}
}

func TestChildPath(t *testing.T) {
	cases := []struct {
		parent, posterity, want string
		ok                      bool
	}{
		{"/a/", "/a/b/c", "/a/b/", true},
		{"/a/", "/a/b", "/a/b", true},
		{"/a/", "/x/y", "", false},
		{"/a/", "/a/", "", false},
	}
	for _, c := range cases {
		got, ok := ChildPath(c.parent, c.posterity)
		if ok != c.ok || (ok && got != c.want) {
			t.Errorf("ChildPath(%q, %q) = %q, %v, want %q, %v", c.parent, c.posterity, got, ok, c.want, c.ok)
		}
	}
}

func TestParentAndItemName(t *testing.T) {
	item, _ := ItemName("/a/b/c")
	parent, ok := ParentPath("/a/b/c")
	diff := pretty.Compare(
		struct {
			Item, Parent string
			OK           bool
		}{item, parent, ok},
		struct {
			Item, Parent string
			OK           bool
		}{"c", "/a/b/", true},
	)
	if diff != "" {
		t.Errorf("unexpected diff: %s", diff)
	}
}

func TestUUIDPathPreservesName(t *testing.T) {
	p := UUIDPath("/a/b!")
	name, ok := ItemName(p)
	if !ok || name != "b!" {
		t.Errorf("UUIDPath(%q) lost terminal name: %q", "/a/b!", p)
	}
	if !IsProvider(p) {
		t.Errorf("UUIDPath(%q) = %q should still be a provider path", "/a/b!", p)
	}
}

func TestChangeBasePath(t *testing.T) {
	got := ChangeBasePath("/old", "/new", "/old/leaf")
	if got != "/new/leaf" {
		t.Errorf("ChangeBasePath = %q, want /new/leaf", got)
	}
	unchanged := ChangeBasePath("/old", "/new", "/other/leaf")
	if unchanged != "/other/leaf" {
		t.Errorf("ChangeBasePath should not rewrite unrelated path, got %q", unchanged)
	}
}

func TestValidName(t *testing.T) {
	if ValidName("foo!!") {
		t.Error("trailing !! must be invalid")
	}
	if !ValidName("foo!") {
		t.Error("trailing ! alone must be valid")
	}
}
