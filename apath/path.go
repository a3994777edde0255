// Package apath provides pure, total path utilities for the shared object
// tree: canonicalization, escaping, twin-path and uuid-path computation,
// and the small set of name/ancestor helpers every other package in this
// module builds on.
//
// All functions here are pure: given the same input they always return the
// same output, and none of them touch the tree itself. "Not applicable"
// results are returned as a zero value plus ok=false rather than an error,
// since there's nothing to recover from at this layer.
package apath

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Flags controls the output form requested from Convert.
type Flags uint32

const (
	// Absolute forces a leading "/". Relative strips it. If neither is
	// set, the path's existing form is kept.
	Absolute Flags = 1 << iota
	Relative
	// Folder forces a trailing "/". NoFolder strips it.
	Folder
	NoFolder
)

const providerMark = "!"

// Convert rewrites path according to flags. It never fails; an empty or
// malformed path is returned with the requested form applied as best it
// can.
func Convert(path string, flags Flags) string {
	isFolder := strings.HasSuffix(path, "/")
	isAbs := strings.HasPrefix(path, "/")

	body := path
	if isAbs {
		body = body[1:]
	}
	if isFolder && len(body) > 0 {
		body = body[:len(body)-1]
	}

	switch {
	case flags&Absolute != 0:
		isAbs = true
	case flags&Relative != 0:
		isAbs = false
	}
	switch {
	case flags&Folder != 0:
		isFolder = true
	case flags&NoFolder != 0:
		isFolder = false
	}

	var b strings.Builder
	if isAbs {
		b.WriteByte('/')
	}
	b.WriteString(body)
	if isFolder {
		b.WriteByte('/')
	}
	return b.String()
}

// IsFolder reports whether path is in folder form (trailing "/", or empty
// meaning root).
func IsFolder(path string) bool {
	return path == "" || path == "/" || strings.HasSuffix(path, "/")
}

// IsProvider reports whether the leaf name denotes the provider half of a
// bidirectional pair (trailing "!", but not the "!!" reserved sequence).
func IsProvider(path string) bool {
	name, ok := ItemName(path)
	if !ok {
		return false
	}
	return strings.HasSuffix(name, providerMark) && !strings.HasSuffix(name, "!!")
}

// ValidName reports whether a single segment is a legal node name: no
// unescaped "/" and no trailing "!!".
func ValidName(name string) bool {
	if strings.HasSuffix(name, "!!") {
		return false
	}
	return !hasUnescapedSlash(name)
}

func hasUnescapedSlash(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' {
			i++ // skip escaped char
			continue
		}
		if s[i] == '/' {
			return true
		}
	}
	return false
}

// Escape escapes '\\' and '.' within a single segment, and any byte not
// otherwise safe for a path segment, using "\NNN" decimal byte-escapes.
func Escape(segment string) string {
	var b strings.Builder
	for i := 0; i < len(segment); i++ {
		c := segment[i]
		switch {
		case c == '\\' || c == '.':
			b.WriteByte('\\')
			b.WriteByte(c)
		case c < 0x20 || c == '/':
			fmt.Fprintf(&b, "\\%03d", c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// Unescape reverses Escape.
func Unescape(segment string) string {
	var b strings.Builder
	for i := 0; i < len(segment); i++ {
		c := segment[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		if i+1 >= len(segment) {
			b.WriteByte(c)
			break
		}
		next := segment[i+1]
		if next == '\\' || next == '.' {
			b.WriteByte(next)
			i++
			continue
		}
		if i+3 < len(segment) && isDigit(next) {
			if n, err := strconv.Atoi(segment[i+1 : i+4]); err == nil {
				b.WriteByte(byte(n))
				i += 3
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// Split breaks an absolute or relative path into its ordered segments,
// ignoring a single leading/trailing "/".
func Split(path string) []string {
	body := strings.Trim(path, "/")
	if body == "" {
		return nil
	}
	return splitUnescaped(body)
}

// splitUnescaped splits on "/" that is not preceded by an odd run of "\".
func splitUnescaped(s string) []string {
	var parts []string
	var cur strings.Builder
	i := 0
	for i < len(s) {
		c := s[i]
		if c == '\\' && i+1 < len(s) {
			cur.WriteByte(c)
			cur.WriteByte(s[i+1])
			i += 2
			continue
		}
		if c == '/' {
			parts = append(parts, cur.String())
			cur.Reset()
			i++
			continue
		}
		cur.WriteByte(c)
		i++
	}
	parts = append(parts, cur.String())
	return parts
}

// ItemName returns the last segment of path (the leaf label). ok is false
// for the root folder path ("" or "/").
func ItemName(path string) (string, bool) {
	segs := Split(path)
	if len(segs) == 0 {
		return "", false
	}
	return segs[len(segs)-1], true
}

// ParentPath returns everything above the last segment, in folder form.
// ok is false for the root.
func ParentPath(path string) (string, bool) {
	segs := Split(path)
	if len(segs) <= 1 {
		return "", len(segs) == 1
	}
	parent := "/" + strings.Join(segs[:len(segs)-1], "/") + "/"
	return parent, true
}

// ChildPath returns the prefix of posterity that is the direct child of
// parent: in folder form when posterity lies deeper, in posterity's own
// form when the child is posterity itself. ok is false if posterity is
// not a descendant of parent.
func ChildPath(parent, posterity string) (string, bool) {
	parentSegs := Split(parent)
	childSegs := Split(posterity)
	if len(childSegs) <= len(parentSegs) {
		return "", false
	}
	for i, s := range parentSegs {
		if childSegs[i] != s {
			return "", false
		}
	}
	child := "/" + strings.Join(childSegs[:len(parentSegs)+1], "/")
	if len(childSegs) > len(parentSegs)+1 || IsFolder(posterity) {
		child += "/"
	}
	return child, true
}

// Twin returns the path of the opposite-sex link: appends "!" if absent,
// strips one trailing "!" if present. Folder paths have no twin and are
// returned unchanged with ok=false.
func Twin(path string) (string, bool) {
	if IsFolder(path) {
		return path, false
	}
	name, _ := ItemName(path)
	parent, hasParent := ParentPath(path)
	if !hasParent {
		parent = "/"
	}
	var twinName string
	if strings.HasSuffix(name, providerMark) {
		twinName = strings.TrimSuffix(name, providerMark)
	} else {
		twinName = name + providerMark
	}
	return strings.TrimSuffix(parent, "/") + "/" + twinName, true
}

// UUIDPath inserts a fresh random UUID segment immediately above the
// terminal name, preserving a trailing provider marker.
func UUIDPath(path string) string {
	name, ok := ItemName(path)
	if !ok {
		return path
	}
	parent, _ := ParentPath(path)
	id := uuid.New().String()
	return strings.TrimSuffix(parent, "/") + "/" + id + "/" + name
}

// ChangeBasePath rewrites path's oldBase prefix to newBase. If path does
// not start with oldBase+"/", it is returned unchanged.
func ChangeBasePath(oldBase, newBase, path string) string {
	oldPrefix := strings.TrimSuffix(oldBase, "/") + "/"
	if !strings.HasPrefix(path, oldPrefix) {
		return path
	}
	newPrefix := strings.TrimSuffix(newBase, "/") + "/"
	return newPrefix + strings.TrimPrefix(path, oldPrefix)
}

// Ancestors returns the folder path of every ancestor of path, from the
// immediate parent up to and including the root "/".
func Ancestors(path string) []string {
	var out []string
	cur, ok := ParentPath(path)
	for ok && cur != "" {
		out = append(out, cur)
		var next string
		next, ok = ParentPath(strings.TrimSuffix(cur, "/"))
		cur = next
	}
	if len(out) == 0 || out[len(out)-1] != "/" {
		out = append(out, "/")
	}
	return out
}
