// Package wire implements the line-oriented record codec described in
// spec.md §3/§6: an ASCII line, CR-LF terminated, holding an
// "xstring-map" of key=value pairs whose first unnamed value is the
// command word.
//
// Grounded on the teacher's raw/types.go fixed-field wire structs and
// fuse/opcode.go's opcode-indexed handler table: here the "opcode" is the
// record's Cmd string and the handler table lives in package session.
package wire

import (
	"fmt"
	"strconv"
	"strings"
)

// Record is one wire message: a command word plus a flat string map.
type Record struct {
	Cmd    string
	Fields map[string]string
}

// New creates an empty record for cmd.
func New(cmd string) Record {
	return Record{Cmd: cmd, Fields: map[string]string{}}
}

// With sets a field and returns the record for chaining.
func (r Record) With(key, value string) Record {
	r.Fields[key] = value
	return r
}

// WithInt sets an integer field.
func (r Record) WithInt(key string, value int64) Record {
	return r.With(key, strconv.FormatInt(value, 10))
}

func (r Record) Get(key string) (string, bool) {
	v, ok := r.Fields[key]
	return v, ok
}

func (r Record) GetInt(key string) (int64, bool) {
	v, ok := r.Fields[key]
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	return n, err == nil
}

// Encode renders r as a single CR-LF terminated wire line.
func Encode(r Record) string {
	var b strings.Builder
	b.WriteString(r.Cmd)
	for _, k := range sortedKeys(r.Fields) {
		b.WriteByte(' ')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(quoteIfNeeded(r.Fields[k]))
	}
	b.WriteString("\r\n")
	return b.String()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// Simple insertion sort: these maps are small (a handful of wire
	// keys per record) and this keeps encoding output deterministic for
	// tests without pulling in sort for a handful of elements.
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}

func quoteIfNeeded(v string) string {
	if v == "" || strings.ContainsAny(v, " \t\"\r\n") {
		return strconv.Quote(v)
	}
	return v
}

// Decode parses one wire line (trailing CR/LF optional) into a Record.
func Decode(line string) (Record, error) {
	line = strings.TrimRight(line, "\r\n")
	tokens := tokenize(line)
	if len(tokens) == 0 {
		return Record{}, fmt.Errorf("wire: empty record")
	}
	rec := New(tokens[0])
	for _, tok := range tokens[1:] {
		idx := strings.IndexByte(tok, '=')
		if idx < 0 {
			continue
		}
		key := tok[:idx]
		val := tok[idx+1:]
		if strings.HasPrefix(val, `"`) {
			if unq, err := strconv.Unquote(val); err == nil {
				val = unq
			}
		}
		rec.Fields[key] = val
	}
	return rec, nil
}

// tokenize splits on unquoted whitespace, keeping quoted substrings
// intact so a value may itself contain spaces.
func tokenize(line string) []string {
	var toks []string
	var cur strings.Builder
	inQuotes := false
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == '"':
			inQuotes = !inQuotes
			cur.WriteByte(c)
		case c == '\\' && inQuotes && i+1 < len(line):
			cur.WriteByte(c)
			cur.WriteByte(line[i+1])
			i++
		case (c == ' ' || c == '\t') && !inQuotes:
			if cur.Len() > 0 {
				toks = append(toks, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteByte(c)
		}
	}
	if cur.Len() > 0 {
		toks = append(toks, cur.String())
	}
	return toks
}
