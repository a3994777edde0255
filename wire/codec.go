package wire

import (
	"bufio"
	"io"
)

// Codec frames Records as CR-LF terminated lines over a byte stream.
// Grounded on the teacher's server.go read loop, which pulls fixed-size
// frames off a single connection and dispatches by opcode; here the
// frame is a text line and the dispatch key is Record.Cmd.
type Codec struct {
	r *bufio.Reader
	w io.Writer
}

func NewCodec(r io.Reader, w io.Writer) *Codec {
	return &Codec{r: bufio.NewReader(r), w: w}
}

// ReadRecord blocks for the next complete line and decodes it.
func (c *Codec) ReadRecord() (Record, error) {
	line, err := c.r.ReadString('\n')
	if err != nil {
		if line == "" {
			return Record{}, err
		}
		// Fall through: a line with content but no trailing newline
		// (stream closed mid-record) still decodes for test harnesses
		// that feed unterminated final lines.
	}
	return Decode(line)
}

// WriteRecord encodes and flushes r.
func (c *Codec) WriteRecord(r Record) error {
	_, err := io.WriteString(c.w, Encode(r))
	return err
}
