package capsule

import "io"

// Reader reads capsules from a stream.
type Reader struct {
	r io.Reader
}

// NewReader creates a new Reader.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// ReadCapsule reads the next capsule from the stream. Returns an error
// wrapping io.EOF (errors.Is(err, io.EOF)) when the stream ends cleanly
// between capsules.
func (cr *Reader) ReadCapsule() (*Capsule, error) {
	return Decode(cr.r)
}
