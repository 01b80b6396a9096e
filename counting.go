package retryio

// countingSource wraps a ByteSource and keeps track of how many bytes it has
// delivered since it was created. The count is what allows a Reader to
// resume a reopened source at the correct position. Skipped bytes advance
// the position in the underlying object just like read bytes do, so they
// count as delivered. Failures propagate unchanged; there is no retry logic
// at this level.
type countingSource struct {
	source ByteSource
	count  int64
}

func newCountingSource(source ByteSource) *countingSource {
	return &countingSource{source: source}
}

// Count returns the total number of bytes delivered so far. The count never
// decreases.
func (c *countingSource) Count() int64 {
	return c.count
}

func (c *countingSource) Read(p []byte) (int, error) {
	n, err := c.source.Read(p)
	c.count += int64(n)
	return n, err
}

func (c *countingSource) ReadByte() (byte, error) {
	b, err := c.source.ReadByte()
	if err == nil {
		c.count++
	}
	return b, err
}

func (c *countingSource) Skip(n int64) (int64, error) {
	skipped, err := c.source.Skip(n)
	c.count += skipped
	return skipped, err
}

func (c *countingSource) Available() (int, error) {
	return c.source.Available()
}

func (c *countingSource) Close() error {
	return c.source.Close()
}
