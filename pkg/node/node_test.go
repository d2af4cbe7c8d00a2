package node

// fakeContainer stands in for the image file in tree tests.
type fakeContainer struct {
	open     bool
	writable bool
	readers  int
	writers  int
}

func newFakeContainer() *fakeContainer {
	return &fakeContainer{open: true, writable: true}
}

func (c *fakeContainer) IsOpen() bool     { return c.open }
func (c *fakeContainer) IsWritable() bool { return c.writable }
func (c *fakeContainer) ReaderCount() int { return c.readers }
func (c *fakeContainer) WriterCount() int { return c.writers }
