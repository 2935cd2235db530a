package sensor

// FakePort is a test double that returns scripted chunks of bytes.
type FakePort struct {
	// Chunks contains scripted reads. Each call to Read consumes the next
	// chunk; once exhausted, the last chunk repeats (like a sensor that
	// keeps reporting the same distance). A nil chunk reads as "no data".
	Chunks [][]byte

	index int

	// ReadError, if set, will be returned by Read.
	ReadError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakePort creates a FakePort with the given chunks.
func NewFakePort(chunks ...[]byte) *FakePort {
	return &FakePort{Chunks: chunks}
}

// Read copies the next scripted chunk into p.
func (f *FakePort) Read(p []byte) (int, error) {
	if f.ReadError != nil {
		return 0, f.ReadError
	}
	if len(f.Chunks) == 0 {
		return 0, nil
	}

	chunk := f.Chunks[f.index]
	if f.index < len(f.Chunks)-1 {
		f.index++
	}
	return copy(p, chunk), nil
}

// Set replaces the script; the next Read starts at the first chunk.
func (f *FakePort) Set(chunks ...[]byte) {
	f.Chunks = chunks
	f.index = 0
}

// Close marks the port as closed.
func (f *FakePort) Close() error {
	f.Closed = true
	return nil
}
