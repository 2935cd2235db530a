package ble

// FakeLink records notified chunks for test assertions.
type FakeLink struct {
	// Chunks contains every chunk sent, per connection.
	Chunks map[ConnHandle][][]byte

	// Advertised counts Advertise calls.
	Advertised int

	// NotifyErrors, if set for a connection, is returned by Notify.
	NotifyErrors map[ConnHandle]error

	// AdvertiseError, if set, will be returned by Advertise.
	AdvertiseError error
}

// NewFakeLink creates an empty FakeLink.
func NewFakeLink() *FakeLink {
	return &FakeLink{
		Chunks:       make(map[ConnHandle][][]byte),
		NotifyErrors: make(map[ConnHandle]error),
	}
}

// Notify records chunk.
func (f *FakeLink) Notify(conn ConnHandle, chunk []byte) error {
	if err := f.NotifyErrors[conn]; err != nil {
		return err
	}
	f.Chunks[conn] = append(f.Chunks[conn], append([]byte(nil), chunk...))
	return nil
}

// Advertise counts the call.
func (f *FakeLink) Advertise() error {
	f.Advertised++
	return f.AdvertiseError
}

// Sent returns the bytes sent to conn, chunks joined.
func (f *FakeLink) Sent(conn ConnHandle) []byte {
	var out []byte
	for _, c := range f.Chunks[conn] {
		out = append(out, c...)
	}
	return out
}

// Reset forgets recorded chunks.
func (f *FakeLink) Reset() {
	f.Chunks = make(map[ConnHandle][][]byte)
}
