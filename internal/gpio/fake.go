package gpio

// FakeWriter records output levels for test assertions.
type FakeWriter struct {
	// Levels holds the last value written per line. Interlocks start safe.
	Levels map[Line]int

	// Writes counts writes per line.
	Writes map[Line]int

	// Closed tracks if Close was called.
	Closed bool

	// WriteError, if set, will be returned by Write.
	WriteError error
}

// NewFakeWriter creates a FakeWriter with interlocks safe and the LED off.
func NewFakeWriter() *FakeWriter {
	return &FakeWriter{
		Levels: map[Line]int{Master: Safe, Pump: Safe, Heater: Safe, LED: 0},
		Writes: make(map[Line]int),
	}
}

// Write records value.
func (f *FakeWriter) Write(l Line, value int) error {
	if f.WriteError != nil {
		return f.WriteError
	}
	f.Levels[l] = value
	f.Writes[l]++
	return nil
}

// Close drives the interlocks safe and marks the writer closed.
func (f *FakeWriter) Close() error {
	for _, l := range Interlocks {
		f.Levels[l] = Safe
	}
	f.Closed = true
	return nil
}

// AllSafe reports whether every interlock is at the safe level.
func (f *FakeWriter) AllSafe() bool {
	for _, l := range Interlocks {
		if f.Levels[l] != Safe {
			return false
		}
	}
	return true
}
