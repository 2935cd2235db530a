package ble

import (
	"bytes"
	"strings"
)

// lineFramer accumulates received bytes and splits them into command lines
// on '\n'. The accumulator keeps only the newest max bytes.
type lineFramer struct {
	buf []byte
	max int
}

func newLineFramer(max int) *lineFramer {
	if max < 1 {
		max = DefaultRXBufferMax
	}
	return &lineFramer{max: max}
}

// feed appends data and returns every complete non-empty line, carriage
// returns removed and surrounding spaces trimmed, in arrival order.
func (f *lineFramer) feed(data []byte) []string {
	f.buf = append(f.buf, data...)
	if len(f.buf) > f.max {
		f.buf = append(f.buf[:0], f.buf[len(f.buf)-f.max:]...)
	}

	var lines []string
	for {
		nl := bytes.IndexByte(f.buf, '\n')
		if nl < 0 {
			break
		}
		line := strings.ReplaceAll(string(f.buf[:nl]), "\r", "")
		f.buf = f.buf[nl+1:]
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	if len(f.buf) == 0 {
		f.buf = nil
	}
	return lines
}

// pending returns the number of buffered bytes without a terminator.
func (f *lineFramer) pending() int {
	return len(f.buf)
}
