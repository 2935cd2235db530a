package ble

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Advertising data limits and AD types.
const (
	maxAdvLen       = 31
	adFlags         = 0x01
	adUUID128       = 0x07 // complete list of 128-bit service UUIDs
	adShortName     = 0x08
	flagsGeneralLE  = 0x06 // LE general discoverable, BR/EDR not supported
	uuid128ByteSize = 16
)

// AdvertisingPayload builds the legacy advertising data: flags, the
// 128-bit service UUIDs and as much of name as still fits in 31 bytes.
func AdvertisingPayload(name string, uuids ...string) ([]byte, error) {
	p := []byte{2, adFlags, flagsGeneralLE}

	if len(uuids) > 0 {
		var svc []byte
		for _, u := range uuids {
			b, err := uuidLE(u)
			if err != nil {
				return nil, err
			}
			svc = append(svc, b...)
		}
		if len(p)+2+len(svc) > maxAdvLen {
			return nil, fmt.Errorf("service uuids do not fit advertising data")
		}
		p = append(p, byte(len(svc)+1), adUUID128)
		p = append(p, svc...)
	}

	if short := AdvertisedName(name, len(uuids)); short != "" {
		p = append(p, byte(len(short)+1), adShortName)
		p = append(p, short...)
	}
	return p, nil
}

// AdvertisedName returns name truncated to the room left after the flags
// and n 128-bit service UUIDs.
func AdvertisedName(name string, n int) string {
	used := 3
	if n > 0 {
		used += 2 + n*uuid128ByteSize
	}
	room := maxAdvLen - used - 2
	if room <= 0 {
		return ""
	}
	if len(name) > room {
		return name[:room]
	}
	return name
}

// uuidLE parses a textual UUID into little-endian byte order.
func uuidLE(s string) ([]byte, error) {
	b, err := hex.DecodeString(strings.ReplaceAll(s, "-", ""))
	if err != nil || len(b) != uuid128ByteSize {
		return nil, fmt.Errorf("invalid 128-bit uuid %q", s)
	}
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return b, nil
}
