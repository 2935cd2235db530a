//go:build linux

package ble

import (
	"fmt"
	"sync"

	"tinygo.org/x/bluetooth"

	"github.com/sweeney/watertank-sensor/internal/logging"
)

// bluezConn is the single logical connection the BlueZ link reports.
// BlueZ fans a characteristic write out to every subscribed central, so
// the link exposes all centrals as one connection.
const bluezConn ConnHandle = 1

// BlueZLink is a GATT peripheral on the BlueZ stack.
type BlueZLink struct {
	adapter *bluetooth.Adapter
	adv     *bluetooth.Advertisement
	tx      bluetooth.Characteristic
	name    string
	started bool

	mu       sync.Mutex
	centrals int
}

// NewBlueZLink enables the default adapter, registers the UART service
// and routes radio events to ev.
func NewBlueZLink(name string, ev Events) (*BlueZLink, error) {
	svcUUID, err := bluetooth.ParseUUID(ServiceUUID)
	if err != nil {
		return nil, fmt.Errorf("parse service uuid: %w", err)
	}
	rxUUID, err := bluetooth.ParseUUID(RXUUID)
	if err != nil {
		return nil, fmt.Errorf("parse rx uuid: %w", err)
	}
	txUUID, err := bluetooth.ParseUUID(TXUUID)
	if err != nil {
		return nil, fmt.Errorf("parse tx uuid: %w", err)
	}

	adv, err := AdvertisingPayload(name, ServiceUUID)
	if err != nil {
		return nil, fmt.Errorf("advertising data: %w", err)
	}
	logging.Infof("ble: advertising data %d/%d bytes", len(adv), maxAdvLen)

	l := &BlueZLink{
		adapter: bluetooth.DefaultAdapter,
		name:    AdvertisedName(name, 1),
	}
	if err := l.adapter.Enable(); err != nil {
		return nil, fmt.Errorf("enable adapter: %w", err)
	}

	l.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		l.mu.Lock()
		before := l.centrals
		if connected {
			l.centrals++
		} else if l.centrals > 0 {
			l.centrals--
		}
		after := l.centrals
		l.mu.Unlock()

		switch {
		case before == 0 && after > 0:
			ev.Connected(bluezConn)
		case before > 0 && after == 0:
			ev.Disconnected(bluezConn)
		}
	})

	err = l.adapter.AddService(&bluetooth.Service{
		UUID: svcUUID,
		Characteristics: []bluetooth.CharacteristicConfig{
			{
				Handle: &l.tx,
				UUID:   txUUID,
				Flags:  bluetooth.CharacteristicNotifyPermission | bluetooth.CharacteristicReadPermission,
			},
			{
				UUID: rxUUID,
				Flags: bluetooth.CharacteristicWritePermission |
					bluetooth.CharacteristicWriteWithoutResponsePermission,
				WriteEvent: func(_ bluetooth.Connection, _ int, value []byte) {
					ev.Received(bluezConn, value)
				},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("add uart service: %w", err)
	}

	l.adv = l.adapter.DefaultAdvertisement()
	err = l.adv.Configure(bluetooth.AdvertisementOptions{
		LocalName:    l.name,
		ServiceUUIDs: []bluetooth.UUID{svcUUID},
	})
	if err != nil {
		return nil, fmt.Errorf("configure advertisement: %w", err)
	}
	return l, nil
}

// Notify implements Link.
func (l *BlueZLink) Notify(_ ConnHandle, chunk []byte) error {
	if _, err := l.tx.Write(chunk); err != nil {
		return fmt.Errorf("tx write: %w", err)
	}
	return nil
}

// Advertise implements Link. BlueZ keeps a registered advertisement
// running across connections, so only the first start can fail.
func (l *BlueZLink) Advertise() error {
	err := l.adv.Start()
	if err == nil {
		l.started = true
		return nil
	}
	if l.started {
		logging.Warnf("ble: advertisement restart: %v", err)
		return nil
	}
	return fmt.Errorf("start advertisement: %w", err)
}

// Close stops advertising.
func (l *BlueZLink) Close() error {
	return l.adv.Stop()
}
