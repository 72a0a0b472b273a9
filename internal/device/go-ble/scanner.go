package goble

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/inoli/internal/device"
)

// sighting is the latest advertisement heard from one address. The map holds
// pointers and updates happen in place, so Range sees them.
type sighting struct {
	mu  sync.Mutex
	adv device.Advertisement
}

func (s *sighting) update(adv device.Advertisement) {
	s.mu.Lock()
	s.adv = adv
	s.mu.Unlock()
}

func (s *sighting) latest() device.Advertisement {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.adv
}

// Scanner handles BLE device discovery
type Scanner struct {
	adapter int
	logger  *logrus.Logger
	seen    *hashmap.Map[string, *sighting]

	// scan runs one scan; swapped in tests
	scan func(ctx context.Context, handler func(device.Advertisement)) error
}

func NewScanner(adapter int, logger *logrus.Logger) *Scanner {
	if logger == nil {
		logger = logrus.New()
	}
	s := &Scanner{adapter: adapter, logger: logger}
	s.scan = s.scanAdapter
	return s
}

func (s *Scanner) scanAdapter(ctx context.Context, handler func(device.Advertisement)) error {
	dev, err := OpenAdapter(s.adapter)
	if err != nil {
		return err
	}
	err = dev.Scan(ctx, false, func(adv ble.Advertisement) {
		handler(NewBLEAdvertisement(adv))
	})
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return &device.TransportError{Op: "scan", Err: NormalizeError(err)}
	}
	return nil
}

// Scan collects unique advertisements for the given duration.
func (s *Scanner) Scan(ctx context.Context, duration time.Duration) ([]device.Advertisement, error) {
	s.seen = hashmap.New[string, *sighting]()

	s.logger.WithField("duration", duration).Info("Starting BLE scan...")
	scanCtx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()

	err := s.scan(scanCtx, func(adv device.Advertisement) {
		rec, existing := s.seen.Get(adv.Addr())
		if !existing {
			rec, existing = s.seen.GetOrInsert(adv.Addr(), &sighting{adv: adv})
		}
		if existing {
			rec.update(adv)
			return
		}
		s.logger.WithFields(logrus.Fields{
			"address": adv.Addr(),
			"name":    adv.LocalName(),
			"rssi":    adv.RSSI(),
		}).Debug("Discovered new device")
	})
	if err != nil {
		return nil, err
	}

	out := make([]device.Advertisement, 0, s.seen.Len())
	s.seen.Range(func(_ string, rec *sighting) bool {
		out = append(out, rec.latest())
		return true
	})
	s.logger.WithField("device_count", len(out)).Info("BLE scan completed")
	return out, nil
}

// Find scans until an advertisement from a registered address shows up. It
// returns a NotFoundError when none does within timeout.
func (s *Scanner) Find(ctx context.Context, timeout time.Duration, registry *device.Registry) (device.Advertisement, device.RegistryEntry, error) {
	s.seen = hashmap.New[string, *sighting]()

	scanCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type match struct {
		adv   device.Advertisement
		entry device.RegistryEntry
	}
	found := make(chan match, 1)

	err := s.scan(scanCtx, func(adv device.Advertisement) {
		if rec, existing := s.seen.Get(adv.Addr()); existing {
			rec.update(adv)
			return
		}
		if rec, existing := s.seen.GetOrInsert(adv.Addr(), &sighting{adv: adv}); existing {
			rec.update(adv)
			return
		}
		entry, ok := registry.Lookup(adv.Addr())
		if !ok {
			s.logger.WithFields(logrus.Fields{
				"address": adv.Addr(),
				"name":    adv.LocalName(),
			}).Debug("Ignoring unsupported device")
			return
		}
		select {
		case found <- match{adv, entry}:
			cancel()
		default:
		}
	})
	if err != nil {
		return nil, device.RegistryEntry{}, err
	}

	select {
	case m := <-found:
		s.logger.WithFields(logrus.Fields{
			"address": m.adv.Addr(),
			"model":   m.entry.Model,
			"rssi":    m.adv.RSSI(),
		}).Info("Found supported device")
		return m.adv, m.entry, nil
	default:
	}
	if ctx.Err() != nil {
		return nil, device.RegistryEntry{}, ctx.Err()
	}
	return nil, device.RegistryEntry{}, &device.NotFoundError{Resource: "supported device"}
}
