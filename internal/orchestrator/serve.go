package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/inoli/internal/config"
	"github.com/srg/inoli/internal/device"
	goble "github.com/srg/inoli/internal/device/go-ble"
	"github.com/srg/inoli/internal/ipc"
	"github.com/srg/inoli/internal/miband"
)

// Listen binds the broker socket at path, removing a stale socket file left
// by a previous run. A socket that still accepts connections is not touched.
func Listen(path string, logger *logrus.Logger) (net.Listener, error) {
	info, err := os.Lstat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("inspect socket %s: %w", path, err)
	case info.Mode()&fs.ModeSocket == 0:
		return nil, fmt.Errorf("refusing to replace %s: not a socket", path)
	default:
		if conn, err := net.DialTimeout("unix", path, time.Second); err == nil {
			_ = conn.Close()
			return nil, fmt.Errorf("socket %s is in use by another process", path)
		}
		if err := os.Remove(path); err != nil {
			return nil, fmt.Errorf("remove stale socket %s: %w", path, err)
		}
		logger.WithField("socket", path).Info("Removed stale socket")
	}

	l, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", path, err)
	}
	return l, nil
}

// BandOptions derives the band engine options from cfg.
func BandOptions(cfg *config.Config, logger *logrus.Logger) (miband.Options, error) {
	loc, err := cfg.Location()
	if err != nil {
		return miband.Options{}, err
	}
	user, err := cfg.UserRecord()
	if err != nil {
		return miband.Options{}, err
	}
	return miband.Options{User: user, Location: loc, AuthTimeout: cfg.AuthTimeout, Logger: logger}, nil
}

// Registry returns the built-in registry extended with the configured devices.
func Registry(cfg *config.Config, opts miband.Options) (*device.Registry, error) {
	registry := miband.DefaultRegistry(opts)
	for _, d := range cfg.Devices {
		if err := miband.Register(registry, d.Address, d.Model, opts); err != nil {
			return nil, fmt.Errorf("device %s: %w", d.Address, err)
		}
	}
	return registry, nil
}

// Serve runs the relay described by cfg until ctx is done.
func Serve(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	bandOpts, err := BandOptions(cfg, logger)
	if err != nil {
		return err
	}
	wear, err := cfg.Wear()
	if err != nil {
		return err
	}
	registry, err := Registry(cfg, bandOpts)
	if err != nil {
		return err
	}

	listener, err := Listen(cfg.Socket, logger)
	if err != nil {
		return err
	}
	defer os.Remove(cfg.Socket)

	broker := ipc.New(listener, ipc.Options{QueueSize: cfg.CommandQueue}, logger)
	scanner := goble.NewScanner(cfg.Adapter, logger)
	dial := func(address string) device.Peripheral {
		return goble.NewConnection(address, goble.Options{Adapter: cfg.Adapter, ConnectTimeout: cfg.ConnectTimeout}, logger)
	}

	o := New(registry, scanner, dial, broker, Options{
		ScanTimeout:       cfg.ScanTimeout,
		ReconnectInterval: cfg.ReconnectInterval,
		ReconnectBurst:    cfg.ReconnectBurst,
		BreakerFailures:   cfg.BreakerFailures,
		BreakerCooldown:   cfg.BreakerCooldown,
		PollInterval:      cfg.PollInterval,
		WearLocation:      wear,
		Alarms:            cfg.AlarmSlots,
	}, logger)
	return o.Run(ctx)
}
