package miband

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/srg/inoli/internal/device"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Model describes which capabilities a hardware revision has.
type Model struct {
	Name      string
	HeartRate bool
}

var models = func() *orderedmap.OrderedMap[string, Model] {
	m := orderedmap.New[string, Model]()
	m.Set("MI1", Model{Name: "MI1"})
	m.Set("MI1A", Model{Name: "MI1A"})
	m.Set("MI1S", Model{Name: "MI1S", HeartRate: true})
	return m
}()

// KnownDevices is the built-in address table.
var KnownDevices = []struct{ Address, Model string }{
	{"C8:0F:10:80:D0:AA", "MI1S"},
}

// LookupModel finds a model by name, case-insensitively.
func LookupModel(name string) (Model, error) {
	if m, ok := models.Get(strings.ToUpper(name)); ok {
		return m, nil
	}
	return Model{}, fmt.Errorf("unknown model %q (known: %s)", name, strings.Join(ModelNames(), ", "))
}

// ModelNames lists the supported models in table order.
func ModelNames() []string {
	out := make([]string, 0, models.Len())
	for pair := models.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Key)
	}
	return out
}

// required lists the characteristics a connection must expose for this model.
func (m Model) required() []uuid.UUID {
	req := []uuid.UUID{
		CharDeviceInfo, CharDeviceName, CharNotification, CharUserInfo, CharControlPoint,
		CharRealtimeSteps, CharBattery, CharAlertLevel,
	}
	if m.HeartRate {
		req = append(req, CharHeartRateMeasurement, CharHeartRateControl)
	}
	return req
}

// Constructor returns a device.Constructor building bands of this model.
func Constructor(m Model, opts Options) device.Constructor {
	return func(p device.Peripheral) device.BluetoothDevice {
		return New(p, m, opts)
	}
}

// Register adds address → model to the registry.
func Register(r *device.Registry, address, model string, opts Options) error {
	m, err := LookupModel(model)
	if err != nil {
		return err
	}
	if _, err := device.AddressTail(address); err != nil {
		return err
	}
	r.Register(address, m.Name, Constructor(m, opts))
	return nil
}

// DefaultRegistry returns a registry holding KnownDevices.
func DefaultRegistry(opts Options) *device.Registry {
	r := device.NewRegistry()
	for _, d := range KnownDevices {
		if err := Register(r, d.Address, d.Model, opts); err != nil {
			panic(err)
		}
	}
	return r
}
