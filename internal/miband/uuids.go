package miband

import "github.com/srg/inoli/internal/device"

// GATT layout of the Mi Band 1 family.
var (
	ServiceMiBand = device.UUID16(0xFEE0)

	CharDeviceInfo    = device.UUID16(0xFF01)
	CharDeviceName    = device.UUID16(0xFF02)
	CharNotification  = device.UUID16(0xFF03)
	CharUserInfo      = device.UUID16(0xFF04)
	CharControlPoint  = device.UUID16(0xFF05)
	CharRealtimeSteps = device.UUID16(0xFF06)
	CharActivity      = device.UUID16(0xFF07)
	CharLEParams      = device.UUID16(0xFF09)
	CharDateTime      = device.UUID16(0xFF0A)
	CharBattery       = device.UUID16(0xFF0C)
	CharPair          = device.UUID16(0xFF0F)
	CharMAC           = device.UUID16(0xFEC9)

	ServiceImmediateAlert = device.UUID16(0x1802)
	CharAlertLevel        = device.UUID16(0x2A06)

	ServiceHeartRate         = device.UUID16(0x180D)
	CharHeartRateMeasurement = device.UUID16(0x2A37)
	CharHeartRateControl     = device.UUID16(0x2A39)
)
