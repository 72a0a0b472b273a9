// Package device defines the capability contracts a wearable may implement,
// the BluetoothDevice abstraction that exposes them, and the transport boundary
// (Peripheral, Characteristic) a protocol engine talks to.
//
// Capabilities are segregated into narrow interfaces:
//   - Alert: vibration alerts
//   - Battery: battery record reads and notifications
//   - HeartRate: on-demand, continuous and sleep measurement
//   - Steps: step counter reads, writes and realtime notifications
//   - Settings: identity, clock, alarms and maintenance commands
//
// A BluetoothDevice resolves which of them it supports once, at construction.
// An unsupported capability is reported by its accessor, never as an error.
package device
