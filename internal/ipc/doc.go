// Package ipc relays band telemetry to local clients and collects their
// commands.
//
// Outbound frames are "MSG" | kind | payload, inbound frames are
// "CMD" | kind | action | payload. A Broker merges any number of telemetry
// streams into a single broadcast slot that every attached client follows,
// and funnels decoded commands from all clients into one bounded queue.
package ipc
