// Package timeouts defines shared timeout constants used across the
// service. Centralizing these values prevents drift between boundaries and
// makes the durations discoverable.
package timeouts

import "time"

// ReadHeader limits how long the HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long the HTTP server waits for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second

// Heartbeat is the interval between sweeps of the session registry for
// clients that stopped pinging.
const Heartbeat = 30 * time.Second

// SessionIdle is how long a session may go without any inbound message
// before a sweep releases it.
const SessionIdle = 90 * time.Second
