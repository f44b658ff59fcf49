// Package timeouts defines shared timeout constants used by the HTTP and
// websocket boundaries.
package timeouts

import "time"

// ReadHeader limits how long an HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long an HTTP server waits for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second

// SocketWrite caps a single websocket frame write so a stalled client cannot
// block room broadcasts.
const SocketWrite = 5 * time.Second

// OAuthExchange caps the code exchange and profile fetch against a social
// login provider.
const OAuthExchange = 10 * time.Second
