package seriallink

import "go.uber.org/atomic"

// Stats is a point-in-time snapshot of link activity. Counters reset each
// time the link starts.
type Stats struct {
	// State is the connection state at snapshot time.
	State ConnState
	// Connects counts successful transport opens.
	Connects int64
	// Disconnects counts established transports that were lost.
	Disconnects int64
	// LinesReceived counts complete lines read from the device.
	LinesReceived int64
	// LinesDropped counts inbound messages discarded by the overflow
	// policy, connection events included.
	LinesDropped int64
	// LinesSent counts lines written to the device.
	LinesSent int64
	// WriteErrors counts failed writes. Each failed write also costs the
	// connection.
	WriteErrors int64
	// OutboundDropped counts pending outgoing lines evicted because the
	// outbound queue was full.
	OutboundDropped int64
}

// counters is the mutable backing store for Stats, written by the worker
// and the host concurrently.
type counters struct {
	connects        atomic.Int64
	disconnects     atomic.Int64
	linesReceived   atomic.Int64
	linesDropped    atomic.Int64
	linesSent       atomic.Int64
	writeErrors     atomic.Int64
	outboundDropped atomic.Int64
}

func (c *counters) snapshot(state ConnState) Stats {
	return Stats{
		State:           state,
		Connects:        c.connects.Load(),
		Disconnects:     c.disconnects.Load(),
		LinesReceived:   c.linesReceived.Load(),
		LinesDropped:    c.linesDropped.Load(),
		LinesSent:       c.linesSent.Load(),
		WriteErrors:     c.writeErrors.Load(),
		OutboundDropped: c.outboundDropped.Load(),
	}
}
