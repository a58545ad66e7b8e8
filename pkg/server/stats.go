package server

import "runtime"

// ConnStats is a breakdown of the current connections.
type ConnStats struct {
	Total       int
	TCP         int
	WebSocket   int
	LoginScreen int
	Connected   int
	BytesSent   int
	BytesRecv   int
	Commands    int
}

// ConnectionStats walks the active descriptors and tallies them.
func (g *Game) ConnectionStats() ConnStats {
	var cs ConnStats
	for _, d := range g.Conns.AllDescriptors() {
		cs.Total++
		switch d.Transport {
		case TransportTCP:
			cs.TCP++
		case TransportWebSocket:
			cs.WebSocket++
		}
		switch d.State {
		case ConnLogin:
			cs.LoginScreen++
		case ConnConnected:
			cs.Connected++
		}
		cs.BytesSent += d.BytesSent
		cs.BytesRecv += d.BytesRecv
		cs.Commands += d.CmdCount
	}
	return cs
}

// MemStats is a snapshot of runtime memory usage.
type MemStats struct {
	HeapAllocMB float64
	Goroutines  int
	GCCycles    uint32
}

// MemoryStats reads the Go runtime counters.
func MemoryStats() MemStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return MemStats{
		HeapAllocMB: float64(m.HeapAlloc) / 1024 / 1024,
		Goroutines:  runtime.NumGoroutine(),
		GCCycles:    m.NumGC,
	}
}
