package dblock

import (
	"net"
	"time"
)

// Serializes DB-backed test packages against each other; go test runs
// packages in parallel and they share one database.
const lockAddr = "127.0.0.1:45433"

func Acquire() func() {
	for {
		ln, err := net.Listen("tcp", lockAddr)
		if err == nil {
			return func() { ln.Close() }
		}
		time.Sleep(50 * time.Millisecond)
	}
}
