// Package dblock serializes test binaries that truncate the shared ledger
// database. go test runs packages in parallel, so the repository and service
// suites would otherwise wipe each other's accounts mid-run.
package dblock

import (
	"fmt"
	"net"
	"os"
	"time"
)

const (
	defaultAddr = "127.0.0.1:45432"
	waitLimit   = 5 * time.Minute
)

// Acquire blocks until this process holds the lock and returns its release
// func. The lock is a listening socket, so a crashed holder frees it.
func Acquire() func() {
	addr := os.Getenv("TEST_DB_LOCK_ADDR")
	if addr == "" {
		addr = defaultAddr
	}
	deadline := time.Now().Add(waitLimit)
	for {
		ln, err := net.Listen("tcp", addr)
		if err == nil {
			return func() { _ = ln.Close() }
		}
		if time.Now().After(deadline) {
			panic(fmt.Sprintf("dblock: could not acquire %s within %s: %v", addr, waitLimit, err))
		}
		time.Sleep(50 * time.Millisecond)
	}
}
