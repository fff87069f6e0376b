//go:build !linux

package main

import (
	"fmt"

	"github.com/ampio/canresolve/internal/drift"
)

// openSocketCANSource is a placeholder so non-linux builds compile;
// SocketCAN is a Linux-only facility.
func openSocketCANSource(iface string) (drift.Source, func(), error) {
	return nil, func() {}, fmt.Errorf("socketcan backend unsupported on this platform")
}
