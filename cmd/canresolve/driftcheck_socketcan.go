//go:build linux

package main

import (
	"fmt"

	"github.com/ampio/canresolve/internal/drift"
	"github.com/ampio/canresolve/internal/socketcan"
)

// openSocketCANSource opens a raw CAN socket on iface for driftcheck.
func openSocketCANSource(iface string) (drift.Source, func(), error) {
	dev, err := socketcan.Open(iface)
	if err != nil {
		return nil, nil, fmt.Errorf("driftcheck: open %s: %w", iface, err)
	}
	return dev, func() { _ = dev.Close() }, nil
}
