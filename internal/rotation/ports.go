package rotation

import (
	"fmt"
	"net"
	"strconv"
)

const maxPort = 65535

// Default automation driver ports per browser.
const (
	FirefoxBasePort = 4444
	ChromeBasePort  = 9515
)

// BasePort returns the driver port a browser's jobs start from.
func BasePort(browser string) int {
	if browser == "chrome" {
		return ChromeBasePort
	}
	return FirefoxBasePort
}

// PortAllocator hands out increasing local ports that were free at
// allocation time. It is used only by the submission loop and is not safe
// for concurrent use.
type PortAllocator struct {
	next  int
	probe func(port int) bool
	// onSkip is told about ports that failed the probe.
	onSkip func(port int)
}

// NewPortAllocator starts allocating at base.
func NewPortAllocator(base int) *PortAllocator {
	return &PortAllocator{next: base, probe: bindable}
}

// Next returns the next port that passes a bind probe.
func (a *PortAllocator) Next() (int, error) {
	for port := a.next; port <= maxPort; port++ {
		if a.probe(port) {
			a.next = port + 1
			return port, nil
		}
		if a.onSkip != nil {
			a.onSkip(port)
		}
	}
	return 0, fmt.Errorf("no free local port at or above %d", a.next)
}

// bindable reports whether a TCP listener can bind port on the loopback
// interface right now.
func bindable(port int) bool {
	l, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		return false
	}
	_ = l.Close()
	return true
}
