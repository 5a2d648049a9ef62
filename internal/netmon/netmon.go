// Package netmon pings a host periodically and reports reachability to the
// display manager and the network indicator.
package netmon

import (
	"context"
	"errors"
	"time"

	"github.com/go-ping/ping"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/photonicat/pcat2_slot_display/internal/indicator"
)

// Round trips at or above this are shown with a single bar.
const slowRTT = 500 * time.Millisecond

var ErrNoReply = errors.New("netmon: no reply")

// Pinger returns the round trip time to host.
type Pinger func(ctx context.Context, host string, timeout time.Duration) (time.Duration, error)

// Status receives the result of every check.
type Status interface {
	SetNetworkStatus(connected bool)
	SetIndicator(id uint8, on bool)
}

// Signal shows the link quality between 0 and 1.
type Signal interface {
	SetSignal(strength float64)
}

type Monitor struct {
	clock    clockwork.Clock
	pinger   Pinger
	status   Status
	signal   Signal
	host     string
	interval time.Duration
	timeout  time.Duration
}

func New(clock clockwork.Clock, pinger Pinger, host string, interval, timeout time.Duration,
	status Status, signal Signal,
) *Monitor {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if pinger == nil {
		pinger = ICMP
	}
	return &Monitor{
		clock:    clock,
		pinger:   pinger,
		status:   status,
		signal:   signal,
		host:     host,
		interval: interval,
		timeout:  timeout,
	}
}

// Run checks once right away and then every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	ticker := m.clock.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		m.Check(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
		}
	}
}

// Check pings the host once and publishes the result.
func (m *Monitor) Check(ctx context.Context) bool {
	rtt, err := m.pinger(ctx, m.host, m.timeout)
	connected := err == nil
	if err != nil {
		log.Debug().Err(err).Str("host", m.host).Msg("ping failed")
	} else {
		log.Debug().Str("host", m.host).Dur("rtt", rtt).Msg("ping")
	}

	m.status.SetNetworkStatus(connected)
	m.status.SetIndicator(indicator.IDNetwork, true)
	if m.signal != nil {
		m.signal.SetSignal(Strength(rtt, connected))
	}
	return connected
}

// Strength maps a round trip time to a signal strength. Any reply counts
// for at least one bar.
func Strength(rtt time.Duration, connected bool) float64 {
	if !connected {
		return 0
	}
	if rtt >= slowRTT {
		return 0.01
	}
	return max(1-float64(rtt)/float64(slowRTT), 0.01)
}

// ICMP sends a single privileged echo request. Raw ICMP usually needs
// root or CAP_NET_RAW.
func ICMP(ctx context.Context, host string, timeout time.Duration) (time.Duration, error) {
	pinger, err := ping.NewPinger(host)
	if err != nil {
		return 0, err
	}
	pinger.SetPrivileged(true)
	pinger.Count = 1
	pinger.Timeout = timeout

	stop := context.AfterFunc(ctx, pinger.Stop)
	defer stop()

	if err := pinger.Run(); err != nil {
		return 0, err
	}
	stats := pinger.Statistics()
	if stats.PacketsRecv == 0 {
		return 0, ErrNoReply
	}
	return stats.AvgRtt, nil
}
