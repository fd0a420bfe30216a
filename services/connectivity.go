package services

import (
	"net"
	"time"

	"wakeassist/config"

	"go.uber.org/zap"
)

// Connectivity reports whether the uplink is usable and maintains that
// knowledge on its own cadence.
type Connectivity interface {
	IsLinkUp() bool
	Maintain()
	OnLinkChange(hook func(up bool))
}

// ProbeConnectivity determines link state by dialing a well-known
// endpoint at the connectivity check interval. The result is cached
// between checks; hooks fire synchronously on observed transitions.
type ProbeConnectivity struct {
	addr     string
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger

	lastCheckAt time.Time
	checked     bool
	up          bool
	hooks       []func(bool)

	now  func() time.Time
	dial func(network, addr string, timeout time.Duration) (net.Conn, error)
}

func NewProbeConnectivity(cfg *config.Config, logger *zap.Logger) *ProbeConnectivity {
	return &ProbeConnectivity{
		addr:     cfg.ConnProbeAddr,
		interval: cfg.ConnCheckInterval,
		timeout:  cfg.ConnProbeTimeout,
		logger:   logger,
		now:      time.Now,
		dial:     net.DialTimeout,
	}
}

// IsLinkUp returns the cached link state from the last probe.
func (p *ProbeConnectivity) IsLinkUp() bool {
	return p.up
}

// OnLinkChange registers a hook invoked on every up/down transition.
func (p *ProbeConnectivity) OnLinkChange(hook func(up bool)) {
	p.hooks = append(p.hooks, hook)
}

// Maintain probes the link if the check interval has elapsed. The first
// call always probes.
func (p *ProbeConnectivity) Maintain() {
	now := p.now()
	if p.checked && now.Sub(p.lastCheckAt) < p.interval {
		return
	}
	p.lastCheckAt = now
	p.checked = true

	up := p.probe()
	if up == p.up {
		return
	}

	p.up = up
	if up {
		p.logger.Info("Link restored", zap.String("probe_addr", p.addr))
	} else {
		p.logger.Warn("Link lost", zap.String("probe_addr", p.addr))
	}

	for _, hook := range p.hooks {
		hook(up)
	}
}

func (p *ProbeConnectivity) probe() bool {
	conn, err := p.dial("tcp", p.addr, p.timeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
