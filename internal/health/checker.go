// Package health reports service readiness through the standard grpc.health.v1 service.
//
// A Checker runs dependency probes (database, Redis, policy engine) and flips the health
// server between SERVING and NOT_SERVING for the overall server and each registered service.
package health

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// DefaultTimeout bounds a single probe.
const DefaultTimeout = 2 * time.Second

// Probe returns nil when the dependency is usable.
type Probe func(ctx context.Context) error

type probe struct {
	name string
	fn   Probe
}

// Checker owns a grpc health server and keeps its statuses in line with the probes.
type Checker struct {
	srv      *grpchealth.Server
	services []string
	timeout  time.Duration

	mu     sync.Mutex
	probes []probe
	last   error
}

// NewChecker returns a Checker that reports on the overall server ("") and services.
// All statuses start NOT_SERVING until the first check passes.
func NewChecker(srv *grpchealth.Server, services ...string) *Checker {
	c := &Checker{srv: srv, services: append([]string{""}, services...), timeout: DefaultTimeout}
	c.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return c
}

// WithTimeout sets the per-probe timeout. Non-positive values are ignored.
func (c *Checker) WithTimeout(d time.Duration) *Checker {
	if d > 0 {
		c.timeout = d
	}
	return c
}

// Add registers a named probe.
func (c *Checker) Add(name string, fn Probe) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.probes = append(c.probes, probe{name: name, fn: fn})
}

// Check runs every probe once and updates the health server. Returns the first failure.
func (c *Checker) Check(ctx context.Context) error {
	c.mu.Lock()
	probes := append([]probe(nil), c.probes...)
	c.mu.Unlock()

	var failed error
	for _, p := range probes {
		pctx, cancel := context.WithTimeout(ctx, c.timeout)
		err := p.fn(pctx)
		cancel()
		if err != nil {
			failed = fmt.Errorf("%s: %w", p.name, err)
			break
		}
	}

	c.mu.Lock()
	changed := (failed == nil) != (c.last == nil)
	c.last = failed
	c.mu.Unlock()

	if failed != nil {
		if changed {
			log.Printf("health: not serving: %v", failed)
		}
		c.set(healthpb.HealthCheckResponse_NOT_SERVING)
		return failed
	}
	c.set(healthpb.HealthCheckResponse_SERVING)
	return nil
}

// Run checks immediately and then every interval until ctx is done.
func (c *Checker) Run(ctx context.Context, interval time.Duration) {
	_ = c.Check(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = c.Check(ctx)
		}
	}
}

// Shutdown marks everything NOT_SERVING for good, so load balancers drain before the server stops.
func (c *Checker) Shutdown() {
	c.srv.Shutdown()
}

func (c *Checker) set(status healthpb.HealthCheckResponse_ServingStatus) {
	for _, svc := range c.services {
		c.srv.SetServingStatus(svc, status)
	}
}
