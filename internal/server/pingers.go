package server

import (
	"context"
	"fmt"
)

// funcPinger adapts a probe function to the Pinger interface.
type funcPinger struct {
	// name identifies the dependency in readiness responses.
	name string
	// probe returns nil when the dependency is reachable.
	probe func(ctx context.Context) error
}

// NewPinger returns a Pinger named name that calls probe.
func NewPinger(name string, probe func(ctx context.Context) error) Pinger {
	return &funcPinger{name: name, probe: probe}
}

// Name returns the dependency label used in readiness responses.
func (p *funcPinger) Name() string { return p.name }

// Ping runs the probe.
func (p *funcPinger) Ping(ctx context.Context) error {
	if err := p.probe(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// healthChecker is satisfied by *rag.QdrantIndex.
type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

// NewQdrantPinger probes Qdrant through its native HealthCheck RPC.
func NewQdrantPinger(idx healthChecker) Pinger {
	return NewPinger("qdrant", idx.HealthCheck)
}

// pingable is satisfied by *store.SQLiteStore.
type pingable interface {
	Ping(ctx context.Context) error
}

// NewSQLitePinger probes the metadata database.
func NewSQLitePinger(db pingable) Pinger {
	return NewPinger("sqlite", db.Ping)
}
