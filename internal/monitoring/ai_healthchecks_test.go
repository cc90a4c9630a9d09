package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spacesedan/sentiment-aura/internal/models"
	"github.com/spacesedan/sentiment-aura/internal/providers"
)

type checkedProvider struct {
	id  models.ProviderID
	err error
}

func (p checkedProvider) ID() models.ProviderID { return p.id }

func (p checkedProvider) Analyze(context.Context, string) (models.ProviderResult, error) {
	return models.ProviderResult{}, nil
}

func (p checkedProvider) HealthCheck(context.Context) error { return p.err }

type plainProvider struct{ id models.ProviderID }

func (p plainProvider) ID() models.ProviderID { return p.id }

func (p plainProvider) Analyze(context.Context, string) (models.ProviderResult, error) {
	return models.ProviderResult{}, nil
}

func TestCheckProviders(t *testing.T) {
	status := NewHealthStatus()
	ps := []providers.Provider{
		checkedProvider{id: "up"},
		checkedProvider{id: "down", err: errors.New("503")},
		plainProvider{id: "local"},
	}

	CheckProviders(context.Background(), ps, status)

	if !status.Healthy("up") || status.Healthy("down") {
		t.Fatalf("unexpected health: up=%v down=%v", status.Healthy("up"), status.Healthy("down"))
	}
	if !status.Healthy("local") {
		t.Fatalf("providers without health checks are assumed healthy")
	}

	snap := status.Snapshot()
	if len(snap) != 2 || snap[0].Provider != "down" || snap[1].Provider != "up" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestMonitorProviderHealthStopsWithContext(t *testing.T) {
	status := NewHealthStatus()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		MonitorProviderHealth(ctx, []providers.Provider{checkedProvider{id: "up"}}, 5*time.Millisecond, status)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("monitor did not stop")
	}
	if len(status.Snapshot()) != 1 {
		t.Fatalf("expected the provider to have been checked")
	}
}
