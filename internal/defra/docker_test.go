package defra

import (
	"context"
	"testing"

	"github.com/jackzampolin/temario/internal/testutil"
)

func TestDockerConfig_Defaults(t *testing.T) {
	var cfg DockerConfig
	cfg.setDefaults()

	if cfg.ContainerName != "temario-defra" {
		t.Errorf("ContainerName = %s", cfg.ContainerName)
	}
	if cfg.Image != DefaultImage {
		t.Errorf("Image = %s", cfg.Image)
	}
	if cfg.HostPort != "9181" {
		t.Errorf("HostPort = %s", cfg.HostPort)
	}
	if cfg.ReadyTimeout == 0 {
		t.Error("ReadyTimeout not defaulted")
	}
}

func TestContainerStatus(t *testing.T) {
	tests := []struct {
		state string
		want  ContainerStatus
	}{
		{"running", StatusRunning},
		{"exited", StatusStopped},
		{"dead", StatusStopped},
		{"created", StatusStarting},
		{"restarting", StatusStarting},
		{"paused", ContainerStatus("paused")},
	}
	for _, tt := range tests {
		if got := containerStatus(tt.state); got != tt.want {
			t.Errorf("containerStatus(%q) = %s, want %s", tt.state, got, tt.want)
		}
	}
}

func TestDockerManager_Integration(t *testing.T) {
	_ = testutil.DockerClient(t)

	ctx := context.Background()
	port, err := testutil.FindFreePort()
	if err != nil {
		t.Fatalf("FindFreePort() error = %v", err)
	}

	mgr, err := NewDockerManager(DockerConfig{
		ContainerName: testutil.UniqueContainerName(t, "defra"),
		DataPath:      t.TempDir(),
		HostPort:      port,
		Labels:        testutil.ContainerLabels(t),
	})
	if err != nil {
		t.Fatalf("NewDockerManager() error = %v", err)
	}
	defer mgr.Close()

	if err := mgr.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := mgr.ValidateExisting(ctx); err != nil {
		t.Errorf("ValidateExisting() error = %v", err)
	}
	if err := NewClient(mgr.URL()).HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	if err := mgr.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if status, _ := mgr.Status(ctx); status != StatusStopped {
		t.Errorf("status after stop = %s", status)
	}

	if err := mgr.Remove(ctx); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if status, _ := mgr.Status(ctx); status != StatusNotFound {
		t.Errorf("status after remove = %s", status)
	}
	if _, err := mgr.Logs(ctx, "10"); err == nil {
		t.Error("expected error for logs of removed container")
	}
}
