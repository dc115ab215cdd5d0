package compose

import (
	"path/filepath"
	"testing"

	"github.com/TheTarry/ha-harness/pkg/config"
)

func testState() State {
	return State{
		RunID:     "abc12345",
		NetworkID: "net-1",
		SharedDir: "/tmp/ha_harness_shared_x",
		Containers: map[string]ContainerState{
			ServiceHomeAssistant: {
				ContainerID:   "c1",
				Name:          "ha-harness-homeassistant-abc12345",
				HostPort:      49153,
				ContainerPort: 8123,
			},
			ServiceAppDaemon: {
				ContainerID:   "c2",
				Name:          "ha-harness-appdaemon-abc12345",
				HostPort:      49154,
				ContainerPort: 5050,
			},
		},
	}
}

func TestState_SaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	if err := SaveState(path, testState()); err != nil {
		t.Fatalf("SaveState() error = %v", err)
	}
	got, err := LoadState(path)
	if err != nil {
		t.Fatalf("LoadState() error = %v", err)
	}

	if got.RunID != "abc12345" || got.NetworkID != "net-1" {
		t.Errorf("loaded state = %+v", got)
	}
	ha, ok := got.Containers[ServiceHomeAssistant]
	if !ok || ha.HostPort != 49153 || ha.ContainerPort != 8123 {
		t.Errorf("homeassistant container state = %+v", ha)
	}
}

func TestLoadState_Missing(t *testing.T) {
	if _, err := LoadState(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Error("LoadState() on missing file succeeded")
	}
}

func TestAttach(t *testing.T) {
	cfg := &config.Harness{}
	cfg.Defaults()

	m, err := Attach(Config{Harness: cfg}, testState())
	if err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	defer m.Close()

	if m.RunID() != "abc12345" {
		t.Errorf("RunID() = %q", m.RunID())
	}
	url, err := m.URL(ServiceHomeAssistant)
	if err != nil {
		t.Fatalf("URL() error = %v", err)
	}
	if url != "http://localhost:49153" {
		t.Errorf("URL() = %q", url)
	}

	roundTrip := m.State()
	if len(roundTrip.Containers) != 2 {
		t.Errorf("State() round trip lost containers: %+v", roundTrip)
	}
}
