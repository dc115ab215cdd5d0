package compose

import (
	"encoding/json"
	"fmt"
	"os"
)

// State is the serializable description of a running environment, letting a
// later process reattach to containers started by an earlier one.
type State struct {
	RunID      string                    `json:"run_id"`
	NetworkID  string                    `json:"network_id"`
	SharedDir  string                    `json:"shared_dir"`
	StagedRoot string                    `json:"staged_root,omitempty"`
	Containers map[string]ContainerState `json:"containers"`
}

// ContainerState identifies one managed container.
type ContainerState struct {
	ContainerID   string `json:"container_id"`
	Name          string `json:"name"`
	HostPort      int    `json:"host_port"`
	ContainerPort int    `json:"container_port"`
}

// State snapshots the manager for persistence.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := State{
		RunID:      m.runID,
		NetworkID:  m.networkID,
		SharedDir:  m.sharedDir,
		StagedRoot: m.stagedRoot,
		Containers: make(map[string]ContainerState, len(m.containers)),
	}
	for service, mc := range m.containers {
		st.Containers[service] = ContainerState{
			ContainerID:   mc.containerID,
			Name:          mc.name,
			HostPort:      mc.hostPort,
			ContainerPort: mc.containerPort,
		}
	}
	return st
}

// Attach creates a manager bound to an environment started by a previous
// process.
func Attach(cfg Config, st State) (*Manager, error) {
	m, err := New(cfg)
	if err != nil {
		return nil, err
	}
	m.runID = st.RunID
	m.networkID = st.NetworkID
	m.sharedDir = st.SharedDir
	m.stagedRoot = st.StagedRoot
	for service, cs := range st.Containers {
		m.containers[service] = &managedContainer{
			containerID:   cs.ContainerID,
			name:          cs.Name,
			hostPort:      cs.HostPort,
			containerPort: cs.ContainerPort,
		}
	}
	return m, nil
}

// SaveState writes the state to a file.
func SaveState(path string, st State) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode environment state: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write environment state to %s: %w", path, err)
	}
	return nil
}

// LoadState reads a state file written by SaveState.
func LoadState(path string) (State, error) {
	var st State
	data, err := os.ReadFile(path)
	if err != nil {
		return st, fmt.Errorf("failed to read environment state from %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &st); err != nil {
		return st, fmt.Errorf("invalid environment state in %s: %w", path, err)
	}
	return st, nil
}
