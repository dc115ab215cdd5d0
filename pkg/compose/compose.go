// Package compose manages the Docker test environment: a Home Assistant and
// an AppDaemon container on an isolated network, with ephemeral host ports so
// parallel runs do not collide. It also provides file I/O against running
// containers, which is how the logical clock reaches libfaketime.
package compose

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"al.essio.dev/pkg/shellescape"
	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
	"github.com/google/uuid"

	"github.com/TheTarry/ha-harness/pkg/config"
	"github.com/TheTarry/ha-harness/pkg/timemachine"
)

// Well-known paths inside the containers. Both services mount the same
// shared data directory.
const (
	SharedDataMount = "/shared_data"

	// FaketimeFile is watched by libfaketime inside the containers; writing
	// a new value changes the time every process in them observes.
	FaketimeFile = SharedDataMount + "/.faketime"

	// TokenFile is where the Home Assistant container publishes its
	// long-lived access token during startup.
	TokenFile = SharedDataMount + "/.ha_token"
)

const (
	haConfigMount = "/config"
	adConfigMount = "/conf"

	labelRun     = "ha-harness.run"
	labelService = "ha-harness.service"
)

// Config configures the environment manager.
type Config struct {
	Harness *config.Harness

	// Logger for container lifecycle operations.
	Logger *slog.Logger
}

// Manager owns the lifecycle of the test environment containers.
type Manager struct {
	client *client.Client
	cfg    *config.Harness
	logger *slog.Logger

	// runID isolates this environment's containers and network from any
	// other harness run on the same daemon.
	runID string

	mu         sync.Mutex
	networkID  string
	sharedDir  string
	stagedRoot string
	containers map[string]*managedContainer
}

type managedContainer struct {
	containerID   string
	name          string
	hostPort      int
	containerPort int
}

// New creates an environment manager. The environment is not started
// automatically; call Start.
func New(cfg Config) (*Manager, error) {
	if cfg.Harness == nil {
		return nil, fmt.Errorf("compose: harness config is required")
	}
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		client:     cli,
		cfg:        cfg.Harness,
		logger:     logger,
		runID:      uuid.New().String()[:8],
		containers: make(map[string]*managedContainer),
	}, nil
}

// RunID identifies this environment instance.
func (m *Manager) RunID() string {
	return m.runID
}

// Start launches the environment: stages the Home Assistant configuration,
// creates the isolated network, starts both containers, and waits for them to
// become healthy within the configured start timeout.
func (m *Manager) Start(ctx context.Context) error {
	m.logger.Debug("starting test environment", slog.String("run_id", m.runID))

	haRoot := m.cfg.HomeAssistant.ConfigRoot
	if m.cfg.PersistentEntitiesPath != "" {
		staged, err := stageHAConfig(haRoot, m.cfg.PersistentEntitiesPath)
		if err != nil {
			return err
		}
		m.mu.Lock()
		m.stagedRoot = staged
		m.mu.Unlock()
		haRoot = staged
	}

	sharedDir, err := os.MkdirTemp("", "ha_harness_shared_")
	if err != nil {
		return fmt.Errorf("failed to create shared data directory: %w", err)
	}
	// Containers start with real time until an override is applied.
	if err := os.WriteFile(sharedDir+"/.faketime", []byte(timemachine.ResetSentinel), 0o666); err != nil {
		return fmt.Errorf("failed to seed faketime file: %w", err)
	}
	m.mu.Lock()
	m.sharedDir = sharedDir
	m.mu.Unlock()

	netName := "ha-harness-" + m.runID
	netResp, err := m.client.NetworkCreate(ctx, netName, types.NetworkCreate{Driver: "bridge"})
	if err != nil {
		return fmt.Errorf("failed to create network %s: %w", netName, err)
	}
	m.mu.Lock()
	m.networkID = netResp.ID
	m.mu.Unlock()

	startCtx, cancel := context.WithTimeout(ctx, time.Duration(m.cfg.StartTimeout))
	defer cancel()

	if err := m.startService(startCtx, ServiceHomeAssistant, m.cfg.HomeAssistant, haRoot, haConfigMount, netName, []string{
		"TZ=UTC",
		"FAKETIME_TIMESTAMP_FILE=" + FaketimeFile,
		"FAKETIME_NO_CACHE=1",
		"FAKETIME_DONT_FAKE_MONOTONIC=1",
	}); err != nil {
		return m.startupFailure(ctx, err)
	}

	if err := m.startService(startCtx, ServiceAppDaemon, m.cfg.AppDaemon, m.cfg.AppDaemon.ConfigRoot, adConfigMount, netName, []string{
		"TZ=UTC",
		"FAKETIME_TIMESTAMP_FILE=" + FaketimeFile,
		"FAKETIME_NO_CACHE=1",
		"FAKETIME_DONT_FAKE_MONOTONIC=1",
		fmt.Sprintf("HA_URL=http://%s:%d", ServiceHomeAssistant, m.cfg.HomeAssistant.Port),
	}); err != nil {
		return m.startupFailure(ctx, err)
	}

	m.logger.Debug("test environment started",
		slog.String("run_id", m.runID),
		slog.String("homeassistant_url", m.serviceURL(ServiceHomeAssistant)),
		slog.String("appdaemon_url", m.serviceURL(ServiceAppDaemon)),
	)
	return nil
}

func (m *Manager) startupFailure(ctx context.Context, cause error) error {
	diag := m.Diagnostics(ctx)
	m.Stop(ctx)
	return fmt.Errorf("failed to start test environment (run: %s): %w\n\n%s", m.runID, cause, diag)
}

func (m *Manager) startService(ctx context.Context, service string, svc config.Service, configRoot, configMount, netName string, env []string) error {
	if err := m.ensureImage(ctx, svc.Image); err != nil {
		return err
	}

	port := nat.Port(fmt.Sprintf("%d/tcp", svc.Port))
	name := fmt.Sprintf("ha-harness-%s-%s", service, m.runID)

	containerCfg := &container.Config{
		Image:        svc.Image,
		Env:          env,
		ExposedPorts: nat.PortSet{port: struct{}{}},
		Labels: map[string]string{
			labelRun:     m.runID,
			labelService: service,
		},
	}

	binds := []string{m.sharedDir + ":" + SharedDataMount}
	if configRoot != "" {
		binds = append(binds, configRoot+":"+configMount)
	}
	hostCfg := &container.HostConfig{
		Binds: binds,
		PortBindings: nat.PortMap{
			port: []nat.PortBinding{
				{HostIP: "127.0.0.1", HostPort: ""}, // Random port
			},
		},
	}

	networkCfg := &network.NetworkingConfig{
		EndpointsConfig: map[string]*network.EndpointSettings{
			netName: {Aliases: []string{service}},
		},
	}

	resp, err := m.client.ContainerCreate(ctx, containerCfg, hostCfg, networkCfg, nil, name)
	if err != nil {
		return fmt.Errorf("failed to create %s container: %w", service, err)
	}

	m.mu.Lock()
	m.containers[service] = &managedContainer{
		containerID:   resp.ID,
		name:          name,
		containerPort: svc.Port,
	}
	m.mu.Unlock()

	if err := m.client.ContainerStart(ctx, resp.ID, types.ContainerStartOptions{}); err != nil {
		return fmt.Errorf("failed to start %s container: %w", service, err)
	}

	if err := m.waitHealthy(ctx, service, resp.ID); err != nil {
		return err
	}

	inspect, err := m.client.ContainerInspect(ctx, resp.ID)
	if err != nil {
		return fmt.Errorf("failed to inspect %s container: %w", service, err)
	}
	bindings := inspect.NetworkSettings.Ports[port]
	if len(bindings) == 0 {
		return fmt.Errorf("no host port binding found for %s", service)
	}
	hostPort, err := strconv.Atoi(bindings[0].HostPort)
	if err != nil {
		return fmt.Errorf("unparseable host port %q for %s: %w", bindings[0].HostPort, service, err)
	}

	m.mu.Lock()
	m.containers[service].hostPort = hostPort
	m.mu.Unlock()

	m.logger.Info("container started",
		slog.String("service", service),
		slog.String("container_id", resp.ID[:12]),
		slog.Int("host_port", hostPort),
	)
	return nil
}

// waitHealthy polls the container until it is running and, when a healthcheck
// is defined, reports healthy. A container that exits during startup fails
// immediately.
func (m *Manager) waitHealthy(ctx context.Context, service, containerID string) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		inspect, err := m.client.ContainerInspect(ctx, containerID)
		if err != nil {
			return fmt.Errorf("failed to inspect %s container: %w", service, err)
		}
		state := inspect.State
		if state != nil {
			if state.Status == "exited" || state.Status == "dead" {
				return fmt.Errorf("%s container exited during startup (exit code %d)", service, state.ExitCode)
			}
			if state.Running && (state.Health == nil || state.Health.Status == "healthy") {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("timed out waiting for %s container to become healthy: %w", service, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (m *Manager) ensureImage(ctx context.Context, image string) error {
	_, _, err := m.client.ImageInspectWithRaw(ctx, image)
	if err == nil {
		return nil
	}

	m.logger.Info("pulling image", slog.String("image", image))
	reader, err := m.client.ImagePull(ctx, image, types.ImagePullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", image, err)
	}
	defer reader.Close()
	io.Copy(io.Discard, reader) // Wait for pull to complete
	return nil
}

// Stop tears the environment down: containers, network, and the staged
// directories. Safe to call multiple times; errors during shutdown are
// logged, not returned.
func (m *Manager) Stop(ctx context.Context) {
	m.mu.Lock()
	containers := m.containers
	networkID := m.networkID
	sharedDir := m.sharedDir
	stagedRoot := m.stagedRoot
	m.containers = make(map[string]*managedContainer)
	m.networkID = ""
	m.sharedDir = ""
	m.stagedRoot = ""
	m.mu.Unlock()

	stopTimeout := 10 * time.Second
	for service, mc := range containers {
		timeoutSecs := int(stopTimeout.Seconds())
		if err := m.client.ContainerStop(ctx, mc.containerID, container.StopOptions{Timeout: &timeoutSecs}); err != nil {
			m.logger.Warn("failed to stop container",
				slog.String("service", service),
				slog.String("error", err.Error()),
			)
		}
		if err := m.client.ContainerRemove(ctx, mc.containerID, types.ContainerRemoveOptions{Force: true, RemoveVolumes: true}); err != nil {
			m.logger.Warn("failed to remove container",
				slog.String("service", service),
				slog.String("error", err.Error()),
			)
		}
	}

	if networkID != "" {
		if err := m.client.NetworkRemove(ctx, networkID); err != nil {
			m.logger.Warn("failed to remove network", slog.String("error", err.Error()))
		}
	}
	for _, dir := range []string{sharedDir, stagedRoot} {
		if dir == "" {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			m.logger.Warn("failed to clean up staging directory",
				slog.String("dir", dir),
				slog.String("error", err.Error()),
			)
		}
	}
}

// Close releases the Docker client.
func (m *Manager) Close() error {
	return m.client.Close()
}

// URL returns the host-side base URL for a service.
func (m *Manager) URL(service string) (string, error) {
	u := m.serviceURL(service)
	if u == "" {
		return "", fmt.Errorf("no container found for service %s", service)
	}
	return u, nil
}

func (m *Manager) serviceURL(service string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	mc, ok := m.containers[service]
	if !ok || mc.hostPort == 0 {
		return ""
	}
	return fmt.Sprintf("http://localhost:%d", mc.hostPort)
}

// Containers returns a snapshot of every container in the environment,
// including log tails for diagnostics.
func (m *Manager) Containers(ctx context.Context) []Container {
	m.mu.Lock()
	managed := make(map[string]*managedContainer, len(m.containers))
	for k, v := range m.containers {
		managed[k] = v
	}
	m.mu.Unlock()

	out := make([]Container, 0, len(managed))
	for service, mc := range managed {
		c := Container{
			Service:       service,
			Name:          mc.name,
			ContainerID:   mc.containerID,
			URL:           m.serviceURL(service),
			HostPort:      mc.hostPort,
			ContainerPort: mc.containerPort,
		}

		if inspect, err := m.client.ContainerInspect(ctx, mc.containerID); err == nil && inspect.State != nil {
			c.Status = inspect.State.Status
			c.ExitCode = inspect.State.ExitCode
			if inspect.State.Health != nil {
				c.Health = inspect.State.Health.Status
			}
		}
		c.Stdout, c.Stderr = m.containerLogs(ctx, mc.containerID)
		out = append(out, c)
	}
	return out
}

func (m *Manager) containerLogs(ctx context.Context, containerID string) (string, string) {
	reader, err := m.client.ContainerLogs(ctx, containerID, types.ContainerLogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       "100",
	})
	if err != nil {
		return "", fmt.Sprintf("<<failed to read logs: %v>>", err)
	}
	defer reader.Close()

	var stdout, stderr bytes.Buffer
	stdcopy.StdCopy(&stdout, &stderr, reader)
	return stdout.String(), stderr.String()
}

// Diagnostics dumps status and log tails for every container.
func (m *Manager) Diagnostics(ctx context.Context) string {
	var b strings.Builder
	b.WriteString("========== CONTAINER DIAGNOSTICS ==========\n")
	for _, c := range m.Containers(ctx) {
		b.WriteString(c.String())
		b.WriteString("\n")
	}
	b.WriteString("========== END DIAGNOSTICS ==========")
	return b.String()
}

// Healthy reports whether every container is running and passing its
// healthcheck.
func (m *Manager) Healthy(ctx context.Context) bool {
	m.mu.Lock()
	n := len(m.containers)
	m.mu.Unlock()
	if n == 0 {
		return false
	}

	for _, c := range m.Containers(ctx) {
		if c.Status != "running" || (c.Health != "" && c.Health != "healthy") {
			m.logger.Warn("container is unhealthy",
				slog.String("service", c.Service),
				slog.String("status", c.Status),
				slog.String("health", c.Health),
			)
			return false
		}
	}
	return true
}

// Exec runs a command in a service's container and returns its output.
// A non-zero exit status is an error.
func (m *Manager) Exec(ctx context.Context, service string, cmd []string, stdin string) (string, string, error) {
	m.mu.Lock()
	mc, ok := m.containers[service]
	m.mu.Unlock()
	if !ok {
		return "", "", fmt.Errorf("no container found for service %s", service)
	}

	execResp, err := m.client.ContainerExecCreate(ctx, mc.containerID, types.ExecConfig{
		Cmd:          cmd,
		AttachStdin:  stdin != "",
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to create exec in %s: %w", service, err)
	}

	attach, err := m.client.ContainerExecAttach(ctx, execResp.ID, types.ExecStartCheck{})
	if err != nil {
		return "", "", fmt.Errorf("failed to attach exec in %s: %w", service, err)
	}
	defer attach.Close()

	if stdin != "" {
		if _, err := io.WriteString(attach.Conn, stdin); err != nil {
			return "", "", fmt.Errorf("failed to write exec stdin in %s: %w", service, err)
		}
		attach.CloseWrite()
	}

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, attach.Reader); err != nil {
		return "", "", fmt.Errorf("failed to read exec output in %s: %w", service, err)
	}

	inspect, err := m.client.ContainerExecInspect(ctx, execResp.ID)
	if err != nil {
		return "", "", fmt.Errorf("failed to inspect exec in %s: %w", service, err)
	}
	if inspect.ExitCode != 0 {
		return stdout.String(), stderr.String(),
			fmt.Errorf("command %v in %s exited with code %d: %s", cmd, service, inspect.ExitCode, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), stderr.String(), nil
}

// ReadContainerFile reads a file from a running container. An empty file is
// an error: the callers use this for files the containers are expected to
// have populated.
func (m *Manager) ReadContainerFile(ctx context.Context, service, path string) (string, error) {
	stdout, _, err := m.Exec(ctx, service, []string{"cat", path}, "")
	if err != nil {
		return "", fmt.Errorf("failed to read file %s from %s: %w", path, service, err)
	}
	content := strings.TrimSpace(stdout)
	if content == "" {
		return "", fmt.Errorf("file %s in %s is empty", path, service)
	}
	return content, nil
}

// WriteContainerFile atomically replaces a file in a running container by
// writing a temp file and renaming it, so a concurrent reader never observes
// a partial write. A no-op when the container is not running, which makes it
// safe during teardown.
func (m *Manager) WriteContainerFile(ctx context.Context, service, path, content string) error {
	m.mu.Lock()
	_, ok := m.containers[service]
	m.mu.Unlock()
	if !ok {
		m.logger.Debug("skipping container file write, service not available",
			slog.String("service", service),
			slog.String("path", path),
		)
		return nil
	}

	tmpPath := path + ".tmp"
	script := fmt.Sprintf("cat > %s && mv %s %s",
		shellescape.Quote(tmpPath), shellescape.Quote(tmpPath), shellescape.Quote(path))
	if _, _, err := m.Exec(ctx, service, []string{"sh", "-c", script}, content); err != nil {
		return fmt.Errorf("failed to write file %s to %s: %w", path, service, err)
	}
	return nil
}

// TimeSink adapts the manager into the sink the time engine drives: each
// value is written to the libfaketime control file in the Home Assistant
// container.
func (m *Manager) TimeSink() timemachine.Sink {
	return timemachine.SinkFunc(func(ctx context.Context, value string) error {
		return m.WriteContainerFile(ctx, ServiceHomeAssistant, FaketimeFile, value)
	})
}
