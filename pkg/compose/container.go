package compose

import (
	"fmt"
	"strings"
)

// Service names for the two containers in the environment.
const (
	ServiceHomeAssistant = "homeassistant"
	ServiceAppDaemon     = "appdaemon"
)

// Container is a point-in-time snapshot of one container in the environment.
type Container struct {
	Service     string
	Name        string
	ContainerID string

	// URL is the HTTP base URL for the service, using the ephemeral host
	// port Docker assigned. Empty when no port is mapped.
	URL string

	// HostPort is the ephemeral host port, ContainerPort the service's
	// fixed internal port. Zero when no mapping exists.
	HostPort      int
	ContainerPort int

	Status   string
	Health   string
	ExitCode int

	// Stdout and Stderr hold the tail of the container's log streams,
	// captured for diagnostics.
	Stdout string
	Stderr string
}

func (c Container) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Service: %s\n", c.Service)
	fmt.Fprintf(&b, "Container: %s (ID: %s)\n", c.Name, c.ContainerID)
	fmt.Fprintf(&b, "URL: %s\n", c.URL)
	fmt.Fprintf(&b, "Host Port: %d\n", c.HostPort)
	fmt.Fprintf(&b, "Container Port: %d\n", c.ContainerPort)
	fmt.Fprintf(&b, "Status: %s\n", c.Status)
	fmt.Fprintf(&b, "Health: %s\n", c.Health)
	fmt.Fprintf(&b, "Exit Code: %d\n", c.ExitCode)
	fmt.Fprintf(&b, "Stdout:\n%s\n", orEmpty(c.Stdout))
	fmt.Fprintf(&b, "Stderr:\n%s", orEmpty(c.Stderr))
	return b.String()
}

func orEmpty(s string) string {
	if s == "" {
		return "<<empty>>"
	}
	return s
}
