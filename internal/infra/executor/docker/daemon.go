// Package docker starts the ZAP engine as a local container.
package docker

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Daemon describes a detached zap.sh -daemon container.
type Daemon struct {
	Image         string
	ContainerName string
	Port          int    // host port mapped to the engine API
	APIKey        string // empty disables the API key check

	// Exec runs a command and returns its combined output. nil uses os/exec.
	Exec func(ctx context.Context, name string, args ...string) ([]byte, error)
}

const containerPort = 8080

// Args returns the docker run arguments.
func (d *Daemon) Args() []string {
	args := []string{"run", "-d", "--rm"}
	if d.ContainerName != "" {
		args = append(args, "--name", d.ContainerName)
	}
	args = append(args,
		"-p", fmt.Sprintf("%d:%d", d.Port, containerPort),
		d.Image,
		"zap.sh", "-daemon",
		"-host", "0.0.0.0",
		"-port", strconv.Itoa(containerPort),
		"-config", "api.addrs.addr.name=.*",
		"-config", "api.addrs.addr.regex=true",
	)
	if d.APIKey != "" {
		args = append(args, "-config", "api.key="+d.APIKey)
	} else {
		args = append(args, "-config", "api.disablekey=true")
	}
	return args
}

// Start launches the container and returns its id.
func (d *Daemon) Start(ctx context.Context) (string, error) {
	if d.Image == "" || d.Port <= 0 {
		return "", errors.New("docker: image and port are required")
	}
	out, err := d.exec(ctx, "docker", d.Args()...)
	if err != nil {
		return "", fmt.Errorf("docker run %s: %w, output=%s", d.Image, err, strings.TrimSpace(string(out)))
	}
	return strings.TrimSpace(string(out)), nil
}

// Stop removes the container by name.
func (d *Daemon) Stop(ctx context.Context) error {
	if d.ContainerName == "" {
		return nil
	}
	out, err := d.exec(ctx, "docker", "rm", "-f", d.ContainerName)
	if err != nil {
		return fmt.Errorf("docker rm %s: %w, output=%s", d.ContainerName, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// WaitReady calls check every interval until it succeeds or ctx ends.
func WaitReady(ctx context.Context, interval time.Duration, check func(context.Context) error) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	var last error
	for {
		if last = check(ctx); last == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("engine not ready: %w (last error: %v)", ctx.Err(), last)
		case <-t.C:
		}
	}
}

func (d *Daemon) exec(ctx context.Context, name string, args ...string) ([]byte, error) {
	if d.Exec != nil {
		return d.Exec(ctx, name, args...)
	}
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}
