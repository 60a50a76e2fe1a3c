// Package dockerpool implements C13: a pool of recyclable sandbox
// containers for shell-capable tape handlers (tapes whose manifest declares
// permissions.shell: true). Grounded on the teacher's pluggable container
// runtime abstraction, trimmed to the single-host Docker backend — the
// spec's single-host-orchestrator non-goal rules out the teacher's
// multi-host Kubernetes backend.
package dockerpool

import (
	"context"
	"fmt"
	"io"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
)

// Backend abstracts the container runtime so PoolManager does not depend on
// Docker directly.
type Backend interface {
	CreateContainer(ctx context.Context, image string) (containerID string, err error)
	StartContainer(ctx context.Context, containerID string) error
	RemoveContainer(ctx context.Context, containerID string) error
	ExecInContainer(ctx context.Context, containerID string, cmd []string) ([]byte, error)
	Name() string
}

// DockerBackend implements Backend using the local Docker daemon, optionally
// under a gVisor (runsc) runtime for additional kernel isolation.
type DockerBackend struct {
	runtime string
}

// NewDockerBackend creates a Docker-based pool backend. Set runtime to
// "runsc" for gVisor sandboxing, or "" for the default runtime.
func NewDockerBackend(runtime string) *DockerBackend {
	return &DockerBackend{runtime: runtime}
}

func (d *DockerBackend) Name() string {
	if d.runtime != "" {
		return fmt.Sprintf("docker-local/%s", d.runtime)
	}
	return "docker-local"
}

func (d *DockerBackend) CreateContainer(ctx context.Context, image string) (string, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return "", fmt.Errorf("docker client: %w", err)
	}
	defer cli.Close()

	hostConfig := &container.HostConfig{
		NetworkMode:    "none",
		ReadonlyRootfs: true,
		Resources: container.Resources{
			NanoCPUs: 1_000_000_000,
			Memory:   512 * 1024 * 1024,
		},
		Tmpfs: map[string]string{
			"/tmp": "rw,noexec,nosuid,size=64m",
		},
	}
	if d.runtime != "" {
		hostConfig.Runtime = d.runtime
	}

	resp, err := cli.ContainerCreate(ctx, &container.Config{
		Image: image,
		Tty:   false,
		Cmd:   []string{"sleep", "infinity"},
	}, hostConfig, nil, nil, "")
	if err != nil {
		return "", fmt.Errorf("create container: %w", err)
	}

	return resp.ID, nil
}

func (d *DockerBackend) StartContainer(ctx context.Context, containerID string) error {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return err
	}
	defer cli.Close()

	return cli.ContainerStart(ctx, containerID, types.ContainerStartOptions{})
}

func (d *DockerBackend) RemoveContainer(ctx context.Context, containerID string) error {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return err
	}
	defer cli.Close()

	return cli.ContainerRemove(ctx, containerID, types.ContainerRemoveOptions{Force: true})
}

func (d *DockerBackend) ExecInContainer(ctx context.Context, containerID string, cmd []string) ([]byte, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, err
	}
	defer cli.Close()

	execConfig := types.ExecConfig{
		User:         "sandboxuser",
		AttachStdout: true,
		AttachStderr: true,
		Cmd:          cmd,
	}

	execID, execErr := cli.ContainerExecCreate(ctx, containerID, execConfig)
	if execErr != nil {
		return nil, fmt.Errorf("exec create: %w", execErr)
	}

	resp, execErr := cli.ContainerExecAttach(ctx, execID.ID, types.ExecStartCheck{})
	if execErr != nil {
		return nil, fmt.Errorf("exec attach: %w", execErr)
	}
	defer resp.Close()

	output, _ := io.ReadAll(resp.Reader)
	return output, nil
}
