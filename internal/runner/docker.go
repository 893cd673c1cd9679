package runner

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// Docker runs each stage in a throwaway container with the job's scratch
// directory bind-mounted and networking disabled. This bounds resources;
// it is not a security sandbox.
type Docker struct {
	client   *client.Client
	memoryMB int64
	logger   *slog.Logger
}

func NewDocker(memoryMB int, logger *slog.Logger) (*Docker, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}
	return &Docker{client: cli, memoryMB: int64(memoryMB), logger: logger}, nil
}

func (d *Docker) Run(ctx context.Context, stage Stage) <-chan Event {
	events := make(chan Event, 64)
	go d.run(ctx, stage, events)
	return events
}

func (d *Docker) run(ctx context.Context, stage Stage, events chan<- Event) {
	defer close(events)

	if len(stage.Argv) == 0 {
		events <- errorEvent(ReasonStartFailed, "no command specified")
		return
	}
	if stage.Image == "" {
		events <- errorEvent(ReasonStartFailed, "language has no container image; use the local runner")
		return
	}

	// Cleanup must happen even when ctx is already canceled, so container
	// API calls on the teardown paths use the background context.
	resp, err := d.client.ContainerCreate(ctx, &container.Config{
		Image:      stage.Image,
		Cmd:        stage.Argv,
		WorkingDir: stage.WorkDir,
	}, &container.HostConfig{
		NetworkMode: "none",
		Binds:       []string{fmt.Sprintf("%s:%s:rw", stage.HostDir, stage.WorkDir)},
		Resources: container.Resources{
			Memory: d.memoryMB << 20,
		},
	}, nil, nil, "")
	if err != nil {
		events <- errorEvent(ReasonStartFailed, fmt.Sprintf("container create failed: %v", err))
		return
	}
	defer d.client.ContainerRemove(context.Background(), resp.ID, container.RemoveOptions{Force: true})

	logger := d.logger.With("container_id", resp.ID, "image", stage.Image)

	if err := d.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		events <- errorEvent(ReasonStartFailed, fmt.Sprintf("container start failed: %v", err))
		return
	}
	logger.Debug("container started")

	logs, err := d.client.ContainerLogs(context.Background(), resp.ID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
	if err != nil {
		events <- errorEvent(ReasonStartFailed, fmt.Sprintf("attaching container logs failed: %v", err))
		return
	}
	defer logs.Close()

	// The multiplexed log stream is split back into stdout/stderr and
	// decoded line by line, like the local runner's pipes.
	outR, outW := io.Pipe()
	errR, errW := io.Pipe()
	var readers sync.WaitGroup
	readers.Add(2)
	go scanLines(outR, StreamStdout, events, &readers)
	go scanLines(errR, StreamStderr, events, &readers)
	go func() {
		_, _ = stdcopy.StdCopy(outW, errW, logs)
		outW.Close()
		errW.Close()
	}()

	statusCh, errCh := d.client.ContainerWait(context.Background(), resp.ID, container.WaitConditionNotRunning)

	timer := time.NewTimer(stage.Timeout)
	defer timer.Stop()

	select {
	case result := <-statusCh:
		readers.Wait()
		logger.Debug("container exited", "exit_code", result.StatusCode)
		events <- exitEvent(int(result.StatusCode))
	case err := <-errCh:
		logs.Close()
		readers.Wait()
		logger.Error("container wait failed", "error", err)
		events <- errorEvent(ReasonStartFailed, fmt.Sprintf("container wait failed: %v", err))
	case <-timer.C:
		// A natural exit racing the deadline wins: the container did
		// finish in time.
		select {
		case result := <-statusCh:
			readers.Wait()
			logger.Debug("container exited", "exit_code", result.StatusCode)
			events <- exitEvent(int(result.StatusCode))
			return
		default:
		}
		d.kill(resp.ID, logger)
		readers.Wait()
		logger.Warn("container timed out", "timeout", stage.Timeout)
		events <- errorEvent(ReasonTimeout, fmt.Sprintf("killed after %s", stage.Timeout))
	case <-ctx.Done():
		select {
		case result := <-statusCh:
			readers.Wait()
			logger.Debug("container exited", "exit_code", result.StatusCode)
			events <- exitEvent(int(result.StatusCode))
			return
		default:
		}
		d.kill(resp.ID, logger)
		readers.Wait()
		logger.Debug("container canceled")
		events <- errorEvent(ReasonCanceled, "canceled")
	}
}

func (d *Docker) kill(containerID string, logger *slog.Logger) {
	if err := d.client.ContainerKill(context.Background(), containerID, "KILL"); err != nil {
		logger.Warn("failed to kill container", "error", err)
	}
}
