package sandbox

import (
	"context"
	"io"
	"sync/atomic"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/go-units"
	"go.uber.org/zap"
)

// containerWorkdir is where the workspace is bound inside the container and
// where all commands run.
const containerWorkdir = "/workdir"

// engineLabel marks containers owned by this engine so stray ones can be
// identified and listed.
const engineLabel = "runbox.engine"

// keepAliveCmd keeps the container running so exec calls can issue the real
// payload. `sleep 3600` works across every image in the default table,
// including busybox-based ones that reject `sleep infinity`.
var keepAliveCmd = []string{"sleep", "3600"}

const releaseTimeout = 30 * time.Second

// ContainerHandle identifies one single-use container bound to one
// workspace. Exactly one create maps to exactly one remove, on every path.
type ContainerHandle struct {
	ID        string
	Workspace string
	Image     string
	CreatedAt time.Time

	released atomic.Bool
}

// Lifecycle creates, starts, and guarantees removal of single-use execution
// containers.
type Lifecycle struct {
	api    ContainerAPI
	logger *zap.Logger
}

// NewLifecycle creates a Lifecycle manager on top of a container engine.
func NewLifecycle(api ContainerAPI, logger *zap.Logger) *Lifecycle {
	return &Lifecycle{api: api, logger: logger}
}

// Acquire creates and starts a container for the profile's image with the
// workspace bound read-write at the container working directory, networking
// disabled unconditionally, and a hard memory ceiling. If the container
// starts but anything fails before the handle is returned, the partial
// container is force-removed so no orphans survive a failed acquire.
func (l *Lifecycle) Acquire(ctx context.Context, ws *Workspace, profile LanguageProfile, memoryBytes int64) (*ContainerHandle, error) {
	if err := l.ensureImage(ctx, profile.Image); err != nil {
		return nil, &ContainerCreateError{Image: profile.Image, Err: err}
	}

	resp, err := l.api.ContainerCreate(ctx,
		&container.Config{
			Image:      profile.Image,
			Cmd:        keepAliveCmd,
			WorkingDir: containerWorkdir,
			Labels: map[string]string{
				engineLabel: "true",
			},
		},
		&container.HostConfig{
			Binds:       []string{ws.Dir + ":" + containerWorkdir + ":rw"},
			NetworkMode: "none",
			Resources: container.Resources{
				Memory: memoryBytes,
				Ulimits: []*units.Ulimit{
					{Name: "nproc", Soft: 64, Hard: 128},
					{Name: "nofile", Soft: 64, Hard: 128},
					{Name: "core", Soft: 0, Hard: 0},
				},
			},
		},
		nil, nil, "",
	)
	if err != nil {
		return nil, &ContainerCreateError{Image: profile.Image, Err: err}
	}

	handle := &ContainerHandle{
		ID:        resp.ID,
		Workspace: ws.Dir,
		Image:     profile.Image,
		CreatedAt: time.Now(),
	}

	if err := l.api.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		l.Release(handle)
		return nil, &ContainerStartError{ContainerID: resp.ID, Err: err}
	}

	l.logger.Debug("container acquired",
		zap.String("container_id", resp.ID),
		zap.String("image", profile.Image),
		zap.String("workspace", ws.Dir))

	return handle, nil
}

// Release force-removes the container, killing it if it is still running.
// It is idempotent and never returns an error: removal failures are logged
// so that a secondary failure during teardown cannot mask the execution
// result. Release runs on its own context because the request context may
// already be cancelled when teardown happens.
func (l *Lifecycle) Release(handle *ContainerHandle) {
	if handle == nil || !handle.released.CompareAndSwap(false, true) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()

	if err := l.api.ContainerRemove(ctx, handle.ID, container.RemoveOptions{
		Force:         true,
		RemoveVolumes: true,
	}); err != nil {
		l.logger.Warn("cleanup: failed to remove container",
			zap.String("container_id", handle.ID), zap.Error(err))
		return
	}

	l.logger.Debug("container released", zap.String("container_id", handle.ID))
}

// Running lists the engine-owned containers known to the daemon.
func (l *Lifecycle) Running(ctx context.Context) ([]container.Summary, error) {
	return l.api.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", engineLabel+"=true")),
	})
}

// ensureImage checks that the profile's image is present locally and pulls
// it when missing, draining the pull stream to completion.
func (l *Lifecycle) ensureImage(ctx context.Context, ref string) error {
	if _, err := l.api.ImageInspect(ctx, ref); err == nil {
		return nil
	}

	l.logger.Info("pulling image", zap.String("image", ref))
	reader, err := l.api.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return err
	}
	defer reader.Close()
	_, err = io.Copy(io.Discard, reader)
	return err
}
