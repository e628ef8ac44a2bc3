package sandbox

import (
	"errors"
	"fmt"
)

// ErrUnsupportedLanguage is returned by Registry.Resolve when the requested
// language key has no registered profile. No resources are created in that
// case.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// StagingError reports a filesystem failure while materializing a workspace.
// When staging fails no container is ever created.
type StagingError struct {
	Path string
	Err  error
}

func (e *StagingError) Error() string {
	return fmt.Sprintf("staging failed at %s: %v", e.Path, e.Err)
}

func (e *StagingError) Unwrap() error { return e.Err }

// ContainerCreateError reports a failure to create (or pull the image for)
// an execution container.
type ContainerCreateError struct {
	Image string
	Err   error
}

func (e *ContainerCreateError) Error() string {
	return fmt.Sprintf("container create failed for image %s: %v", e.Image, e.Err)
}

func (e *ContainerCreateError) Unwrap() error { return e.Err }

// ContainerStartError reports a failure to start an already-created
// container. The partially-created container is force-removed before this
// error propagates.
type ContainerStartError struct {
	ContainerID string
	Err         error
}

func (e *ContainerStartError) Error() string {
	return fmt.Sprintf("container %s failed to start: %v", e.ContainerID, e.Err)
}

func (e *ContainerStartError) Unwrap() error { return e.Err }
