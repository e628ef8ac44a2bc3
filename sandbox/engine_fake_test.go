package sandbox

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// fakeExecResult scripts the behavior of one exec call against the fake
// engine. When block is set the stream delivers prelude and then stays open
// until the container is removed, emulating a program that never exits.
type fakeExecResult struct {
	stdout   string
	stderr   string
	exitCode int
	block    bool
	prelude  string
}

type fakeContainer struct {
	id         string
	config     *container.Config
	hostConfig *container.HostConfig
	started    bool
	removed    bool
	pipes      []*io.PipeWriter
}

type fakeExec struct {
	containerID string
	cmd         []string
	result      fakeExecResult
}

// fakeEngine implements ContainerAPI in memory so executor and lifecycle
// behavior can be tested without a daemon.
type fakeEngine struct {
	mu sync.Mutex

	createErr     error
	startErr      error
	removeErr     error
	execCreateErr error
	attachErr     error
	imageMissing  bool

	// onExec scripts exec behavior per container and command. Defaults to
	// an empty successful exec.
	onExec func(ctr *fakeContainer, cmd []string) fakeExecResult

	nextID     int
	containers map[string]*fakeContainer
	execs      map[string]*fakeExec
	removes    []string
	pulls      []string
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		containers: make(map[string]*fakeContainer),
		execs:      make(map[string]*fakeExec),
	}
}

func (f *fakeEngine) createdContainers() []*fakeContainer {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*fakeContainer, 0, len(f.containers))
	for _, c := range f.containers {
		out = append(out, c)
	}
	return out
}

func (f *fakeEngine) removeCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.removes...)
}

func (f *fakeEngine) execCommands() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]string, 0, len(f.execs))
	for i := 0; i < len(f.execs); i++ {
		e := f.execs[fmt.Sprintf("exec-%d", i)]
		out = append(out, e.cmd)
	}
	return out
}

func (f *fakeEngine) ContainerCreate(_ context.Context, config *container.Config, hostConfig *container.HostConfig,
	_ *network.NetworkingConfig, _ *ocispec.Platform, _ string) (container.CreateResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return container.CreateResponse{}, f.createErr
	}
	id := fmt.Sprintf("ctr-%d", f.nextID)
	f.nextID++
	f.containers[id] = &fakeContainer{id: id, config: config, hostConfig: hostConfig}
	return container.CreateResponse{ID: id}, nil
}

func (f *fakeEngine) ContainerStart(_ context.Context, containerID string, _ container.StartOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	if c, ok := f.containers[containerID]; ok {
		c.started = true
	}
	return nil
}

func (f *fakeEngine) ContainerRemove(_ context.Context, containerID string, _ container.RemoveOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removes = append(f.removes, containerID)
	if f.removeErr != nil {
		return f.removeErr
	}
	if c, ok := f.containers[containerID]; ok {
		c.removed = true
		// Removing the container tears down any still-open exec streams,
		// as the daemon would.
		for _, w := range c.pipes {
			_ = w.CloseWithError(io.ErrClosedPipe)
		}
		c.pipes = nil
	}
	return nil
}

func (f *fakeEngine) ContainerList(_ context.Context, _ container.ListOptions) ([]container.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []container.Summary
	for _, c := range f.containers {
		if !c.removed {
			out = append(out, container.Summary{ID: c.id, Image: c.config.Image})
		}
	}
	return out, nil
}

func (f *fakeEngine) ContainerExecCreate(_ context.Context, containerID string, options container.ExecOptions) (container.ExecCreateResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.execCreateErr != nil {
		return container.ExecCreateResponse{}, f.execCreateErr
	}
	ctr, ok := f.containers[containerID]
	if !ok {
		return container.ExecCreateResponse{}, fmt.Errorf("no such container: %s", containerID)
	}
	result := fakeExecResult{}
	if f.onExec != nil {
		result = f.onExec(ctr, options.Cmd)
	}
	id := fmt.Sprintf("exec-%d", len(f.execs))
	f.execs[id] = &fakeExec{containerID: containerID, cmd: options.Cmd, result: result}
	return container.ExecCreateResponse{ID: id}, nil
}

func (f *fakeEngine) ContainerExecAttach(_ context.Context, execID string, _ container.ExecStartOptions) (types.HijackedResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.attachErr != nil {
		return types.HijackedResponse{}, f.attachErr
	}
	e, ok := f.execs[execID]
	if !ok {
		return types.HijackedResponse{}, fmt.Errorf("no such exec: %s", execID)
	}

	conn, peer := net.Pipe()
	go func() {
		// Drain and discard; the executor never writes to the exec stream.
		_, _ = io.Copy(io.Discard, peer)
	}()

	if e.result.block {
		r, w := io.Pipe()
		if ctr, ok := f.containers[e.containerID]; ok {
			ctr.pipes = append(ctr.pipes, w)
		}
		go func() {
			if e.result.prelude != "" {
				_, _ = w.Write(muxOutput(e.result.prelude, ""))
			}
			// Stay open until the container is removed.
		}()
		return types.HijackedResponse{Conn: conn, Reader: bufio.NewReader(r)}, nil
	}

	payload := muxOutput(e.result.stdout, e.result.stderr)
	return types.HijackedResponse{Conn: conn, Reader: bufio.NewReader(bytes.NewReader(payload))}, nil
}

func (f *fakeEngine) ContainerExecInspect(_ context.Context, execID string) (container.ExecInspect, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.execs[execID]
	if !ok {
		return container.ExecInspect{}, fmt.Errorf("no such exec: %s", execID)
	}
	return container.ExecInspect{ExecID: execID, ContainerID: e.containerID, ExitCode: e.result.exitCode}, nil
}

func (f *fakeEngine) ImageInspect(_ context.Context, imageID string, _ ...client.ImageInspectOption) (image.InspectResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.imageMissing {
		return image.InspectResponse{}, fmt.Errorf("no such image: %s", imageID)
	}
	return image.InspectResponse{ID: "sha256:" + imageID}, nil
}

func (f *fakeEngine) ImagePull(_ context.Context, refStr string, _ image.PullOptions) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pulls = append(f.pulls, refStr)
	// Once pulled, the image is present.
	f.imageMissing = false
	return io.NopCloser(strings.NewReader("{}")), nil
}

// muxOutput frames stdout and stderr the way the daemon multiplexes a
// non-tty stream, so stdcopy can demultiplex it back.
func muxOutput(stdout, stderr string) []byte {
	var buf bytes.Buffer
	if stdout != "" {
		_, _ = stdcopy.NewStdWriter(&buf, stdcopy.Stdout).Write([]byte(stdout))
	}
	if stderr != "" {
		_, _ = stdcopy.NewStdWriter(&buf, stdcopy.Stderr).Write([]byte(stderr))
	}
	return buf.Bytes()
}

var _ ContainerAPI = (*fakeEngine)(nil)
