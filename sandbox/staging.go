package sandbox

import (
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// File permission constants for staged workspaces.
const (
	DirPermission  = 0755
	FilePermission = 0644
)

// FileSystem defines an interface for the file system operations staging
// needs, so tests can substitute a failing or recording implementation.
type FileSystem interface {
	MkdirAll(path string, perm os.FileMode) error
	WriteFile(filename string, data []byte, perm os.FileMode) error
	RemoveAll(path string) error
}

// RealFileSystem implements FileSystem using actual file system operations.
type RealFileSystem struct{}

func (RealFileSystem) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

func (RealFileSystem) WriteFile(filename string, data []byte, perm os.FileMode) error {
	return os.WriteFile(filename, data, perm)
}

func (RealFileSystem) RemoveAll(path string) error {
	return os.RemoveAll(path)
}

// Workspace is the ephemeral host-side directory holding exactly one
// execution's source file. It exists only between request start and cleanup;
// it is never reused across requests.
type Workspace struct {
	Dir        string
	SourcePath string
}

// Stager materializes workspaces under a sandbox root directory. Each
// workspace gets a collision-free unique subdirectory, so concurrent
// executions never share staging state.
type Stager struct {
	logger *zap.Logger
	root   string
	fs     FileSystem
}

// StagerOption defines a functional option for Stager.
type StagerOption func(*Stager)

// WithStagerFileSystem sets the FileSystem for the Stager.
func WithStagerFileSystem(fs FileSystem) StagerOption {
	return func(s *Stager) {
		s.fs = fs
	}
}

// NewStager creates a Stager rooted at the given directory.
func NewStager(logger *zap.Logger, root string, opts ...StagerOption) *Stager {
	s := &Stager{
		logger: logger,
		root:   root,
		fs:     &RealFileSystem{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Stage writes the source code verbatim to the profile's canonical filename
// inside a fresh workspace directory. On failure nothing is left behind and
// a StagingError is returned.
func (s *Stager) Stage(code string, profile LanguageProfile) (*Workspace, error) {
	dir := filepath.Join(s.root, "exec-"+uuid.NewString())
	if err := s.fs.MkdirAll(dir, DirPermission); err != nil {
		return nil, &StagingError{Path: dir, Err: err}
	}

	sourcePath := filepath.Join(dir, profile.Filename)
	if err := s.fs.WriteFile(sourcePath, []byte(code), FilePermission); err != nil {
		if rmErr := s.fs.RemoveAll(dir); rmErr != nil {
			s.logger.Warn("cleanup: failed to remove workspace after staging failure",
				zap.String("path", dir), zap.Error(rmErr))
		}
		return nil, &StagingError{Path: sourcePath, Err: err}
	}

	s.logger.Debug("workspace staged",
		zap.String("dir", dir),
		zap.String("language", profile.Key))

	return &Workspace{Dir: dir, SourcePath: sourcePath}, nil
}

// Remove deletes the workspace directory. Removal failures are logged and
// never escalated: a cleanup failure must not mask the execution result.
func (s *Stager) Remove(ws *Workspace) {
	if ws == nil {
		return
	}
	if err := s.fs.RemoveAll(ws.Dir); err != nil {
		s.logger.Warn("cleanup: failed to remove workspace",
			zap.String("path", ws.Dir), zap.Error(err))
	}
}
