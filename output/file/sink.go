package file

import (
	"context"
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/c360/barstreams/bars"
	"github.com/c360/barstreams/errors"
)

// SinkOption configures a Sink.
type SinkOption func(*Sink)

// WithOverwrite lets a write replace an existing file. Without it a name
// collision is an error.
func WithOverwrite(overwrite bool) SinkOption {
	return func(s *Sink) {
		s.overwrite = overwrite
	}
}

// WithFileMode sets the permission bits of written files.
func WithFileMode(mode os.FileMode) SinkOption {
	return func(s *Sink) {
		s.mode = mode
	}
}

// Sink writes one file per artifact into a single directory. Files are
// written to a temporary name and moved into place, so readers never see a
// partial artifact. Without overwrite the move is a hard link, which fails
// if the name already exists even when writers race. A Sink is safe for
// concurrent use.
type Sink struct {
	dir       string
	overwrite bool
	mode      os.FileMode

	filesWritten atomic.Int64
	bytesWritten atomic.Int64
}

// NewSink creates dir if needed and returns a sink writing into it.
func NewSink(dir string, opts ...SinkOption) (*Sink, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: directory is required", errors.ErrInvalidConfig), "Sink", "NewSink", "directory check")
	}

	s := &Sink{dir: filepath.Clean(dir), mode: 0o644}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, errors.WrapFatal(err, "Sink", "NewSink", "create directory")
	}
	return s, nil
}

// Dir returns the target directory.
func (s *Sink) Dir() string {
	return s.dir
}

// Emit writes the artifact under its own name.
func (s *Sink) Emit(_ context.Context, a bars.Artifact) error {
	return s.Write(a.Name, a.Data)
}

// Fail writes the unmodified batch under its name, so one Sink can serve as
// the failure destination.
func (s *Sink) Fail(_ context.Context, batch bars.Batch, _ error) error {
	name := path.Base(strings.ReplaceAll(batch.Name, `\`, "/"))
	if strings.TrimSpace(batch.Name) == "" {
		name = batch.ID + ".csv"
	}
	return s.Write(name, batch.Data)
}

// Write stores data as dir/name. name must be a plain file name.
func (s *Sink) Write(name string, data []byte) error {
	if err := ValidateName(name); err != nil {
		return err
	}

	target := filepath.Join(s.dir, name)
	if !s.overwrite {
		if _, err := os.Stat(target); err == nil {
			return collision(name)
		}
	}

	tmp, err := os.CreateTemp(s.dir, "."+name+".*.tmp")
	if err != nil {
		return errors.WrapTransient(err, "Sink", "Write", "create temp file")
	}
	tmpName := tmp.Name()
	defer func() {
		if tmpName != "" {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return errors.WrapTransient(err, "Sink", "Write", "write temp file")
	}
	if err := tmp.Chmod(s.mode); err != nil {
		_ = tmp.Close()
		return errors.WrapTransient(err, "Sink", "Write", "chmod temp file")
	}
	if err := tmp.Close(); err != nil {
		return errors.WrapTransient(err, "Sink", "Write", "close temp file")
	}
	if err := s.place(tmpName, target); err != nil {
		if stderrors.Is(err, fs.ErrExist) {
			return collision(name)
		}
		return errors.WrapTransient(err, "Sink", "Write", "move into place")
	}
	if s.overwrite {
		tmpName = ""
	}

	s.filesWritten.Add(1)
	s.bytesWritten.Add(int64(len(data)))
	return nil
}

func (s *Sink) place(tmp, target string) error {
	if s.overwrite {
		return os.Rename(tmp, target)
	}
	return os.Link(tmp, target)
}

func collision(name string) error {
	return errors.WrapInvalid(
		fmt.Errorf("%w: %s already exists", errors.ErrInvalidData, name), "Sink", "Write", "collision check")
}

// FilesWritten returns the number of files written.
func (s *Sink) FilesWritten() int64 {
	return s.filesWritten.Load()
}

// BytesWritten returns the number of bytes written.
func (s *Sink) BytesWritten() int64 {
	return s.bytesWritten.Load()
}

// ValidateName rejects names that would leave the target directory.
func ValidateName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
	case strings.ContainsAny(name, `/\`):
	case strings.Contains(name, ".."):
	case strings.ContainsRune(name, 0):
	default:
		return nil
	}
	return errors.WrapInvalid(
		fmt.Errorf("%w: unsafe file name %q", errors.ErrInvalidData, name), "Sink", "ValidateName", "name validation")
}
