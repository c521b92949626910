// Package params hands a DeploymentConfig from one build-module invocation
// to a later one.
//
// The execution-root module saves the configuration it was given into a
// hidden properties file in the execution root directory; the last module
// loads it back and removes the file. The file name is derived from the
// consumer identity so unrelated consumers never share a file.
package params

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/magiconair/properties"

	"github.com/shinji-kodama/gitsite/internal/logging"
	"github.com/shinji-kodama/gitsite/internal/model"
)

// DefaultConsumer is the consumer identity of the deploy hooks.
const DefaultConsumer = "gitsite.deploy"

// Store persists configuration fields for one consumer.
type Store struct {
	// Dir is the execution root directory of the build.
	Dir string

	// Consumer identifies the logic that owns the file.
	Consumer string
}

// NewStore returns a Store for consumer rooted at dir.
func NewStore(dir, consumer string) *Store {
	if consumer == "" {
		consumer = DefaultConsumer
	}
	return &Store{Dir: dir, Consumer: consumer}
}

// Path returns the location of the persisted file:
// <Dir>/.<Consumer>.properties.
func (s *Store) Path() string {
	return filepath.Join(s.Dir, "."+s.Consumer+".properties")
}

// Save writes the named fields of cfg to Path and returns it. Only the
// named fields are written; an unknown name is an error and nothing is
// written.
func (s *Store) Save(cfg model.DeploymentConfig, fieldNames ...string) (string, error) {
	path := s.Path()

	p := properties.NewProperties()
	p.DisableExpansion = true
	for _, name := range fieldNames {
		c, ok := codecs[name]
		if !ok {
			return "", model.NewCLIError(model.ExitParameterPersistence,
				fmt.Sprintf("cannot save parameters: unknown field %q", name))
		}
		if _, _, err := p.Set(name, c.encode(&cfg)); err != nil {
			return "", model.WrapCLIError(model.ExitParameterPersistence,
				fmt.Sprintf("cannot save parameters: field %q", name), err)
		}
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "# %s\n", s.Consumer)
	if _, err := p.Write(&buf, properties.UTF8); err != nil {
		return "", model.WrapCLIError(model.ExitParameterPersistence, "cannot save parameters", err)
	}
	if err := os.WriteFile(path, escapeLeadingSpaces(buf.Bytes()), 0o600); err != nil {
		return "", model.WrapCLIError(model.ExitParameterPersistence,
			fmt.Sprintf("cannot save parameters to %s", path), err)
	}
	return path, nil
}

// escapeLeadingSpaces escapes the spaces that start a value. The reader
// drops whitespace between the separator and the value, and the writer
// leaves it as is.
func escapeLeadingSpaces(out []byte) []byte {
	lines := strings.SplitAfter(string(out), "\n")
	for i, line := range lines {
		if strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, " = ")
		if !ok {
			continue
		}
		trimmed := strings.TrimLeft(value, " ")
		lines[i] = key + " = " + strings.Repeat(`\ `, len(value)-len(trimmed)) + trimmed
	}
	return []byte(strings.Join(lines, ""))
}

// Load reconstructs a configuration from the persisted file, starting from
// the zero value.
func (s *Store) Load() (model.DeploymentConfig, error) {
	var cfg model.DeploymentConfig
	err := s.LoadInto(&cfg)
	return cfg, err
}

// LoadInto overwrites the fields of cfg that are present in the persisted
// file. A missing file means the execution-root hook never ran for this
// build, which is fatal.
func (s *Store) LoadInto(cfg *model.DeploymentConfig) error {
	path := s.Path()
	if _, err := os.Stat(path); err != nil {
		return model.WrapCLIError(model.ExitParameterPersistence,
			fmt.Sprintf("cannot load parameters from %s (did the execution-root module run?)", path), err)
	}

	loader := &properties.Loader{Encoding: properties.UTF8, DisableExpansion: true}
	p, err := loader.LoadFile(path)
	if err != nil {
		return model.WrapCLIError(model.ExitParameterPersistence,
			fmt.Sprintf("cannot load parameters from %s", path), err)
	}

	loaded := *cfg
	for _, key := range p.Keys() {
		c, ok := codecs[key]
		if !ok {
			return model.NewCLIError(model.ExitParameterPersistence,
				fmt.Sprintf("cannot load parameters from %s: unknown field %q", path, key))
		}
		value, _ := p.Get(key)
		if err := c.decode(&loaded, value); err != nil {
			return model.WrapCLIError(model.ExitParameterPersistence,
				fmt.Sprintf("cannot load parameters from %s: field %q", path, key), err)
		}
	}
	*cfg = loaded
	return nil
}

// Remove deletes the persisted file. A file that is already gone is not an
// error.
func (s *Store) Remove() error {
	if err := os.Remove(s.Path()); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Discard removes the persisted file, falling back to removal at process
// exit when that fails. Failures are only logged.
func (s *Store) Discard(log logging.Sink) {
	if err := s.Remove(); err != nil {
		logging.Printf(log, logging.SeverityWarn,
			"cannot remove %s now, scheduled for removal at exit: %v", s.Path(), err)
		ScheduleRemoval(s.Path())
	}
}

var scheduled struct {
	mu    sync.Mutex
	paths []string
}

// ScheduleRemoval registers path for removal by RunScheduledRemovals.
func ScheduleRemoval(path string) {
	scheduled.mu.Lock()
	defer scheduled.mu.Unlock()
	scheduled.paths = append(scheduled.paths, path)
}

// RunScheduledRemovals removes every scheduled path and clears the schedule.
// It is called by the CLI right before the process exits. Paths that still
// cannot be removed are returned.
func RunScheduledRemovals() []string {
	scheduled.mu.Lock()
	paths := scheduled.paths
	scheduled.paths = nil
	scheduled.mu.Unlock()

	var failed []string
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			failed = append(failed, p)
		}
	}
	return failed
}
