// Package config resolves the deployment settings of one gitsite
// invocation.
//
// Settings are layered: built-in defaults, then an optional descriptor file
// (YAML, or JSON with comments), then GITSITE_* environment variables. The
// CLI applies explicitly set flags last. Settings.Config turns the result
// into the model.DeploymentConfig consumed by the publisher.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/shinji-kodama/gitsite/internal/model"
	"github.com/shinji-kodama/gitsite/internal/params"
)

// Default values of the settings.
const (
	DefaultBuildDirectory = "target"
	DefaultBranch         = "gitsite"
	DefaultSubdir         = "."
	DefaultIndex          = ".gitsite.index.txt"
	DefaultGitCommand     = "git"
	DefaultLogFileName    = "gitsite-deploy.log"
	DefaultStagingName    = "staging"
)

// DefaultRoots are the top-level names reserved for other subcontexts.
var DefaultRoots = []string{"VERSION", "BRANCH"}

// Settings holds every option of a deployment before derived defaults are
// applied. Empty InputDirectory, LogFile and CommitMessage are derived from
// BuildDirectory and ArtifactID by Config.
type Settings struct {
	// Dir is the directory relative paths are resolved against.
	Dir string

	BuildDirectory  string
	ArtifactID      string
	InputDirectory  string
	ScmURL          string
	Branch          string
	KeepHistory     bool
	CommitMessage   string
	Subdir          string
	Index           string
	Roots           []string
	LogFile         string
	NotFoundMarkers []string
	GitCommand      string

	// Reactor is the ordered module list of the build, if the descriptor
	// provides one.
	Reactor []string
}

// Defaults returns the built-in settings for a build run from dir.
func Defaults(dir string) Settings {
	return Settings{
		Dir:            dir,
		BuildDirectory: DefaultBuildDirectory,
		ArtifactID:     filepath.Base(dir),
		Branch:         DefaultBranch,
		KeepHistory:    true,
		Subdir:         DefaultSubdir,
		Index:          DefaultIndex,
		Roots:          append([]string(nil), DefaultRoots...),
		GitCommand:     DefaultGitCommand,
	}
}

// Config resolves derived defaults and relative paths and returns the
// deployment configuration.
func (s Settings) Config() model.DeploymentConfig {
	build := s.resolve(s.BuildDirectory)

	input := s.InputDirectory
	if input == "" {
		input = filepath.Join(build, DefaultStagingName)
	}
	logFile := s.LogFile
	if logFile == "" {
		logFile = filepath.Join(build, DefaultLogFileName)
	}
	message := s.CommitMessage
	if message == "" {
		message = fmt.Sprintf("Publishing %s site with %%d files", s.ArtifactID)
	}

	return model.DeploymentConfig{
		InputDirectory:        s.resolve(input),
		ScmURL:                s.ScmURL,
		Branch:                s.Branch,
		KeepHistory:           s.KeepHistory,
		CommitMessage:         message,
		Subcontext:            s.Subdir,
		RootsToExclude:        append([]string(nil), s.Roots...),
		IndexFileName:         s.Index,
		LogFile:               s.resolve(logFile),
		BranchNotFoundMarkers: append([]string(nil), s.NotFoundMarkers...),
		GitCommand:            s.GitCommand,
	}
}

func (s Settings) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || s.Dir == "" {
		return path
	}
	return filepath.Join(s.Dir, path)
}

// File is the descriptor file layout. Absent keys leave the setting
// unchanged.
type File struct {
	BuildDirectory  *string  `yaml:"buildDir" json:"buildDir"`
	ArtifactID      *string  `yaml:"artifact" json:"artifact"`
	InputDirectory  *string  `yaml:"inputDirectory" json:"inputDirectory"`
	ScmURL          *string  `yaml:"scmUrl" json:"scmUrl"`
	Branch          *string  `yaml:"branch" json:"branch"`
	KeepHistory     *bool    `yaml:"keepHistory" json:"keepHistory"`
	CommitMessage   *string  `yaml:"commitMessage" json:"commitMessage"`
	Subdir          *string  `yaml:"subdir" json:"subdir"`
	Index           *string  `yaml:"index" json:"index"`
	Roots           []string `yaml:"roots" json:"roots"`
	LogFile         *string  `yaml:"logfile" json:"logfile"`
	NotFoundMarkers []string `yaml:"notFoundMarkers" json:"notFoundMarkers"`
	GitCommand      *string  `yaml:"gitCommand" json:"gitCommand"`
	Reactor         []string `yaml:"reactor" json:"reactor"`
}

// LoadFile parses a descriptor. The format follows the extension: .yaml
// and .yml are YAML; .json and .jsonc are JSON with comments, which are
// stripped with tidwall/jsonc. Unknown keys are rejected.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, model.WrapCLIError(model.ExitConfigInvalid,
				fmt.Sprintf("descriptor not found: %s", path), err)
		}
		return nil, fmt.Errorf("failed to read descriptor: %w", err)
	}

	var f File
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
			return nil, model.WrapCLIError(model.ExitConfigInvalid,
				fmt.Sprintf("failed to parse descriptor %s", path), err)
		}
	case ".json", ".jsonc":
		dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&f); err != nil {
			return nil, model.WrapCLIError(model.ExitConfigInvalid,
				fmt.Sprintf("failed to parse descriptor %s", path), err)
		}
	default:
		return nil, model.NewCLIError(model.ExitConfigInvalid,
			fmt.Sprintf("unsupported descriptor format %q: use .yaml, .yml, .json or .jsonc", ext))
	}
	return &f, nil
}

// ApplyFile overlays the keys present in f.
func (s *Settings) ApplyFile(f *File) {
	if f == nil {
		return
	}
	setString(&s.BuildDirectory, f.BuildDirectory)
	setString(&s.ArtifactID, f.ArtifactID)
	setString(&s.InputDirectory, f.InputDirectory)
	setString(&s.ScmURL, f.ScmURL)
	setString(&s.Branch, f.Branch)
	if f.KeepHistory != nil {
		s.KeepHistory = *f.KeepHistory
	}
	setString(&s.CommitMessage, f.CommitMessage)
	setString(&s.Subdir, f.Subdir)
	setString(&s.Index, f.Index)
	if f.Roots != nil {
		s.Roots = f.Roots
	}
	setString(&s.LogFile, f.LogFile)
	if f.NotFoundMarkers != nil {
		s.NotFoundMarkers = f.NotFoundMarkers
	}
	setString(&s.GitCommand, f.GitCommand)
	if f.Reactor != nil {
		s.Reactor = f.Reactor
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

// Environment variable names.
const (
	EnvInputDirectory = "GITSITE_INPUT_DIRECTORY"
	EnvBranch         = "GITSITE_BRANCH"
	EnvScmURL         = "GITSITE_SCM_URL"
	EnvKeepHistory    = "GITSITE_KEEP_HISTORY"
	EnvCommitMessage  = "GITSITE_COMMIT_MESSAGE"
	EnvSubdir         = "GITSITE_SUBDIR"
	EnvIndex          = "GITSITE_INDEX"
	EnvRoots          = "GITSITE_ROOTS"
	EnvLogFile        = "GITSITE_LOGFILE"
	EnvGit            = "GITSITE_GIT"
)

// ApplyEnv overlays the non-empty GITSITE_* variables returned by getenv.
func (s *Settings) ApplyEnv(getenv func(string) string) error {
	for name, dst := range map[string]*string{
		EnvInputDirectory: &s.InputDirectory,
		EnvBranch:         &s.Branch,
		EnvScmURL:         &s.ScmURL,
		EnvCommitMessage:  &s.CommitMessage,
		EnvSubdir:         &s.Subdir,
		EnvIndex:          &s.Index,
		EnvLogFile:        &s.LogFile,
		EnvGit:            &s.GitCommand,
	} {
		if v := getenv(name); v != "" {
			*dst = v
		}
	}
	if v := getenv(EnvRoots); v != "" {
		s.Roots = params.SplitList(v)
	}
	if v := getenv(EnvKeepHistory); v != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return model.NewCLIError(model.ExitConfigInvalid,
				fmt.Sprintf("%s must be a boolean, got %q", EnvKeepHistory, v))
		}
		s.KeepHistory = b
	}
	return nil
}

// Load returns the defaults for dir overlaid with the descriptor at path
// (when non-empty) and the environment.
func Load(dir, path string, getenv func(string) string) (Settings, error) {
	s := Defaults(dir)
	if path != "" {
		f, err := LoadFile(path)
		if err != nil {
			return Settings{}, err
		}
		s.ApplyFile(f)
	}
	if getenv != nil {
		if err := s.ApplyEnv(getenv); err != nil {
			return Settings{}, err
		}
	}
	return s, nil
}
