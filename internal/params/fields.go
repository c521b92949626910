package params

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/shinji-kodama/gitsite/internal/model"
)

// Field names understood by Save and Load. They match the option names of
// the CLI and the descriptor file.
const (
	FieldInputDirectory  = "inputDirectory"
	FieldScmURL          = "scmUrl"
	FieldBranch          = "branch"
	FieldKeepHistory     = "keepHistory"
	FieldCommitMessage   = "commitMessage"
	FieldSubdir          = "subdir"
	FieldIndex           = "index"
	FieldRoots           = "roots"
	FieldLogFile         = "logfile"
	FieldNotFoundMarkers = "notFoundMarkers"
	FieldGitCommand      = "gitCommand"
)

// codec converts one DeploymentConfig field to and from its string form.
type codec struct {
	encode func(c *model.DeploymentConfig) string
	decode func(c *model.DeploymentConfig, value string) error
}

var codecs = map[string]codec{
	FieldInputDirectory:  pathCodec(func(c *model.DeploymentConfig) *string { return &c.InputDirectory }),
	FieldScmURL:          stringCodec(func(c *model.DeploymentConfig) *string { return &c.ScmURL }),
	FieldBranch:          stringCodec(func(c *model.DeploymentConfig) *string { return &c.Branch }),
	FieldKeepHistory:     boolCodec(func(c *model.DeploymentConfig) *bool { return &c.KeepHistory }),
	FieldCommitMessage:   stringCodec(func(c *model.DeploymentConfig) *string { return &c.CommitMessage }),
	FieldSubdir:          stringCodec(func(c *model.DeploymentConfig) *string { return &c.Subcontext }),
	FieldIndex:           stringCodec(func(c *model.DeploymentConfig) *string { return &c.IndexFileName }),
	FieldRoots:           listCodec(func(c *model.DeploymentConfig) *[]string { return &c.RootsToExclude }),
	FieldLogFile:         pathCodec(func(c *model.DeploymentConfig) *string { return &c.LogFile }),
	FieldNotFoundMarkers: listCodec(func(c *model.DeploymentConfig) *[]string { return &c.BranchNotFoundMarkers }),
	FieldGitCommand:      stringCodec(func(c *model.DeploymentConfig) *string { return &c.GitCommand }),
}

// AllFields returns every known field name, sorted.
func AllFields() []string {
	names := make([]string, 0, len(codecs))
	for name := range codecs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func stringCodec(ref func(*model.DeploymentConfig) *string) codec {
	return codec{
		encode: func(c *model.DeploymentConfig) string { return *ref(c) },
		decode: func(c *model.DeploymentConfig, v string) error {
			*ref(c) = v
			return nil
		},
	}
}

// pathCodec stores paths with forward slashes and restores them in the
// platform's form.
func pathCodec(ref func(*model.DeploymentConfig) *string) codec {
	return codec{
		encode: func(c *model.DeploymentConfig) string { return filepath.ToSlash(*ref(c)) },
		decode: func(c *model.DeploymentConfig, v string) error {
			*ref(c) = filepath.FromSlash(v)
			return nil
		},
	}
}

func boolCodec(ref func(*model.DeploymentConfig) *bool) codec {
	return codec{
		encode: func(c *model.DeploymentConfig) string { return strconv.FormatBool(*ref(c)) },
		decode: func(c *model.DeploymentConfig, v string) error {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("invalid boolean %q", v)
			}
			*ref(c) = b
			return nil
		},
	}
}

// listCodec joins entries with commas; entries are trimmed and blanks are
// dropped on decode.
func listCodec(ref func(*model.DeploymentConfig) *[]string) codec {
	return codec{
		encode: func(c *model.DeploymentConfig) string { return strings.Join(*ref(c), ",") },
		decode: func(c *model.DeploymentConfig, v string) error {
			*ref(c) = SplitList(v)
			return nil
		},
	}
}

// SplitList splits a comma-separated value, trimming entries and dropping
// blanks. It returns nil for an empty list.
func SplitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
