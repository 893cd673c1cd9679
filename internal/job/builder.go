package job

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/vanillastudio/console/internal/language"
)

// Builder turns (source text, language id) pairs into runnable jobs. It
// never inspects the source itself - arbitrary bytes are accepted and it
// is the toolchain's business to reject invalid syntax.
type Builder struct {
	registry *language.Registry
	root     string
	mount    string
}

// NewBuilder creates a builder that allocates scratch directories under
// root. If root is empty the system temp directory is used. A non-empty
// mount makes the builder resolve command templates against that path
// instead of the host scratch directory, for runners that bind-mount the
// scratch area into a container.
func NewBuilder(registry *language.Registry, root, mount string) *Builder {
	if root == "" {
		root = os.TempDir()
	}
	return &Builder{registry: registry, root: root, mount: mount}
}

// Build allocates a fresh scratch directory, writes the source verbatim,
// and resolves the profile's command templates against concrete paths.
// The timeout argument overrides the profile default when positive.
func (b *Builder) Build(slot, langID, source string, timeout time.Duration) (*Job, error) {
	profile, err := b.registry.Profile(langID)
	if err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp(b.root, "console-job-*")
	if err != nil {
		return nil, fmt.Errorf("creating scratch dir: %w", err)
	}

	srcPath := filepath.Join(dir, profile.SourceFile)
	if err := os.WriteFile(srcPath, []byte(source), 0o644); err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("writing source file: %w", err)
	}

	workDir := dir
	vars := language.HostVars(profile, dir)
	if b.mount != "" {
		workDir = b.mount
		vars = language.MountVars(profile, b.mount)
	}

	if timeout <= 0 {
		timeout = profile.Timeout
	}

	return &Job{
		ID:          "job-" + uuid.NewString(),
		Slot:        slot,
		Profile:     profile,
		Source:      source,
		Dir:         dir,
		WorkDir:     workDir,
		CompileArgv: language.Expand(profile.Compile, vars),
		RunArgv:     language.Expand(profile.Run, vars),
		Timeout:     timeout,
	}, nil
}
