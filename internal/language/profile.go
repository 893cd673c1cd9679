package language

import (
	"path"
	"path/filepath"
	"strings"
	"time"
)

// Command template placeholders. They are substituted as discrete argv
// tokens, never through a shell, so paths with special characters cannot
// inject extra arguments.
const (
	PlaceholderSource = "{source}"
	PlaceholderBinary = "{binary}"
	PlaceholderDir    = "{dir}"
)

// Profile is the execution recipe for one language. Profiles are immutable
// after registry construction.
type Profile struct {
	// ID is the language identifier, e.g. "python" or "cpp".
	ID string

	// SourceFile is the file name the source text is written to inside the
	// scratch directory, carrying the language's extension. Some toolchains
	// care about the name itself (Java requires Main.java for class Main).
	SourceFile string

	// Binary is the name of the compile output inside the scratch
	// directory. Empty for languages whose compile stage does not produce a
	// named artifact and for interpreted languages.
	Binary string

	// Compile is the argv template for the compile stage. Nil for
	// interpreted languages, which skip straight to the run stage.
	Compile []string

	// Run is the argv template for the run stage.
	Run []string

	// Image is the container image used when the docker runner is
	// selected. Empty means the language only runs on the local runner.
	Image string

	// Timeout is the default per-stage deadline.
	Timeout time.Duration
}

// Compiled reports whether the profile has a compile stage.
func (p Profile) Compiled() bool {
	return len(p.Compile) > 0
}

// Extension returns the source file extension, including the dot.
func (p Profile) Extension() string {
	return filepath.Ext(p.SourceFile)
}

// Vars holds the concrete paths substituted into a command template.
type Vars struct {
	Source string
	Binary string
	Dir    string
}

// HostVars resolves template variables against a scratch directory on the
// local filesystem.
func HostVars(p Profile, dir string) Vars {
	return Vars{
		Source: filepath.Join(dir, p.SourceFile),
		Binary: filepath.Join(dir, p.Binary),
		Dir:    dir,
	}
}

// MountVars resolves template variables against the directory the scratch
// area is mounted at inside a container. Container paths always use
// forward slashes.
func MountVars(p Profile, mount string) Vars {
	return Vars{
		Source: path.Join(mount, p.SourceFile),
		Binary: path.Join(mount, p.Binary),
		Dir:    mount,
	}
}

// Expand substitutes placeholders in a command template. Each template
// token yields exactly one argv token.
func Expand(template []string, v Vars) []string {
	if len(template) == 0 {
		return nil
	}
	argv := make([]string, len(template))
	for i, tok := range template {
		tok = strings.ReplaceAll(tok, PlaceholderSource, v.Source)
		tok = strings.ReplaceAll(tok, PlaceholderBinary, v.Binary)
		tok = strings.ReplaceAll(tok, PlaceholderDir, v.Dir)
		argv[i] = tok
	}
	return argv
}
