// Package version reports the release name and source-control revision the
// binary was built from.
package version

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime/debug"
	"strings"
)

// Set at link time:
//
//	-ldflags "-X github.com/jmcleod/edgehook/version.Version=v1.2.0 -X github.com/jmcleod/edgehook/version.Commit=$(git rev-parse HEAD)"
var (
	Version = "dev"
	Commit  = ""
)

// ErrUnknownRevision is returned when no revision source is available.
var ErrUnknownRevision = errors.New("source-control revision unknown")

// Source is one way of finding the revision. It returns "" when it has
// nothing to offer.
type Source func(ctx context.Context) (string, error)

// Sources is the lookup order used by Revision.
var Sources = []Source{LinkTime, Git("."), BuildInfo}

// Revision returns the first revision reported by Sources.
func Revision(ctx context.Context) (string, error) {
	return Resolve(ctx, Sources...)
}

// Resolve returns the first non-empty revision from sources. A source that
// errors is skipped; its error is reported only when every source fails.
func Resolve(ctx context.Context, sources ...Source) (string, error) {
	var errs []error
	for _, src := range sources {
		rev, err := src(ctx)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if rev != "" {
			return rev, nil
		}
	}
	return "", errors.Join(append([]error{ErrUnknownRevision}, errs...)...)
}

// LinkTime returns the Commit variable.
func LinkTime(context.Context) (string, error) {
	return strings.TrimSpace(Commit), nil
}

// Git returns a Source running `git rev-parse HEAD` in dir.
func Git(dir string) Source {
	return func(ctx context.Context) (string, error) {
		cmd := exec.CommandContext(ctx, "git", "rev-parse", "HEAD")
		cmd.Dir = dir
		var stderr bytes.Buffer
		cmd.Stderr = &stderr
		out, err := cmd.Output()
		if err != nil {
			if msg := strings.TrimSpace(stderr.String()); msg != "" {
				return "", fmt.Errorf("git rev-parse HEAD: %w: %s", err, msg)
			}
			return "", fmt.Errorf("git rev-parse HEAD: %w", err)
		}
		return strings.TrimSpace(string(out)), nil
	}
}

// BuildInfo returns the vcs.revision stamped by the go toolchain, suffixed
// with "-dirty" when the tree had local modifications.
func BuildInfo(context.Context) (string, error) {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "", nil
	}
	var rev string
	var dirty bool
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if rev != "" && dirty {
		rev += "-dirty"
	}
	return rev, nil
}

// Short abbreviates a full revision hash for display.
func Short(rev string) string {
	const n = 12
	if len(rev) > n && !strings.HasSuffix(rev, "-dirty") {
		return rev[:n]
	}
	return rev
}
