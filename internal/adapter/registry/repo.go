package registry

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// AddRepo stages src (a git URL, an archive URL, or a local path) into
// a fresh staging directory under dir, then atomically renames it into
// place as dir/name.
func AddRepo(ctx context.Context, dir, name, src string) error {
	staging, err := os.MkdirTemp(dir, ".stage-"+name+"-")
	if err != nil {
		return fmt.Errorf("registry: create staging dir: %w", err)
	}
	defer os.RemoveAll(staging) // no-op once renamed away

	if err := fetchInto(ctx, staging, src); err != nil {
		return err
	}

	dest := filepath.Join(dir, name)
	if _, err := os.Stat(dest); err == nil {
		backup := dest + ".old"
		os.RemoveAll(backup)
		if err := os.Rename(dest, backup); err != nil {
			return fmt.Errorf("registry: displace old %s: %w", dest, err)
		}
		defer os.RemoveAll(backup)
	}
	if err := os.Rename(staging, dest); err != nil {
		return fmt.Errorf("registry: swap in new %s: %w", dest, err)
	}
	return recordRepoSource(dir, name, src)
}

// UpdateRepo re-fetches name's remembered src (see RepoSourceFor) into
// its existing directory, using the same stage-then-swap discipline as
// AddRepo. An explicit src overrides the remembered one.
func UpdateRepo(ctx context.Context, dir, name, src string) error {
	if src == "" {
		remembered, err := RepoSourceFor(dir, name)
		if err != nil {
			return err
		}
		if remembered == "" {
			return fmt.Errorf("registry: no remembered source for repo %s, pass --src", name)
		}
		src = remembered
	}
	return AddRepo(ctx, dir, name, src)
}

func fetchInto(ctx context.Context, staging, src string) error {
	switch {
	case strings.HasSuffix(src, ".git") || strings.HasPrefix(src, "git@"):
		return gitClone(ctx, staging, src)
	case strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://"):
		return downloadArchive(ctx, staging, src)
	default:
		return copyLocalPath(src, staging)
	}
}

func gitClone(ctx context.Context, staging, src string) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	// git clone refuses to clone into a non-empty directory; staging
	// was just created by MkdirTemp, so remove it and let git create it.
	if err := os.Remove(staging); err != nil {
		return fmt.Errorf("registry: prepare clone target: %w", err)
	}
	cmd := exec.CommandContext(ctx, "git", "clone", "--depth", "1", src, staging)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("registry: git clone %s: %w: %s", src, err, out)
	}
	return nil
}

func downloadArchive(ctx context.Context, staging, src string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return fmt.Errorf("registry: build request for %s: %w", src, err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("registry: downloading %s: %w", src, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("registry: downloading %s: status %s", src, resp.Status)
	}
	return extractArchive(resp.Body, staging)
}
