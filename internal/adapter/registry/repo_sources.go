package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// repoSourcesFile is the bookkeeping file recording, for each adapter
// repo staged into a directory via AddRepo/UpdateRepo, the src it was
// fetched from, so `adapters repo-update <name>` and `adapters
// repo-list` don't require the caller to remember or re-pass --src.
const repoSourcesFile = ".repo-sources.yaml"

// RepoSource is one remembered repo → origin mapping.
type RepoSource struct {
	Name string `yaml:"name"`
	Src  string `yaml:"src"`
}

// repoSources is the on-disk shape of repoSourcesFile: a flat list
// rather than a map, so entries have a stable, diff-friendly order.
type repoSources struct {
	Repos []RepoSource `yaml:"repos"`
}

// LoadRepoSources reads dir's repo bookkeeping file. A missing file is
// not an error: it means no repo has been staged into dir yet.
func LoadRepoSources(dir string) ([]RepoSource, error) {
	data, err := os.ReadFile(filepath.Join(dir, repoSourcesFile))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("registry: reading repo sources: %w", err)
	}
	var rs repoSources
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("registry: parsing repo sources: %w", err)
	}
	return rs.Repos, nil
}

// RepoSourceFor returns the remembered src for name in dir, or "" if
// none is recorded.
func RepoSourceFor(dir, name string) (string, error) {
	repos, err := LoadRepoSources(dir)
	if err != nil {
		return "", err
	}
	for _, r := range repos {
		if r.Name == name {
			return r.Src, nil
		}
	}
	return "", nil
}

// recordRepoSource upserts name → src in dir's bookkeeping file.
func recordRepoSource(dir, name, src string) error {
	repos, err := LoadRepoSources(dir)
	if err != nil {
		return err
	}
	found := false
	for i := range repos {
		if repos[i].Name == name {
			repos[i].Src = src
			found = true
			break
		}
	}
	if !found {
		repos = append(repos, RepoSource{Name: name, Src: src})
	}
	sort.Slice(repos, func(i, j int) bool { return repos[i].Name < repos[j].Name })

	data, err := yaml.Marshal(repoSources{Repos: repos})
	if err != nil {
		return fmt.Errorf("registry: encoding repo sources: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, repoSourcesFile), data, 0o644); err != nil {
		return fmt.Errorf("registry: writing repo sources: %w", err)
	}
	return nil
}
