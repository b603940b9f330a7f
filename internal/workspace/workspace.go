// Package workspace collects repository context for generation
// prompts: the source files most relevant to a ticket, ranked by
// keyword overlap and recent git activity.
package workspace

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/forgeline/forgeline/internal/pipeline"
)

const (
	defaultMaxCodeFiles = 5
	defaultMaxTestFiles = 3
	maxFileBytes        = 16 * 1024
)

// GitRunner provides the git queries used for ranking.
type GitRunner interface {
	FilesChanged(dir string) (string, error)
}

// Collector gathers candidate context files from a repository.
type Collector struct {
	dir          string
	git          GitRunner
	maxCodeFiles int
	maxTestFiles int
}

// NewCollector creates a collector rooted at a repository directory. A
// nil git runner skips the recency boost.
func NewCollector(dir string, git GitRunner) *Collector {
	return &Collector{
		dir:          dir,
		git:          git,
		maxCodeFiles: defaultMaxCodeFiles,
		maxTestFiles: defaultMaxTestFiles,
	}
}

// SetLimits overrides the per-kind file caps.
func (c *Collector) SetLimits(code, tests int) {
	if code > 0 {
		c.maxCodeFiles = code
	}
	if tests > 0 {
		c.maxTestFiles = tests
	}
}

type candidate struct {
	path  string
	score int
}

// Collect returns the highest-ranked source and test files for the
// given keywords. Files score a point per keyword hit in their path or
// contents, plus a boost when git reports them recently changed.
// Oversized files are truncated rather than skipped.
func (c *Collector) Collect(keywords []string) (code, tests []pipeline.FileRef, err error) {
	lowered := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if len(k) >= 3 {
			lowered = append(lowered, k)
		}
	}

	recent := c.recentFiles()

	var codeCands, testCands []candidate
	err = filepath.WalkDir(c.dir, func(path string, d os.DirEntry, werr error) error {
		if werr != nil {
			return werr
		}
		name := d.Name()
		if d.IsDir() {
			if name == ".git" || name == "vendor" || name == "testdata" || name == "node_modules" {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(name, ".go") {
			return nil
		}

		rel, rerr := filepath.Rel(c.dir, path)
		if rerr != nil {
			return nil
		}

		score := scoreFile(path, rel, lowered)
		if _, ok := recent[rel]; ok {
			score += 2
		}
		if score == 0 {
			return nil
		}

		cand := candidate{path: rel, score: score}
		if strings.HasSuffix(name, "_test.go") {
			testCands = append(testCands, cand)
		} else {
			codeCands = append(codeCands, cand)
		}
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, nil
		}
		return nil, nil, err
	}

	code = c.load(top(codeCands, c.maxCodeFiles))
	tests = c.load(top(testCands, c.maxTestFiles))
	return code, tests, nil
}

// recentFiles maps repository-relative paths git reports as changed.
func (c *Collector) recentFiles() map[string]struct{} {
	out := map[string]struct{}{}
	if c.git == nil {
		return out
	}
	listing, err := c.git.FilesChanged(c.dir)
	if err != nil {
		return out
	}
	for _, line := range strings.Split(listing, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out[line] = struct{}{}
		}
	}
	return out
}

func scoreFile(path, rel string, keywords []string) int {
	if len(keywords) == 0 {
		return 0
	}
	score := 0
	relLower := strings.ToLower(rel)
	var content string
	for _, k := range keywords {
		if strings.Contains(relLower, k) {
			score += 2
			continue
		}
		if content == "" {
			data, err := os.ReadFile(path)
			if err != nil {
				return score
			}
			content = strings.ToLower(string(data))
		}
		if strings.Contains(content, k) {
			score++
		}
	}
	return score
}

func top(cands []candidate, n int) []candidate {
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].score != cands[j].score {
			return cands[i].score > cands[j].score
		}
		return cands[i].path < cands[j].path
	})
	if len(cands) > n {
		cands = cands[:n]
	}
	return cands
}

func (c *Collector) load(cands []candidate) []pipeline.FileRef {
	var refs []pipeline.FileRef
	for _, cand := range cands {
		data, err := os.ReadFile(filepath.Join(c.dir, cand.path))
		if err != nil {
			continue
		}
		if len(data) > maxFileBytes {
			data = data[:maxFileBytes]
		}
		refs = append(refs, pipeline.FileRef{Path: cand.path, Content: string(data)})
	}
	return refs
}
