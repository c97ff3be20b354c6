package audio

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/pathutil"
	"github.com/bmatcuk/doublestar/v4"
)

// Collector expands the paths and glob patterns given on the command line into audio files.
type Collector struct {
	pathModifier pathutil.PathModifier
	pathChecker  pathutil.PathChecker
	logger       log.Logger
}

// NewCollector ...
func NewCollector(pathModifier pathutil.PathModifier, pathChecker pathutil.PathChecker, logger log.Logger) *Collector {
	return &Collector{
		pathModifier: pathModifier,
		pathChecker:  pathChecker,
		logger:       logger,
	}
}

// Collect returns the absolute paths of the regular files matched by paths, in input order and without duplicates.
// Patterns may use `**`. Paths that don't exist or match nothing are skipped with a warning.
func (c *Collector) Collect(paths []string) ([]string, error) {
	var expandedPaths []string
	for _, path := range paths {
		if !strings.ContainsAny(path, "*?[{") {
			expandedPaths = append(expandedPaths, path)
			continue
		}

		base, pattern := doublestar.SplitPattern(path)
		absBase, err := c.pathModifier.AbsPath(base)
		if err != nil {
			return nil, err
		}
		matches, err := doublestar.Glob(os.DirFS(absBase), pattern, doublestar.WithNoFollow())
		if err != nil {
			c.logger.Warnf("Error in path pattern '%s': %s", path, err)
			continue
		}
		if len(matches) == 0 {
			c.logger.Warnf("No match for path pattern: %s", path)
			continue
		}

		for _, match := range matches {
			expandedPaths = append(expandedPaths, filepath.Join(absBase, match))
		}
	}

	seen := map[string]bool{}
	var finalPaths []string
	for _, path := range expandedPaths {
		absPath, err := c.pathModifier.AbsPath(path)
		if err != nil {
			c.logger.Warnf("Failed to parse path %s, error: %s", path, err)
			continue
		}

		exists, err := c.pathChecker.IsPathExists(absPath)
		if err != nil {
			c.logger.Warnf("Failed to check path %s, error: %s", absPath, err)
		}
		if !exists {
			c.logger.Warnf("Audio file doesn't exist: %s", path)
			continue
		}

		info, err := os.Stat(absPath)
		if err != nil || info.IsDir() {
			c.logger.Debugf("Skipping %s: not a regular file", absPath)
			continue
		}

		if seen[absPath] {
			continue
		}
		seen[absPath] = true
		finalPaths = append(finalPaths, absPath)
	}

	return finalPaths, nil
}
