package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"

	compositorerrors "github.com/alexisbeaulieu97/compositor/pkg/errors"
)

var yamlLineRegex = regexp.MustCompile(`line (\d+)`)

// ManifestNames are the file names probed when a directory is given.
var ManifestNames = []string{"action.yml", "action.yaml"}

// Options tunes manifest validation.
type Options struct {
	// DefaultShell lets run steps omit shell.
	DefaultShell string
}

// FindManifest resolves a file or action directory to the manifest path.
func FindManifest(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", compositorerrors.NewParseError(path, 0, err)
	}
	if !info.IsDir() {
		return path, nil
	}
	for _, name := range ManifestNames {
		candidate := filepath.Join(path, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", compositorerrors.NewParseError(path, 0, fmt.Errorf("no action.yml or action.yaml found"))
}

// ParseManifest loads a manifest from a file or action directory, validates it,
// and returns the resulting model.
func ParseManifest(path string, opts Options) (*Manifest, error) {
	manifestPath, err := FindManifest(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, compositorerrors.NewParseError(manifestPath, 0, err)
	}

	return LoadManifest(data, manifestPath, opts)
}

// LoadManifest decodes and validates manifest bytes. path is recorded on the
// manifest and used in errors.
func LoadManifest(data []byte, path string, opts Options) (*Manifest, error) {
	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, compositorerrors.NewParseError(path, extractLine(err), err)
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	manifest.Path = path

	if err := ValidateManifest(&manifest, opts); err != nil {
		return nil, err
	}

	return &manifest, nil
}

func extractLine(err error) int {
	if err == nil {
		return 0
	}

	var typeErr *yaml.TypeError
	if errors.As(err, &typeErr) && len(typeErr.Errors) > 0 {
		err = errors.New(typeErr.Errors[0])
	}

	matches := yamlLineRegex.FindStringSubmatch(err.Error())
	if len(matches) != 2 {
		return 0
	}

	var line int
	_, scanErr := fmt.Sscanf(matches[1], "%d", &line)
	if scanErr != nil {
		return 0
	}

	return line
}
