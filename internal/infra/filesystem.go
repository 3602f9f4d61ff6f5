package infra

import (
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
)

// GetWorkDir expands and creates a directory under the bot home.
func GetWorkDir(dotPath string, path ...string) (string, error) {
	parts := append([]string{dotPath}, path...)
	workDir, err := homedir.Expand(filepath.Join(parts...))
	if err != nil {
		return "", errors.WithMessage(err, "expand work dir")
	}
	if err = os.MkdirAll(workDir, 0o755); err != nil {
		return "", errors.WithMessage(err, "create work dir")
	}
	return workDir, nil
}
