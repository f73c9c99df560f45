// Package realfs provides a real implementation of the FileSystem port.
package realfs

import (
	"os"

	"github.com/Brad-Edwards/ssh-control-mcp/internal/ports"
)

// FS implements ports.FileSystem using the os package.
type FS struct{}

// New returns a new real FS.
func New() *FS {
	return &FS{}
}

func (FS) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

func (FS) WriteFile(path string, data []byte, perm uint32) error {
	return os.WriteFile(path, data, os.FileMode(perm))
}

func (FS) MkdirAll(path string, perm uint32) error {
	return os.MkdirAll(path, os.FileMode(perm))
}

func (FS) UserHomeDir() (string, error) {
	return os.UserHomeDir()
}

func (FS) Stat(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

var _ ports.FileSystem = (*FS)(nil)
