package ports

// FileSystem abstracts the filesystem calls the config and pool packages
// need, so tests never touch the real disk or home directory.
type FileSystem interface {
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, data []byte, perm uint32) error
	MkdirAll(path string, perm uint32) error
	UserHomeDir() (string, error)
	Stat(path string) (bool, error)
}
