package container

import (
	"fmt"
	"os"

	"alphapack/internal/fileutil"
)

// WriteFile encodes doc and writes it atomically to path while holding the
// path's write lock.
func WriteFile(path string, doc *Document, opts ...EncodeOption) (int, error) {
	data, err := Encode(doc, opts...)
	if err != nil {
		return 0, err
	}
	err = fileutil.WithLock(path, func() error {
		return fileutil.WriteAtomic(path, data, 0o644)
	})
	if err != nil {
		return 0, fmt.Errorf("write container %s: %w", path, err)
	}
	return len(data), nil
}

// ReadFile reads and decodes the container at path.
func ReadFile(path string, opts ...DecodeOption) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read container: %w", err)
	}
	return Decode(data, opts...)
}
