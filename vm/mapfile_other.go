//go:build !unix

package vm

import "os"

// mapFile reads path into memory on platforms without mmap.
func mapFile(path string) ([]byte, func(), error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	return data, func() {}, nil
}
