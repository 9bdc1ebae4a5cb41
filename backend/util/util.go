package util

import (
	"io"
	"os"
)

// CopyFile copies srcPath to dstPath, replacing any existing file.
// A partially written dstPath is removed on failure.
func CopyFile(srcPath, dstPath string) error {
	fin, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer fin.Close()

	fout, err := os.Create(dstPath)
	if err != nil {
		return err
	}
	if _, err := io.Copy(fout, fin); err != nil {
		fout.Close()
		os.Remove(dstPath)
		return err
	}
	return fout.Close()
}
