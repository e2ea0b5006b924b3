package local

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/tsmdev/tsm/driver"
)

// ImageFetcher resolves a logical image reference to a local filesystem path
// that becomes the img_root of the role's replicas.
type ImageFetcher interface {
	// Fetch returns the local path the image was resolved to, or a
	// *driver.ImageFetchError if the reference cannot be resolved.
	Fetch(image string) (string, error)
}

// LocalDirectoryImageFetcher treats the image reference as an absolute path
// to an existing local directory and "fetches" it by returning it as-is.
// Useful for development and testing, where the "image" is a directory of
// scripts.
type LocalDirectoryImageFetcher struct{}

func NewLocalDirectoryImageFetcher() *LocalDirectoryImageFetcher {
	return &LocalDirectoryImageFetcher{}
}

func (f *LocalDirectoryImageFetcher) Fetch(image string) (string, error) {
	if !filepath.IsAbs(image) {
		return "", &driver.ImageFetchError{Image: image, Cause: fmt.Errorf("image must be an absolute path")}
	}
	info, err := os.Stat(image)
	if err != nil {
		return "", &driver.ImageFetchError{Image: image, Cause: err}
	}
	if !info.IsDir() {
		return "", &driver.ImageFetchError{Image: image, Cause: fmt.Errorf("image must be a directory")}
	}
	return image, nil
}
