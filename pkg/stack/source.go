package stack

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/carbocation/pfx"

	"rockct3d/internal/models"
)

// Source locates a stack. Path is tried first; URL is fetched only when Path
// does not exist.
type Source struct {
	// Path is a local stack file or a directory of numbered slices
	Path string
	// URL is an http(s) or gs:// location
	URL string
	// Cache writes fetched bytes to Path
	Cache bool
}

// ResolveURL rewrites a repository "blob" page URL to its raw download
// form by replacing the first "/blob/" segment with "/raw/"
func ResolveURL(url string) string {
	return strings.Replace(url, "/blob/", "/raw/", 1)
}

// Open loads the volume described by src. client is used for gs:// URLs; when
// nil a client is created with default credentials and closed afterwards.
func Open(ctx context.Context, src Source, client *storage.Client) (*models.Volume, error) {
	if src.Path != "" {
		info, err := os.Stat(src.Path)
		switch {
		case err == nil && info.IsDir():
			return LoadDir(src.Path)
		case err == nil:
			return ReadFile(src.Path)
		case !os.IsNotExist(err) || src.URL == "":
			return nil, fmt.Errorf("failed to open input %s: %w", src.Path, err)
		}
	}
	if src.URL == "" {
		return nil, fmt.Errorf("no input path or url given")
	}

	data, err := Fetch(ctx, src.URL, client)
	if err != nil {
		return nil, err
	}

	// the nifti reader only works on files, so those downloads always land at Path
	if IsNIfTI(src.Path) {
		if err := cache(src.Path, data); err != nil {
			return nil, err
		}
		return ReadNIfTI(src.Path)
	}

	v, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", src.URL, err)
	}

	if src.Cache && src.Path != "" {
		if err := cache(src.Path, data); err != nil {
			return nil, err
		}
	}
	return v, nil
}

func cache(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to cache download: %w", err)
	}
	return nil
}

// ReadFile decodes a stack file from disk. NIfTI volumes are recognised by
// their extension; everything else goes through Decode.
func ReadFile(path string) (*models.Volume, error) {
	if IsNIfTI(path) {
		return ReadNIfTI(path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	v, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return v, nil
}

// Fetch downloads the bytes at url. http(s) requests follow ctx; gs:// objects
// are read through Google Cloud Storage.
func Fetch(ctx context.Context, url string, client *storage.Client) ([]byte, error) {
	switch {
	case strings.HasPrefix(url, "gs://"):
		return fetchGS(ctx, url, client)
	case strings.HasPrefix(url, "http://"), strings.HasPrefix(url, "https://"):
		return fetchHTTP(ctx, ResolveURL(url))
	}
	return nil, fmt.Errorf("unsupported url scheme: %s", url)
}

func fetchHTTP(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download %s: %s", url, resp.Status)
	}
	return io.ReadAll(resp.Body)
}

func fetchGS(ctx context.Context, url string, client *storage.Client) ([]byte, error) {
	// Detect the bucket and the path to the actual file
	pathParts := strings.SplitN(strings.TrimPrefix(url, "gs://"), "/", 2)
	if len(pathParts) != 2 || pathParts[1] == "" {
		return nil, fmt.Errorf("Tried to split your google storage path into 2 parts, but got %d: %v", len(pathParts), pathParts)
	}

	if client == nil {
		var err error
		client, err = storage.NewClient(ctx)
		if err != nil {
			return nil, pfx.Err(err)
		}
		defer client.Close()
	}

	rdr, err := client.Bucket(pathParts[0]).Object(pathParts[1]).NewReader(ctx)
	if err != nil {
		return nil, pfx.Err(fmt.Errorf("%s: %s", url, err))
	}
	defer rdr.Close()

	data, err := io.ReadAll(rdr)
	if err != nil {
		return nil, pfx.Err(fmt.Errorf("%s: %s", url, err))
	}
	return data, nil
}
