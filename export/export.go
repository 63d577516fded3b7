// Package export moves run report artifacts to a local directory or an
// S3 bucket.
package export

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pithecene-io/dossier/iox"
)

// DefaultArtifact is fetched when no filename is given.
const DefaultArtifact = "report.md"

// Fetcher retrieves a report artifact for a run. *client.Client
// satisfies it.
type Fetcher interface {
	Artifact(ctx context.Context, runID, filename string) (io.ReadCloser, error)
}

// Destination receives artifact bytes. Write returns a human-readable
// location of the stored artifact.
type Destination interface {
	Write(ctx context.Context, name string, r io.Reader) (string, error)
}

// Export fetches filename for runID and streams it into dest.
// It returns the location reported by the destination.
func Export(ctx context.Context, f Fetcher, dest Destination, runID, filename string) (string, error) {
	if filename == "" {
		filename = DefaultArtifact
	}

	body, err := f.Artifact(ctx, runID, filename)
	if err != nil {
		return "", err
	}
	defer iox.DiscardClose(body)

	loc, err := dest.Write(ctx, filename, body)
	if err != nil {
		return "", fmt.Errorf("export %s: %w", filename, err)
	}
	return loc, nil
}

// FileDestination writes artifacts into a directory, creating it if
// needed.
type FileDestination struct {
	Dir string
}

func (d FileDestination) Write(_ context.Context, name string, r io.Reader) (string, error) {
	dir := d.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	path := filepath.Join(dir, filepath.Base(name))
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}

	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return path, nil
}
