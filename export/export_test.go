package export

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type stubFetcher struct {
	body string
	err  error

	runID    string
	filename string
}

func (s *stubFetcher) Artifact(_ context.Context, runID, filename string) (io.ReadCloser, error) {
	s.runID = runID
	s.filename = filename
	if s.err != nil {
		return nil, s.err
	}
	return io.NopCloser(strings.NewReader(s.body)), nil
}

func TestExportWritesLocalFile(t *testing.T) {
	dir := t.TempDir()
	f := &stubFetcher{body: "# Dossier\n\nfindings\n"}

	loc, err := Export(context.Background(), f, FileDestination{Dir: dir}, "run-1", "")
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	if f.filename != DefaultArtifact {
		t.Errorf("fetched %q, want %q", f.filename, DefaultArtifact)
	}
	want := filepath.Join(dir, DefaultArtifact)
	if loc != want {
		t.Errorf("location = %q, want %q", loc, want)
	}
	data, err := os.ReadFile(loc)
	if err != nil {
		t.Fatalf("read exported file: %v", err)
	}
	if string(data) != f.body {
		t.Errorf("file content = %q, want %q", data, f.body)
	}
}

func TestExportStripsPathComponents(t *testing.T) {
	dir := t.TempDir()
	f := &stubFetcher{body: "x"}

	loc, err := Export(context.Background(), f, FileDestination{Dir: dir}, "run-1", "../escape.md")
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if filepath.Dir(loc) != dir {
		t.Errorf("artifact written outside destination dir: %s", loc)
	}
}

func TestExportPropagatesFetchError(t *testing.T) {
	f := &stubFetcher{err: errors.New("no such run")}
	_, err := Export(context.Background(), f, FileDestination{Dir: t.TempDir()}, "run-1", "report.md")
	if err == nil {
		t.Fatal("Export succeeded, want error")
	}
}

type capturePut struct {
	bucket string
	key    string
	body   string
	err    error
}

func (c *capturePut) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.bucket = *in.Bucket
	c.key = *in.Key
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	c.body = string(data)
	return &s3.PutObjectOutput{}, nil
}

func TestS3DestinationPrefixesKey(t *testing.T) {
	put := &capturePut{}
	dest := &S3Destination{api: put, bucket: "reports", prefix: "dossier/"}

	loc, err := dest.Write(context.Background(), "report.pdf", strings.NewReader("pdf-bytes"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	if put.key != "dossier/report.pdf" {
		t.Errorf("key = %q, want dossier/report.pdf", put.key)
	}
	if put.body != "pdf-bytes" {
		t.Errorf("body = %q, want pdf-bytes", put.body)
	}
	if loc != "s3://reports/dossier/report.pdf" {
		t.Errorf("location = %q", loc)
	}
}

func TestS3DestinationNoPrefix(t *testing.T) {
	put := &capturePut{}
	dest := &S3Destination{api: put, bucket: "reports"}

	if _, err := dest.Write(context.Background(), "report.md", strings.NewReader("x")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if put.key != "report.md" {
		t.Errorf("key = %q, want report.md", put.key)
	}
}

func TestParseS3Path(t *testing.T) {
	cases := []struct {
		in             string
		bucket, prefix string
	}{
		{"reports", "reports", ""},
		{"reports/dossier", "reports", "dossier"},
		{"reports/a/b", "reports", "a/b"},
	}
	for _, tc := range cases {
		bucket, prefix := ParseS3Path(tc.in)
		if bucket != tc.bucket || prefix != tc.prefix {
			t.Errorf("ParseS3Path(%q) = (%q, %q), want (%q, %q)",
				tc.in, bucket, prefix, tc.bucket, tc.prefix)
		}
	}
}
