// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package storage resolves the PTX role's input file through a fallback
// chain (explicit path, removable volume, S3 object, bundled default) and
// writes the PRX role's output atomically.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Credentials optionally overrides the default AWS credential chain
// (env vars, shared config file, IMDS) with an explicit static access
// key/secret pair, for hosts where that chain isn't available — e.g. a
// removable-media kiosk whose only way to receive a secret is a CLI flag.
// Zero value means "use the default chain".
type S3Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
}

func (c S3Credentials) explicit() bool {
	return c.AccessKeyID != "" && c.SecretAccessKey != ""
}

// RemovableVolumeRoots lists the directories scanned for a removable
// volume's input file when no explicit path is given. Platform-specific
// mount conventions (udisks on Linux, DiskArbitration on macOS) are out of
// scope; this is a best-effort scan of the usual mount roots.
var RemovableVolumeRoots = []string{"/media", "/run/media", "/mnt", "/Volumes"}

// VolumeMarker is the file that flags a mounted directory as a transfer
// volume, so an unrelated USB stick plugged in alongside it is never read
// by mistake.
const VolumeMarker = ".nrf24mtp-volume"

// ResolveInput runs the PTX input discovery chain in order: the
// -file-path-tx value (if non-empty, read as an "s3://bucket/key" URI or as
// a local path), the first regular file found under RemovableVolumeRoots,
// and finally the bundled fallback. Returns the resolved bytes and a label
// identifying the source, for logging.
func ResolveInput(ctx context.Context, filePathTX string, s3Creds S3Credentials) ([]byte, string, error) {
	if strings.HasPrefix(filePathTX, "s3://") {
		data, err := readS3Object(ctx, filePathTX, s3Creds)
		if err != nil {
			return nil, "", fmt.Errorf("storage: reading %s: %w", filePathTX, err)
		}
		return data, "s3:" + filePathTX, nil
	}

	if filePathTX != "" {
		data, err := os.ReadFile(filePathTX)
		if err != nil {
			return nil, "", fmt.Errorf("storage: reading explicit input %s: %w", filePathTX, err)
		}
		return data, "explicit:" + filePathTX, nil
	}

	if path, ok := findRemovableVolumeFile(); ok {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, "", fmt.Errorf("storage: reading removable volume file %s: %w", path, err)
		}
		return data, "removable:" + path, nil
	}

	return BundledFallback(), "bundled", nil
}

// findRemovableVolumeFile returns the first regular file found (in sorted
// directory-then-name order) under a mounted volume that carries the
// VolumeMarker file, scanning RemovableVolumeRoots in order.
func findRemovableVolumeFile() (string, bool) {
	for _, root := range RemovableVolumeRoots {
		entries, err := os.ReadDir(root)
		if err != nil {
			continue
		}
		var volumes []string
		for _, e := range entries {
			if e.IsDir() {
				volumes = append(volumes, filepath.Join(root, e.Name()))
			}
		}
		sort.Strings(volumes)
		for _, vol := range volumes {
			if _, err := os.Stat(filepath.Join(vol, VolumeMarker)); err != nil {
				continue
			}
			files, err := os.ReadDir(vol)
			if err != nil {
				continue
			}
			var names []string
			for _, f := range files {
				if !f.IsDir() && f.Name() != VolumeMarker {
					names = append(names, f.Name())
				}
			}
			sort.Strings(names)
			if len(names) > 0 {
				return filepath.Join(vol, names[0]), true
			}
		}
	}
	return "", false
}

// readS3Object fetches the full object body for an "s3://bucket/key" URI.
// When s3Creds carries an explicit access key/secret pair it takes priority
// over the default credential chain; otherwise the default chain resolves
// credentials as usual.
func readS3Object(ctx context.Context, uri string, s3Creds S3Credentials) ([]byte, error) {
	bucket, key, err := parseS3URI(uri)
	if err != nil {
		return nil, err
	}

	var opts []func(*config.LoadOptions) error
	if s3Creds.explicit() {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(s3Creds.AccessKeyID, s3Creds.SecretAccessKey, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	client := s3.NewFromConfig(cfg)

	out, err := client.GetObject(ctx, &s3.GetObjectInput{Bucket: &bucket, Key: &key})
	if err != nil {
		return nil, fmt.Errorf("getting object: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("reading object body: %w", err)
	}
	return data, nil
}

func parseS3URI(uri string) (bucket, key string, err error) {
	const prefix = "s3://"
	if !strings.HasPrefix(uri, prefix) {
		return "", "", fmt.Errorf("storage: %q is not an s3:// URI", uri)
	}
	rest := strings.TrimPrefix(uri, prefix)
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("storage: %q must be s3://bucket/key", uri)
	}
	return parts[0], parts[1], nil
}

// AtomicWriter writes the PRX role's reconstructed output file atomically:
// a temp file in outputDir, then an os.Rename into place under a
// timestamped name so a crash mid-write never leaves a partial file visible
// under its final name.
type AtomicWriter struct {
	outputDir string
}

// NewAtomicWriter creates outputDir if needed and returns a writer for it.
func NewAtomicWriter(outputDir string) (*AtomicWriter, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("storage: creating output directory %s: %w", outputDir, err)
	}
	return &AtomicWriter{outputDir: outputDir}, nil
}

// WriteFile writes data to a temp file in outputDir and renames it into
// place as "{timestamp}-{unique}.bin", returning the final path. The unique
// token is lifted from the os.CreateTemp-assigned name, so two transfers
// landing in the same millisecond (even across separate AtomicWriters or
// processes) never collide on the final name.
func (w *AtomicWriter) WriteFile(data []byte) (string, error) {
	tmp, err := os.CreateTemp(w.outputDir, "transfer-*.tmp")
	if err != nil {
		return "", fmt.Errorf("storage: creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("storage: writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("storage: closing temp file: %w", err)
	}

	unique := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(tmpPath), "transfer-"), ".tmp")
	timestamp := strings.ReplaceAll(time.Now().UTC().Format("2006-01-02T15-04-05.000"), ".", "-")
	finalPath := filepath.Join(w.outputDir, fmt.Sprintf("%s-%s.bin", timestamp, unique))
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("storage: renaming temp file into place: %w", err)
	}
	return finalPath, nil
}

// Rotate removes output files beyond the maxFiles most recent, named in
// chronological order by their timestamp prefix.
func Rotate(outputDir string, maxFiles int) error {
	if maxFiles <= 0 {
		return nil
	}

	entries, err := os.ReadDir(outputDir)
	if err != nil {
		return fmt.Errorf("storage: reading output directory: %w", err)
	}

	var outputs []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".bin") {
			outputs = append(outputs, e.Name())
		}
	}
	sort.Strings(outputs)

	if len(outputs) > maxFiles {
		for _, name := range outputs[:len(outputs)-maxFiles] {
			if err := os.Remove(filepath.Join(outputDir, name)); err != nil {
				return fmt.Errorf("storage: removing old output %s: %w", name, err)
			}
		}
	}
	return nil
}
