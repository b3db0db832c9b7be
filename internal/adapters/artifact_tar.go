package adapters

import (
	"archive/tar"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog/log"

	"comlinepm/internal/ports"
	"comlinepm/internal/types"
)

// FrozenFileName is the canonical frozen config stored inside every archive.
const FrozenFileName = "frozen.yaml"

// ArtifactTarAdapter packs a package root into a reproducible tar.gz: entries
// are walked in lexical order with zeroed ownership and timestamps.
type ArtifactTarAdapter struct{}

func NewArtifactTarAdapter() ArtifactTarAdapter {
	return ArtifactTarAdapter{}
}

func (a ArtifactTarAdapter) Produce(ctx context.Context, packageRoot string, outputDir string, frozen types.FrozenConfig) ([]types.Artifact, error) {
	if strings.TrimSpace(packageRoot) == "" {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("package root is empty")
	}
	if strings.TrimSpace(outputDir) == "" {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("output directory is empty")
	}
	namespace, err := frozen.Namespace()
	if err != nil {
		return nil, err
	}
	version, err := frozen.Version()
	if err != nil {
		return nil, err
	}
	canonical, err := frozen.Canonical()
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to encode frozen config").
			WithCause(err)
	}
	if err := os.MkdirAll(outputDir, 0o750); err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to create output directory").
			WithCause(err)
	}

	base := ArchiveBaseName(namespace, version)
	archivePath := filepath.Join(outputDir, base+".tar.gz")
	file, err := os.Create(archivePath)
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to create archive").
			WithCause(err)
	}
	hasher := sha256.New()
	counter := &countingWriter{}
	gz := gzip.NewWriter(io.MultiWriter(file, hasher, counter))
	tw := tar.NewWriter(gz)

	writeErr := writePackageTree(ctx, tw, packageRoot, outputDir, base, canonical)
	if err := tw.Close(); err != nil && writeErr == nil {
		writeErr = err
	}
	if err := gz.Close(); err != nil && writeErr == nil {
		writeErr = err
	}
	if err := file.Close(); err != nil && writeErr == nil {
		writeErr = err
	}
	if writeErr != nil {
		_ = os.Remove(archivePath)
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to write archive " + archivePath).
			WithCause(writeErr)
	}

	artifact := types.Artifact{
		Path:   archivePath,
		Digest: "sha256:" + hex.EncodeToString(hasher.Sum(nil)),
		Size:   counter.n,
	}
	log.Debug().Str("path", artifact.Path).Str("digest", artifact.Digest).Int64("size", artifact.Size).Msg("artifact produced")
	return []types.Artifact{artifact}, nil
}

// ArchiveBaseName is "<namespace>-<version>", the archive's file stem and
// its top-level directory.
func ArchiveBaseName(namespace string, version string) string {
	return fmt.Sprintf("%s-%s", namespace, version)
}

func writePackageTree(ctx context.Context, tw *tar.Writer, root string, outputDir string, prefix string, frozen []byte) error {
	epoch := time.Unix(0, 0).UTC()
	if err := tw.WriteHeader(&tar.Header{
		Name:     prefix + "/" + FrozenFileName,
		Mode:     0o644,
		Size:     int64(len(frozen)),
		ModTime:  epoch,
		Typeflag: tar.TypeReg,
		Format:   tar.FormatPAX,
	}); err != nil {
		return err
	}
	if _, err := tw.Write(frozen); err != nil {
		return err
	}

	absOut, _ := filepath.Abs(outputDir)
	return filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path == root {
			return nil
		}
		if strings.HasPrefix(entry.Name(), ".") {
			if entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if absPath, _ := filepath.Abs(path); absPath == absOut {
			return filepath.SkipDir
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		name := prefix + "/" + filepath.ToSlash(rel)
		if entry.IsDir() {
			return tw.WriteHeader(&tar.Header{
				Name:     name + "/",
				Mode:     0o755,
				ModTime:  epoch,
				Typeflag: tar.TypeDir,
				Format:   tar.FormatPAX,
			})
		}
		if !entry.Type().IsRegular() {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		if err := tw.WriteHeader(&tar.Header{
			Name:     name,
			Mode:     int64(info.Mode().Perm()),
			Size:     info.Size(),
			ModTime:  epoch,
			Typeflag: tar.TypeReg,
			Format:   tar.FormatPAX,
		}); err != nil {
			return err
		}
		src, err := os.Open(path)
		if err != nil {
			return err
		}
		defer src.Close()
		_, err = io.Copy(tw, src)
		return err
	})
}

type countingWriter struct {
	n int64
}

func (w *countingWriter) Write(p []byte) (int, error) {
	w.n += int64(len(p))
	return len(p), nil
}

var _ ports.ArtifactPort = ArtifactTarAdapter{}
