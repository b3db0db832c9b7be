package adapters

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"

	"comlinepm/internal/ports"
	"comlinepm/internal/types"
)

// RegistryFileAdapter publishes into a directory tree laid out as
// <dir>/<namespace>/<version>.tar.gz with the frozen config next to it.
// A version is immutable once stored; pushing the same archive again returns
// the existing receipt.
type RegistryFileAdapter struct {
	Dir string
}

func NewRegistryFileAdapter(dir string) RegistryFileAdapter {
	return RegistryFileAdapter{Dir: dir}
}

// NewRegistryFileAdapterFromURL accepts file:///abs/path and file://rel/path.
func NewRegistryFileAdapterFromURL(raw string) (RegistryFileAdapter, error) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || parsed.Scheme != "file" {
		return RegistryFileAdapter{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("invalid file registry url " + raw).
			WithCause(err)
	}
	dir := parsed.Host + parsed.Path
	if dir == "" {
		return RegistryFileAdapter{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("file registry url has no path")
	}
	return NewRegistryFileAdapter(filepath.FromSlash(dir)), nil
}

func (a RegistryFileAdapter) Push(ctx context.Context, target types.RegistryTarget, session types.Session, upload types.PackageUpload) (types.PushReceipt, error) {
	if err := ctx.Err(); err != nil {
		return types.PushReceipt{}, err
	}
	if strings.TrimSpace(a.Dir) == "" {
		return types.PushReceipt{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("registry directory is empty")
	}
	if err := validateUploadIdentity(upload); err != nil {
		return types.PushReceipt{}, err
	}
	packageDir := filepath.Join(a.Dir, upload.Namespace)
	if err := os.MkdirAll(packageDir, 0o755); err != nil {
		return types.PushReceipt{}, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to create package directory").
			WithCause(err)
	}
	archivePath := filepath.Join(packageDir, upload.Version+".tar.gz")
	receipt := types.PushReceipt{
		Registry: target.Name,
		RemoteID: upload.Namespace + "@" + upload.Version,
		Location: archivePath,
	}
	if _, err := os.Stat(archivePath); err == nil {
		if err := a.matchPublished(archivePath, upload); err != nil {
			return types.PushReceipt{}, err
		}
		log.Debug().Str("registry", target.Name).Str("path", archivePath).Msg("identical package already stored")
		return receipt, nil
	}
	if err := copyFile(upload.Archive.Path, archivePath); err != nil {
		return types.PushReceipt{}, err
	}
	if len(upload.Frozen) > 0 {
		if err := writeFileAtomic(filepath.Join(packageDir, upload.Version+".yaml"), upload.Frozen, 0o644); err != nil {
			_ = os.Remove(archivePath)
			return types.PushReceipt{}, err
		}
	}
	log.Debug().Str("registry", target.Name).Str("path", archivePath).Msg("package stored")
	return receipt, nil
}

// matchPublished accepts a re-push only when the stored archive has the
// digest of the upload.
func (a RegistryFileAdapter) matchPublished(archivePath string, upload types.PackageUpload) error {
	want, err := UploadDigest(upload)
	if err != nil {
		return err
	}
	got, err := FileDigest(archivePath)
	if err != nil {
		return err
	}
	if got != want {
		return errbuilder.New().
			WithCode(errbuilder.CodeAlreadyExists).
			WithMsg(upload.Namespace + "@" + upload.Version + " already published with digest " + got)
	}
	return nil
}

func validateUploadIdentity(upload types.PackageUpload) error {
	fields := []struct{ field, value string }{
		{"namespace", upload.Namespace},
		{"version", upload.Version},
	}
	for _, f := range fields {
		field, value := f.field, f.value
		if strings.TrimSpace(value) == "" {
			return errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg(field + " is empty")
		}
		if strings.ContainsAny(value, `/\`) || value == ".." {
			return errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg(field + " contains path separator")
		}
	}
	if strings.TrimSpace(upload.Archive.Path) == "" {
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("archive path is empty")
	}
	return nil
}

// FileDigest is "sha256:<hex>" of the file at path, the form artifacts
// record.
func FileDigest(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg("failed to open " + path).
			WithCause(err)
	}
	defer file.Close()
	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to read " + path).
			WithCause(err)
	}
	return "sha256:" + hex.EncodeToString(hasher.Sum(nil)), nil
}

// UploadDigest returns the recorded archive digest, hashing the archive
// when none was recorded.
func UploadDigest(upload types.PackageUpload) (string, error) {
	if digest := strings.TrimSpace(upload.Archive.Digest); digest != "" {
		return digest, nil
	}
	return FileDigest(upload.Archive.Path)
}

func copyFile(src string, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg("failed to open archive").
			WithCause(err)
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return errbuilder.New().
				WithCode(errbuilder.CodeAlreadyExists).
				WithMsg(filepath.Base(dst) + " already published")
		}
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to create " + dst).
			WithCause(err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to copy archive").
			WithCause(err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dst)
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to copy archive").
			WithCause(err)
	}
	return nil
}

var _ ports.PublisherPort = RegistryFileAdapter{}
