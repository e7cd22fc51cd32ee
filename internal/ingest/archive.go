package ingest

import (
	"archive/tar"
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// ErrUnsafeArchivePath marks an entry that would land outside the target.
var ErrUnsafeArchivePath = errors.New("archive entry escapes extraction directory")

var archiveSuffixes = []string{".tar.gz", ".tgz", ".tar", ".zip"}

// ArchiveSuffix returns the recognized archive suffix of name, or "".
func ArchiveSuffix(name string) string {
	lower := strings.ToLower(name)
	for _, suffix := range archiveSuffixes {
		if strings.HasSuffix(lower, suffix) && len(lower) > len(suffix) {
			return suffix
		}
	}
	return ""
}

// Extract unpacks archive into a sibling directory named after it and
// removes the archive once every entry is written. The contents are written
// to a hidden working directory first, so watchers never see a partial
// tree. On failure the archive is left untouched.
func Extract(archive string) (string, []string, error) {
	suffix := ArchiveSuffix(archive)
	if suffix == "" {
		return "", nil, fmt.Errorf("%s: not a recognized archive", archive)
	}
	parent := filepath.Dir(archive)
	base := filepath.Base(archive)
	name := strings.TrimSpace(base[:len(base)-len(suffix)])
	if name == "" {
		name = "archive"
	}

	work, err := os.MkdirTemp(parent, "."+name+".extracting-")
	if err != nil {
		return "", nil, fmt.Errorf("create extraction dir: %w", err)
	}
	cleanup := func() { _ = os.RemoveAll(work) }

	if suffix == ".zip" {
		err = extractZip(archive, work)
	} else {
		err = extractTar(archive, work, suffix != ".tar")
	}
	if err != nil {
		cleanup()
		return "", nil, err
	}

	dest := uniqueDir(filepath.Join(parent, name))
	if err := os.Rename(work, dest); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("publish extracted dir: %w", err)
	}
	files, err := listFiles(dest)
	if err != nil {
		return dest, nil, err
	}
	if err := os.Remove(archive); err != nil {
		return dest, files, fmt.Errorf("remove archive: %w", err)
	}
	return dest, files, nil
}

func extractZip(archive, dest string) error {
	reader, err := zip.OpenReader(archive)
	if err != nil {
		return fmt.Errorf("open zip: %w", err)
	}
	defer reader.Close()

	for _, file := range reader.File {
		target, err := safeJoin(dest, file.Name)
		if err != nil {
			return err
		}
		if file.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if !file.Mode().IsRegular() {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return fmt.Errorf("open %s: %w", file.Name, err)
		}
		err = writeEntry(target, rc)
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func extractTar(archive, dest string, gzipped bool) error {
	f, err := os.Open(archive)
	if err != nil {
		return fmt.Errorf("open tar: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if gzipped {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("open gzip stream: %w", err)
		}
		defer gz.Close()
		r = gz
	}

	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read tar: %w", err)
		}
		target, err := safeJoin(dest, hdr.Name)
		if err != nil {
			return err
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeEntry(target, tr); err != nil {
				return err
			}
		default:
			// Links and devices are not book content.
		}
	}
}

// climbsOut reports whether a relative path steps above its base. Names
// that merely start with dots, such as "..Intro.mp3", stay inside.
func climbsOut(rel string) bool {
	return rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func safeJoin(dest, name string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(cleaned) || climbsOut(cleaned) {
		return "", fmt.Errorf("%w: %s", ErrUnsafeArchivePath, name)
	}
	target := filepath.Join(dest, cleaned)
	rel, err := filepath.Rel(dest, target)
	if err != nil || climbsOut(rel) {
		return "", fmt.Errorf("%w: %s", ErrUnsafeArchivePath, name)
	}
	return target, nil
}

func writeEntry(target string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(target), err)
	}
	return out.Close()
}

func uniqueDir(path string) string {
	if _, err := os.Lstat(path); errors.Is(err, os.ErrNotExist) {
		return path
	}
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s (%d)", path, i)
		if _, err := os.Lstat(candidate); errors.Is(err, os.ErrNotExist) {
			return candidate
		}
	}
}

func listFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}
