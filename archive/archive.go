// Package archive packages a web-app build directory into a .pwa zip.
//
// The output is named "{name}_{version}.pwa" with dots in the version
// replaced by dashes. Name and version come from flags or from a
// package.json style manifest (comments and trailing commas allowed).
package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/tidwall/jsonc"
	"go.uber.org/zap"

	"xdao.co/pwapub/errs"
)

const Ext = ".pwa"

// DefaultDir is packaged when no directory is given.
const DefaultDir = "./dist"

type Manifest struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ParseManifest strips JSONC comments and trailing commas from data before
// decoding it.
func ParseManifest(data []byte) (Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(jsonc.ToJSON(data), &m); err != nil {
		return Manifest{}, errs.Wrap(errs.KindInvalidInput, "parsing manifest", err)
	}
	if m.Name == "" {
		return Manifest{}, errs.New(errs.KindInvalidInput, "manifest has no name")
	}
	return m, nil
}

func ReadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, errs.Wrap(errs.KindInvalidInput, "reading manifest", err)
	}
	m, err := ParseManifest(data)
	if err != nil {
		return Manifest{}, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// OutputName is "{name}_{version with . replaced by -}.pwa".
func OutputName(name, version string) string {
	return name + "_" + strings.ReplaceAll(version, ".", "-") + Ext
}

// Create zips the contents of dir into output, replacing any existing file.
// Top-level entries whose names start with "." are skipped, as is output
// itself when it lies inside dir. It returns the number of files written.
func Create(dir, output string, log *zap.Logger) (int, error) {
	if log == nil {
		log = zap.NewNop()
	}
	info, err := os.Stat(dir)
	if err != nil {
		return 0, errs.Wrap(errs.KindInvalidInput, "reading package directory", err)
	}
	if !info.IsDir() {
		return 0, errs.Newf(errs.KindInvalidInput, "%s is not a directory", dir)
	}

	if _, err := os.Stat(output); err == nil {
		log.Debug("removing existing archive", zap.String("path", output))
		if err := os.Remove(output); err != nil {
			return 0, err
		}
	}
	outAbs, err := filepath.Abs(output)
	if err != nil {
		return 0, err
	}

	f, err := os.OpenFile(output, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return 0, err
	}
	n, err := writeZip(f, dir, outAbs, log)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(output)
		return 0, err
	}
	return n, nil
}

func writeZip(w io.Writer, dir, skip string, log *zap.Logger) (int, error) {
	zw := zip.NewWriter(w)
	files := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if !strings.Contains(rel, string(filepath.Separator)) && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		name := filepath.ToSlash(rel)
		if d.IsDir() {
			_, err := zw.Create(name + "/")
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if abs, err := filepath.Abs(path); err == nil && abs == skip {
			return nil
		}
		if err := addFile(zw, path, name, d); err != nil {
			return err
		}
		log.Debug("adding", zap.String("file", name))
		files++
		return nil
	})
	if err != nil {
		return 0, err
	}
	return files, zw.Close()
}

func addFile(zw *zip.Writer, path, name string, d fs.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		return err
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = name
	hdr.Method = zip.Deflate
	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()
	_, err = io.Copy(w, src)
	return err
}
