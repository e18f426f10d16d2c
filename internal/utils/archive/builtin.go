package archive

import (
	"archive/tar"
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
	"github.com/ulikunitz/xz"
)

// builtinTar writes tar.gz/tar.xz archives in-process, used when the host
// has no tar binary.
type builtinTar struct {
	format Format
}

func (b *builtinTar) Name() string { return string(b.format) + " (builtin)" }

func (b *builtinTar) Compress(srcDir, outPath string) error {
	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("failed to create archive %s: %w", outPath, err)
	}
	defer out.Close()

	var compressor io.WriteCloser
	switch b.format {
	case TarGz:
		compressor = gzip.NewWriter(out)
	case TarXz:
		xzw, err := xz.NewWriter(out)
		if err != nil {
			return fmt.Errorf("failed to create xz writer: %w", err)
		}
		compressor = xzw
	default:
		return fmt.Errorf("unsupported tar format %q", b.format)
	}

	tw := tar.NewWriter(compressor)
	if err := writeTarTree(tw, srcDir); err != nil {
		tw.Close()
		compressor.Close()
		return err
	}
	if err := tw.Close(); err != nil {
		compressor.Close()
		return fmt.Errorf("failed to finalize tar stream: %w", err)
	}
	if err := compressor.Close(); err != nil {
		return fmt.Errorf("failed to finalize compression: %w", err)
	}
	return out.Sync()
}

func writeTarTree(tw *tar.Writer, srcDir string) error {
	parent := filepath.Dir(srcDir)
	return filepath.Walk(srcDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(parent, path)
		if err != nil {
			return err
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if info.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if info.IsDir() || !info.Mode().IsRegular() {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
}

func (b *builtinTar) List(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive %s: %w", path, err)
	}
	defer f.Close()

	var reader io.Reader
	switch b.format {
	case TarGz:
		gzr, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("gzip stream in %s is corrupt: %w", path, err)
		}
		defer gzr.Close()
		reader = gzr
	case TarXz:
		xzr, err := xz.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("xz stream in %s is corrupt: %w", path, err)
		}
		reader = xzr
	default:
		return nil, fmt.Errorf("unsupported tar format %q", b.format)
	}

	var names []string
	tr := tar.NewReader(reader)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("tar stream in %s is corrupt: %w", path, err)
		}
		names = append(names, hdr.Name)
	}
	return names, nil
}

// builtinZip writes zip archives with archive/zip.
type builtinZip struct{}

func (b *builtinZip) Name() string { return "zip (builtin)" }

func (b *builtinZip) Compress(srcDir, outPath string) error {
	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("failed to create archive %s: %w", outPath, err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	parent := filepath.Dir(srcDir)

	err = filepath.Walk(srcDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(parent, path)
		if err != nil {
			return err
		}
		hdr, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		hdr.Method = zip.Deflate
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(w, f)
		return err
	})
	if err != nil {
		zw.Close()
		return fmt.Errorf("zip compression of %s failed: %w", srcDir, err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finalize zip archive: %w", err)
	}
	return out.Sync()
}

func (b *builtinZip) List(path string) ([]string, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("zip archive %s is corrupt: %w", path, err)
	}
	defer r.Close()

	names := make([]string, 0, len(r.File))
	for _, f := range r.File {
		names = append(names, f.Name)
	}
	return names, nil
}
