// Package hasher computes RetroAchievements content hashes of ROM files.
package hasher

import (
	"archive/zip"
	"bufio"
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/bodgit/sevenzip"
)

// inesHeader prefixes NES ROM dumps and is not part of the hashed content.
var inesHeader = []byte("NES\x1a")

const inesHeaderSize = 16

// discFormats need console specific hashing of their data tracks, which
// only the external hash command implements.
var discFormats = map[string]bool{
	".chd": true, ".cue": true, ".iso": true, ".bin": true, ".img": true,
	".cdi": true, ".gdi": true, ".m3u": true, ".ecm": true, ".mds": true,
	".mdf": true, ".pbp": true, ".ciso": true, ".cso": true,
}

// MD5 hashes cartridge ROMs in-process. Archives are hashed by their first
// file. Disc images hash to "", meaning they cannot be identified.
type MD5 struct{}

func (MD5) Hash(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case ext == ".zip":
		return hashFirstZipEntry(path)
	case ext == ".7z":
		return hashFirst7zEntry(path)
	case discFormats[ext]:
		return "", nil
	}

	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return hashReader(f, path)
}

// hashReader hashes r, skipping an iNES header.
func hashReader(r io.Reader, name string) (string, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(len(inesHeader))
	if err == nil && bytes.Equal(head, inesHeader) {
		if _, err := br.Discard(inesHeaderSize); err != nil {
			return "", fmt.Errorf("failed to skip header of %s: %w", name, err)
		}
	}

	h := md5.New()
	if _, err := io.Copy(h, br); err != nil {
		return "", fmt.Errorf("failed to read %s: %w", name, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func hashFirstZipEntry(path string) (string, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return "", err
	}
	defer r.Close()

	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", err
		}
		defer rc.Close()
		return hashReader(rc, f.Name)
	}
	return "", nil
}

func hashFirst7zEntry(path string) (string, error) {
	r, err := sevenzip.OpenReader(path)
	if err != nil {
		return "", err
	}
	defer r.Close()

	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", err
		}
		defer rc.Close()
		return hashReader(rc, f.Name)
	}
	return "", nil
}

// Command runs an external hash binary with the ROM path as its only
// argument and returns its trimmed output.
type Command struct {
	Path string
}

func (c Command) Hash(ctx context.Context, path string) (string, error) {
	cmd := exec.CommandContext(ctx, c.Path, path)
	// Bundled launchers export their own libraries, which breaks the binary.
	cmd.Env = append(os.Environ(), "LD_LIBRARY_PATH=")

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", fmt.Errorf("%s failed: %w: %s", c.Path, err, strings.TrimSpace(stderr.String()))
		}
		return "", err
	}
	return strings.ToLower(strings.TrimSpace(string(out))), nil
}
