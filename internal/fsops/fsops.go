// Package fsops implements the unit filesystem operations (mkdir, move,
// copy, trash) that the transaction manager composes into a plan. Every
// primitive returns a precise error and an OpResult describing what
// actually happened, so callers can compute inverse metadata without
// re-querying the filesystem.
package fsops

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"
)

// OpResult describes the outcome of a primitive.
type OpResult struct {
	BytesCopied int64
	FinalDst    string
	Overwritten bool
	BackupPath  string
}

// Mkdir creates exactly dst. When parents is true, missing ancestors are
// created as well (equivalent to os.MkdirAll). It fails if dst already
// exists, whether as a directory or not, or — when parents is false — if
// dst's immediate parent does not exist.
func Mkdir(dst string, parents bool, perm os.FileMode) (OpResult, error) {
	if info, err := os.Stat(dst); err == nil {
		if !info.IsDir() {
			return OpResult{}, fmt.Errorf("fsops: mkdir %q: exists and is not a directory", dst)
		}
		return OpResult{}, fmt.Errorf("fsops: mkdir %q: already exists", dst)
	}

	if parents {
		if err := os.MkdirAll(dst, perm); err != nil {
			return OpResult{}, fmt.Errorf("fsops: mkdir -p %q: %w", dst, err)
		}
		return OpResult{FinalDst: dst}, nil
	}

	parent := filepath.Dir(dst)
	if _, err := os.Stat(parent); err != nil {
		return OpResult{}, fmt.Errorf("fsops: mkdir %q: parent %q missing: %w", dst, parent, err)
	}
	if err := os.Mkdir(dst, perm); err != nil {
		return OpResult{}, fmt.Errorf("fsops: mkdir %q: %w", dst, err)
	}
	return OpResult{FinalDst: dst}, nil
}

// SameVolume reports whether src and dst's parent directory live on the
// same device, so Move can choose a single atomic rename over copy+delete.
// On platforms where the device id isn't available this conservatively
// reports false, which routes Move through the always-correct copy+delete
// path.
func SameVolume(src, dst string) (bool, error) {
	srcInfo, err := os.Lstat(src)
	if err != nil {
		return false, fmt.Errorf("fsops: stat %q: %w", src, err)
	}
	dstParent := filepath.Dir(dst)
	dstInfo, err := os.Stat(dstParent)
	if err != nil {
		return false, fmt.Errorf("fsops: stat %q: %w", dstParent, err)
	}

	srcStat, ok1 := srcInfo.Sys().(*syscall.Stat_t)
	dstStat, ok2 := dstInfo.Sys().(*syscall.Stat_t)
	if !ok1 || !ok2 {
		return false, nil
	}
	return srcStat.Dev == dstStat.Dev, nil
}

// Mv relocates src to dst. dst must not already exist: collision policy is
// always applied before Mv is called (§4.3), so Mv never clobbers. When src
// and dst share a volume and crossDevice is false, a single os.Rename is
// used (atomic on conforming filesystems); otherwise Mv falls back to
// copy-then-remove.
func Mv(src, dst string, crossDevice bool) (OpResult, error) {
	if _, err := os.Lstat(dst); err == nil {
		return OpResult{}, fmt.Errorf("fsops: mv %q -> %q: destination already exists", src, dst)
	}

	sameVol, err := SameVolume(src, dst)
	if err != nil {
		return OpResult{}, err
	}

	if sameVol && !crossDevice {
		if err := os.Rename(src, dst); err != nil {
			return OpResult{}, fmt.Errorf("fsops: rename %q -> %q: %w", src, dst, err)
		}
		return OpResult{FinalDst: dst}, nil
	}

	info, err := os.Lstat(src)
	if err != nil {
		return OpResult{}, fmt.Errorf("fsops: mv: stat %q: %w", src, err)
	}

	result, err := Cp(src, dst, true)
	if err != nil {
		return OpResult{}, fmt.Errorf("fsops: mv %q -> %q: copy phase: %w", src, dst, err)
	}

	if info.IsDir() {
		err = os.RemoveAll(src)
	} else {
		err = os.Remove(src)
	}
	if err != nil {
		return OpResult{}, fmt.Errorf("fsops: mv %q -> %q: remove-source phase: %w", src, dst, err)
	}

	return OpResult{BytesCopied: result.BytesCopied, FinalDst: dst}, nil
}

// Cp duplicates src at dst: a single file, or — when recursive is true — an
// entire directory tree, preserving relative structure. It returns the
// total number of bytes copied.
func Cp(src, dst string, recursive bool) (OpResult, error) {
	info, err := os.Lstat(src)
	if err != nil {
		return OpResult{}, fmt.Errorf("fsops: cp: stat %q: %w", src, err)
	}

	if info.Mode().IsRegular() {
		n, err := copyFile(src, dst, info.Mode().Perm())
		if err != nil {
			return OpResult{}, fmt.Errorf("fsops: cp %q -> %q: %w", src, dst, err)
		}
		return OpResult{BytesCopied: n, FinalDst: dst}, nil
	}

	if info.IsDir() {
		if !recursive {
			return OpResult{}, fmt.Errorf("fsops: cp %q: is a directory; recursive not set", src)
		}
		total, err := copyTree(src, dst)
		if err != nil {
			return OpResult{}, fmt.Errorf("fsops: cp %q -> %q: %w", src, dst, err)
		}
		return OpResult{BytesCopied: total, FinalDst: dst}, nil
	}

	return OpResult{}, fmt.Errorf("fsops: cp %q: unsupported file type %v", src, info.Mode())
}

func copyFile(src, dst string, perm os.FileMode) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return 0, fmt.Errorf("creating destination parent: %w", err)
	}

	in, err := os.Open(src)
	if err != nil {
		return 0, fmt.Errorf("opening source: %w", err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return 0, fmt.Errorf("creating destination: %w", err)
	}
	defer out.Close()

	n, err := io.Copy(out, in)
	if err != nil {
		return n, fmt.Errorf("copying bytes: %w", err)
	}
	if err := out.Sync(); err != nil {
		return n, fmt.Errorf("syncing destination: %w", err)
	}
	return n, nil
}

func copyTree(src, dst string) (int64, error) {
	if err := os.MkdirAll(dst, 0o750); err != nil {
		return 0, fmt.Errorf("creating destination root: %w", err)
	}

	var total int64
	err := filepath.WalkDir(src, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return fmt.Errorf("walking %q: %w", path, walkErr)
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return fmt.Errorf("computing relative path for %q: %w", path, err)
		}
		target := filepath.Join(dst, rel)

		if d.IsDir() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			return os.MkdirAll(target, info.Mode().Perm()|0o700)
		}

		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("stat %q: %w", path, err)
		}
		n, err := copyFile(path, target, info.Mode().Perm())
		if err != nil {
			return err
		}
		total += n
		return nil
	})
	if err != nil {
		return total, err
	}
	return total, nil
}

// Remove deletes a file, or (if recursive) an entire directory tree. It is
// used by rollback/undo to discard the entry a Copy created.
func Remove(path string, recursive bool) error {
	info, err := os.Lstat(path)
	if err != nil {
		return fmt.Errorf("fsops: remove: stat %q: %w", path, err)
	}
	if info.IsDir() {
		if !recursive {
			if err := os.Remove(path); err != nil {
				return fmt.Errorf("fsops: rmdir %q: %w", path, err)
			}
			return nil
		}
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("fsops: remove-all %q: %w", path, err)
		}
		return nil
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("fsops: remove %q: %w", path, err)
	}
	return nil
}

// TrashDestination computes the deterministic quarantine path for src: a
// neighbouring entry with a reserved ".trashed" extension appended, so it
// is trivially reversible by Mv back to src.
func TrashDestination(src string) string {
	return src + ".trashed"
}

// Trash quarantines src by moving it to its deterministic trash
// destination. The move is reversible by Mv(quarantine, src, false).
func Trash(src string) (OpResult, error) {
	dst := TrashDestination(src)
	for n := 2; ; n++ {
		if _, err := os.Lstat(dst); os.IsNotExist(err) {
			break
		}
		dst = fmt.Sprintf("%s.%d", TrashDestination(src), n)
	}
	return Mv(src, dst, false)
}
