// Package policy implements collision resolution and symlink handling. Both
// functions are pure: they inspect the filesystem but never mutate it,
// leaving side effects (backups, moves) to the caller.
package policy

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jopamo/tfs/internal/model"
)

// MaxSuffixAttempts bounds the "suffix" probe loop. The spec treats a
// runaway collision as adversarial rather than expected, so this is a
// generous ceiling, not a normal operating limit.
const MaxSuffixAttempts = 100000

// Resolution is the outcome of resolving a destination collision: the final
// path the operation should write to, and an optional backup path the
// caller must move the pre-existing entry to before the primary mutation.
type Resolution struct {
	FinalDst string
	Backup   string // empty when no backup is required
}

// Resolve decides the final destination path for dst under the given
// collision policy. If dst does not yet exist, it is returned unchanged
// regardless of policy. srcForHash is only read for CollisionHash8 (sha256
// of the source's bytes); it may be empty for non-Move/Copy callers for
// which hash8 cannot apply.
func Resolve(p model.CollisionPolicy, dst, srcForHash string, allowOverwrite bool) (Resolution, error) {
	if _, err := os.Lstat(dst); os.IsNotExist(err) {
		return Resolution{FinalDst: dst}, nil
	} else if err != nil {
		return Resolution{}, fmt.Errorf("policy: stat %q: %w", dst, err)
	}

	switch p {
	case model.CollisionFail:
		return Resolution{}, fmt.Errorf("destination already exists and policy is %q: %s", model.CollisionFail, dst)

	case model.CollisionSuffix:
		final, err := suffixCandidate(dst)
		if err != nil {
			return Resolution{}, err
		}
		return Resolution{FinalDst: final}, nil

	case model.CollisionHash8:
		final, err := hash8Candidate(dst, srcForHash)
		if err != nil {
			return Resolution{}, err
		}
		return Resolution{FinalDst: final}, nil

	case model.CollisionOverwriteWithBackup:
		if !allowOverwrite {
			return Resolution{}, fmt.Errorf("%s policy requires allow_overwrite", model.CollisionOverwriteWithBackup)
		}
		return Resolution{FinalDst: dst, Backup: dst + ".backup"}, nil

	default:
		return Resolution{}, fmt.Errorf("policy: unknown collision policy %q", p)
	}
}

// suffixCandidate appends ".2", ".3", ... after dst's full name (including
// any extension) until a non-existing candidate is found. Probing is
// sequential and halts at the first miss; it never touches an existing
// file.
func suffixCandidate(dst string) (string, error) {
	for n := 2; n <= MaxSuffixAttempts; n++ {
		candidate := fmt.Sprintf("%s.%d", dst, n)
		if _, err := os.Lstat(candidate); os.IsNotExist(err) {
			return candidate, nil
		} else if err != nil {
			return "", fmt.Errorf("policy: stat %q: %w", candidate, err)
		}
	}
	return "", fmt.Errorf("policy: no free suffix for %q after %d attempts", dst, MaxSuffixAttempts)
}

// hash8Candidate appends an 8 lowercase hex digit token derived from the
// sha256 of src's bytes. If src has no bytes to hash (a directory, or Mkdir
// with no source) the destination's own basename is hashed instead, so the
// policy still produces a deterministic, collision-resistant name.
func hash8Candidate(dst, src string) (string, error) {
	h := sha256.New()
	if src != "" {
		data, err := os.ReadFile(src)
		if err == nil {
			h.Write(data)
		} else if info, statErr := os.Stat(src); statErr == nil && info.IsDir() {
			h.Write([]byte(filepath.Base(dst)))
		} else {
			return "", fmt.Errorf("policy: hash8: reading source %q: %w", src, err)
		}
	} else {
		h.Write([]byte(filepath.Base(dst)))
	}
	token := fmt.Sprintf("%x", h.Sum(nil))[:8]
	return fmt.Sprintf("%s.%s", dst, token), nil
}

// CheckSymlink applies the symlink policy to path as referenced (not as
// canonicalized): it inspects path itself via Lstat, so a plain file that
// happens to sit behind an already-resolved symlink ancestor is not flagged
// — only path being a symlink itself triggers the policy.
//
// SymlinkSkip and SymlinkError both reject the plan; see model.SymlinkSkip's
// doc comment and DESIGN.md for why "skip" is not a silent drop.
func CheckSymlink(p model.SymlinkPolicy, path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		return fmt.Errorf("policy: lstat %q: %w", path, err)
	}
	if info.Mode()&os.ModeSymlink == 0 {
		return nil
	}
	switch p {
	case model.SymlinkFollow:
		return nil
	case model.SymlinkSkip:
		return fmt.Errorf("symlink rejected by skip policy: %s", path)
	case model.SymlinkError:
		return fmt.Errorf("symlink not allowed: %s", path)
	default:
		return fmt.Errorf("policy: unknown symlink policy %q", p)
	}
}

// IsSymlinkRejection reports whether err originated from CheckSymlink
// rejecting a path, as opposed to a stat failure. Useful for callers that
// want to map confinement vs. policy errors to different exit codes; kept
// simple since both currently map to the same exit code (§7).
func IsSymlinkRejection(err error) bool {
	return err != nil && strings.Contains(err.Error(), "symlink")
}
