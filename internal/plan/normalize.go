// Package plan turns a manifest-derived model.Plan into a deterministic,
// fully path-resolved operation sequence, and runs the preflight checks
// that must pass before any mutation begins.
package plan

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/jopamo/tfs/internal/model"
	"github.com/jopamo/tfs/internal/policy"
	"github.com/jopamo/tfs/internal/resolve"
)

// Normalize resolves every operation's paths against root and assigns each
// a fresh, collision-resistant id. The resulting sequence preserves
// manifest order and is deterministic in resolved paths and parent
// obligations across repeated calls against the same (plan, filesystem);
// only the generated ids vary between calls.
func Normalize(p *model.Plan) ([]model.NormalizedOp, error) {
	out := make([]model.NormalizedOp, 0, len(p.Operations))
	for _, op := range p.Operations {
		src, dst, err := resolveOperationPaths(p.Root, op)
		if err != nil {
			return nil, err
		}

		nop := model.NormalizedOp{
			ID:          uuid.NewString(),
			Op:          op,
			ResolvedSrc: src,
			ResolvedDst: dst,
		}

		if op.Kind == model.KindMkdir && op.Parents {
			parents, err := missingAncestors(p.Root, dst)
			if err != nil {
				return nil, err
			}
			nop.Parents = parents
		}

		out = append(out, nop)
	}
	return out, nil
}

func resolveOperationPaths(root string, op model.Operation) (src, dst string, err error) {
	switch op.Kind {
	case model.KindMkdir:
		dst, err = resolve.Resolve(root, op.Dst)
		return "", dst, err
	case model.KindMove, model.KindCopy, model.KindRename:
		src, err = resolve.Resolve(root, op.Src)
		if err != nil {
			return "", "", err
		}
		dst, err = resolve.Resolve(root, op.Dst)
		return src, dst, err
	case model.KindTrash:
		src, err = resolve.Resolve(root, op.Src)
		return src, "", err
	default:
		return "", "", fmt.Errorf("plan: unknown op kind %q", op.Kind)
	}
}

// missingAncestors returns the ordered list (outermost first) of dst's
// ancestor directories below root that do not yet exist, so the transaction
// manager knows exactly which directories a parents=true Mkdir must create.
func missingAncestors(root, dst string) ([]string, error) {
	canonRoot, err := resolve.Canonical(root)
	if err != nil {
		return nil, err
	}

	var missing []string
	cur := filepath.Dir(dst)
	for {
		if cur == canonRoot || len(cur) < len(canonRoot) {
			break
		}
		if _, err := os.Stat(cur); err == nil {
			break
		}
		missing = append(missing, cur)
		parent := filepath.Dir(cur)
		if parent == cur {
			break
		}
		cur = parent
	}
	for i, j := 0, len(missing)-1; i < j; i, j = i+1, j-1 {
		missing[i], missing[j] = missing[j], missing[i]
	}
	return missing, nil
}

// rawReference joins reference onto root without dereferencing any
// symlink along the way, so Lstat on the result reflects whether reference
// itself names a symlink.
func rawReference(root, reference string) string {
	if filepath.IsAbs(reference) {
		return filepath.Clean(reference)
	}
	return filepath.Join(root, reference)
}

// Preflight verifies, before any mutation: every non-Mkdir source exists,
// and the symlink policy permits each source reference (as referenced from
// root, not as canonicalized). It fails the whole plan on the first
// violation.
func Preflight(p *model.Plan) error {
	for i, op := range p.Operations {
		if op.Kind == model.KindMkdir {
			continue
		}

		reference := op.Src
		resolved, err := resolve.Resolve(p.Root, reference)
		if err != nil {
			return fmt.Errorf("preflight: operation %d: %w", i, err)
		}
		if _, err := os.Lstat(resolved); os.IsNotExist(err) {
			return fmt.Errorf("preflight: operation %d: source does not exist: %s", i, resolved)
		} else if err != nil {
			return fmt.Errorf("preflight: operation %d: stat %q: %w", i, resolved, err)
		}

		// The symlink policy is about whether the reference itself is a
		// symlink, not whether its canonicalized target is one — resolved
		// has already been dereferenced by resolve.Resolve and so is never
		// itself a symlink. Check the literal, root-joined reference.
		if err := policy.CheckSymlink(p.SymlinkPolicy, rawReference(p.Root, reference)); err != nil {
			return fmt.Errorf("preflight: operation %d: %w", i, err)
		}
	}
	return nil
}
