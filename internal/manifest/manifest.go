// Package manifest handles parsing and validation of plan manifests. The
// canonical wire format is JSON (§6); a .yaml/.yml suffix is additionally
// accepted since YAML 1.2 is a JSON superset and the teacher's config
// loader already favours YAML for hand-edited files.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jopamo/tfs/internal/model"
)

// Load reads and parses a manifest file from path, applying defaults and
// validating the result.
func Load(path string) (*model.Plan, error) {
	expanded, err := ExpandPath(path)
	if err != nil {
		return nil, fmt.Errorf("manifest: expanding path: %w", err)
	}

	data, err := os.ReadFile(expanded)
	if err != nil {
		return nil, fmt.Errorf("manifest: reading %q: %w", expanded, err)
	}

	plan, err := Parse(data, isYAML(expanded))
	if err != nil {
		return nil, fmt.Errorf("manifest: parsing %q: %w", expanded, err)
	}
	return plan, nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// Parse unmarshals data (JSON unless asYAML is set) into a Plan, applies
// defaults for unset fields, and validates it.
func Parse(data []byte, asYAML bool) (*model.Plan, error) {
	var plan model.Plan
	var err error
	if asYAML {
		err = yaml.Unmarshal(data, &plan)
	} else {
		err = json.Unmarshal(data, &plan)
	}
	if err != nil {
		return nil, fmt.Errorf("manifest: unmarshaling: %w", err)
	}

	applyDefaults(&plan)

	if err := Validate(&plan); err != nil {
		return nil, fmt.Errorf("manifest: validation: %w", err)
	}

	return &plan, nil
}

func applyDefaults(p *model.Plan) {
	if p.Transaction == "" {
		p.Transaction = model.TransactionAll
	}
	if p.CollisionPolicy == "" {
		p.CollisionPolicy = model.CollisionFail
	}
	if p.SymlinkPolicy == "" {
		p.SymlinkPolicy = model.SymlinkError
	}
}

// Validate checks that a Plan is well-formed: absolute root, recognised
// enum values, and well-formed operations. It does not touch the
// filesystem — root confinement and existence checks happen later during
// normalization and preflight, against the live filesystem.
func Validate(p *model.Plan) error {
	if p.Root == "" {
		return fmt.Errorf("root is required")
	}
	if !filepath.IsAbs(p.Root) {
		return fmt.Errorf("root must be an absolute path: %q", p.Root)
	}
	if !p.Transaction.Valid() {
		return fmt.Errorf("invalid transaction mode %q", p.Transaction)
	}
	if !p.CollisionPolicy.Valid() {
		return fmt.Errorf("invalid collision_policy %q", p.CollisionPolicy)
	}
	if !p.SymlinkPolicy.Valid() {
		return fmt.Errorf("invalid symlink_policy %q", p.SymlinkPolicy)
	}
	if p.CollisionPolicy == model.CollisionOverwriteWithBackup && !p.AllowOverwrite {
		return fmt.Errorf("collision_policy %q requires allow_overwrite", model.CollisionOverwriteWithBackup)
	}
	if len(p.Operations) == 0 {
		return fmt.Errorf("at least one operation is required")
	}
	for i, op := range p.Operations {
		if err := op.Validate(i); err != nil {
			return err
		}
	}
	return nil
}

// ExpandPath expands a leading ~ in path to the user's home directory.
func ExpandPath(path string) (string, error) {
	if path == "" {
		return path, nil
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolving home directory: %w", err)
		}
		if path == "~" {
			return home, nil
		}
		return filepath.Join(home, path[2:]), nil
	}
	return path, nil
}

// Sample returns an example manifest document, used by `tfs init` the way
// the teacher's config.SampleConfig seeds a starter .forg.yaml.
func Sample() string {
	return `{
  "root": "/absolute/path/to/workspace",
  "transaction": "all",
  "collision_policy": "suffix",
  "symlink_policy": "error",
  "allow_overwrite": false,
  "operations": [
    { "op": "mkdir", "dst": "sorted", "parents": true },
    { "op": "move", "src": "inbox/report.pdf", "dst": "sorted/report.pdf" },
    { "op": "copy", "src": "templates", "dst": "sorted/templates", "recursive": true },
    { "op": "trash", "src": "inbox/old.tmp" }
  ]
}
`
}
