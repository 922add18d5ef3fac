package cmd

import (
	"bytes"
	"fmt"

	"github.com/natefinch/atomic"
	"github.com/spf13/cobra"
)

// manifestSchema is a hand-maintained JSON Schema document describing the
// manifest shape (§6). Manifest schema emission is an out-of-scope,
// external-collaborator concern per spec.md §1 — this command satisfies
// the CLI surface contract without building schema-generation tooling.
const manifestSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "tfs manifest",
  "type": "object",
  "required": ["root", "operations"],
  "properties": {
    "root": {"type": "string", "description": "absolute root directory"},
    "transaction": {"type": "string", "enum": ["all", "op"], "default": "all"},
    "collision_policy": {
      "type": "string",
      "enum": ["fail", "suffix", "hash8", "overwrite_with_backup"],
      "default": "fail"
    },
    "symlink_policy": {
      "type": "string",
      "enum": ["follow", "skip", "error"],
      "default": "error"
    },
    "allow_overwrite": {"type": "boolean", "default": false},
    "operations": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["op"],
        "properties": {
          "op": {"type": "string", "enum": ["mkdir", "move", "copy", "rename", "trash"]},
          "src": {"type": "string"},
          "dst": {"type": "string"},
          "parents": {"type": "boolean"},
          "cross_device": {"type": "boolean"},
          "recursive": {"type": "boolean"}
        }
      }
    }
  }
}
`

var schemaOutPath string

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Emit the manifest JSON schema",
	RunE: func(_ *cobra.Command, _ []string) error {
		if schemaOutPath == "" {
			fmt.Println(manifestSchema)
			return nil
		}
		// Written atomically: a schema file is read whole by downstream
		// tooling, so a reader must never observe a partial write.
		if err := atomic.WriteFile(schemaOutPath, bytes.NewReader([]byte(manifestSchema))); err != nil {
			return fmt.Errorf("writing schema to %q: %w", schemaOutPath, err)
		}
		if !quiet {
			fmt.Printf("wrote schema to %s\n", schemaOutPath)
		}
		return nil
	},
}

func init() {
	schemaCmd.Flags().StringVar(&schemaOutPath, "out", "", "write the schema to this path instead of stdout")
	rootCmd.AddCommand(schemaCmd)
}
