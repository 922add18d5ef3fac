// Package internal defines shared constants used across the tfs codebase.
package internal

import "os"

const (
	// DefaultDirPerms is the permission mode used when creating directories.
	DefaultDirPerms os.FileMode = 0o750

	// DefaultManifestFile is the manifest filename `tfs init` scaffolds when
	// --out is omitted.
	DefaultManifestFile = ".tfs.json"

	// DefaultJournalDir is the directory name (under the plan root) that
	// stores the journal when --journal is omitted.
	DefaultJournalDir = ".tfs"

	// DefaultJournalFile is the file name used for the default journal.
	DefaultJournalFile = "journal.ndjson"

	// TimeFormat is the timestamp layout used when displaying journal
	// metadata to a human.
	TimeFormat = "2006-01-02 15:04:05"
)
