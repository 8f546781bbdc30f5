package cli

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/lode/domain/cache"
	"github.com/felixgeelhaar/lode/infrastructure/storage/filesystem"
)

// newStatsCmd creates the stats command.
func (a *App) newStatsCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize persisted cache snapshots",
		Long: `Summarize every cache snapshot saved by the filesystem backend:
entry counts, estimated memory, and how many entries have expired.

Example:
  lode stats -d /var/lib/lode`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.printStats(cmd, dir)
		},
	}

	cmd.Flags().StringVarP(&dir, "dir", "d", "", "Snapshot directory")
	cmd.MarkFlagRequired("dir")

	return cmd
}

// printStats loads each snapshot and prints a summary line.
func (a *App) printStats(cmd *cobra.Command, dir string) error {
	backend, err := filesystem.NewBackend[json.RawMessage](dir, nil)
	if err != nil {
		return err
	}

	names, err := backend.Names()
	if err != nil {
		return err
	}
	if len(names) == 0 {
		fmt.Fprintf(a.stdout, "no snapshots in %s\n", dir)
		return nil
	}
	sort.Strings(names)

	now := time.Now()
	for _, name := range names {
		entries, err := backend.LoadAll(cmd.Context(), name)
		if err != nil {
			return fmt.Errorf("snapshot %s: %w", name, err)
		}

		var memory int64
		var expired int
		for i := range entries {
			memory += entries[i].SizeBytes
			if entries[i].Expired(now) {
				expired++
			}
		}
		fmt.Fprintf(a.stdout, "%s: %d entries, %d expired, %s\n",
			name, len(entries), expired, formatBytes(memory))
	}
	return nil
}

// formatBytes renders a byte count in a human-readable unit.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// entryMetadata is the export shape for one entry, value omitted.
type entryMetadata struct {
	Key            string    `json:"key"`
	CreatedAt      time.Time `json:"created_at"`
	TTL            string    `json:"ttl"`
	SizeBytes      int64     `json:"size_bytes"`
	AccessCount    int64     `json:"access_count"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
	Tags           []string  `json:"tags,omitempty"`
	Expired        bool      `json:"expired"`
}

// newExportCmd creates the export command.
func (a *App) newExportCmd() *cobra.Command {
	var (
		dir        string
		withValues bool
	)

	cmd := &cobra.Command{
		Use:   "export <cache-name>",
		Short: "Export a persisted cache snapshot as JSON",
		Long: `Export one cache snapshot as JSON. By default only entry metadata is
printed; --values includes the cached payloads.

Example:
  lode export images -d /var/lib/lode`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.exportSnapshot(cmd, dir, args[0], withValues)
		},
	}

	cmd.Flags().StringVarP(&dir, "dir", "d", "", "Snapshot directory")
	cmd.Flags().BoolVar(&withValues, "values", false, "Include cached values")
	cmd.MarkFlagRequired("dir")

	return cmd
}

// exportSnapshot prints one snapshot's entries.
func (a *App) exportSnapshot(cmd *cobra.Command, dir, name string, withValues bool) error {
	backend, err := filesystem.NewBackend[json.RawMessage](dir, nil)
	if err != nil {
		return err
	}

	entries, err := backend.LoadAll(cmd.Context(), name)
	if err != nil {
		return err
	}
	if entries == nil {
		return fmt.Errorf("no snapshot named %q in %s", name, dir)
	}

	var out any
	if withValues {
		out = entries
	} else {
		out = metadataOnly(entries)
	}

	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func metadataOnly(entries []cache.Entry[json.RawMessage]) []entryMetadata {
	now := time.Now()
	meta := make([]entryMetadata, len(entries))
	for i, e := range entries {
		meta[i] = entryMetadata{
			Key:            e.Key,
			CreatedAt:      e.CreatedAt,
			TTL:            e.TTL.String(),
			SizeBytes:      e.SizeBytes,
			AccessCount:    e.AccessCount,
			LastAccessedAt: e.LastAccessedAt,
			Tags:           e.Tags,
			Expired:        e.Expired(now),
		}
	}
	return meta
}
