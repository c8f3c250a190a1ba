package commands

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/parleylabs/parley/pkg/inference/cachestore"
	sqlitestore "github.com/parleylabs/parley/pkg/inference/cachestore/sqlite"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and manage the on-disk response cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cached response counts per model",
	RunE:  runCacheStats,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all cached responses",
	RunE:  runCacheClear,
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}

// cacheStat describes one model's cache file.
type cacheStat struct {
	Family  string
	Model   string
	Entries int
	Size    int64
}

func runCacheStats(cmd *cobra.Command, args []string) error {
	root, err := cacheRoot()
	if err != nil {
		return err
	}

	stats, err := collectCacheStats(root)
	if os.IsNotExist(err) || (err == nil && len(stats) == 0) {
		fmt.Println("cache is empty")
		return nil
	}
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "BACKEND\tMODEL\tENTRIES\tSIZE")
	total := 0
	for _, st := range stats {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\n", st.Family, st.Model, st.Entries, st.Size)
		total += st.Entries
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\ntotal cached responses: %d\n", total)
	return nil
}

// collectCacheStats walks the cache tree. Only .json and .db files are
// cache stores; anything else (a leftover .tmp from an interrupted
// save, say) is skipped.
func collectCacheStats(root string) ([]cacheStat, error) {
	var stats []cacheStat
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}

		ext := filepath.Ext(path)
		if ext != ".json" && ext != ".db" {
			return nil
		}

		count, err := countEntries(path, ext)
		if err != nil {
			return fmt.Errorf("read cache %s: %w", path, err)
		}
		info, err := d.Info()
		if err != nil {
			return err
		}

		stats = append(stats, cacheStat{
			Family:  filepath.Base(filepath.Dir(path)),
			Model:   strings.TrimSuffix(filepath.Base(path), ext),
			Entries: count,
			Size:    info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func countEntries(path, ext string) (int, error) {
	var store cachestore.Store
	if ext == ".db" {
		s, err := sqlitestore.New(path)
		if err != nil {
			return 0, err
		}
		store = s
	} else {
		store = cachestore.NewFileStore(path)
	}
	defer store.Close()

	entries, err := store.Load()
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	root, err := cacheRoot()
	if err != nil {
		return err
	}
	if err := os.RemoveAll(root); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	fmt.Printf("cleared %s\n", root)
	return nil
}
