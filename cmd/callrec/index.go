package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"callrec/internal/config"
	"callrec/internal/coord"
	"callrec/internal/index"
)

var (
	indexFingerprint  string
	indexJar          string
	indexSymbolicName string
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage the artifact index",
	Long: `Manage the artifact index that maps library fingerprints and symbolic
names to model archive coordinates.`,
}

var indexAddCmd = &cobra.Command{
	Use:   "add <coordinate>",
	Short: "Register a model archive",
	Long: `Register a model archive under a fingerprint and/or symbolic name.

Examples:
  callrec index add org.eclipse:swt:3.7.0 --symbolic-name org.eclipse.swt
  callrec index add org.eclipse:swt:3.7.0 --jar lib/swt.jar`,
	Args: cobra.ExactArgs(1),
	Run:  runIndexAdd,
}

var indexImportCmd = &cobra.Command{
	Use:   "import <catalog.toml>",
	Short: "Register every artifact of a TOML catalog",
	Args:  cobra.ExactArgs(1),
	Run:   runIndexImport,
}

var indexListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered archives",
	Args:  cobra.NoArgs,
	Run:   runIndexList,
}

var indexRemoveCmd = &cobra.Command{
	Use:   "remove <coordinate>",
	Short: "Unregister a model archive",
	Args:  cobra.ExactArgs(1),
	Run:   runIndexRemove,
}

func init() {
	indexAddCmd.Flags().StringVar(&indexFingerprint, "fingerprint", "", "SHA-1 of the library")
	indexAddCmd.Flags().StringVar(&indexJar, "jar", "", "Library file to fingerprint")
	indexAddCmd.Flags().StringVar(&indexSymbolicName, "symbolic-name", "", "Bundle symbolic name of the library")

	indexCmd.AddCommand(indexAddCmd, indexImportCmd, indexListCmd, indexRemoveCmd)
	rootCmd.AddCommand(indexCmd)
}

// IndexChangeResponseCLI reports a mutation of the index.
type IndexChangeResponseCLI struct {
	Action   string `json:"action"`
	Subject  string `json:"subject"`
	Count    int    `json:"count"`
	Database string `json:"database"`
}

// IndexListResponseCLI lists the index.
type IndexListResponseCLI struct {
	Database string          `json:"database"`
	Entries  []IndexEntryCLI `json:"entries"`
}

// IndexEntryCLI is one registered archive.
type IndexEntryCLI struct {
	Coordinate   string    `json:"coordinate"`
	Fingerprint  string    `json:"fingerprint,omitempty"`
	SymbolicName string    `json:"symbolicName,omitempty"`
	AddedAt      time.Time `json:"addedAt"`
}

// withIndex opens the index, holding the writer lock when write is set.
func withIndex(cmd *cobra.Command, write bool, fn func(cfg *config.Config, idx *index.Index) error) {
	cfg := mustLoadConfig()
	logger, factory := newLogger(cmd, cfg)
	defer factory.Close()

	if write {
		lock, err := index.AcquireLock(cfg.Index.Path)
		if err != nil {
			fail("%v", err)
		}
		defer lock.Release()
	}

	idx, err := index.Open(cfg.Index.Path, logger)
	if err != nil {
		fail("%v", err)
	}
	defer idx.Close()

	if err := fn(cfg, idx); err != nil {
		fail("%v", err)
	}
}

func runIndexAdd(cmd *cobra.Command, args []string) {
	c, err := coord.ParseCoordinate(args[0])
	if err != nil {
		fail("%v", err)
	}
	fingerprint := indexFingerprint
	if indexJar != "" {
		if fingerprint, err = coord.FingerprintFile(indexJar); err != nil {
			fail("%v", err)
		}
	}

	withIndex(cmd, true, func(cfg *config.Config, idx *index.Index) error {
		entry := index.Entry{Coordinate: c, Fingerprint: fingerprint, SymbolicName: indexSymbolicName}
		if err := idx.Add(newContext(), entry); err != nil {
			return err
		}
		printResponse(&IndexChangeResponseCLI{Action: "added", Subject: c.String(), Count: 1, Database: idx.Path()})
		return nil
	})
}

func runIndexImport(cmd *cobra.Command, args []string) {
	withIndex(cmd, true, func(cfg *config.Config, idx *index.Index) error {
		n, err := idx.ImportCatalog(newContext(), args[0])
		if err != nil {
			return err
		}
		printResponse(&IndexChangeResponseCLI{Action: "imported", Subject: args[0], Count: n, Database: idx.Path()})
		return nil
	})
}

func runIndexRemove(cmd *cobra.Command, args []string) {
	c, err := coord.ParseCoordinate(args[0])
	if err != nil {
		fail("%v", err)
	}
	withIndex(cmd, true, func(cfg *config.Config, idx *index.Index) error {
		removed, err := idx.Remove(newContext(), c)
		if err != nil {
			return err
		}
		if !removed {
			return fmt.Errorf("%s is not registered", c)
		}
		printResponse(&IndexChangeResponseCLI{Action: "removed", Subject: c.String(), Count: 1, Database: idx.Path()})
		return nil
	})
}

func runIndexList(cmd *cobra.Command, args []string) {
	withIndex(cmd, false, func(cfg *config.Config, idx *index.Index) error {
		entries, err := idx.List(newContext())
		if err != nil {
			return err
		}
		printResponse(convertIndexEntries(idx.Path(), entries))
		return nil
	})
}

func convertIndexEntries(db string, entries []index.Entry) *IndexListResponseCLI {
	resp := &IndexListResponseCLI{Database: db, Entries: make([]IndexEntryCLI, 0, len(entries))}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, IndexEntryCLI{
			Coordinate:   e.Coordinate.String(),
			Fingerprint:  e.Fingerprint,
			SymbolicName: e.SymbolicName,
			AddedAt:      e.AddedAt,
		})
	}
	return resp
}

func formatIndexListHuman(resp *IndexListResponseCLI) (string, error) {
	var b headerBuilder
	b.header(fmt.Sprintf("Artifact index (%d archives)", len(resp.Entries)))
	b.line("Database: %s", resp.Database)
	b.line("")
	for _, e := range resp.Entries {
		b.line("%s", e.Coordinate)
		if e.SymbolicName != "" {
			b.line("  symbolic name: %s", e.SymbolicName)
		}
		if e.Fingerprint != "" {
			b.line("  fingerprint:   %s", e.Fingerprint)
		}
	}
	return b.String(), nil
}

func formatIndexChangeHuman(resp *IndexChangeResponseCLI) (string, error) {
	noun := "archive"
	if resp.Count != 1 {
		noun = "archives"
	}
	return fmt.Sprintf("✓ %s %s (%d %s) in %s", resp.Action, resp.Subject, resp.Count, noun, resp.Database), nil
}
