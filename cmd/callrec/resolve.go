package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"callrec/internal/coord"
	"callrec/internal/index"
	"callrec/internal/resolve"
	"callrec/internal/store"
)

var (
	depFingerprint  string
	depJar          string
	depSymbolicName string
	depVersion      string
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve a dependency to a model archive",
	Long: `Resolve a library dependency to the best matching model archive.

Versions in [0, requested major.minor+1) are preferred, highest first;
otherwise the lowest newer version is used.

Examples:
  callrec resolve --symbolic-name org.eclipse.swt --version 3.7.2
  callrec resolve --jar lib/swt.jar`,
	Args: cobra.NoArgs,
	Run:  runResolve,
}

func init() {
	addDependencyFlags(resolveCmd)
	rootCmd.AddCommand(resolveCmd)
}

func addDependencyFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&depFingerprint, "fingerprint", "", "SHA-1 of the library")
	cmd.Flags().StringVar(&depJar, "jar", "", "Library file to fingerprint")
	cmd.Flags().StringVar(&depSymbolicName, "symbolic-name", "", "Bundle symbolic name of the library")
	cmd.Flags().StringVar(&depVersion, "version", "", "Library version (default: newest archive)")
}

// dependencyFromFlags builds the dependency described by the shared flags.
func dependencyFromFlags() (coord.Dependency, error) {
	dep := coord.Dependency{Fingerprint: depFingerprint, SymbolicName: depSymbolicName, Version: coord.UnknownVersion}
	if depJar != "" {
		fp, err := coord.FingerprintFile(depJar)
		if err != nil {
			return dep, err
		}
		dep.Fingerprint = fp
	}
	if dep.Fingerprint == "" && dep.SymbolicName == "" {
		return dep, fmt.Errorf("one of --fingerprint, --jar or --symbolic-name is required")
	}
	if depVersion != "" {
		v, err := coord.ParseVersion(depVersion)
		if err != nil {
			return dep, err
		}
		dep.Version = v
	}
	return dep, nil
}

// ResolveResponseCLI reports a resolution.
type ResolveResponseCLI struct {
	Dependency string `json:"dependency"`
	Coordinate string `json:"coordinate"`
	Path       string `json:"path"`
	Available  bool   `json:"available"`
}

func runResolve(cmd *cobra.Command, args []string) {
	cfg := mustLoadConfig()
	logger, factory := newLogger(cmd, cfg)
	defer factory.Close()

	dep, err := dependencyFromFlags()
	if err != nil {
		fail("%v", err)
	}

	idx, err := index.Open(cfg.Index.Path, logger)
	if err != nil {
		fail("%v", err)
	}
	defer idx.Close()

	ctx := newContext()
	c, err := resolve.New(idx, logger).Resolve(ctx, dep)
	if err != nil {
		fail("%v", err)
	}

	repo := store.LocalRepository{Root: cfg.Repository.Root}
	_, fetchErr := repo.Fetch(ctx, c)
	printResponse(&ResolveResponseCLI{
		Dependency: dep.String(),
		Coordinate: c.String(),
		Path:       repo.Path(c),
		Available:  fetchErr == nil,
	})
}

func formatResolveHuman(resp *ResolveResponseCLI) (string, error) {
	status := "✓"
	if !resp.Available {
		status = "✗ (archive missing)"
	}
	return fmt.Sprintf("%s -> %s\n  %s %s", resp.Dependency, resp.Coordinate, status, resp.Path), nil
}
