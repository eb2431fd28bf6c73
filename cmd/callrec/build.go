package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"callrec/internal/archive"
	"callrec/internal/coord"
	"callrec/internal/index"
	"callrec/internal/model"
	"callrec/internal/store"
)

var (
	buildOutput   string
	buildInstall  bool
	buildRegister bool
)

var buildCmd = &cobra.Command{
	Use:   "build <observations.yaml>",
	Short: "Build a model archive from usage observations",
	Long: `Build a model archive from a YAML file of usage observations.

The file names the archive coordinate and, per type, the method sets seen
on its subtypes:

  coordinate: org.eclipse:swt:3.7.0
  symbolicName: org.eclipse.swt
  types:
    org/eclipse/swt/widgets/Button:
      - methods: [<init>, setText, setLayoutData]
        frequency: 8

Examples:
  callrec build swt.yaml -o swt.zip
  callrec build swt.yaml --install --register`,
	Args: cobra.ExactArgs(1),
	Run:  runBuild,
}

func init() {
	buildCmd.Flags().StringVarP(&buildOutput, "output", "o", "", "Archive path (default <artifact>-<version>.zip)")
	buildCmd.Flags().BoolVar(&buildInstall, "install", false, "Write the archive into the configured repository")
	buildCmd.Flags().BoolVar(&buildRegister, "register", false, "Register the archive in the index (implies --install)")
	rootCmd.AddCommand(buildCmd)
}

// ObservationFile is the input format of the build command.
type ObservationFile struct {
	Coordinate   string                         `yaml:"coordinate"`
	Fingerprint  string                         `yaml:"fingerprint"`
	SymbolicName string                         `yaml:"symbolicName"`
	Types        map[string][]model.Observation `yaml:"types"`
}

// BuildResponseCLI reports a built archive.
type BuildResponseCLI struct {
	Coordinate string      `json:"coordinate"`
	Path       string      `json:"path"`
	Types      []TypeBuild `json:"types"`
	Registered bool        `json:"registered"`
}

// TypeBuild summarises one built network.
type TypeBuild struct {
	TypeID   string `json:"typeId"`
	Patterns int    `json:"patterns"`
	Methods  int    `json:"methods"`
}

func runBuild(cmd *cobra.Command, args []string) {
	cfg := mustLoadConfig()
	logger, factory := newLogger(cmd, cfg)
	defer factory.Close()

	obs, err := loadObservations(args[0])
	if err != nil {
		fail("%v", err)
	}
	c, err := coord.ParseCoordinate(obs.Coordinate)
	if err != nil {
		fail("%v", err)
	}

	out := buildOutput
	if buildInstall || buildRegister {
		out = store.LocalRepository{Root: cfg.Repository.Root}.Path(c)
	} else if out == "" {
		out = fmt.Sprintf("%s-%s.zip", c.ArtifactID, c.Version)
	}

	resp, err := buildArchive(obs, c, out)
	if err != nil {
		fail("%v", err)
	}
	logger.Info("Built archive", "coordinate", resp.Coordinate, "path", out, "types", len(resp.Types))

	if buildRegister {
		lock, err := index.AcquireLock(cfg.Index.Path)
		if err != nil {
			fail("%v", err)
		}
		defer lock.Release()

		idx, err := index.Open(cfg.Index.Path, logger)
		if err != nil {
			fail("%v", err)
		}
		defer idx.Close()

		entry := index.Entry{Coordinate: c, Fingerprint: obs.Fingerprint, SymbolicName: obs.SymbolicName}
		if err := idx.Add(newContext(), entry); err != nil {
			fail("%v", err)
		}
		resp.Registered = true
	}

	printResponse(resp)
}

func loadObservations(path string) (*ObservationFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var obs ObservationFile
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&obs); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if len(obs.Types) == 0 {
		return nil, fmt.Errorf("%s lists no types", path)
	}
	return &obs, nil
}

// buildArchive builds one network per type and writes them to out.
func buildArchive(obs *ObservationFile, c coord.Coordinate, out string) (*BuildResponseCLI, error) {
	typeIDs := make([]string, 0, len(obs.Types))
	for typeID := range obs.Types {
		typeIDs = append(typeIDs, typeID)
	}
	sort.Strings(typeIDs)

	resp := &BuildResponseCLI{Coordinate: c.String(), Path: out}
	nets := make([]*model.Network, 0, len(typeIDs))
	for _, typeID := range typeIDs {
		net, err := model.Build(typeID, obs.Types[typeID])
		if err != nil {
			return nil, fmt.Errorf("type %s: %w", typeID, err)
		}
		nets = append(nets, net)
		resp.Types = append(resp.Types, TypeBuild{
			TypeID:   typeID,
			Patterns: len(net.Patterns()),
			Methods:  len(net.Methods()),
		})
	}

	if err := archive.Write(out, archive.Manifest{Coordinate: c.String()}, nets); err != nil {
		return nil, err
	}
	return resp, nil
}
