package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/evanwmart/augmented-knowledge-interfaces/internal/config"
	"github.com/evanwmart/augmented-knowledge-interfaces/internal/output"
)

func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default .aki.yaml config file",
		Long: `Write a .aki.yaml project config with default settings into the
docs directory. Edit it to tune chunking, retrieval, and embeddings.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")

	return cmd
}

func runInit(cmd *cobra.Command, force bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	out := output.New(cmd.OutOrStdout())

	path := filepath.Join(cfg.Paths.DocsDir, ".aki.yaml")
	if fileExists(path) && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	fresh := config.NewConfig()
	fresh.Paths.DocsDir = "."
	if err := fresh.WriteYAML(path); err != nil {
		return err
	}

	out.Successf("Wrote %s", path)
	out.Status("", "Run 'aki index' to build the search index")
	return nil
}
