package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gundog/gundog/internal/registry"
)

func newIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Manage registered indexes",
	}
	cmd.AddCommand(newIndexLsCmd())
	cmd.AddCommand(newIndexSwitchCmd())
	cmd.AddCommand(newIndexInfoCmd())
	return cmd
}

func newIndexLsCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List every registered index",
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, err := openRegistry()
			if err != nil {
				return err
			}
			infos := reg.List()
			defaultName, _ := reg.Default()

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(infos)
			}
			for _, info := range infos {
				marker := " "
				if info.Name == defaultName {
					marker = "*"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %-20s %6d files  %6d chunks  %s\n", marker, info.Name, info.FileCount, info.ChunkCount, info.Path)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	return cmd
}

func newIndexSwitchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "switch NAME",
		Short: "Change the daemon's default index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := openRegistry()
			if err != nil {
				return err
			}
			if err := reg.SwitchDefault(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Default index is now %q\n", args[0])
			return nil
		},
	}
}

func newIndexInfoCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "info [name]",
		Short: "Show detailed information about one index",
		Long:  `Show file/chunk counts, embedding model, sample paths, and git metadata for an index. Defaults to the daemon's default index.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := openRegistry()
			if err != nil {
				return err
			}
			name := ""
			if len(args) > 0 {
				name = args[0]
			} else if d, ok := reg.Default(); ok {
				name = d
			} else {
				return fmt.Errorf("no index name given and no default index is configured")
			}

			info, ok := findIndexInfo(reg, name)
			if !ok {
				return fmt.Errorf("index %q not found (or its manifest is unreadable)", name)
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			}
			return printIndexInfo(cmd, info)
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	return cmd
}

func findIndexInfo(reg *registry.Registry, name string) (registry.IndexInfo, bool) {
	for _, info := range reg.List() {
		if info.Name == name {
			return info, true
		}
	}
	return registry.IndexInfo{}, false
}

func printIndexInfo(cmd *cobra.Command, info registry.IndexInfo) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Name:            %s\n", info.Name)
	fmt.Fprintf(out, "Path:            %s\n", info.Path)
	fmt.Fprintf(out, "Embedding model: %s\n", info.EmbeddingModel)
	fmt.Fprintf(out, "Files:           %d\n", info.FileCount)
	fmt.Fprintf(out, "Chunks:          %d\n", info.ChunkCount)
	if !info.LastUpdated.IsZero() {
		fmt.Fprintf(out, "Last updated:    %s\n", info.LastUpdated.Format("2006-01-02T15:04:05Z07:00"))
	}
	if len(info.SamplePaths) > 0 {
		fmt.Fprintln(out, "Sample paths:")
		for _, p := range info.SamplePaths {
			fmt.Fprintf(out, "  %s\n", p)
		}
	}
	if info.Git != nil {
		fmt.Fprintf(out, "Git branch:      %s\n", info.Git.Branch)
		fmt.Fprintf(out, "Git commit:      %s\n", info.Git.Commit)
		if info.Git.WebURL != "" {
			fmt.Fprintf(out, "Git web URL:     %s\n", info.Git.WebURL)
		}
	}
	return nil
}
