package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"playlog/services/collection"
)

func newExportCmd(c *cli) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export <user-id> <games|animes>",
		Short: "Write a collection as an export document",
		Long: `Export writes the collection as a JSON array without store-managed fields.
With --output pointing at a directory the dated default file name is used;
"-" writes to stdout.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			adapter, _, err := c.collection(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			defer adapter.Close()

			export, err := adapter.ExportSnapshot()
			if err != nil {
				return err
			}

			if output == "-" {
				_, err := cmd.OutOrStdout().Write(export.Data)
				return err
			}
			target := output
			if target == "" {
				target = export.FileName
			} else if info, err := os.Stat(target); err == nil && info.IsDir() {
				target = filepath.Join(target, export.FileName)
			}
			if err := os.WriteFile(target, export.Data, 0o644); err != nil {
				return fmt.Errorf("write export: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported to %s\n", target)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "file or directory to write, - for stdout")
	return cmd
}

func newImportCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <user-id> <games|animes> <file|->",
		Short: "Add every entry of an export document to a collection",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				data []byte
				err  error
			)
			if args[2] == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(args[2])
			}
			if err != nil {
				return fmt.Errorf("read import: %w", err)
			}

			adapter, _, err := c.collection(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			defer adapter.Close()

			n, err := adapter.ImportSnapshot(cmd.Context(), data)
			if err != nil {
				var importErr *collection.ImportError
				if errors.As(err, &importErr) {
					return fmt.Errorf("imported %d entries before failing: %w", importErr.Applied, err)
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d entries\n", n)
			return nil
		},
	}
	return cmd
}
