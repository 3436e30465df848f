package main

import (
	"fmt"
	"io"
	"os"

	"github.com/First008/vcare/internal/factory"
	"github.com/First008/vcare/internal/report"
	"github.com/First008/vcare/internal/templates"
	"github.com/spf13/cobra"
)

func newTemplatesCommand(ctx *commandContext) *cobra.Command {
	templatesCmd := &cobra.Command{
		Use:   "templates",
		Short: "Manage prompt templates",
	}

	templatesCmd.AddCommand(newTemplatesListCommand(ctx))
	templatesCmd.AddCommand(newTemplatesGetCommand(ctx))
	templatesCmd.AddCommand(newTemplatesImportCommand(ctx))
	templatesCmd.AddCommand(newTemplatesExportCommand(ctx))
	templatesCmd.AddCommand(newTemplatesDeleteCommand(ctx))

	return templatesCmd
}

// withTemplateStore opens only the template store; no model endpoint is needed
func (c *commandContext) withTemplateStore(cmd *cobra.Command, fn func(templates.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	logger := c.logger(cmd)

	store, err := factory.NewTemplateStore(cmd.Context(), cfg.Templates, logger)
	if err != nil {
		return err
	}
	defer closeIfCloser(store, logger)

	return fn(store)
}

func newTemplatesListCommand(ctx *commandContext) *cobra.Command {
	var useCase string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List active templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withTemplateStore(cmd, func(store templates.Store) error {
				list, err := store.List(cmd.Context(), useCase)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if asJSON {
					return writeJSON(out, list)
				}
				if len(list) == 0 {
					fmt.Fprintln(out, "No templates stored")
					return nil
				}
				fmt.Fprintln(out, report.TemplateTable(list))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&useCase, "use-case", "", "Only list templates for this use case")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print templates as JSON")
	return cmd
}

func newTemplatesGetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "get <name>",
		Short: "Print one template as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withTemplateStore(cmd, func(store templates.Store) error {
				t, err := store.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), t)
			})
		},
	}
}

func newTemplatesImportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.json>",
		Short: "Import a JSON array of templates",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("open templates: %w", err)
				}
				defer f.Close()
				r = f
			}

			return ctx.withTemplateStore(cmd, func(store templates.Store) error {
				n, err := templates.Import(cmd.Context(), store, r)
				if err != nil {
					return fmt.Errorf("imported %d templates before failing: %w", n, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d templates\n", n)
				return nil
			})
		},
	}
}

func newTemplatesExportCommand(ctx *commandContext) *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export every active template as a JSON array",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withTemplateStore(cmd, func(store templates.Store) error {
				w := cmd.OutOrStdout()
				if outputPath != "" && outputPath != "-" {
					f, err := os.Create(outputPath)
					if err != nil {
						return fmt.Errorf("create export file: %w", err)
					}
					defer f.Close()
					w = f
				}

				n, err := templates.Export(cmd.Context(), store, w)
				if err != nil {
					return err
				}
				if w != cmd.OutOrStdout() {
					fmt.Fprintf(cmd.OutOrStdout(), "Exported %d templates to %s\n", n, outputPath)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Write to this file instead of stdout")
	return cmd
}

func newTemplatesDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withTemplateStore(cmd, func(store templates.Store) error {
				removed, err := store.Remove(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if !removed {
					return fmt.Errorf("%s: %w", args[0], templates.ErrNotFound)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted template %s\n", args[0])
				return nil
			})
		},
	}
}
