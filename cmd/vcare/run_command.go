package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/First008/vcare/internal/factory"
	"github.com/First008/vcare/internal/usecase"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var inputPath string
	var stream bool

	cmd := &cobra.Command{
		Use:   "run <use-case>",
		Short: "Run a use case once and print its JSON result",
		Long: "Run a use case once. The input is a JSON object read from --input " +
			"(or stdin when --input is \"-\" or omitted). With --stream the model " +
			"output is echoed to stderr while it arrives.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := readInput(cmd.InOrStdin(), inputPath)
			if err != nil {
				return err
			}

			return ctx.withServices(cmd, func(base context.Context, s *factory.Services, logger zerolog.Logger) error {
				name := args[0]

				var result map[string]any
				if stream {
					errOut := cmd.ErrOrStderr()
					result, err = s.Registry.Stream(base, name, input, func(text string) {
						fmt.Fprint(errOut, text)
					})
					fmt.Fprintln(errOut)
				} else {
					result, err = s.Registry.Run(base, name, input)
				}
				if err != nil {
					return err
				}

				if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
					return err
				}
				if usecase.IsError(result) {
					return fmt.Errorf("%s failed at stage %v", name, result["stage"])
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&inputPath, "input", "i", "-", "JSON input file, or - for stdin")
	cmd.Flags().BoolVar(&stream, "stream", false, "Stream model output (text use cases only)")
	return cmd
}

func readInput(stdin io.Reader, path string) (map[string]any, error) {
	var r io.Reader = stdin
	if path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		r = f
	}

	var input map[string]any
	if err := json.NewDecoder(r).Decode(&input); err != nil {
		return nil, fmt.Errorf("decode input: %w", err)
	}
	if input == nil {
		input = map[string]any{}
	}
	return input, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
