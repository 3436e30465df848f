package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/First008/vcare/internal/factory"
	"github.com/First008/vcare/internal/nutrition"
	"github.com/First008/vcare/internal/report"
	"github.com/First008/vcare/internal/usecase"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func newReportCommand(ctx *commandContext) *cobra.Command {
	var imagePath string
	var dish string
	var ingredients string
	var requirementsPath string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Analyze a meal and print its nutrient report",
		Long: "Analyze a meal from a photo (--image) or from a dish name and an " +
			"ingredient list such as \"rice 200g, chicken 100g\" (--dish and " +
			"--ingredients), then print the nutrient tables.",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := buildFoodRequest(imagePath, dish, ingredients, requirementsPath)
			if err != nil {
				return err
			}

			return ctx.withServices(cmd, func(base context.Context, s *factory.Services, logger zerolog.Logger) error {
				u, ok := s.Registry.Get(usecase.FoodAnalysisName)
				if !ok {
					return usecase.ErrUnknownUseCase
				}
				analysis, ok := u.(*usecase.FoodAnalysis)
				if !ok {
					return fmt.Errorf("%s is not a food analysis", usecase.FoodAnalysisName)
				}

				r, err := analysis.Analyze(base, req)
				if err != nil {
					return err
				}

				if asJSON {
					return writeJSON(cmd.OutOrStdout(), r)
				}
				return report.WriteFoodReport(cmd.OutOrStdout(), r)
			})
		},
	}

	cmd.Flags().StringVar(&imagePath, "image", "", "Food photo to analyze")
	cmd.Flags().StringVar(&dish, "dish", "", "Dish name, used with --ingredients instead of a photo")
	cmd.Flags().StringVar(&ingredients, "ingredients", "", "Comma separated ingredients with quantities")
	cmd.Flags().StringVar(&requirementsPath, "requirements", "", "JSON file with the nutrient targets")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	return cmd
}

func buildFoodRequest(imagePath, dish, ingredients, requirementsPath string) (usecase.FoodRequest, error) {
	var req usecase.FoodRequest

	switch {
	case imagePath != "":
		data, err := os.ReadFile(imagePath)
		if err != nil {
			return req, fmt.Errorf("read image: %w", err)
		}
		req.Image = base64.StdEncoding.EncodeToString(data)
	case strings.TrimSpace(dish) != "" && strings.TrimSpace(ingredients) != "":
		req.DishName = strings.TrimSpace(dish)
		req.Ingredients = nutrition.ParseIngredients(ingredients)
		if len(req.Ingredients) == 0 {
			return req, fmt.Errorf("no ingredients found in %q", ingredients)
		}
	default:
		return req, fmt.Errorf("either --image or both --dish and --ingredients are required")
	}

	if requirementsPath != "" {
		data, err := os.ReadFile(requirementsPath)
		if err != nil {
			return req, fmt.Errorf("read requirements: %w", err)
		}
		var p nutrition.Profile
		if err := json.Unmarshal(data, &p); err != nil {
			return req, fmt.Errorf("decode requirements: %w", err)
		}
		req.Requirements = &p
	}
	return req, nil
}
