// Package report renders use case results as terminal tables.
package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/First008/vcare/internal/nutrition"
	"github.com/First008/vcare/internal/templates"
	"github.com/First008/vcare/internal/usecase"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

// Title formats a dish or ingredient name for display
func Title(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "Unknown"
	}
	// Casers carry state, so each call gets its own.
	return cases.Title(language.Und).String(name)
}

func grams(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// signed formats v with an explicit plus sign for surpluses
func signed(v float64) string {
	if v > 0 {
		return "+" + grams(v)
	}
	return grams(v)
}

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := range headers {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

// IngredientTable lists each ingredient with its cooked nutrients and the
// tier that resolved it
func IngredientTable(details []nutrition.IngredientDetail) string {
	headers := []string{"Ingredient", "Grams", "Source"}
	aligns := []columnAlignment{alignLeft, alignRight, alignLeft}
	for _, n := range nutrition.Nutrients {
		headers = append(headers, Title(n))
		aligns = append(aligns, alignRight)
	}

	rows := make([][]string, 0, len(details))
	for _, d := range details {
		source := string(d.Tier)
		if d.Substitute != "" {
			source = fmt.Sprintf("%s (%s)", source, d.Substitute)
		}
		row := []string{Title(d.Name), grams(d.Quantity), source}
		for _, n := range nutrition.Nutrients {
			row = append(row, grams(d.Adjusted.Get(n)))
		}
		rows = append(rows, row)
	}
	return renderTable(headers, rows, aligns)
}

// NutrientTable compares the dish totals with the requirements
func NutrientTable(current, required, deviation nutrition.Profile) string {
	headers := []string{"Nutrient", "Current", "Required", "Deviation"}
	aligns := []columnAlignment{alignLeft, alignRight, alignRight, alignRight}

	rows := make([][]string, 0, len(nutrition.Nutrients))
	for _, n := range nutrition.Nutrients {
		rows = append(rows, []string{
			Title(n),
			grams(current.Get(n)),
			grams(required.Get(n)),
			signed(deviation.Get(n)),
		})
	}
	return renderTable(headers, rows, aligns)
}

// WriteFoodReport writes the full food analysis report to w
func WriteFoodReport(w io.Writer, r *usecase.FoodReport) error {
	var b strings.Builder

	fmt.Fprintf(&b, "%s\n", Title(r.DishName))
	fmt.Fprintf(&b, "Confidence: %.0f%%  Cooking: %s\n\n", r.Confidence, r.CookingMethod)

	if len(r.Details) > 0 {
		b.WriteString(IngredientTable(r.Details))
		b.WriteString("\n\n")
	}

	b.WriteString(NutrientTable(r.Current, r.Required, r.Deviation))
	b.WriteString("\n\n")

	if len(r.UsedFallback) > 0 {
		fmt.Fprintf(&b, "Estimated by the model: %s\n", strings.Join(r.UsedFallback, ", "))
	}
	fmt.Fprintf(&b, "Recommendation: %s\n", r.Recommendation)

	_, err := io.WriteString(w, b.String())
	return err
}

// TemplateTable lists stored templates with their model settings
func TemplateTable(list []templates.Template) string {
	headers := []string{"Name", "Use Case", "Model", "Max Tokens", "Temperature", "Active"}
	aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft}

	rows := make([][]string, 0, len(list))
	for _, t := range list {
		model := t.ModelID
		if model == "" {
			model = "default"
		}
		rows = append(rows, []string{
			t.Name,
			t.UseCase,
			model,
			strconv.Itoa(t.MaxTokens),
			strconv.FormatFloat(t.Temperature, 'f', -1, 64),
			strconv.FormatBool(t.Active),
		})
	}
	return renderTable(headers, rows, aligns)
}
