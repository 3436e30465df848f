package report

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/First008/vcare/internal/nutrition"
	"github.com/First008/vcare/internal/templates"
	"github.com/First008/vcare/internal/usecase"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTitle(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"crispy fried chicken", "Crispy Fried Chicken"},
		{"  rice ", "Rice"},
		{"", "Unknown"},
		{"carbohydrates", "Carbohydrates"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Title(tt.in))
		})
	}
}

func TestSigned(t *testing.T) {
	assert.Equal(t, "+12.50", signed(12.5))
	assert.Equal(t, "-3.00", signed(-3))
	assert.Equal(t, "0.00", signed(0))
}

func TestRenderTable_Empty(t *testing.T) {
	assert.Empty(t, renderTable(nil, nil, nil))
}

func TestRenderTable_PadsShortRows(t *testing.T) {
	out := renderTable([]string{"A", "B"}, [][]string{{"only"}}, []columnAlignment{alignLeft, alignRight})
	assert.Contains(t, out, "only")
	assert.Len(t, strings.Split(out, "\n"), 5)
}

func sampleReport() *usecase.FoodReport {
	return &usecase.FoodReport{
		DishName:      "chicken rice",
		Confidence:    90,
		CookingMethod: nutrition.Boiling,
		Details: []nutrition.IngredientDetail{
			{
				Name:     "rice",
				Quantity: 200,
				Adjusted: nutrition.Profile{Carbohydrates: 56, Proteins: 5.4, Calories: 260},
				Tier:     nutrition.TierExact,
			},
			{
				Name:       "chicken thigh",
				Quantity:   100,
				Adjusted:   nutrition.Profile{Proteins: 24, Fats: 9, Calories: 209},
				Tier:       nutrition.TierSimilar,
				Substitute: "chicken",
			},
		},
		Current:        nutrition.Profile{Carbohydrates: 56, Proteins: 29.4, Fats: 9, Calories: 469},
		Required:       nutrition.DefaultRequirements(),
		Deviation:      nutrition.Profile{Carbohydrates: -144, Proteins: -30.6, Fats: -11, Fibre: -30, Calories: -731},
		Recommendation: "Consider to increase carbohydrates by 144.0g",
		UsedFallback:   []string{"soy sauce"},
	}
}

func TestWriteFoodReport(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFoodReport(&buf, sampleReport()))
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, "Chicken Rice\n"))
	assert.Contains(t, out, "Confidence: 90%")
	assert.Contains(t, out, "Cooking: boiling")
	assert.Contains(t, out, "Chicken Thigh")
	assert.Contains(t, out, "similar (chicken)")
	assert.Contains(t, out, "-144.00")
	assert.Contains(t, out, "Estimated by the model: soy sauce")
	assert.Contains(t, out, "Recommendation: Consider to increase carbohydrates by 144.0g")
}

func TestWriteFoodReport_NoDetailsNoFallback(t *testing.T) {
	r := sampleReport()
	r.Details = nil
	r.UsedFallback = nil

	var buf bytes.Buffer
	require.NoError(t, WriteFoodReport(&buf, r))
	assert.NotContains(t, buf.String(), "INGREDIENT")
	assert.NotContains(t, buf.String(), "Estimated by the model")
	assert.Contains(t, buf.String(), "NUTRIENT")
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("closed pipe") }

func TestWriteFoodReport_WriteError(t *testing.T) {
	assert.Error(t, WriteFoodReport(failingWriter{}, sampleReport()))
}

func TestTemplateTable(t *testing.T) {
	brief := templates.New("brief", usecase.ClinicalName, "Age ${age}")
	custom := templates.New("haiku", usecase.SpeechToTextName, "x")
	custom.ModelID = "anthropic.claude-3-haiku-20240307-v1:0"
	custom.Active = false

	out := TemplateTable([]templates.Template{brief, custom})
	assert.Contains(t, out, "brief")
	assert.Contains(t, out, "default")
	assert.Contains(t, out, "claude-3-haiku")
	assert.Contains(t, out, "2048")
	assert.Contains(t, out, "false")
}
