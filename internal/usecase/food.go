package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/First008/vcare/internal/llm"
	"github.com/First008/vcare/internal/nutrition"
	"github.com/rs/zerolog"
)

const visionPrompt = `Analyze this food image and return JSON with:
- dish_name: Most probable name
- ingredients: List of {name, quantity} with quantity in grams
- confidence: Estimation confidence (0-100)

Example: {
    "dish_name": "Chicken Biryani",
    "ingredients": [
        {"name": "rice", "quantity": 200},
        {"name": "chicken", "quantity": 150}
    ],
    "confidence": 85
}
Respond ONLY with the JSON object.`

// ErrVisionAnalysis wraps every failure to read a dish from an image
var ErrVisionAnalysis = errors.New("could not analyze food image")

// StageError is a pipeline failure tagged with the stage it happened in
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return e.Err.Error() }

func (e *StageError) Unwrap() error { return e.Err }

// FoodRequest is the typed input of a food analysis. Either Image or both
// DishName and Ingredients must be set.
type FoodRequest struct {
	Image        string
	DishName     string
	Ingredients  []nutrition.Ingredient
	Requirements *nutrition.Profile // nil means nutrition.DefaultRequirements
}

// Dish is what the vision model saw on the plate
type Dish struct {
	Name        string                 `json:"dish_name"`
	Ingredients []nutrition.Ingredient `json:"ingredients"`
	Confidence  float64                `json:"confidence"`
}

// FoodReport is the result of a food analysis
type FoodReport struct {
	DishName       string                       `json:"dish_name"`
	Confidence     float64                      `json:"confidence"`
	Ingredients    []nutrition.Ingredient       `json:"ingredients"`
	Details        []nutrition.IngredientDetail `json:"ingredient_details"`
	CookingMethod  nutrition.CookingMethod      `json:"cooking_method"`
	Current        nutrition.Profile            `json:"current_nutrients"`
	Required       nutrition.Profile            `json:"req_nutrients"`
	Deviation      nutrition.Profile            `json:"deviation"`
	Recommendation string                       `json:"recommendation"`
	UsedFallback   []string                     `json:"used_fallback"`
}

// Map renders the report as a result map
func (r *FoodReport) Map() map[string]any {
	return map[string]any{
		"dish_name":          r.DishName,
		"confidence":         r.Confidence,
		"ingredients":        r.Ingredients,
		"ingredient_details": r.Details,
		"cooking_method":     r.CookingMethod,
		"current_nutrients":  r.Current,
		"req_nutrients":      r.Required,
		"deviation":          r.Deviation,
		"recommendation":     r.Recommendation,
		"used_fallback":      r.UsedFallback,
	}
}

// FoodAnalysis reads a dish from a photo, resolves each ingredient's
// nutrients through the store (falling back to model estimates) and compares
// the cooked totals to the diner's requirements
type FoodAnalysis struct {
	base
	store     nutrition.Store
	threshold float64
}

// NewFoodAnalysis creates the store-backed analysis. store may be nil, in
// which case every ingredient is estimated by the model.
func NewFoodAnalysis(b base, store nutrition.Store, threshold float64) *FoodAnalysis {
	return &FoodAnalysis{base: b, store: store, threshold: threshold}
}

// Analyze runs the pipeline on a typed request
func (f *FoodAnalysis) Analyze(ctx context.Context, req FoodRequest) (*FoodReport, error) {
	log := f.runLogger()
	start := time.Now()

	var dish Dish
	switch {
	case req.DishName != "" && len(req.Ingredients) > 0:
		dish = Dish{Name: req.DishName, Ingredients: req.Ingredients, Confidence: 100}
	case req.Image != "":
		detected, err := f.DetectDish(ctx, req.Image)
		if err != nil {
			log.Error().Err(err).Msg("Vision analysis failed")
			return nil, &StageError{Stage: StageFood, Err: err}
		}
		dish = *detected
	default:
		return nil, &StageError{Stage: StageValidation, Err: errors.New("an image or a dish name with ingredients is required")}
	}

	method, factors := nutrition.CookingAdjustment(dish.Name)

	resolver := nutrition.NewResolver(f.store, f.client, log, nutrition.WithSimilarityThreshold(f.threshold))
	resolutions := resolver.ResolveAll(ctx, dish.Ingredients)
	agg := nutrition.AggregateNutrients(dish.Ingredients, resolutions, factors)

	required := nutrition.DefaultRequirements()
	if req.Requirements != nil {
		required = *req.Requirements
	}
	deviation := nutrition.Deviation(agg.Totals, required)

	fallbacks := resolver.Fallbacks()
	if fallbacks == nil {
		fallbacks = []string{}
	}

	report := &FoodReport{
		DishName:       dish.Name,
		Confidence:     dish.Confidence,
		Ingredients:    dish.Ingredients,
		Details:        agg.Details,
		CookingMethod:  method,
		Current:        agg.Totals,
		Required:       required,
		Deviation:      deviation,
		Recommendation: nutrition.Recommend(deviation),
		UsedFallback:   fallbacks,
	}

	log.Info().
		Str("dish", dish.Name).
		Str("cooking_method", string(method)).
		Int("ingredients", len(dish.Ingredients)).
		Int("fallbacks", len(report.UsedFallback)).
		Dur("elapsed", time.Since(start)).
		Msg("Food analysis completed")

	return report, nil
}

// DetectDish asks the vision model for the dish name and its ingredients.
// Vision answers are never cached.
func (f *FoodAnalysis) DetectDish(ctx context.Context, image string) (*Dish, error) {
	resp, err := f.client.Invoke(ctx, visionPrompt, llm.WithImage(image), llm.WithoutCache())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrVisionAnalysis, err)
	}
	return parseDish(resp.Text)
}

func parseDish(text string) (*Dish, error) {
	data, ok := extractObject(text)
	if !ok {
		return nil, fmt.Errorf("%w: response is not a JSON object", ErrVisionAnalysis)
	}

	name, _ := data["dish_name"].(string)
	rawIngredients, ok := data["ingredients"].([]any)
	if strings.TrimSpace(name) == "" || !ok {
		return nil, fmt.Errorf("%w: missing required fields in vision response", ErrVisionAnalysis)
	}

	ingredients := make([]nutrition.Ingredient, 0, len(rawIngredients))
	for i, raw := range rawIngredients {
		item, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: ingredient %d is not an object", ErrVisionAnalysis, i)
		}
		ingName, _ := item["name"].(string)
		if strings.TrimSpace(ingName) == "" {
			return nil, fmt.Errorf("%w: ingredient %d has no name", ErrVisionAnalysis, i)
		}
		ingredients = append(ingredients, nutrition.NewIngredient(ingName, quantityValue(item)))
	}

	confidence, _ := toFloat(data["confidence"])
	confidence = min(100, max(0, confidence))

	return &Dish{
		Name:        strings.TrimSpace(name),
		Ingredients: ingredients,
		Confidence:  confidence,
	}, nil
}

// quantityValue accepts grams as a number or a measure such as "2 cups"
func quantityValue(item map[string]any) float64 {
	for _, key := range []string{"quantity", "quantity_in_grams", "grams"} {
		v, present := item[key]
		if !present {
			continue
		}
		if s, ok := v.(string); ok {
			return nutrition.ParseQuantity(s)
		}
		if f, ok := toFloat(v); ok {
			return f
		}
	}
	return 0
}

// Run accepts {image_data | food_data, dish_name, ingredients, req_data}
func (f *FoodAnalysis) Run(ctx context.Context, input map[string]any) map[string]any {
	req, err := foodRequestFromInput(input)
	if err != nil {
		return ErrorResult(err, StageValidation)
	}

	report, err := f.Analyze(ctx, req)
	if err != nil {
		var serr *StageError
		if errors.As(err, &serr) {
			return ErrorResult(serr.Err, serr.Stage)
		}
		return ErrorResult(err, StageFood)
	}
	return report.Map()
}

func foodRequestFromInput(input map[string]any) (FoodRequest, error) {
	req := FoodRequest{
		Image:    stringValue(input, "image_data"),
		DishName: stringValue(input, "dish_name"),
	}
	if req.Image == "" {
		req.Image = stringValue(input, "food_data")
	}

	switch list := input["ingredients"].(type) {
	case nil:
	case string:
		req.Ingredients = nutrition.ParseIngredients(list)
	case []any:
		for i, raw := range list {
			switch item := raw.(type) {
			case string:
				req.Ingredients = append(req.Ingredients, nutrition.ParseIngredients(item)...)
			case map[string]any:
				name, _ := item["name"].(string)
				if name == "" {
					return req, fmt.Errorf("ingredients[%d] has no name", i)
				}
				req.Ingredients = append(req.Ingredients, nutrition.NewIngredient(name, quantityValue(item)))
			default:
				return req, fmt.Errorf("ingredients[%d] must be a string or an object", i)
			}
		}
	default:
		return req, errors.New("ingredients must be a string or a list")
	}

	reqs, present, err := profileValue(input, "req_data")
	if err != nil {
		return req, err
	}
	if present {
		req.Requirements = &reqs
	}
	return req, nil
}

// FoodEstimate is the model-only alternative: the model estimates the meal's
// totals directly and deviations are computed against the requirements
type FoodEstimate struct {
	textPipeline
}

// NewFoodEstimate creates the model-only food analysis
func NewFoodEstimate(b base) *FoodEstimate {
	e := &FoodEstimate{textPipeline{base: b}}
	e.validate = validateFoodEstimate
	e.prompt = foodEstimatePrompt
	e.parse = parseFoodEstimate
	return e
}

func requirementsFor(input map[string]any) nutrition.Profile {
	if reqs, present, err := profileValue(input, "req_data"); err == nil && present {
		return reqs
	}
	return nutrition.DefaultRequirements()
}

func validateFoodEstimate(input map[string]any) error {
	if stringValue(input, "food_data") == "" {
		return errors.New("food_data is required")
	}
	if _, _, err := profileValue(input, "req_data"); err != nil {
		return err
	}
	return nil
}

func foodEstimatePrompt(input map[string]any) string {
	req := requirementsFor(input)
	return "You are a nutrition assistant. Given the following meal information and the user's recommended daily intake, " +
		"analyze the meal and estimate the amounts of macronutrients (carbohydrates, proteins, fats), fibre, and calories present. " +
		"Then, compare these values to the recommended intake and provide the deviation for each nutrient. " +
		"Respond strictly in JSON format with two keys: 'current_nutrients' and 'deviation'.\n" +
		fmt.Sprintf("Meal data: %s\n", stringValue(input, "food_data")) +
		fmt.Sprintf("Recommended intake: %s\n", indentJSON(req.Map())) +
		"Example response:\n" +
		`{"current_nutrients": {"carbohydrates": 40, "proteins": 30, "fats": 30, "fibre": 54, "calories": 2000}, ` +
		`"deviation": {"carbohydrates": 10, "proteins": -20, "fats": 5, "fibre": 0, "calories": -500}}`
}

func parseFoodEstimate(input map[string]any, text string, log zerolog.Logger) map[string]any {
	data, ok := extractObject(text)
	if !ok {
		log.Error().Int("length", len(text)).Msg("Failed to parse food estimate response")
		result := ErrorResult(errors.New("model response is not a JSON object"), StageParsing)
		result["raw_response"] = text
		return result
	}

	current, present, err := profileValue(data, "current_nutrients")
	if err != nil || !present {
		if err == nil {
			err = errors.New("model response has no current_nutrients")
		}
		result := ErrorResult(err, StageParsing)
		result["raw_response"] = text
		return result
	}

	current = current.Round(2)
	required := requirementsFor(input)
	deviation := nutrition.Deviation(current, required)

	return map[string]any{
		"current_nutrients": current,
		"req_nutrients":     required,
		"deviation":         deviation,
		"recommendation":    nutrition.Recommend(deviation),
	}
}
