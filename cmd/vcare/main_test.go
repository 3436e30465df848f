package main

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	vtesting "github.com/First008/vcare/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cliTestEnv struct {
	configPath string
	baseDir    string
	calls      *atomic.Int32
}

func setupCLITestEnv(t *testing.T, answer string) *cliTestEnv {
	t.Helper()

	calls := &atomic.Int32{}
	model := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, vtesting.ClaudeBody(answer))
	}))
	t.Cleanup(model.Close)

	base := t.TempDir()
	configPath := filepath.Join(base, "vcare.yaml")
	config := fmt.Sprintf(`endpoint:
  kind: http
  url: %s
retry:
  max_attempts: 1
templates:
  backend: file
  path: %s
nutrients:
  sqlite_path: %s
server:
  jwt_secret: cli-secret
`, model.URL, filepath.Join(base, "templates.json"), filepath.Join(base, "nutrients.db"))
	require.NoError(t, os.WriteFile(configPath, []byte(config), 0o644))

	return &cliTestEnv{configPath: configPath, baseDir: base, calls: calls}
}

func runCLI(t *testing.T, env *cliTestEnv, stdin string, args ...string) (string, string, error) {
	t.Helper()

	cmd := newRootCommand()
	full := []string{"--env-file", "", "--log-level", "error"}
	if env != nil {
		full = append(full, "--config", env.configPath)
	}
	cmd.SetArgs(append(full, args...))

	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))

	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func (e *cliTestEnv) writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(e.baseDir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestConfigValidateAndShow(t *testing.T) {
	env := setupCLITestEnv(t, "")

	out, _, err := runCLI(t, env, "", "config", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration valid")

	out, _, err = runCLI(t, env, "", "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "kind: http")
	assert.Contains(t, out, "backend: sqlite")
	assert.NotContains(t, out, "cli-secret")
	assert.Contains(t, out, redacted)
}

func TestConfigInvalid(t *testing.T) {
	env := setupCLITestEnv(t, "")
	env.configPath = env.writeFile(t, "bad.yaml", "endpoint:\n  kind: carrier-pigeon\n")

	_, _, err := runCLI(t, env, "", "config", "validate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "carrier-pigeon")
}

func TestToken(t *testing.T) {
	env := setupCLITestEnv(t, "")

	out, _, err := runCLI(t, env, "", "token", "--subject", "dr-smith")
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "."), 3)

	env.configPath = env.writeFile(t, "nosecret.yaml", "endpoint:\n  kind: http\n  url: http://localhost\n")
	_, _, err = runCLI(t, env, "", "token")
	assert.ErrorIs(t, err, errNoSecret)
}

func TestRunUseCase(t *testing.T) {
	env := setupCLITestEnv(t, vtesting.SampleClinicalAnswer)
	input := env.writeFile(t, "clinical.json", `{"age": 61, "conditions": ["diabetes"], "lab_results": {"glucose": 180}}`)

	out, _, err := runCLI(t, env, "", "run", "clinical_recommender", "--input", input)
	require.NoError(t, err)
	assert.Contains(t, out, "Metformin 500mg")
	assert.Equal(t, int32(1), env.calls.Load())
}

func TestRunUseCase_Stdin(t *testing.T) {
	env := setupCLITestEnv(t, vtesting.SampleClinicalAnswer)

	out, _, err := runCLI(t, env, `{"age": 40, "conditions": [], "lab_results": {}}`, "run", "clinical_recommender")
	require.NoError(t, err)
	assert.Contains(t, out, "HbA1c")
}

func TestRunUseCase_Failures(t *testing.T) {
	env := setupCLITestEnv(t, "")

	out, _, err := runCLI(t, env, `{}`, "run", "careplan_recommender")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation")
	assert.Contains(t, out, `"stage": "validation"`)

	_, _, err = runCLI(t, env, `{}`, "run", "astrology")
	assert.Error(t, err)

	_, _, err = runCLI(t, env, `not json`, "run", "clinical_recommender")
	assert.Error(t, err)
	assert.Equal(t, int32(0), env.calls.Load())
}

func TestTemplatesLifecycle(t *testing.T) {
	env := setupCLITestEnv(t, "")
	file := env.writeFile(t, "templates.import.json", `[
  {"name": "brief", "use_case": "clinical_recommender", "template_text": "Age ${age}"},
  {"name": "notes", "use_case": "speech_to_text", "template_text": "Summarize ${audio_data}"}
]`)

	out, _, err := runCLI(t, env, "", "templates", "import", file)
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 2 templates")

	out, _, err = runCLI(t, env, "", "templates", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "brief")
	assert.Contains(t, out, "notes")

	out, _, err = runCLI(t, env, "", "templates", "list", "--use-case", "speech_to_text", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"name": "notes"`)
	assert.NotContains(t, out, "brief")

	out, _, err = runCLI(t, env, "", "templates", "get", "brief")
	require.NoError(t, err)
	assert.Contains(t, out, `"template_text": "Age ${age}"`)

	exported := filepath.Join(env.baseDir, "export.json")
	out, _, err = runCLI(t, env, "", "templates", "export", "--output", exported)
	require.NoError(t, err)
	assert.Contains(t, out, "Exported 2 templates")

	out, _, err = runCLI(t, env, "", "templates", "delete", "brief")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted template brief")

	_, _, err = runCLI(t, env, "", "templates", "delete", "brief")
	assert.Error(t, err)
}

func TestIngestAndReport(t *testing.T) {
	env := setupCLITestEnv(t, "")
	catalog := env.writeFile(t, "catalog.csv", vtesting.SampleNutrientCSV)

	out, _, err := runCLI(t, env, "", "ingest", catalog, "--workers", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Ingested 3 items")
	assert.Contains(t, out, "holds 3 items")

	out, _, err = runCLI(t, env, "", "report", "--dish", "chicken rice", "--ingredients", "rice 200g, chicken 100g")
	require.NoError(t, err)
	assert.Contains(t, out, "Chicken Rice")
	assert.Contains(t, out, "exact")
	assert.Contains(t, out, "Recommendation:")
	assert.Equal(t, int32(0), env.calls.Load(), "every ingredient is in the catalog")

	out, _, err = runCLI(t, env, "", "report", "--dish", "chicken rice", "--ingredients", "rice 200g", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"dish_name": "chicken rice"`)
}

func TestReport_RequiresInput(t *testing.T) {
	env := setupCLITestEnv(t, "")

	_, _, err := runCLI(t, env, "", "report", "--dish", "soup")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--image")
}

func TestBuildFoodRequest_Requirements(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "req.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"proteins": 90, "calories": 2000}`), 0o644))

	req, err := buildFoodRequest("", "rice bowl", "rice 150g", path)
	require.NoError(t, err)
	require.NotNil(t, req.Requirements)
	assert.Equal(t, 90.0, req.Requirements.Proteins)
	assert.Len(t, req.Ingredients, 1)

	image := filepath.Join(dir, "meal.jpg")
	require.NoError(t, os.WriteFile(image, []byte{0xff, 0xd8, 0xff}, 0o644))
	req, err = buildFoodRequest(image, "", "", "")
	require.NoError(t, err)
	assert.Equal(t, "/9j/", req.Image)
}

func TestNewLogger_Level(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "warn")
	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
	assert.False(t, isTerminal(&buf))

	buf.Reset()
	fallback := newLogger(&buf, "nonsense")
	fallback.Info().Msg("default info")
	assert.Contains(t, buf.String(), "default info")
}

func TestLoadDotEnv(t *testing.T) {
	assert.NoError(t, loadDotEnv(""))
	assert.NoError(t, loadDotEnv(filepath.Join(t.TempDir(), "missing.env")))

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("VCARE_TEST_DOTENV=loaded\n"), 0o644))
	t.Setenv("VCARE_TEST_DOTENV", "")
	require.NoError(t, os.Unsetenv("VCARE_TEST_DOTENV"))
	require.NoError(t, loadDotEnv(path))
	assert.Equal(t, "loaded", os.Getenv("VCARE_TEST_DOTENV"))
}
