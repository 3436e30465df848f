// Package mcpserver exposes the use case registry as Model Context Protocol
// tools, one tool per use case.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/First008/vcare/internal/usecase"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"
)

// ToolPrefix is prepended to every use case name to form its tool name
const ToolPrefix = "vcare_"

var toolDescriptions = map[string]string{
	usecase.FoodAnalysisName: "Analyze a meal from a base64 food image (image_data) or a dish_name plus ingredients, " +
		"resolve nutrients per ingredient and compare them against req_data.",
	usecase.FoodEstimateName: "Estimate the nutrients of a described meal (food_data) with the model alone and " +
		"compare them against req_data.",
	usecase.ClinicalName:     "Suggest prescriptions, tests and referrals from age, conditions and lab_results.",
	usecase.CarePlanName:     "Return an updated FHIR CarePlan from careplan_summary and clinical_recommendation.",
	usecase.SpeechToTextName: "Transcribe and summarize consultation audio_data into structured medical information.",
}

// RunArgs are the arguments of every use case tool
type RunArgs struct {
	Input map[string]any `json:"input" jsonschema:"description:Use case input object, the same body the HTTP API accepts"`
}

// Server wraps the MCP server for the use case registry
type Server struct {
	mcpServer *mcp.Server
	registry  *usecase.Registry
	logger    zerolog.Logger
}

// New creates an MCP server with one tool per registered use case
func New(registry *usecase.Registry, version string, logger zerolog.Logger) (*Server, error) {
	if registry == nil {
		return nil, fmt.Errorf("use case registry is required")
	}
	if version == "" {
		version = "1.0.0"
	}

	s := &Server{
		registry: registry,
		logger:   logger,
	}

	impl := &mcp.Implementation{
		Name:    "vcare",
		Version: version,
	}
	mcpServer := mcp.NewServer(impl, nil)

	var tools []string
	for _, name := range registry.Names() {
		description, ok := toolDescriptions[name]
		if !ok {
			description = fmt.Sprintf("Run the %s use case.", name)
		}
		toolName := ToolPrefix + name
		mcp.AddTool(
			mcpServer,
			&mcp.Tool{Name: toolName, Description: description},
			s.runHandler(name),
		)
		tools = append(tools, toolName)
	}

	s.mcpServer = mcpServer

	logger.Info().
		Strs("tools", tools).
		Msg("MCP server initialized")

	return s, nil
}

// ServeStdio starts the MCP server in stdio mode
func (s *Server) ServeStdio(ctx context.Context) error {
	s.logger.Info().Msg("Starting MCP server in stdio mode")
	return s.mcpServer.Run(ctx, &mcp.StdioTransport{})
}

// runHandler returns the tool handler running the named use case. Failed
// results are still returned as JSON, flagged with IsError.
func (s *Server) runHandler(name string) mcp.ToolHandlerFor[RunArgs, any] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, args RunArgs) (*mcp.CallToolResult, any, error) {
		s.logger.Info().
			Str("use_case", name).
			Msg("MCP tool invoked")

		input := args.Input
		if input == nil {
			input = map[string]any{}
		}

		result, err := s.registry.Run(ctx, name, input)
		if err != nil {
			return nil, nil, fmt.Errorf("use case %s: %w", name, err)
		}

		body, err := json.Marshal(result)
		if err != nil {
			return nil, nil, fmt.Errorf("encode result: %w", err)
		}

		failed := usecase.IsError(result)
		s.logger.Info().
			Str("use_case", name).
			Bool("error", failed).
			Msg("MCP tool completed")

		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(body)}},
			IsError: failed,
		}, nil, nil
	}
}
