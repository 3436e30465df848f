package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/rs/zerolog"
)

// bedrockAPI is the subset of the Bedrock runtime client used here
type bedrockAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
	InvokeModelWithResponseStream(ctx context.Context, params *bedrockruntime.InvokeModelWithResponseStreamInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelWithResponseStreamOutput, error)
}

// BedrockEndpoint invokes models through the AWS Bedrock runtime
type BedrockEndpoint struct {
	client bedrockAPI
	region string
	logger zerolog.Logger
}

// NewBedrockEndpoint loads the default AWS credential chain for region
func NewBedrockEndpoint(ctx context.Context, region string, logger zerolog.Logger) (*BedrockEndpoint, error) {
	if region == "" {
		region = DefaultRegion
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	return &BedrockEndpoint{
		client: bedrockruntime.NewFromConfig(cfg),
		region: region,
		logger: logger,
	}, nil
}

// Name implements Endpoint
func (e *BedrockEndpoint) Name() string { return "bedrock" }

// Invoke implements Endpoint
func (e *BedrockEndpoint) Invoke(ctx context.Context, modelID string, body []byte) (*EndpointResponse, error) {
	out, err := e.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(modelID),
		Body:        body,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		return nil, bedrockError(err)
	}

	e.logger.Debug().
		Str("model", modelID).
		Str("region", e.region).
		Int("bytes", len(out.Body)).
		Msg("Bedrock invocation completed")

	return &EndpointResponse{StatusCode: http.StatusOK, Body: out.Body}, nil
}

// InvokeStream implements Endpoint
func (e *BedrockEndpoint) InvokeStream(ctx context.Context, modelID string, body []byte) (EventStream, error) {
	out, err := e.client.InvokeModelWithResponseStream(ctx, &bedrockruntime.InvokeModelWithResponseStreamInput{
		ModelId:     aws.String(modelID),
		Body:        body,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		return nil, bedrockError(err)
	}
	return &bedrockStream{stream: out.GetStream()}, nil
}

type bedrockStream struct {
	stream *bedrockruntime.InvokeModelWithResponseStreamEventStream
}

func (s *bedrockStream) Recv() ([]byte, error) {
	for event := range s.stream.Events() {
		if chunk, ok := event.(*types.ResponseStreamMemberChunk); ok && len(chunk.Value.Bytes) > 0 {
			return chunk.Value.Bytes, nil
		}
	}
	if err := s.stream.Err(); err != nil {
		return nil, bedrockError(err)
	}
	return nil, io.EOF
}

func (s *bedrockStream) Close() error {
	return s.stream.Close()
}

// bedrockError attaches the HTTP status to SDK errors so the client can
// tell throttling apart from other failures
func bedrockError(err error) error {
	var throttled *types.ThrottlingException
	if errors.As(err, &throttled) {
		return &StatusError{StatusCode: http.StatusTooManyRequests, Err: err}
	}

	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		return &StatusError{StatusCode: respErr.HTTPStatusCode(), Err: err}
	}

	return fmt.Errorf("bedrock error: %w", err)
}
