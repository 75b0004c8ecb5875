package prediction

import (
	"context"
	"fmt"
	"strings"

	"MotionPull/internal/codec"
	"MotionPull/internal/domain/repository"
	"MotionPull/pkg/config"
	xhttp "MotionPull/pkg/http"

	"google.golang.org/protobuf/types/known/structpb"
)

// VertexPredictor calls a Vertex AI online prediction endpoint over REST.
type VertexPredictor struct {
	base  *HTTPServiceBase
	path  string
	vocab codec.Vocabulary
}

// VertexOption configures VertexPredictor.
type VertexOption func(*vertexOptions)

type vertexOptions struct {
	clientOpts []xhttp.ClientOption
	vocab      codec.Vocabulary
}

// WithClientOptions passes options to the underlying HTTP client.
func WithClientOptions(opts ...xhttp.ClientOption) VertexOption {
	return func(o *vertexOptions) {
		o.clientOpts = append(o.clientOpts, opts...)
	}
}

// WithVocabulary overrides the label set used to validate predictions.
func WithVocabulary(v codec.Vocabulary) VertexOption {
	return func(o *vertexOptions) {
		if len(v) > 0 {
			o.vocab = v
		}
	}
}

// NewVertexPredictor builds a predictor for the endpoint described by cfg.
func NewVertexPredictor(cfg *config.Config, opts ...VertexOption) *VertexPredictor {
	o := &vertexOptions{vocab: codec.DefaultVocabulary}
	if len(cfg.Predictor.Labels) > 0 {
		o.vocab = codec.Vocabulary(cfg.Predictor.Labels)
	}
	for _, opt := range opts {
		opt(o)
	}

	p := cfg.Predictor
	return &VertexPredictor{
		base:  NewHTTPServiceBase(strings.TrimRight(p.BaseURL, "/"), p.AccessToken, p.Timeout, o.clientOpts...),
		path:  EndpointPath(p.Project, p.Location, p.EndpointID),
		vocab: o.vocab,
	}
}

// EndpointPath is the REST path of the predict method for one endpoint.
func EndpointPath(project, location, endpointID string) string {
	return fmt.Sprintf("/v1/projects/%s/locations/%s/endpoints/%s:predict", project, location, endpointID)
}

// Predict submits one instance and returns its single prediction.
func (p *VertexPredictor) Predict(ctx context.Context, instance *structpb.Value) (*structpb.Value, error) {
	if instance == nil {
		return nil, fmt.Errorf("predict: nil instance")
	}

	var resp structpb.Struct
	if err := p.base.PostProto(ctx, p.path, codec.EncodeRequest(instance), &resp); err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}

	pred, err := codec.DecodeResponse(&resp, p.vocab)
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}
	return pred, nil
}

// Vocabulary returns the labels predictions are validated against.
func (p *VertexPredictor) Vocabulary() codec.Vocabulary {
	return p.vocab
}

// Close releases pooled connections.
func (p *VertexPredictor) Close() error {
	return p.base.Close()
}

var _ repository.Predictor = (*VertexPredictor)(nil)
