package prediction

import (
	"context"
	"fmt"
	"time"

	xhttp "MotionPull/pkg/http"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

// HTTPServiceBase owns the pooled client and posts protobuf messages as
// canonical JSON.
type HTTPServiceBase struct {
	baseURL string
	token   string
	client  *xhttp.Client
}

// NewHTTPServiceBase builds one pooled client for baseURL. token, when set,
// is sent as a bearer credential on every request.
func NewHTTPServiceBase(baseURL, token string, timeout time.Duration, opts ...xhttp.ClientOption) *HTTPServiceBase {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	opts = append([]xhttp.ClientOption{xhttp.WithTimeout(timeout)}, opts...)
	return &HTTPServiceBase{
		baseURL: baseURL,
		token:   token,
		client:  xhttp.NewClient(opts...),
	}
}

// PostProto posts req to path under baseURL and unmarshals the body into dest.
func (b *HTTPServiceBase) PostProto(ctx context.Context, path string, req, dest proto.Message) error {
	if b.client == nil || b.baseURL == "" {
		return fmt.Errorf("prediction http client not initialized")
	}

	body, err := protojson.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	headers := map[string]string{
		"Content-Type": "application/json",
		"Accept":       "application/json",
	}
	if b.token != "" {
		headers["Authorization"] = "Bearer " + b.token
	}

	var raw []byte
	if err := b.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:  xhttp.MethodPost,
		URL:     b.baseURL + path,
		Headers: headers,
		Body:    body,
	}, &raw); err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}

	if err := (protojson.UnmarshalOptions{DiscardUnknown: true}).Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

// Close releases pooled connections.
func (b *HTTPServiceBase) Close() error {
	if b.client != nil {
		b.client.Close()
	}
	return nil
}
