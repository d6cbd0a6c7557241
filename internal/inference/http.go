package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"inference-task-worker/internal/config"
	"inference-task-worker/internal/pipeline"
)

const (
	inputName  = "input"
	logitsName = "logits"
)

// HTTPModel talks to a model server over the KServe v2 REST protocol.
type HTTPModel struct {
	baseURL string
	name    string
	client  *http.Client
}

func NewHTTPModel(cfg config.ModelConfig, client *http.Client) *HTTPModel {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPModel{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		name:    cfg.Name,
		client:  client,
	}
}

func (m *HTTPModel) Name() string { return m.name }

type inferTensor struct {
	Name     string    `json:"name"`
	Shape    []int     `json:"shape"`
	Datatype string    `json:"datatype"`
	Data     []float32 `json:"data"`
}

type inferRequest struct {
	Inputs []inferTensor `json:"inputs"`
}

type inferResponse struct {
	ModelName string        `json:"model_name"`
	Outputs   []inferTensor `json:"outputs"`
}

// Predict posts input to /v2/models/{name}/infer. The output named
// "logits" wins when the model returns several; otherwise the first one is used.
func (m *HTTPModel) Predict(ctx context.Context, input pipeline.Tensor) (pipeline.Tensor, error) {
	body, err := json.Marshal(inferRequest{Inputs: []inferTensor{{
		Name:     inputName,
		Shape:    input.Shape,
		Datatype: "FP32",
		Data:     input.Data,
	}}})
	if err != nil {
		return pipeline.Tensor{}, fmt.Errorf("encode infer request: %w", err)
	}

	url := fmt.Sprintf("%s/v2/models/%s/infer", m.baseURL, m.name)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return pipeline.Tensor{}, fmt.Errorf("build infer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return pipeline.Tensor{}, fmt.Errorf("%w: %w", ErrModelUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return pipeline.Tensor{}, fmt.Errorf("%w: status %d: %s", ErrModelUnavailable, resp.StatusCode, bytes.TrimSpace(msg))
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return pipeline.Tensor{}, fmt.Errorf("%w: status %d: %s", ErrInvalidResponse, resp.StatusCode, bytes.TrimSpace(msg))
	}

	var out inferResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return pipeline.Tensor{}, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}
	if len(out.Outputs) == 0 {
		return pipeline.Tensor{}, fmt.Errorf("%w: no outputs", ErrInvalidResponse)
	}

	chosen := out.Outputs[0]
	for _, o := range out.Outputs {
		if o.Name == logitsName {
			chosen = o
			break
		}
	}

	logits := pipeline.Tensor{Shape: chosen.Shape, Data: chosen.Data}
	if err := logits.Validate(); err != nil {
		return pipeline.Tensor{}, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}
	return logits, nil
}

var _ Model = (*HTTPModel)(nil)
