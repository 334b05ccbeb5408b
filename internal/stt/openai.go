package stt

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIClient transcribes audio using the official OpenAI SDK.
type OpenAIClient struct {
	client openai.Client
	model  string
}

// NewOpenAIClient creates a client for the given server.
// An empty baseURL selects the OpenAI API.
func NewOpenAIClient(baseURL, apiKey, model string, httpClient *http.Client) *OpenAIClient {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(strings.TrimSuffix(baseURL, "/")+"/v1/"))
	}
	if httpClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(httpClient))
	}

	return &OpenAIClient{
		client: openai.NewClient(reqOpts...),
		model:  model,
	}
}

func (c *OpenAIClient) Transcribe(ctx context.Context, audio []byte, r Request) (Transcription, error) {
	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(bytes.NewReader(audio), r.Format.Filename(), r.Format.ContentType()),
		Model: openai.AudioModel(c.model),
	}
	if r.Language != "" {
		params.Language = openai.String(r.Language)
	}

	resp, err := c.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return Transcription{}, fmt.Errorf("openai transcription: %w", err)
	}

	return Transcription{Text: resp.Text}, nil
}
