package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
)

type response struct {
	Text string `json:"text"`
}

// Client talks to an OpenAI compatible transcription endpoint, e.g. whisper.cpp or LocalAI.
type Client struct {
	URL    string
	Model  string
	APIKey string
	Client *http.Client
}

func (c *Client) Transcribe(ctx context.Context, audio []byte, r Request) (Transcription, error) {
	var b bytes.Buffer
	multipartWriter := multipart.NewWriter(&b)

	part, err := multipartWriter.CreateFormFile("file", r.Format.Filename())
	if err != nil {
		return Transcription{}, fmt.Errorf("creating multipart form file: %w", err)
	}

	_, err = part.Write(audio)
	if err != nil {
		return Transcription{}, fmt.Errorf("write data to multipart writer: %w", err)
	}

	fields := map[string]string{
		"model":           c.Model,
		"language":        r.Language,
		"response_format": "json",
	}
	for _, k := range []string{"model", "language", "response_format"} {
		if fields[k] == "" {
			continue
		}

		err = multipartWriter.WriteField(k, fields[k])
		if err != nil {
			return Transcription{}, fmt.Errorf("write multipart request field %s: %w", k, err)
		}
	}

	err = multipartWriter.Close()
	if err != nil {
		return Transcription{}, fmt.Errorf("multipart writer close: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL+"/v1/audio/transcriptions", &b)
	if err != nil {
		return Transcription{}, fmt.Errorf("new transcription request: %w", err)
	}
	req.Header.Set("Content-Type", multipartWriter.FormDataContentType())
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	return c.send(req)
}

func (c *Client) send(request *http.Request) (Transcription, error) {
	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(request)
	if err != nil {
		return Transcription{}, fmt.Errorf("send transcription request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Transcription{}, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return Transcription{}, &StatusError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(body))}
	}

	var result response
	err = json.Unmarshal(body, &result)
	if err != nil {
		return Transcription{}, fmt.Errorf("unmarshal body: %w", err)
	}

	return Transcription{
		Text: result.Text,
	}, nil
}
