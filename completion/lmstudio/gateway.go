package lmstudio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/w-h-a/spinach/completion"
	"github.com/w-h-a/spinach/fault"
)

type completionRequest struct {
	Model    string               `json:"model"`
	Messages []completion.Message `json:"messages"`
	Stream   bool                 `json:"stream"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type modelList struct {
	Data []completion.ModelDescriptor `json:"data"`
}

type lmStudioGateway struct {
	options completion.Options
	client  *http.Client
}

func (g *lmStudioGateway) Complete(ctx context.Context, messages []completion.Message) (string, error) {
	messages = completion.EnsureSystem(messages, g.options.SystemPrompt)

	req := completionRequest{
		Model:    g.options.Model,
		Messages: messages,
		Stream:   false,
	}

	body, err := g.post(ctx, "/chat/completions", req)
	if err != nil {
		return "", err
	}
	defer body.Close()

	var rsp completionResponse

	if err := json.NewDecoder(body).Decode(&rsp); err != nil {
		return "", fmt.Errorf("%w: %v", fault.ErrUpstream, err)
	}

	if len(rsp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices in completion response", fault.ErrUpstream)
	}

	return rsp.Choices[0].Message.Content, nil
}

func (g *lmStudioGateway) Stream(ctx context.Context, messages []completion.Message) (<-chan completion.StreamEvent, error) {
	messages = completion.EnsureSystem(messages, g.options.SystemPrompt)

	req := completionRequest{
		Model:    g.options.Model,
		Messages: messages,
		Stream:   true,
	}

	body, err := g.post(ctx, "/chat/completions", req)
	if err != nil {
		return nil, err
	}

	events := make(chan completion.StreamEvent)

	go g.relay(ctx, body, events)

	return events, nil
}

// relay forwards each payload verbatim until the [DONE] sentinel, a framing
// or transport failure, or caller cancellation.
func (g *lmStudioGateway) relay(ctx context.Context, body io.ReadCloser, events chan<- completion.StreamEvent) {
	defer close(events)
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if len(line) == 0 {
			continue
		}

		payload, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			g.send(ctx, events, completion.StreamEvent{
				Err: fmt.Errorf("%w: unexpected stream line %q", fault.ErrUpstream, line),
			})
			return
		}

		if payload == "[DONE]" {
			g.send(ctx, events, completion.StreamEvent{Done: true})
			return
		}

		if !g.send(ctx, events, completion.StreamEvent{Data: payload}) {
			return
		}
	}

	if ctx.Err() != nil {
		return
	}

	err := scanner.Err()
	if err == nil {
		err = io.ErrUnexpectedEOF
	}

	g.send(ctx, events, completion.StreamEvent{
		Err: fmt.Errorf("%w: %v", fault.ErrUpstream, err),
	})
}

func (g *lmStudioGateway) send(ctx context.Context, events chan<- completion.StreamEvent, event completion.StreamEvent) bool {
	select {
	case events <- event:
		return true
	case <-ctx.Done():
		return false
	}
}

func (g *lmStudioGateway) ModelInfo(ctx context.Context) ([]completion.ModelDescriptor, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, g.base()+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", fault.ErrUpstream, err)
	}

	response, err := g.client.Do(request)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", fault.ErrUpstream, err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(response.Body)
		return nil, fmt.Errorf("%w: http %d: %s", fault.ErrUpstream, response.StatusCode, string(payload))
	}

	var rsp modelList

	if err := json.NewDecoder(response.Body).Decode(&rsp); err != nil {
		return nil, fmt.Errorf("%w: %v", fault.ErrUpstream, err)
	}

	return rsp.Data, nil
}

func (g *lmStudioGateway) post(ctx context.Context, path string, req any) (io.ReadCloser, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", fault.ErrUpstream, err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, g.base()+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", fault.ErrUpstream, err)
	}

	request.Header.Set("Content-Type", "application/json")

	if len(g.options.ApiKey) > 0 {
		request.Header.Set("Authorization", "Bearer "+g.options.ApiKey)
	}

	response, err := g.client.Do(request)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", fault.ErrUpstream, err)
	}

	if response.StatusCode != http.StatusOK {
		defer response.Body.Close()
		payload, _ := io.ReadAll(response.Body)
		return nil, fmt.Errorf("%w: http %d: %s", fault.ErrUpstream, response.StatusCode, string(payload))
	}

	return response.Body, nil
}

func (g *lmStudioGateway) base() string {
	return strings.TrimSuffix(g.options.Endpoint(), "/")
}

func NewGateway(opts ...completion.Option) completion.Gateway {
	options := completion.NewOptions(opts...)

	if options.Endpoint == nil {
		panic("missing endpoint for lm studio gateway")
	}

	return &lmStudioGateway{
		options: options,
		client:  &http.Client{},
	}
}
