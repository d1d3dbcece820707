// © 2025 Termos47. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package yagpt provides a minimal client for the YandexGPT completion
// API, used to rewrite feed headlines and bodies before publication.
package yagpt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/Termos47/info-sender/internal/request"
)

const apiURL = "https://llm.api.cloud.yandex.net/foundationModels/v1/completion"

// Limits applied around the enhancement call.
const (
	maxInputLen = 3000 // request body bound, characters of the original description

	minTitleLen = 10 // exclusive bounds on the rewritten text;
	maxTitleLen = 120
	minBodyLen  = 30
	maxBodyLen  = 600
)

// ErrBadResponse is returned when the model's reply does not contain the
// expected JSON payload.
var ErrBadResponse = errors.New("yagpt: response is not the expected {title, description} payload")

// Client holds configuration for interacting with the YandexGPT API.
// A nil Client is valid and behaves as a disabled enhancer.
type Client struct {
	// APIKey authenticates requests. Empty disables the client.
	APIKey string
	// FolderID is the Yandex Cloud folder the model lives in. Empty
	// disables the client.
	FolderID string
	// Model overrides the model name; defaults to yandexgpt-lite.
	Model string
	// HTTPClient is an optional HTTP client to use for requests. Defaults
	// to request.DefaultClient.
	HTTPClient *http.Client
	// Scrubber is an optional strings.Replacer that scrubs the API key from
	// error messages.
	Scrubber *strings.Replacer
}

// New returns a Client, with the API key scrubbed from its errors.
func New(apiKey, folderID string) *Client {
	c := &Client{APIKey: apiKey, FolderID: folderID}
	if apiKey != "" {
		c.Scrubber = strings.NewReplacer(apiKey, "[EXPUNGED]")
	}
	return c
}

// Enabled reports whether the client will attempt network calls.
func (c *Client) Enabled() bool {
	return c != nil && c.APIKey != "" && c.FolderID != ""
}

// Enhanced is the rewritten headline and body.
type Enhanced struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type completionRequest struct {
	ModelURI          string `json:"modelUri"`
	CompletionOptions struct {
		Temperature float64 `json:"temperature"`
		MaxTokens   int     `json:"maxTokens"`
	} `json:"completionOptions"`
	Messages []completionMessage `json:"messages"`
}

type completionMessage struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

type completionResponse struct {
	Result struct {
		Alternatives []struct {
			Message completionMessage `json:"message"`
		} `json:"alternatives"`
	} `json:"result"`
}

const promptTemplate = `Ты — профессиональный редактор новостей. Перепиши заголовок и описание новостного поста для Telegram-канала, чтобы они были:
1. Более привлекательными и цепляющими
2. Легко читаемыми
3. Сохраняли суть оригинала
4. Оптимизированными под соцсети (используй эмодзи, абзацы)
5. Максимальная длина заголовка: 100 символов
6. Максимальная длина описания: 400 символов

Ответ в формате JSON: {"title": "новый заголовок", "description": "новое описание"}

Оригинальный заголовок: %s
Оригинальное описание: %s`

// Enhance rewrites title and body through the model. It returns (nil, nil)
// when the client is disabled or when the model's output fails validation:
// in both cases the caller keeps the original text. A non-nil error means
// the request or response handling itself failed.
func (c *Client) Enhance(ctx context.Context, title, body string) (*Enhanced, error) {
	if !c.Enabled() {
		return nil, nil
	}

	if utf8.RuneCountInString(body) > maxInputLen {
		body = string([]rune(body)[:maxInputLen]) + "..."
	}

	model := c.Model
	if model == "" {
		model = "yandexgpt-lite"
	}

	req := completionRequest{
		ModelURI: fmt.Sprintf("gpt://%s/%s", c.FolderID, model),
		Messages: []completionMessage{{
			Role: "user",
			Text: fmt.Sprintf(promptTemplate, title, body),
		}},
	}
	req.CompletionOptions.Temperature = 0.4
	req.CompletionOptions.MaxTokens = 1500

	resp, err := request.Make[completionResponse](ctx, request.Params{
		Method: http.MethodPost,
		URL:    apiURL,
		Body:   req,
		Headers: map[string]string{
			"Authorization": "Api-Key " + c.APIKey,
		},
		HTTPClient: c.HTTPClient,
		Scrubber:   c.Scrubber,
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Result.Alternatives) == 0 {
		return nil, ErrBadResponse
	}
	enhanced, err := extract(resp.Result.Alternatives[0].Message.Text)
	if err != nil {
		return nil, err
	}

	if !valid(enhanced) {
		return nil, nil
	}
	return enhanced, nil
}

// extract cuts the {title, description} object out of the model's reply,
// which may surround it with prose: everything between the first "{" and
// the last "}" is treated as the payload.
func extract(text string) (*Enhanced, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end < start {
		return nil, ErrBadResponse
	}
	var e Enhanced
	if err := json.Unmarshal([]byte(text[start:end+1]), &e); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	return &e, nil
}

func valid(e *Enhanced) bool {
	titleLen := utf8.RuneCountInString(e.Title)
	bodyLen := utf8.RuneCountInString(e.Description)
	return titleLen > minTitleLen && titleLen < maxTitleLen &&
		bodyLen > minBodyLen && bodyLen < maxBodyLen
}
