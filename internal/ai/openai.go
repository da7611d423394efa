package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/clipsight/clipsight/internal/models"
)

const captionPrompt = "Describe this video frame in one or two sentences. " +
	"Mention the setting, any people, and notable objects. Be concrete and literal."

const detectPrompt = `List the distinct objects visible in this video frame as a JSON array.
Each entry must have "class_name" (a short lowercase noun), "confidence" (0 to 1), and
"bounding_box" with integer pixel "x", "y", "width", "height". Respond with JSON only.`

// OpenAIClient implements Captioner, Detector, and Completer against any
// OpenAI-compatible chat completions endpoint.
type OpenAIClient struct {
	cfg        Config
	httpClient *http.Client
}

func NewOpenAIClient(cfg Config) *OpenAIClient {
	cfg.applyDefaults()
	return &OpenAIClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Config returns the client's effective configuration, defaults applied.
func (c *OpenAIClient) Config() Config {
	return c.cfg
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (c *OpenAIClient) chat(ctx context.Context, model string, messages []chatMessage) (string, error) {
	jsonData, err := json.Marshal(chatRequest{Model: model, Messages: messages})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.BaseURL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("API error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("no response from API")
	}
	return parsed.Choices[0].Message.Content, nil
}

func visionMessage(prompt string, imageData []byte) chatMessage {
	imageBase64 := base64.StdEncoding.EncodeToString(imageData)
	return chatMessage{
		Role: "user",
		Content: []contentPart{
			{Type: "text", Text: prompt},
			{Type: "image_url", ImageURL: &imageURL{
				URL: fmt.Sprintf("data:image/jpeg;base64,%s", imageBase64),
			}},
		},
	}
}

// CaptionFrame describes one frame. The vision endpoint reports no
// confidence, so captions carry a fixed 0.9.
func (c *OpenAIClient) CaptionFrame(ctx context.Context, imageData []byte) (string, float64, error) {
	text, err := c.chat(ctx, c.cfg.VisionModel, []chatMessage{visionMessage(captionPrompt, imageData)})
	if err != nil {
		return "", 0, fmt.Errorf("captioning frame: %w", err)
	}
	return strings.TrimSpace(text), 0.9, nil
}

func (c *OpenAIClient) DetectObjects(ctx context.Context, imageData []byte) ([]models.DetectedObject, error) {
	text, err := c.chat(ctx, c.cfg.VisionModel, []chatMessage{visionMessage(detectPrompt, imageData)})
	if err != nil {
		return nil, fmt.Errorf("detecting objects: %w", err)
	}

	var objects []models.DetectedObject
	if err := json.Unmarshal([]byte(extractJSONArray(text)), &objects); err != nil {
		return nil, fmt.Errorf("parsing detection response: %w", err)
	}
	return objects, nil
}

// extractJSONArray trims markdown fences and surrounding prose the model
// sometimes wraps around its JSON.
func extractJSONArray(s string) string {
	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start == -1 || end == -1 || end < start {
		return s
	}
	return s[start : end+1]
}

// Complete generates the assistant's answer. The persona becomes the system
// message.
func (c *OpenAIClient) Complete(ctx context.Context, persona, prompt string) (string, error) {
	messages := []chatMessage{
		{Role: "system", Content: persona},
		{Role: "user", Content: prompt},
	}
	answer, err := c.chat(ctx, c.cfg.ChatModel, messages)
	if err != nil {
		return "", fmt.Errorf("generating answer: %w", err)
	}
	return strings.TrimSpace(answer), nil
}
