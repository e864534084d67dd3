package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/ticrm/tire-storage-api/config"
)

// TireCondition is the wear assessment part of an analysis.
type TireCondition struct {
	WearLevel      float64  `json:"wearLevel"` // 0 worn out, 100 new
	Damages        []string `json:"damages"`
	Recommendation string   `json:"recommendation"`
}

// TireAnalysis is the structured result of a tire photo analysis
type TireAnalysis struct {
	DotCodes   []string      `json:"dotCodes"`
	Condition  TireCondition `json:"condition"`
	Confidence float64       `json:"confidence"` // 0-100
}

// WearLevelPercent returns the wear level rounded to a whole percent.
func (a *TireAnalysis) WearLevelPercent() int {
	return int(math.Round(a.Condition.WearLevel))
}

// Analyzer inspects a tire photo. A nil result with a nil error means
// analysis is disabled.
type Analyzer interface {
	AnalyzeTirePhoto(ctx context.Context, data []byte, contentType string) (*TireAnalysis, error)
}

const tireAnalysisPrompt = `Проанализируй это изображение автомобильной шины и предоставь следующую информацию в формате JSON:

1. DOT-коды (если видны на изображении) - массив строк
2. Оценка износа протектора (0-100%, где 0 - полностью изношена, 100 - новая)
3. Видимые повреждения (массив описаний: порезы, грыжи, неравномерный износ и т.д.)
4. Рекомендация (годна к использованию, требует замены, требует ремонта)
5. Уверенность в анализе (0-100%)

Верни ТОЛЬКО валидный JSON без дополнительного текста в следующем формате:
{
  "dotCodes": ["DOT..."],
  "condition": {
    "wearLevel": 85,
    "damages": ["небольшой порез сбоку"],
    "recommendation": "годна к использованию"
  },
  "confidence": 90
}

Если на изображении нет шины или изображение неясное, верни пустой массив dotCodes и confidence 0.`

var errNoJSONInResponse = errors.New("no JSON object in model response")

// GeminiAnalyzer calls the Gemini generateContent REST endpoint
type GeminiAnalyzer struct {
	apiURL     string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewGeminiAnalyzer creates a new analyzer instance
func NewGeminiAnalyzer(cfg *config.Config) *GeminiAnalyzer {
	timeout := cfg.AnalysisTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &GeminiAnalyzer{
		apiURL: strings.TrimRight(cfg.GeminiAPIURL, "/"),
		apiKey: cfg.GeminiAPIKey,
		model:  cfg.GeminiModel,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (g *GeminiAnalyzer) Enabled() bool {
	return g.apiKey != ""
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiRequest struct {
	Contents []struct {
		Parts []geminiPart `json:"parts"`
	} `json:"contents"`
	GenerationConfig struct {
		ResponseMimeType string  `json:"responseMimeType"`
		Temperature      float64 `json:"temperature"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// AnalyzeTirePhoto sends the image inline and parses the JSON answer
func (g *GeminiAnalyzer) AnalyzeTirePhoto(ctx context.Context, data []byte, contentType string) (*TireAnalysis, error) {
	if !g.Enabled() {
		return nil, nil
	}

	var body geminiRequest
	body.Contents = make([]struct {
		Parts []geminiPart `json:"parts"`
	}, 1)
	body.Contents[0].Parts = []geminiPart{
		{Text: tireAnalysisPrompt},
		{InlineData: &geminiInlineData{MimeType: contentType, Data: base64.StdEncoding.EncodeToString(data)}},
	}
	body.GenerationConfig.ResponseMimeType = "application/json"
	body.GenerationConfig.Temperature = 0.1

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", g.apiURL, g.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call analysis endpoint: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read analysis response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("analysis endpoint returned status %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}

	var parsed geminiResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode analysis response: %w", err)
	}

	var text strings.Builder
	for _, c := range parsed.Candidates {
		for _, p := range c.Content.Parts {
			text.WriteString(p.Text)
		}
		if text.Len() > 0 {
			break
		}
	}

	return ParseTireAnalysis(text.String())
}

// ParseTireAnalysis extracts the first JSON object from model output and
// clamps its numeric fields into range.
func ParseTireAnalysis(text string) (*TireAnalysis, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, errNoJSONInResponse
	}

	var analysis TireAnalysis
	if err := json.Unmarshal([]byte(text[start:end+1]), &analysis); err != nil {
		return nil, fmt.Errorf("failed to parse analysis JSON: %w", err)
	}
	analysis.Condition.WearLevel = clamp(analysis.Condition.WearLevel, 0, 100)
	analysis.Confidence = clamp(analysis.Confidence, 0, 100)
	if analysis.DotCodes == nil {
		analysis.DotCodes = []string{}
	}
	return &analysis, nil
}

func clamp(v, minV, maxV float64) float64 {
	if v < minV {
		return minV
	}
	if v > maxV {
		return maxV
	}
	return v
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
