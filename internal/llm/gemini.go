package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/raine/ecosort-bot/internal/waste"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

const (
	// DefaultModel is a fast tier; classification runs in an interactive
	// capture-and-classify loop.
	DefaultModel = "gemini-3-flash-preview"
	// DefaultTemperature keeps sampling close to deterministic so the model
	// follows the disposal rules rather than varying its answers.
	DefaultTemperature float32 = 0.1

	// The service receives every image tagged as JPEG-compatible data.
	transmitMIMEType = "image/jpeg"
)

const classificationPrompt = `Analyze the image of the waste item on the conveyor belt.
Classify it strictly according to these priority rules:

1. **HAZARD (RED) - Priority #1**:
   - Batteries (AA, Lithium, etc.)
   - Electronics (Phones, cables, circuit boards)
   - Chemicals (Cleaning bottles with warning labels, spray cans)
   - Flammables
   - Light bulbs

2. **COMPOST (YELLOW) - Priority #2**:
   - Greasy cardboard (e.g., Pizza boxes with oil stains)
   - Food-soiled paper
   - Organic food waste (Peels, scraps)

3. **RECYCLE (GREEN) - Priority #3**:
   - CLEAN Paper & Cardboard (No grease)
   - Rigid Plastic Bottles/Containers (Empty)
   - Metal Cans (Aluminum/Steel)
   - Glass Bottles/Jars

4. **TRASH (GREY) - Default**:
   - Soft Plastics (Chip bags, wrappers, plastic film, grocery bags)
   - Styrofoam
   - Mixed materials that cannot be separated
   - Unrecognized items
   - Dirty recyclables that are not compostable

Identify the main item. If multiple items exist, prioritize the most hazardous one.
When rules conflict, the higher priority rule wins regardless of confidence.`

// resultFields is the required field set of the response schema, in output order.
var resultFields = []string{"category", "itemName", "reasoning", "confidence"}

// responseSchema constrains the reply to a Result-shaped JSON object.
func responseSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"category": {
				Type:        genai.TypeString,
				Enum:        waste.CategoryTokens(),
				Description: "The classification of the waste item based on strict rules.",
			},
			"itemName": {
				Type:        genai.TypeString,
				Description: "A short, descriptive name of the item identified (e.g., 'Lithium Battery', 'Greasy Pizza Box').",
			},
			"reasoning": {
				Type:        genai.TypeString,
				Description: "Brief explanation of why this category was chosen based on the visual properties.",
			},
			"confidence": {
				Type:        genai.TypeNumber,
				Description: "Confidence score between 0 and 1.",
				Minimum:     genai.Ptr(0.0),
				Maximum:     genai.Ptr(1.0),
			},
		},
		Required:         resultFields,
		PropertyOrdering: resultFields,
	}
}

// Config configures a GeminiClassifier. The API key is passed explicitly so
// that callers and tests control where the credential comes from.
type Config struct {
	APIKey      string
	Model       string       // defaults to DefaultModel
	Temperature *float32     // defaults to DefaultTemperature
	BaseURL     string       // overrides the Gemini API endpoint
	HTTPClient  *http.Client // optional transport
}

// GeminiClassifier classifies waste images with Gemini's structured output.
type GeminiClassifier struct {
	client      *genai.Client
	model       string
	temperature float32
}

// NewGeminiClassifier creates a classifier. A missing API key fails with
// ErrConfiguration and no client is created.
func NewGeminiClassifier(ctx context.Context, cfg Config) (*GeminiClassifier, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w: Gemini API key is missing", ErrConfiguration)
	}

	clientConfig := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", ErrConfiguration, err)
	}

	g := &GeminiClassifier{
		client:      client,
		model:       cfg.Model,
		temperature: DefaultTemperature,
	}
	if g.model == "" {
		g.model = DefaultModel
	}
	if cfg.Temperature != nil {
		g.temperature = *cfg.Temperature
	}
	return g, nil
}

// Model returns the model name used for requests.
func (g *GeminiClassifier) Model() string {
	return g.model
}

// Classify sends one image to Gemini and validates the structured reply.
// Errors are *Error values carrying ErrInvalidImage, ErrService or
// ErrMalformedResponse.
func (g *GeminiClassifier) Classify(ctx context.Context, img waste.EncodedImage) (*waste.Result, error) {
	data, err := img.Bytes()
	if err != nil {
		return nil, g.fail(newError(ErrInvalidImage, err))
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(data, transmitMIMEType),
			genai.NewPartFromText(classificationPrompt),
		}, genai.RoleUser),
	}
	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   responseSchema(),
		Temperature:      genai.Ptr(g.temperature),
	}

	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return nil, g.fail(newError(ErrService, fmt.Errorf("failed to generate content: %w", err)))
	}

	result, err := ParseResult(resp.Text())
	if err != nil {
		return nil, g.fail(newError(ErrMalformedResponse, err))
	}

	event := log.Info().
		Str("model", g.model).
		Int("imageBytes", len(data)).
		Dur("latency", time.Since(start)).
		Str("category", string(result.Category)).
		Str("itemName", result.ItemName).
		Float64("confidence", result.Confidence)
	if resp.UsageMetadata != nil {
		event = event.
			Int64("inputTokens", int64(resp.UsageMetadata.PromptTokenCount)).
			Int64("outputTokens", int64(resp.UsageMetadata.CandidatesTokenCount)).
			Int64("totalTokens", int64(resp.UsageMetadata.TotalTokenCount))
	}
	event.Msg("classification llm call")

	return result, nil
}

func (g *GeminiClassifier) fail(e *Error) *Error {
	log.Error().
		Err(e.Cause).
		Str("kind", e.Kind.Error()).
		Str("model", g.model).
		Msg("waste classification failed")
	return e
}
