package extract

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/nfnt/resize"

	"recipebox/internal/recipe"
)

// SystemPrompt fixes the JSON shape the recognizer is asked to return.
const SystemPrompt = `You are a recipe extraction assistant. Extract recipe information from images.
Always respond in valid JSON format with the following structure:
{
    "title": "Recipe title",
    "description": "Brief description",
    "ingredients": [{"name": "ingredient", "quantity": "amount", "unit": "unit"}],
    "instructions": ["step 1", "step 2"],
    "servings": "number of servings",
    "prep_time": "preparation time",
    "cook_time": "cooking time"
}
Keep the instructions in the order they must be performed.
If you cannot identify certain fields, leave them empty or with reasonable defaults.`

// UserPrompt asks for JSON only.
const UserPrompt = "Please extract the recipe information from this image. Return ONLY valid JSON."

const (
	fallbackImageTitle  = "Extracted Recipe"
	fallbackDescription = 200

	// Wider images are scaled down before they are sent for recognition.
	maxImageWidth = 1600
)

// Recognition is a single request to a recognition capability.
type Recognition struct {
	SessionID    string
	SystemPrompt string
	UserPrompt   string
	Image        []byte
	MIMEType     string
}

// Recognizer sends an image plus instructions to an external multimodal
// model and returns its free-form text answer.
type Recognizer interface {
	// Configured reports whether the recognizer has the credential it needs.
	Configured() bool
	Recognize(ctx context.Context, req Recognition) (string, error)
}

// ImageExtractor turns a recipe photo into an Extraction.
type ImageExtractor struct {
	recognizer Recognizer
}

// NewImageExtractor creates an ImageExtractor. A nil recognizer behaves as
// an unconfigured one.
func NewImageExtractor(recognizer Recognizer) *ImageExtractor {
	return &ImageExtractor{recognizer: recognizer}
}

// Extract decodes imageBase64 (optionally a data URL) and asks the
// recognizer for the recipe. Unparsable answers degrade to a record that
// keeps the raw text; only configuration, payload, and call failures error.
func (e *ImageExtractor) Extract(ctx context.Context, imageBase64 string) (*recipe.Extraction, error) {
	if e.recognizer == nil || !e.recognizer.Configured() {
		return nil, ErrMissingCredential
	}

	data, mimeType, err := decodeImage(imageBase64)
	if err != nil {
		return nil, err
	}
	data, mimeType = downscale(data, mimeType)

	sessionID := "recipe-ocr-" + uuid.NewString()
	text, err := e.recognizer.Recognize(ctx, Recognition{
		SessionID:    sessionID,
		SystemPrompt: SystemPrompt,
		UserPrompt:   UserPrompt,
		Image:        data,
		MIMEType:     mimeType,
	})
	if err != nil {
		return nil, &RecognitionError{SessionID: sessionID, Err: err}
	}

	ext, err := ParseRecognition(text)
	if err != nil {
		slog.Warn("failed to parse recognition response, keeping raw text",
			"session_id", sessionID, "error", err)
		fallback := rawTextFallback(text)
		return &fallback, nil
	}
	return ext, nil
}

// decodeImage strips a data URL header, decodes the payload, and works out
// its MIME type from the header or the bytes themselves.
func decodeImage(payload string) ([]byte, string, error) {
	var header string
	if i := strings.IndexByte(payload, ','); i >= 0 {
		header, payload = payload[:i], payload[i+1:]
	}
	payload = strings.TrimSpace(payload)

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		// Some clients send unpadded base64.
		if data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "=")); err != nil {
			return nil, "", fmt.Errorf("%w: %v", ErrInvalidImage, err)
		}
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%w: empty image", ErrInvalidImage)
	}

	mimeType := http.DetectContentType(data)
	if strings.HasPrefix(header, "data:") {
		if mt, _, _ := strings.Cut(strings.TrimPrefix(header, "data:"), ";"); strings.HasPrefix(mt, "image/") {
			mimeType = mt
		}
	}
	return data, mimeType, nil
}

// downscale shrinks wide JPEG and PNG images. Anything it cannot decode is
// returned untouched.
func downscale(data []byte, mimeType string) ([]byte, string) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil || cfg.Width <= maxImageWidth {
		return data, mimeType
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return data, mimeType
	}
	img = resize.Resize(maxImageWidth, 0, img, resize.Lanczos3)

	var buf bytes.Buffer
	switch format {
	case "jpeg":
		err = jpeg.Encode(&buf, img, nil)
		mimeType = "image/jpeg"
	case "png":
		err = png.Encode(&buf, img)
		mimeType = "image/png"
	default:
		return data, mimeType
	}
	if err != nil {
		return data, mimeType
	}
	return buf.Bytes(), mimeType
}

// ParseRecognition parses a recognizer answer as recipe JSON. A bare JSON
// answer is used as is; otherwise a markdown code fence is stripped and,
// failing that, the outermost {...} span is tried.
func ParseRecognition(text string) (*recipe.Extraction, error) {
	var r recognizedRecipe
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &r); err == nil {
		ext := r.extraction()
		return &ext, nil
	}

	cleaned := stripCodeFence(text)
	r = recognizedRecipe{}
	err := json.Unmarshal([]byte(cleaned), &r)
	if err != nil {
		start := strings.Index(cleaned, "{")
		end := strings.LastIndex(cleaned, "}")
		if start == -1 || end == -1 || start > end {
			return nil, fmt.Errorf("could not find JSON object in response: %w", err)
		}
		r = recognizedRecipe{}
		if err := json.Unmarshal([]byte(cleaned[start:end+1]), &r); err != nil {
			return nil, fmt.Errorf("failed to unmarshal recipe JSON: %w", err)
		}
	}
	ext := r.extraction()
	return &ext, nil
}

// stripCodeFence returns the body of the first ``` fenced block, dropping
// the opening fence line (```json or ```) and everything from the next
// fence line on. Backticks inside a line never open or close a block.
func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	start := fenceLine(text)
	if start == -1 {
		return text
	}
	body := text[start+3:]

	nl := strings.IndexByte(body, '\n')
	if nl == -1 {
		// ```json{...}``` on a single line.
		body = strings.TrimPrefix(body, "json")
		if end := strings.Index(body, "```"); end >= 0 {
			body = body[:end]
		}
		return strings.TrimSpace(body)
	}

	body = body[nl+1:]
	if end := fenceLine(body); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

// fenceLine returns the offset of the first ``` that starts a line, ignoring
// leading blanks, or -1.
func fenceLine(s string) int {
	for offset := 0; offset < len(s); {
		line := s[offset:]
		next := strings.IndexByte(line, '\n')
		if next >= 0 {
			line = line[:next]
		}
		indent := len(line) - len(strings.TrimLeft(line, " \t"))
		if strings.HasPrefix(line[indent:], "```") {
			return offset + indent
		}
		if next < 0 {
			break
		}
		offset += next + 1
	}
	return -1
}

func rawTextFallback(text string) recipe.Extraction {
	ext := recipe.Extraction{
		Title:        fallbackImageTitle,
		Description:  truncateRunes(text, fallbackDescription),
		Ingredients:  []recipe.Ingredient{},
		Instructions: []string{},
	}
	if text != "" {
		ext.Instructions = []string{text}
	}
	return ext
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
