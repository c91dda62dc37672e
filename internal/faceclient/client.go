package faceclient

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"facegallery/internal/face"
)

// StubDimension is the descriptor length produced in Skip mode.
const StubDimension = 128

// DetectedFace is one face returned by the recognition service.
type DetectedFace struct {
	Descriptor []float32 `json:"descriptor"`
	Score      float64   `json:"score"`
}

// Client calls the face recognition microservice.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	// Skip answers locally without the service, for development.
	Skip bool
}

// New creates a client with configurable timeout.
func New(baseURL string, skip bool) *Client {
	return &Client{
		BaseURL: baseURL,
		Skip:    skip,
		HTTP: &http.Client{
			Timeout: 30 * time.Second, // model inference is slow on CPU
		},
	}
}

var _ face.Detector = (*Client)(nil)

// Detect uploads image and returns a descriptor per detected face.
func (c *Client) Detect(ctx context.Context, image []byte, filename string) ([]face.Descriptor, error) {
	faces, err := c.DetectFaces(ctx, image, filename)
	if err != nil {
		return nil, err
	}
	out := make([]face.Descriptor, 0, len(faces))
	for _, f := range faces {
		out = append(out, face.Descriptor(f.Descriptor))
	}
	return out, nil
}

// DetectFaces returns the raw detection result including scores.
func (c *Client) DetectFaces(ctx context.Context, image []byte, filename string) ([]DetectedFace, error) {
	if len(image) == 0 {
		return nil, fmt.Errorf("image required")
	}
	if c.Skip {
		return []DetectedFace{{Descriptor: stubDescriptor(image), Score: 1}}, nil
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("image", filename)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return nil, fmt.Errorf("write form file: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/detect", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("face service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("face service error %s: %s", resp.Status, string(bodyBytes))
	}

	var out struct {
		Faces []DetectedFace `json:"faces"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	for i, f := range out.Faces {
		if len(f.Descriptor) == 0 {
			return nil, fmt.Errorf("face service returned an empty descriptor for face %d", i)
		}
	}
	return out.Faces, nil
}

// Health checks if the face service is available.
func (c *Client) Health(ctx context.Context) error {
	if c.Skip {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("face service unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("face service unhealthy: %s", resp.Status)
	}

	return nil
}

// stubDescriptor derives a stable descriptor from the image bytes, so the
// same upload always matches itself and different uploads rarely do.
func stubDescriptor(image []byte) []float32 {
	out := make([]float32, StubDimension)
	sum := sha256.Sum256(image)
	for i := range out {
		if i%len(sum) == 0 && i > 0 {
			sum = sha256.Sum256(sum[:])
		}
		out[i] = float32(sum[i%len(sum)]) / 255
	}
	return out
}
