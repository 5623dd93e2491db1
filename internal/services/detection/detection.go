package detection

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/pranav24547/Ai-Surveillance-System/internal/models"
	"github.com/pranav24547/Ai-Surveillance-System/internal/video"
)

// Detector runs object detection on a single frame.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]models.RawDetection, error)
}

// Client calls a remote inference service that accepts a JPEG on POST /predict and answers with a
// JSON array of detections.
type Client struct {
	URL        string
	Quality    int
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		URL:        strings.TrimRight(baseURL, "/"),
		Quality:    90,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Detect encodes img and sends it to /predict.
func (c *Client) Detect(ctx context.Context, img image.Image) ([]models.RawDetection, error) {
	imageData, err := video.EncodeJPEG(img, c.Quality)
	if err != nil {
		return nil, err
	}
	return c.SendFrame(ctx, imageData)
}

// SendFrame posts JPEG bytes to /predict.
func (c *Client) SendFrame(ctx context.Context, imageData []byte) ([]models.RawDetection, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="frame.jpg"`)
	h.Set("Content-Type", "image/jpeg")

	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("create form part: %w", err)
	}

	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("write image data: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL+"/predict", &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("bad status: %s, error: %s", resp.Status, bodyBytes)
	}

	var detections []models.RawDetection
	if err := json.NewDecoder(resp.Body).Decode(&detections); err != nil {
		return nil, fmt.Errorf("decode detections: %w", err)
	}

	return detections, nil
}
