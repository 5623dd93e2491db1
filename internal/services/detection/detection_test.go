package detection

import (
	"context"
	"encoding/json"
	"image"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pranav24547/Ai-Surveillance-System/internal/models"
)

func TestClientDetect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/predict", r.URL.Path)
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "frame.jpg", header.Filename)
		data, _ := io.ReadAll(file)
		assert.Equal(t, []byte{0xFF, 0xD8}, data[:2])

		json.NewEncoder(w).Encode([]models.RawDetection{
			{Class: "gun", Score: 0.91, Box: []float64{10, 20, 30, 40}},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL+"/", 0)
	got, err := client.Detect(context.Background(), image.NewRGBA(image.Rect(0, 0, 16, 16)))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "gun", got[0].Class)
	assert.Equal(t, []float64{10, 20, 30, 40}, got[0].Box)
}

func TestClientBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, 0).SendFrame(context.Background(), []byte{0xFF, 0xD8})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model not loaded")
}
