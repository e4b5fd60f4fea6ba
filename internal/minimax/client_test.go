package minimax

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(baseURL string) *Client {
	return NewClient("group-1", "key-1", baseURL, zap.NewNop())
}

func TestSynthesizeSuccess(t *testing.T) {
	var gotRequest map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/t2a_v2", r.URL.Path)
		assert.Equal(t, "group-1", r.URL.Query().Get("GroupId"))
		assert.Equal(t, "Bearer key-1", r.Header.Get("Authorization"))

		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotRequest))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"base_resp":{"status_code":0,"status_msg":"success"},"data":{"audio":"https://cdn.example.com/audio.mp3"}}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	url, err := client.Synthesize(context.Background(), "hello", "voice-1", SynthesisParams{
		Model:   "speech-2.6-turbo",
		Speed:   0.9,
		Pitch:   0,
		Volume:  1.6,
		Emotion: "auto",
	})

	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/audio.mp3", url)

	// Эмоция auto не передается провайдеру
	voice := gotRequest["voice_setting"].(map[string]any)
	_, hasEmotion := voice["emotion"]
	assert.False(t, hasEmotion)
	assert.Equal(t, "url", gotRequest["output_format"])
	assert.Equal(t, "voice-1", voice["voice_id"])
}

func TestSynthesizeExplicitEmotion(t *testing.T) {
	var gotRequest map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotRequest))
		w.Write([]byte(`{"base_resp":{"status_code":0},"data":{"audio":"https://cdn.example.com/a.mp3"}}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.Synthesize(context.Background(), "hello", "voice-1", SynthesisParams{Emotion: "happy"})
	require.NoError(t, err)

	voice := gotRequest["voice_setting"].(map[string]any)
	assert.Equal(t, "happy", voice["emotion"])
}

func TestSynthesizeProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"base_resp":{"status_code":1004,"status_msg":"insufficient balance"}}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.Synthesize(context.Background(), "hello", "voice-1", SynthesisParams{})

	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 1004, pe.StatusCode)
	assert.Contains(t, pe.Message, "insufficient balance")
}

func TestSynthesizeHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("bad gateway"))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.Synthesize(context.Background(), "hello", "voice-1", SynthesisParams{})

	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, http.StatusBadGateway, pe.StatusCode)
}

func TestSynthesizeMissingAudioURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"base_resp":{"status_code":0},"data":{}}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.Synthesize(context.Background(), "hello", "voice-1", SynthesisParams{})

	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Contains(t, pe.Message, "URL")
}

func TestDownloadSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("mp3-bytes"))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	data, err := client.Download(context.Background(), server.URL+"/audio.mp3")
	require.NoError(t, err)
	assert.Equal(t, []byte("mp3-bytes"), data)
}

func TestDownloadNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.Download(context.Background(), server.URL+"/missing.mp3")

	var de *DownloadError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, http.StatusNotFound, de.Status)
}
