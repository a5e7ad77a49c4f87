package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tatianab/devil-deal/internal/config"
	"github.com/tatianab/devil-deal/internal/engine"
	"github.com/tatianab/devil-deal/internal/models"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

var stageRequest = engine.Request{Stage: models.StageOffer, System: "be a devil", Prompt: "make an offer"}

func TestOpenAIRequestShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var body chatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-test", body.Model)
		assert.InDelta(t, 0.2, body.Temperature, 1e-9)
		assert.Equal(t, []chatMessage{{Role: "system", Content: "be a devil"}, {Role: "user", Content: "make an offer"}}, body.Messages)

		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"ok\":true}"}}]}`))
	}))
	defer srv.Close()

	c := NewOpenAI(config.ProviderConfig{Name: config.ProviderOpenAI, BaseURL: srv.URL + "/v1/", Model: "gpt-test", APIKey: "sk-test"}, srv.Client(), zap.NewNop())
	out, err := c.Generate(context.Background(), stageRequest)
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, out)
}

func serve(t *testing.T, code int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(code)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIStatusErrors(t *testing.T) {
	srv := serve(t, http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`)
	c := NewOpenAI(config.ProviderConfig{BaseURL: srv.URL, Model: "m", APIKey: "k"}, srv.Client(), zap.NewNop())
	_, err := c.Generate(context.Background(), stageRequest)
	require.ErrorIs(t, err, engine.ErrRateLimited)
	assert.ErrorContains(t, err, "slow down")

	srv = serve(t, http.StatusInternalServerError, `{"error":{"message":"boom"}}`)
	c = NewOpenAI(config.ProviderConfig{BaseURL: srv.URL, Model: "m", APIKey: "k"}, srv.Client(), zap.NewNop())
	_, err = c.Generate(context.Background(), stageRequest)
	require.Error(t, err)
	assert.False(t, errors.Is(err, engine.ErrRateLimited))
	assert.ErrorContains(t, err, "HTTP 500")
}

func TestOpenAIEmptyChoices(t *testing.T) {
	srv := serve(t, http.StatusOK, `{"choices":[]}`)
	c := NewOpenAI(config.ProviderConfig{BaseURL: srv.URL, Model: "m", APIKey: "k"}, srv.Client(), zap.NewNop())

	_, err := c.Generate(context.Background(), stageRequest)
	assert.ErrorContains(t, err, "no completion")
}

func TestOpenAIWithoutKey(t *testing.T) {
	c := NewOpenAI(config.ProviderConfig{BaseURL: "http://unused", Model: "m"}, http.DefaultClient, zap.NewNop())
	_, err := c.Generate(context.Background(), stageRequest)
	assert.ErrorIs(t, err, engine.ErrNotConfigured)
}

func TestProxyRequestShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/generate", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))

		var body proxyRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, config.ProviderProxy, body.Provider)
		assert.Equal(t, "gemini-2.0-flash", body.Model)
		assert.Len(t, body.Messages, 2)

		_, _ = w.Write([]byte(`{"content":"{}"}`))
	}))
	defer srv.Close()

	p := NewProxy(config.ProviderConfig{BaseURL: srv.URL, Model: "gemini-2.0-flash"}, srv.Client(), zap.NewNop())
	out, err := p.Generate(context.Background(), stageRequest)
	require.NoError(t, err)
	assert.Equal(t, "{}", out)
}

func TestProxyErrors(t *testing.T) {
	generate := func(code int, body string) error {
		srv := serve(t, code, body)
		p := NewProxy(config.ProviderConfig{BaseURL: srv.URL, Model: "m"}, srv.Client(), zap.NewNop())
		_, err := p.Generate(context.Background(), stageRequest)
		return err
	}

	err := generate(http.StatusInternalServerError, `{"error":{"message":"Gemini HTTP 429: quota"}}`)
	require.Error(t, err)
	assert.True(t, engine.IsRateLimited(err), "upstream 429 relayed as 500 still counts: %v", err)

	assert.ErrorContains(t, generate(http.StatusOK, `{"text":"wrong field"}`), "no content field")
	assert.ErrorContains(t, generate(http.StatusOK, `<html>oops</html>`), "not JSON")
}

func TestNewSelectsOfflineWhenUnconfigured(t *testing.T) {
	for _, cfg := range []config.ProviderConfig{
		{},
		{Name: config.ProviderGemini, Model: "gemini-2.0-flash"},
		{Name: config.ProviderOpenAI, BaseURL: "http://x", Model: "m"},
		{Name: config.ProviderOffline, APIKey: "k"},
	} {
		c, err := New(context.Background(), cfg, nil)
		require.NoError(t, err)
		assert.Equal(t, config.ProviderOffline, c.Name())
		_, err = c.Generate(context.Background(), stageRequest)
		assert.ErrorIs(t, err, engine.ErrNotConfigured)
		assert.NoError(t, c.Close())
	}
}

func TestNewSelectsHTTPProviders(t *testing.T) {
	c, err := New(context.Background(), config.ProviderConfig{Name: config.ProviderOpenAI, BaseURL: "http://x", Model: "m", APIKey: "k"}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &OpenAI{}, c)

	c, err = New(context.Background(), config.ProviderConfig{Name: config.ProviderProxy, BaseURL: "http://127.0.0.1:8787", Model: "m"}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &Proxy{}, c)
}

func TestGeminiErrorMapping(t *testing.T) {
	err := geminiError(&googleapi.Error{Code: 429, Message: "Resource has been exhausted"})
	assert.ErrorIs(t, err, engine.ErrRateLimited)
	var gerr *googleapi.Error
	assert.ErrorAs(t, err, &gerr)

	err = geminiError(&googleapi.Error{Code: 403, Message: "forbidden"})
	assert.False(t, errors.Is(err, engine.ErrRateLimited))
	assert.ErrorContains(t, err, "gemini")
}

func TestGeminiResponseText(t *testing.T) {
	resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Parts: []genai.Part{genai.Text(`{"a":`), genai.Text(`1}`)}},
	}}}
	out, err := responseText(resp)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, out)

	_, err = responseText(&genai.GenerateContentResponse{})
	assert.Error(t, err)

	_, err = responseText(&genai.GenerateContentResponse{Candidates: []*genai.Candidate{{Content: &genai.Content{}}}})
	assert.Error(t, err)
}

func TestJoinURL(t *testing.T) {
	assert.Equal(t, "http://h/v1/chat/completions", joinURL("http://h/v1/", "/chat/completions"))
	assert.Equal(t, "http://h/generate", joinURL("http://h", "generate"))
}
