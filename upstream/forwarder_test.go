package upstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lightninglabs/lsatproxy/backend"
	"github.com/stretchr/testify/require"
)

func TestForwarderHappyPath(t *testing.T) {
	t.Parallel()

	var receivedBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "secret-value", r.Header.Get("X-Api-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&receivedBody))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"result": {"text": "line one\n\nline two"}}`))
	}))
	defer server.Close()

	b := backend.Descriptor{
		Path:             "/echo",
		UpstreamURL:      server.URL,
		StaticHeaders:    []string{"X-Api-Key: secret-value"},
		BodyTemplateJSON: `{"fixed": "value"}`,
		PassFields: map[string]backend.FieldType{
			"q":     backend.FieldString,
			"limit": backend.FieldInt,
		},
		ResponseFieldPath: "result.text",
	}

	f := NewForwarder(0)
	paragraphs, err := f.Forward(context.Background(), b, map[string]string{
		"q":     "hello",
		"limit": "5",
	})
	require.NoError(t, err)
	require.Equal(t, []string{"line one", "line two"}, paragraphs)
	require.Equal(t, "value", receivedBody["fixed"])
	require.Equal(t, "hello", receivedBody["q"])
	require.Equal(t, float64(5), receivedBody["limit"])
}

func TestForwarderMissingFieldRejected(t *testing.T) {
	t.Parallel()

	b := backend.Descriptor{
		PassFields: map[string]backend.FieldType{
			"q": backend.FieldString,
		},
	}

	f := NewForwarder(0)
	_, err := f.Forward(context.Background(), b, map[string]string{})
	require.ErrorIs(t, err, ErrMissingField)
}

func TestForwarderUnknownTypeRejected(t *testing.T) {
	t.Parallel()

	b := backend.Descriptor{
		PassFields: map[string]backend.FieldType{
			"q": backend.FieldType("bogus"),
		},
	}

	f := NewForwarder(0)
	_, err := f.Forward(context.Background(), b, map[string]string{"q": "x"})
	require.ErrorIs(t, err, ErrUnknownFieldType)
}

func TestForwarderUpstreamErrorStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	b := backend.Descriptor{UpstreamURL: server.URL, ResponseFieldPath: "x"}

	f := NewForwarder(0)
	_, err := f.Forward(context.Background(), b, nil)
	require.ErrorIs(t, err, ErrUpstreamUnreachable)
}

func TestExtractFieldArrayIndex(t *testing.T) {
	t.Parallel()

	resp := []byte(`{"items": [{"text": "first"}, {"text": "second"}]}`)
	got, err := extractField(resp, "items.1.text")
	require.NoError(t, err)
	require.Equal(t, "second", got)
}

func TestExtractFieldNotAString(t *testing.T) {
	t.Parallel()

	resp := []byte(`{"n": 5}`)
	_, err := extractField(resp, "n")
	require.ErrorIs(t, err, ErrUpstreamMalformed)
}
