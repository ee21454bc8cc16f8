package ocr

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/config"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

var samplePDF = []byte("%PDF-1.4 statement")

func TestNewExtractor(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.OCRConfig
		want    any
		wantErr string
	}{
		{name: "default", cfg: config.OCRConfig{}, want: &PdfToText{}},
		{name: "local", cfg: config.OCRConfig{Provider: "local", PdfToTextPath: "/usr/bin/pdftotext"}, want: &PdfToText{}},
		{name: "mistral", cfg: config.OCRConfig{Provider: "mistral", MistralKey: "k"}, want: &MistralOCR{}},
		{name: "mistral without key", cfg: config.OCRConfig{Provider: "mistral"}, wantErr: "requires ocr.mistral_key"},
		{name: "unknown", cfg: config.OCRConfig{Provider: "tesseract"}, wantErr: `unknown provider "tesseract"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ext, err := NewExtractor(tt.cfg)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, ext)
		})
	}
}

func TestPdfToText_Defaults(t *testing.T) {
	assert.Equal(t, "pdftotext", NewPdfToText("").binPath)
	assert.Equal(t, "/opt/poppler/pdftotext", NewPdfToText("/opt/poppler/pdftotext").binPath)
}

func TestPdfToText_ExtractText(t *testing.T) {
	// The fake binary prints its input file so the test can check the spool.
	fakeBin := filepath.Join(t.TempDir(), "pdftotext")
	script := "#!/bin/sh\necho '15/07/2024  PIX JOAO DA SILVA   100,00'\ncat \"$4\"\n"
	require.NoError(t, os.WriteFile(fakeBin, []byte(script), 0o755))

	text, err := NewPdfToText(fakeBin).ExtractText(context.Background(), "extrato.pdf", samplePDF)
	require.NoError(t, err)
	assert.Contains(t, text, "PIX JOAO DA SILVA")
	assert.Contains(t, text, "%PDF-1.4 statement")
}

func TestPdfToText_BinaryNotFound(t *testing.T) {
	_, err := NewPdfToText("/nonexistent/pdftotext").ExtractText(context.Background(), "extrato.pdf", samplePDF)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pdftotext failed for extrato.pdf")
}

func newMistral(url string) *MistralOCR {
	m := NewMistralOCR("test-key", "test-model")
	m.endpoint = url
	return m
}

func TestMistralOCR_ExtractText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req mistralOCRRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		assert.Equal(t, "document_url", req.Document.Type)

		encoded, ok := strings.CutPrefix(req.Document.DocumentURL, "data:application/pdf;base64,")
		require.True(t, ok)
		raw, err := base64.StdEncoding.DecodeString(encoded)
		require.NoError(t, err)
		assert.Equal(t, samplePDF, raw)

		json.NewEncoder(w).Encode(mistralOCRResponse{Pages: []mistralOCRPage{ //nolint:errcheck
			{Index: 0, Markdown: "Extrato julho"},
			{Index: 1, Markdown: "15/07 PIX JOAO 100,00"},
		}})
	}))
	defer srv.Close()

	text, err := newMistral(srv.URL).ExtractText(context.Background(), "scan.pdf", samplePDF)
	require.NoError(t, err)
	assert.Equal(t, "Extrato julho\n\n15/07 PIX JOAO 100,00", text)
}

func TestMistralOCR_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{"error":"invalid api key"}`, wantErr: "mistral API returned 401"},
		{name: "malformed", status: http.StatusOK, body: `{invalid`, wantErr: "unmarshal mistral response"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := newMistral(srv.URL).ExtractText(context.Background(), "scan.pdf", samplePDF)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestMistralOCR_DefaultModel(t *testing.T) {
	m := NewMistralOCR("key", "")
	assert.Equal(t, defaultMistralModel, m.model)
	assert.Equal(t, mistralOCREndpoint, m.endpoint)
}
