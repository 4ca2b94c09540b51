package procurement

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/procurement-gateway/internal/upload"
)

func TestAssembleVaultPayload(t *testing.T) {
	fields := map[string]any{"name": "Laptops", "quantity": 3}
	out := AssembleVaultPayload(fields, "META1")

	assert.Equal(t, "META1", out[FieldQuote])
	assert.Equal(t, "Laptops", out["name"])
	assert.NotContains(t, fields, FieldQuote, "input must not be mutated")
	assert.NotContains(t, out, FieldInlineFiles)
}

func TestAssembleInlinePayload(t *testing.T) {
	fields := map[string]any{"name": "Laptops"}
	out := AssembleInlinePayload(fields, upload.File{Name: "q.pdf", MimeType: "application/pdf", Data: []byte("hello")})

	raw, err := json.Marshal(out)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"name": "Laptops",
		"m_Procurement_Request_Files": [
			{"file_name": "q.pdf", "file_content": "aGVsbG8=", "file_type": "application/pdf"}
		]
	}`, string(raw))
	assert.NotContains(t, fields, FieldInlineFiles)
	assert.NotContains(t, out, FieldQuote)
}

func TestAssembleInlinePayload_DefaultType(t *testing.T) {
	out := AssembleInlinePayload(nil, upload.File{Name: "blob", Data: []byte{0xff}})
	files := out[FieldInlineFiles].([]InlineFile)
	require.Len(t, files, 1)
	assert.Equal(t, "application/octet-stream", files[0].FileType)
	assert.Equal(t, "/w==", files[0].FileContent)
}
