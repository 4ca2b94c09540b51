package procurement

import (
	"encoding/base64"

	"github.com/iliyamo/procurement-gateway/internal/upload"
)

// Procurement request properties written by the gateway.
const (
	FieldName        = "m_name"
	FieldProject     = "m_project"
	FieldDescription = "m_description"
	FieldQuantity    = "m_quantity"
	FieldUnitPrice   = "m_unit_price"
	FieldCurrency    = "m_currency"
	FieldNeededBy    = "m_needed_by"
)

const (
	// FieldQuote references the File record of a vault-stored quote.
	FieldQuote = "m_quote"
	// FieldInlineFiles carries deep-inserted attachments when the vault path
	// is unavailable.
	FieldInlineFiles = "m_Procurement_Request_Files"
)

// InlineFile is one deep-insert attachment row.
type InlineFile struct {
	FileName    string `json:"file_name"`
	FileContent string `json:"file_content"`
	FileType    string `json:"file_type"`
}

// AssembleVaultPayload returns a copy of fields referencing the registered
// File record.
func AssembleVaultPayload(fields map[string]any, metadataID string) map[string]any {
	out := clone(fields)
	out[FieldQuote] = metadataID
	return out
}

// AssembleInlinePayload returns a copy of fields with file embedded as base64.
func AssembleInlinePayload(fields map[string]any, file upload.File) map[string]any {
	out := clone(fields)
	fileType := file.MimeType
	if fileType == "" {
		fileType = "application/octet-stream"
	}
	out[FieldInlineFiles] = []InlineFile{{
		FileName:    file.Name,
		FileContent: base64.StdEncoding.EncodeToString(file.Data),
		FileType:    fileType,
	}}
	return out
}

func clone(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	return out
}
