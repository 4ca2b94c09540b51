package vault

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/textproto"
	"strconv"
	"strings"
	"time"
)

const crlf = "\r\n"

// FileSpec describes the File record that rides inside the commit batch.
type FileSpec struct {
	FileID   string
	FileName string
	MimeType string
	Size     int64
	VaultID  string
	// Target is the sub-request URL; "File" when empty.
	Target string
}

// Boundaries are the outer batch and inner changeset delimiters. They only
// need to be unique within one request body.
type Boundaries struct {
	Batch     string
	Changeset string
}

// NewBoundaries derives both boundaries from now.
func NewBoundaries(now time.Time) Boundaries {
	ts := strconv.FormatInt(now.UnixMilli(), 10)
	return Boundaries{Batch: "batch_" + ts, Changeset: "changeset_" + ts}
}

// Batch is an encoded multipart/mixed commit body.
type Batch struct {
	Body       []byte
	Boundaries Boundaries
}

// ContentType is the header value for the outer multipart body.
func (b Batch) ContentType() string {
	return "multipart/mixed; boundary=" + b.Boundaries.Batch
}

// FileRecord is the JSON payload of the embedded File creation.
type FileRecord struct {
	ID       string    `json:"id"`
	Filename string    `json:"filename"`
	FileType string    `json:"file_type"`
	FileSize int64     `json:"file_size"`
	Located  []Located `json:"located"`
}

// Located links a File to the vault holding version FileVersion of it.
type Located struct {
	ID          string `json:"id"`
	FileVersion int    `json:"file_version"`
	RelatedID   string `json:"related_id"`
}

// NewFileRecord builds the record for spec with a single located relation.
func NewFileRecord(spec FileSpec) FileRecord {
	return FileRecord{
		ID:       spec.FileID,
		Filename: spec.FileName,
		FileType: spec.MimeType,
		FileSize: spec.Size,
		Located:  []Located{{ID: spec.FileID, FileVersion: 1, RelatedID: spec.VaultID}},
	}
}

// EncodeFileCreationBatch renders a single-changeset batch holding one POST
// that creates the File record for spec. Output depends only on its inputs.
func EncodeFileCreationBatch(spec FileSpec, b Boundaries) (Batch, error) {
	if b.Batch == "" || b.Changeset == "" || b.Batch == b.Changeset {
		return Batch{}, fmt.Errorf("batch and changeset boundaries must be distinct and non-empty")
	}
	payload, err := json.Marshal(NewFileRecord(spec))
	if err != nil {
		return Batch{}, fmt.Errorf("marshal file record: %w", err)
	}
	target := spec.Target
	if target == "" {
		target = "File"
	}

	var buf bytes.Buffer
	w := func(lines ...string) {
		for _, l := range lines {
			buf.WriteString(l)
			buf.WriteString(crlf)
		}
	}
	w(
		"--"+b.Batch,
		"Content-Type: multipart/mixed; boundary="+b.Changeset,
		"",
		"--"+b.Changeset,
		"Content-Type: application/http",
		"Content-Transfer-Encoding: binary",
		"Content-ID: 1",
		"",
		"POST "+target+" HTTP/1.1",
		"Content-Type: application/json",
		"Accept: application/json",
		"",
	)
	buf.Write(payload)
	buf.WriteString(crlf)
	w(
		"--"+b.Changeset+"--",
		"--"+b.Batch+"--",
	)
	return Batch{Body: buf.Bytes(), Boundaries: b}, nil
}

// EmbeddedRequest is one sub-request recovered from a batch body.
type EmbeddedRequest struct {
	Method string
	Target string
	Header textproto.MIMEHeader
	Body   []byte
}

// DecodeFileCreationBatch parses a body produced by EncodeFileCreationBatch
// and returns the embedded request plus its decoded File record.
func DecodeFileCreationBatch(body []byte, batchBoundary string) (EmbeddedRequest, FileRecord, error) {
	outer := multipart.NewReader(bytes.NewReader(body), batchBoundary)
	cs, err := outer.NextPart()
	if err != nil {
		return EmbeddedRequest{}, FileRecord{}, fmt.Errorf("read changeset part: %w", err)
	}
	mediaType, params, err := mime.ParseMediaType(cs.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/mixed" || params["boundary"] == "" {
		return EmbeddedRequest{}, FileRecord{}, fmt.Errorf("changeset part is not multipart/mixed")
	}

	inner := multipart.NewReader(cs, params["boundary"])
	op, err := inner.NextPart()
	if err != nil {
		return EmbeddedRequest{}, FileRecord{}, fmt.Errorf("read operation part: %w", err)
	}
	if ct := op.Header.Get("Content-Type"); ct != "application/http" {
		return EmbeddedRequest{}, FileRecord{}, fmt.Errorf("operation part has content type %q", ct)
	}
	raw, err := io.ReadAll(op)
	if err != nil {
		return EmbeddedRequest{}, FileRecord{}, fmt.Errorf("read operation: %w", err)
	}
	if _, err := inner.NextPart(); !errors.Is(err, io.EOF) {
		return EmbeddedRequest{}, FileRecord{}, fmt.Errorf("changeset holds more than one operation")
	}

	req, err := parseEmbedded(raw)
	if err != nil {
		return EmbeddedRequest{}, FileRecord{}, err
	}
	var rec FileRecord
	if err := json.Unmarshal(req.Body, &rec); err != nil {
		return req, FileRecord{}, fmt.Errorf("decode embedded payload: %w", err)
	}
	return req, rec, nil
}

func parseEmbedded(raw []byte) (EmbeddedRequest, error) {
	tp := textproto.NewReader(bufio.NewReader(bytes.NewReader(raw)))
	line, err := tp.ReadLine()
	if err != nil {
		return EmbeddedRequest{}, fmt.Errorf("read request line: %w", err)
	}
	fields := strings.Fields(line)
	if len(fields) != 3 || !strings.HasPrefix(fields[2], "HTTP/") {
		return EmbeddedRequest{}, fmt.Errorf("malformed request line %q", line)
	}
	hdr, err := tp.ReadMIMEHeader()
	if err != nil && !errors.Is(err, io.EOF) {
		return EmbeddedRequest{}, fmt.Errorf("read embedded headers: %w", err)
	}
	body, err := io.ReadAll(tp.R)
	if err != nil {
		return EmbeddedRequest{}, fmt.Errorf("read embedded body: %w", err)
	}
	return EmbeddedRequest{Method: fields[0], Target: fields[1], Header: hdr, Body: body}, nil
}
