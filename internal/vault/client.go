// Package vault speaks the PLM vault's three-call upload protocol:
// BeginTransaction, UploadFile, CommitTransaction. The vault may be reachable
// under any of several base URLs, so Begin probes a fixed candidate list and
// pins the first one that answers for the rest of the transaction.
package vault

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/iliyamo/procurement-gateway/internal/logging"
	"github.com/iliyamo/procurement-gateway/internal/odata"
)

// Client holds read-only configuration; all per-upload state lives in the
// Transaction returned by Begin.
type Client struct {
	candidates []string
	httpClient *http.Client
	log        logging.Logger
}

// NewClient builds a client over an ordered list of candidate base URLs.
func NewClient(candidates []string, httpClient *http.Client, log logging.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if log == nil {
		log = logging.Discard()
	}
	cs := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if c != "" {
			cs = append(cs, odata.WithTrailingSlash(c))
		}
	}
	return &Client{candidates: cs, httpClient: httpClient, log: log}
}

// Candidates returns the normalised candidate list in probe order.
func (c *Client) Candidates() []string {
	return append([]string(nil), c.candidates...)
}

// Attempt is the outcome of BeginTransaction against one candidate.
type Attempt struct {
	BaseURL       string
	TransactionID string
	Err           error
}

func (a Attempt) OK() bool { return a.Err == nil && a.TransactionID != "" }

// firstSuccess tries candidates in order and stops at the first OK attempt.
// It returns that attempt (if any) and every attempt made, including it.
func firstSuccess(candidates []string, try func(string) Attempt) (Attempt, []Attempt) {
	attempts := make([]Attempt, 0, len(candidates))
	for _, base := range candidates {
		a := try(base)
		attempts = append(attempts, a)
		if a.OK() {
			return a, attempts
		}
	}
	return Attempt{}, attempts
}

// Begin opens a vault transaction for vaultID.
func (c *Client) Begin(ctx context.Context, token, vaultID string) (*Transaction, error) {
	won, attempts := firstSuccess(c.candidates, func(base string) Attempt {
		return c.begin(ctx, token, vaultID, base)
	})
	for _, a := range attempts {
		if !a.OK() {
			c.log.Warn(ctx, "vault begin failed on candidate", "vault_id", vaultID, "base_url", a.BaseURL, "error", a.Err)
		}
	}
	if !won.OK() {
		return nil, &UnreachableError{VaultID: vaultID, Attempts: attempts}
	}
	c.log.Info(ctx, "vault transaction opened", "vault_id", vaultID, "base_url", won.BaseURL, "transaction_id", won.TransactionID)
	return &Transaction{
		ID:      won.TransactionID,
		VaultID: vaultID,
		BaseURL: won.BaseURL,
		State:   StateTransactionOpen,
	}, nil
}

func (c *Client) begin(ctx context.Context, token, vaultID, base string) Attempt {
	a := Attempt{BaseURL: base}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"vault.BeginTransaction", bytes.NewReader([]byte("{}")))
	if err != nil {
		a.Err = err
		return a
	}
	setAuth(req, token)
	req.Header["VAULTID"] = []string{vaultID}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	status, body, err := c.send(req)
	if err != nil {
		a.Err = err
		return a
	}
	if !success(status) {
		a.Err = odata.ParseError(status, body)
		return a
	}
	var out struct {
		TransactionID string `json:"transactionId"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		a.Err = fmt.Errorf("decode begin response: %w", err)
		return a
	}
	if out.TransactionID == "" {
		a.Err = fmt.Errorf("begin response carried no transactionId")
		return a
	}
	a.TransactionID = out.TransactionID
	return a
}

// Upload sends the whole file as one chunk under fileID.
func (c *Client) Upload(ctx context.Context, token string, tx *Transaction, fileID string, data []byte, fileName string) error {
	if tx == nil || tx.State != StateTransactionOpen {
		return fmt.Errorf("%w: upload requires an open transaction", ErrInvalidTransactionState)
	}
	if len(data) == 0 {
		tx.Abandon()
		return fmt.Errorf("%w: %w", ErrUploadFailed, ErrEmptyFile)
	}

	u := tx.BaseURL + "vault.UploadFile?fileId=" + url.QueryEscape(fileID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(data))
	if err != nil {
		tx.Abandon()
		return fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}
	size := len(data)
	// net/http writes Content-Length from this field, not from Header.
	req.ContentLength = int64(size)
	setAuth(req, token)
	req.Header["VAULTID"] = []string{tx.VaultID}
	req.Header["transactionid"] = []string{tx.ID}
	req.Header.Set("Content-Disposition", ContentDisposition(fileName))
	req.Header.Set("Content-Range", fmt.Sprintf("bytes 0-%d/%d", size-1, size))
	req.Header.Set("Content-Type", "application/octet-stream")

	status, body, err := c.send(req)
	if err != nil {
		tx.Abandon()
		return fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}
	if !success(status) {
		tx.Abandon()
		return &StatusError{Kind: ErrUploadFailed, Op: "vault.UploadFile", URL: u, StatusCode: status, Body: string(body)}
	}
	tx.State = StateChunkUploaded
	c.log.Debug(ctx, "vault chunk uploaded", "transaction_id", tx.ID, "file_id", fileID, "size", size)
	return nil
}

// Commit finalises the transaction with a batch body produced by
// EncodeFileCreationBatch and returns the raw response text.
func (c *Client) Commit(ctx context.Context, token string, tx *Transaction, batch Batch) (string, error) {
	if tx == nil || tx.State != StateChunkUploaded {
		return "", fmt.Errorf("%w: commit requires an uploaded chunk", ErrInvalidTransactionState)
	}

	u := tx.BaseURL + "vault.CommitTransaction"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(batch.Body))
	if err != nil {
		tx.Abandon()
		return "", fmt.Errorf("%w: %w", ErrCommitFailed, err)
	}
	setAuth(req, token)
	req.Header["VAULTID"] = []string{tx.VaultID}
	req.Header["transactionid"] = []string{tx.ID}
	req.Header.Set("Content-Type", batch.ContentType())
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Prefer", "return=representation")
	req.Header.Set("OData-Version", "4.0")

	status, body, err := c.send(req)
	if err != nil {
		tx.Abandon()
		return "", fmt.Errorf("%w: %w", ErrCommitFailed, err)
	}
	if !success(status) {
		tx.Abandon()
		se := &StatusError{Kind: ErrCommitFailed, Op: "vault.CommitTransaction", URL: u, StatusCode: status, Body: string(body)}
		if oe := odata.ParseError(status, body); oe.Structured() {
			se.OData = oe
			c.log.Error(ctx, "vault commit rejected",
				"transaction_id", tx.ID,
				"status", status,
				"code", oe.Code,
				"message", oe.Message,
				"target", oe.Target,
				"details", oe.Details,
				"innererror", string(oe.InnerError),
			)
		} else {
			c.log.Error(ctx, "vault commit rejected", "transaction_id", tx.ID, "status", status, "body", se.Body)
		}
		return "", se
	}
	tx.State = StateCommitted
	c.log.Info(ctx, "vault transaction committed", "transaction_id", tx.ID, "vault_id", tx.VaultID)
	return string(body), nil
}

func (c *Client) send(req *http.Request) (int, []byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return resp.StatusCode, body, nil
}

func setAuth(req *http.Request, token string) {
	if t := odata.StripBearer(token); t != "" {
		req.Header.Set("Authorization", "Bearer "+t)
	}
}

func success(status int) bool { return status >= 200 && status <= 299 }
