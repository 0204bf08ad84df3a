// Package onedrivesdk assembles the pieces of the SDK into one client:
// an authenticator (typically the disambiguating resolver over the consumer
// and directory providers), the HTTP request pipeline with its authorization
// interceptor, and thin request builders for the OneDrive REST surface.
package onedrivesdk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/tonimelisma/onedrive-sdk-go/auth"
	"github.com/tonimelisma/onedrive-sdk-go/onedrive"
)

// defaultPollInterval paces async-operation polling.
const defaultPollInterval = 1 * time.Second

// Config configures a Client.
type Config struct {
	// Authenticator supplies accounts and tokens. Required. Usually an
	// *auth.Resolver; a single provider authenticator works too.
	Authenticator auth.Authenticator

	// HTTPClient used for API round trips. Defaults to http.DefaultClient.
	HTTPClient *http.Client

	// Serializer overrides the wire codec. Defaults to JSON.
	Serializer onedrive.Serializer

	// Logger receives structured debug output. Defaults to slog.Default().
	Logger *slog.Logger
}

// Client is the OneDrive API client.
type Client struct {
	authenticator auth.Authenticator
	provider      *onedrive.Provider
	logger        *slog.Logger
}

// New builds a client. The authenticator must already be initialized; a
// subsequent Login or LoginSilent on it is enough for requests to
// authenticate, since the pipeline consults it per request.
func New(cfg Config) (*Client, error) {
	if cfg.Authenticator == nil {
		return nil, fmt.Errorf("onedrivesdk: an authenticator is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	provider := onedrive.NewProvider(onedrive.ProviderConfig{
		HTTPClient: cfg.HTTPClient,
		Serializer: cfg.Serializer,
		Interceptors: []onedrive.Interceptor{
			onedrive.NewAuthInterceptor(cfg.Authenticator, logger),
		},
		Logger: logger,
	})

	return &Client{
		authenticator: cfg.Authenticator,
		provider:      provider,
		logger:        logger,
	}, nil
}

// Provider exposes the underlying pipeline for requests the typed surface
// does not cover.
func (c *Client) Provider() *onedrive.Provider {
	return c.provider
}

// serviceRoot resolves the API base URL for the signed-in account.
func (c *Client) serviceRoot() (string, error) {
	account := c.authenticator.AccountInfo()
	if account == nil {
		return "", fmt.Errorf("onedrivesdk: not signed in")
	}

	return account.ServiceRoot(), nil
}

// DefaultDrive fetches the signed-in user's default drive.
func (c *Client) DefaultDrive(ctx context.Context) (*onedrive.Drive, error) {
	root, err := c.serviceRoot()
	if err != nil {
		return nil, err
	}

	return onedrive.Send[onedrive.Drive](ctx, c.provider, onedrive.NewRequest(http.MethodGet, root, "drive"), nil)
}

// Drives lists the drives available to the signed-in user.
func (c *Client) Drives(ctx context.Context) ([]onedrive.Drive, error) {
	root, err := c.serviceRoot()
	if err != nil {
		return nil, err
	}

	page, err := onedrive.Send[onedrive.DriveCollection](ctx, c.provider, onedrive.NewRequest(http.MethodGet, root, "drives"), nil)
	if err != nil {
		return nil, err
	}

	return page.Value, nil
}

// Item fetches one item by id.
func (c *Client) Item(ctx context.Context, itemID string) (*onedrive.Item, error) {
	root, err := c.serviceRoot()
	if err != nil {
		return nil, err
	}

	return onedrive.Send[onedrive.Item](ctx, c.provider, onedrive.NewRequest(http.MethodGet, root, "drive", "items", itemID), nil)
}

// ItemByPath fetches one item by path relative to the drive root.
func (c *Client) ItemByPath(ctx context.Context, path string) (*onedrive.Item, error) {
	root, err := c.serviceRoot()
	if err != nil {
		return nil, err
	}

	return onedrive.Send[onedrive.Item](ctx, c.provider, onedrive.NewRequest(http.MethodGet, root, "drive", "root:", path), nil)
}

// Children lists the direct children of an item.
func (c *Client) Children(ctx context.Context, itemID string) ([]onedrive.Item, error) {
	root, err := c.serviceRoot()
	if err != nil {
		return nil, err
	}

	page, err := onedrive.Send[onedrive.ItemCollection](ctx, c.provider, onedrive.NewRequest(http.MethodGet, root, "drive", "items", itemID, "children"), nil)
	if err != nil {
		return nil, err
	}

	return page.Value, nil
}

// Download returns the content stream of an item. The caller owns the
// stream and must close it. A 204 or 304 response carries no content and
// yields (nil, nil); nil-check the stream before deferring Close.
func (c *Client) Download(ctx context.Context, itemID string) (io.ReadCloser, error) {
	root, err := c.serviceRoot()
	if err != nil {
		return nil, err
	}

	return onedrive.SendStream(ctx, c.provider, onedrive.NewRequest(http.MethodGet, root, "drive", "items", itemID, "content"), nil, nil)
}

// Delete removes an item.
func (c *Client) Delete(ctx context.Context, itemID string) error {
	root, err := c.serviceRoot()
	if err != nil {
		return err
	}

	_, err = onedrive.Send[struct{}](ctx, c.provider, onedrive.NewRequest(http.MethodDelete, root, "drive", "items", itemID), nil)

	return err
}

// copyRequest is the body of an item-copy call.
type copyRequest struct {
	Name            string                  `json:"name,omitempty"`
	ParentReference *onedrive.ItemReference `json:"parentReference,omitempty"`
}

// Copy starts a server-side item copy, a long-running operation, and
// returns its monitor. Poll the monitor for the copied item.
func (c *Client) Copy(ctx context.Context, itemID, destParentID, name string) (*onedrive.AsyncMonitor[onedrive.Item], error) {
	root, err := c.serviceRoot()
	if err != nil {
		return nil, err
	}

	req := onedrive.NewRequest(http.MethodPost, root, "drive", "items", itemID, "action.copy")
	req.AddHeader("Prefer", "respond-async")

	body := copyRequest{Name: name}
	if destParentID != "" {
		body.ParentReference = &onedrive.ItemReference{ID: destParentID}
	}

	return onedrive.SendMonitored(ctx, c.provider, req, body,
		func(ctx context.Context, location string) (*onedrive.Item, error) {
			return onedrive.Send[onedrive.Item](ctx, c.provider, onedrive.NewRequest(http.MethodGet, location), nil)
		})
}

// CopyAndWait runs Copy and polls the monitor to completion.
func (c *Client) CopyAndWait(ctx context.Context, itemID, destParentID, name string, progress func(percent float64)) (*onedrive.Item, error) {
	monitor, err := c.Copy(ctx, itemID, destParentID, name)
	if err != nil {
		return nil, err
	}

	return monitor.PollForResult(ctx, defaultPollInterval, progress)
}

// CreateUploadSession starts a resumable upload for name under parentID.
func (c *Client) CreateUploadSession(ctx context.Context, parentID, name string) (*onedrive.UploadSession, error) {
	root, err := c.serviceRoot()
	if err != nil {
		return nil, err
	}

	req := onedrive.NewRequest(http.MethodPost, root, "drive", "items", parentID+":", name+":", "upload.createSession")

	return onedrive.Send[onedrive.UploadSession](ctx, c.provider, req, struct{}{})
}

// QueryUploadSession fetches the current state of a resumable upload,
// including the next expected byte ranges.
func (c *Client) QueryUploadSession(ctx context.Context, session *onedrive.UploadSession) (*onedrive.UploadSession, error) {
	return onedrive.Send[onedrive.UploadSession](ctx, c.provider, onedrive.NewRequest(http.MethodGet, session.UploadURL), nil)
}

// CancelUploadSession abandons a resumable upload server-side.
func (c *Client) CancelUploadSession(ctx context.Context, session *onedrive.UploadSession) error {
	_, err := onedrive.Send[struct{}](ctx, c.provider, onedrive.NewRequest(http.MethodDelete, session.UploadURL), nil)

	return err
}

// UploadChunked streams r as a resumable upload in chunkSize pieces,
// reporting overall progress through progress when non-nil. The final
// chunk's response is the finished item.
func (c *Client) UploadChunked(ctx context.Context, parentID, name string, r io.Reader, totalSize int64, chunkSize int, progress onedrive.ProgressFunc) (*onedrive.Item, error) {
	session, err := c.CreateUploadSession(ctx, parentID, name)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, chunkSize)

	var offset int64

	for offset < totalSize {
		n, readErr := io.ReadFull(r, buf)
		if errors.Is(readErr, io.ErrUnexpectedEOF) || errors.Is(readErr, io.EOF) {
			readErr = nil
		}

		if readErr != nil {
			return nil, fmt.Errorf("onedrivesdk: reading upload source: %w", readErr)
		}

		chunk := buf[:n]

		upload := onedrive.NewChunkedUploadRequest[onedrive.Item](c.provider, session, offset, n, totalSize)

		var chunkProgress onedrive.ProgressFunc
		if progress != nil {
			base := offset
			chunkProgress = func(transferred, _ int64) {
				progress(base+transferred, totalSize)
			}
		}

		result := upload.Upload(ctx, chunk, chunkProgress)
		if result.Err != nil {
			return nil, result.Err
		}

		if result.Completed() {
			return result.Item, nil
		}

		session = result.Session
		offset += int64(n)
	}

	return nil, fmt.Errorf("onedrivesdk: upload ended without a finished item")
}
