// Package blossom is an HTTP client for Blossom storage servers.
//
// A blob is uploaded with PUT {server}/upload. The request carries
// "Authorization: Nostr <base64 signed event>" where the event is a
// kind-24242 authorization bound to the blob's digest and size. Servers
// report failures in the X-Reason header.
package blossom

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"go.uber.org/zap"

	"xdao.co/pwapub/errs"
	"xdao.co/pwapub/events"
	"xdao.co/pwapub/storage"
)

const (
	AuthScheme = "Nostr"

	// DefaultAuthTTL is how long an authorization event stays valid.
	DefaultAuthTTL = time.Hour
)

// Client implements storage.Uploader.
type Client struct {
	HTTP   *http.Client
	Logger *zap.Logger
}

var _ storage.Uploader = (*Client)(nil)

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}

func (c *Client) Upload(ctx context.Context, server string, blob storage.Blob, auth string) (storage.Descriptor, error) {
	endpoint := storage.NormalizeServerURL(server) + "/upload"
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(blob.Data))
	if err != nil {
		return storage.Descriptor{}, errs.AtEndpoint(errs.KindUploadFailed, server, "bad upload request", err)
	}
	req.ContentLength = int64(len(blob.Data))
	req.Header.Set("Authorization", auth)
	if blob.Type != "" {
		req.Header.Set("Content-Type", blob.Type)
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return storage.Descriptor{}, errs.AtEndpoint(errs.KindUploadFailed, server, "upload request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		reason := resp.Header.Get("X-Reason")
		if reason == "" {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			reason = strings.TrimSpace(string(b))
		}
		var cause error
		if reason != "" {
			cause = errors.New(reason)
		}
		return storage.Descriptor{}, errs.AtEndpoint(errs.KindUploadFailed, server,
			fmt.Sprintf("server returned %d", resp.StatusCode), cause)
	}

	var d storage.Descriptor
	if err := json.NewDecoder(resp.Body).Decode(&d); err != nil {
		return storage.Descriptor{}, errs.AtEndpoint(errs.KindUploadFailed, server, "malformed blob descriptor", err)
	}
	if d.URL == "" {
		return storage.Descriptor{}, errs.AtEndpoint(errs.KindUploadFailed, server, "blob descriptor has no url", nil)
	}
	if c.Logger != nil {
		c.Logger.Debug("storage response", zap.String("server", server), zap.Any("descriptor", d))
	}
	return d, nil
}

// AuthTemplate is the authorization event for uploading blob, valid until
// expiration.
func AuthTemplate(blob storage.Blob, expiration time.Time) events.Template {
	return events.Template{
		Kind:    events.KindStorageAuth,
		Content: "Upload " + blob.Name,
		Tags: nostr.Tags{
			{"t", "upload"},
			{"x", blob.SHA256()},
			{"size", strconv.Itoa(len(blob.Data))},
			{"expiration", strconv.FormatInt(expiration.Unix(), 10)},
		},
	}
}

// EncodeAuth renders a signed authorization event as a header value.
func EncodeAuth(evt *nostr.Event) (string, error) {
	b, err := json.Marshal(evt)
	if err != nil {
		return "", err
	}
	return AuthScheme + " " + base64.StdEncoding.EncodeToString(b), nil
}

// DecodeAuth parses an Authorization header value produced by EncodeAuth.
func DecodeAuth(header string) (*nostr.Event, error) {
	scheme, payload, ok := strings.Cut(header, " ")
	if !ok || scheme != AuthScheme {
		return nil, fmt.Errorf("blossom: authorization scheme is not %s", AuthScheme)
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
	if err != nil {
		return nil, fmt.Errorf("blossom: %w", err)
	}
	var evt nostr.Event
	if err := json.Unmarshal(raw, &evt); err != nil {
		return nil, fmt.Errorf("blossom: %w", err)
	}
	return &evt, nil
}

// EventSigner signs an event in place.
type EventSigner interface {
	SignEvent(ctx context.Context, evt *nostr.Event) error
}

// Authorizer signs one upload authorization with s. A ttl of zero uses
// DefaultAuthTTL.
func Authorizer(s EventSigner, ttl time.Duration) storage.Authorizer {
	if ttl <= 0 {
		ttl = DefaultAuthTTL
	}
	return func(ctx context.Context, blob storage.Blob) (string, error) {
		evt := AuthTemplate(blob, time.Now().Add(ttl)).Unsigned("")
		if err := s.SignEvent(ctx, &evt); err != nil {
			return "", err
		}
		return EncodeAuth(&evt)
	}
}
