// Package transport defines the narrow socket abstraction the registry
// core depends on (RequesterSocket) and an HMAC-SHA256 request-signing
// http.RoundTripper reused by the admin/operator HTTP client, adapted from
// the controller's own outbound signing transport.
package transport

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// RequesterSocket is the per-connection transport the broker uses to push
// frames to one connected app. The RSocket frame codec and wire protocol
// are out of scope for this core; this interface is the only surface the
// registry touches.
type RequesterSocket interface {
	// FireAndForget sends a message with no response expected. Used by
	// broadcast and cluster-announce delivery.
	FireAndForget(ctx context.Context, payload []byte, metadata []byte) error
	// Close disposes the underlying connection. Idempotent.
	Close() error
	// Closed returns a channel closed when the socket has been disposed,
	// either by the peer or by a local Close call.
	Closed() <-chan struct{}
}

// HMACSigning is an http.RoundTripper that signs every outgoing request
// with HMAC-SHA256(SK, METHOD + "\n" + PATH + "\n" + TIMESTAMP + "\n" +
// BODY_HASH), the same scheme the admin HTTP surface verifies on the way
// in (see internal/adminapi).
type HMACSigning struct {
	AccessKey string
	SecretKey string
	Base      http.RoundTripper
}

func (t *HMACSigning) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	req2 := req.Clone(req.Context())
	ts := strconv.FormatInt(time.Now().Unix(), 10)

	var bodyHash string
	if req2.Body != nil && req2.Body != http.NoBody {
		bodyBytes, err := io.ReadAll(req2.Body)
		if err != nil {
			return nil, fmt.Errorf("read request body for signing: %w", err)
		}
		req2.Body = io.NopCloser(strings.NewReader(string(bodyBytes)))
		h := sha256.Sum256(bodyBytes)
		bodyHash = hex.EncodeToString(h[:])
	} else {
		h := sha256.Sum256(nil)
		bodyHash = hex.EncodeToString(h[:])
	}

	stringToSign := req2.Method + "\n" + req2.URL.Path + "\n" + ts + "\n" + bodyHash

	mac := hmac.New(sha256.New, []byte(t.SecretKey))
	mac.Write([]byte(stringToSign))
	sig := hex.EncodeToString(mac.Sum(nil))

	req2.Header.Set("Authorization", fmt.Sprintf("HMAC-SHA256 Credential=%s, Signature=%s", t.AccessKey, sig))
	req2.Header.Set("X-Hermes-Timestamp", ts)
	req2.Header.Set("X-Hermes-Body-SHA256", bodyHash)

	return base.RoundTrip(req2)
}
