// Package adminapi exposes the minimal read/operate HTTP surface for
// admin/operator callers and the web admin UI (spec.md §1's external
// collaborators, neither specified by the distilled core), following the
// teacher's net/http + ServeMux + HMAC-signed-request middleware style.
package adminapi

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"math"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const maxTimestampSkew = 5 * time.Minute

// Authenticate verifies the HMAC-SHA256 request signature against the
// configured access/secret key pair, the same scheme
// internal/transport.HMACSigning produces on the way out. An empty
// accessKey disables verification (bootstrap/local-dev mode).
func Authenticate(accessKey, secretKey string, logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if accessKey == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := verifyHMAC(r, accessKey, secretKey); err != nil {
				logger.Debugf("admin api auth failed: %v", err)
				ErrJSON(w, http.StatusUnauthorized, err.Error())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func verifyHMAC(r *http.Request, accessKey, secretKey string) error {
	ak, sig, err := parseHMACAuthHeader(r.Header.Get("Authorization"))
	if err != nil {
		return err
	}
	if ak != accessKey {
		return fmt.Errorf("invalid access key")
	}

	tsStr := r.Header.Get("X-Hermes-Timestamp")
	if tsStr == "" {
		return fmt.Errorf("missing X-Hermes-Timestamp header")
	}
	ts, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid X-Hermes-Timestamp")
	}
	skew := time.Duration(math.Abs(float64(time.Now().Unix()-ts))) * time.Second
	if skew > maxTimestampSkew {
		return fmt.Errorf("timestamp expired")
	}

	bodyBytes, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize+1))
	if err != nil {
		return fmt.Errorf("read body failed")
	}
	r.Body = io.NopCloser(bytes.NewReader(bodyBytes))
	bodyHash := sha256Hex(bodyBytes)

	stringToSign := r.Method + "\n" + r.URL.Path + "\n" + tsStr + "\n" + bodyHash
	expected := computeHMACSHA256(secretKey, stringToSign)
	if !hmac.Equal([]byte(sig), []byte(expected)) {
		return fmt.Errorf("invalid signature")
	}
	return nil
}

func parseHMACAuthHeader(header string) (accessKey, signature string, err error) {
	if !strings.HasPrefix(header, "HMAC-SHA256 ") {
		return "", "", fmt.Errorf("unsupported auth scheme, expected HMAC-SHA256")
	}
	params := header[len("HMAC-SHA256 "):]
	for _, part := range strings.Split(params, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "Credential":
			accessKey = kv[1]
		case "Signature":
			signature = kv[1]
		}
	}
	if accessKey == "" || signature == "" {
		return "", "", fmt.Errorf("malformed HMAC-SHA256 Authorization header")
	}
	return accessKey, signature, nil
}

func computeHMACSHA256(key, message string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

func sha256Hex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Recovery catches panics and returns a 500 response.
func Recovery(logger *zap.SugaredLogger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				logger.Errorf("panic recovered: %v\n%s", err, debug.Stack())
				ErrJSON(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// Wrap applies a chain of middleware wrappers to a handler.
func Wrap(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
