package transport

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHMACSigning_SignsRequestHeaders(t *testing.T) {
	var gotAuth, gotTS, gotBodyHash string
	var gotBody []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotTS = r.Header.Get("X-Hermes-Timestamp")
		gotBodyHash = r.Header.Get("X-Hermes-Body-SHA256")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	rt := &HMACSigning{AccessKey: "ak", SecretKey: "sk"}
	client := &http.Client{Transport: rt}

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/path", strings.NewReader(`{"x":1}`))
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.True(t, strings.HasPrefix(gotAuth, "HMAC-SHA256 Credential=ak, Signature="))
	assert.NotEmpty(t, gotTS)
	assert.Equal(t, `{"x":1}`, string(gotBody))

	expectedHash := sha256.Sum256([]byte(`{"x":1}`))
	assert.Equal(t, hex.EncodeToString(expectedHash[:]), gotBodyHash)

	sig := strings.TrimPrefix(gotAuth, "HMAC-SHA256 Credential=ak, Signature=")
	stringToSign := "POST\n/path\n" + gotTS + "\n" + gotBodyHash
	mac := hmac.New(sha256.New, []byte("sk"))
	mac.Write([]byte(stringToSign))
	expectedSig := hex.EncodeToString(mac.Sum(nil))
	assert.Equal(t, expectedSig, sig)
}

func TestHMACSigning_SignsEmptyBody(t *testing.T) {
	var gotBodyHash string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBodyHash = r.Header.Get("X-Hermes-Body-SHA256")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	rt := &HMACSigning{AccessKey: "ak", SecretKey: "sk"}
	client := &http.Client{Transport: rt}

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/path", nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	expectedHash := sha256.Sum256(nil)
	assert.Equal(t, hex.EncodeToString(expectedHash[:]), gotBodyHash)
}

func TestHMACSigning_DefaultsToHTTPDefaultTransportWhenBaseNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	rt := &HMACSigning{AccessKey: "ak", SecretKey: "sk"}
	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	resp, err := rt.RoundTrip(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}
