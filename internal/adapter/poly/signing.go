package poly

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/whaleflow/whaleflow/internal/config"
)

// Sign computes the CLOB L2 signature: HMAC-SHA256 over
// timestamp+METHOD+path+body, base64-encoded.
func Sign(timestamp, method, path, body, apiSecret string) string {
	mac := hmac.New(sha256.New, decodeSecret(apiSecret))
	mac.Write([]byte(timestamp + strings.ToUpper(method) + path + body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// decodeSecret treats the configured secret as base64 when it decodes,
// falling back to the raw bytes.
func decodeSecret(apiSecret string) []byte {
	cleaned := strings.TrimSpace(apiSecret)
	if decoded, err := base64.StdEncoding.DecodeString(cleaned); err == nil {
		return decoded
	}
	return []byte(cleaned)
}

// AuthHeaders builds the Poly-Api-* handshake headers. Returns nil unless L2
// auth is enabled and key, secret and passphrase are all configured; the
// feeds work unauthenticated otherwise.
func AuthHeaders(cfg config.PolymarketConfig, now func() time.Time) http.Header {
	if !cfg.L2Enabled {
		return nil
	}
	if cfg.L2APIKey == "" || cfg.L2APISecret == "" || cfg.L2Passphrase == "" {
		return nil
	}
	timestamp := strconv.FormatInt(now().Unix(), 10)
	headers := http.Header{}
	headers.Set("Poly-Api-Key", cfg.L2APIKey)
	headers.Set("Poly-Api-Passphrase", cfg.L2Passphrase)
	headers.Set("Poly-Api-Timestamp", timestamp)
	headers.Set("Poly-Api-Signature", Sign(timestamp, "GET", cfg.L2RequestPath, "", cfg.L2APISecret))
	return headers
}
