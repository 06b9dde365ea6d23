package kalshi

import (
	"crypto"
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/whaleflow/whaleflow/internal/config"
)

// ErrMissingCredentials is returned when the websocket requires auth but no
// access key / private key pair is configured.
var ErrMissingCredentials = errors.New("kalshi credentials missing; set KALSHI_ACCESS_KEY/KALSHI_PRIVATE_KEY")

// ErrUnsupportedAlgo is returned for signing algorithms outside
// hmac-sha256 / ed25519 / rsa-pss.
var ErrUnsupportedAlgo = errors.New("unsupported kalshi signing algorithm")

// AuthHeaders builds the KALSHI-ACCESS-* handshake headers: a millisecond
// timestamp and a signature over timestamp+"GET"+path.
func AuthHeaders(cfg config.KalshiConfig, now func() time.Time, log zerolog.Logger) (http.Header, error) {
	if cfg.AccessKey == "" || cfg.PrivateKey == "" {
		return nil, ErrMissingCredentials
	}
	timestamp := strconv.FormatInt(now().UnixMilli(), 10)
	message := timestamp + "GET" + NormalizePath(cfg.WSPath)
	algo := ResolveSigningAlgo(cfg.SigningAlgo, cfg.PrivateKey, log)
	signature, err := SignMessage(message, cfg.PrivateKey, algo)
	if err != nil {
		return nil, fmt.Errorf("sign kalshi auth message: %w", err)
	}
	headers := http.Header{}
	headers.Set("KALSHI-ACCESS-KEY", cfg.AccessKey)
	headers.Set("KALSHI-ACCESS-SIGNATURE", signature)
	headers.Set("KALSHI-ACCESS-TIMESTAMP", timestamp)
	return headers, nil
}

// NormalizePath trims the signing path and guarantees a leading slash.
func NormalizePath(path string) string {
	cleaned := strings.TrimSpace(path)
	if !strings.HasPrefix(cleaned, "/") {
		cleaned = "/" + cleaned
	}
	return cleaned
}

// ResolveSigningAlgo picks the effective algorithm. Explicit rsa-pss aliases
// win; hmac-sha256 and ed25519 are honored except that an ed25519 request
// paired with an RSA-looking key is overridden to rsa-pss, since that is the
// most common misconfiguration. With no recognizable setting, the key shape
// decides.
func ResolveSigningAlgo(algo, privateKey string, log zerolog.Logger) string {
	cleaned := strings.ToLower(strings.TrimSpace(algo))
	switch cleaned {
	case "rsa-pss", "rsa_pss", "rsapss":
		return "rsa-pss"
	case "hmac-sha256", "ed25519":
		if cleaned == "ed25519" && LooksLikeRSAPrivateKey(privateKey) {
			log.Warn().Msg("kalshi key looks like RSA; overriding signing algorithm to rsa-pss")
			return "rsa-pss"
		}
		return cleaned
	}
	if LooksLikeRSAPrivateKey(privateKey) {
		return "rsa-pss"
	}
	return "ed25519"
}

// LooksLikeRSAPrivateKey guesses RSA from PEM markers or from a compact
// encoding too long to be an ed25519 key.
func LooksLikeRSAPrivateKey(privateKey string) bool {
	cleaned := strings.TrimSpace(privateKey)
	if strings.Contains(cleaned, "BEGIN RSA PRIVATE KEY") || strings.Contains(cleaned, "BEGIN PRIVATE KEY") {
		return true
	}
	return len(compact(cleaned)) > 128
}

// SignMessage signs message with the given algorithm and returns the
// base64-encoded signature.
func SignMessage(message, privateKey, algo string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(algo)) {
	case "hmac-sha256":
		mac := hmac.New(sha256.New, []byte(privateKey))
		mac.Write([]byte(message))
		return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
	case "rsa-pss":
		return signRSAPSS(message, privateKey)
	case "ed25519":
		return signEd25519(message, privateKey)
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedAlgo, algo)
}

func signEd25519(message, privateKey string) (string, error) {
	keyBytes, err := decodeEd25519Key(privateKey)
	if err != nil {
		return "", err
	}
	var key ed25519.PrivateKey
	switch len(keyBytes) {
	case ed25519.SeedSize:
		key = ed25519.NewKeyFromSeed(keyBytes)
	case ed25519.PrivateKeySize:
		key = ed25519.PrivateKey(keyBytes)
	default:
		return "", fmt.Errorf("ed25519 key must be %d or %d bytes, got %d",
			ed25519.SeedSize, ed25519.PrivateKeySize, len(keyBytes))
	}
	return base64.StdEncoding.EncodeToString(ed25519.Sign(key, []byte(message))), nil
}

// decodeEd25519Key accepts hex (optionally 0x-prefixed) or base64.
func decodeEd25519Key(privateKey string) ([]byte, error) {
	cleaned := strings.TrimSpace(privateKey)
	cleaned = strings.TrimPrefix(cleaned, "0x")
	if decoded, err := hex.DecodeString(cleaned); err == nil {
		return decoded, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(compact(cleaned))
	if err != nil {
		return nil, fmt.Errorf("decode ed25519 key: %w", err)
	}
	return decoded, nil
}

func signRSAPSS(message, privateKey string) (string, error) {
	key, err := loadRSAPrivateKey(privateKey)
	if err != nil {
		return "", err
	}
	digest := sha256.Sum256([]byte(message))
	signature, err := rsa.SignPSS(rand.Reader, key, crypto.SHA256, digest[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthAuto,
		Hash:       crypto.SHA256,
	})
	if err != nil {
		return "", fmt.Errorf("rsa-pss sign: %w", err)
	}
	return base64.StdEncoding.EncodeToString(signature), nil
}

// loadRSAPrivateKey parses a PEM-armored key directly, and otherwise decodes
// the compact form (base64, falling back to hex) and tries DER then PEM.
func loadRSAPrivateKey(privateKey string) (*rsa.PrivateKey, error) {
	cleaned := strings.TrimSpace(privateKey)
	if strings.Contains(cleaned, "BEGIN") {
		return parsePEMRSAKey([]byte(cleaned))
	}
	keyBytes, err := base64.StdEncoding.DecodeString(compact(cleaned))
	if err != nil {
		keyBytes, err = hex.DecodeString(compact(cleaned))
		if err != nil {
			return nil, fmt.Errorf("decode rsa key: %w", err)
		}
	}
	if key, err := parseDERRSAKey(keyBytes); err == nil {
		return key, nil
	}
	return parsePEMRSAKey(keyBytes)
}

func parsePEMRSAKey(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("invalid PEM encoded RSA private key")
	}
	return parseDERRSAKey(block.Bytes)
}

func parseDERRSAKey(der []byte) (*rsa.PrivateKey, error) {
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("parse rsa key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("private key is not RSA")
	}
	return key, nil
}

func compact(s string) string {
	return strings.Join(strings.Fields(s), "")
}
