package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// SignatureHeader is the header processors put webhook signatures in.
const SignatureHeader = "x-signature"

// SignPayload returns a `t=<unix>,v1=<hex>` header value for payload.
func SignPayload(secret string, timestamp int64, payload []byte) string {
	return "t=" + strconv.FormatInt(timestamp, 10) + ",v1=" + hex.EncodeToString(computeMAC(secret, timestamp, payload))
}

// VerifySignature checks header against payload using secret. A header may
// carry several v1 values (secret rotation); any match is accepted. When
// tolerance is positive, timestamps further than tolerance from now are
// rejected. Malformed input returns false.
func VerifySignature(secret, header string, payload []byte, tolerance time.Duration, now time.Time) bool {
	if secret == "" {
		return false
	}
	timestamp, signatures, ok := parseSignatureHeader(header)
	if !ok {
		return false
	}
	if tolerance > 0 {
		skew := now.Sub(time.Unix(timestamp, 0))
		if skew < 0 {
			skew = -skew
		}
		if skew > tolerance {
			return false
		}
	}

	expected := computeMAC(secret, timestamp, payload)
	for _, sig := range signatures {
		if hmac.Equal(sig, expected) {
			return true
		}
	}
	return false
}

func computeMAC(secret string, timestamp int64, payload []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return mac.Sum(nil)
}

func parseSignatureHeader(header string) (int64, [][]byte, bool) {
	var (
		timestamp  int64
		haveTime   bool
		signatures [][]byte
	)
	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			ts, err := strconv.ParseInt(value, 10, 64)
			if err != nil || ts <= 0 {
				return 0, nil, false
			}
			timestamp, haveTime = ts, true
		case "v1":
			sig, err := hex.DecodeString(value)
			if err != nil || len(sig) != sha256.Size {
				continue
			}
			signatures = append(signatures, sig)
		}
	}
	if !haveTime || len(signatures) == 0 {
		return 0, nil, false
	}
	return timestamp, signatures, true
}
