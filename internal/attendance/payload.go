package attendance

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrMalformedPayload is returned by DecodePayload for anything that is not a
// payload produced by EncodePayload.
var ErrMalformedPayload = errors.New("attendance: malformed scan payload")

// maxPayloadLen bounds the input before decoding; real payloads are ~110 bytes.
const maxPayloadLen = 512

// ScanPayload is the content of a registrant's QR code.
type ScanPayload struct {
	Credential string `json:"c"`
	EventID    string `json:"e"`
}

// EncodePayload renders p as unpadded base64url JSON, which fits QR byte
// mode and survives copy/paste and URLs unchanged.
func EncodePayload(p ScanPayload) string {
	raw, _ := json.Marshal(p)
	return base64.RawURLEncoding.EncodeToString(raw)
}

// DecodePayload parses a scanned payload. Surrounding whitespace is tolerated
// because handheld scanners often append a newline.
func DecodePayload(s string) (ScanPayload, error) {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > maxPayloadLen {
		return ScanPayload{}, ErrMalformedPayload
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return ScanPayload{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var p ScanPayload
	if err := dec.Decode(&p); err != nil {
		return ScanPayload{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	var extra json.RawMessage
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return ScanPayload{}, fmt.Errorf("%w: trailing data", ErrMalformedPayload)
	}
	if p.Credential == "" || p.EventID == "" {
		return ScanPayload{}, fmt.Errorf("%w: missing field", ErrMalformedPayload)
	}
	return p, nil
}
