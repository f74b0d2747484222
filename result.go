package piimask

import (
	"encoding/base64"
	"errors"
	"fmt"
)

// MaskedImage is one processed image returned by the masking service. The
// service transports it base64-encoded; the decoded PNG bytes are the
// canonical form here. A masked image never changes once received; a newer
// result replaces it wholesale.
type MaskedImage struct {
	data []byte
}

// DecodeMaskedImage decodes the base64 payload of a service response. An
// absent or undecodable payload means the response was malformed.
func DecodeMaskedImage(payload string) (*MaskedImage, error) {
	if payload == "" {
		return nil, errors.New("empty masked_image payload")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decode masked_image payload: %w", err)
	}
	return &MaskedImage{data: data}, nil
}

// Bytes returns the decoded image bytes.
func (m *MaskedImage) Bytes() []byte {
	return m.data
}

// Payload returns the image re-encoded into its base64 transit form.
func (m *MaskedImage) Payload() string {
	return base64.StdEncoding.EncodeToString(m.data)
}

// DataURI returns the image as a data URI, directly renderable by any
// browser surface layered on top of this client. The service always
// re-encodes its output as PNG, whatever the input format was.
func (m *MaskedImage) DataURI() string {
	return "data:image/png;base64," + m.Payload()
}
