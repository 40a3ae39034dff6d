package secrets

import "encoding/base64"

func encodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// decodeBase64 accepts standard base64 with or without padding. Non-zero
// padding bits are rejected so each byte string has one text form per
// variant.
func decodeBase64(s string) ([]byte, error) {
	data, err := base64.StdEncoding.Strict().DecodeString(s)
	if err == nil {
		return data, nil
	}
	return base64.RawStdEncoding.Strict().DecodeString(s)
}
