package swapper

import "encoding/hex"

func decodeHex(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	return hex.DecodeString(s)
}

func encodeHex(b []byte) string {
	return hex.EncodeToString(b)
}
