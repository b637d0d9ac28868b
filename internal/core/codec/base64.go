package codec

import (
	"encoding/base64"
	"fmt"

	"github.com/markdave123-py/samurai-chat/internal/core"
	"github.com/markdave123-py/samurai-chat/internal/models"
)

// Base64 is the only encoding tag the engine understands.
const Base64 = "base64"

// EncodedContent is message text made safe for JSON transport.
type EncodedContent struct {
	Content  string
	Encoding string
}

// Encode returns the padded standard base64 form of content's UTF-8 bytes.
func Encode(content string) EncodedContent {
	return EncodedContent{
		Content:  base64.StdEncoding.EncodeToString([]byte(content)),
		Encoding: Base64,
	}
}

// Decode reverses Encode.
func Decode(encoded, encoding string) (string, error) {
	if encoding != Base64 {
		return "", fmt.Errorf("%w: %q", core.ErrUnsupportedEncoding, encoding)
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: bad base64: %v", core.ErrInvalidInput, err)
	}
	return string(raw), nil
}

// EncodeHistory encodes every message in order, keeping its role.
func EncodeHistory(msgs []models.Message) []models.EncodedHistoryItem {
	out := make([]models.EncodedHistoryItem, 0, len(msgs))
	for _, m := range msgs {
		enc := Encode(m.Content)
		out = append(out, models.EncodedHistoryItem{
			Role:     m.Role,
			Content:  enc.Content,
			Encoding: enc.Encoding,
		})
	}
	return out
}

// DecodeHistory turns encoded items back into role/content messages.
func DecodeHistory(items []models.EncodedHistoryItem) ([]models.Message, error) {
	out := make([]models.Message, 0, len(items))
	for i, it := range items {
		text, err := Decode(it.Content, it.Encoding)
		if err != nil {
			return nil, fmt.Errorf("history item %d: %w", i, err)
		}
		out = append(out, models.Message{Role: it.Role, Content: text})
	}
	return out, nil
}
