// Package jsoncodec is the JSON codec for client frames. It uses sonic with
// the standard-library compatible configuration, so field order and escaping
// match encoding/json.
package jsoncodec

import (
	"github.com/bytedance/sonic"
)

var defaultConfig = sonic.ConfigStd

func Marshal(v any) ([]byte, error) {
	return defaultConfig.Marshal(v)
}

func Unmarshal(data []byte, v any) error {
	return defaultConfig.Unmarshal(data, v)
}
