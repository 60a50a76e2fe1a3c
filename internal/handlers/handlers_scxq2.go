package handlers

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/ghostkernel/tapehost/internal/core"
	"github.com/ghostkernel/tapehost/internal/scxq2"
)

func dataArg(input map[string]interface{}) ([]byte, *core.HostError) {
	v, ok := input["data"].(string)
	if !ok {
		return nil, core.NewError(core.ErrBadRequest, "data is required", nil)
	}
	return []byte(v), nil
}

func handleSCXQ2Encode(_ context.Context, _ *Host, input map[string]interface{}) (map[string]interface{}, *core.HostError) {
	data, hErr := dataArg(input)
	if hErr != nil {
		return nil, hErr
	}
	encoded := scxq2.Encode(data)
	return map[string]interface{}{
		"encoded":       base64.StdEncoding.EncodeToString(encoded),
		"original_size": len(data),
		"encoded_size":  len(encoded),
		"ratio":         scxq2.Ratio(data, encoded),
	}, nil
}

func handleSCXQ2Decode(_ context.Context, _ *Host, input map[string]interface{}) (map[string]interface{}, *core.HostError) {
	encodedStr, ok := input["encoded"].(string)
	if !ok {
		return nil, core.NewError(core.ErrBadRequest, "encoded is required", nil)
	}
	encoded, err := base64.StdEncoding.DecodeString(encodedStr)
	if err != nil {
		return nil, core.NewError(core.ErrBadRequest, fmt.Sprintf("encoded is not valid base64: %v", err), nil)
	}
	decoded, err := scxq2.Decode(encoded)
	if err != nil {
		return nil, core.NewError(core.ErrBadRequest, err.Error(), nil)
	}
	return map[string]interface{}{"data": string(decoded)}, nil
}

func handleSCXQ2Stats(_ context.Context, _ *Host, input map[string]interface{}) (map[string]interface{}, *core.HostError) {
	data, hErr := dataArg(input)
	if hErr != nil {
		return nil, hErr
	}
	encoded := scxq2.Encode(data)
	return map[string]interface{}{
		"original_size": len(data),
		"encoded_size":  len(encoded),
		"ratio":         scxq2.Ratio(data, encoded),
	}, nil
}
