package provider

import (
	"github.com/openconduit/conduit/pkg/api"
)

// ValidateCapabilities checks whether the given request is compatible with
// the provider's declared capabilities. Returns an APIError identifying
// the specific unsupported feature, or nil if the request is compatible.
func ValidateCapabilities(caps Capabilities, req *api.ChatRequest) *api.APIError {
	if req.Stream && !caps.Streaming {
		return api.NewInvalidRequestError("stream",
			"the configured provider does not support streaming responses")
	}

	if len(req.Tools) > 0 && !caps.ToolCalling {
		return api.NewInvalidRequestError("tools",
			"the configured provider does not support tool calling")
	}

	if !caps.Vision {
		for _, msg := range req.Messages {
			if msg.IsMultimodal() {
				return api.NewInvalidRequestError("messages",
					"the configured provider does not support image inputs")
			}
		}
	}

	if len(caps.SupportedModels) > 0 {
		for _, m := range caps.SupportedModels {
			if m == req.Model {
				return nil
			}
		}
		return api.NewInvalidRequestError("model",
			"model is not served by the configured provider")
	}

	return nil
}
