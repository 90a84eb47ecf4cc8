package api

import "fmt"

var validRoles = map[Role]bool{
	RoleSystem:    true,
	RoleUser:      true,
	RoleAssistant: true,
	RoleTool:      true,
}

// ValidateChatRequest checks the structural invariants of a chat request.
// It returns an *APIError describing the first violation found, or nil.
func ValidateChatRequest(req *ChatRequest) *APIError {
	if req.Model == "" {
		return NewInvalidRequestError("model", "model is required")
	}
	if len(req.Messages) == 0 {
		return NewInvalidRequestError("messages", "messages must not be empty")
	}
	for i, msg := range req.Messages {
		if err := validateMessage(i, msg); err != nil {
			return err
		}
	}
	if req.Conversation != "" && !ValidateConversationID(req.Conversation) {
		return NewInvalidRequestError("conversation", "malformed conversation ID")
	}
	if req.Temperature != nil && (*req.Temperature < 0 || *req.Temperature > 2) {
		return NewInvalidRequestError("temperature", "temperature must be between 0 and 2")
	}
	if req.TopP != nil && (*req.TopP < 0 || *req.TopP > 1) {
		return NewInvalidRequestError("top_p", "top_p must be between 0 and 1")
	}
	if req.MaxTokens != nil && *req.MaxTokens < 1 {
		return NewInvalidRequestError("max_tokens", "max_tokens must be positive")
	}
	if req.MaxToolTurns != nil && *req.MaxToolTurns < 0 {
		return NewInvalidRequestError("max_tool_turns", "max_tool_turns must not be negative")
	}
	if err := validateTools(req.Tools); err != nil {
		return err
	}
	if req.ToolChoice != nil {
		if err := validateToolChoice(req.ToolChoice, req.Tools); err != nil {
			return err
		}
	}
	return nil
}

func validateMessage(i int, msg Message) *APIError {
	param := fmt.Sprintf("messages[%d]", i)
	if !validRoles[msg.Role] {
		return NewInvalidRequestError(param+".role", fmt.Sprintf("unknown role %q", msg.Role))
	}
	switch msg.Role {
	case RoleTool:
		if msg.ToolCallID == "" {
			return NewInvalidRequestError(param+".tool_call_id", "tool message requires tool_call_id")
		}
	case RoleAssistant:
		if msg.Content == "" && len(msg.Parts) == 0 && len(msg.ToolCalls) == 0 {
			return NewInvalidRequestError(param, "assistant message must have content or tool_calls")
		}
	default:
		if msg.Content == "" && len(msg.Parts) == 0 {
			return NewInvalidRequestError(param+".content", "message content must not be empty")
		}
	}
	for j, p := range msg.Parts {
		switch p.Type {
		case "text":
		case "image":
			if p.URL == "" && p.Data == "" {
				return NewInvalidRequestError(
					fmt.Sprintf("%s.parts[%d]", param, j),
					"image part requires url or data")
			}
		default:
			return NewInvalidRequestError(
				fmt.Sprintf("%s.parts[%d].type", param, j),
				fmt.Sprintf("unknown content part type %q", p.Type))
		}
	}
	return nil
}

func validateTools(tools []ToolDefinition) *APIError {
	seen := make(map[string]bool, len(tools))
	for i, t := range tools {
		param := fmt.Sprintf("tools[%d]", i)
		if t.Type != "" && t.Type != "function" {
			return NewInvalidRequestError(param+".type", fmt.Sprintf("unsupported tool type %q", t.Type))
		}
		if t.Name == "" {
			return NewInvalidRequestError(param+".name", "tool name is required")
		}
		if seen[t.Name] {
			return NewInvalidRequestError(param+".name", fmt.Sprintf("duplicate tool name %q", t.Name))
		}
		seen[t.Name] = true
	}
	return nil
}

func validateToolChoice(tc *ToolChoice, tools []ToolDefinition) *APIError {
	if tc.Mode != "" {
		switch tc.Mode {
		case "auto", "required", "none":
			return nil
		}
		return NewInvalidRequestError("tool_choice", fmt.Sprintf("unknown tool_choice %q", tc.Mode))
	}
	if tc.Function == nil {
		return NewInvalidRequestError("tool_choice", "tool_choice must be a string or a function selection")
	}
	for _, t := range tools {
		if t.Name == tc.Function.Name {
			return nil
		}
	}
	return NewInvalidRequestError("tool_choice", fmt.Sprintf("tool %q is not defined in tools", tc.Function.Name))
}
