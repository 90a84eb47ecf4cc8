package tools

// FilterResult holds the outcome of filtering tool calls against
// allowed_tools.
type FilterResult struct {
	// Allowed contains tool calls that passed the filter.
	Allowed []Call

	// Rejected contains error results for tool calls that were not in
	// the allowed list, to feed back to the model.
	Rejected []Result
}

// FilterAllowed checks each tool call against the allowed list. An empty
// or nil allowed list permits everything.
func FilterAllowed(calls []Call, allowed []string) FilterResult {
	if len(allowed) == 0 {
		return FilterResult{Allowed: calls}
	}

	set := make(map[string]bool, len(allowed))
	for _, name := range allowed {
		set[name] = true
	}

	var result FilterResult
	for _, call := range calls {
		if set[call.Name] {
			result.Allowed = append(result.Allowed, call)
		} else {
			result.Rejected = append(result.Rejected, Result{
				CallID:  call.ID,
				Output:  "tool " + call.Name + " is not in the allowed_tools list",
				IsError: true,
			})
		}
	}
	return result
}
