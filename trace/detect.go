package trace

// DetectFramework runs the priority-ordered predicate cascade over a raw
// record and returns the matching framework tag, or FrameworkGeneric if
// none match. String records are always Generic.
func DetectFramework(r Record) Framework {
	if !r.isMap() {
		return FrameworkGeneric
	}
	m := r.Map

	if _, ok := m["intermediate_steps"]; ok {
		return FrameworkLangChain
	}
	if _, ok := m["crew_output"]; ok {
		return FrameworkCrewAI
	}
	if _, ok := m["tasks_output"]; ok {
		return FrameworkCrewAI
	}
	if choices, ok := m["choices"].([]any); ok && len(choices) > 0 {
		if first, ok := choices[0].(map[string]any); ok {
			if _, ok := first["message"]; ok {
				return FrameworkOpenAI
			}
		}
	}
	if _, hasContent := m["content"]; hasContent {
		if _, hasRole := m["role"]; hasRole {
			return FrameworkAnthropic
		}
	}
	return FrameworkGeneric
}
