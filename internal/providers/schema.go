package providers

// CleanSchemaForProvider strips JSON Schema keywords a given provider's tool
// API rejects or ignores, and recurses into nested object/array schemas.
// Anthropic and most OpenAI-compatible backends reject top-level "$schema"
// and "$id"; for "gemini" and "dashscope" "additionalProperties" is stripped
// too. Other keywords (e.g. "exclusiveMinimum"/"exclusiveMaximum") pass
// through unchanged.
func CleanSchemaForProvider(provider string, schema map[string]interface{}) map[string]interface{} {
	if schema == nil {
		return map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
	}
	cleaned := cleanSchemaMap(provider, schema)
	if _, ok := cleaned["type"]; !ok {
		cleaned["type"] = "object"
	}
	if _, ok := cleaned["properties"]; !ok {
		if t, _ := cleaned["type"].(string); t == "object" {
			cleaned["properties"] = map[string]interface{}{}
		}
	}
	return cleaned
}

// cleanSchemaMap strips the rejected keywords from one nested map and
// recurses. Unlike the top level it adds no default "type" key, since a
// nested map may be a "properties" map rather than a schema; an empty
// "properties" is added only where "type" is already "object".
func cleanSchemaMap(provider string, schema map[string]interface{}) map[string]interface{} {
	cleaned := make(map[string]interface{}, len(schema))
	for k, v := range schema {
		switch k {
		case "$schema", "$id":
			continue
		case "additionalProperties":
			if provider == "gemini" || provider == "dashscope" {
				continue
			}
		}
		cleaned[k] = cleanSchemaValue(provider, v)
	}
	if _, ok := cleaned["properties"]; !ok {
		if t, _ := cleaned["type"].(string); t == "object" {
			cleaned["properties"] = map[string]interface{}{}
		}
	}
	return cleaned
}

func cleanSchemaValue(provider string, v interface{}) interface{} {
	switch vv := v.(type) {
	case map[string]interface{}:
		return cleanSchemaMap(provider, vv)
	case []interface{}:
		out := make([]interface{}, len(vv))
		for i, e := range vv {
			out[i] = cleanSchemaValue(provider, e)
		}
		return out
	default:
		return v
	}
}

// CleanToolSchemas translates tool definitions into OpenAI-compatible
// function-calling format, cleaning each tool's parameter schema for the
// target provider along the way.
func CleanToolSchemas(provider string, defs []ToolDefinition) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(defs))
	for _, d := range defs {
		out = append(out, map[string]interface{}{
			"type": "function",
			"function": map[string]interface{}{
				"name":        d.Function.Name,
				"description": d.Function.Description,
				"parameters":  CleanSchemaForProvider(provider, d.Function.Parameters),
			},
		})
	}
	return out
}
