package httpapi

func openapiSpec() map[string]any {
	idParam := []map[string]any{{"name": "id", "in": "path", "required": true, "schema": map[string]any{"type": "string"}}}
	return map[string]any{
		"openapi": "3.0.3",
		"info": map[string]any{
			"title":   "incidents",
			"version": "1.0.0",
		},
		"components": map[string]any{
			"securitySchemes": map[string]any{
				"apiKey": map[string]any{"type": "apiKey", "in": "header", "name": "X-API-Key"},
			},
		},
		"paths": map[string]any{
			"/v1/incidents": map[string]any{
				"get": map[string]any{
					"summary": "List incident summaries",
					"parameters": []map[string]any{
						{"name": "status", "in": "query", "schema": map[string]any{"type": "string", "enum": []string{"OPEN", "IN_PROGRESS", "RESOLVED", "CLOSED"}}},
						{"name": "tag", "in": "query", "schema": map[string]any{"type": "string"}},
						{"name": "after", "in": "query", "schema": map[string]any{"type": "string"}},
						{"name": "limit", "in": "query", "schema": map[string]any{"type": "integer", "maximum": 1000}},
					},
				},
				"post": map[string]any{"summary": "Create incident"},
			},
			"/v1/incidents/{id}": map[string]any{
				"parameters": idParam,
				"get":        map[string]any{"summary": "Get incident"},
				"patch":      map[string]any{"summary": "Partially update incident; returns the incident and the net field changes"},
				"delete":     map[string]any{"summary": "Delete incident"},
			},
			"/v1/incidents/{id}/audits": map[string]any{
				"parameters": idParam,
				"get":        map[string]any{"summary": "List audit records, newest first"},
			},
		},
	}
}
