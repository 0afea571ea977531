package assist

import "github.com/dukerupert/tareas/internal/normalize"

var prioritySchema = normalize.MustCompileSchema("priority", `{
	"type": "object",
	"required": ["suggested"],
	"properties": {
		"suggested": {"enum": ["urgent", "high", "medium", "low"]},
		"reasoning": {"type": "string"},
		"confidence": {"type": "number", "minimum": 0, "maximum": 1}
	}
}`)

var expansionSchema = normalize.MustCompileSchema("expansion", `{
	"type": "object",
	"required": ["title"],
	"properties": {
		"title": {"type": "string", "minLength": 1},
		"description": {"type": "string"},
		"suggestedTags": {"type": "array", "items": {"type": "string"}},
		"estimatedDuration": {"type": "string"},
		"detailedSteps": {"type": "array", "items": {"type": "string"}}
	}
}`)

var tagsSchema = normalize.MustCompileSchema("tags", `{
	"type": "object",
	"required": ["tags"],
	"properties": {
		"tags": {"type": "array", "items": {"type": "string"}}
	}
}`)

var subtasksSchema = normalize.MustCompileSchema("subtasks", `{
	"type": "object",
	"required": ["subtasks"],
	"properties": {
		"subtasks": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["title"],
				"properties": {
					"title": {"type": "string", "minLength": 1},
					"description": {"type": "string"},
					"estimatedTime": {"type": "string"},
					"order": {"type": "integer"}
				}
			}
		}
	}
}`)

var conflictsSchema = normalize.MustCompileSchema("conflicts", `{
	"type": "object",
	"required": ["conflicts"],
	"properties": {
		"conflicts": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["date"],
				"properties": {
					"date": {"type": "string"},
					"tasks": {"type": "array"},
					"reason": {"type": "string"},
					"suggestion": {"type": "string"}
				}
			}
		}
	}
}`)

var summarySchema = normalize.MustCompileSchema("summary", `{
	"type": "object",
	"properties": {
		"highlights": {"type": "array", "items": {"type": "string"}},
		"recommendations": {"type": "array", "items": {"type": "string"}},
		"motivationalMessage": {"type": "string"}
	},
	"anyOf": [
		{"required": ["motivationalMessage"]},
		{"required": ["recommendations"]}
	]
}`)

var productivitySchema = normalize.MustCompileSchema("productivity", `{
	"type": "object",
	"required": ["suggestions"],
	"properties": {
		"mostProductiveTime": {"type": "string"},
		"suggestions": {"type": "array", "items": {"type": "string"}}
	}
}`)

var chatSchema = normalize.MustCompileSchema("chat", `{
	"type": "object",
	"required": ["action", "task"],
	"properties": {
		"action": {"const": "create_task"},
		"task": {
			"type": "object",
			"required": ["title"],
			"properties": {
				"title": {"type": "string", "minLength": 1},
				"priority": {"type": "string"},
				"due_date": {"type": ["string", "null"]}
			}
		}
	}
}`)
