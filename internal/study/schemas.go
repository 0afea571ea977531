package study

import "github.com/dukerupert/tareas/internal/normalize"

var topicSchema = normalize.MustCompileSchema("topic", `{
	"type": "object",
	"required": ["explanation"],
	"properties": {
		"explanation": {"type": "string", "minLength": 1},
		"keyPoints": {"type": "array", "items": {"type": "string"}},
		"examples": {"type": "array", "items": {"type": "string"}}
	}
}`)

var resourcesSchema = normalize.MustCompileSchema("resources", `{
	"type": "object",
	"properties": {
		"videos": {"type": "array", "items": {"$ref": "#/$defs/link"}},
		"documents": {"type": "array", "items": {"$ref": "#/$defs/link"}},
		"websites": {"type": "array", "items": {"$ref": "#/$defs/link"}}
	},
	"anyOf": [
		{"required": ["videos"]},
		{"required": ["documents"]},
		{"required": ["websites"]}
	],
	"$defs": {
		"link": {
			"type": "object",
			"required": ["title"],
			"properties": {
				"title": {"type": "string"},
				"description": {"type": "string"},
				"url": {"type": "string"},
				"type": {"type": "string"}
			}
		}
	}
}`)

var tipsSchema = normalize.MustCompileSchema("tips", `{
	"type": "object",
	"required": ["tips"],
	"properties": {
		"tips": {"type": "array", "minItems": 1, "items": {"type": "string"}}
	}
}`)

var flashcardsSchema = normalize.MustCompileSchema("flashcards", `{
	"type": "object",
	"required": ["flashcards"],
	"properties": {
		"flashcards": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["front", "back"],
				"properties": {
					"front": {"type": "string"},
					"back": {"type": "string"},
					"difficulty": {"enum": ["easy", "medium", "hard"]}
				}
			}
		}
	}
}`)

var studyPlanSchema = normalize.MustCompileSchema("study_plan", `{
	"type": "object",
	"required": ["study_plan"],
	"properties": {
		"study_plan": {
			"type": "object",
			"required": ["technique", "steps"],
			"properties": {
				"technique": {"type": "string"},
				"description": {"type": "string"},
				"steps": {"type": "array", "items": {"type": "string"}},
				"duration": {"type": "string"}
			}
		}
	}
}`)

var examSchema = normalize.MustCompileSchema("exam", `{
	"type": "object",
	"required": ["questions"],
	"properties": {
		"questions": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["question"],
				"properties": {
					"id": {"type": "integer"},
					"type": {"enum": ["multiple-choice", "true-false", "short-answer", "essay"]},
					"question": {"type": "string", "minLength": 1},
					"options": {"type": "array", "items": {"type": ["string", "number", "boolean"]}},
					"correctAnswer": {"type": ["string", "number", "boolean", "array"]},
					"explanation": {"type": "string"},
					"difficulty": {"enum": ["easy", "medium", "hard"]},
					"points": {"type": "number", "minimum": 0}
				}
			}
		}
	}
}`)
