package models

// JourneySchema is the JSON Schema every journey document must satisfy
// before it is unmarshalled. Structural mistakes (wrong types, missing
// required keys) surface here with a path; semantic checks (weights,
// trigger cycles, known products) follow in Validate.
const JourneySchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "Journey Specification",
  "type": "object",
  "required": ["name", "duration_days", "products"],
  "properties": {
    "name": {"type": "string", "minLength": 3},
    "description": {"type": "string"},
    "duration_days": {"type": "integer", "minimum": 1},
    "products": {
      "type": "array",
      "minItems": 1,
      "items": {"type": "string", "enum": ["patientsim", "membersim", "rxmembersim", "trialsim"]}
    },
    "phases": {"type": "array", "items": {"$ref": "#/definitions/phase"}},
    "events": {"type": "array", "items": {"$ref": "#/definitions/event"}},
    "metadata": {"type": "object"}
  },
  "definitions": {
    "phase": {
      "type": "object",
      "required": ["name", "duration_days", "events"],
      "properties": {
        "name": {"type": "string"},
        "duration_days": {"type": "integer", "minimum": 1},
        "entry_condition": {"$ref": "#/definitions/condition"},
        "events": {"type": "array", "minItems": 1, "items": {"$ref": "#/definitions/event"}}
      }
    },
    "event": {
      "type": "object",
      "required": ["event_type"],
      "properties": {
        "event_type": {"type": "string"},
        "product": {"type": "string"},
        "delay": {"$ref": "#/definitions/delay"},
        "parameters": {"type": "object"},
        "condition": {"$ref": "#/definitions/condition"},
        "skill_ref": {"type": "string"},
        "fallback": {"type": "object"},
        "repeat": {
          "type": "object",
          "required": ["count"],
          "properties": {
            "count": {"type": "integer", "minimum": 1},
            "interval_days": {"type": "integer", "minimum": 1}
          }
        },
        "triggers": {"type": "array", "items": {"$ref": "#/definitions/trigger"}}
      }
    },
    "delay": {
      "type": "object",
      "properties": {
        "days": {"type": "integer", "minimum": 0},
        "min_days": {"type": "integer", "minimum": 0},
        "max_days": {"type": "integer", "minimum": 0},
        "distribution": {"type": "string", "enum": ["uniform", "normal"]},
        "relative_to": {"type": "string", "enum": ["phase_start", "previous_event", "journey_start"]}
      }
    },
    "condition": {
      "type": "object",
      "required": ["field", "operator"],
      "properties": {
        "field": {"type": "string"},
        "operator": {"type": "string", "enum": ["eq", "ne", "gt", "lt", "in", "contains"]},
        "value": {}
      }
    },
    "trigger": {
      "type": "object",
      "required": ["target_event_type"],
      "properties": {
        "target_event_type": {"type": "string"},
        "target_product": {"type": "string"},
        "delay": {"$ref": "#/definitions/delay"},
        "priority": {"type": "integer"},
        "condition": {"$ref": "#/definitions/condition"},
        "parameters": {"type": "object"}
      }
    }
  }
}`
