package outbox

const sessionCompletedSchema = `{
  "type": "object",
  "title": "SessionCompleted",
  "properties": {
    "session_id": {"type": "string"},
    "tenant_id": {"type": "string"},
    "user_id": {"type": "string"},
    "kind": {"type": "string"},
    "started_at": {"type": "string", "format": "date-time"},
    "ended_at": {"type": ["string", "null"], "format": "date-time"},
    "planned_min": {"type": "integer"},
    "duration_sec": {"type": "integer"},
    "interruptions": {"type": "integer"},
    "source": {"type": "string"}
  },
  "required": ["session_id", "tenant_id", "user_id", "kind", "started_at", "planned_min", "duration_sec", "interruptions"],
  "additionalProperties": false
}`

const sessionStateChangedSchema = `{
  "type": "object",
  "title": "SessionStateChanged",
  "properties": {
    "session_id": {"type": "string"},
    "tenant_id": {"type": "string"},
    "user_id": {"type": "string"},
    "state": {"type": "string"},
    "event": {"type": "string"},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["session_id", "tenant_id", "user_id", "state", "event", "occurred_at"],
  "additionalProperties": false
}`
