package outbox

const timesheetStartedSchema = `{
  "type": "object",
  "title": "TimesheetStarted",
  "properties": {
    "timesheet_id": {"type": "string", "format": "uuid"},
    "user_id": {"type": "integer"},
    "activity_id": {"type": "integer"},
    "start_time": {"type": "string", "format": "date-time"},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["timesheet_id", "user_id", "activity_id", "start_time", "occurred_at"],
  "additionalProperties": false
}`

const timesheetStoppedSchema = `{
  "type": "object",
  "title": "TimesheetStopped",
  "properties": {
    "timesheet_id": {"type": "string", "format": "uuid"},
    "user_id": {"type": "integer"},
    "activity_id": {"type": "integer"},
    "start_time": {"type": "string", "format": "date-time"},
    "end_time": {"type": "string", "format": "date-time"},
    "duration_minutes": {"type": "integer"},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["timesheet_id", "user_id", "activity_id", "start_time", "end_time", "duration_minutes", "occurred_at"],
  "additionalProperties": false
}`

const timesheetDeletedSchema = `{
  "type": "object",
  "title": "TimesheetDeleted",
  "properties": {
    "timesheet_id": {"type": "string", "format": "uuid"},
    "user_id": {"type": "integer"},
    "activity_id": {"type": "integer"},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["timesheet_id", "user_id", "activity_id", "occurred_at"],
  "additionalProperties": false
}`
