package extract

// wireIntent is the JSON shape the model must emit. It is validated
// against intentSchemaJSON before conversion, so the fields here stay
// in lockstep with the schema document.
type wireIntent struct {
	Operation          string              `json:"operation"`
	Metric             string              `json:"metric,omitempty"`
	Filters            map[string][]string `json:"filters,omitempty"`
	AmountRange        *wireRange          `json:"amount_range,omitempty"`
	GroupBy            []string            `json:"group_by,omitempty"`
	Time               *wireTime           `json:"time,omitempty"`
	Granularity        string              `json:"granularity,omitempty"`
	Segments           []wireSegment       `json:"segments,omitempty"`
	TopK               int                 `json:"top_k,omitempty"`
	Confidence         float64             `json:"confidence"`
	NeedsClarification bool                `json:"needs_clarification,omitempty"`
	Reason             string              `json:"reason,omitempty"`
}

type wireRange struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

type wireTime struct {
	Period string `json:"period,omitempty"`
	From   string `json:"from,omitempty"`
	To     string `json:"to,omitempty"`
}

type wireSegment struct {
	Name    string              `json:"name,omitempty"`
	Filters map[string][]string `json:"filters"`
}

// intentSchemaJSON is the closed contract for model output. Anything
// the schema rejects fails the request; there is no repair loop.
const intentSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "additionalProperties": false,
  "required": ["operation", "confidence"],
  "properties": {
    "operation": {
      "type": "string",
      "enum": ["failure_rate", "aggregate", "compare_segments", "time_series", "top_failure_codes", "executive_summary", "unsupported"]
    },
    "metric": {"type": "string"},
    "filters": {
      "type": "object",
      "additionalProperties": {
        "type": "array",
        "items": {"type": "string"},
        "minItems": 1
      }
    },
    "amount_range": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "min": {"type": "number"},
        "max": {"type": "number"}
      }
    },
    "group_by": {
      "type": "array",
      "items": {"type": "string"}
    },
    "time": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "period": {"type": "string", "enum": ["last_7_days", "last_30_days", "last_90_days"]},
        "from": {"type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}$"},
        "to": {"type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}$"}
      }
    },
    "granularity": {"type": "string", "enum": ["day", "week", "month"]},
    "segments": {
      "type": "array",
      "maxItems": 2,
      "items": {
        "type": "object",
        "additionalProperties": false,
        "required": ["filters"],
        "properties": {
          "name": {"type": "string"},
          "filters": {
            "type": "object",
            "additionalProperties": {
              "type": "array",
              "items": {"type": "string"},
              "minItems": 1
            }
          }
        }
      }
    },
    "top_k": {"type": "integer", "minimum": 1, "maximum": 20},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1},
    "needs_clarification": {"type": "boolean"},
    "reason": {"type": "string"}
  }
}`
