package weather

type searchLocationsArgs struct {
	Query string `json:"query"`
	Count int    `json:"count,omitempty"`
}

type currentWeatherArgs struct {
	Location string `json:"location"`
	Units    string `json:"units,omitempty"`
}

type forecastArgs struct {
	Location string `json:"location"`
	Days     int    `json:"days,omitempty"`
	Units    string `json:"units,omitempty"`
}

type historicalWeatherArgs struct {
	Location  string `json:"location"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Units     string `json:"units,omitempty"`
}

type growingDegreeDaysArgs struct {
	Location        string   `json:"location"`
	StartDate       string   `json:"start_date"`
	EndDate         string   `json:"end_date"`
	BaseTemperature *float64 `json:"base_temperature,omitempty"`
}

var searchLocationsSchema = []byte(`{
  "type": "object",
  "properties": {
    "query": { "type": "string", "description": "Place name to look up, e.g. a city or town" },
    "count": {
      "type": "integer",
      "minimum": 1,
      "maximum": 10,
      "description": "Maximum number of matches to return (default 5)"
    }
  },
  "required": ["query"]
}`)

var currentWeatherSchema = []byte(`{
  "type": "object",
  "properties": {
    "location": { "type": "string", "description": "Place name to report on, e.g. 'Manila' or 'Vienna, Austria'" },
    "units": {
      "type": "string",
      "enum": ["metric", "imperial"],
      "description": "Measurement system for the report (default metric)"
    }
  },
  "required": ["location"]
}`)

var forecastSchema = []byte(`{
  "type": "object",
  "properties": {
    "location": { "type": "string", "description": "Place name to report on" },
    "days": {
      "type": "integer",
      "minimum": 1,
      "maximum": 16,
      "description": "Number of forecast days (default 7)"
    },
    "units": {
      "type": "string",
      "enum": ["metric", "imperial"],
      "description": "Measurement system for the report (default metric)"
    }
  },
  "required": ["location"]
}`)

var historicalWeatherSchema = []byte(`{
  "type": "object",
  "properties": {
    "location": { "type": "string", "description": "Place name to report on" },
    "start_date": { "type": "string", "description": "First day of the range, YYYY-MM-DD" },
    "end_date": { "type": "string", "description": "Last day of the range, YYYY-MM-DD" },
    "units": {
      "type": "string",
      "enum": ["metric", "imperial"],
      "description": "Measurement system for the report (default metric)"
    }
  },
  "required": ["location", "start_date", "end_date"]
}`)

var growingDegreeDaysSchema = []byte(`{
  "type": "object",
  "properties": {
    "location": { "type": "string", "description": "Place name to report on" },
    "start_date": { "type": "string", "description": "First day of the range, YYYY-MM-DD" },
    "end_date": { "type": "string", "description": "Last day of the range, YYYY-MM-DD" },
    "base_temperature": {
      "type": "number",
      "description": "Base temperature in degrees Celsius below which no growth accumulates (default 10)"
    }
  },
  "required": ["location", "start_date", "end_date"]
}`)
