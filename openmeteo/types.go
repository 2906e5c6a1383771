package openmeteo

// Location is one geocoding match.
type Location struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Country     string  `json:"country"`
	CountryCode string  `json:"country_code"`
	Admin1      string  `json:"admin1"`
	Timezone    string  `json:"timezone"`
}

type geocodingResponse struct {
	Results []Location `json:"results"`
}

// CurrentWeather mirrors the "current" block of a forecast response.
type CurrentWeather struct {
	Time                string  `json:"time"`
	Temperature         float64 `json:"temperature_2m"`
	RelativeHumidity    float64 `json:"relative_humidity_2m"`
	ApparentTemperature float64 `json:"apparent_temperature"`
	Precipitation       float64 `json:"precipitation"`
	WeatherCode         int     `json:"weather_code"`
	WindSpeed           float64 `json:"wind_speed_10m"`
	WindDirection       float64 `json:"wind_direction_10m"`
	PressureMSL         float64 `json:"pressure_msl"`
	CloudCover          float64 `json:"cloud_cover"`
}

// CurrentUnits carries the unit labels the API reports for the current
// block, e.g. "°C" and "km/h".
type CurrentUnits struct {
	Temperature   string `json:"temperature_2m"`
	WindSpeed     string `json:"wind_speed_10m"`
	Precipitation string `json:"precipitation"`
	PressureMSL   string `json:"pressure_msl"`
}

// DailyForecast mirrors the "daily" block of a forecast response. All
// slices are indexed by day, parallel to Time.
type DailyForecast struct {
	Time                        []string  `json:"time"`
	WeatherCode                 []int     `json:"weather_code"`
	TemperatureMax              []float64 `json:"temperature_2m_max"`
	TemperatureMin              []float64 `json:"temperature_2m_min"`
	PrecipitationSum            []float64 `json:"precipitation_sum"`
	PrecipitationProbabilityMax []float64 `json:"precipitation_probability_max"`
	WindSpeedMax                []float64 `json:"wind_speed_10m_max"`
	Sunrise                     []string  `json:"sunrise"`
	Sunset                      []string  `json:"sunset"`
}

// DailyUnits carries the unit labels for daily values, shared by forecast
// and archive responses.
type DailyUnits struct {
	TemperatureMax   string `json:"temperature_2m_max"`
	TemperatureMin   string `json:"temperature_2m_min"`
	TemperatureMean  string `json:"temperature_2m_mean"`
	PrecipitationSum string `json:"precipitation_sum"`
	WindSpeedMax     string `json:"wind_speed_10m_max"`
}

// ForecastResponse is a forecast call result with current conditions and a
// daily outlook.
type ForecastResponse struct {
	Latitude     float64        `json:"latitude"`
	Longitude    float64        `json:"longitude"`
	Timezone     string         `json:"timezone"`
	Elevation    float64        `json:"elevation"`
	Current      CurrentWeather `json:"current"`
	CurrentUnits CurrentUnits   `json:"current_units"`
	Daily        DailyForecast  `json:"daily"`
	DailyUnits   DailyUnits     `json:"daily_units"`
}

// ArchiveDaily mirrors the "daily" block of an archive response. The
// archive lags a few days behind real time, so values are pointers and nil
// marks a day that has not been filled in yet.
type ArchiveDaily struct {
	Time             []string   `json:"time"`
	WeatherCode      []*int     `json:"weather_code"`
	TemperatureMax   []*float64 `json:"temperature_2m_max"`
	TemperatureMin   []*float64 `json:"temperature_2m_min"`
	TemperatureMean  []*float64 `json:"temperature_2m_mean"`
	PrecipitationSum []*float64 `json:"precipitation_sum"`
	WindSpeedMax     []*float64 `json:"wind_speed_10m_max"`
}

// ArchiveResponse is a historical weather call result.
type ArchiveResponse struct {
	Latitude   float64      `json:"latitude"`
	Longitude  float64      `json:"longitude"`
	Timezone   string       `json:"timezone"`
	Daily      ArchiveDaily `json:"daily"`
	DailyUnits DailyUnits   `json:"daily_units"`
}
