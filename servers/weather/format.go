package weather

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shayrylmae/Weather-MCP-Server/openmeteo"
)

const dateLayout = "2006-01-02"

// maxRangeDays bounds historical queries; longer ranges produce reports too
// large to be useful as tool output.
const maxRangeDays = 92

type dateRange struct {
	start time.Time
	end   time.Time
}

// days counts the range inclusively, so a single-day range is 1.
func (r dateRange) days() int {
	return int(r.end.Sub(r.start)/(24*time.Hour)) + 1
}

func parseDateRange(startDate, endDate string) (dateRange, error) {
	start, err := time.Parse(dateLayout, startDate)
	if err != nil {
		return dateRange{}, fmt.Errorf("invalid start_date %q: dates use YYYY-MM-DD", startDate)
	}
	end, err := time.Parse(dateLayout, endDate)
	if err != nil {
		return dateRange{}, fmt.Errorf("invalid end_date %q: dates use YYYY-MM-DD", endDate)
	}
	if end.Before(start) {
		return dateRange{}, fmt.Errorf("start_date %s is after end_date %s", startDate, endDate)
	}
	r := dateRange{start: start, end: end}
	if r.days() > maxRangeDays {
		return dateRange{}, fmt.Errorf("date range spans %d days, the maximum is %d", r.days(), maxRangeDays)
	}
	if today := time.Now().UTC().Truncate(24 * time.Hour); end.After(today) {
		return dateRange{}, fmt.Errorf("end_date %s is in the future", endDate)
	}
	return r, nil
}

// weatherDescriptions maps WMO interpretation codes, as reported in
// weather_code fields, to human-readable conditions.
var weatherDescriptions = map[int]string{
	0:  "clear sky",
	1:  "mainly clear",
	2:  "partly cloudy",
	3:  "overcast",
	45: "fog",
	48: "depositing rime fog",
	51: "light drizzle",
	53: "moderate drizzle",
	55: "dense drizzle",
	56: "light freezing drizzle",
	57: "dense freezing drizzle",
	61: "slight rain",
	63: "moderate rain",
	65: "heavy rain",
	66: "light freezing rain",
	67: "heavy freezing rain",
	71: "slight snowfall",
	73: "moderate snowfall",
	75: "heavy snowfall",
	77: "snow grains",
	80: "slight rain showers",
	81: "moderate rain showers",
	82: "violent rain showers",
	85: "slight snow showers",
	86: "heavy snow showers",
	95: "thunderstorm",
	96: "thunderstorm with slight hail",
	99: "thunderstorm with heavy hail",
}

func weatherDescription(code int) string {
	if desc, ok := weatherDescriptions[code]; ok {
		return desc
	}
	return fmt.Sprintf("unknown conditions (code %d)", code)
}

var compassPoints = [...]string{
	"N", "NNE", "NE", "ENE", "E", "ESE", "SE", "SSE",
	"S", "SSW", "SW", "WSW", "W", "WNW", "NW", "NNW",
}

func compassDirection(degrees float64) string {
	deg := math.Mod(degrees, 360)
	if deg < 0 {
		deg += 360
	}
	return compassPoints[int(math.Round(deg/22.5))%16]
}

func locationLabel(loc openmeteo.Location) string {
	parts := []string{loc.Name}
	if loc.Admin1 != "" && loc.Admin1 != loc.Name {
		parts = append(parts, loc.Admin1)
	}
	if loc.Country != "" {
		parts = append(parts, loc.Country)
	}
	return strings.Join(parts, ", ")
}

// timeOfDay strips the date part of an ISO8601 local timestamp like
// "2025-03-01T06:11".
func timeOfDay(s string) string {
	if i := strings.IndexByte(s, 'T'); i >= 0 {
		return s[i+1:]
	}
	return s
}

func currentReport(loc openmeteo.Location, res *openmeteo.ForecastResponse) string {
	cur := res.Current
	units := res.CurrentUnits

	var b strings.Builder
	fmt.Fprintf(&b, "Current weather for %s (%.4f, %.4f)\n", locationLabel(loc), res.Latitude, res.Longitude)
	fmt.Fprintf(&b, "Observed at %s (%s)\n", cur.Time, res.Timezone)
	fmt.Fprintf(&b, "Conditions: %s\n", weatherDescription(cur.WeatherCode))
	fmt.Fprintf(&b, "Temperature: %.1f%s (feels like %.1f%s)\n",
		cur.Temperature, units.Temperature, cur.ApparentTemperature, units.Temperature)
	fmt.Fprintf(&b, "Humidity: %.0f%%\n", cur.RelativeHumidity)
	fmt.Fprintf(&b, "Wind: %.1f %s from %s (%.0f°)\n",
		cur.WindSpeed, units.WindSpeed, compassDirection(cur.WindDirection), cur.WindDirection)
	fmt.Fprintf(&b, "Precipitation: %.1f %s\n", cur.Precipitation, units.Precipitation)
	fmt.Fprintf(&b, "Pressure: %.1f %s\n", cur.PressureMSL, units.PressureMSL)
	fmt.Fprintf(&b, "Cloud cover: %.0f%%", cur.CloudCover)
	return b.String()
}

func forecastReport(loc openmeteo.Location, res *openmeteo.ForecastResponse) string {
	daily := res.Daily
	units := res.DailyUnits

	var b strings.Builder
	fmt.Fprintf(&b, "%d-day forecast for %s (%s)\n", len(daily.Time), locationLabel(loc), res.Timezone)

	// The daily arrays are parallel to Time, but the upstream response is not
	// trusted to keep them the same length.
	var missing int
	for i, day := range daily.Time {
		if i >= len(daily.WeatherCode) || i >= len(daily.TemperatureMin) || i >= len(daily.TemperatureMax) {
			missing++
			continue
		}
		fmt.Fprintf(&b, "%s: %s, %.1f%s to %.1f%s",
			day, weatherDescription(daily.WeatherCode[i]),
			daily.TemperatureMin[i], units.TemperatureMin,
			daily.TemperatureMax[i], units.TemperatureMax)
		if i < len(daily.PrecipitationSum) {
			fmt.Fprintf(&b, ", precipitation %.1f %s", daily.PrecipitationSum[i], units.PrecipitationSum)
		}
		if i < len(daily.PrecipitationProbabilityMax) {
			fmt.Fprintf(&b, " (%.0f%% chance)", daily.PrecipitationProbabilityMax[i])
		}
		if i < len(daily.WindSpeedMax) {
			fmt.Fprintf(&b, ", wind up to %.1f %s", daily.WindSpeedMax[i], units.WindSpeedMax)
		}
		if i < len(daily.Sunrise) && i < len(daily.Sunset) {
			fmt.Fprintf(&b, ", sun %s to %s", timeOfDay(daily.Sunrise[i]), timeOfDay(daily.Sunset[i]))
		}
		b.WriteByte('\n')
	}
	if missing > 0 {
		fmt.Fprintf(&b, "%d of %d days missing from the upstream response\n", missing, len(daily.Time))
	}
	return strings.TrimRight(b.String(), "\n")
}

func historicalReport(loc openmeteo.Location, res *openmeteo.ArchiveResponse) string {
	daily := res.Daily
	units := res.DailyUnits

	var b strings.Builder
	fmt.Fprintf(&b, "Historical weather for %s\n", locationLabel(loc))

	var (
		meanSum   float64
		meanCount int
		precipSum float64
		peakWind  float64
		missing   int
	)
	for i, day := range daily.Time {
		if i >= len(daily.TemperatureMax) || i >= len(daily.TemperatureMin) ||
			daily.TemperatureMax[i] == nil || daily.TemperatureMin[i] == nil {
			missing++
			continue
		}
		fmt.Fprintf(&b, "%s: ", day)
		if i < len(daily.WeatherCode) && daily.WeatherCode[i] != nil {
			fmt.Fprintf(&b, "%s, ", weatherDescription(*daily.WeatherCode[i]))
		}
		fmt.Fprintf(&b, "%.1f%s to %.1f%s",
			*daily.TemperatureMin[i], units.TemperatureMin,
			*daily.TemperatureMax[i], units.TemperatureMax)
		if i < len(daily.TemperatureMean) && daily.TemperatureMean[i] != nil {
			fmt.Fprintf(&b, ", mean %.1f%s", *daily.TemperatureMean[i], units.TemperatureMean)
			meanSum += *daily.TemperatureMean[i]
			meanCount++
		}
		if i < len(daily.PrecipitationSum) && daily.PrecipitationSum[i] != nil {
			fmt.Fprintf(&b, ", precipitation %.1f %s", *daily.PrecipitationSum[i], units.PrecipitationSum)
			precipSum += *daily.PrecipitationSum[i]
		}
		if i < len(daily.WindSpeedMax) && daily.WindSpeedMax[i] != nil {
			fmt.Fprintf(&b, ", wind up to %.1f %s", *daily.WindSpeedMax[i], units.WindSpeedMax)
			if *daily.WindSpeedMax[i] > peakWind {
				peakWind = *daily.WindSpeedMax[i]
			}
		}
		b.WriteByte('\n')
	}

	if meanCount > 0 {
		fmt.Fprintf(&b, "Range summary: mean temperature %.1f%s, total precipitation %.1f %s, peak wind %.1f %s\n",
			meanSum/float64(meanCount), units.TemperatureMean,
			precipSum, units.PrecipitationSum,
			peakWind, units.WindSpeedMax)
	}
	if missing > 0 {
		fmt.Fprintf(&b, "%d of %d days not yet available in the archive\n", missing, len(daily.Time))
	}
	return strings.TrimRight(b.String(), "\n")
}

// growingDegreeDays accumulates max(0, (tmax+tmin)/2 - base) across the
// range. Days the archive has not filled in yet are skipped, not treated as
// zero growth.
func growingDegreeDays(daily openmeteo.ArchiveDaily, base float64) (total float64, counted, skipped int) {
	for i := range daily.Time {
		if i >= len(daily.TemperatureMax) || i >= len(daily.TemperatureMin) ||
			daily.TemperatureMax[i] == nil || daily.TemperatureMin[i] == nil {
			skipped++
			continue
		}
		mean := (*daily.TemperatureMax[i] + *daily.TemperatureMin[i]) / 2
		if gdd := mean - base; gdd > 0 {
			total += gdd
		}
		counted++
	}
	return total, counted, skipped
}

func gddReport(loc openmeteo.Location, res *openmeteo.ArchiveResponse, base float64) string {
	total, counted, skipped := growingDegreeDays(res.Daily, base)

	var b strings.Builder
	fmt.Fprintf(&b, "Growing degree days for %s (base %.1f°C)\n", locationLabel(loc), base)
	if n := len(res.Daily.Time); n > 0 {
		fmt.Fprintf(&b, "Range: %s to %s\n", res.Daily.Time[0], res.Daily.Time[n-1])
	}
	fmt.Fprintf(&b, "Accumulated: %.1f GDD over %d days", total, counted)
	if counted > 0 {
		fmt.Fprintf(&b, " (%.2f per day)", total/float64(counted))
	}
	if skipped > 0 {
		fmt.Fprintf(&b, "\nSkipped %d of %d days not yet in the archive", skipped, len(res.Daily.Time))
	}
	return b.String()
}
