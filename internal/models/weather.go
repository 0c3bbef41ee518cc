package models

import (
	"encoding/json"
	"strconv"
	"strings"
)

// WeatherQuery identifies one weather lookup. Its Key is the cache key.
type WeatherQuery struct {
	Location   string
	Forecast   bool
	AirQuality bool
	Alerts     bool
}

// Key returns the canonical form of the query: location (trimmed, lower-cased) followed by
// the feature flags in fixed order.
func (q WeatherQuery) Key() string {
	var b strings.Builder
	b.WriteString(strings.ToLower(strings.TrimSpace(q.Location)))
	for _, flag := range []bool{q.Forecast, q.AirQuality, q.Alerts} {
		b.WriteByte('|')
		b.WriteString(strconv.FormatBool(flag))
	}
	return b.String()
}

// Envelope is the response body for every weather query, real or synthetic.
// Location and Current are always populated; Notice is set only for degraded data.
type Envelope struct {
	Location LocationInfo      `json:"location"`
	Current  CurrentConditions `json:"current"`
	Forecast *Forecast         `json:"forecast,omitempty"`
	Alerts   *Alerts           `json:"alerts,omitempty"`
	Notice   string            `json:"notice,omitempty"`
}

// Validate reports whether the envelope carries enough data to render a weather card.
func (e Envelope) Validate() bool {
	if strings.TrimSpace(e.Location.Name) == "" {
		return false
	}
	if e.Current.Condition.Text == "" || e.Current.Condition.Icon == "" {
		return false
	}
	if e.Forecast != nil {
		for _, day := range e.Forecast.ForecastDay {
			if day.Date == "" || day.Day.Condition.Text == "" {
				return false
			}
		}
	}
	return true
}

type LocationInfo struct {
	Name      string  `json:"name"`
	Region    string  `json:"region"`
	Country   string  `json:"country"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	TzID      string  `json:"tz_id,omitempty"`
	Localtime string  `json:"localtime"`
}

type Condition struct {
	Text string `json:"text"`
	Icon string `json:"icon"`
	Code int    `json:"code,omitempty"`
}

type CurrentConditions struct {
	LastUpdated string      `json:"last_updated"`
	TempC       float64     `json:"temp_c"`
	TempF       float64     `json:"temp_f"`
	IsDay       int         `json:"is_day"`
	Condition   Condition   `json:"condition"`
	WindKph     float64     `json:"wind_kph"`
	WindMph     float64     `json:"wind_mph"`
	WindDir     string      `json:"wind_dir,omitempty"`
	Humidity    int         `json:"humidity"`
	Cloud       int         `json:"cloud"`
	FeelsLikeC  float64     `json:"feelslike_c"`
	FeelsLikeF  float64     `json:"feelslike_f"`
	UV          float64     `json:"uv"`
	PrecipMm    float64     `json:"precip_mm"`
	PrecipIn    float64     `json:"precip_in"`
	AirQuality  *AirQuality `json:"air_quality,omitempty"`
}

// AirQuality mirrors the provider's air_quality block (µg/m3 plus the US EPA index).
type AirQuality struct {
	CO           float64 `json:"co"`
	NO2          float64 `json:"no2"`
	O3           float64 `json:"o3"`
	SO2          float64 `json:"so2"`
	PM25         float64 `json:"pm2_5"`
	PM10         float64 `json:"pm10"`
	USEPAIndex   int     `json:"us-epa-index"`
	GBDefraIndex int     `json:"gb-defra-index"`
}

type Forecast struct {
	ForecastDay []ForecastDay `json:"forecastday"`
}

type ForecastDay struct {
	Date  string      `json:"date"`
	Day   DaySummary  `json:"day"`
	Astro Astro       `json:"astro"`
	Hour  []HourEntry `json:"hour"`
}

type DaySummary struct {
	MaxTempC          float64   `json:"maxtemp_c"`
	MaxTempF          float64   `json:"maxtemp_f"`
	MinTempC          float64   `json:"mintemp_c"`
	MinTempF          float64   `json:"mintemp_f"`
	AvgTempC          float64   `json:"avgtemp_c"`
	AvgTempF          float64   `json:"avgtemp_f"`
	Condition         Condition `json:"condition"`
	UV                float64   `json:"uv"`
	MaxWindKph        float64   `json:"maxwind_kph"`
	MaxWindMph        float64   `json:"maxwind_mph"`
	TotalPrecipMm     float64   `json:"totalprecip_mm"`
	TotalPrecipIn     float64   `json:"totalprecip_in"`
	AvgHumidity       float64   `json:"avghumidity"`
	DailyChanceOfRain int       `json:"daily_chance_of_rain"`
}

type Astro struct {
	Sunrise   string `json:"sunrise"`
	Sunset    string `json:"sunset"`
	Moonrise  string `json:"moonrise"`
	Moonset   string `json:"moonset"`
	MoonPhase string `json:"moon_phase"`
}

type HourEntry struct {
	Time         string    `json:"time"`
	TempC        float64   `json:"temp_c"`
	TempF        float64   `json:"temp_f"`
	IsDay        int       `json:"is_day"`
	Condition    Condition `json:"condition"`
	WindKph      float64   `json:"wind_kph"`
	WindMph      float64   `json:"wind_mph"`
	Humidity     int       `json:"humidity"`
	PrecipMm     float64   `json:"precip_mm"`
	PrecipIn     float64   `json:"precip_in"`
	ChanceOfRain int       `json:"chance_of_rain"`
}

type Alerts struct {
	Alert []Alert `json:"alert"`
}

type Alert struct {
	Headline  string `json:"headline"`
	Severity  string `json:"severity"`
	Event     string `json:"event"`
	Areas     string `json:"areas"`
	Effective string `json:"effective"`
	Expires   string `json:"expires"`
	Desc      string `json:"desc"`
}

// DecodeEnvelope parses a provider payload into the fields the service inspects. Unknown
// fields are ignored here; ResolvedPayload keeps them in the raw bytes.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, err
	}
	env.Notice = ""
	return env, nil
}
