// Package synthetic builds schema-complete weather envelopes without network access.
// It backs every degraded response served by the weather service.
package synthetic

import (
	"hash/fnv"
	"math"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/kjstillabower/weather-explorer/internal/models"
)

// Bounds for generated values.
const (
	MinTempC    = 15.0
	MaxTempC    = 30.0
	MinHumidity = 40
	MaxHumidity = 80
	MinUV       = 1.0
	MaxUV       = 11.0

	ForecastDays = 7
	HoursPerDay  = 24
)

type condition struct {
	text string
	code int
	icon int
}

// Conditions mirror provider condition codes so icons resolve on the CDN.
var conditions = []condition{
	{"Sunny", 1000, 113},
	{"Partly cloudy", 1003, 116},
	{"Cloudy", 1006, 119},
	{"Overcast", 1009, 122},
	{"Light rain", 1183, 296},
}

// ConditionTexts returns the fixed set of condition texts the generator draws from.
func ConditionTexts() []string {
	out := make([]string, len(conditions))
	for i, c := range conditions {
		out[i] = c.text
	}
	return out
}

// Generator produces synthetic envelopes. The zero value is not usable; call New.
type Generator struct {
	now  func() time.Time
	seed func(location string, now time.Time) uint64
}

// Option configures a Generator.
type Option func(*Generator)

// WithClock overrides the clock used for dates and seeding.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// WithSeed overrides the seed function. Tests use it to get reproducible values.
func WithSeed(seed func(location string, now time.Time) uint64) Option {
	return func(g *Generator) { g.seed = seed }
}

// New returns a Generator seeded from the location text mixed with the clock.
func New(opts ...Option) *Generator {
	g := &Generator{
		now:  time.Now,
		seed: defaultSeed,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func defaultSeed(location string, now time.Time) uint64 {
	return LocationSeed(location) ^ uint64(now.UnixNano())
}

// LocationSeed hashes the location text (FNV-64a).
func LocationSeed(location string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(location))
	return h.Sum64()
}

// Generate returns a complete envelope for q. It never fails and accepts any location text,
// including the empty string. Forecast, air quality and alerts are included when requested.
func (g *Generator) Generate(q models.WeatherQuery) models.Envelope {
	now := g.now()
	seed := g.seed(q.Location, now)
	rng := rand.New(rand.NewPCG(seed, seed>>1|1))

	cond := conditions[rng.IntN(len(conditions))]
	tempC := float64(intBetween(rng, int(MinTempC), int(MaxTempC)))
	feelsC := clamp(tempC-2+float64(rng.IntN(5)), MinTempC, MaxTempC)
	windKph := float64(intBetween(rng, 8, 32))
	precipMm := round1(rng.Float64() * 5)
	isDay := dayFlag(now.Hour())

	env := models.Envelope{
		Location: models.LocationInfo{
			Name:      q.Location,
			Region:    "Simulated Region",
			Country:   "Simulated Country",
			Lat:       latFromSeed(LocationSeed(q.Location)),
			Lon:       lonFromSeed(LocationSeed(q.Location)),
			TzID:      "UTC",
			Localtime: now.Format("2006-01-02 15:04"),
		},
		Current: models.CurrentConditions{
			LastUpdated: now.Format("2006-01-02 15:04"),
			TempC:       tempC,
			TempF:       toF(tempC),
			IsDay:       isDay,
			Condition:   cond.model(isDay),
			WindKph:     windKph,
			WindMph:     toMph(windKph),
			WindDir:     windDirs[rng.IntN(len(windDirs))],
			Humidity:    intBetween(rng, MinHumidity, MaxHumidity),
			Cloud:       rng.IntN(101),
			FeelsLikeC:  feelsC,
			FeelsLikeF:  toF(feelsC),
			UV:          float64(intBetween(rng, int(MinUV), int(MaxUV))),
			PrecipMm:    precipMm,
			PrecipIn:    toIn(precipMm),
		},
	}
	if q.AirQuality {
		env.Current.AirQuality = airQuality(rng)
	}
	if q.Forecast {
		env.Forecast = g.forecast(rng, now, tempC, cond)
	}
	if q.Alerts {
		env.Alerts = &models.Alerts{Alert: []models.Alert{}}
	}
	return env
}

func (g *Generator) forecast(rng *rand.Rand, now time.Time, baseC float64, cond condition) *models.Forecast {
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	days := make([]models.ForecastDay, 0, ForecastDays)
	for i := 0; i < ForecastDays; i++ {
		date := start.AddDate(0, 0, i)
		avgC := clamp(baseC+float64(rng.IntN(5)-2), MinTempC, MaxTempC)
		maxC := clamp(avgC+float64(rng.IntN(6)), MinTempC, MaxTempC)
		minC := clamp(avgC-float64(rng.IntN(6)), MinTempC, MaxTempC)
		dayCond := cond
		if i > 0 {
			dayCond = conditions[rng.IntN(len(conditions))]
		}
		maxWind := float64(intBetween(rng, 10, 40))
		totalPrecip := round1(rng.Float64() * 10)

		days = append(days, models.ForecastDay{
			Date: date.Format("2006-01-02"),
			Day: models.DaySummary{
				MaxTempC:          maxC,
				MaxTempF:          toF(maxC),
				MinTempC:          minC,
				MinTempF:          toF(minC),
				AvgTempC:          avgC,
				AvgTempF:          toF(avgC),
				Condition:         dayCond.model(1),
				UV:                float64(intBetween(rng, int(MinUV), int(MaxUV))),
				MaxWindKph:        maxWind,
				MaxWindMph:        toMph(maxWind),
				TotalPrecipMm:     totalPrecip,
				TotalPrecipIn:     toIn(totalPrecip),
				AvgHumidity:       float64(intBetween(rng, MinHumidity, MaxHumidity)),
				DailyChanceOfRain: rng.IntN(101),
			},
			Astro: models.Astro{
				Sunrise:   "06:45 AM",
				Sunset:    "07:30 PM",
				Moonrise:  "09:15 PM",
				Moonset:   "07:30 AM",
				MoonPhase: moonPhases[(date.YearDay())%len(moonPhases)],
			},
			Hour: hours(rng, date, minC, maxC, dayCond),
		})
	}
	return &models.Forecast{ForecastDay: days}
}

// hours follows a diurnal curve peaking mid-afternoon, kept inside [minC, maxC].
func hours(rng *rand.Rand, date time.Time, minC, maxC float64, cond condition) []models.HourEntry {
	out := make([]models.HourEntry, HoursPerDay)
	span := maxC - minC
	for h := 0; h < HoursPerDay; h++ {
		phase := math.Cos(float64(h-15) * math.Pi / 12)
		tempC := round1(minC + span*(phase+1)/2)
		tempC = clamp(tempC, minC, maxC)
		isDay := dayFlag(h)
		windKph := float64(intBetween(rng, 5, 25))
		precip := round1(rng.Float64() * 2)
		out[h] = models.HourEntry{
			Time:         date.Add(time.Duration(h) * time.Hour).Format("2006-01-02 15:04"),
			TempC:        tempC,
			TempF:        toF(tempC),
			IsDay:        isDay,
			Condition:    cond.model(isDay),
			WindKph:      windKph,
			WindMph:      toMph(windKph),
			Humidity:     intBetween(rng, MinHumidity, MaxHumidity),
			PrecipMm:     precip,
			PrecipIn:     toIn(precip),
			ChanceOfRain: rng.IntN(101),
		}
	}
	return out
}

func airQuality(rng *rand.Rand) *models.AirQuality {
	return &models.AirQuality{
		CO:           round1(200 + rng.Float64()*300),
		NO2:          round1(5 + rng.Float64()*30),
		O3:           round1(30 + rng.Float64()*70),
		SO2:          round1(1 + rng.Float64()*10),
		PM25:         round1(2 + rng.Float64()*20),
		PM10:         round1(5 + rng.Float64()*30),
		USEPAIndex:   intBetween(rng, 1, 3),
		GBDefraIndex: intBetween(rng, 1, 4),
	}
}

var (
	windDirs   = []string{"N", "NE", "E", "SE", "S", "SW", "W", "NW"}
	moonPhases = []string{"New Moon", "Waxing Crescent", "First Quarter", "Waxing Gibbous", "Full Moon", "Waning Gibbous", "Last Quarter", "Waning Crescent"}
)

func (c condition) model(isDay int) models.Condition {
	period := "day"
	if isDay == 0 {
		period = "night"
	}
	return models.Condition{
		Text: c.text,
		Icon: "//cdn.weatherapi.com/weather/64x64/" + period + "/" + strconv.Itoa(c.icon) + ".png",
		Code: c.code,
	}
}

func dayFlag(hour int) int {
	if hour >= 7 && hour < 20 {
		return 1
	}
	return 0
}

// intBetween returns an int in [lo, hi].
func intBetween(rng *rand.Rand, lo, hi int) int {
	return lo + rng.IntN(hi-lo+1)
}

func latFromSeed(s uint64) float64 { return round4(float64(s%18000)/100 - 90) }
func lonFromSeed(s uint64) float64 { return round4(float64((s/18000)%36000)/100 - 180) }

func toF(c float64) float64    { return round1(c*9/5 + 32) }
func toMph(kph float64) float64 { return round1(kph / 1.609344) }
func toIn(mm float64) float64   { return math.Round(mm/25.4*100) / 100 }
func round1(v float64) float64  { return math.Round(v*10) / 10 }
func round4(v float64) float64  { return math.Round(v*10000) / 10000 }

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
