// Command explore prints weather cards for random curated destinations, fetched from a
// running weather-explorer service one location at a time.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-explorer/internal/locations"
	"github.com/kjstillabower/weather-explorer/internal/models"
	"github.com/kjstillabower/weather-explorer/internal/observability"
	"github.com/kjstillabower/weather-explorer/internal/sequencer"
	"github.com/kjstillabower/weather-explorer/internal/webclient"
)

const (
	initialCount = 3
	moreCount    = 2
)

type options struct {
	addr     string
	more     int
	delay    time.Duration
	timeout  time.Duration
	forecast bool
	aqi      bool
	alerts   bool
}

func main() {
	var opts options
	flag.StringVar(&opts.addr, "addr", "http://localhost:8080", "weather-explorer base URL")
	flag.IntVar(&opts.more, "more", 0, "extra batches of destinations to load after the first")
	flag.DurationVar(&opts.delay, "delay", sequencer.DefaultDelay, "spacing between lookups")
	flag.DurationVar(&opts.timeout, "timeout", sequencer.DefaultRequestTimeout, "per-lookup timeout")
	flag.BoolVar(&opts.forecast, "forecast", true, "include the 7-day forecast")
	flag.BoolVar(&opts.aqi, "aqi", false, "include air quality")
	flag.BoolVar(&opts.alerts, "alerts", false, "include weather alerts")
	flag.Parse()

	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, os.Stdout, logger); err != nil {
		logger.Error("explore", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, out io.Writer, logger *zap.Logger) error {
	wc := webclient.New(opts.addr, webclient.QueryOptions{
		Forecast:   opts.forecast,
		AirQuality: opts.aqi,
		Alerts:     opts.alerts,
	}, logger)

	dests, err := wc.RandomLocations(ctx, initialCount+opts.more*moreCount)
	if err != nil {
		return err
	}
	byName := make(map[string]locations.Destination, len(dests))
	names := make([]string, 0, len(dests))
	for _, d := range dests {
		byName[d.Name] = d
		names = append(names, d.Name)
	}

	seq := sequencer.New(wc,
		sequencer.WithDelay(opts.delay),
		sequencer.WithRequestTimeout(opts.timeout),
		sequencer.WithLogger(logger),
		sequencer.WithOnResolved(func(name string, env models.Envelope) {
			fmt.Fprintln(out, card(byName[name], env))
		}),
	)

	first := min(initialCount, len(names))
	batch := sequencer.NewBatch(names[:first]...)
	if err := seq.Run(ctx, batch); err != nil {
		return err
	}
	for rest := names[first:]; len(rest) > 0; {
		n := min(moreCount, len(rest))
		batch.Append(rest[:n]...)
		rest = rest[n:]
		if err := seq.Run(ctx, batch); err != nil {
			return err
		}
	}

	failed := batch.Failed()
	for _, name := range names {
		if ferr, ok := failed[name]; ok {
			fmt.Fprintf(out, "%s: unavailable (%v)\n", name, ferr)
		}
	}
	return nil
}

// card renders one destination and its weather on a single line, plus forecast highs and lows.
func card(d locations.Destination, env models.Envelope) string {
	s := fmt.Sprintf("%s, %s: %.0f°C %s", d.Name, d.Country, env.Current.TempC, env.Current.Condition.Text)
	if env.Current.AirQuality != nil {
		s += fmt.Sprintf(", AQI %d", env.Current.AirQuality.USEPAIndex)
	}
	if env.Forecast != nil && len(env.Forecast.ForecastDay) > 0 {
		s += " |"
		for _, day := range env.Forecast.ForecastDay {
			s += fmt.Sprintf(" %.0f/%.0f", day.Day.MaxTempC, day.Day.MinTempC)
		}
	}
	if env.Alerts != nil && len(env.Alerts.Alert) > 0 {
		s += fmt.Sprintf(" [%d alerts]", len(env.Alerts.Alert))
	}
	if env.Notice != "" {
		s += " (" + env.Notice + ")"
	}
	return s
}
