package main

import (
	"net/http"

	"device-report/builder"
	"device-report/capture"
	"device-report/config"
	"device-report/geolocation"
	"device-report/lookup"
	"device-report/metrics"
	"device-report/platform"
	"device-report/progress"
	"device-report/rabbitmq"
	"device-report/service"
	"device-report/telegram"
	"device-report/uploader"

	"github.com/apex/log"
)

// app holds the wired components of one process.
type app struct {
	runner    *service.Runner
	tracker   *progress.Tracker
	publisher *rabbitmq.Publisher
}

func newApp(c config.Config) *app {
	metrics.Register()

	httpClient := &http.Client{}
	providers := builder.Providers{
		Battery:  platform.NewPowerSupply(c.Platform.PowerSupplyPath),
		Network:  platform.NewNetClass(c.Platform.NetClassPath),
		IP:       lookup.NewIPClient(c.IPLookupURL, httpClient),
		Geocoder: lookup.NewGeocoder(c.GeocoderURL, httpClient),
	}
	if c.Platform.GPSDAddress != "" {
		providers.Locator = geolocation.NewResolver(platform.NewGPSD(c.Platform.GPSDAddress), c.FallbackLocationTimeout)
	}
	if cam := platform.NewFFmpeg(c.Platform.FFmpegPath, c.Platform.FrontCamera, c.Platform.BackCamera); cam.Available() {
		providers.Capturer = capture.NewCapturer(cam)
	} else {
		log.Warnf("ffmpeg not found at %q, cameras disabled", c.Platform.FFmpegPath)
	}

	tracker := &progress.Tracker{}
	observers := progress.Multi{progress.LogObserver{}, tracker}

	a := &app{tracker: tracker}
	if c.AMQP.URL != "" {
		pub, err := rabbitmq.NewPublisher(c.AMQP.URL, c.AMQP.Exchange, c.AMQP.RoutingKey)
		if err != nil {
			log.Warnf("Run events disabled: %v", err)
		} else {
			a.publisher = pub
			observers = append(observers, pub)
		}
	}

	tg := telegram.NewClient(c.Telegram.BaseURL, c.Telegram.BotToken, c.Telegram.ChatID, httpClient)
	a.runner = service.NewRunner(builder.New(c, providers), uploader.New(tg), observers)
	return a
}

func (a *app) close() {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			log.Warnf("Closing publisher: %v", err)
		}
	}
}
