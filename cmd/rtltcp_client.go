package main

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/quan-to/slog"
	"github.com/racerxdl/rtltcp_client/config"
	"github.com/racerxdl/rtltcp_client/rtltcp"
	"github.com/spf13/pflag"
)

var configFile = pflag.StringP("config", "c", "", "YAML config file")
var host = pflag.StringP("address", "a", "", "server address")
var port = pflag.IntP("port", "p", 0, "server port")
var frequency = pflag.Int64P("frequency", "f", 0, "center frequency in Hz")
var sampleRate = pflag.Uint32P("samplerate", "s", 0, "sample rate in Hz")
var ppm = pflag.Int32("ppm", 0, "frequency correction in ppm")
var gainIndex = pflag.Uint32P("gain-index", "g", 0, "tuner gain index (disables tuner AGC)")
var rtlAgc = pflag.Bool("rtl-agc", false, "enable RTL AGC")
var output = pflag.StringP("output", "o", "", "output file for cf32 samples, - for stdout")
var numSamples = pflag.Uint64P("samples", "n", 0, "stop after n samples (0 = forever)")
var metricsAddress = pflag.String("metrics", "", "serve prometheus metrics on this address")
var verbose = pflag.BoolP("verbose", "v", false, "verbose mode")

const streamPollInterval = 100 * time.Millisecond

func loadConfig() (config.Config, error) {
	cfg := config.Default()
	if *configFile != "" {
		var err error
		if cfg, err = config.Load(*configFile); err != nil {
			return cfg, err
		}
	}

	flags := pflag.CommandLine
	if flags.Changed("address") {
		cfg.Host = *host
	}
	if flags.Changed("port") {
		cfg.Port = *port
	}
	if flags.Changed("frequency") {
		cfg.Frequency = *frequency
	}
	if flags.Changed("samplerate") {
		cfg.SampleRate = *sampleRate
	}
	if flags.Changed("ppm") {
		cfg.FrequencyCorrection = *ppm
	}
	if flags.Changed("gain-index") {
		cfg.GainIndex = *gainIndex
		cfg.TunerAgc = false
	}
	if flags.Changed("rtl-agc") {
		cfg.RtlAgc = *rtlAgc
	}
	if flags.Changed("output") {
		cfg.Output = *output
	}
	if flags.Changed("samples") {
		cfg.Samples = *numSamples
	}
	if flags.Changed("metrics") {
		cfg.MetricsAddress = *metricsAddress
	}
	if flags.Changed("verbose") {
		cfg.Verbose = *verbose
	}

	return cfg, cfg.Validate()
}

func openOutput(name string) (io.WriteCloser, error) {
	if name == "-" || name == "" {
		return os.Stdout, nil
	}
	return os.Create(name)
}

func main() {
	pflag.Parse()
	log := slog.Scope("RTLTCPClient")
	slog.SetShowLines(false)

	cfg, err := loadConfig()
	if err != nil {
		log.Error("Invalid configuration: %s", err)
		os.Exit(1)
	}
	slog.SetDebug(cfg.Verbose)

	if cfg.MetricsAddress != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			log.Info("Serving metrics on %s", cfg.MetricsAddress)
			if err := http.ListenAndServe(cfg.MetricsAddress, mux); err != nil {
				log.Error("Metrics server failed: %s", err)
			}
		}()
	}

	out, err := openOutput(cfg.Output)
	if err != nil {
		log.Error("Error opening output: %s", err)
		os.Exit(1)
	}
	defer out.Close()
	w := bufio.NewWriterSize(out, rtltcp.RawBufferSize*4)
	defer w.Flush()

	client := rtltcp.MakeClient(cfg.Host, cfg.Port)
	_ = client.SetSampleRate(cfg.SampleRate)
	_ = client.SetFrequencyCorrection(cfg.FrequencyCorrection)
	_ = client.SetFrequency(cfg.Frequency)
	_ = client.SetRtlAgc(cfg.RtlAgc)
	_ = client.SetTunerAgc(cfg.TunerAgc)
	_ = client.SetTunerGainIndex(cfg.GainIndex)

	done := make(chan struct{})
	var once sync.Once
	finish := func() { once.Do(func() { close(done) }) }

	var received uint64
	frame := make([]byte, 8)
	onSamples := func(samples []complex64) {
		for _, s := range samples {
			if cfg.Samples > 0 && received >= cfg.Samples {
				finish()
				return
			}
			binary.LittleEndian.PutUint32(frame[0:], math.Float32bits(real(s)))
			binary.LittleEndian.PutUint32(frame[4:], math.Float32bits(imag(s)))
			if _, err := w.Write(frame); err != nil {
				log.Error("Error writing samples: %s", err)
				finish()
				return
			}
			received++
		}
	}

	if err := client.Start(onSamples); err != nil {
		log.Error("Error starting client: %s", err)
		os.Exit(1)
	}

	info := client.GetDongleInfo()
	log.Info("Connected to %s. Tuner: %s, Gain steps: %d", client.Address(), info.TunerType, info.TunerGainCount)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigs
		fmt.Fprintln(os.Stderr, sig)
		finish()
	}()

	go func() {
		// stream ended by the server
		for client.IsStreaming() {
			select {
			case <-done:
				return
			case <-time.After(streamPollInterval):
			}
		}
		finish()
	}()

	<-done
	client.Stop()
	log.Info("Closed! Received %d samples", received)
}
