package main

import (
	"bufio"
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sonirico/wssession"
)

const (
	commandClose = "/close"
	commandQuit  = "/quit"

	shutdownTimeout = 3 * time.Second
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initLogger(app string, level zerolog.Level) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}
	logger := zerolog.New(output).Level(level).With().Timestamp().Str("app", app).Logger()
	log.Logger = logger
	return logger
}

func run() error {
	var (
		configPath    = flag.String("config", "", "path to a .toml or .yaml session config")
		serverURL     = flag.String("url", "", "websocket url, overrides the config file")
		autoReconnect = flag.Bool("auto-reconnect", false, "pass autoReconnect=true with the connect options")
	)
	flag.Parse()

	cfg := wssession.DefaultConfig()
	if *configPath != "" {
		loaded, err := wssession.LoadConfig(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if *serverURL != "" {
		cfg.URL = *serverURL
	}
	if *autoReconnect {
		cfg.AutoReconnect = true
	}
	if cfg.URL == "" {
		return fmt.Errorf("no url given, use -url or the url key of -config")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := initLogger("wssession", wssession.ParseLogLevel(cfg.LogLevel))
	lib := wssession.NewZerologLogger(logger)

	events := wssession.NewEventEmitter[string, any]()
	defer events.Close()
	for _, method := range []string{
		wssession.MethodOnOpened,
		wssession.MethodOnClosing,
		wssession.MethodOnClosed,
		wssession.MethodOnFailure,
	} {
		events.On(method, func(payload any) {
			ev, ok := payload.(wssession.SystemEvent)
			if !ok {
				return
			}
			logger.Info().Str("event", method).Fields(ev.ToMap()).Msg("session event")
		})
	}

	ended := make(chan struct{}, 1)
	for _, method := range []string{wssession.MethodOnClosed, wssession.MethodOnFailure} {
		events.On(method, func(any) {
			select {
			case ended <- struct{}{}:
			default:
			}
		})
	}

	controller := wssession.NewController(
		wssession.NewWebsocketTransport(lib, wssession.ErrorAdapters{}),
		append(cfg.ControllerOptions(),
			wssession.WithLogger(lib),
			wssession.WithEmitter(events),
		)...,
	)
	defer shutdown(controller, ended, logger)

	controller.AttachTextSink(wssession.SubscriberFunc[string](func(text string) error {
		_, err := fmt.Fprintln(os.Stdout, text)
		return err
	}))
	controller.AttachBinarySink(wssession.SubscriberFunc[[]byte](func(data []byte) error {
		_, err := fmt.Fprintf(os.Stdout, "[binary %d bytes] %s\n", len(data), hex.EncodeToString(data))
		return err
	}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	controller.Connect(cfg.URL, cfg.ConnectOptions())

	quit := make(chan struct{})
	go readCommands(controller, logger, quit)

	select {
	case <-ctx.Done():
		logger.Info().Msg("signal received, terminating")
	case <-quit:
	}
	return nil
}

// shutdown closes the session with 1001 and waits, bounded by shutdownTimeout, for it to
// end before terminating the controller.
func shutdown(controller *wssession.Controller, ended chan struct{}, logger zerolog.Logger) {
	defer controller.Terminate()

	select {
	case <-ended:
	default:
	}
	if controller.Status().State == wssession.StateIdle {
		return
	}

	controller.Disconnect(wssession.CloseGoingAway, "")
	select {
	case <-ended:
	case <-time.After(shutdownTimeout):
		logger.Warn().Dur("timeout", shutdownTimeout).Msg("session did not close in time, terminating")
	}
}

// readCommands forwards stdin lines as text messages until /quit or EOF.
func readCommands(controller *wssession.Controller, logger zerolog.Logger, quit chan<- struct{}) {
	defer close(quit)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case commandQuit:
			return
		case commandClose:
			controller.Disconnect(wssession.CloseNormal, "")
		default:
			if !controller.SendText(line) {
				logger.Warn().Msg("message not sent, connection is not open")
			}
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Error().Err(err).Msg("reading stdin")
	}
}
