package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"microrail-remote/common"
	"microrail-remote/device"
	"microrail-remote/mqtt"
	"microrail-remote/remote"
	"microrail-remote/tui"
	"microrail-remote/view"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

func runFlags(fs *pflag.FlagSet) func(Config) error {
	headless := fs.Bool("headless", false, "log status changes instead of showing the remote")

	return func(config Config) error {
		opts, err := config.transportOptions()
		if err != nil {
			return err
		}

		session, err := remote.NewSession(remote.Factory(opts))
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if config.MQTT.Enabled {
			relay, err := startRelay(config.MQTT, session)
			if err != nil {
				return err
			}
			defer relay.Stop()
		}

		logger.Printf("Connecting to %s via %s", opts.Host, opts.Kind)

		if *headless {
			session.OnStatus(func(s common.Status) {
				logger.Println(statusLine(s))
			})
			return session.Run(ctx)
		}

		out, closeLog, err := openLog(config.Logging.File)
		if err != nil {
			return err
		}
		defer closeLog()
		common.SetLogOutput(out)
		defer common.SetLogOutput(os.Stdout)

		return tui.Run(ctx, session, fmt.Sprintf("microrail %s (%s)", opts.Host, opts.Kind))
	}
}

// startRelay подключает ретрансляцию статуса и команд через MQTT
func startRelay(config mqtt.Config, session *remote.Session) (*mqtt.Client, error) {
	statusChan := make(chan common.Status, 16)
	session.OnStatus(func(s common.Status) {
		select {
		case statusChan <- s:
		default:
			logger.Println("MQTT relay is behind, dropping status")
		}
	})

	relay := mqtt.NewClient(config, statusChan, session.Send)
	if err := relay.Start(); err != nil {
		return nil, err
	}
	return relay, nil
}

// openLog открывает файл журнала на время работы пульта. Без файла журнал отключается.
func openLog(path string) (io.Writer, func(), error) {
	if path == "" {
		return io.Discard, func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return f, func() { f.Close() }, nil
}

// statusLine строка журнала для режима без пульта
func statusLine(s common.Status) string {
	v := view.Render(s)

	direction := view.Placeholder
	switch {
	case v.ForwardVisible:
		direction = "forward"
	case v.ReverseVisible:
		direction = "reverse"
	}

	return fmt.Sprintf("speed=%s direction=%s battery=%sV/%s%% name=%s ssid=%s version=%s",
		v.Speed, direction, v.Voltage, v.Capacity, v.Name, v.SSID, v.Version)
}

func configFlags(fs *pflag.FlagSet) func(Config) error {
	return func(config Config) error {
		opts, err := config.transportOptions()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		deviceConfig, err := remote.NewDeviceClient(opts).FetchConfig(ctx)
		if err != nil {
			return err
		}
		return writeDeviceConfig(os.Stdout, deviceConfig)
	}
}

// writeDeviceConfig печатает конфигурацию машинки как YAML
func writeDeviceConfig(w io.Writer, config device.DeviceConfig) error {
	if _, fixed := config.Normalize(); len(fixed) > 0 {
		logger.Printf("Vehicle reports out-of-range values for %v; it will use defaults", fixed)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return enc.Close()
}

func setupFlags(fs *pflag.FlagSet) func(Config) error {
	var r device.SetupRequest
	fs.StringVar(&r.Name, "name", "", "vehicle name")
	fs.StringVar(&r.WlanSSID, "ssid", "", "WLAN access point name")
	fs.StringVar(&r.Password, "password", "", "WLAN password")
	fs.IntVar(&r.MotorFrequency, "motor-frequency", 100, "motor PWM frequency, 50..20000 Hz")
	fs.IntVar(&r.MotorMaxSpeed, "motor-maxspeed", 100, "maximum motor speed, 20..100 %")
	fs.IntVar(&r.MotorSpeedStep, "motor-speedstep", 10, "speed step per command, 4..30 %")

	return func(config Config) error {
		if r.Name == "" || r.WlanSSID == "" {
			return fmt.Errorf("--name and --ssid are required")
		}

		opts, err := config.transportOptions()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		if err := remote.NewDeviceClient(opts).Setup(ctx, r); err != nil {
			return err
		}
		logger.Println("Setup stored, restart the vehicle to apply it")
		return nil
	}
}
