package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"microrail-remote/common"
	"microrail-remote/device"
	"microrail-remote/protocol"
	"microrail-remote/simulator"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var logger = common.NewLogger("[Microrail-Sim] ")

// loadConfig собирает конфигурацию симулятора из флагов и переменных MICRORAIL_SIM_*
func loadConfig(args []string) (simulator.Config, error) {
	defaults := simulator.DefaultConfig()

	fs := pflag.NewFlagSet("microrail-sim", pflag.ContinueOnError)
	fs.String("addr", defaults.Addr, "listen address")
	fs.String("format", string(defaults.Format), "websocket frame format: text or json")
	fs.String("name", defaults.Device.Name, "vehicle name")
	fs.String("ssid", defaults.Device.WlanSSID, "WLAN access point name")
	fs.Int("speed-step", int(defaults.Device.MotorSpeedStep), "speed step per command")
	fs.Duration("motion-interval", defaults.MotionInterval, "acceleration tick")
	fs.Duration("power-interval", defaults.PowerInterval, "battery check interval")
	fs.Float64("drain", defaults.DrainPerCheck, "volts drained per battery check at full speed")
	if err := fs.Parse(args); err != nil {
		return simulator.Config{}, err
	}

	v := viper.New()
	v.SetEnvPrefix("MICRORAIL_SIM")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return simulator.Config{}, err
	}

	config := defaults
	config.Addr = v.GetString("addr")
	config.Format = protocol.Format(v.GetString("format"))
	config.Device.Name = v.GetString("name")
	config.Device.WlanSSID = v.GetString("ssid")
	config.MotionInterval = v.GetDuration("motion-interval")
	config.PowerInterval = v.GetDuration("power-interval")
	config.DrainPerCheck = v.GetFloat64("drain")
	config.Device.MotorSpeedStep = device.Int(v.GetInt("speed-step"))
	return config, nil
}

func main() {
	config, err := loadConfig(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		logger.Fatalf("Failed to load config: %v", err)
	}

	server, err := simulator.NewServer(config)
	if err != nil {
		logger.Fatalf("Failed to create simulator: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Start(ctx); err != nil {
		logger.Fatalf("Failed to start simulator: %v", err)
	}
	logger.Println("Microrail simulator started. Press Ctrl+C to stop.")

	<-ctx.Done()
	server.Stop()
}
