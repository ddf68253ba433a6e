package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"microrail-remote/common"
	"microrail-remote/mqtt"
	"microrail-remote/remote"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var logger = common.NewLogger("[Microrail] ")

// VehicleConfig параметры подключения к машинке
type VehicleConfig struct {
	Host              string        `mapstructure:"host" yaml:"host"`
	Transport         string        `mapstructure:"transport" yaml:"transport"`
	ReconnectInterval time.Duration `mapstructure:"reconnect_interval" yaml:"reconnect_interval"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
}

// LoggingConfig параметры журнала
type LoggingConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	File  string `mapstructure:"file" yaml:"file"` // Куда писать журнал, пока открыт пульт
}

// Config конфигурация приложения
type Config struct {
	Vehicle VehicleConfig `mapstructure:"vehicle" yaml:"vehicle"`
	MQTT    mqtt.Config   `mapstructure:"mqtt" yaml:"mqtt"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// transportOptions параметры транспорта из конфигурации
func (c Config) transportOptions() (remote.Options, error) {
	kind, err := remote.ParseKind(c.Vehicle.Transport)
	if err != nil {
		return remote.Options{}, err
	}
	return remote.Options{
		Kind:              kind,
		Host:              c.Vehicle.Host,
		ReconnectInterval: c.Vehicle.ReconnectInterval,
		RequestTimeout:    c.Vehicle.RequestTimeout,
	}, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("vehicle.host", "192.168.4.1")
	v.SetDefault("vehicle.transport", string(remote.KindWebSocketText))
	v.SetDefault("vehicle.reconnect_interval", 2*time.Second)
	v.SetDefault("vehicle.request_timeout", 5*time.Second)

	m := mqtt.DefaultConfig()
	v.SetDefault("mqtt.enabled", m.Enabled)
	v.SetDefault("mqtt.broker", m.Broker)
	v.SetDefault("mqtt.username", m.Username)
	v.SetDefault("mqtt.password", m.Password)
	v.SetDefault("mqtt.client_id", m.ClientID)
	v.SetDefault("mqtt.vehicle", m.Vehicle)
	v.SetDefault("mqtt.data_topic", m.DataTopic)
	v.SetDefault("mqtt.command_topic", m.CommandTopic)
	v.SetDefault("mqtt.qos", m.QoS)
	v.SetDefault("mqtt.keep_alive", m.KeepAlive)
	v.SetDefault("mqtt.connect_timeout", m.ConnectTimeout)
	v.SetDefault("mqtt.command_timeout", m.CommandTimeout)
	v.SetDefault("mqtt.auto_reconnect", m.AutoReconnect)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", "")
}

// loadConfig читает config.yaml (или файл из --config) и переменные MICRORAIL_*
func loadConfig(v *viper.Viper, path string) (Config, error) {
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("MICRORAIL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return Config{}, fmt.Errorf("error unmarshaling config: %w", err)
	}

	common.SetLogLevel(config.Logging.Level)
	return config, nil
}

// command подкоманда CLI
type command struct {
	name  string
	usage string
	flags func(fs *pflag.FlagSet) func(Config) error
}

var commands = []command{
	{name: "run", usage: "connect to the vehicle and show the remote (default)", flags: runFlags},
	{name: "config", usage: "print the vehicle configuration as YAML", flags: configFlags},
	{name: "setup", usage: "store new vehicle settings", flags: setupFlags},
}

// splitCommand отделяет имя подкоманды от флагов. Без имени выполняется run.
func splitCommand(args []string) (string, []string) {
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		return args[0], args[1:]
	}
	return "run", args
}

func findCommand(name string) (command, error) {
	for _, c := range commands {
		if c.name == name {
			return c, nil
		}
	}
	return command{}, fmt.Errorf("unknown command %q", name)
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: microrail [command] [flags]")
	fmt.Fprintln(os.Stderr, "\nCommands:")
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %-8s %s\n", c.name, c.usage)
	}
}

// execute разбирает аргументы и выполняет подкоманду
func execute(args []string) error {
	name, rest := splitCommand(args)
	cmd, err := findCommand(name)
	if err != nil {
		usage()
		return err
	}

	fs := pflag.NewFlagSet(cmd.name, pflag.ContinueOnError)
	configPath := fs.String("config", "", "path to config file (default ./config.yaml)")
	host := fs.String("host", "", "vehicle host, overrides vehicle.host")
	transport := fs.String("transport", "", "transport: websocket-text, websocket-json or sse")
	action := cmd.flags(fs)

	if err := fs.Parse(rest); err != nil {
		return err
	}

	config, err := loadConfig(viper.New(), *configPath)
	if err != nil {
		return err
	}
	if *host != "" {
		config.Vehicle.Host = *host
	}
	if *transport != "" {
		config.Vehicle.Transport = *transport
	}

	return action(config)
}

func main() {
	if err := execute(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		logger.Fatalf("%v", err)
	}
}
