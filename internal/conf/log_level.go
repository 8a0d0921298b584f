package conf

import (
	"fmt"

	"github.com/camroute/camroute/internal/logger"
)

// LogLevel is the logLevel parameter.
type LogLevel logger.Level

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *LogLevel) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var in string
	if err := unmarshal(&in); err != nil {
		return err
	}

	switch in {
	case "error":
		*d = LogLevel(logger.Error)

	case "warn":
		*d = LogLevel(logger.Warn)

	case "info":
		*d = LogLevel(logger.Info)

	case "debug":
		*d = LogLevel(logger.Debug)

	default:
		return fmt.Errorf("invalid log level: %s", in)
	}

	return nil
}

func (d *LogLevel) unmarshalEnv(v string) error {
	return d.UnmarshalYAML(func(i interface{}) error {
		*(i.(*string)) = v
		return nil
	})
}
