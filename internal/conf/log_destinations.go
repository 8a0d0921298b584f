package conf

import (
	"fmt"
	"strings"

	"github.com/camroute/camroute/internal/logger"
)

// LogDestinations is the logDestinations parameter.
type LogDestinations []logger.Destination

func (d *LogDestinations) setFromStrings(in []string) error {
	*d = nil

	for _, dest := range in {
		switch dest {
		case "stdout":
			*d = append(*d, logger.DestinationStdout)

		case "file":
			*d = append(*d, logger.DestinationFile)

		default:
			return fmt.Errorf("invalid log destination: %s", dest)
		}
	}

	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *LogDestinations) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var in []string
	if err := unmarshal(&in); err != nil {
		return err
	}

	return d.setFromStrings(in)
}

func (d *LogDestinations) unmarshalEnv(v string) error {
	return d.setFromStrings(strings.Split(v, ","))
}
