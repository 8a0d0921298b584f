package conf

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration is a duration that is unmarshaled from a string
// (instead of a number of nanoseconds).
type Duration time.Duration

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var in string
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}

	du, err := time.ParseDuration(in)
	if err != nil {
		return fmt.Errorf("invalid duration: %s", in)
	}

	*d = Duration(du)
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var in string
	if err := unmarshal(&in); err != nil {
		return err
	}

	du, err := time.ParseDuration(in)
	if err != nil {
		return fmt.Errorf("invalid duration: %s", in)
	}

	*d = Duration(du)
	return nil
}

func (d *Duration) unmarshalEnv(v string) error {
	du, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid duration: %s", v)
	}

	*d = Duration(du)
	return nil
}
