package config

import (
	"encoding/json"
	"fmt"

	"github.com/go-viper/mapstructure/v2"
	"github.com/goccy/go-yaml"
)

// Connection is where a database lives. In the configuration file it is
// either a connection string, or an object with the individual settings.
// SQLite connections use Filename; a plain string given for a SQLite client
// is taken as the file name.
type Connection struct {
	Filename string `json:"filename,omitempty"`
	DSN      string `json:"dsn,omitempty"`
	Host     string `json:"host,omitempty"`
	Port     int    `json:"port,omitempty"`
	User     string `json:"user,omitempty"`
	Password string `json:"password,omitempty"`
	Database string `json:"database,omitempty"`
}

func (c Connection) IsZero() bool {
	return c == Connection{}
}

// onlyDSN reports whether c is the decoded form of a connection string.
func (c Connection) onlyDSN() bool {
	return c.DSN != "" && c == Connection{DSN: c.DSN}
}

func (c *Connection) UnmarshalYAML(bs []byte) error {
	var raw any
	if err := yaml.Unmarshal(bs, &raw); err != nil {
		return fmt.Errorf("failed to decode connection: %w", err)
	}
	return c.decode(raw)
}

func (c *Connection) UnmarshalJSON(bs []byte) error {
	var raw any
	if err := json.Unmarshal(bs, &raw); err != nil {
		return fmt.Errorf("failed to decode connection: %w", err)
	}
	return c.decode(raw)
}

func (c *Connection) decode(raw any) error {
	*c = Connection{}

	switch v := raw.(type) {
	case nil:
		return nil
	case string:
		c.DSN = v
		return nil
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           c,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(raw); err != nil {
		return fmt.Errorf("failed to decode connection: %w", err)
	}
	return nil
}

func (c Connection) MarshalYAML() (any, error) {
	if c.onlyDSN() {
		return c.DSN, nil
	}
	type rawConnection Connection
	return rawConnection(c), nil
}

func (c Connection) MarshalJSON() ([]byte, error) {
	if c.onlyDSN() {
		return json.Marshal(c.DSN)
	}
	type rawConnection Connection
	return json.Marshal(rawConnection(c))
}
