// Package conf contains the struct that holds the configuration of the software.
package conf

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/camroute/camroute/internal/logger"
)

// supported ingest codecs.
var supportedCodecs = map[string]struct{}{
	"opus": {},
	"vp8":  {},
	"vp9":  {},
	"h264": {},
}

// Conf is the configuration of the software.
type Conf struct {
	// Logging
	LogLevel        LogLevel        `yaml:"logLevel"`
	LogDestinations LogDestinations `yaml:"logDestinations"`
	LogFile         string          `yaml:"logFile"`

	// Signaling
	SignalingAddress string   `yaml:"signalingAddress"`
	ServerCert       string   `yaml:"serverCert"`
	ServerKey        string   `yaml:"serverKey"`
	ReadTimeout      Duration `yaml:"readTimeout"`

	// Admin API
	API        bool   `yaml:"api"`
	APIAddress string `yaml:"apiAddress"`

	// Media plane
	AnnouncedIP            string   `yaml:"announcedIP"`
	WebRTCMinPort          uint16   `yaml:"webrtcMinPort"`
	WebRTCMaxPort          uint16   `yaml:"webrtcMaxPort"`
	Codecs                 []string `yaml:"codecs"`
	InitialOutgoingBitrate uint64   `yaml:"initialOutgoingBitrate"`
	MaxIncomingBitrate     uint64   `yaml:"maxIncomingBitrate"`
	HandshakeTimeout       Duration `yaml:"handshakeTimeout"`

	// Egress
	EgressListenIP string `yaml:"egressListenIP"`
	EgressMinPort  uint16 `yaml:"egressMinPort"`
	EgressMaxPort  uint16 `yaml:"egressMaxPort"`

	// Registry
	RemovalGrace Duration `yaml:"removalGrace"`
}

func (conf *Conf) setDefaults() {
	conf.LogLevel = LogLevel(logger.Info)
	conf.LogDestinations = LogDestinations{logger.DestinationStdout}
	conf.LogFile = "camroute.log"

	conf.SignalingAddress = ":4443"
	conf.ReadTimeout = Duration(10 * time.Second)

	conf.API = true
	conf.APIAddress = ":9997"

	conf.WebRTCMinPort = 44000
	conf.WebRTCMaxPort = 44100
	conf.Codecs = []string{"opus", "vp8", "vp9", "h264"}
	conf.InitialOutgoingBitrate = 1_000_000
	conf.MaxIncomingBitrate = 1_500_000
	conf.HandshakeTimeout = Duration(10 * time.Second)

	conf.EgressListenIP = "0.0.0.0"
	conf.EgressMinPort = 20000
	conf.EgressMaxPort = 20100

	conf.RemovalGrace = Duration(30 * time.Second)
}

// Load loads the configuration from a file and from the environment.
func Load(fpath string) (*Conf, bool, error) {
	conf := &Conf{}
	conf.setDefaults()

	found := false

	byts, err := os.ReadFile(fpath)
	if err == nil {
		err = yaml.UnmarshalStrict(byts, conf)
		if err != nil {
			return nil, false, err
		}
		found = true
	} else if !os.IsNotExist(err) {
		return nil, false, err
	}

	err = loadFromEnvironment("CAMROUTE", conf)
	if err != nil {
		return nil, false, err
	}

	err = conf.Validate()
	if err != nil {
		return nil, false, err
	}

	return conf, found, nil
}

// Validate checks the configuration for consistency.
func (conf *Conf) Validate() error {
	if conf.WebRTCMinPort >= conf.WebRTCMaxPort {
		return fmt.Errorf("invalid WebRTC port range [%d, %d]",
			conf.WebRTCMinPort, conf.WebRTCMaxPort)
	}

	if conf.EgressMinPort >= conf.EgressMaxPort {
		return fmt.Errorf("invalid egress port range [%d, %d]",
			conf.EgressMinPort, conf.EgressMaxPort)
	}

	// egress pairs are (RTP, RTCP); the range must start even
	if (conf.EgressMinPort % 2) != 0 {
		return fmt.Errorf("egress port range must start with an even port")
	}

	if conf.EgressMinPort <= conf.WebRTCMaxPort && conf.WebRTCMinPort <= conf.EgressMaxPort {
		return fmt.Errorf("egress port range [%d, %d] overlaps WebRTC port range [%d, %d]",
			conf.EgressMinPort, conf.EgressMaxPort, conf.WebRTCMinPort, conf.WebRTCMaxPort)
	}

	if len(conf.Codecs) == 0 {
		return fmt.Errorf("at least one codec is required")
	}

	for _, codec := range conf.Codecs {
		if _, ok := supportedCodecs[codec]; !ok {
			return fmt.Errorf("unsupported codec: %s", codec)
		}
	}

	if conf.RemovalGrace <= 0 {
		return fmt.Errorf("removalGrace must be positive")
	}

	return nil
}
