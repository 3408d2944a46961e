package constants

import "os"

const DefaultWindowSize = 100

const DefaultOutlierThreshold = 6.0

// DisableOutlierFilter is the largest value the threshold selector offers.
// Setting it returns every retained sample unfiltered.
const DisableOutlierFilter = 99999.0

const DefaultHistogramBins = 200

const DefaultListenAddr = ":8080"

const EnvPrefix = "NOTEDUR_"

func GetListenAddr() string {
	addr := os.Getenv(EnvPrefix + "ADDR")
	if addr != "" {
		return addr
	}
	return DefaultListenAddr
}

func GetConfigPath() string {
	return os.Getenv(EnvPrefix + "CONFIG")
}

func GetLogLevel() string {
	level := os.Getenv("LOG_LEVEL")
	if level != "" {
		return level
	}
	return "info"
}
