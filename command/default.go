package command

import "github.com/Evan-Kim2028/sui-sandbox-sub009/config"

const (
	DefaultSource   = config.DefaultSource
	DefaultLogLevel = config.DefaultLogLevel
	DefaultService  = "sui-sandbox"
)

const (
	JSONOutputFlag   = "json"
	PprofFlag        = "pprof"
	PprofAddressFlag = "pprof-address"
)

const DefaultPprofAddress = "127.0.0.1:6060"
