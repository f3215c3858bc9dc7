package command

const (
	ConfigFlag     = "config"
	HomeFlag       = "home"
	LogLevelFlag   = "log-level"
	PrometheusFlag = "prometheus"
)

const (
	SourceFlag        = "source"
	AllowFallbackFlag = "allow-fallback"
	WorkersFlag       = "workers"
)
