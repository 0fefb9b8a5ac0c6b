package log

// LoggerConfig configures the process logger.
type LoggerConfig struct {
	Level     string           `mapstructure:"level"`
	Pattern   string           `mapstructure:"pattern"`
	Time      string           `mapstructure:"time"`
	Appenders []AppenderConfig `mapstructure:"appenders"`
}

// AppenderConfig selects one log destination. Type is "console" or
// "file"; Options carry the appender-specific settings.
type AppenderConfig struct {
	Type    string                 `mapstructure:"type"`
	Options map[string]interface{} `mapstructure:"options,omitempty"`
}

// DefaultConfig returns an info-level console-only configuration.
func DefaultConfig() *LoggerConfig {
	return &LoggerConfig{
		Level:   "info",
		Pattern: "%time [%level] %msg%n",
		Time:    "2006-01-02 15:04:05",
		Appenders: []AppenderConfig{
			{Type: "console"},
		},
	}
}
