// internal/config/config.go
package config

type Config struct {
	Probe ProbeConfig `yaml:"probe"`
}

type ProbeConfig struct {
	// Engine settings
	PollTickMs    int    `yaml:"poll_tick_ms"`
	TraceCapacity int    `yaml:"trace_capacity"`
	LogLevel      string `yaml:"log_level"`

	Recorder    RecorderConfig    `yaml:"recorder"`
	Diagnostics DiagnosticsConfig `yaml:"diagnostics"`

	Connections []ConnectionConfig `yaml:"connections"`
	Sessions    []SessionConfig    `yaml:"sessions"`
}

// ---- CONNECTION ----

type ConnectionConfig struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind"` // "network" or "serial"

	// network
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// serial
	Device   string `yaml:"device"`
	BaudRate int    `yaml:"baud_rate"`
	Parity   string `yaml:"parity"` // "none", "even", "odd"
	StopBits int    `yaml:"stop_bits"`
	DataBits int    `yaml:"data_bits"`

	TimeoutMs int `yaml:"timeout_ms"`
	Retries   int `yaml:"retries"`
}

// ---- SESSION ----

type SessionConfig struct {
	Name           string `yaml:"name"`
	Connection     string `yaml:"connection"`
	UnitID         uint8  `yaml:"unit_id"`
	Space          string `yaml:"space"` // "coil", "discrete", "holding", "input"
	StartAddress   uint16 `yaml:"start_address"`
	Quantity       uint16 `yaml:"quantity"`
	PollIntervalMs int    `yaml:"poll_interval_ms"`
	AutoStart      bool   `yaml:"autostart"`

	Tags []TagConfig `yaml:"tags"`
}

// ---- TAG ----

type TagConfig struct {
	Name        string  `yaml:"name"`
	Space       string  `yaml:"space"` // defaults to the session's space
	Address     uint16  `yaml:"address"`
	DataType    string  `yaml:"data_type"`  // "bool", "int16", "uint16", "int32", "uint32", "float32"
	ByteOrder   string  `yaml:"byte_order"` // "big", "little", "swapped"
	ScaleFactor float64 `yaml:"scale_factor"`
	ScaleOffset float64 `yaml:"scale_offset"`
	Unit        string  `yaml:"unit"`
}

// ---- SINKS ----

type RecorderConfig struct {
	// Path to the SQLite event database. Empty disables the recorder.
	Path string `yaml:"path"`
}

type DiagnosticsConfig struct {
	// IntervalMs between periodic diagnostics passes.
	// Zero disables periodic analysis.
	IntervalMs int `yaml:"interval_ms"`
}
