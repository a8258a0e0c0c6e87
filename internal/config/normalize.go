// internal/config/normalize.go
package config

// Normalize applies post-validation defaults.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	p := &cfg.Probe

	if p.PollTickMs == 0 {
		p.PollTickMs = 10
	}
	if p.TraceCapacity == 0 {
		p.TraceCapacity = 10000
	}
	if p.LogLevel == "" {
		p.LogLevel = "info"
	}

	for i := range p.Connections {
		c := &p.Connections[i]

		if c.TimeoutMs == 0 {
			c.TimeoutMs = 1000
		}
		if c.Retries == 0 {
			c.Retries = 3
		}
		if c.Kind == "serial" {
			if c.BaudRate == 0 {
				c.BaudRate = 9600
			}
			if c.Parity == "" {
				c.Parity = "none"
			}
			if c.StopBits == 0 {
				c.StopBits = 1
			}
			if c.DataBits == 0 {
				c.DataBits = 8
			}
		}
		if c.Kind == "network" && c.Port == 0 {
			c.Port = 502
		}
	}

	for i := range p.Sessions {
		s := &p.Sessions[i]

		if s.PollIntervalMs == 0 {
			s.PollIntervalMs = 1000
		}

		for j := range s.Tags {
			t := &s.Tags[j]

			// Tags inherit the session's address space unless set.
			if t.Space == "" {
				t.Space = s.Space
			}
			if t.DataType == "" {
				t.DataType = "uint16"
			}
			if t.ByteOrder == "" {
				t.ByteOrder = "big"
			}
			if t.ScaleFactor == 0 {
				t.ScaleFactor = 1.0
			}
		}
	}
}
