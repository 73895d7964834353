package config

// UpdateType is what a running engine needs to pick up a changed setting.
// Larger values are stronger.
type UpdateType int

const (
	// UpdateNone means the value is unchanged.
	UpdateNone UpdateType = iota
	// UpdateReload means the value can be applied in place.
	UpdateReload
	// UpdateRestart means the environment must be reopened.
	UpdateRestart
)

// String returns the string representation of the update type.
func (u UpdateType) String() string {
	switch u {
	case UpdateNone:
		return "none"
	case UpdateReload:
		return "reload"
	case UpdateRestart:
		return "restart"
	default:
		return "unknown"
	}
}

// FieldDescriptor describes one configuration setting: its dotted YAML
// path, the update it requires when changed, and how to read it.
type FieldDescriptor struct {
	Path   string
	Update UpdateType
	Get    func(c *Config) any
}

// Fields lists every setting of Config. Each Get returns a comparable value.
var Fields = []FieldDescriptor{
	{"storage.dataDir", UpdateRestart, func(c *Config) any { return c.Storage.DataDir }},
	{"storage.tempDir", UpdateRestart, func(c *Config) any { return c.Storage.TempDir }},
	{"storage.initialFileSize", UpdateRestart, func(c *Config) any { return c.Storage.InitialFileSize }},
	{"storage.writeTransactionTimeout", UpdateRestart, func(c *Config) any { return c.Storage.WriteTransactionTimeout }},
	{"storage.flushInterval", UpdateRestart, func(c *Config) any { return c.Storage.FlushInterval }},
	{"storage.flushThresholdPages", UpdateRestart, func(c *Config) any { return c.Storage.FlushThresholdPages }},
	{"storage.manualFlush", UpdateRestart, func(c *Config) any { return c.Storage.ManualFlush }},
	{"journal.dir", UpdateRestart, func(c *Config) any { return c.Journal.Dir }},
	{"journal.maxFileSize", UpdateRestart, func(c *Config) any { return c.Journal.MaxFileSize }},
	{"journal.sync", UpdateRestart, func(c *Config) any { return c.Journal.Sync }},
	{"journal.encryptionKeyFile", UpdateRestart, func(c *Config) any { return c.Journal.EncryptionKeyFile }},
	{"memory.maxPooledSize", UpdateRestart, func(c *Config) any { return c.Memory.MaxPooledSize }},
	{"memory.lowMemoryThreshold", UpdateReload, func(c *Config) any { return c.Memory.LowMemoryThreshold }},
	{"memory.monitorInterval", UpdateReload, func(c *Config) any { return c.Memory.MonitorInterval }},
	{"logging.level", UpdateReload, func(c *Config) any { return c.Logging.Level }},
	{"logging.format", UpdateReload, func(c *Config) any { return c.Logging.Format }},
	{"logging.output", UpdateRestart, func(c *Config) any { return c.Logging.Output }},
}

// Field returns the descriptor for path.
func Field(path string) (FieldDescriptor, bool) {
	for _, f := range Fields {
		if f.Path == path {
			return f, true
		}
	}
	return FieldDescriptor{}, false
}

// Changed returns the descriptors of every setting that differs between
// old and new.
func Changed(old, new *Config) []FieldDescriptor {
	var changed []FieldDescriptor
	for _, f := range Fields {
		if f.Get(old) != f.Get(new) {
			changed = append(changed, f)
		}
	}
	return changed
}

// RequiredUpdate returns the strongest update any changed setting needs.
func RequiredUpdate(old, new *Config) UpdateType {
	update := UpdateNone
	for _, f := range Changed(old, new) {
		update = max(update, f.Update)
	}
	return update
}
