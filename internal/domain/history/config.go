package history

const (
	// DefaultCeilingBytes - потолок размера одного значения в облаке
	DefaultCeilingBytes = 4096
	DefaultSafetyRatio  = 0.8
	DefaultMaxItems     = 1000
	DefaultMaxChunks    = 256
	// DefaultExtraCleanup - сколько ключей за пределами meta удалять на всякий случай
	DefaultExtraCleanup = 3
)

// Config - параметры шардирования
type Config struct {
	CeilingBytes int
	SafetyRatio  float64
	MaxItems     int
	MaxChunks    int
	ExtraCleanup int
}

func DefaultConfig() Config {
	return Config{
		CeilingBytes: DefaultCeilingBytes,
		SafetyRatio:  DefaultSafetyRatio,
		MaxItems:     DefaultMaxItems,
		MaxChunks:    DefaultMaxChunks,
		ExtraCleanup: DefaultExtraCleanup,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.CeilingBytes <= 0 {
		c.CeilingBytes = d.CeilingBytes
	}
	if c.SafetyRatio <= 0 || c.SafetyRatio > 1 {
		c.SafetyRatio = d.SafetyRatio
	}
	if c.MaxItems <= 0 {
		c.MaxItems = d.MaxItems
	}
	if c.MaxChunks <= 0 {
		c.MaxChunks = d.MaxChunks
	}
	if c.ExtraCleanup < 0 {
		c.ExtraCleanup = d.ExtraCleanup
	}
	return c
}

// target - сколько байт (после шифрования) можно класть в один шард
func (c Config) target() int {
	return int(float64(c.CeilingBytes) * c.SafetyRatio)
}
