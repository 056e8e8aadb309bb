package storage

type Config struct {
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Proxy struct {
		Enabled bool   `yaml:"enabled"`
		URL     string `yaml:"url"`
	} `yaml:"proxy"`

	Health struct {
		Days          int `yaml:"days"`
		Limit         int `yaml:"limit"`
		Threshold     int `yaml:"threshold"`
		MinFetchCount int `yaml:"min_fetch_count"`
	} `yaml:"health"`

	// ProxyCandidates tunes which feeds the proxy classifier probes.
	ProxyCandidates struct {
		TitleBlacklist    []string `yaml:"title_blacklist"`
		CreatedWithinDays int      `yaml:"created_within_days"`
		MaxTotalStorys    int      `yaml:"max_total_storys"`
		StaleAfterDays    int      `yaml:"stale_after_days"`
	} `yaml:"proxy_candidates"`

	Refresh struct {
		ExpireHours int `yaml:"expire_hours"`
	} `yaml:"refresh"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Database.Path = "./feedctl.db"
	cfg.Health.Days = 1
	cfg.Health.Limit = 100
	cfg.Health.Threshold = 99
	cfg.Health.MinFetchCount = 3
	cfg.ProxyCandidates.TitleBlacklist = []string{
		"%Comments on%",
		"%的评论%",
	}
	cfg.ProxyCandidates.CreatedWithinDays = 120
	cfg.ProxyCandidates.MaxTotalStorys = 5
	cfg.ProxyCandidates.StaleAfterDays = 180
	cfg.Refresh.ExpireHours = 1
	return cfg
}
