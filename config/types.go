package config

// Database tunes the LevelDB store under DataDir.
type Database struct {
	CacheMB int `toml:"CacheMB"`
	Handles int `toml:"Handles"`
}

// Auth configures bearer token authentication on the JSON-RPC endpoint.
type Auth struct {
	Enabled          bool   `toml:"Enabled"`
	HMACSecretFile   string `toml:"HMACSecretFile"`
	Issuer           string `toml:"Issuer"`
	Audience         string `toml:"Audience"`
	ScopeClaim       string `toml:"ScopeClaim"`
	ClockSkewSeconds uint32 `toml:"ClockSkewSeconds"`
	// AllowAnonymous admits unauthenticated read-only calls.
	AllowAnonymous bool `toml:"AllowAnonymous"`
}

// RateLimit bounds requests per client address.
type RateLimit struct {
	RequestsPerMinute float64 `toml:"RequestsPerMinute"`
	Burst             int     `toml:"Burst"`
}

// Telemetry mirrors the OTLP exporter knobs.
type Telemetry struct {
	Endpoint    string  `toml:"Endpoint"`
	Insecure    bool    `toml:"Insecure"`
	Headers     string  `toml:"Headers"`
	Metrics     bool    `toml:"Metrics"`
	Traces      bool    `toml:"Traces"`
	SampleRatio float64 `toml:"SampleRatio"`
}

// Replay configures the transaction replay module.
type Replay struct {
	// Authority is bootstrapped into state when none is stored yet.
	Authority           string `toml:"Authority"`
	MinimumBalance      string `toml:"MinimumBalance"`
	AllowUnsetAuthority bool   `toml:"AllowUnsetAuthority"`
	GasLimit            uint64 `toml:"GasLimit"`
}

// Migration configures the NFT migration engine.
type Migration struct {
	BaseSlot          uint64 `toml:"BaseSlot"`
	MaxScanPairs      uint64 `toml:"MaxScanPairs"`
	ViewCallGas       uint64 `toml:"ViewCallGas"`
	AdminAccount      string `toml:"AdminAccount"`
	PalletAccount     string `toml:"PalletAccount"`
	CollectionDeposit string `toml:"CollectionDeposit"`
}

// Pauses disables individual modules without a restart of the state.
type Pauses struct {
	Replay  bool `toml:"Replay"`
	Migrate bool `toml:"Migrate"`
	Claim   bool `toml:"Claim"`
}

// Quota defines per-account limits on the self-service migration calls.
type Quota struct {
	MaxRequestsPerEpoch uint32 `toml:"MaxRequestsPerEpoch"`
	MaxItemsPerEpoch    uint64 `toml:"MaxItemsPerEpoch"`
	EpochSeconds        uint32 `toml:"EpochSeconds"`
}

// Webhook forwards committed events to an external endpoint. Delivery is
// disabled while Endpoint is empty.
type Webhook struct {
	Endpoint   string   `toml:"Endpoint"`
	SecretFile string   `toml:"SecretFile"`
	EventTypes []string `toml:"EventTypes"`
	QueueSize  int      `toml:"QueueSize"`
}
