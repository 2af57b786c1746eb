package config

const (
	defaultStateDir            = "~/.local/share/reshelve/state"
	defaultWorkDir             = "~/.local/share/reshelve/work"
	defaultLogDir              = "~/.local/share/reshelve/logs"
	defaultTargetKeyPrefix     = "games"
	defaultAria2RPCURL         = "http://127.0.0.1:6800/jsonrpc"
	defaultAria2Split          = 16
	defaultAria2Connections    = 16
	defaultAria2MinSplitSize   = "1M"
	defaultAria2MaxTries       = 8
	defaultAria2RetryWait      = 2
	defaultPollIntervalMillis  = 500
	defaultStallTimeoutSeconds = 1200
	defaultDownloadRetries     = 3
	defaultRetryBackoffSeconds = 60
	defaultSevenZipFormat      = "7z"
	defaultSevenZipLevel       = 1
	defaultUploaderID          = "migrate"
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
)

func defaultSuffixes() []string {
	return []string{".zip", ".rar", ".7z"}
}

func defaultLanguages() []string {
	return []string{"zh"}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
			WorkDir:  defaultWorkDir,
			LogDir:   defaultLogDir,
		},
		Source: Source{
			Suffixes: defaultSuffixes(),
		},
		Target: Target{
			KeyPrefix: defaultTargetKeyPrefix,
		},
		Aria2: Aria2{
			RPCURL:                  defaultAria2RPCURL,
			Split:                   defaultAria2Split,
			MaxConnectionsPerServer: defaultAria2Connections,
			MinSplitSize:            defaultAria2MinSplitSize,
			MaxTries:                defaultAria2MaxTries,
			RetryWaitSeconds:        defaultAria2RetryWait,
			PollIntervalMillis:      defaultPollIntervalMillis,
			StallTimeoutSeconds:     defaultStallTimeoutSeconds,
			Retries:                 defaultDownloadRetries,
			RetryBackoffSeconds:     defaultRetryBackoffSeconds,
		},
		SevenZip: SevenZip{
			Format: defaultSevenZipFormat,
			Level:  defaultSevenZipLevel,
		},
		Catalog: Catalog{
			UploaderID: defaultUploaderID,
			Languages:  defaultLanguages(),
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
