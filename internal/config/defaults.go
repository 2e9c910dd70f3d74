package config

const (
	defaultStateDir       = "~/.local/share/tempo"
	defaultLogDir         = "~/.local/share/tempo/logs"
	defaultServerBind     = "127.0.0.1:8457"
	defaultLogFormat      = "console"
	defaultLogLevel       = "info"
	defaultLogMaxSizeMB   = 20
	defaultLogMaxBackups  = 5
	defaultLogMaxAgeDays  = 30
	defaultFFmpegBinary   = "ffmpeg"
	defaultFFprobeBinary  = "ffprobe"
	defaultBitrate        = "320k"
	defaultSampleRate     = 44100
	defaultMinFreeMiB     = 256
	defaultAnalysisRate   = 22050
	defaultMinBPM         = 60
	defaultMaxBPM         = 200
	defaultTransportMode  = "stdio"
	defaultTransportAddr  = "127.0.0.1:8458"
	defaultPingMS         = 1000
	defaultPingIntervalMS = 10000
	defaultLoadLibraryMS  = 10000
	defaultWriteLibraryMS = 20000
	defaultWriteTagMS     = 2000
	defaultAnalysisMS     = 4000
	defaultServerStartMS  = 5000
	defaultConvertMS      = 60000
)

var defaultCodecPreferences = []string{"libmp3lame", "libshine", "mp3"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir:      defaultStateDir,
			LogDir:        defaultLogDir,
			ConversionDir: defaultConversionDir(),
		},
		Server: Server{
			Bind:           defaultServerBind,
			AllowedOrigins: []string{"*"},
		},
		Timeouts: Timeouts{
			PingMS:         defaultPingMS,
			PingIntervalMS: defaultPingIntervalMS,
			LoadLibraryMS:  defaultLoadLibraryMS,
			WriteLibraryMS: defaultWriteLibraryMS,
			WriteTagMS:     defaultWriteTagMS,
			AnalysisMS:     defaultAnalysisMS,
			ServerStartMS:  defaultServerStartMS,
			ConvertMS:      defaultConvertMS,
		},
		Encoder: Encoder{
			FFmpegBinary:     defaultFFmpegBinary,
			FFprobeBinary:    defaultFFprobeBinary,
			CodecPreferences: append([]string(nil), defaultCodecPreferences...),
			Bitrate:          defaultBitrate,
			SampleRate:       defaultSampleRate,
			MinFreeMiB:       defaultMinFreeMiB,
		},
		Analysis: Analysis{
			SampleRate: defaultAnalysisRate,
			MinBPM:     defaultMinBPM,
			MaxBPM:     defaultMaxBPM,
		},
		Transport: Transport{
			Mode:    defaultTransportMode,
			Address: defaultTransportAddr,
		},
		Logging: Logging{
			Format:     defaultLogFormat,
			Level:      defaultLogLevel,
			MaxSizeMB:  defaultLogMaxSizeMB,
			MaxBackups: defaultLogMaxBackups,
			MaxAgeDays: defaultLogMaxAgeDays,
		},
	}
}
