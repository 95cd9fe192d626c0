package config

const (
	defaultDataDir             = "~/.local/share/upframe/data"
	defaultStagingDir          = "~/.local/share/upframe/staging"
	defaultLogDir              = "~/.local/share/upframe/logs"
	defaultAPIBind             = "127.0.0.1:8196"
	defaultQueuePollInterval   = 2
	defaultErrorRetryInterval  = 5
	defaultMaxConcurrentJobs   = 2
	defaultJobTimeout          = 3600
	defaultFrameRate           = 24.0
	defaultFFmpegBinary        = "ffmpeg"
	defaultFFprobeBinary       = "ffprobe"
	defaultEnhancerTimeout     = 120
	defaultEnhancerConcurrency = 2
	defaultAnalysisWorkers     = 4
	defaultBlurThreshold       = 100.0
	defaultDarkThreshold       = 100.0
	defaultMinWidth            = 1280
	defaultMinHeight           = 720
	defaultBlockSize           = 8
	defaultBlockinessThreshold = 15.0
	defaultRedisChannelPrefix  = "job_updates"
	defaultNotifyTimeout       = 10
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultMaxUploadMiB        = 512
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:    defaultDataDir,
			StagingDir: defaultStagingDir,
			LogDir:     defaultLogDir,
			APIBind:    defaultAPIBind,
		},
		Workflow: Workflow{
			QueuePollInterval:  defaultQueuePollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			MaxConcurrentJobs:  defaultMaxConcurrentJobs,
			JobTimeout:         defaultJobTimeout,
		},
		Media: Media{
			DefaultFrameRate: defaultFrameRate,
			FFmpegBinary:     defaultFFmpegBinary,
			FFprobeBinary:    defaultFFprobeBinary,
		},
		Enhancer: Enhancer{
			TimeoutSeconds: defaultEnhancerTimeout,
			MaxConcurrent:  defaultEnhancerConcurrency,
		},
		Analysis: Analysis{
			Workers:             defaultAnalysisWorkers,
			BlurThreshold:       defaultBlurThreshold,
			DarkThreshold:       defaultDarkThreshold,
			MinWidth:            defaultMinWidth,
			MinHeight:           defaultMinHeight,
			BlockSize:           defaultBlockSize,
			BlockinessThreshold: defaultBlockinessThreshold,
		},
		Redis: Redis{
			ChannelPrefix: defaultRedisChannelPrefix,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		API: API{
			MaxUploadMiB:   defaultMaxUploadMiB,
			AllowedOrigins: []string{"*"},
		},
	}
}
