package config

const (
	defaultStorageDir        = "~/.local/share/repost/storage"
	defaultLibraryDir        = "~/repost-library"
	defaultLogDir            = "~/.local/share/repost/logs"
	defaultAPIBind           = "127.0.0.1:7519"
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
	defaultIngestMode        = "simulated"
	defaultIngestInterval    = 60
	defaultMaxPostsPerTarget = 5
	defaultFetchTimeout      = 300
	defaultDedupThreshold    = 10
	defaultTransformMode     = "simulated"
	defaultFFmpegBinary      = "ffmpeg"
	defaultTargetWidth       = 1080
	defaultTargetHeight      = 1920
	defaultTransformTimeout  = 600
	defaultApprovalMode      = "console"
	defaultApprovalPoll      = 30
	defaultPublishMode       = "simulated"
	defaultWindowMinutes     = 30
	defaultPublishTimezone   = "UTC"
	defaultPublishTimeout    = 600
	defaultHeartbeatInterval = 15
	defaultHeartbeatTimeout  = 300
	defaultMaxAttempts       = 3
	defaultClaimBatch        = 4
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StorageDir: defaultStorageDir,
			LibraryDir: defaultLibraryDir,
			LogDir:     defaultLogDir,
			APIBind:    defaultAPIBind,
		},
		Ingest: Ingest{
			Mode:              defaultIngestMode,
			IntervalMinutes:   defaultIngestInterval,
			MaxPostsPerTarget: defaultMaxPostsPerTarget,
			FetchTimeout:      defaultFetchTimeout,
		},
		Dedup: Dedup{
			Threshold: defaultDedupThreshold,
		},
		Transform: Transform{
			Mode:         defaultTransformMode,
			FFmpegBinary: defaultFFmpegBinary,
			TargetWidth:  defaultTargetWidth,
			TargetHeight: defaultTargetHeight,
			Timeout:      defaultTransformTimeout,
		},
		Approval: Approval{
			Mode:        defaultApprovalMode,
			PollTimeout: defaultApprovalPoll,
		},
		Publish: Publish{
			Mode:          defaultPublishMode,
			Windows:       []string{"08:00", "12:00", "16:00"},
			WindowMinutes: defaultWindowMinutes,
			Timezone:      defaultPublishTimezone,
			Timeout:       defaultPublishTimeout,
		},
		Notifications: Notifications{
			RequestTimeout: 10,
			Publishes:      true,
			Failures:       true,
			Duplicates:     true,
			Sweeps:         true,
		},
		Workflow: Workflow{
			QueuePollInterval:  5,
			ErrorRetryInterval: 10,
			HeartbeatInterval:  defaultHeartbeatInterval,
			HeartbeatTimeout:   defaultHeartbeatTimeout,
			MaxAttempts:        defaultMaxAttempts,
			ClaimBatch:         defaultClaimBatch,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
