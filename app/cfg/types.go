package cfg

type Cfg struct {
	// Storage configuration
	DBPath string

	// Application configuration
	SeedsDir          string
	Port              string
	WorkerCount       int
	SchedulerInterval int
	RefreshInterval   int
	APIAccessKey      string

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}
