package config

const (
	// DefaultConfigPath is used when --config is not provided.
	DefaultConfigPath = "config.yml"
	defaultPort       = 2333
	defaultEnv        = "development"

	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	defaultDBDriver    = DriverMySQL
	defaultDBHost      = "127.0.0.1"
	defaultDBPort      = 3306
	defaultPGPort      = 5432
	defaultDBUser      = "root"
	defaultDBPassword  = "password"
	defaultDBName      = "newsletter"
	defaultDBCharset   = "utf8mb4"
	defaultDBLoc       = "Local"
	defaultPGSSLMode   = "disable"
	defaultSQLitePath  = "newsletter.db"
	defaultRedisHost   = "localhost"
	defaultRedisPort   = 6379
	defaultRedisDB     = 0
	defaultMailPort    = 587
	defaultMailFrom    = "noreply@localhost"
	defaultMailName    = "Newsletter-System"
	defaultAdminName   = "Newsletter Admin"
	defaultMailSubject = "Newsletter unsubscribe"

	defaultNewsletterPrefix = "/newsletter"
	// DefaultStoragePID is the last-resort storage location for new records.
	DefaultStoragePID    = 1
	DefaultHoneypotField = "schwammerl"
	defaultLanguage      = "en"
)
