package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// AppConfig holds runtime startup configuration loaded from YAML.
type AppConfig struct {
	Port           int                     `yaml:"port"`
	DSN            string                  `yaml:"dsn"`
	RedisURL       string                  `yaml:"redis_url"`
	Database       DatabaseRuntimeConfig   `yaml:"database"`
	Redis          RedisRuntimeConfig      `yaml:"redis"`
	Mail           MailRuntimeConfig       `yaml:"mail"`
	Newsletter     NewsletterRuntimeConfig `yaml:"newsletter"`
	Env            string                  `yaml:"env"` // "development" | "production"
	Paths          RuntimePathsConfig      `yaml:"paths"`
	AllowedOrigins []string                `yaml:"allowed_origins"`
	JWTSecret      string                  `yaml:"jwt_secret"`
	Timezone       string                  `yaml:"timezone"`

	baseDir string
}

type DatabaseRuntimeConfig struct {
	Driver    string            `yaml:"driver"` // mysql | postgres | sqlite
	DSN       string            `yaml:"dsn"`
	URL       string            `yaml:"url"`
	Host      string            `yaml:"host"`
	Port      int               `yaml:"port"`
	User      string            `yaml:"user"`
	Username  string            `yaml:"username"`
	Password  string            `yaml:"password"`
	Name      string            `yaml:"name"`
	DBName    string            `yaml:"db_name"`
	Path      string            `yaml:"path"` // sqlite file
	Charset   string            `yaml:"charset"`
	ParseTime bool              `yaml:"parse_time"`
	Loc       string            `yaml:"loc"`
	SSLMode   string            `yaml:"sslmode"`
	Params    map[string]string `yaml:"params"`
}

type RedisRuntimeConfig struct {
	Enable   bool              `yaml:"enable"`
	URL      string            `yaml:"url"`
	Host     string            `yaml:"host"`
	Port     int               `yaml:"port"`
	Username string            `yaml:"username"`
	Password string            `yaml:"password"`
	DB       int               `yaml:"db"`
	TLS      bool              `yaml:"tls"`
	Scheme   string            `yaml:"scheme"`
	Params   map[string]string `yaml:"params"`
}

// MailRuntimeConfig configures the outgoing mail transport and the admin
// recipient of unsubscribe notices.
type MailRuntimeConfig struct {
	Enable    bool   `yaml:"enable"`
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	User      string `yaml:"user"`
	Pass      string `yaml:"pass"`
	From      string `yaml:"from"`
	FromName  string `yaml:"from_name"`
	ReplyTo   string `yaml:"reply_to"`
	Admin     string `yaml:"admin"`
	AdminName string `yaml:"admin_name"`
	Subject   string `yaml:"subject"`
	ResendKey string `yaml:"resend_key"`
}

type NewsletterRuntimeConfig struct {
	Prefix          string `yaml:"prefix"`
	StoragePID      int    `yaml:"storage_pid"`
	HoneypotField   string `yaml:"honeypot_field"`
	DefaultLanguage string `yaml:"default_language"`

	// StoragePages lists the content pages a form may name as the storage
	// location of new records. Any other requested page is ignored.
	StoragePages []int `yaml:"storage_pages"`

	// RateLimit caps form posts per client IP and minute. Zero, the
	// default, leaves the forms unlimited.
	RateLimit int `yaml:"rate_limit"`
}

type RuntimePathsConfig struct {
	Logs string `yaml:"logs"`
}

type rawAppConfig struct {
	Port               int                 `yaml:"port"`
	DSN                string              `yaml:"dsn"`
	DatabaseURL        string              `yaml:"database_url"`
	RedisURL           string              `yaml:"redis_url"`
	Database           rawDatabaseConfig   `yaml:"database"`
	Redis              rawRedisConfig      `yaml:"redis"`
	Mail               rawMailConfig       `yaml:"mail"`
	Newsletter         rawNewsletterConfig `yaml:"newsletter"`
	Env                string              `yaml:"env"`
	NodeEnv            string              `yaml:"node_env"`
	Paths              rawPathsConfig      `yaml:"paths"`
	LogDir             string              `yaml:"log_dir"`
	AllowedOrigins     []string            `yaml:"allowed_origins"`
	CORSAllowedOrigins []string            `yaml:"cors_allowed_origins"`
	JWTSecret          string              `yaml:"jwt_secret"`
	Timezone           string              `yaml:"timezone"`
	TZ                 string              `yaml:"tz"`
}

type rawDatabaseConfig struct {
	Driver    string            `yaml:"driver"`
	DSN       string            `yaml:"dsn"`
	URL       string            `yaml:"url"`
	Host      string            `yaml:"host"`
	Port      int               `yaml:"port"`
	User      string            `yaml:"user"`
	Username  string            `yaml:"username"`
	Password  string            `yaml:"password"`
	Name      string            `yaml:"name"`
	DBName    string            `yaml:"db_name"`
	Path      string            `yaml:"path"`
	Charset   string            `yaml:"charset"`
	ParseTime *bool             `yaml:"parse_time"`
	Loc       string            `yaml:"loc"`
	SSLMode   string            `yaml:"sslmode"`
	Params    map[string]string `yaml:"params"`
}

type rawRedisConfig struct {
	Enable   *bool             `yaml:"enable"`
	URL      string            `yaml:"url"`
	Host     string            `yaml:"host"`
	Port     int               `yaml:"port"`
	Username string            `yaml:"username"`
	Password string            `yaml:"password"`
	DB       *int              `yaml:"db"`
	TLS      *bool             `yaml:"tls"`
	Scheme   string            `yaml:"scheme"`
	Params   map[string]string `yaml:"params"`
}

type rawMailConfig struct {
	Enable    *bool  `yaml:"enable"`
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	User      string `yaml:"user"`
	Pass      string `yaml:"pass"`
	Password  string `yaml:"password"`
	From      string `yaml:"from"`
	FromName  string `yaml:"from_name"`
	ReplyTo   string `yaml:"reply_to"`
	Admin     string `yaml:"admin"`
	AdminName string `yaml:"admin_name"`
	Subject   string `yaml:"subject"`
	ResendKey string `yaml:"resend_key"`
}

type rawNewsletterConfig struct {
	Prefix          string `yaml:"prefix"`
	StoragePID      int    `yaml:"storage_pid"`
	HoneypotField   string `yaml:"honeypot_field"`
	DefaultLanguage string `yaml:"default_language"`
	StoragePages    []int  `yaml:"storage_pages"`
	RateLimit       *int   `yaml:"rate_limit"`
}

type rawPathsConfig struct {
	Logs string `yaml:"logs"`
}

func Load(configPath string) (*AppConfig, error) {
	path := strings.TrimSpace(configPath)
	if path == "" {
		path = DefaultConfigPath
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %q: %w", path, err)
	}
	cfg, err := Parse(content)
	if err != nil {
		return nil, fmt.Errorf("config file %q: %w", path, err)
	}
	if abs, err := filepath.Abs(path); err == nil {
		cfg.anchorPaths(filepath.Dir(abs))
	}
	return cfg, nil
}

// Parse decodes YAML content into a normalized AppConfig.
func Parse(content []byte) (*AppConfig, error) {
	cfg := defaultAppConfig()
	raw := rawAppConfig{}
	if len(bytes.TrimSpace(content)) > 0 {
		decoder := yaml.NewDecoder(bytes.NewReader(content))
		decoder.KnownFields(true)
		if err := decoder.Decode(&raw); err != nil {
			return nil, fmt.Errorf("parse: %w", err)
		}
	}

	applyRawAppConfig(&cfg, raw)
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d, expected 1-65535", cfg.Port)
	}
	if cfg.Database.Driver != DriverSQLite && (cfg.Database.Port < 1 || cfg.Database.Port > 65535) {
		return nil, fmt.Errorf("invalid database.port %d, expected 1-65535", cfg.Database.Port)
	}
	if cfg.Redis.Port < 1 || cfg.Redis.Port > 65535 {
		return nil, fmt.Errorf("invalid redis.port %d, expected 1-65535", cfg.Redis.Port)
	}
	if cfg.Redis.DB < 0 {
		return nil, fmt.Errorf("invalid redis.db %d, expected >= 0", cfg.Redis.DB)
	}
	if cfg.Mail.Port < 1 || cfg.Mail.Port > 65535 {
		return nil, fmt.Errorf("invalid mail.port %d, expected 1-65535", cfg.Mail.Port)
	}
	if cfg.Newsletter.StoragePID < 0 {
		return nil, fmt.Errorf("invalid newsletter.storage_pid %d, expected >= 0", cfg.Newsletter.StoragePID)
	}
	for _, pid := range cfg.Newsletter.StoragePages {
		if pid < 1 {
			return nil, fmt.Errorf("invalid newsletter.storage_pages entry %d, expected >= 1", pid)
		}
	}
	if cfg.Newsletter.RateLimit < 0 {
		return nil, fmt.Errorf("invalid newsletter.rate_limit %d, expected >= 0", cfg.Newsletter.RateLimit)
	}
	switch cfg.Database.Driver {
	case DriverMySQL, DriverPostgres, DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported database.driver %q", cfg.Database.Driver)
	}

	return &cfg, nil
}

func defaultAppConfig() AppConfig {
	cfg := AppConfig{
		Port: defaultPort,
		Env:  defaultEnv,
		Database: DatabaseRuntimeConfig{
			Driver:    defaultDBDriver,
			Host:      defaultDBHost,
			Port:      defaultDBPort,
			User:      defaultDBUser,
			Password:  defaultDBPassword,
			Name:      defaultDBName,
			Charset:   defaultDBCharset,
			ParseTime: true,
			Loc:       defaultDBLoc,
		},
		Redis: RedisRuntimeConfig{
			Host: defaultRedisHost,
			Port: defaultRedisPort,
			DB:   defaultRedisDB,
		},
		Mail: MailRuntimeConfig{
			Port:      defaultMailPort,
			From:      defaultMailFrom,
			FromName:  defaultMailName,
			AdminName: defaultAdminName,
			Subject:   defaultMailSubject,
		},
		Newsletter: NewsletterRuntimeConfig{
			Prefix:          defaultNewsletterPrefix,
			HoneypotField:   DefaultHoneypotField,
			DefaultLanguage: defaultLanguage,
		},
	}
	cfg.Database = normalizeDatabaseConfig(cfg.Database)
	cfg.Redis = normalizeRedisConfig(cfg.Redis)
	cfg.DSN = cfg.Database.DSNValue()
	cfg.RedisURL = cfg.Redis.URLValue()
	return cfg
}

func applyRawAppConfig(cfg *AppConfig, raw rawAppConfig) {
	if raw.Port != 0 {
		cfg.Port = raw.Port
	}
	cfg.Database = applyRawDatabaseConfig(cfg.Database, raw)
	cfg.Redis = applyRawRedisConfig(cfg.Redis, raw)
	cfg.Mail = applyRawMailConfig(cfg.Mail, raw.Mail)
	cfg.Newsletter = applyRawNewsletterConfig(cfg.Newsletter, raw.Newsletter)

	if v := strings.TrimSpace(raw.Env); v != "" {
		cfg.Env = v
	}
	if v := strings.TrimSpace(raw.NodeEnv); v != "" {
		cfg.Env = v
	}
	if v := strings.TrimSpace(raw.Paths.Logs); v != "" {
		cfg.Paths.Logs = v
	}
	if v := strings.TrimSpace(raw.LogDir); v != "" {
		cfg.Paths.Logs = v
	}

	switch {
	case raw.AllowedOrigins != nil:
		cfg.AllowedOrigins = normalizeOrigins(raw.AllowedOrigins)
	case raw.CORSAllowedOrigins != nil:
		cfg.AllowedOrigins = normalizeOrigins(raw.CORSAllowedOrigins)
	}

	if v := strings.TrimSpace(raw.JWTSecret); v != "" {
		cfg.JWTSecret = v
	}
	if v := strings.TrimSpace(raw.Timezone); v != "" {
		cfg.Timezone = v
	}
	if v := strings.TrimSpace(raw.TZ); v != "" {
		cfg.Timezone = v
	}

	cfg.DSN = cfg.Database.DSNValue()
	cfg.RedisURL = cfg.Redis.URLValue()
	cfg.Env = normalizeEnv(cfg.Env)
}

func applyRawDatabaseConfig(current DatabaseRuntimeConfig, raw rawAppConfig) DatabaseRuntimeConfig {
	cfg := current
	portSet := false

	if v := strings.TrimSpace(raw.Database.Driver); v != "" {
		cfg.Driver = v
	}
	if v := strings.TrimSpace(raw.Database.DSN); v != "" {
		cfg.DSN = v
	}
	if v := strings.TrimSpace(raw.Database.URL); v != "" {
		cfg.DSN = v
	}
	if v := strings.TrimSpace(raw.DSN); v != "" {
		cfg.DSN = v
	}
	if v := strings.TrimSpace(raw.DatabaseURL); v != "" {
		cfg.DSN = v
	}
	if v := strings.TrimSpace(raw.Database.Host); v != "" {
		cfg.Host = v
	}
	if raw.Database.Port != 0 {
		cfg.Port = raw.Database.Port
		portSet = true
	}
	if v := strings.TrimSpace(raw.Database.User); v != "" {
		cfg.User = v
	}
	if v := strings.TrimSpace(raw.Database.Username); v != "" {
		cfg.User = v
	}
	if v := strings.TrimSpace(raw.Database.Password); v != "" {
		cfg.Password = v
	}
	if v := strings.TrimSpace(raw.Database.Name); v != "" {
		cfg.Name = v
	}
	if v := strings.TrimSpace(raw.Database.DBName); v != "" {
		cfg.Name = v
	}
	if v := strings.TrimSpace(raw.Database.Path); v != "" {
		cfg.Path = v
	}
	if v := strings.TrimSpace(raw.Database.Charset); v != "" {
		cfg.Charset = v
	}
	if raw.Database.ParseTime != nil {
		cfg.ParseTime = *raw.Database.ParseTime
	}
	if v := strings.TrimSpace(raw.Database.Loc); v != "" {
		cfg.Loc = v
	}
	if v := strings.TrimSpace(raw.Database.SSLMode); v != "" {
		cfg.SSLMode = v
	}
	if raw.Database.Params != nil {
		cfg.Params = copyStringMap(raw.Database.Params)
	}

	cfg.Driver = normalizeDriver(cfg.Driver)
	if cfg.Driver == DriverPostgres && !portSet && cfg.Port == defaultDBPort {
		cfg.Port = defaultPGPort
	}
	return normalizeDatabaseConfig(cfg)
}

func applyRawRedisConfig(current RedisRuntimeConfig, raw rawAppConfig) RedisRuntimeConfig {
	cfg := current

	if raw.Redis.Enable != nil {
		cfg.Enable = *raw.Redis.Enable
	}
	if v := strings.TrimSpace(raw.Redis.URL); v != "" {
		cfg.URL = v
	}
	if v := strings.TrimSpace(raw.RedisURL); v != "" {
		cfg.URL = v
	}
	if v := strings.TrimSpace(raw.Redis.Host); v != "" {
		cfg.Host = v
	}
	if raw.Redis.Port != 0 {
		cfg.Port = raw.Redis.Port
	}
	if v := strings.TrimSpace(raw.Redis.Username); v != "" {
		cfg.Username = v
	}
	if v := strings.TrimSpace(raw.Redis.Password); v != "" {
		cfg.Password = v
	}
	if raw.Redis.DB != nil {
		cfg.DB = *raw.Redis.DB
	}
	if raw.Redis.TLS != nil {
		cfg.TLS = *raw.Redis.TLS
	}
	if v := strings.TrimSpace(raw.Redis.Scheme); v != "" {
		cfg.Scheme = v
	}
	if raw.Redis.Params != nil {
		cfg.Params = copyStringMap(raw.Redis.Params)
	}
	// A bare redis_url implies the operator wants redis.
	if raw.Redis.Enable == nil && cfg.URL != "" {
		cfg.Enable = true
	}
	return normalizeRedisConfig(cfg)
}

func applyRawMailConfig(current MailRuntimeConfig, raw rawMailConfig) MailRuntimeConfig {
	cfg := current

	if raw.Enable != nil {
		cfg.Enable = *raw.Enable
	}
	if v := strings.TrimSpace(raw.Host); v != "" {
		cfg.Host = v
	}
	if raw.Port != 0 {
		cfg.Port = raw.Port
	}
	if v := strings.TrimSpace(raw.User); v != "" {
		cfg.User = v
	}
	if v := strings.TrimSpace(raw.Pass); v != "" {
		cfg.Pass = v
	}
	if v := strings.TrimSpace(raw.Password); v != "" {
		cfg.Pass = v
	}
	if v := strings.TrimSpace(raw.From); v != "" {
		cfg.From = v
	}
	if v := strings.TrimSpace(raw.FromName); v != "" {
		cfg.FromName = v
	}
	if v := strings.TrimSpace(raw.ReplyTo); v != "" {
		cfg.ReplyTo = v
	}
	if v := strings.TrimSpace(raw.Admin); v != "" {
		cfg.Admin = v
	}
	if v := strings.TrimSpace(raw.AdminName); v != "" {
		cfg.AdminName = v
	}
	if v := strings.TrimSpace(raw.Subject); v != "" {
		cfg.Subject = v
	}
	if v := strings.TrimSpace(raw.ResendKey); v != "" {
		cfg.ResendKey = v
	}
	return cfg
}

func applyRawNewsletterConfig(current NewsletterRuntimeConfig, raw rawNewsletterConfig) NewsletterRuntimeConfig {
	cfg := current

	if v := strings.TrimSpace(raw.Prefix); v != "" {
		cfg.Prefix = v
	}
	if raw.StoragePID != 0 {
		cfg.StoragePID = raw.StoragePID
	}
	if v := strings.TrimSpace(raw.HoneypotField); v != "" {
		cfg.HoneypotField = v
	}
	if v := strings.TrimSpace(raw.DefaultLanguage); v != "" {
		cfg.DefaultLanguage = v
	}
	if raw.StoragePages != nil {
		cfg.StoragePages = append([]int(nil), raw.StoragePages...)
	}
	if raw.RateLimit != nil {
		cfg.RateLimit = *raw.RateLimit
	}
	cfg.Prefix = normalizePrefix(cfg.Prefix)
	return cfg
}

func (c *AppConfig) IsDev() bool {
	return strings.EqualFold(c.Env, defaultEnv)
}
