package config

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

var (
	globalConfig Config
	once         sync.Once
)

// Config 扁平化配置结构体
type Config struct {
	// 服务器配置
	ServerHost         string        `mapstructure:"server_host"`
	ServerPort         int           `mapstructure:"server_port"`
	ServerDomain       string        `mapstructure:"server_domain"`
	ServerReadTimeout  time.Duration `mapstructure:"server_read_timeout"`
	ServerWriteTimeout time.Duration `mapstructure:"server_write_timeout"`
	ServerIdleTimeout  time.Duration `mapstructure:"server_idle_timeout"`

	// 数据库配置
	DBType            string `mapstructure:"db_type"`
	DBHost            string `mapstructure:"db_host"`
	DBPort            int    `mapstructure:"db_port"`
	DBUsername        string `mapstructure:"db_username"`
	DBPassword        string `mapstructure:"db_password"`
	DBName            string `mapstructure:"db_name"`
	DBFilePath        string `mapstructure:"db_file_path"`
	DBMaxOpenConns    int    `mapstructure:"db_max_open_conns"`
	DBMaxIdleConns    int    `mapstructure:"db_max_idle_conns"`
	DBConnMaxLifetime int    `mapstructure:"db_conn_max_lifetime"`

	// 缓存提供者配置
	CacheType          string        `mapstructure:"cache_type"`
	CacheRedisAddr     string        `mapstructure:"cache_redis_addr"`
	CacheRedisPassword string        `mapstructure:"cache_redis_password"`
	CacheRedisDB       int           `mapstructure:"cache_redis_db"`
	CacheImageTTL      time.Duration `mapstructure:"cache_image_ttl"`

	// 限流配置
	RateLimitApiRPS     float64       `mapstructure:"rate_limit_api_rps"`
	RateLimitApiBurst   int           `mapstructure:"rate_limit_api_burst"`
	RateLimitImageRPS   float64       `mapstructure:"rate_limit_image_rps"`
	RateLimitImageBurst int           `mapstructure:"rate_limit_image_burst"`
	RateLimitExpireTime time.Duration `mapstructure:"rate_limit_expire_time"`

	// 存储配置
	StorageType          string `mapstructure:"storage_type"`
	StorageLocalPath     string `mapstructure:"storage_local_path"`
	StorageUploadsFolder string `mapstructure:"storage_uploads_folder"`
	StoragePublicPrefix  string `mapstructure:"storage_public_prefix"`

	StorageMinioEndpoint        string `mapstructure:"storage_minio_endpoint"`
	StorageMinioAccessKeyID     string `mapstructure:"storage_minio_access_key_id"`
	StorageMinioSecretAccessKey string `mapstructure:"storage_minio_secret_access_key"`
	StorageMinioBucketName      string `mapstructure:"storage_minio_bucket_name"`
	StorageMinioUseSSL          bool   `mapstructure:"storage_minio_use_ssl"`

	StorageWebDAVURL      string        `mapstructure:"storage_webdav_url"`
	StorageWebDAVUsername string        `mapstructure:"storage_webdav_username"`
	StorageWebDAVPassword string        `mapstructure:"storage_webdav_password"`
	StorageWebDAVRootPath string        `mapstructure:"storage_webdav_root_path"`
	StorageWebDAVTimeout  time.Duration `mapstructure:"storage_webdav_timeout"`

	// Discord 配置
	DiscordToken         string   `mapstructure:"discord_token"`
	DiscordCommandPrefix string   `mapstructure:"discord_command_prefix"`
	DiscordOwners        []string `mapstructure:"discord_owners"`

	// 采集配置
	ImageEncoder       string `mapstructure:"image_encoder"`
	RescanDefaultLimit int    `mapstructure:"rescan_default_limit"`
	RescanMaxLimit     int    `mapstructure:"rescan_max_limit"`

	// 随机同步配置
	RandomMinInterval int `mapstructure:"random_min_interval"`

	// 频道注册表刷新周期（cron 表达式）
	RegistryReloadSpec string `mapstructure:"registry_reload_spec"`

	// Worker 配置
	WorkerCount int `mapstructure:"worker_count"`

	// bot 进程的指标监听地址，为空时不启动
	MetricsAddr string `mapstructure:"metrics_addr"`
}

// InitConfig Initialize configuration
func InitConfig() {
	once.Do(func() {
		loadConfig()
	})
}

func Get() *Config {
	return &globalConfig
}

// loadConfig Core configuration loading
func loadConfig() {
	setDefaults()

	configFile := viper.GetString("config_file_path")
	if configFile == "" {
		configFile = ".env"
	}
	viper.SetConfigFile(configFile)
	viper.SetConfigType("env")

	if err := viper.ReadInConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "Info: %s not found, using defaults and environment variables\n", configFile)
	} else {
		fmt.Fprintf(os.Stderr, "Info: Loaded configuration from %s\n", configFile)
	}

	viper.AutomaticEnv()
	for _, key := range viper.AllKeys() {
		_ = viper.BindEnv(key)
	}

	if err := viper.Unmarshal(&globalConfig); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: Unable to unmarshal config, %v\n", err)
		os.Exit(1)
	}

	globalConfig.normalize()

	if err := globalConfig.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// setDefaults 设置默认值
func setDefaults() {
	// 服务器配置默认值
	viper.SetDefault("server_host", "127.0.0.1")
	viper.SetDefault("server_port", 5000)
	viper.SetDefault("server_domain", "")
	viper.SetDefault("server_read_timeout", "15s")
	viper.SetDefault("server_write_timeout", "30s")
	viper.SetDefault("server_idle_timeout", "120s")

	// 数据库配置默认值
	viper.SetDefault("db_type", "sqlite")
	viper.SetDefault("db_host", "localhost")
	viper.SetDefault("db_port", 5432)
	viper.SetDefault("db_username", "postgres")
	viper.SetDefault("db_password", "")
	viper.SetDefault("db_name", "discord2vrc")
	viper.SetDefault("db_file_path", "")
	viper.SetDefault("db_max_open_conns", 100)
	viper.SetDefault("db_max_idle_conns", 25)
	viper.SetDefault("db_conn_max_lifetime", 3600)

	// 缓存配置默认值
	viper.SetDefault("cache_type", "memory")
	viper.SetDefault("cache_redis_addr", "localhost:6379")
	viper.SetDefault("cache_redis_password", "")
	viper.SetDefault("cache_redis_db", 0)
	viper.SetDefault("cache_image_ttl", "60s")

	// 限流配置默认值
	viper.SetDefault("rate_limit_api_rps", 30.0)
	viper.SetDefault("rate_limit_api_burst", 60)
	viper.SetDefault("rate_limit_image_rps", 100.0)
	viper.SetDefault("rate_limit_image_burst", 200)
	viper.SetDefault("rate_limit_expire_time", "10m")

	// 存储配置默认值
	viper.SetDefault("storage_type", "local")
	viper.SetDefault("storage_local_path", "./static")
	viper.SetDefault("storage_uploads_folder", "uploads")
	viper.SetDefault("storage_public_prefix", "/static")
	viper.SetDefault("storage_minio_endpoint", "")
	viper.SetDefault("storage_minio_access_key_id", "")
	viper.SetDefault("storage_minio_secret_access_key", "")
	viper.SetDefault("storage_minio_bucket_name", "discord2vrc")
	viper.SetDefault("storage_minio_use_ssl", false)
	viper.SetDefault("storage_webdav_url", "")
	viper.SetDefault("storage_webdav_username", "")
	viper.SetDefault("storage_webdav_password", "")
	viper.SetDefault("storage_webdav_root_path", "")
	viper.SetDefault("storage_webdav_timeout", "30s")

	// Discord 配置默认值
	viper.SetDefault("discord_token", "")
	viper.SetDefault("discord_command_prefix", "!")
	viper.SetDefault("discord_owners", []string{})

	// 采集配置默认值
	viper.SetDefault("image_encoder", "std")
	viper.SetDefault("rescan_default_limit", 100)
	viper.SetDefault("rescan_max_limit", 1000)

	viper.SetDefault("random_min_interval", 5)
	viper.SetDefault("registry_reload_spec", "@every 30s")

	// Worker 配置默认值
	viper.SetDefault("worker_count", 0) // 0 表示使用默认值

	viper.SetDefault("metrics_addr", "")
}

// normalize 规整配置值
func (c *Config) normalize() {
	// WorkerCount: -1 = 使用 CPU 线程数, 0 = 使用默认值 (max(2, CPU核心数)), >0 = 使用指定值
	switch {
	case c.WorkerCount < 0:
		c.WorkerCount = runtime.GOMAXPROCS(0)
	case c.WorkerCount == 0:
		c.WorkerCount = getCpus()
	}

	c.DBType = strings.ToLower(strings.TrimSpace(c.DBType))
	c.CacheType = strings.ToLower(strings.TrimSpace(c.CacheType))
	c.StorageType = strings.ToLower(strings.TrimSpace(c.StorageType))
	c.ImageEncoder = strings.ToLower(strings.TrimSpace(c.ImageEncoder))
	c.StorageUploadsFolder = strings.Trim(c.StorageUploadsFolder, "/")
	c.StoragePublicPrefix = "/" + strings.Trim(c.StoragePublicPrefix, "/")

	owners := make([]string, 0, len(c.DiscordOwners))
	for _, owner := range c.DiscordOwners {
		if owner = strings.TrimSpace(owner); owner != "" {
			owners = append(owners, owner)
		}
	}
	c.DiscordOwners = owners

	if c.RescanDefaultLimit <= 0 {
		c.RescanDefaultLimit = 100
	}
	if c.RescanMaxLimit < c.RescanDefaultLimit {
		c.RescanMaxLimit = c.RescanDefaultLimit
	}
	if c.RandomMinInterval <= 0 {
		c.RandomMinInterval = 1
	}
}

// Validate 校验枚举类配置
func (c *Config) Validate() error {
	switch c.DBType {
	case "sqlite", "sqlite3", "postgres", "postgresql":
	default:
		return fmt.Errorf("unsupported db_type: %q", c.DBType)
	}

	switch c.CacheType {
	case "memory", "redis":
	default:
		return fmt.Errorf("unsupported cache_type: %q", c.CacheType)
	}

	switch c.StorageType {
	case "local", "minio", "webdav":
	default:
		return fmt.Errorf("unsupported storage_type: %q", c.StorageType)
	}

	switch c.ImageEncoder {
	case "std", "vips":
	default:
		return fmt.Errorf("unsupported image_encoder: %q", c.ImageEncoder)
	}

	if c.StorageUploadsFolder == "" {
		return fmt.Errorf("storage_uploads_folder must not be empty")
	}

	if err := validatePublicPrefix(c.StoragePublicPrefix); err != nil {
		return err
	}

	return nil
}

// reservedPrefixes 已被其他路由占用的一级路径
var reservedPrefixes = map[string]bool{
	"api":             true,
	"vrc":             true,
	"health":          true,
	"version":         true,
	"metrics":         true,
	"placeholder.png": true,
}

// validatePublicPrefix 文件路由挂载在该前缀下，不能是根路径或与其他路由重叠
func validatePublicPrefix(prefix string) error {
	trimmed := strings.Trim(prefix, "/")
	if trimmed == "" {
		return fmt.Errorf("storage_public_prefix must not be the root path: %q", prefix)
	}
	first, _, _ := strings.Cut(trimmed, "/")
	if reservedPrefixes[first] {
		return fmt.Errorf("storage_public_prefix %q conflicts with the /%s routes", prefix, first)
	}
	return nil
}

// Addr 返回监听地址，格式为 "host:port"
func (c *Config) Addr() string {
	host := c.ServerHost
	if host == "" {
		host = "0.0.0.0"
	}
	port := c.ServerPort
	if port == 0 {
		port = 5000
	}
	return fmt.Sprintf("%s:%d", host, port)
}

// BaseURL 返回基础 URL
func (c *Config) BaseURL() string {
	if c.ServerDomain != "" {
		return c.ServerDomain
	}
	host := c.ServerHost
	if host == "0.0.0.0" {
		host = "localhost"
	}
	return fmt.Sprintf("http://%s:%d", host, c.ServerPort)
}

// IsOwner 判断用户是否为配置的操作员
func (c *Config) IsOwner(userID string) bool {
	for _, owner := range c.DiscordOwners {
		if owner == userID {
			return true
		}
	}
	return false
}

// getCpus 获取默认线程数量
func getCpus() int {
	n := runtime.GOMAXPROCS(0)
	if n < 2 {
		return 2
	}
	return n
}
