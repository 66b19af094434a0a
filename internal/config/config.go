package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ServerConfig 定义 HTTP 服务器的监听配置参数
type ServerConfig struct {
	Host string // 监听地址，默认 "0.0.0.0"
	Port int    // 监听端口，默认 8080
}

// CompanyConfig 定义公司邮箱的业务配置
type CompanyConfig struct {
	Addresses     []string // 公司自有邮箱地址列表，用于判定"我方已回复"
	DefaultSender string   // 草稿默认发件地址
}

// ZohoConfig 定义 Zoho Mail API 访问配置
type ZohoConfig struct {
	AccountID    string        // Zoho 账户 ID，必填
	Domain       string        // API 域名后缀，默认 "zoho.eu"
	ClientID     string        // OAuth 客户端 ID
	ClientSecret string        // OAuth 客户端密钥
	RefreshToken string        // OAuth 刷新令牌
	CallTimeout  time.Duration // 单次出站请求超时，默认 15s
	MaxRPS       float64       // 出站请求速率上限，默认 5 qps
}

// LLMConfig 定义语言模型能力的访问配置
type LLMConfig struct {
	BaseURL     string        // Chat Completions 兼容接口地址
	APIKey      string        // 接口密钥
	Model       string        // 模型名，默认 "gpt-4o-mini"
	CallTimeout time.Duration // 单次调用超时，默认 60s
	MaxRPS      float64       // 调用速率上限，默认 2 qps
}

// PipelineConfig 定义邮件处理流水线的运行参数
type PipelineConfig struct {
	FetchLimit     int           // 手动/定时触发时抓取的邮件数量，默认 30
	WebhookLimit   int           // Webhook 触发时的小批量抓取数量，默认 3
	ContentRetries int           // 正文抓取的最大尝试次数，默认 3
	RetryDelay     time.Duration // 正文抓取重试间隔，默认 1s
	Schedule       time.Duration // 定时轮询间隔，0 表示关闭定时触发
}

// StateConfig 定义已处理状态存储的配置
type StateConfig struct {
	Backend string // 存储后端: "file"（默认）或 "redis"
	Dir     string // file 后端的数据目录，默认 "./data"
}

// RedisConfig 定义 Redis 状态存储后端配置
type RedisConfig struct {
	Address  string // Redis 服务地址，格式 "host:port"
	Password string // Redis 认证密码，留空表示无密码
	DB       int    // Redis 数据库编号，默认 0
}

// DatabaseConfig 定义审计数据库连接配置（支持 MySQL 和 PostgreSQL）
type DatabaseConfig struct {
	Type            string        // 数据库类型: "mysql" 或 "postgres"，留空关闭审计
	DSN             string        // 数据库连接字符串
	MaxOpenConns    int           // 最大打开连接数，默认 10
	MaxIdleConns    int           // 最大空闲连接数，默认 2
	ConnMaxLifetime time.Duration // 连接最大生命周期，默认 5 分钟
}

// CORSConfig 定义跨域资源共享 (CORS) 配置
type CORSConfig struct {
	AllowedOrigins []string // 允许的来源列表，"*" 表示允许所有来源
}

// LogConfig 定义日志系统配置
type LogConfig struct {
	Level       string // 日志级别: debug, info, warn, error
	Development bool   // 开发模式: 启用彩色输出和详细堆栈信息
	File        string // 日志文件路径，留空只输出到 stdout
}

// JWTConfig 定义管理接口的 JWT 认证配置
type JWTConfig struct {
	Secret        string        // JWT 签名密钥，必须至少 32 字符
	Issuer        string        // JWT 签发者标识，默认 "leads-agent"
	AccessExpiry  time.Duration // 访问令牌有效期，默认 15 分钟
	RefreshExpiry time.Duration // 刷新令牌有效期，默认 7 天
}

// AdminConfig 定义运营者账号配置（单账号）
type AdminConfig struct {
	Username     string // 登录用户名，默认 "admin"
	PasswordHash string // bcrypt 密码哈希，留空时管理接口不可登录
}

// TelegramConfig 定义批处理结果的 Telegram 通知配置
type TelegramConfig struct {
	BotToken string // Bot API 令牌，留空关闭通知
	ChatID   string // 接收通知的会话 ID
}

// Config 是系统核心配置的根结构体，包含所有子系统的配置
type Config struct {
	Server   ServerConfig
	Company  CompanyConfig
	Zoho     ZohoConfig
	LLM      LLMConfig
	Pipeline PipelineConfig
	State    StateConfig
	Redis    RedisConfig
	Database DatabaseConfig
	CORS     CORSConfig
	Log      LogConfig
	JWT      JWTConfig
	Admin    AdminConfig
	Telegram TelegramConfig
}

// Load 从环境变量和 .env 文件加载系统配置
//
// 配置加载优先级（从高到低）：
//  1. 系统环境变量（最高优先级）
//  2. .env 文件（如果存在）
//  3. 默认值
//
// 环境变量前缀: LEADS_
// 例如: LEADS_ZOHO_ACCOUNT_ID, LEADS_COMPANY_ADDRESSES
func Load() (*Config, error) {
	// 尝试加载 .env 文件（静默失败，因为 .env 文件是可选的）
	loadEnvFile()

	viper.SetEnvPrefix("leads")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("company.addresses", "customers@deepcleaning.ie,info@deepcleaning.ie")
	viper.SetDefault("company.default_sender", "info@deepcleaning.ie")
	viper.SetDefault("zoho.domain", "zoho.eu")
	viper.SetDefault("zoho.call_timeout", "15s")
	viper.SetDefault("zoho.max_rps", 5.0)
	viper.SetDefault("llm.base_url", "https://api.openai.com/v1")
	viper.SetDefault("llm.model", "gpt-4o-mini")
	viper.SetDefault("llm.call_timeout", "60s")
	viper.SetDefault("llm.max_rps", 2.0)
	viper.SetDefault("pipeline.fetch_limit", 30)
	viper.SetDefault("pipeline.webhook_limit", 3)
	viper.SetDefault("pipeline.content_retries", 3)
	viper.SetDefault("pipeline.retry_delay", "1s")
	viper.SetDefault("pipeline.schedule", "0")
	viper.SetDefault("state.backend", "file")
	viper.SetDefault("state.dir", "./data")
	viper.SetDefault("redis.address", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("database.type", "") // 默认为空，关闭审计存储
	viper.SetDefault("database.dsn", "")
	viper.SetDefault("database.max_open_conns", 10)
	viper.SetDefault("database.max_idle_conns", 2)
	viper.SetDefault("database.conn_max_lifetime", "5m")
	viper.SetDefault("cors.allowed_origins", "*")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.development", false)
	viper.SetDefault("log.file", "")
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("jwt.issuer", "leads-agent")
	viper.SetDefault("jwt.access_expiry", "15m")
	viper.SetDefault("jwt.refresh_expiry", "168h")
	viper.SetDefault("admin.username", "admin")
	viper.SetDefault("admin.password_hash", "")
	viper.SetDefault("telegram.bot_token", "")
	viper.SetDefault("telegram.chat_id", "")

	companyAddresses := parseList(viper.GetString("company.addresses"))
	if len(companyAddresses) == 0 {
		return nil, fmt.Errorf("company.addresses must not be empty")
	}

	accountID := viper.GetString("zoho.account_id")
	if accountID == "" {
		return nil, fmt.Errorf("zoho.account_id is required (set LEADS_ZOHO_ACCOUNT_ID)")
	}

	callTimeout, err := time.ParseDuration(viper.GetString("zoho.call_timeout"))
	if err != nil {
		return nil, fmt.Errorf("invalid zoho.call_timeout: %w", err)
	}

	llmTimeout, err := time.ParseDuration(viper.GetString("llm.call_timeout"))
	if err != nil {
		return nil, fmt.Errorf("invalid llm.call_timeout: %w", err)
	}

	retryDelay, err := time.ParseDuration(viper.GetString("pipeline.retry_delay"))
	if err != nil {
		retryDelay = time.Second
	}

	schedule := parseOptionalDuration(viper.GetString("pipeline.schedule"))

	stateBackend := viper.GetString("state.backend")
	if stateBackend != "file" && stateBackend != "redis" {
		return nil, fmt.Errorf("unsupported state.backend: %s (supported: file, redis)", stateBackend)
	}

	dbType := viper.GetString("database.type")
	if dbType != "" && dbType != "mysql" && dbType != "postgres" {
		return nil, fmt.Errorf("unsupported database.type: %s (supported: mysql, postgres)", dbType)
	}

	connMaxLifetime, err := time.ParseDuration(viper.GetString("database.conn_max_lifetime"))
	if err != nil {
		connMaxLifetime = 5 * time.Minute
	}

	corsOrigins := parseList(viper.GetString("cors.allowed_origins"))
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}

	accessExpiry, err := time.ParseDuration(viper.GetString("jwt.access_expiry"))
	if err != nil {
		accessExpiry = 15 * time.Minute
	}

	refreshExpiry, err := time.ParseDuration(viper.GetString("jwt.refresh_expiry"))
	if err != nil {
		refreshExpiry = 7 * 24 * time.Hour
	}

	jwtSecret := viper.GetString("jwt.secret")

	// 安全检查：禁止使用默认的 JWT secret
	if jwtSecret == "change-me-in-production" {
		return nil, fmt.Errorf("SECURITY ERROR: JWT secret cannot be the default value. Please set LEADS_JWT_SECRET environment variable")
	}
	if len(jwtSecret) < 32 {
		return nil, fmt.Errorf("SECURITY ERROR: JWT secret must be at least 32 characters long")
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: viper.GetString("server.host"),
			Port: viper.GetInt("server.port"),
		},
		Company: CompanyConfig{
			Addresses:     companyAddresses,
			DefaultSender: viper.GetString("company.default_sender"),
		},
		Zoho: ZohoConfig{
			AccountID:    accountID,
			Domain:       viper.GetString("zoho.domain"),
			ClientID:     viper.GetString("zoho.client_id"),
			ClientSecret: viper.GetString("zoho.client_secret"),
			RefreshToken: viper.GetString("zoho.refresh_token"),
			CallTimeout:  callTimeout,
			MaxRPS:       viper.GetFloat64("zoho.max_rps"),
		},
		LLM: LLMConfig{
			BaseURL:     strings.TrimRight(viper.GetString("llm.base_url"), "/"),
			APIKey:      viper.GetString("llm.api_key"),
			Model:       viper.GetString("llm.model"),
			CallTimeout: llmTimeout,
			MaxRPS:      viper.GetFloat64("llm.max_rps"),
		},
		Pipeline: PipelineConfig{
			FetchLimit:     viper.GetInt("pipeline.fetch_limit"),
			WebhookLimit:   viper.GetInt("pipeline.webhook_limit"),
			ContentRetries: viper.GetInt("pipeline.content_retries"),
			RetryDelay:     retryDelay,
			Schedule:       schedule,
		},
		State: StateConfig{
			Backend: stateBackend,
			Dir:     viper.GetString("state.dir"),
		},
		Redis: RedisConfig{
			Address:  viper.GetString("redis.address"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		Database: DatabaseConfig{
			Type:            dbType,
			DSN:             viper.GetString("database.dsn"),
			MaxOpenConns:    viper.GetInt("database.max_open_conns"),
			MaxIdleConns:    viper.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: connMaxLifetime,
		},
		CORS: CORSConfig{
			AllowedOrigins: corsOrigins,
		},
		Log: LogConfig{
			Level:       viper.GetString("log.level"),
			Development: viper.GetBool("log.development"),
			File:        viper.GetString("log.file"),
		},
		JWT: JWTConfig{
			Secret:        jwtSecret,
			Issuer:        viper.GetString("jwt.issuer"),
			AccessExpiry:  accessExpiry,
			RefreshExpiry: refreshExpiry,
		},
		Admin: AdminConfig{
			Username:     viper.GetString("admin.username"),
			PasswordHash: viper.GetString("admin.password_hash"),
		},
		Telegram: TelegramConfig{
			BotToken: viper.GetString("telegram.bot_token"),
			ChatID:   viper.GetString("telegram.chat_id"),
		},
	}

	if cfg.Pipeline.FetchLimit <= 0 {
		cfg.Pipeline.FetchLimit = 30
	}
	if cfg.Pipeline.WebhookLimit <= 0 {
		cfg.Pipeline.WebhookLimit = 3
	}
	if cfg.Pipeline.ContentRetries <= 0 {
		cfg.Pipeline.ContentRetries = 3
	}

	return cfg, nil
}

// loadEnvFile 查找并加载 .env 文件（当前目录或父目录）
func loadEnvFile() {
	candidates := []string{".env", filepath.Join("..", ".env")}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

// parseList 拆分逗号分隔的配置项并裁剪空白
func parseList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// parseOptionalDuration 解析可选的时长配置，"0" 或非法值返回 0
func parseOptionalDuration(raw string) time.Duration {
	if raw == "" || raw == "0" {
		return 0
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0
	}
	return d
}
