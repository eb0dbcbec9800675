package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

const (
	DefaultConfigPath    = "config.toml"
	DefaultHTTPAddr      = ":8080"
	DefaultPGHost        = "127.0.0.1"
	DefaultPGPort        = 5432
	DefaultPGUser        = "postgres"
	DefaultPGDatabase    = "relaydesk"
	DefaultPGSSLMode     = "disable"
	DefaultMediaTTL      = 30
	DefaultPruneSchedule = "0 4 * * *"
	DefaultThreadMaxAge  = 90
)

type Config struct {
	Log         LogConfig         `toml:"log"`
	Server      ServerConfig      `toml:"server"`
	Identity    IdentityConfig    `toml:"identity"`
	Chat        ChatConfig        `toml:"chat"`
	Mail        MailConfig        `toml:"mail"`
	Helpdesk    HelpdeskConfig    `toml:"helpdesk"`
	Media       MediaConfig       `toml:"media"`
	Postgres    PostgresConfig    `toml:"postgres"`
	Maintenance MaintenanceConfig `toml:"maintenance"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
	// PublicBaseURL is this service's externally reachable URL, used to
	// construct media relay links handed to the chat transport.
	PublicBaseURL string `toml:"public_base_url" validate:"required,url"`
}

// IdentityConfig controls the chat-address <-> pseudo-email mapping.
type IdentityConfig struct {
	// Domain is appended to the normalized digits to form the pseudo address.
	Domain string `toml:"domain" validate:"required,fqdn"`
}

// ChatConfig holds WhatsApp Business Cloud API credentials.
type ChatConfig struct {
	AccessToken   string `toml:"access_token" validate:"required"`
	PhoneNumberID string `toml:"phone_number_id" validate:"required"`
	VerifyToken   string `toml:"verify_token"`
	AppSecret     string `toml:"app_secret"`
	APIBase       string `toml:"api_base"`
}

type MailConfig struct {
	// Transport selects the outbound email adapter: "smtp" or "mailgun".
	Transport string `toml:"transport" validate:"oneof=smtp mailgun"`
	// HelpdeskInbox is the helpdesk's mail-intake address all inbound chat
	// messages are delivered to.
	HelpdeskInbox string `toml:"helpdesk_inbox" validate:"required,email"`
	// AllowedSenders lists trusted helpdesk mailbox addresses whose outbound
	// notifications may be relayed to chat.
	AllowedSenders []string `toml:"allowed_senders"`

	SMTP    SMTPConfig    `toml:"smtp"`
	Mailgun MailgunConfig `toml:"mailgun"`
}

type SMTPConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	Security string `toml:"security"`
}

type MailgunConfig struct {
	Domain            string `toml:"domain"`
	APIKey            string `toml:"api_key"`
	Region            string `toml:"region"`
	WebhookSigningKey string `toml:"webhook_signing_key"`
}

type HelpdeskConfig struct {
	BaseURL string `toml:"base_url" validate:"required,url"`
	Token   string `toml:"token" validate:"required"`
	// CreateVia selects the case-creation strategy: "api" creates the case
	// synchronously and captures the id; "email" lets the helpdesk convert
	// the first inbound mail into a case.
	CreateVia string `toml:"create_via" validate:"oneof=api email"`
	// AttributeRepliesTo decides whose name the helpdesk-side audit copy of
	// an agent reply is recorded under: "agent" or "requester".
	AttributeRepliesTo string `toml:"attribute_replies_to" validate:"oneof=agent requester"`
	// ReplyChannel selects how the audit copy is appended: "mail",
	// "messenger", or "note".
	ReplyChannel string `toml:"reply_channel" validate:"oneof=mail messenger note"`
}

type MediaConfig struct {
	// TTLMinutes bounds how long a relayed blob stays fetchable.
	TTLMinutes int `toml:"ttl_minutes"`
	// MaxEmailBytes is the cumulative attachment budget per outbound email,
	// kept below the transport ceiling to survive base64 inflation.
	MaxEmailBytes int64 `toml:"max_email_bytes"`
	// MaxChatFileBytes caps a single file relayed toward the chat transport.
	MaxChatFileBytes int64 `toml:"max_chat_file_bytes"`
	// MaxChatAttachments caps attachment count per outbound chat message.
	MaxChatAttachments int `toml:"max_chat_attachments"`
}

type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
}

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

type MaintenanceConfig struct {
	// PruneSchedule is a cron expression for the stale-thread sweep.
	PruneSchedule string `toml:"prune_schedule"`
	// ThreadMaxAgeDays is how long an untouched thread record is kept.
	ThreadMaxAgeDays int `toml:"thread_max_age_days"`
}

func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Mail: MailConfig{
			Transport: "smtp",
			SMTP: SMTPConfig{
				Port:     587,
				Security: "starttls",
			},
			Mailgun: MailgunConfig{
				Region: "us",
			},
		},
		Helpdesk: HelpdeskConfig{
			CreateVia:          "api",
			AttributeRepliesTo: "agent",
			ReplyChannel:       "note",
		},
		Media: MediaConfig{
			TTLMinutes:         DefaultMediaTTL,
			MaxEmailBytes:      18 * 1024 * 1024,
			MaxChatFileBytes:   15 * 1024 * 1024,
			MaxChatAttachments: 5,
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		Maintenance: MaintenanceConfig{
			PruneSchedule:    DefaultPruneSchedule,
			ThreadMaxAgeDays: DefaultThreadMaxAge,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Validate checks the loaded configuration for deployment mistakes that
// would otherwise only surface on the first relayed message.
func Validate(cfg Config) error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	switch cfg.Mail.Transport {
	case "smtp":
		if cfg.Mail.SMTP.Host == "" {
			return fmt.Errorf("invalid config: mail.smtp.host is required for the smtp transport")
		}
	case "mailgun":
		if cfg.Mail.Mailgun.Domain == "" || cfg.Mail.Mailgun.APIKey == "" {
			return fmt.Errorf("invalid config: mail.mailgun.domain and api_key are required for the mailgun transport")
		}
	}
	return nil
}
