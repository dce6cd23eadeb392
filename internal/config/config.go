package config

import (
	"fmt"
	"github.com/ilyakaznacheev/cleanenv"
	"log"
	"sync"
)

type Config struct {
	Env    string `yaml:"env" env-default:"local"`
	Listen struct {
		BindIP string `yaml:"bind_ip" env-default:"127.0.0.1"`
		Port   string `yaml:"port" env-default:"9200"`
		ApiKey string `yaml:"key" env-default:""`
	} `yaml:"listen"`
	Telegram struct {
		ApiKey  string `yaml:"api_key" env-default:""`
		AdminId int64  `yaml:"admin_id" env-default:"0"`
		BotName string `yaml:"bot_name" env-default:"OmniHubBot"`
		Enabled bool   `yaml:"enabled" env-default:"false"`
	} `yaml:"telegram"`
	Mongo struct {
		Enabled  bool   `yaml:"enabled" env-default:"false"`
		Host     string `yaml:"host" env-default:"127.0.0.1"`
		Port     string `yaml:"port" env-default:"27017"`
		User     string `yaml:"user" env-default:"admin"`
		Password string `yaml:"password" env-default:"pass"`
		Database string `yaml:"database" env-default:""`
	} `yaml:"mongo"`
	Rabbit struct {
		URL           string `yaml:"url" env-default:""`
		Exchange      string `yaml:"exchange" env-default:"channels"`
		DLQExchange   string `yaml:"dlq_exchange" env-default:"channels.dlq"`
		Buckets       int    `yaml:"buckets" env-default:"8"`
		MaxDeliver    int    `yaml:"max_deliver" env-default:"5"`
		Prefetch      int    `yaml:"prefetch" env-default:"16"`
		RPCTimeoutSec int    `yaml:"rpc_timeout_sec" env-default:"15"`
	} `yaml:"rabbit"`
	Outbox struct {
		Enabled       bool `yaml:"enabled" env-default:"true"`
		IntervalMS    int  `yaml:"interval_ms" env-default:"2000"`
		BatchSize     int  `yaml:"batch_size" env-default:"50"`
		MaxRetries    int  `yaml:"max_retries" env-default:"5"`
		BaseDelayMS   int  `yaml:"base_delay_ms" env-default:"1000"`
		BackoffFactor int  `yaml:"backoff_factor" env-default:"4"`
		MaxDelayMS    int  `yaml:"max_delay_ms" env-default:"1800000"`
	} `yaml:"outbox"`
	Files struct {
		SignSecret string `yaml:"sign_secret" env-default:""`
		URLTTLMin  int    `yaml:"url_ttl_min" env-default:"60"`
	} `yaml:"files"`
	Meta struct {
		VerifyToken string `yaml:"verify_token" env-default:""`
		AppSecret   string `yaml:"app_secret" env-default:""`
	} `yaml:"meta"`
}

var instance *Config
var once sync.Once

func MustLoad(path string) *Config {
	var err error
	once.Do(func() {
		instance = &Config{}
		if err = cleanenv.ReadConfig(path, instance); err != nil {
			desc, _ := cleanenv.GetDescription(instance, nil)
			err = fmt.Errorf("%s; %s", err, desc)
			instance = nil
			log.Fatal(err)
		}
	})
	return instance
}
