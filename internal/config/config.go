package config

import (
	"fmt"
	"github.com/ilyakaznacheev/cleanenv"
	"log"
	"sync"
)

type Config struct {
	Env      string `yaml:"env" env-default:"local"`
	WhatsApp struct {
		AccessToken   string `yaml:"access_token" env-default:""`
		VerifyToken   string `yaml:"verify_token" env-default:""`
		AppSecret     string `yaml:"app_secret" env-default:""`
		PhoneNumberID string `yaml:"phone_number_id" env-default:""`
		Account       string `yaml:"account" env-default:"default"`
	} `yaml:"whatsapp"`
	Chatbot struct {
		Enabled               bool   `yaml:"enabled" env-default:"true"`
		SessionTimeoutMinutes int    `yaml:"session_timeout_minutes" env-default:"30"`
		SweepIntervalMinutes  int    `yaml:"sweep_interval_minutes" env-default:"60"`
		ScriptTimeoutSeconds  int    `yaml:"script_timeout_seconds" env-default:"5"`
		DefaultReply          string `yaml:"default_reply" env-default:""`
	} `yaml:"chatbot"`
	OpenAI struct {
		Enabled      bool    `yaml:"enabled" env-default:"false"`
		ApiKey       string  `yaml:"api_key" env-default:""`
		Model        string  `yaml:"model" env-default:"gpt-4o-mini"`
		SystemPrompt string  `yaml:"system_prompt" env-default:"You are a helpful assistant."`
		MaxTokens    int     `yaml:"max_tokens" env-default:"500"`
		Temperature  float32 `yaml:"temperature" env-default:"0.7"`
	} `yaml:"openai"`
	Telegram struct {
		Enabled bool   `yaml:"enabled" env-default:"false"`
		ApiKey  string `yaml:"api_key" env-default:""`
		AdminId int64  `yaml:"admin_id" env-default:"0"`
		BotName string `yaml:"bot_name" env-default:"WhatsFlowBot"`
	} `yaml:"telegram"`
	Mongo struct {
		Enabled  bool   `yaml:"enabled" env-default:"false"`
		Host     string `yaml:"host" env-default:"127.0.0.1"`
		Port     string `yaml:"port" env-default:"27017"`
		User     string `yaml:"user" env-default:"admin"`
		Password string `yaml:"password" env-default:"pass"`
		Database string `yaml:"database" env-default:""`
	} `yaml:"mongo"`
	Listen struct {
		BindIP string `yaml:"bind_ip" env-default:"127.0.0.1"`
		Port   string `yaml:"port" env-default:"9100"`
	} `yaml:"listen"`
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
