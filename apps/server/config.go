package main

// Config is read from the optional YAML file; flags override it.
type Config struct {
	Addr          string   `yaml:"addr"`
	Origins       []string `yaml:"origins"`
	ChatModel     string   `yaml:"chatModel"`
	TemplateModel string   `yaml:"templateModel"`
	OllamaURL     string   `yaml:"ollamaURL"`
	LogFile       string   `yaml:"logFile"`
}

func defaultConfig() Config {
	return Config{
		Addr:          "localhost:8000",
		Origins:       []string{"http://localhost:3000", "http://127.0.0.1:3000"},
		ChatModel:     "gpt-4.1",
		TemplateModel: "gpt-4.1",
	}
}
