package sai

// Application-wide defaults shared by config, db and the binary.
const (
	DefaultAppName    = "sangamner-ai"
	Version           = "0.1.0"
	DefaultConfigPath = "/etc/sangamner-ai"

	DefaultDatabasePath = "data/sangamner-ai.db"

	DefaultNearbyEndpoint = "http://s-ai-3.109.133.205.nip.io/api/find-nearby/"
	DefaultGeminiModel    = "gemini-2.0-flash"

	DefaultServerAddr = ":8000"
)
