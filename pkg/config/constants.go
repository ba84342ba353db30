package config

// EnvPrefix is passed to envconfig; individual fields carry the full
// LOCALKART_ names so the prefix mostly documents intent.
const EnvPrefix = ""

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv   = "LOCALKART_APP_ENV"
	EnvPort     = "LOCALKART_APP_PORT"
	EnvDBDSN    = "LOCALKART_DB_DSN"
	EnvDBHost   = "LOCALKART_DB_HOST"
	EnvDBUser   = "LOCALKART_DB_USER"
	EnvDBName   = "LOCALKART_DB_NAME"
	EnvRedisURL = "LOCALKART_REDIS_URL"

	EnvJWTSecret  = "LOCALKART_JWT_SECRET"
	EnvJWTIssuer  = "LOCALKART_JWT_ISSUER"
	EnvJWTExpMins = "LOCALKART_JWT_EXPIRATION_MINUTES"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
