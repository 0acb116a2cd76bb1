package config

const (
	EnvPrefix = "SCHOOLMIS"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv     = "SCHOOLMIS_APP_ENV"
	EnvPort       = "SCHOOLMIS_APP_PORT"
	EnvDBDSN      = "SCHOOLMIS_DB_DSN"
	EnvDBHost     = "SCHOOLMIS_DB_HOST"
	EnvDBUser     = "SCHOOLMIS_DB_USER"
	EnvDBName     = "SCHOOLMIS_DB_NAME"
	EnvRedisURL   = "SCHOOLMIS_REDIS_URL"
	EnvJWTSecret  = "SCHOOLMIS_JWT_SECRET"
	EnvJWTIssuer  = "SCHOOLMIS_JWT_ISSUER"
	EnvJWTExpMins = "SCHOOLMIS_JWT_EXPIRATION_MINUTES"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
