package config

const (
	EnvPrefix = "MIVAHUB"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	StorageBackendGCS = "gcs"
	StorageBackendS3  = "s3"
)

const (
	EnvAppEnv          = "MIVAHUB_APP_ENV"
	EnvPort            = "MIVAHUB_APP_PORT"
	EnvDBDSN           = "MIVAHUB_DB_DSN"
	EnvDBHost          = "MIVAHUB_DB_HOST"
	EnvDBUser          = "MIVAHUB_DB_USER"
	EnvDBName          = "MIVAHUB_DB_NAME"
	EnvDBPassword      = "MIVAHUB_DB_PASSWORD"
	EnvRedisURL        = "MIVAHUB_REDIS_URL"
	EnvJWTSecret       = "MIVAHUB_JWT_SECRET"
	EnvJWTIssuer       = "MIVAHUB_JWT_ISSUER"
	EnvAdminEmails     = "MIVAHUB_ADMIN_EMAILS"
	EnvSemester        = "MIVAHUB_CURRENT_SEMESTER"
	EnvWorkerBaseURL   = "MIVAHUB_WORKER_BASE_URL"
	EnvCallbackToken   = "MIVAHUB_JOB_CALLBACK_TOKEN"
	EnvDispatchTimeout = "MIVAHUB_DISPATCH_TIMEOUT"
	EnvStorageBackend  = "MIVAHUB_STORAGE_BACKEND"
	EnvMaxUploadMB     = "MIVAHUB_MAX_UPLOAD_MB"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
