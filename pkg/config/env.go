package config

// EnvPrefix is empty because every field tag carries its full variable name.
const EnvPrefix = ""

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv   = "STOREFRONT_APP_ENV"
	EnvPort     = "STOREFRONT_APP_PORT"
	EnvLogLevel = "STOREFRONT_LOG_LEVEL"

	EnvDBDSN  = "STOREFRONT_DB_DSN"
	EnvDBHost = "STOREFRONT_DB_HOST"
	EnvDBUser = "STOREFRONT_DB_USER"
	EnvDBName = "STOREFRONT_DB_NAME"

	EnvRedisURL = "STOREFRONT_REDIS_URL"

	EnvJWTSecret = "STOREFRONT_JWT_SECRET"
	EnvJWTIssuer = "STOREFRONT_JWT_ISSUER"

	EnvGCPProjectID = "STOREFRONT_GCP_PROJECT_ID"

	EnvPubSubOrdersTopic     = "STOREFRONT_PUBSUB_ORDERS_TOPIC"
	EnvPubSubNotificationSub = "STOREFRONT_PUBSUB_NOTIFICATION_SUBSCRIPTION"

	EnvPaystackSecretKey = "STOREFRONT_PAYSTACK_SECRET_KEY"

	EnvCheckoutShippingFee = "STOREFRONT_CHECKOUT_SHIPPING_FEE"
	EnvCheckoutTaxRate     = "STOREFRONT_CHECKOUT_TAX_RATE"
	EnvCheckoutCurrency    = "STOREFRONT_CHECKOUT_CURRENCY"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
