package config

// NotifxConfig configures outbound email.
type NotifxConfig struct {
	Provider    string // console | ses
	FromAddress string
	FromName    string
	AWSRegion   string
	MaxAttempts int
}

func loadNotifxConfig() NotifxConfig {
	return NotifxConfig{
		Provider:    getEnv("NOTIFX_PROVIDER", "console"),
		FromAddress: getEnv("NOTIFX_FROM_ADDRESS", getEnv("EMAIL_FROM_ADDRESS", "billing@tenantry.dev")),
		FromName:    getEnv("NOTIFX_FROM_NAME", getEnv("EMAIL_FROM_NAME", "Tenantry")),
		AWSRegion:   getEnv("NOTIFX_AWS_REGION", getEnv("AWS_REGION", "ap-south-1")),
		MaxAttempts: getEnvInt("NOTIFX_MAX_ATTEMPTS", 3),
	}
}
