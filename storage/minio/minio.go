package minio

// DefaultEndpoint is used when S3_ENDPOINT is empty.
const DefaultEndpoint = "s3.amazonaws.com"

// Config contains S3-compatible storage connection configuration.
// Works with MinIO, AWS S3, and other S3-compatible providers.
type Config struct {
	Endpoint           string `envconfig:"S3_ENDPOINT"`                             // "localhost:9000" for MinIO
	AccessKey          string `envconfig:"S3_ACCESS_KEY" required:"true"`           // Access key ID
	SecretKey          string `envconfig:"S3_SECRET_KEY" required:"true"`           // Secret access key
	Region             string `envconfig:"S3_REGION" default:"us-east-1"`           // Region name
	Secure             bool   `envconfig:"S3_SECURE" default:"true"`                // Use HTTPS
	Timeout            int    `envconfig:"S3_TIMEOUT" default:"30"`                 // Connection check timeout in seconds
	InsecureSkipVerify bool   `envconfig:"S3_INSECURE_SKIP_VERIFY" default:"false"` // Skip TLS verification (for self-signed certs)
}

// GetEndpoint returns the endpoint to use, defaulting to AWS if not set.
func (c *Config) GetEndpoint() string {
	if c.Endpoint != "" {
		return c.Endpoint
	}
	return DefaultEndpoint
}
