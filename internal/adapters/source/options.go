package source

import "github.com/aws/aws-sdk-go/service/s3/s3iface"

// Option configures an Opener.
type Option func(*Opener)

// WithS3Client sets the client used for s3:// URIs.
func WithS3Client(client s3iface.S3API) Option {
	return func(o *Opener) {
		if client != nil {
			o.s3 = client
		}
	}
}

// WithRegion sets the region used when the Opener builds its own S3 client.
func WithRegion(region string) Option {
	return func(o *Opener) {
		if region != "" {
			o.region = region
		}
	}
}
