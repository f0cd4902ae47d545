package config

import "flag"

// parseFlags overlays command-line flags onto the config. Flags win over
// environment variables and the .env file.
func (c *Config) parseFlags(args []string) {
	fs := flag.NewFlagSet("fellis-server", flag.ContinueOnError)

	fs.StringVar(&c.Addr, "a", c.Addr, "address and port to bind the HTTP server")
	fs.StringVar(&c.DatabaseDSN, "d", c.DatabaseDSN, "PostgreSQL DSN")
	fs.StringVar(&c.SecretKey, "k", c.SecretKey, "HMAC secret for signing access tokens")
	fs.StringVar(&c.VaultKey, "vault-key", c.VaultKey, "secret for the token vault (empty = pass-through)")
	fs.StringVar(&c.MediaBackend, "media-backend", c.MediaBackend, "media store backend: local or s3")
	fs.StringVar(&c.MediaDir, "media-dir", c.MediaDir, "directory for the local media store")
	fs.DurationVar(&c.SweepInterval, "sweep-interval", c.SweepInterval, "retention sweep interval")

	_ = fs.Parse(args)
}
