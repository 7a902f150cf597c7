// Package config handles loading and validating knxnetd configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with KNXNET_* environment variables
//   - Validation of every section, reporting all problems at once
//   - Conversion of the knxnet section into a client.Config
//
// Security Considerations:
//   - Sensitive values (passwords, tokens) should be set via environment variables
//   - The config file should have restricted permissions (0600)
//   - An empty JWT secret leaves the read-only status surface unauthenticated;
//     bind it to loopback in that case
//
// Usage:
//
//	cfg, err := config.Load("configs/knxnetd.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	clientCfg, err := cfg.KNXNet.ToClientConfig()
package config
