package config

import "github.com/spf13/cobra"

// RegisterFlags registers common CLI flags on the provided root command
func RegisterFlags(cmd *cobra.Command) {
	if cmd == nil {
		return
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")
	cmd.PersistentFlags().BoolP("quiet", "q", false, "Suppress all output except errors")
	cmd.PersistentFlags().Bool("json", false, "Log in JSON format")
	cmd.PersistentFlags().String("proxy", "", "Comma separated HTTP/SOCKS5 proxies (e.g., http://localhost:8080)")
	cmd.PersistentFlags().String("timeout", "30s", "Default per-request timeout")
	cmd.PersistentFlags().String("user-agent", "", "Custom user agent string")
	cmd.PersistentFlags().StringArrayP("header", "H", nil, "Extra request header for every site (e.g., -H \"From: ops@example.org\")")
	cmd.PersistentFlags().String("config", "", "Path to configuration file (default plancrawl.json)")
	cmd.PersistentFlags().String("cursor-db", DefaultCursorDB, "SQLite database holding gather cursors")
	cmd.PersistentFlags().String("sites-dir", "", "Directory of extra scraper declarations (*.yaml)")
	cmd.PersistentFlags().Int("min-id-goal", DefaultMinIDGoal, "Default records wanted per gather tick")
	cmd.PersistentFlags().Float64("rate-limit", DefaultRateLimitRPS, "Requests per second per host")
}
