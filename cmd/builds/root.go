package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/olavph/builds/config"
	fsb "github.com/olavph/builds/fs/billy"
	"github.com/olavph/builds/secrets"
)

// app carries state shared by subcommands after flag parsing.
type app struct {
	v      *viper.Viper
	cfg    *config.Config
	logger *slog.Logger
}

// overrides maps viper keys to the config fields they replace. Each key can
// be set by a persistent flag or a BUILDS_* environment variable.
var overrides = []struct {
	key   string
	flag  string
	usage string
	apply func(*config.Config, *viper.Viper, string)
}{
	{"work_dir", "work-dir", "base working directory", func(c *config.Config, v *viper.Viper, k string) { c.WorkDir = v.GetString(k) }},
	{"http_proxy", "http-proxy", "HTTP proxy for network operations", func(c *config.Config, v *viper.Viper, k string) { c.HTTPProxy = v.GetString(k) }},
	{"mock_binary", "mock-binary", "mock executable", func(c *config.Config, v *viper.Viper, k string) { c.MockBinary = v.GetString(k) }},
	{"archive_mode", "archive-mode", `archive strategy, "merge" or "concatenate"`, func(c *config.Config, v *viper.Viper, k string) { c.ArchiveMode = v.GetString(k) }},
	{"credentials.token", "git-token", "token for HTTPS git remotes", func(c *config.Config, v *viper.Viper, k string) { c.Credentials.Token = v.GetString(k) }},
	{"credentials.token_secret", "git-token-secret", "AWS Secrets Manager secret holding the git token", func(c *config.Config, v *viper.Viper, k string) { c.Credentials.TokenSecret = v.GetString(k) }},
	{"credentials.ssh_key_path", "ssh-key", "private key for SSH git remotes", func(c *config.Config, v *viper.Viper, k string) { c.Credentials.SSHKeyPath = v.GetString(k) }},
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:           "builds",
		Short:         "Synchronize source repositories and build chroots",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.String("config", "", "configuration file (.cue, .yaml or .yml)")
	pf.BoolP("verbose", "v", false, "enable debug logging")
	for _, o := range overrides {
		pf.String(o.flag, "", o.usage)
		_ = a.v.BindPFlag(o.key, pf.Lookup(o.flag))
	}

	a.v.SetEnvPrefix("BUILDS")
	a.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	a.v.AutomaticEnv()

	root.AddCommand(
		newCheckoutCmd(a),
		newArchiveCmd(a),
		newPushCmd(a),
		newVersionCmd(a),
		newChrootCmd(a),
	)

	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	level := slog.LevelInfo
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}
	a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	cfg := &config.Config{}
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		abs, err := filepath.Abs(path)
		if err != nil {
			return err
		}
		cfg, err = config.Read(cmd.Context(), fsb.NewOSFS("/"), abs)
		if err != nil {
			return err
		}
	}

	for _, o := range overrides {
		if a.v.IsSet(o.key) {
			o.apply(cfg, a.v, o.key)
		}
	}

	if cfg.WorkDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		cfg.WorkDir = wd
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}

	if cfg.Credentials.Token == "" && cfg.Credentials.TokenSecret != "" {
		client, err := secrets.NewClient(cmd.Context(), a.logger)
		if err != nil {
			return err
		}
		if err := secrets.ResolveToken(cmd.Context(), client, &cfg.Credentials); err != nil {
			return err
		}
	}

	a.cfg = cfg
	return nil
}
