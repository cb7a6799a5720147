// Command fundauth-cli is a small operator console for a fund-management
// deployment: it signs in against the configured API, keeps the credential
// pair in a local file store, and reuses it across invocations the same way
// an interactive client session would.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/manifoldco/promptui"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	fundauth "github.com/campuskit/fundauth"
	"github.com/campuskit/fundauth/claims"
	"github.com/campuskit/fundauth/credential"
)

type cliConfig struct {
	BaseURL            string `yaml:"base_url"`
	LoginPath          string `yaml:"login_path"`
	RefreshPath        string `yaml:"refresh_path"`
	LogoutPath         string `yaml:"logout_path"`
	ChangePasswordPath string `yaml:"change_password_path"`
	CredentialFile     string `yaml:"credential_file"`
	Verbose            bool   `yaml:"verbose"`
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, promptui.ErrInterrupt) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "fundauth-cli",
		Short:         "Session console for the campus fund-management API",
		Long:          "Sign in to the fund-management API, inspect the active session, and sign out.\nCredentials persist in a local file between invocations.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath(), "path to the YAML config file")

	root.AddCommand(newLoginCmd(&configPath))
	root.AddCommand(newWhoamiCmd(&configPath))
	root.AddCommand(newLogoutCmd(&configPath))
	root.AddCommand(newPasswdCmd(&configPath))
	return root
}

func newLoginCmd(configPath *string) *cobra.Command {
	var identifier string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the credential pair locally",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := buildClient(*configPath)
			if err != nil {
				return err
			}

			if identifier == "" {
				prompt := promptui.Prompt{Label: "Identifier"}
				identifier, err = prompt.Run()
				if err != nil {
					return err
				}
			}
			secret, err := (&promptui.Prompt{Label: "Password", Mask: '*'}).Run()
			if err != nil {
				return err
			}

			result, err := client.Login(cmd.Context(), identifier, secret)
			if err != nil {
				return err
			}

			fmt.Printf("Signed in as %s (%s)\n", result.User.DisplayName, result.User.Role)
			if result.MustChangePassword {
				fmt.Println("This account must change its password before further use. Run: fundauth-cli passwd")
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&identifier, "user", "u", "", "account identifier (prompted when omitted)")
	return cmd
}

func newWhoamiCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the active session, if any",
		RunE: func(_ *cobra.Command, _ []string) error {
			client, err := buildClient(*configPath)
			if err != nil {
				return err
			}

			state := client.State()
			if !state.Authenticated {
				fmt.Println("Not signed in.")
				return nil
			}
			printProfile(state.User)
			return nil
		},
	}
}

func newLogoutCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Invalidate the session and remove the stored credentials",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := buildClient(*configPath)
			if err != nil {
				return err
			}
			client.Logout(cmd.Context())
			fmt.Println("Signed out.")
			return nil
		},
	}
}

func newPasswdCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "passwd",
		Short: "Change the password of the signed-in account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := buildClient(*configPath)
			if err != nil {
				return err
			}
			if !client.State().Authenticated {
				return fundauth.ErrNotAuthenticated
			}

			oldPassword, err := (&promptui.Prompt{Label: "Current password", Mask: '*'}).Run()
			if err != nil {
				return err
			}
			newPassword, err := (&promptui.Prompt{Label: "New password", Mask: '*'}).Run()
			if err != nil {
				return err
			}
			confirm, err := (&promptui.Prompt{Label: "Repeat new password", Mask: '*'}).Run()
			if err != nil {
				return err
			}
			if newPassword != confirm {
				return errors.New("new passwords do not match")
			}

			if err := client.ChangePassword(cmd.Context(), oldPassword, newPassword); err != nil {
				return err
			}
			fmt.Println("Password changed.")
			return nil
		},
	}
}

func buildClient(configPath string) (*fundauth.Client, error) {
	fs := afero.NewOsFs()
	cfg, err := loadConfig(fs, configPath)
	if err != nil {
		return nil, err
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("no base_url configured; create %s first", configPath)
	}

	logger := zerolog.Nop()
	if cfg.Verbose {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}

	clientCfg := applyConfig(cfg)
	store := credential.NewFileStore(fs, cfg.CredentialFile, clientCfg.Credential.SkewMargin)

	return fundauth.New().
		WithConfig(clientCfg).
		WithStore(store).
		WithLogger(logger).
		WithSessionEndHandler(func(event fundauth.Event) {
			fmt.Fprintln(os.Stderr, event.Message)
		}).
		Build()
}

// applyConfig maps the YAML file onto the client configuration, keeping
// library defaults for anything the file leaves unset. Idle detection stays
// off: a CLI invocation has no activity stream to feed the monitor.
func applyConfig(cfg cliConfig) fundauth.Config {
	out := fundauth.Config{}
	out.API.BaseURL = cfg.BaseURL
	out.API.LoginPath = orDefault(cfg.LoginPath, "/auth/login")
	out.API.RefreshPath = orDefault(cfg.RefreshPath, "/auth/refresh")
	out.API.LogoutPath = orDefault(cfg.LogoutPath, "/auth/logout")
	out.API.ChangePasswordPath = orDefault(cfg.ChangePasswordPath, "/auth/password")
	out.API.RequestTimeout = 30 * time.Second
	out.API.RenewalTimeout = 30 * time.Second
	return out
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func loadConfig(fs afero.Fs, path string) (cliConfig, error) {
	cfg := cliConfig{}
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.CredentialFile = defaultCredentialPath()
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.CredentialFile == "" {
		cfg.CredentialFile = defaultCredentialPath()
	}
	return cfg, nil
}

func printProfile(user *claims.Profile) {
	fmt.Printf("ID:    %s\n", user.ID)
	fmt.Printf("Name:  %s\n", user.DisplayName)
	fmt.Printf("Role:  %s\n", user.Role)
	if user.Email != "" {
		fmt.Printf("Email: %s\n", user.Email)
	}
	if user.MustChangePassword {
		fmt.Println("Note:  a password change is required.")
	}
}

func defaultConfigPath() string {
	return filepath.Join(homeDir(), ".fundauth", "config.yaml")
}

func defaultCredentialPath() string {
	return filepath.Join(homeDir(), ".fundauth", "credentials.json")
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
