package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/CosmoTheDev/scanboard/internal/config"
	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
)

var loginPasswordStdin bool

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Start a session with the scanning backend",
	Long: `Prompts for the backend password and stores the session token in
~/.scanboard/session. Every later command sends it as the auth_token cookie.

Use --password-stdin to read the password from standard input in scripts.`,
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the backend session and forget the stored token",
	RunE:  runLogout,
}

func init() {
	loginCmd.Flags().BoolVar(&loginPasswordStdin, "password-stdin", false,
		"Read the password from stdin instead of prompting")
}

func runLogin(cmd *cobra.Command, args []string) error {
	cfg, client, err := loadClient()
	if err != nil {
		return err
	}

	var password string
	if loginPasswordStdin {
		if password, err = readPassword(os.Stdin); err != nil {
			return fmt.Errorf("reading password from stdin: %w", err)
		}
	} else {
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Backend password").
					Description("Backend at " + cfg.API.URL).
					EchoMode(huh.EchoModePassword).
					Value(&password),
			),
		)
		if err := form.Run(); err != nil {
			return err
		}
	}

	ctx, cancel := requestContext()
	defer cancel()
	token, err := client.Login(ctx, password)
	if err != nil {
		return actionError(err)
	}
	if err := config.SaveSession(token); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	slog.Debug("session stored")
	fmt.Println(successStyle.Render("Logged in to " + cfg.API.URL))
	return nil
}

// readPassword reads the first line of r. Only the line terminator is
// stripped; spaces are part of the password.
func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("empty password")
	}
	return line, nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	_, client, err := loadClient()
	if err != nil {
		return err
	}
	if client.Session() != "" {
		ctx, cancel := requestContext()
		defer cancel()
		if err := client.Logout(ctx); err != nil {
			slog.Warn("backend logout failed; clearing local session anyway", "error", err)
		}
	}
	if err := config.ClearSession(); err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}
	fmt.Println("Logged out.")
	return nil
}
