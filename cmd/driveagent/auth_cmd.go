package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/codefionn/driveagent/internal/drive"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authorize read-only access to Google Drive",
	Long: `Run the OAuth consent flow for the client in credentials_path and store the
token at token_path. Service account credentials need no authorization.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := drive.Authorize(cmd.Context(), cfg.CredentialsPath, cfg.TokenPath, promptForCode); err != nil {
			return err
		}
		fmt.Println(color.GreenString("Token saved to %s", cfg.TokenPath))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(authCmd)
}

func promptForCode(url string) (string, error) {
	fmt.Fprintf(os.Stderr, "Open this URL in a browser and approve access:\n\n  %s\n\n", url)
	fmt.Fprint(os.Stderr, "Authorization code: ")

	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		bytes, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(bytes)), nil
	}

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	code := strings.TrimSpace(line)
	if code == "" {
		return "", errors.New("no authorization code entered")
	}
	return code, nil
}
