package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"golang.org/x/oauth2"

	"ytarchive/youtube"
)

const authState = "ytarchive"

// Execute implements the go-flags Commander interface.
func (c *AuthCommand) Execute([]string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg, err := loadConfig(c.globals)
	if err != nil {
		return err
	}
	if !cfg.HasUserCredentials() {
		return errors.New("auth: youtube.oauth_client_file is not configured")
	}
	oauthCfg, err := youtube.OAuthConfig(cfg.YouTube.OAuthClientFile)
	if err != nil {
		return err
	}
	return c.run(ctx, oauthCfg, cfg.YouTube.TokenFile, os.Stdout)
}

func (c *AuthCommand) run(ctx context.Context, oauthCfg *oauth2.Config, tokenFile string, out io.Writer) error {
	if c.Code == "" {
		fmt.Fprintln(out, "Open this URL, approve access, then run `ytarchive auth --code <code>`:")
		fmt.Fprintln(out, oauthCfg.AuthCodeURL(authState, oauth2.AccessTypeOffline))
		return nil
	}
	if err := youtube.Exchange(ctx, oauthCfg, c.Code, tokenFile); err != nil {
		return err
	}
	fmt.Fprintf(out, "Token saved to %s\n", tokenFile)
	return nil
}
