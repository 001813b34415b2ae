// Package auth supplies OAuth bearer tokens for the calendar API, backed by a
// pluggable token store.
package auth

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"

	"golang.org/x/oauth2"

	"calreport/internal/apperr"
)

// Provider yields a usable bearer token.
type Provider interface {
	Acquire(ctx context.Context) (*oauth2.Token, error)
}

// Prompter asks the operator to authorize the application and returns the
// authorization code they paste back.
type Prompter interface {
	PromptCode(authURL string) (string, error)
}

// OAuthProvider returns a cached token when possible, refreshes expired ones
// and falls back to the interactive consent flow.
type OAuthProvider struct {
	config *oauth2.Config
	store  TokenStore
	prompt Prompter
	logger *slog.Logger
}

// NewOAuthProvider creates a provider for config persisting tokens in store.
func NewOAuthProvider(logger *slog.Logger, config *oauth2.Config, store TokenStore, prompt Prompter) *OAuthProvider {
	return &OAuthProvider{config: config, store: store, prompt: prompt, logger: logger}
}

// Acquire returns a valid token, writing any new or refreshed token to the store.
func (p *OAuthProvider) Acquire(ctx context.Context) (*oauth2.Token, error) {
	tok, err := p.store.Load()
	switch {
	case err == nil && tok.Valid():
		p.logger.Debug("Using cached token.", "expiry", tok.Expiry)
		return tok, nil
	case err == nil && tok.RefreshToken != "":
		p.logger.Info("Cached token expired, refreshing.")
		fresh, err := p.config.TokenSource(ctx, tok).Token()
		if err != nil {
			return nil, apperr.Wrap(apperr.ErrAuthentication, err, "refresh token")
		}
		if err := p.save(fresh); err != nil {
			return nil, err
		}
		return fresh, nil
	case err == nil:
		p.logger.Info("Cached token expired and cannot be refreshed, starting authorization.")
	case errors.Is(err, ErrNoToken):
		p.logger.Info("No cached token found, starting authorization.")
	default:
		p.logger.Warn("Could not read cached token, starting authorization.", "error", err)
	}

	return p.Authorize(ctx)
}

// Authorize runs the interactive consent flow unconditionally and stores the result.
func (p *OAuthProvider) Authorize(ctx context.Context) (*oauth2.Token, error) {
	authURL := p.config.AuthCodeURL("state-token", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	code, err := p.prompt.PromptCode(authURL)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrAuthentication, err, "read authorization code")
	}
	code = extractCode(code)
	if code == "" {
		return nil, fmt.Errorf("%w: authorization aborted", apperr.ErrAuthentication)
	}

	tok, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrAuthentication, err, "exchange authorization code")
	}
	if err := p.save(tok); err != nil {
		return nil, err
	}
	p.logger.Info("Successfully authenticated and saved token.")
	return tok, nil
}

func (p *OAuthProvider) save(tok *oauth2.Token) error {
	if err := p.store.Save(tok); err != nil {
		return apperr.Wrap(apperr.ErrIO, err, "save token")
	}
	return nil
}

// extractCode accepts either the bare code or the whole redirect URL the
// browser landed on.
func extractCode(input string) string {
	input = strings.TrimSpace(input)
	if u, err := url.Parse(input); err == nil && u.Scheme != "" {
		return u.Query().Get("code")
	}
	return input
}

// StaticProvider always returns the same token.
type StaticProvider struct {
	Token *oauth2.Token
}

func (p StaticProvider) Acquire(context.Context) (*oauth2.Token, error) {
	if p.Token == nil || p.Token.AccessToken == "" {
		return nil, fmt.Errorf("%w: no static token configured", apperr.ErrAuthentication)
	}
	return p.Token, nil
}

// ConsolePrompter prints the consent URL and reads the code from a terminal.
type ConsolePrompter struct {
	In  io.Reader
	Out io.Writer
}

func (c ConsolePrompter) PromptCode(authURL string) (string, error) {
	fmt.Fprintf(c.Out, "Go to the following link in your browser then type the "+
		"authorization code: \n%v\n", authURL)
	fmt.Fprint(c.Out, "Enter Authorization Code: ")

	line, err := bufio.NewReader(c.In).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
