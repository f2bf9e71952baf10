package auth

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"golang.org/x/oauth2"
)

// TerminalToken returns a usable Gmail token for command line scans. The
// token is read from tokFile, or obtained by prompting for a consent code
// when the file does not exist. Refreshed tokens are written back.
func TerminalToken(ctx context.Context, config *oauth2.Config, tokFile string, in io.Reader, out io.Writer) (*oauth2.Token, error) {
	tok, err := TokenFromFile(tokFile)
	if errors.Is(err, fs.ErrNotExist) {
		tok, err = TokenFromPrompt(ctx, config, in, out)
		if err != nil {
			return nil, err
		}
		if err := SaveToken(tokFile, tok); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	fresh, err := config.TokenSource(ctx, tok).Token()
	if err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}
	if fresh.AccessToken != tok.AccessToken {
		if err := SaveToken(tokFile, fresh); err != nil {
			return nil, err
		}
	}
	return fresh, nil
}

// TokenFromPrompt prints the consent URL and reads the code the user pastes.
func TokenFromPrompt(ctx context.Context, config *oauth2.Config, in io.Reader, out io.Writer) (*oauth2.Token, error) {
	authURL := config.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
	fmt.Fprintf(out, "\n---------------------------------------------------------\n")
	fmt.Fprintf(out, "OPEN THIS LINK TO AUTHORIZE GMAIL ACCESS:\n%v\n", authURL)
	fmt.Fprintf(out, "---------------------------------------------------------\n")
	fmt.Fprintf(out, "After logging in, Google will give you a code (or check the URL bar localhost callback).\n")
	fmt.Fprintf(out, "Paste the code here: ")

	authCode, err := bufio.NewReader(in).ReadString('\n')
	authCode = strings.TrimSpace(authCode)
	if authCode == "" {
		if err == nil {
			err = errors.New("empty code")
		}
		return nil, fmt.Errorf("read authorization code: %w", err)
	}

	tok, err := config.Exchange(ctx, authCode)
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}
	return tok, nil
}

// TokenFromFile reads a token saved by SaveToken.
func TokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, fmt.Errorf("decode %s: %w", file, err)
	}
	return tok, nil
}

// SaveToken writes a token to path, readable by the owner only.
func SaveToken(path string, token *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("cache oauth token: %w", err)
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(token)
}
