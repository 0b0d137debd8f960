package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v2"
	"golang.org/x/term"
)

var (
	// ErrEmptyPassword ...
	ErrEmptyPassword = errors.New("password must not be empty")
	// ErrPasswordMismatch ...
	ErrPasswordMismatch = errors.New("passwords do not match")
	// ErrNoTerminal ...
	ErrNoTerminal = fmt.Errorf(
		"no terminal available to prompt the password, use --%s", passwordFileFlagName,
	)
)

// readPassword sources the wallet password from the password file if set,
// otherwise it prompts for it on the terminal.
func readPassword(ctx *cli.Context, prompt string) (string, error) {
	if path := ctx.String(passwordFileFlagName); path != "" {
		return readPasswordFile(path)
	}
	return promptPassword(prompt)
}

// readNewPassword prompts twice for a new password. The password file, if
// set, is trusted as is.
func readNewPassword(ctx *cli.Context, prompt string) (string, error) {
	if path := ctx.String(passwordFileFlagName); path != "" {
		return readPasswordFile(path)
	}
	return promptNewPassword(prompt)
}

func promptNewPassword(prompt string) (string, error) {
	password, err := promptPassword(prompt)
	if err != nil {
		return "", err
	}
	confirm, err := promptPassword("Confirm password: ")
	if err != nil {
		return "", err
	}
	if password != confirm {
		return "", ErrPasswordMismatch
	}
	return password, nil
}

func readPasswordFile(path string) (string, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading password file: %w", err)
	}
	password := strings.TrimRight(string(buf), "\r\n")
	if password == "" {
		return "", ErrEmptyPassword
	}
	return password, nil
}

func promptPassword(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", ErrNoTerminal
	}

	fmt.Fprint(os.Stderr, prompt)
	buf, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	if len(buf) == 0 {
		return "", ErrEmptyPassword
	}
	return string(buf), nil
}
