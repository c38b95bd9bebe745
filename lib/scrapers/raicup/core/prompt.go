package core

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

// CredentialPrompter supplies interactive credentials for sign-in.
type CredentialPrompter interface {
	Username() (string, error)
	Password() (string, error)
}

// TerminalPrompter reads credentials from the controlling terminal.
// The password is read without echo and is never stored or logged.
type TerminalPrompter struct{}

func (TerminalPrompter) Username() (string, error) {
	fmt.Fprint(os.Stderr, "username or email: ")
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (TerminalPrompter) Password() (string, error) {
	fmt.Fprint(os.Stderr, "password (is not stored anywhere): ")
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(password), nil
}
