package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/term"

	"github.com/mskumargvd/arushi-cloud/pkg/models"
)

// Prompter asks the operator for first-run settings
type Prompter struct {
	in         *bufio.Reader
	out        io.Writer
	readSecret func() (string, error)
}

// NewPrompter creates a prompter. When in is a terminal, secrets are read
// without echo.
func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	p := &Prompter{
		in:  bufio.NewReader(in),
		out: out,
	}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fd := int(f.Fd())
		p.readSecret = func() (string, error) {
			b, err := term.ReadPassword(fd)
			fmt.Fprintln(out)
			return string(b), err
		}
	}
	return p
}

// Ask prints a prompt and returns the trimmed answer
func (p *Prompter) Ask(prompt string) (string, error) {
	fmt.Fprint(p.out, prompt)
	line, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// AskSecret is Ask without echo when possible
func (p *Prompter) AskSecret(prompt string) (string, error) {
	if p.readSecret == nil {
		return p.Ask(prompt)
	}
	fmt.Fprint(p.out, prompt)
	s, err := p.readSecret()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(s), nil
}

// LoadOrSetup loads the config file at path. If the file does not exist
// the operator is prompted for the required settings and the result is
// saved. A missing agent id is generated and persisted in either case.
func LoadOrSetup(path string, platform models.Platform, p *Prompter) (*AgentConfig, error) {
	cfg, err := LoadAgentConfig(path)
	saveNeeded := false

	switch {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist):
		if p == nil {
			return nil, fmt.Errorf("%w: no config file at %s", ErrMissingRequired, path)
		}
		cfg, err = runSetup(platform, p)
		if err != nil {
			return nil, err
		}
		saveNeeded = true
	default:
		return nil, err
	}

	if cfg.Agent.ID == "" {
		cfg.Agent.ID = uuid.NewString()
		if p != nil {
			fmt.Fprintf(p.out, "Generated new agent ID: %s\n", cfg.Agent.ID)
		}
		saveNeeded = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if saveNeeded {
		if err := SaveConfig(path, cfg); err != nil {
			return nil, err
		}
		if p != nil {
			fmt.Fprintln(p.out, "Configuration saved.")
		}
	}

	return cfg, nil
}

func runSetup(platform models.Platform, p *Prompter) (*AgentConfig, error) {
	cfg := DefaultAgentConfig()

	fmt.Fprintln(p.out, "--- Arushi Agent first-run setup ---")

	var err error
	if cfg.Server.URL, err = p.Ask("Server URL (e.g. https://...): "); err != nil {
		return nil, fmt.Errorf("failed to read server url: %w", err)
	}
	if cfg.Server.Secret, err = p.AskSecret("Agent secret key: "); err != nil {
		return nil, fmt.Errorf("failed to read secret: %w", err)
	}

	if platform == models.PlatformFreeBSD {
		fmt.Fprintln(p.out, "--- Firewall API ---")
		if cfg.Firewall.Key, err = p.Ask("Firewall API key: "); err != nil {
			return nil, fmt.Errorf("failed to read firewall key: %w", err)
		}
		if cfg.Firewall.Secret, err = p.AskSecret("Firewall API secret: "); err != nil {
			return nil, fmt.Errorf("failed to read firewall secret: %w", err)
		}
	}

	return cfg, nil
}
