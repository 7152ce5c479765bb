// Package prompt asks the operator for credentials and run settings.
//
// The commands take no flags: everything a run needs is collected here into
// a Config, which is then passed explicitly to the pipelines.
package prompt

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/mrsinham/mobiuskit/internal/mobius"
)

// ErrAborted is returned when the operator cancels a prompt.
var ErrAborted = errors.New("aborted")

// Config is everything a run needs from the operator.
type Config struct {
	BaseURL    string
	Username   string
	Password   string
	SearchTerm string
	DestDir    string
}

// NewConfig returns a Config pointing at the default server.
func NewConfig() *Config {
	return &Config{BaseURL: mobius.DefaultBaseURL}
}

// Validate checks the fields the stats pipeline needs.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL is required")
	}
	if err := validateRequired("username")(c.Username); err != nil {
		return err
	}
	return validateRequired("password")(c.Password)
}

// ValidateDownload checks the fields the download pipeline needs.
func (c *Config) ValidateDownload() error {
	if err := c.Validate(); err != nil {
		return err
	}
	return validateDir(c.DestDir)
}

func credentialsGroup(cfg *Config) *huh.Group {
	return huh.NewGroup(
		huh.NewInput().
			Key("username").
			Title(title("username")).
			Description(description("username")).
			Value(&cfg.Username).
			Validate(validateRequired("username")),

		huh.NewInput().
			Key("password").
			Title(title("password")).
			Description(description("password")).
			EchoMode(huh.EchoModePassword).
			Value(&cfg.Password).
			Validate(validateRequired("password")),
	)
}

// StatsForm asks for credentials only.
func StatsForm(cfg *Config) *huh.Form {
	return newForm(credentialsGroup(cfg))
}

// DownloadForm asks for credentials, then for the patient search string and
// the destination directory.
func DownloadForm(cfg *Config) *huh.Form {
	return newForm(
		credentialsGroup(cfg),
		huh.NewGroup(
			huh.NewInput().
				Key("search").
				Title(title("search")).
				Description(description("search")).
				Value(&cfg.SearchTerm),

			huh.NewInput().
				Key("dest").
				Title(title("dest")).
				Description(description("dest")).
				Value(&cfg.DestDir).
				Validate(validateDir),
		),
	)
}

// ReportForm asks where to export the statistics; path stays empty to skip.
func ReportForm(path *string) *huh.Form {
	return newForm(huh.NewGroup(
		huh.NewInput().
			Key("report").
			Title(title("report")).
			Description(description("report")).
			Value(path).
			Validate(validateReportPath),
	))
}

func newForm(groups ...*huh.Group) *huh.Form {
	return huh.NewForm(groups...).
		WithShowHelp(false).
		WithShowErrors(true).
		WithAccessible(!IsTerminal(os.Stdin))
}

// Run shows the form and maps a cancelled form to ErrAborted.
func Run(form *huh.Form) error {
	err := form.Run()
	if errors.Is(err, huh.ErrUserAborted) {
		return ErrAborted
	}
	return err
}

func validateRequired(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}

func validateDir(s string) error {
	if s == "" {
		return fmt.Errorf("destination directory is required")
	}
	fi, err := os.Stat(s)
	if err != nil {
		return fmt.Errorf("destination directory: %w", err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("%s is not a directory", s)
	}
	return nil
}

func validateReportPath(s string) error {
	if s == "" {
		return nil
	}
	if fi, err := os.Stat(s); err == nil && fi.IsDir() {
		return fmt.Errorf("%s is a directory", s)
	}
	return nil
}

// IsTerminal reports whether f is attached to a TTY (character device).
func IsTerminal(f *os.File) bool {
	if f == nil {
		return false
	}
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}
