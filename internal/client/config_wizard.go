package client

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"eta/internal/constants"
	"eta/internal/session"
	"eta/internal/utils"
)

// RunConfigWizard asks for the session settings, falling back to defaults
// on empty or invalid answers.
func RunConfigWizard(in io.Reader, p *Printer, defaults session.Configuration) session.Configuration {
	reader := bufio.NewReader(in)
	cfg := defaults

	p.Step("Duration (1-1440 min)")
	p.printf("  %sMinutes [%d]:%s ", ColorBold, int(defaults.ExpiresAfter.Minutes()), ColorReset)
	durationStr, _ := reader.ReadString('\n')
	durationStr = strings.TrimSpace(durationStr)

	if durationStr != "" {
		mins, err := strconv.Atoi(durationStr)
		if err == nil && mins > 0 {
			expiresAfter := time.Duration(mins) * time.Minute
			if expiresAfter < constants.MinExpiresAfter {
				expiresAfter = constants.MinExpiresAfter
				p.Hint(fmt.Sprintf("-> clamped to %s", utils.FormatDuration(expiresAfter)))
			} else if expiresAfter > constants.MaxExpiresAfter {
				expiresAfter = constants.MaxExpiresAfter
				p.Hint(fmt.Sprintf("-> clamped to %s", utils.FormatDuration(expiresAfter)))
			} else {
				p.Hint("-> " + utils.FormatDuration(expiresAfter))
			}
			cfg.ExpiresAfter = expiresAfter
		} else {
			p.Hint("-> default: " + utils.FormatDuration(defaults.ExpiresAfter))
		}
	}
	p.printf("\n")

	p.Step("Private mode (hide the route from the subscriber)")
	p.printf("  %sPrivate [%s]:%s ", ColorBold, yesNo(defaults.PrivateMode), ColorReset)
	privateStr, _ := reader.ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(privateStr)) {
	case "y", "yes":
		cfg.PrivateMode = true
	case "n", "no":
		cfg.PrivateMode = false
	}
	p.printf("\n")

	return cfg
}

func yesNo(b bool) string {
	if b {
		return "Y/n"
	}
	return "y/N"
}
