package cli

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dmitrijs2005/crewclock/internal/client/client"
	"github.com/dmitrijs2005/crewclock/internal/common"
	"github.com/dmitrijs2005/crewclock/internal/license"
)

// getSimpleText and getPassword are swapped in tests.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

// Register prompts for a username, display name and password and creates
// the account on the server. It needs connectivity.
func (a *App) Register(ctx context.Context, _ []string) error {
	username, err := getSimpleText(a.reader, "Enter username", a.out)
	if err != nil {
		return err
	}
	name, err := getSimpleText(a.reader, "Enter your name", a.out)
	if err != nil {
		return err
	}
	password, err := getPassword(a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	id, err := a.auth.Register(ctx, username, name, password)
	if err != nil {
		return err
	}
	a.printf("Registered worker #%d, you can log in now\n", id)
	return nil
}

// Login authenticates online and falls back to the cached credentials
// when the server is unreachable.
func (a *App) Login(ctx context.Context, _ []string) error {
	username, err := getSimpleText(a.reader, "Enter username", a.out)
	if err != nil {
		return err
	}
	password, err := getPassword(a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	s, err := a.auth.Login(ctx, username, password)
	if err != nil {
		if errors.Is(err, client.ErrLocalDataNotAvailable) {
			return errors.New("server unreachable and this device has no saved login")
		}
		return err
	}
	a.setSession(s)

	if s.Offline {
		a.printf("Logged in offline as %s\n", s.Username)
	} else {
		a.printf("Logged in as %s\n", s.Username)
		a.monitor.SyncNow()
	}
	for _, w := range s.License.Warnings {
		a.printf("License warning: %s\n", w)
	}
	return nil
}

func (a *App) Logout(ctx context.Context, _ []string) error {
	if err := a.auth.Logout(ctx); err != nil {
		return err
	}
	a.setSession(nil)
	a.printf("Logged out\n")
	return nil
}

// License prints the license status, as reported by the server when it is
// reachable and as evaluated from the cached copy otherwise.
func (a *App) License(ctx context.Context, _ []string) error {
	var st license.Status
	source := "cached"
	if a.isLoggedIn() && a.monitor.Online() {
		remote, err := a.api.LicenseStatus(ctx)
		if err == nil {
			st, source = *remote, "server"
		} else {
			a.log.Warn(ctx, "license status from server", "error", err)
		}
	}
	if source == "cached" {
		local, err := a.auth.LicenseStatus(ctx)
		if err != nil && !errors.Is(err, client.ErrLicense) {
			return err
		}
		st = local
	}
	a.printLicense(st, source)
	return nil
}

func (a *App) printLicense(st license.Status, source string) {
	state := "valid"
	if !st.IsValid {
		state = "INVALID"
	}
	a.printf("License (%s): %s\n", source, state)
	if st.LicenseID != "" {
		a.printf("  id:      %s\n", st.LicenseID)
	}
	if st.Issuer != "" {
		a.printf("  issuer:  %s\n", st.Issuer)
	}
	if st.SeatsMax > 0 {
		a.printf("  seats:   %d of %d\n", st.SeatsUsed, st.SeatsMax)
	}
	if st.ExpiresAt != nil {
		a.printf("  expires: %s", st.ExpiresAt.Format(time.DateOnly))
		if st.DaysRemaining != nil {
			a.printf(" (%d days)", *st.DaysRemaining)
		}
		a.printf("\n")
	}
	if len(st.Errors) > 0 {
		a.printf("  errors:   %s\n", strings.Join(st.Errors, "; "))
	}
	if len(st.Warnings) > 0 {
		a.printf("  warnings: %s\n", strings.Join(st.Warnings, "; "))
	}
}
