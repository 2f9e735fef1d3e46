// Package licensetool implements the license authoring CLI: issuer key
// generation, signing, verification, status checks and upload to a server.
package licensetool

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dmitrijs2005/crewclock/internal/common"
	"github.com/dmitrijs2005/crewclock/internal/license"
	"github.com/dmitrijs2005/crewclock/internal/syncapi"
)

var errInvalid = errors.New("license is not valid")

// NewRootCommand builds the command tree. now is used for status checks
// and as the default issue date.
func NewRootCommand(now func() time.Time) *cobra.Command {
	root := &cobra.Command{
		Use:           "licensetool",
		Short:         "Create and inspect CrewClock licenses",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newKeygenCmd(),
		newSignCmd(now),
		newVerifyCmd(),
		newStatusCmd(now),
		newUploadCmd(),
	)
	return root
}

// readKeyArg accepts either the base64 key itself or a path to a file
// holding it.
func readKeyArg(v string) (string, error) {
	if v == "" {
		return "", errors.New("key is required")
	}
	if b, err := os.ReadFile(v); err == nil {
		return strings.TrimSpace(string(b)), nil
	}
	return v, nil
}

func publicKeyFlag(v string) (ed25519.PublicKey, error) {
	s, err := readKeyArg(v)
	if err != nil {
		return nil, fmt.Errorf("public %w", err)
	}
	return license.ParsePublicKey(s)
}

func newKeygenCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an issuer key pair",
		Long: `Generate an Ed25519 issuer key pair.

Without --out both keys are printed. With --out the keys are written to
<out>.pub and <out>.key; the private key file is readable by the owner only.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pub, priv, err := license.GenerateKey()
			if err != nil {
				return err
			}
			if out == "" {
				fmt.Fprintf(cmd.OutOrStdout(), "public:  %s\nprivate: %s\n", license.EncodeKey(pub), license.EncodeKey(priv))
				return nil
			}
			if err := os.WriteFile(out+".pub", []byte(license.EncodeKey(pub)+"\n"), 0o644); err != nil {
				return err
			}
			if err := os.WriteFile(out+".key", []byte(license.EncodeKey(priv)+"\n"), 0o600); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s.pub and %s.key\n", out, out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "file prefix for the key pair")
	return cmd
}

func newSignCmd(now func() time.Time) *cobra.Command {
	var (
		key, id, issuer, expires, out string
		seats                         int
	)
	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Sign a new license",
		Example: `  licensetool sign --key issuer.key --id LIC-2024-001 --seats 25 \
    --issuer "Acme Licensing" --expires 2025-12-31 --out acme.license`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := readKeyArg(key)
			if err != nil {
				return fmt.Errorf("private %w", err)
			}
			priv, err := license.ParsePrivateKey(s)
			if err != nil {
				return err
			}

			d := license.Data{
				LicenseID: id,
				SeatsMax:  seats,
				IssuedAt:  now().UTC().Truncate(time.Second),
				Issuer:    issuer,
			}
			if expires != "" {
				t, err := time.Parse(time.DateOnly, expires)
				if err != nil {
					return fmt.Errorf("--expires must be YYYY-MM-DD: %w", err)
				}
				// The license is usable through the whole expiry day.
				t = t.Add(24*time.Hour - time.Second)
				d.ExpiresAt = &t
			}

			l, err := license.Sign(d, priv)
			if err != nil {
				return err
			}
			raw, err := l.Marshal()
			if err != nil {
				return err
			}
			if out == "" {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), string(raw))
				return err
			}
			if err := os.WriteFile(out, append(raw, '\n'), 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", out)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&key, "key", "k", "", "issuer private key (base64 or file)")
	f.StringVar(&id, "id", "", "license id")
	f.IntVar(&seats, "seats", 0, "maximum number of active workers")
	f.StringVar(&issuer, "issuer", "", "issuer name")
	f.StringVar(&expires, "expires", "", "last valid day, YYYY-MM-DD (omit for a perpetual license)")
	f.StringVarP(&out, "out", "o", "", "output file (default stdout)")
	_ = cmd.MarkFlagRequired("key")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("seats")
	_ = cmd.MarkFlagRequired("issuer")
	return cmd
}

func newVerifyCmd() *cobra.Command {
	var pubKey string
	cmd := &cobra.Command{
		Use:   "verify <license-file>",
		Short: "Check a license signature",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pub, err := publicKeyFlag(pubKey)
			if err != nil {
				return err
			}
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			if !license.VerifyBytes(raw, pub) {
				fmt.Fprintln(cmd.OutOrStdout(), "signature: INVALID")
				return errInvalid
			}
			fmt.Fprintln(cmd.OutOrStdout(), "signature: OK")
			return nil
		},
	}
	cmd.Flags().StringVarP(&pubKey, "pubkey", "p", "", "issuer public key (base64 or file)")
	_ = cmd.MarkFlagRequired("pubkey")
	return cmd
}

func newStatusCmd(now func() time.Time) *cobra.Command {
	var (
		pubKey string
		seats  int
	)
	cmd := &cobra.Command{
		Use:   "status <license-file>",
		Short: "Evaluate a license for a number of seats in use",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pub, err := publicKeyFlag(pubKey)
			if err != nil {
				return err
			}
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			st := license.CheckStatusBytes(raw, pub, seats, now())
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(st); err != nil {
				return err
			}
			if !st.IsValid {
				return errInvalid
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&pubKey, "pubkey", "p", "", "issuer public key (base64 or file)")
	cmd.Flags().IntVar(&seats, "seats-used", 0, "number of active workers to check against")
	_ = cmd.MarkFlagRequired("pubkey")
	return cmd
}

func newUploadCmd() *cobra.Command {
	var (
		server, token string
		timeout       time.Duration
	)
	cmd := &cobra.Command{
		Use:   "upload <license-file>",
		Short: "Install a license on a CrewClock server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			return upload(ctx, http.DefaultClient, server, token, raw, cmd.OutOrStdout())
		},
	}
	f := cmd.Flags()
	f.StringVarP(&server, "server", "s", "http://localhost:8080", "server base URL")
	f.StringVarP(&token, "admin-token", "t", os.Getenv("CREWCLOCK_ADMIN_TOKEN"), "admin token (default $CREWCLOCK_ADMIN_TOKEN)")
	f.DurationVar(&timeout, "timeout", 30*time.Second, "request timeout")
	return cmd
}

func upload(ctx context.Context, c *http.Client, server, token string, raw []byte, out io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(server, "/")+"/api/admin/license", bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(common.AdminTokenHeader, token)

	resp, err := c.Do(req)
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("upload: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var e syncapi.ErrorResponse
		if json.Unmarshal(body, &e) != nil || e.Error == "" {
			e.Error = strings.TrimSpace(string(body))
		}
		return fmt.Errorf("upload rejected (%d): %s", resp.StatusCode, e.Error)
	}

	var st license.Status
	if err := json.Unmarshal(body, &st); err != nil {
		return fmt.Errorf("upload: decode status: %w", err)
	}
	fmt.Fprintf(out, "installed %s (%d of %d seats in use)\n", st.LicenseID, st.SeatsUsed, st.SeatsMax)
	for _, w := range st.Warnings {
		fmt.Fprintln(out, "warning:", w)
	}
	for _, e := range st.Errors {
		fmt.Fprintln(out, "error:", e)
	}
	return nil
}
