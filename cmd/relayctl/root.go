package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/bulatminnakhmetov/media-relay/internal/config"
	"github.com/bulatminnakhmetov/media-relay/internal/handler/auth"
	"github.com/bulatminnakhmetov/media-relay/internal/relay"
)

var errRelayFailed = errors.New("relay failed")

type relayer interface {
	Relay(ctx context.Context, req relay.UploadRequest, cfg relay.BackendConfig) relay.Result
}

func newRootCmd(cfg *config.Config, r relayer) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "relayctl",
		Short:         "Relay media files to remote hosts from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(
		newRelayCmd(cfg, r),
		newBackendsCmd(cfg),
		newTokenCmd(cfg),
	)

	return cmd
}

func newRelayCmd(cfg *config.Config, r relayer) *cobra.Command {
	var (
		backendName string
		mimeType    string
	)

	cmd := &cobra.Command{
		Use:   "relay <file>",
		Short: "Upload one file to a backend and print the result as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if backendName == "" {
				backendName = cfg.ActiveBackend
			}
			backend, err := cfg.BackendByName(backendName)
			if err != nil {
				return err
			}

			res := r.Relay(cmd.Context(), relay.UploadRequest{Path: args[0], MIMEType: mimeType}, backend)

			if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
				return err
			}
			if res.Failed() {
				return fmt.Errorf("%w: %v", errRelayFailed, res.Err())
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&backendName, "backend", "b", "", "backend name (default: RELAY_BACKEND)")
	cmd.Flags().StringVar(&mimeType, "mime", "", "declared MIME type (detected from content when empty)")
	return cmd
}

type backendInfo struct {
	Name       string            `json:"name"`
	Kind       relay.BackendKind `json:"kind"`
	Endpoint   string            `json:"endpoint,omitempty"`
	Active     bool              `json:"active"`
	Configured bool              `json:"configured"`
}

func newBackendsCmd(cfg *config.Config) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "backends",
		Short: "List configured backends",
		RunE: func(cmd *cobra.Command, args []string) error {
			infos := make([]backendInfo, 0, len(cfg.Backends))
			for _, name := range cfg.BackendNames() {
				b := cfg.Backends[name]
				infos = append(infos, backendInfo{
					Name:       name,
					Kind:       b.Kind,
					Endpoint:   b.Endpoint,
					Active:     name == cfg.ActiveBackend,
					Configured: b.Configured(),
				})
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return writeJSON(out, infos)
			}
			for _, info := range infos {
				marker := " "
				if info.Active {
					marker = "*"
				}
				status := "not configured"
				if info.Configured {
					status = "configured"
				}
				fmt.Fprintf(out, "%s %-12s %-15s %s\n", marker, info.Name, info.Kind, status)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output JSON")
	return cmd
}

func newTokenCmd(cfg *config.Config) *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token <subject>",
		Short: "Issue an API access token signed with JWT_SECRET",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.JWTSecret == "" {
				return errors.New("JWT_SECRET environment variable is not set")
			}
			token, err := auth.NewAuthenticator(cfg.JWTSecret).IssueToken(strings.TrimSpace(args[0]), ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
