// SPDX-License-Identifier: MIT

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/azdo-tools/artifacts-credprovider/pkg/cache"
	"github.com/azdo-tools/artifacts-credprovider/pkg/cancellation"
	"github.com/azdo-tools/artifacts-credprovider/pkg/config"
	"github.com/azdo-tools/artifacts-credprovider/pkg/logger"
	"github.com/azdo-tools/artifacts-credprovider/pkg/provider"
	"github.com/azdo-tools/artifacts-credprovider/pkg/vsts"
)

func newGetCmd() *cobra.Command {
	var (
		rawURI         string
		isRetry        bool
		nonInteractive bool
		canShowDialog  bool
	)

	cmd := &cobra.Command{
		Use:   "get",
		Short: "Resolve credentials for a package feed",
		Long: `Resolve credentials for the given package feed URI and print the
credential response as JSON on stdout.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runGet(cmd.Context(), &provider.Request{
				URI:              mustParseURI(rawURI),
				IsRetry:          isRetry,
				IsNonInteractive: nonInteractive,
				CanShowDialog:    canShowDialog,
			})
		},
	}

	cmd.Flags().StringVarP(&rawURI, "uri", "u", "", "Package feed URI to resolve credentials for")
	cmd.Flags().BoolVar(&isRetry, "is-retry", false, "A previously returned credential was rejected")
	cmd.Flags().BoolVarP(&nonInteractive, "non-interactive", "n", false, "Forbid flows that require the user")
	cmd.Flags().BoolVar(&canShowDialog, "can-show-dialog", true, "Permit flows that require a UI surface")
	if err := cmd.MarkFlagRequired("uri"); err != nil {
		logger.Errorf("Error marking uri flag required: %v", err)
	}

	return cmd
}

// mustParseURI defers validation to runGet so the error surfaces through
// the normal RunE path.
func mustParseURI(raw string) *url.URL {
	uri, err := url.Parse(raw)
	if err != nil {
		return nil
	}
	return uri
}

func runGet(ctx context.Context, req *provider.Request) error {
	if req.URI == nil || !req.URI.IsAbs() {
		return fmt.Errorf("invalid feed URI")
	}

	settings, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := cancellation.NewRegistry()
	ctx, cancel := registry.WithCancel(ctx, "credential resolution")
	defer cancel("request complete")

	resp, err := newResolver(settings).Resolve(ctx, req)
	if err != nil {
		return err
	}

	for _, entry := range registry.Dump() {
		logger.Debugw("cancellation source",
			"name", entry.Name, "cancelled", entry.Cancelled, "reason", entry.Reason)
	}

	return json.NewEncoder(os.Stdout).Encode(resp)
}

// newResolver wires the resolution pipeline: the session token cache,
// then the credential sources in precedence order. Environment-supplied
// credentials always win over identity-provider sign-in.
func newResolver(settings *config.Settings) *provider.Resolver {
	var tokenCache cache.Cache = cache.NoOpCache{}
	if settings.SessionTokenCacheEnabled {
		tokenCache = cache.NewSessionTokenCache(settings.SessionTokenCacheLocation)
	}

	authUtil := vsts.NewAuthUtil(nil, settings.Authority)
	exchanger := vsts.NewSessionTokenProvider(vsts.NewSessionTokenClient(nil, authUtil), settings)

	sources := []provider.CredentialSource{
		provider.NewBuildTaskSourceFromEnvironment(),
		provider.NewExternalEndpointsSourceFromEnvironment(settings, exchanger),
		provider.NewIdentitySource(settings, authUtil, exchanger),
	}

	return provider.NewResolver(sources, tokenCache)
}
