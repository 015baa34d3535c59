package authflow

import (
	"context"
	"fmt"

	"cleat/pkg/logging"
	"cleat/pkg/oauth"
)

// deviceFlow runs the device authorization flow: request a user code, show
// the user where to enter it, and poll until approval.
func (a *Authenticator) deviceFlow(ctx context.Context, cfg *oauth.Config) (*oauth.TokenSet, error) {
	reg, err := a.client.RegisterDeviceClient(ctx, cfg)
	if err != nil {
		return nil, err
	}

	da, err := a.client.RequestDeviceAuthorization(ctx, cfg, reg, a.requestScopes(cfg))
	if err != nil {
		return nil, err
	}

	a.showDeviceInstructions(da)
	a.notifyDevice(ctx, da)

	token, err := a.client.PollDeviceToken(ctx, cfg, reg, da)
	if err != nil {
		return nil, err
	}

	fmt.Fprintln(a.out, "Authentication complete.")
	return token, nil
}

// showDeviceInstructions prints where to approve the authorization. The
// complete URI embeds the code; otherwise the user types it in.
func (a *Authenticator) showDeviceInstructions(da *oauth.DeviceAuthorization) {
	if da.VerificationURIComplete != "" {
		fmt.Fprintf(a.out, "\nTo sign in, visit:\n\n  %s\n\n", da.VerificationURIComplete)
		fmt.Fprintf(a.out, "and confirm the code %s.\n\n", da.UserCode)
	} else {
		fmt.Fprintf(a.out, "\nTo sign in, visit:\n\n  %s\n\nand enter the code %s.\n\n", da.VerificationURI, da.UserCode)
	}
	fmt.Fprintln(a.out, "Waiting for approval...")
}

// notifyDevice forwards the instructions to the external notifier, if one is
// configured. The device code itself is never forwarded.
func (a *Authenticator) notifyDevice(ctx context.Context, da *oauth.DeviceAuthorization) {
	if a.notifier == nil {
		return
	}

	n := DeviceNotification{
		UserCode:                da.UserCode,
		VerificationURI:         da.VerificationURI,
		VerificationURIComplete: da.VerificationURIComplete,
		ExpiresIn:               da.ExpiresIn,
	}
	if err := a.notifier(ctx, n); err != nil {
		logging.Warn("AuthFlow", "Device-flow notifier failed: %v", err)
	}
}
