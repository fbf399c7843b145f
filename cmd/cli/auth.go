package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func readPassword(a *app, flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	pw, err := a.password("Password: ")
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	if pw == "" {
		return "", errors.New("empty password")
	}
	return pw, nil
}

func signupCmd(a *app) *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "signup EMAIL",
		Short: "Create an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ctl, err := a.mount(ctx)
			if err != nil {
				return err
			}
			pw, err := readPassword(a, password)
			if err != nil {
				return err
			}
			ok, err := ctl.SignUp(ctx, args[0], pw)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "check your email to confirm the account, then run `topics login`")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "signed up as %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (prompted when omitted)")
	return cmd
}

func loginCmd(a *app) *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "login EMAIL",
		Short: "Sign in with email and password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ctl, err := a.mount(ctx)
			if err != nil {
				return err
			}
			pw, err := readPassword(a, password)
			if err != nil {
				return err
			}
			if err := ctl.SignIn(ctx, args[0], pw); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "signed in as %s\n", ctl.Session().User.Email)
			return nil
		},
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (prompted when omitted)")
	return cmd
}

func loginGoogleCmd(a *app) *cobra.Command {
	var (
		listen  string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "login-google",
		Short: "Sign in with Google in the browser",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			ctl, err := a.mount(ctx)
			if err != nil {
				return err
			}
			ln, err := net.Listen("tcp", listen)
			if err != nil {
				return fmt.Errorf("listen: %w", err)
			}
			redirectTo := "http://" + ln.Addr().String() + "/callback"

			r, err := ctl.SignInWithOAuth(ctx, "google", redirectTo)
			if err != nil {
				ln.Close()
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Open this URL in your browser to continue:\n\n  %s\n\n", r.URL)

			code, err := awaitCode(ctx, ln)
			if err != nil {
				return err
			}
			if err := ctl.CompleteOAuth(ctx, code, r.Verifier); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "signed in as %s\n", ctl.Session().User.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "127.0.0.1:0", "loopback address for the OAuth callback")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "how long to wait for the browser")
	return cmd
}

// awaitCode serves ln until one request to /callback arrives and returns its
// code. The listener is closed on return.
func awaitCode(ctx context.Context, ln net.Listener) (string, error) {
	type result struct {
		code string
		err  error
	}
	done := make(chan result, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		res := result{code: q.Get("code")}
		switch {
		case q.Get("error") != "":
			res.err = fmt.Errorf("oauth: %s", strings.TrimSpace(q.Get("error")+" "+q.Get("error_description")))
		case res.code == "":
			res.err = errors.New("oauth: callback without code")
		}
		if res.err != nil {
			http.Error(w, res.err.Error(), http.StatusBadRequest)
		} else {
			fmt.Fprintln(w, "Signed in. You can close this window.")
		}
		select {
		case done <- res:
		default:
		}
	})

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() { _ = srv.Serve(ln) }()
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	select {
	case res := <-done:
		return res.code, res.err
	case <-ctx.Done():
		return "", fmt.Errorf("oauth: waiting for callback: %w", ctx.Err())
	}
}

func logoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			ctl, err := a.mount(ctx)
			if err != nil {
				return err
			}
			if ctl.Session() == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "not signed in")
				return nil
			}
			if err := ctl.SignOut(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "signed out")
			return nil
		},
	}
}

func whoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctl, err := a.signedIn(cmd.Context())
			if err != nil {
				return err
			}
			u := ctl.Session().User
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", u.Email, u.ID)
			return nil
		},
	}
}
